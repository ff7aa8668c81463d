// SPDX-License-Identifier: MIT

package raster3d

import "fmt"

// slotStatus is the state of one cache slot (§3.3).
type slotStatus int8

const (
	slotInactive slotStatus = iota
	slotUnlocked
	slotLocked
)

// LoadFn fills buf with the data for the named tile; it is called on a
// cache miss. RemoveFn persists buf for the named tile; it is called
// when a slot is evicted, flushed, or its callback is swapped by the
// owning Map (§4.D).
type (
	LoadFn   func(name int64, buf []float64) error
	RemoveFn func(name int64, buf []float64) error
)

// cacheSlot holds one tile buffer plus its LRU links. prev/next index
// into Cache.slots and are only meaningful while status == slotUnlocked;
// -1 marks an absent neighbour.
type cacheSlot struct {
	status     slotStatus
	name       int64
	buf        []float64
	prev, next int
}

// Cache is the two-level LRU tile cache from §4.D: a fixed set of
// slots keyed by tile index via a side hash, with a doubly-linked LRU
// queue over the unlocked slots. Eviction always takes the LRU head.
// autoLock, when set, locks a slot as a side effect of Load unless
// that would violate minUnlocked.
type Cache struct {
	slots       []cacheSlot
	hash        map[int64]int
	lruHead     int
	lruTail     int
	nofUnlocked int
	minUnlocked int
	autoLock    bool
	loadFn      LoadFn
	removeFn    RemoveFn
}

// NewCache allocates a cache of n slots, each bufLen cells wide.
// minUnlocked is the floor enforced by Lock (§3.3's starvation
// invariant: nofUnlocked never drops below it while any slot is
// unlocked).
func NewCache(n, bufLen, minUnlocked int, loadFn LoadFn, removeFn RemoveFn) *Cache {
	c := &Cache{
		slots:       make([]cacheSlot, n),
		hash:        make(map[int64]int, n),
		lruHead:     -1,
		lruTail:     -1,
		minUnlocked: minUnlocked,
		loadFn:      loadFn,
		removeFn:    removeFn,
	}
	for i := range c.slots {
		c.slots[i] = cacheSlot{status: slotInactive, buf: make([]float64, bufLen), prev: -1, next: -1}
	}
	return c
}

// SetAutoLock toggles the auto-lock-on-access mode described in §4.D.
func (c *Cache) SetAutoLock(on bool) { c.autoLock = on }

// SetLoadFn and SetRemoveFn replace the cache's callbacks, used by Map
// to redirect a cache between the spill file and the final data file
// at different points in a Map's lifecycle (§4.D, §4.E).
func (c *Cache) SetLoadFn(fn LoadFn)     { c.loadFn = fn }
func (c *Cache) SetRemoveFn(fn RemoveFn) { c.removeFn = fn }

func (c *Cache) lruUnlink(slot int) {
	s := &c.slots[slot]
	if s.prev >= 0 {
		c.slots[s.prev].next = s.next
	} else {
		c.lruHead = s.next
	}
	if s.next >= 0 {
		c.slots[s.next].prev = s.prev
	} else {
		c.lruTail = s.prev
	}
	s.prev, s.next = -1, -1
}

func (c *Cache) lruPushTail(slot int) {
	s := &c.slots[slot]
	s.prev, s.next = c.lruTail, -1
	if c.lruTail >= 0 {
		c.slots[c.lruTail].next = slot
	} else {
		c.lruHead = slot
	}
	c.lruTail = slot
}

// evict picks a slot to reuse: an inactive slot if any remains,
// otherwise the LRU head, calling removeFn on whatever tile currently
// occupies it.
func (c *Cache) evict() (int, error) {
	for i := range c.slots {
		if c.slots[i].status == slotInactive {
			return i, nil
		}
	}
	if c.lruHead < 0 {
		return 0, fmt.Errorf("raster3d: Cache: no unlocked slot available to evict")
	}
	slot := c.lruHead
	old := &c.slots[slot]
	if c.removeFn != nil {
		if err := c.removeFn(old.name, old.buf); err != nil {
			return 0, fmt.Errorf("raster3d: Cache: evict: %w", err)
		}
	}
	delete(c.hash, old.name)
	c.lruUnlink(slot)
	c.nofUnlocked--
	old.status = slotInactive
	return slot, nil
}

// Load ensures the tile named name is resident and returns its buffer.
// On a miss it evicts the LRU unlocked slot, calling removeFn on the
// evictee first, then loadFn to populate the new slot (§4.D).
func (c *Cache) Load(name int64) ([]float64, error) {
	if slot, ok := c.hash[name]; ok {
		if c.slots[slot].status == slotUnlocked {
			c.lruUnlink(slot)
			c.lruPushTail(slot)
		}
		if c.autoLock {
			_ = c.lockSlot(slot)
		}
		return c.slots[slot].buf, nil
	}
	slot, err := c.evict()
	if err != nil {
		return nil, err
	}
	s := &c.slots[slot]
	if c.loadFn != nil {
		if err := c.loadFn(name, s.buf); err != nil {
			return nil, fmt.Errorf("raster3d: Cache: load %d: %w", name, err)
		}
	}
	s.name = name
	s.status = slotUnlocked
	c.hash[name] = slot
	c.lruPushTail(slot)
	c.nofUnlocked++
	if c.autoLock {
		_ = c.lockSlot(slot)
	}
	return s.buf, nil
}

// Lock marks the named tile's slot locked, refusing if doing so would
// drop nofUnlocked below minUnlocked or to zero (§3.3, §4.D).
func (c *Cache) Lock(name int64) error {
	slot, ok := c.hash[name]
	if !ok {
		return fmt.Errorf("raster3d: Cache: Lock: %d not resident", name)
	}
	return c.lockSlot(slot)
}

func (c *Cache) lockSlot(slot int) error {
	s := &c.slots[slot]
	if s.status == slotLocked {
		return nil
	}
	if c.nofUnlocked-1 < c.minUnlocked || c.nofUnlocked-1 < 1 {
		return fmt.Errorf("raster3d: Cache: Lock: would leave %d unlocked slots, floor is %d", c.nofUnlocked-1, c.minUnlocked)
	}
	c.lruUnlink(slot)
	c.nofUnlocked--
	s.status = slotLocked
	return nil
}

// Unlock requeues the named tile's slot at the tail of the LRU list.
func (c *Cache) Unlock(name int64) error {
	slot, ok := c.hash[name]
	if !ok {
		return fmt.Errorf("raster3d: Cache: Unlock: %d not resident", name)
	}
	s := &c.slots[slot]
	if s.status != slotLocked {
		return nil
	}
	s.status = slotUnlocked
	c.lruPushTail(slot)
	c.nofUnlocked++
	return nil
}

// Flush calls removeFn on the named tile, if resident, then drops it.
func (c *Cache) Flush(name int64) error {
	slot, ok := c.hash[name]
	if !ok {
		return nil
	}
	return c.dropSlot(slot, true)
}

// Remove drops the named tile without calling removeFn.
func (c *Cache) Remove(name int64) error {
	slot, ok := c.hash[name]
	if !ok {
		return nil
	}
	return c.dropSlot(slot, false)
}

func (c *Cache) dropSlot(slot int, callRemove bool) error {
	s := &c.slots[slot]
	if callRemove && c.removeFn != nil {
		if err := c.removeFn(s.name, s.buf); err != nil {
			return fmt.Errorf("raster3d: Cache: flush %d: %w", s.name, err)
		}
	}
	if s.status == slotUnlocked {
		c.lruUnlink(slot)
		c.nofUnlocked--
	}
	delete(c.hash, s.name)
	s.status = slotInactive
	return nil
}

// activeNames returns every currently-resident tile index, in no
// particular order; used by FlushAll/RemoveAll and by tests asserting
// the cache-semantics invariant in §8.
func (c *Cache) activeNames() []int64 {
	names := make([]int64, 0, len(c.hash))
	for name := range c.hash {
		names = append(names, name)
	}
	return names
}

// FlushAll calls removeFn on every active slot, then drops it.
func (c *Cache) FlushAll() error {
	for _, name := range c.activeNames() {
		if err := c.Flush(name); err != nil {
			return err
		}
	}
	return nil
}

// RemoveAll drops every active slot without calling removeFn.
func (c *Cache) RemoveAll() {
	for _, name := range c.activeNames() {
		_ = c.Remove(name)
	}
}

// Reset returns every slot to inactive and clears the LRU queue and
// hash, without calling removeFn.
func (c *Cache) Reset() {
	for i := range c.slots {
		c.slots[i].status = slotInactive
		c.slots[i].prev, c.slots[i].next = -1, -1
	}
	c.hash = make(map[int64]int, len(c.slots))
	c.lruHead, c.lruTail = -1, -1
	c.nofUnlocked = 0
}

// NofUnlocked reports the current LRU queue length, for the §8
// cache-semantics property (|unlocked| >= minUnlocked whenever any
// unlocked slots exist).
func (c *Cache) NofUnlocked() int { return c.nofUnlocked }
