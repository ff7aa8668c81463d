// SPDX-License-Identifier: MIT

package raster3d

import "testing"

// recordingCache builds a Cache over a simple map-backed "store",
// recording every load/remove call for assertions.
func recordingCache(n, bufLen, minUnlocked int) (*Cache, *[]int64, *[]int64) {
	loaded := []int64{}
	removed := []int64{}
	load := func(name int64, buf []float64) error {
		loaded = append(loaded, name)
		for i := range buf {
			buf[i] = float64(name)
		}
		return nil
	}
	remove := func(name int64, buf []float64) error {
		removed = append(removed, name)
		return nil
	}
	return NewCache(n, bufLen, minUnlocked, load, remove), &loaded, &removed
}

func TestCacheLoadHitsDontReload(t *testing.T) {
	c, loaded, _ := recordingCache(2, 4, 0)
	if _, err := c.Load(1); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Load(1); err != nil {
		t.Fatal(err)
	}
	if len(*loaded) != 1 {
		t.Errorf("loaded %v times, want 1", *loaded)
	}
}

func TestCacheEvictsLRU(t *testing.T) {
	c, _, removed := recordingCache(2, 4, 0)
	if _, err := c.Load(1); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Load(2); err != nil {
		t.Fatal(err)
	}
	// Touch 1 so 2 becomes the LRU head.
	if _, err := c.Load(1); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Load(3); err != nil {
		t.Fatal(err)
	}
	if len(*removed) != 1 || (*removed)[0] != 2 {
		t.Errorf("removed = %v, want [2]", *removed)
	}
}

func TestCacheLockPreventsEviction(t *testing.T) {
	c, _, removed := recordingCache(3, 4, 0)
	c.Load(1)
	c.Load(2)
	if err := c.Lock(1); err != nil { // two unlocked slots resident, locking one is fine
		t.Fatal(err)
	}
	c.Load(3)
	c.Load(4) // all 3 slots active, must evict the LRU unlocked one (2), not the locked 1
	if len(*removed) != 1 || (*removed)[0] != 2 {
		t.Errorf("removed = %v, want [2]", *removed)
	}
}

func TestCacheLockRefusesBelowMinUnlocked(t *testing.T) {
	c, _, _ := recordingCache(3, 4, 1)
	c.Load(1)
	c.Load(2)
	if err := c.Lock(1); err != nil {
		t.Fatal(err)
	}
	// Locking the only remaining unlocked slot would drop below minUnlocked.
	if err := c.Lock(2); err == nil {
		t.Error("expected Lock to refuse, minUnlocked would be violated")
	}
}

func TestCacheUnlockRequeues(t *testing.T) {
	c, _, removed := recordingCache(3, 4, 0)
	c.Load(1)
	c.Load(2)
	if err := c.Lock(1); err != nil {
		t.Fatal(err)
	}
	c.Load(3)
	if err := c.Unlock(1); err != nil {
		t.Fatal(err)
	}
	if got, want := c.NofUnlocked(), 3; got != want {
		t.Fatalf("NofUnlocked = %d, want %d", got, want)
	}
	// Unlock requeues at the LRU tail, so 2 (never touched since) is
	// still the head and gets evicted first, not the just-unlocked 1.
	c.Load(4)
	if len(*removed) != 1 || (*removed)[0] != 2 {
		t.Errorf("removed = %v, want [2]", *removed)
	}
}

func TestCacheFlushAllCallsRemoveOnEveryResident(t *testing.T) {
	c, _, removed := recordingCache(4, 4, 0)
	c.Load(1)
	c.Load(2)
	c.Load(3)
	if err := c.FlushAll(); err != nil {
		t.Fatal(err)
	}
	if len(*removed) != 3 {
		t.Errorf("removed %d tiles, want 3", len(*removed))
	}
	if c.NofUnlocked() != 0 {
		t.Errorf("NofUnlocked = %d after FlushAll, want 0", c.NofUnlocked())
	}
}

func TestCacheRemoveAllSkipsRemoveFn(t *testing.T) {
	c, _, removed := recordingCache(4, 4, 0)
	c.Load(1)
	c.Load(2)
	c.RemoveAll()
	if len(*removed) != 0 {
		t.Errorf("RemoveAll called removeFn %d times, want 0", len(*removed))
	}
}

func TestCacheResetClearsWithoutRemoveFn(t *testing.T) {
	c, _, removed := recordingCache(2, 4, 0)
	c.Load(1)
	c.Reset()
	if len(*removed) != 0 {
		t.Error("Reset must not call removeFn")
	}
	if c.NofUnlocked() != 0 {
		t.Errorf("NofUnlocked after Reset = %d, want 0", c.NofUnlocked())
	}
	// The slot is reusable after Reset.
	if _, err := c.Load(1); err != nil {
		t.Fatal(err)
	}
}

func TestCacheAutoLockLocksOnAccess(t *testing.T) {
	c, _, _ := recordingCache(4, 4, 0)
	c.Load(1)
	c.Load(2)
	c.Load(3)
	c.SetAutoLock(true)
	if _, err := c.Load(1); err != nil { // hit; autoLock should lock it
		t.Fatal(err)
	}
	if got, want := c.NofUnlocked(), 2; got != want {
		t.Errorf("NofUnlocked = %d, want %d after auto-locking a resident slot", got, want)
	}
}
