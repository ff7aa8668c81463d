// SPDX-License-Identifier: MIT

package terraflow

// UnionFind is the path-compressed, rank-weighted disjoint-set forest
// from §9's design note, shared between plateau labeling (component H,
// via ccforest.cpp in the original source) and boundary/fill (K). It
// carries a parallel "done" bitmap: once a root is marked done (a
// watershed that has reached the outside, or a plateau whose boundary
// root is fixed), Union always keeps a done root as the surviving
// root, so a done set is never merged underneath another — the
// original's stated mechanism for ruling out cycles.
type UnionFind struct {
	parent []int32
	rank   []uint8
	done   []bool
}

// NewUnionFind allocates a forest of n singleton sets, 0..n-1.
func NewUnionFind(n int) *UnionFind {
	uf := &UnionFind{
		parent: make([]int32, n),
		rank:   make([]uint8, n),
		done:   make([]bool, n),
	}
	for i := range uf.parent {
		uf.parent[i] = int32(i)
	}
	return uf
}

// NewSet grows the forest by one singleton and returns its id.
func (uf *UnionFind) NewSet() int32 {
	id := int32(len(uf.parent))
	uf.parent = append(uf.parent, id)
	uf.rank = append(uf.rank, 0)
	uf.done = append(uf.done, false)
	return id
}

// Len reports the number of elements (not sets) in the forest.
func (uf *UnionFind) Len() int { return len(uf.parent) }

// Find returns x's set root, path-halving along the way.
func (uf *UnionFind) Find(x int32) int32 {
	for uf.parent[x] != x {
		uf.parent[x] = uf.parent[uf.parent[x]]
		x = uf.parent[x]
	}
	return x
}

// Union merges the sets containing a and b and returns the surviving
// root. A done root always survives over a non-done one, regardless of
// rank, per §9's cycle-avoidance rule; otherwise union-by-rank applies.
func (uf *UnionFind) Union(a, b int32) int32 {
	ra, rb := uf.Find(a), uf.Find(b)
	if ra == rb {
		return ra
	}
	switch {
	case uf.done[ra] && !uf.done[rb]:
		uf.parent[rb] = ra
		return ra
	case uf.done[rb] && !uf.done[ra]:
		uf.parent[ra] = rb
		return rb
	}
	if uf.rank[ra] < uf.rank[rb] {
		ra, rb = rb, ra
	}
	uf.parent[rb] = ra
	if uf.rank[ra] == uf.rank[rb] {
		uf.rank[ra]++
	}
	return ra
}

// MarkDone marks x's root done.
func (uf *UnionFind) MarkDone(x int32) { uf.done[uf.Find(x)] = true }

// IsDone reports whether x's root is marked done.
func (uf *UnionFind) IsDone(x int32) bool { return uf.done[uf.Find(x)] }
