// Package intervalset holds the set of currently-claimed sub-ranges of a
// MAAP address pool.
//
// Every node lives in a flat arena and is addressed by a stable Handle
// (an index), never by pointer. A Reservation stores the Handle of the
// interval it owns; the interval stores the id of the Reservation that
// owns it. Because handles never move once issued, removing an interval
// never requires walking the tree to fix up an unrelated Reservation's
// back-pointer -- the hazard called out as the core's biggest correctness
// risk is eliminated by construction rather than patched after the fact.
package intervalset

import "math/rand/v2"

// Handle addresses a node in a Set. The zero value is never issued by
// Insert and is safe to use as "no interval".
type Handle uint32

// Invalid is the handle returned in place of a live node.
const Invalid Handle = 0

type node struct {
	low, high uint32
	priority  uint64
	left      Handle
	right     Handle
	ownerID   uint32
	inUse     bool
}

// Set is an ordered, disjoint collection of [low, high] integer intervals
// within [0, limit-1]. The zero value is not usable; construct with New.
type Set struct {
	limit uint32
	nodes []node // nodes[0] is a permanent sentinel; real handles start at 1
	root  Handle
	free  []Handle
	rng   *rand.Rand
}

// New returns an empty Set over the zero-based index space [0, limit-1].
// seed makes the internal treap-balancing priorities reproducible; it has
// no effect on which intervals end up in the set, only on tree shape.
func New(limit uint32, seed uint64) *Set {
	return &Set{
		limit: limit,
		nodes: make([]node, 1), // index 0 reserved as Invalid
		rng:   rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// Limit returns the size of the index space the set was constructed over.
func (s *Set) Limit() uint32 { return s.limit }

// Len returns the number of intervals currently in the set.
func (s *Set) Len() int { return len(s.nodes) - 1 - len(s.free) }

// Get returns the bounds of the interval addressed by h.
func (s *Set) Get(h Handle) (low, high uint32, ok bool) {
	if !s.valid(h) {
		return 0, 0, false
	}
	n := &s.nodes[h]
	return n.low, n.high, true
}

// Owner returns the reservation id most recently associated with h via
// SetOwner.
func (s *Set) Owner(h Handle) uint32 {
	if !s.valid(h) {
		return 0
	}
	return s.nodes[h].ownerID
}

// SetOwner records which reservation id owns the interval at h.
func (s *Set) SetOwner(h Handle, id uint32) {
	if s.valid(h) {
		s.nodes[h].ownerID = id
	}
}

func (s *Set) valid(h Handle) bool {
	return h != Invalid && int(h) < len(s.nodes) && s.nodes[h].inUse
}

// Insert adds [low, high] to the set. It fails if the range would overlap
// an existing interval, or falls outside [0, limit-1].
func (s *Set) Insert(low, high uint32) (Handle, bool) {
	if low > high || high >= s.limit {
		return Invalid, false
	}
	if s.hasOverlap(low, high) {
		return Invalid, false
	}
	h := s.allocNode(low, high)
	l, r := s.split(s.root, low)
	s.root = s.merge(s.merge(l, h), r)
	return h, true
}

// Remove detaches the interval addressed by h. It is a no-op if h is not
// a live handle.
func (s *Set) Remove(h Handle) {
	if !s.valid(h) {
		return
	}
	key := s.nodes[h].low
	l, mid := s.split(s.root, key)
	_, r := s.split(mid, key+1)
	s.root = s.merge(l, r)
	s.freeNode(h)
}

// Min returns the interval with the smallest low, or Invalid if empty.
func (s *Set) Min() Handle {
	cur := s.root
	if cur == Invalid {
		return Invalid
	}
	for s.nodes[cur].left != Invalid {
		cur = s.nodes[cur].left
	}
	return cur
}

// Next returns the interval whose low is the smallest low strictly
// greater than h's, or Invalid if h is the last interval.
func (s *Set) Next(h Handle) Handle {
	if !s.valid(h) {
		return Invalid
	}
	return s.ceilingAbove(s.nodes[h].low)
}

// Search returns the first interval, in ascending-low order, whose
// high is >= low. This is the entry point for walking every interval
// that could overlap [low, low+count-1]; keep advancing with Next while
// OverlapCheck reports true.
func (s *Set) Search(low uint32) Handle {
	if f := s.floor(low); f != Invalid && s.nodes[f].high >= low {
		return f
	}
	return s.ceilingAbove(low)
}

// OverlapCheck reports whether the interval at h overlaps
// [low, low+count-1].
func (s *Set) OverlapCheck(h Handle, low, count uint32) bool {
	if !s.valid(h) || count == 0 {
		return false
	}
	n := &s.nodes[h]
	return n.low <= low+count-1 && n.high >= low
}

func (s *Set) hasOverlap(low, high uint32) bool {
	h := s.Search(low)
	if h == Invalid {
		return false
	}
	return s.nodes[h].low <= high
}

// floor returns the live node with the greatest low <= key, or Invalid.
func (s *Set) floor(key uint32) Handle {
	var best Handle = Invalid
	cur := s.root
	for cur != Invalid {
		n := &s.nodes[cur]
		if n.low <= key {
			best = cur
			cur = n.right
		} else {
			cur = n.left
		}
	}
	return best
}

// ceilingAbove returns the live node with the smallest low > key, or Invalid.
func (s *Set) ceilingAbove(key uint32) Handle {
	var best Handle = Invalid
	cur := s.root
	for cur != Invalid {
		n := &s.nodes[cur]
		if n.low > key {
			best = cur
			cur = n.left
		} else {
			cur = n.right
		}
	}
	return best
}

// split partitions t into (low-keyed-below-key, low-keyed-at-or-above-key).
func (s *Set) split(t Handle, key uint32) (Handle, Handle) {
	if t == Invalid {
		return Invalid, Invalid
	}
	n := &s.nodes[t]
	if n.low < key {
		l, r := s.split(n.right, key)
		n.right = l
		return t, r
	}
	l, r := s.split(n.left, key)
	n.left = r
	return l, t
}

// merge joins two treaps where every key in l is less than every key in r.
func (s *Set) merge(l, r Handle) Handle {
	if l == Invalid {
		return r
	}
	if r == Invalid {
		return l
	}
	ln, rn := &s.nodes[l], &s.nodes[r]
	if ln.priority > rn.priority {
		ln.right = s.merge(ln.right, r)
		return l
	}
	rn.left = s.merge(l, rn.left)
	return r
}

func (s *Set) allocNode(low, high uint32) Handle {
	priority := s.rng.Uint64()
	if n := len(s.free); n > 0 {
		h := s.free[n-1]
		s.free = s.free[:n-1]
		s.nodes[h] = node{low: low, high: high, priority: priority, left: Invalid, right: Invalid, inUse: true}
		return h
	}
	s.nodes = append(s.nodes, node{low: low, high: high, priority: priority, left: Invalid, right: Invalid, inUse: true})
	return Handle(len(s.nodes) - 1)
}

func (s *Set) freeNode(h Handle) {
	s.nodes[h] = node{}
	s.free = append(s.free, h)
}
