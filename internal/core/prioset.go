package core

import "math/bits"

// MaxActive is the number of distinct priorities, 1..MaxActive.
const MaxActive = 64

// prioSet is a set of priorities 1..64 stored as a bitmap; bit p-1 is
// priority p. The ready set and each subscriber list are prioSets.
type prioSet uint64

func (s prioSet) has(p uint8) bool {
	return s&(1<<(p-1)) != 0
}

func (s *prioSet) insert(p uint8) {
	*s |= 1 << (p - 1)
}

func (s *prioSet) remove(p uint8) {
	*s &^= 1 << (p - 1)
}

func (s prioSet) empty() bool {
	return s == 0
}

// highest returns the numerically highest priority, or 0 when empty.
func (s prioSet) highest() uint8 {
	return uint8(bits.Len64(uint64(s)))
}

func (s prioSet) count() int {
	return bits.OnesCount64(uint64(s))
}

// descending returns the members from highest to lowest priority.
func (s prioSet) descending() []uint8 {
	out := make([]uint8, 0, s.count())
	for s != 0 {
		p := s.highest()
		out = append(out, p)
		s.remove(p)
	}
	return out
}
