package session

// Idx is a generational handle into a Slab: it stays valid until the slot it
// points to is Freed, at which point Get reports it as gone. This
// is the arena+index scheme from spec §9 Design Notes, used in place of the
// source's shared/weak-pointer cycle between Worm and ClientSession.
type Idx struct {
	slot int
	gen  uint32
}

type slabSlot[T any] struct {
	value    T
	gen      uint32
	occupied bool
}

// Slab is a generational arena: Alloc returns a stable Idx, Get resolves it
// (failing if the slot has since been freed), Free releases it.
type Slab[T any] struct {
	slots []slabSlot[T]
	free  []int
}

// Alloc stores value in a fresh or recycled slot and returns its handle.
func (s *Slab[T]) Alloc(value T) Idx {
	if n := len(s.free); n > 0 {
		i := s.free[n-1]
		s.free = s.free[:n-1]
		s.slots[i].value = value
		s.slots[i].occupied = true
		return Idx{slot: i, gen: s.slots[i].gen}
	}

	s.slots = append(s.slots, slabSlot[T]{value: value, occupied: true})
	return Idx{slot: len(s.slots) - 1, gen: 0}
}

// Get resolves idx to its value. ok is false if the slot has been freed
// (whether or not it has since been reused).
func (s *Slab[T]) Get(idx Idx) (T, bool) {
	var zero T
	if idx.slot < 0 || idx.slot >= len(s.slots) {
		return zero, false
	}
	slot := &s.slots[idx.slot]
	if !slot.occupied || slot.gen != idx.gen {
		return zero, false
	}
	return slot.value, true
}

// Free releases idx's slot, bumping its generation so any outstanding
// handles resolve to false from now on.
func (s *Slab[T]) Free(idx Idx) {
	if idx.slot < 0 || idx.slot >= len(s.slots) {
		return
	}
	slot := &s.slots[idx.slot]
	if !slot.occupied || slot.gen != idx.gen {
		return
	}
	var zero T
	slot.value = zero
	slot.occupied = false
	slot.gen++
	s.free = append(s.free, idx.slot)
}
