package ledger

// Handle refers to a slot in an Arena. A handle goes stale once its slot
// is released, a stale handle never resolves to a reused slot.
type Handle struct {
	index uint16
	gen   uint16
}

// IsZero reports whether the handle was never issued.
func (h Handle) IsZero() bool {
	return h.gen == 0
}

type arenaSlot[T any] struct {
	gen    uint16
	active bool
	value  T
}

// Arena is a fixed capacity slot array.
type Arena[T any] struct {
	slots  []arenaSlot[T]
	active int
}

// NewArena creates an Arena.
func NewArena[T any](capacity int) *Arena[T] {
	return &Arena[T]{slots: make([]arenaSlot[T], capacity)}
}

// Cap returns the capacity.
func (a *Arena[T]) Cap() int {
	return len(a.slots)
}

// Len returns the number of active slots.
func (a *Arena[T]) Len() int {
	return a.active
}

// Insert takes a free slot, false when full.
func (a *Arena[T]) Insert(v T) (Handle, bool) {
	for n := range a.slots {
		s := &a.slots[n]
		if s.active {
			continue
		}
		s.gen++
		if s.gen == 0 {
			s.gen = 1
		}
		s.active, s.value = true, v
		a.active++
		return Handle{index: uint16(n), gen: s.gen}, true
	}
	return Handle{}, false
}

// Get resolves a handle.
func (a *Arena[T]) Get(h Handle) (v T, ok bool) {
	if s := a.slot(h); s != nil {
		return s.value, true
	}
	return
}

// Remove releases the slot and returns its value.
func (a *Arena[T]) Remove(h Handle) (v T, ok bool) {
	s := a.slot(h)
	if s == nil {
		return
	}
	v = s.value
	var zero T
	s.active, s.value = false, zero
	a.active--
	return v, true
}

// Handles lists the active handles.
func (a *Arena[T]) Handles() []Handle {
	handles := make([]Handle, 0, a.active)
	for n := range a.slots {
		if a.slots[n].active {
			handles = append(handles, Handle{index: uint16(n), gen: a.slots[n].gen})
		}
	}
	return handles
}

func (a *Arena[T]) slot(h Handle) *arenaSlot[T] {
	if h.gen == 0 || int(h.index) >= len(a.slots) {
		return nil
	}
	s := &a.slots[h.index]
	if !s.active || s.gen != h.gen {
		return nil
	}
	return s
}
