// Package slotmap provides a generational slot store.
//
// Every insert returns a Key made of a slot index and a generation. Removing
// an element bumps the generation of its slot, so keys handed out before the
// removal stop resolving even after the slot has been reused.
package slotmap

// Key identifies an element in a Map. The zero Key never resolves.
type Key struct {
	Index uint32
	Gen   uint32
}

// IsZero reports whether k is the zero key.
func (k Key) IsZero() bool { return k.Gen == 0 }

type slot[T any] struct {
	gen   uint32 // odd while occupied
	value T
}

// Map is a generational slot store. The zero value is ready to use.
//
// Map is not safe for concurrent use.
type Map[T any] struct {
	slots []slot[T]
	free  []uint32
	len   int
}

// Insert stores v and returns its key.
func (m *Map[T]) Insert(v T) Key {
	var idx uint32
	if n := len(m.free); n > 0 {
		idx = m.free[n-1]
		m.free = m.free[:n-1]
	} else {
		idx = uint32(len(m.slots))
		m.slots = append(m.slots, slot[T]{})
	}
	s := &m.slots[idx]
	s.gen++
	s.value = v
	m.len++
	return Key{Index: idx, Gen: s.gen}
}

// Get returns the value stored under k.
func (m *Map[T]) Get(k Key) (T, bool) {
	if !m.Contains(k) {
		var zero T
		return zero, false
	}
	return m.slots[k.Index].value, true
}

// Contains reports whether k resolves to a live element.
func (m *Map[T]) Contains(k Key) bool {
	if k.Gen == 0 || int(k.Index) >= len(m.slots) {
		return false
	}
	s := &m.slots[k.Index]
	return s.gen == k.Gen && s.gen&1 == 1
}

// Remove deletes the element under k and returns it.
func (m *Map[T]) Remove(k Key) (T, bool) {
	var zero T
	if !m.Contains(k) {
		return zero, false
	}
	s := &m.slots[k.Index]
	v := s.value
	s.value = zero
	s.gen++
	m.free = append(m.free, k.Index)
	m.len--
	return v, true
}

// Len returns the number of live elements.
func (m *Map[T]) Len() int { return m.len }

// Range calls fn for every live element in slot order until fn returns false.
func (m *Map[T]) Range(fn func(Key, T) bool) {
	for i := range m.slots {
		s := &m.slots[i]
		if s.gen&1 == 0 {
			continue
		}
		if !fn(Key{Index: uint32(i), Gen: s.gen}, s.value) {
			return
		}
	}
}
