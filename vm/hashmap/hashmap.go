// Package hashmap implements an open-addressing hash table with
// Robin-Hood displacement and backward-shift deletion.
//
// The table stores {hash, key, value} nodes in a flat power-of-two array.
// A stored hash of 0 marks an empty slot, so hash functions returning 0
// are remapped to 1. Lookups stop early as soon as they reach a slot whose
// occupant is closer to its home bucket than the probe is, which is what
// keeps the average probe sequence short.
package hashmap

import (
	"iter"

	"github.com/zeebo/xxh3"
)

const (
	// InitialCapacity is the number of slots allocated on first insertion.
	InitialCapacity = 8

	// DefaultLoadFactor is the occupancy percentage that triggers growth.
	DefaultLoadFactor = 67

	empty uint64 = 0
)

type node[K, V any] struct {
	hash  uint64
	key   K
	value V
}

// Map is a Robin-Hood hash table from K to V.
//
// The zero value is not usable; create maps with New, NewComparable or
// NewString.
type Map[K, V any] struct {
	nodes      []node[K, V]
	size       int
	loadFactor int
	hash       func(K) uint64
	equal      func(a, b K) bool
}

// Option configures a Map at construction time.
type Option func(*options)

type options struct {
	loadFactor int
	capacity   int
}

// WithLoadFactor sets the occupancy percentage (1..99) above which the
// table doubles.
func WithLoadFactor(percent int) Option {
	return func(o *options) {
		if percent > 0 && percent < 100 {
			o.loadFactor = percent
		}
	}
}

// WithCapacity preallocates room for at least n entries.
func WithCapacity(n int) Option {
	return func(o *options) { o.capacity = n }
}

// New creates a map using the given hash and equality functions.
func New[K, V any](hash func(K) uint64, equal func(a, b K) bool, opts ...Option) *Map[K, V] {
	o := options{loadFactor: DefaultLoadFactor}
	for _, opt := range opts {
		opt(&o)
	}
	m := &Map[K, V]{
		loadFactor: o.loadFactor,
		hash:       hash,
		equal:      equal,
	}
	if o.capacity > 0 {
		m.rehash(m.capacityFor(o.capacity))
	}
	return m
}

// NewComparable creates a map for comparable keys, using == for equality.
func NewComparable[K comparable, V any](hash func(K) uint64, opts ...Option) *Map[K, V] {
	return New[K, V](hash, func(a, b K) bool { return a == b }, opts...)
}

// NewString creates a string-keyed map hashed with xxh3.
func NewString[V any](opts ...Option) *Map[string, V] {
	return NewComparable[string, V](xxh3.HashString, opts...)
}

// Len returns the number of live entries.
func (m *Map[K, V]) Len() int { return m.size }

// Cap returns the number of slots in the table.
func (m *Map[K, V]) Cap() int { return len(m.nodes) }

// IsEmpty reports whether the map has no entries.
func (m *Map[K, V]) IsEmpty() bool { return m.size == 0 }

func (m *Map[K, V]) hashOf(key K) uint64 {
	h := m.hash(key)
	if h == empty {
		h = 1
	}
	return h
}

func (m *Map[K, V]) mask() uint64 { return uint64(len(m.nodes) - 1) }

// probeDistance is how far slot pos is from the home bucket of hash h.
func (m *Map[K, V]) probeDistance(h uint64, pos int) int {
	mask := m.mask()
	return int((uint64(pos) + uint64(len(m.nodes)) - (h & mask)) & mask)
}

// find returns the slot holding key, or -1.
func (m *Map[K, V]) find(key K, h uint64) int {
	if m.size == 0 {
		return -1
	}
	mask := m.mask()
	pos := int(h & mask)
	for dist := 0; ; dist++ {
		n := &m.nodes[pos]
		if n.hash == empty || dist > m.probeDistance(n.hash, pos) {
			return -1
		}
		if n.hash == h && m.equal(n.key, key) {
			return pos
		}
		pos = int(uint64(pos+1) & mask)
	}
}

// Find looks up key. The boolean is false when the key is absent.
func (m *Map[K, V]) Find(key K) (V, bool) {
	if pos := m.find(key, m.hashOf(key)); pos >= 0 {
		return m.nodes[pos].value, true
	}
	var zero V
	return zero, false
}

// Contains reports whether key is present.
func (m *Map[K, V]) Contains(key K) bool {
	return m.find(key, m.hashOf(key)) >= 0
}

// Get returns the value for key, or the zero value.
func (m *Map[K, V]) Get(key K) V {
	v, _ := m.Find(key)
	return v
}

// Insert stores value under key. It returns true when the key was new and
// false when an existing value was replaced.
func (m *Map[K, V]) Insert(key K, value V) bool {
	h := m.hashOf(key)
	if pos := m.find(key, h); pos >= 0 {
		m.nodes[pos].value = value
		return false
	}
	m.ensureCapacity()
	m.place(node[K, V]{hash: h, key: key, value: value})
	m.size++
	return true
}

// Set is Insert without the result.
func (m *Map[K, V]) Set(key K, value V) { m.Insert(key, value) }

// Lookup returns a pointer to the value slot for key, inserting the zero
// value first when the key is missing. The pointer is only valid until the
// next insertion or erasure.
func (m *Map[K, V]) Lookup(key K) *V {
	h := m.hashOf(key)
	if pos := m.find(key, h); pos >= 0 {
		return &m.nodes[pos].value
	}
	m.ensureCapacity()
	var zero V
	pos := m.place(node[K, V]{hash: h, key: key, value: zero})
	m.size++
	return &m.nodes[pos].value
}

// place inserts n into the table, displacing richer occupants, and returns
// the slot where n itself landed.
func (m *Map[K, V]) place(n node[K, V]) int {
	mask := m.mask()
	pos := int(n.hash & mask)
	dist := 0
	landed := -1
	for {
		slot := &m.nodes[pos]
		if slot.hash == empty {
			*slot = n
			if landed < 0 {
				landed = pos
			}
			return landed
		}
		if existing := m.probeDistance(slot.hash, pos); existing < dist {
			n, *slot = *slot, n
			if landed < 0 {
				landed = pos
			}
			dist = existing
		}
		pos = int(uint64(pos+1) & mask)
		dist++
	}
}

// Erase removes key. It returns false when the key was absent.
func (m *Map[K, V]) Erase(key K) bool {
	pos := m.find(key, m.hashOf(key))
	if pos < 0 {
		return false
	}
	m.eraseAt(pos)
	return true
}

// eraseAt removes the entry in slot pos and shifts the following cluster
// back by one until an empty slot or an entry sitting in its home bucket.
func (m *Map[K, V]) eraseAt(pos int) {
	mask := m.mask()
	next := int(uint64(pos+1) & mask)
	for m.nodes[next].hash != empty && m.probeDistance(m.nodes[next].hash, next) != 0 {
		m.nodes[pos] = m.nodes[next]
		pos = next
		next = int(uint64(next+1) & mask)
	}
	m.nodes[pos] = node[K, V]{}
	m.size--
}

// Clear removes all entries but keeps the allocated table.
func (m *Map[K, V]) Clear() {
	clear(m.nodes)
	m.size = 0
}

// Clone returns an independent copy of the map. Keys and values are copied
// with plain assignment.
func (m *Map[K, V]) Clone() *Map[K, V] {
	c := &Map[K, V]{
		size:       m.size,
		loadFactor: m.loadFactor,
		hash:       m.hash,
		equal:      m.equal,
	}
	if m.nodes != nil {
		c.nodes = make([]node[K, V], len(m.nodes))
		copy(c.nodes, m.nodes)
	}
	return c
}

func (m *Map[K, V]) capacityFor(n int) int {
	capacity := InitialCapacity
	for n*100 > capacity*m.loadFactor {
		capacity *= 2
	}
	return capacity
}

func (m *Map[K, V]) ensureCapacity() {
	if len(m.nodes) == 0 {
		m.rehash(InitialCapacity)
		return
	}
	if (m.size+1)*100 > len(m.nodes)*m.loadFactor {
		m.rehash(len(m.nodes) * 2)
	}
}

// Reserve grows the table so that n entries fit without rehashing.
func (m *Map[K, V]) Reserve(n int) {
	if want := m.capacityFor(n); want > len(m.nodes) {
		m.rehash(want)
	}
}

func (m *Map[K, V]) rehash(capacity int) {
	old := m.nodes
	m.nodes = make([]node[K, V], capacity)
	for i := range old {
		if old[i].hash != empty {
			m.place(old[i])
		}
	}
}

// ---------------------------------------------------------------------------
// Stable-index iteration
// ---------------------------------------------------------------------------

// Next returns the first occupied slot index >= i, or -1 when there is none.
// Indexes stay valid as long as the map is not modified.
func (m *Map[K, V]) Next(i int) int {
	if i < 0 {
		i = 0
	}
	for ; i < len(m.nodes); i++ {
		if m.nodes[i].hash != empty {
			return i
		}
	}
	return -1
}

// At returns the entry stored in slot i. The slot must be occupied.
func (m *Map[K, V]) At(i int) (K, V) {
	n := &m.nodes[i]
	return n.key, n.value
}

// ValueAt returns a pointer to the value stored in slot i.
func (m *Map[K, V]) ValueAt(i int) *V {
	return &m.nodes[i].value
}

// All iterates over the entries in slot order.
func (m *Map[K, V]) All() iter.Seq2[K, V] {
	return func(yield func(K, V) bool) {
		for i := range m.nodes {
			if m.nodes[i].hash == empty {
				continue
			}
			if !yield(m.nodes[i].key, m.nodes[i].value) {
				return
			}
		}
	}
}

// Keys iterates over the keys in slot order.
func (m *Map[K, V]) Keys() iter.Seq[K] {
	return func(yield func(K) bool) {
		for k := range m.All() {
			if !yield(k) {
				return
			}
		}
	}
}

// ---------------------------------------------------------------------------
// Introspection
// ---------------------------------------------------------------------------

// ProbeDistance returns the displacement of the entry in slot i from its
// home bucket, or -1 for an empty slot.
func (m *Map[K, V]) ProbeDistance(i int) int {
	if i < 0 || i >= len(m.nodes) || m.nodes[i].hash == empty {
		return -1
	}
	return m.probeDistance(m.nodes[i].hash, i)
}

// MaxProbe returns the largest displacement of any live entry.
func (m *Map[K, V]) MaxProbe() int {
	longest := 0
	for i := range m.nodes {
		if d := m.ProbeDistance(i); d > longest {
			longest = d
		}
	}
	return longest
}
