package hashmap

import (
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intHash(k int) uint64 { return uint64(k) * 0x9E3779B97F4A7C15 }

// constHash forces every key into the same bucket.
func constHash(int) uint64 { return 42 }

func TestInsertFindErase(t *testing.T) {
	m := NewString[int]()
	assert.True(t, m.IsEmpty())
	assert.True(t, m.Insert("one", 1))
	assert.True(t, m.Insert("two", 2))
	assert.False(t, m.Insert("one", 10), "replacing must not count as new")
	assert.Equal(t, 2, m.Len())

	v, ok := m.Find("one")
	require.True(t, ok)
	assert.Equal(t, 10, v)

	_, ok = m.Find("three")
	assert.False(t, ok)

	assert.True(t, m.Erase("one"))
	assert.False(t, m.Erase("one"))
	assert.Equal(t, 1, m.Len())
	assert.False(t, m.Contains("one"))
	assert.Equal(t, 2, m.Get("two"))
}

func TestInitialCapacityAndGrowth(t *testing.T) {
	m := NewComparable[int, int](intHash)
	assert.Equal(t, 0, m.Cap())
	m.Insert(1, 1)
	assert.Equal(t, InitialCapacity, m.Cap())

	for i := 2; i <= 5; i++ {
		m.Insert(i, i)
	}
	assert.Equal(t, InitialCapacity, m.Cap(), "5 of 8 slots is under the load factor")
	m.Insert(6, 6)
	assert.Equal(t, 2*InitialCapacity, m.Cap())
	for i := 1; i <= 6; i++ {
		assert.Equal(t, i, m.Get(i))
	}
}

func TestZeroHashIsRemapped(t *testing.T) {
	m := NewComparable[int, string](func(int) uint64 { return 0 })
	m.Insert(1, "a")
	m.Insert(2, "b")
	assert.Equal(t, "a", m.Get(1))
	assert.Equal(t, "b", m.Get(2))
	assert.Equal(t, 2, m.Len())
}

func TestCollidingKeysBackwardShift(t *testing.T) {
	m := NewComparable[int, int](constHash)
	for i := 0; i < 5; i++ {
		m.Insert(i, i*i)
	}
	require.Equal(t, 4, m.MaxProbe())

	require.True(t, m.Erase(0))
	assert.Equal(t, 3, m.MaxProbe())
	for i := 1; i < 5; i++ {
		v, ok := m.Find(i)
		require.True(t, ok, "key %d lost after erase", i)
		assert.Equal(t, i*i, v)
	}
}

func TestLookupInsertsZero(t *testing.T) {
	m := NewString[int]()
	*m.Lookup("hits") += 3
	*m.Lookup("hits") += 4
	assert.Equal(t, 7, m.Get("hits"))
	assert.Equal(t, 1, m.Len())
}

func TestClone(t *testing.T) {
	m := NewString[int]()
	m.Insert("a", 1)
	c := m.Clone()
	c.Insert("b", 2)
	c.Insert("a", 5)
	assert.Equal(t, 1, m.Len())
	assert.Equal(t, 1, m.Get("a"))
	assert.Equal(t, 5, c.Get("a"))
}

func TestIteration(t *testing.T) {
	m := NewComparable[int, int](intHash)
	want := map[int]int{}
	for i := 0; i < 100; i++ {
		m.Insert(i, -i)
		want[i] = -i
	}
	got := map[int]int{}
	for k, v := range m.All() {
		got[k] = v
	}
	assert.Equal(t, want, got)

	count := 0
	for i := m.Next(0); i >= 0; i = m.Next(i + 1) {
		k, v := m.At(i)
		assert.Equal(t, -k, v)
		count++
	}
	assert.Equal(t, 100, count)
}

func TestNextPastTheEnd(t *testing.T) {
	m := NewComparable[int, int](intHash)
	assert.Equal(t, -1, m.Next(0))

	m.Insert(7, 7)
	i := m.Next(-5)
	require.GreaterOrEqual(t, i, 0)
	k, _ := m.At(i)
	assert.Equal(t, 7, k)
	assert.Equal(t, -1, m.Next(i+1))
	assert.Equal(t, -1, m.Next(m.Cap()))
}

func TestLoadFactorOption(t *testing.T) {
	m := NewComparable[int, int](intHash, WithLoadFactor(50))
	for i := 0; i < 4; i++ {
		m.Insert(i, i)
	}
	assert.Equal(t, 8, m.Cap())
	m.Insert(4, 4)
	assert.Equal(t, 16, m.Cap())
}

func TestReserve(t *testing.T) {
	m := NewString[bool](WithCapacity(100))
	capacity := m.Cap()
	for i := 0; i < 100; i++ {
		m.Insert(fmt.Sprint(i), true)
	}
	assert.Equal(t, capacity, m.Cap())
}

// TestRandomOperations checks the table against a Go map over random
// insert/erase sequences, including the backward-shift invariant that an
// erase never increases any probe distance.
func TestRandomOperations(t *testing.T) {
	for _, hash := range []struct {
		name string
		fn   func(int) uint64
	}{
		{"spread", intHash},
		{"clustered", func(k int) uint64 { return uint64(k % 7) }},
	} {
		t.Run(hash.name, func(t *testing.T) {
			r := rand.New(rand.NewPCG(1, 2))
			m := NewComparable[int, int](hash.fn)
			ref := map[int]int{}

			for step := 0; step < 5000; step++ {
				k := r.IntN(300)
				if r.IntN(3) == 0 {
					before := m.MaxProbe()
					_, present := ref[k]
					assert.Equal(t, present, m.Erase(k))
					delete(ref, k)
					require.LessOrEqual(t, m.MaxProbe(), before, "step %d", step)
				} else {
					v := r.Int()
					_, present := ref[k]
					assert.Equal(t, !present, m.Insert(k, v))
					ref[k] = v
					got, ok := m.Find(k)
					require.True(t, ok)
					require.Equal(t, v, got)
				}
				require.Equal(t, len(ref), m.Len())
			}

			for k, v := range ref {
				got, ok := m.Find(k)
				require.True(t, ok)
				assert.Equal(t, v, got)
			}
		})
	}
}
