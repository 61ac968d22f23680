package vm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// selfCycle builds a closure whose captured variable holds the closure
// itself, the shape produced by a recursive local function.
func selfCycle(rt *Runtime) *Object {
	obj := rt.newFunction("self")
	up := newAlias(Null)
	up.refs = 1
	up.Set(FromObject(obj))
	fn := obj.data.(*Function)
	if err := fn.AddOverload(&Callable{Name: "self", Routine: &Routine{Name: "self"}, Upvalues: []*Alias{up}}); err != nil {
		panic(err)
	}
	return obj
}

func TestCollectSelfCycles(t *testing.T) {
	rt := New(WithGCThreshold(1 << 20))
	baseline := rt.CollectGarbage().Live

	for i := 0; i < 100; i++ {
		obj := selfCycle(rt)
		require.Equal(t, 1, obj.Refs())
		require.True(t, obj.Tracked())
	}
	assert.Equal(t, baseline+100, rt.Heap().Live())

	stats := rt.CollectGarbage()
	assert.Equal(t, 100, stats.Freed)
	assert.Equal(t, baseline, stats.Live)
	assert.Equal(t, baseline, rt.Heap().Live())
	assert.Equal(t, 2, stats.Cycles)
	assert.Contains(t, stats.String(), "100 object(s) freed")
}

func TestCollectKeepsReachableObjects(t *testing.T) {
	rt := New(WithGCThreshold(1 << 20))
	rt.CollectGarbage()
	kept := selfCycle(rt)
	rt.SetGlobal("keep", FromObject(kept))
	selfCycle(rt)

	stats := rt.CollectGarbage()
	assert.Equal(t, 1, stats.Freed)
	assert.True(t, kept.Tracked())
	assert.Equal(t, White, kept.Color(), "colors are reset after a cycle")

	v, ok := rt.Global("keep")
	require.True(t, ok)
	assert.Same(t, kept, v.Object())
}

func TestCollectListCycleThroughTable(t *testing.T) {
	rt := New(WithGCThreshold(1 << 20))
	baseline := rt.CollectGarbage().Live

	tbl := rt.NewTable()
	list := rt.NewList([]Value{tbl})
	tbl.Payload().(*Table).Put(FromString("owner"), list)
	assert.Equal(t, baseline+2, rt.Heap().Live())

	stats := rt.CollectGarbage()
	assert.Equal(t, 2, stats.Freed)
	assert.Equal(t, baseline, rt.Heap().Live())
}

func TestReleaseUntracksAcyclicGarbage(t *testing.T) {
	rt := New(WithGCThreshold(1 << 20))
	baseline := rt.CollectGarbage().Live
	list := rt.NewList(nil)
	obj := list.Object()
	obj.retain()
	obj.retain()
	obj.release()
	assert.True(t, obj.Tracked())
	obj.release()
	assert.False(t, obj.Tracked(), "an object nobody holds leaves the candidate list")
	assert.Equal(t, baseline, rt.Heap().Live())
}

func TestSuspendDefersCollection(t *testing.T) {
	rt := New(WithGCThreshold(4))
	rt.CollectGarbage()
	rt.SuspendGC()
	rt.SuspendGC()
	created := 0
	for rt.Heap().Live() < rt.Heap().Threshold() {
		selfCycle(rt)
		created++
	}
	assert.True(t, rt.Heap().Suspended())
	assert.False(t, rt.Heap().shouldCollect())
	rt.ResumeGC()
	assert.False(t, rt.Heap().shouldCollect(), "suspensions nest")
	rt.ResumeGC()
	assert.True(t, rt.Heap().shouldCollect())

	stats := rt.CollectGarbage()
	assert.Equal(t, created, stats.Freed)
	assert.GreaterOrEqual(t, stats.Threshold, 4)
}
