package vm

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/tliron/commonlog"
)

// ---------------------------------------------------------------------------
// Heap: tri-color collector for collectable objects
// ---------------------------------------------------------------------------

// DefaultGCThreshold is the number of tracked objects that triggers the
// first collection.
const DefaultGCThreshold = 1024

// GCStats describes one collection cycle.
type GCStats struct {
	Freed     int
	Live      int
	Threshold int
	Cycles    int
	Duration  time.Duration
}

func (s GCStats) String() string {
	return fmt.Sprintf("garbage collected: %s object(s) freed, %s live, next collection at %s (cycle %d, %s)",
		humanize.Comma(int64(s.Freed)), humanize.Comma(int64(s.Live)),
		humanize.Comma(int64(s.Threshold)), s.Cycles, s.Duration)
}

// Heap allocates objects and tracks the collectable ones on an intrusive
// candidate list. Non-collectable objects (strings, regexes, files) are
// never tracked: they cannot form cycles and the Go allocator reclaims
// them once unreachable.
type Heap struct {
	head      *Object
	count     int
	threshold int
	initial   int
	epoch     uint32
	suspended int
	pending   bool
	nextID    uint64

	cycles     int
	totalFreed int
	allocated  int

	log commonlog.Logger
}

func newHeap(threshold int) *Heap {
	if threshold <= 0 {
		threshold = DefaultGCThreshold
	}
	return &Heap{
		threshold: threshold,
		initial:   threshold,
		log:       commonlog.GetLogger("phon.gc"),
	}
}

// alloc creates an object. Collectable objects start tracked, white, with
// a share count of zero.
func (h *Heap) alloc(class *Class, data any) *Object {
	h.nextID++
	h.allocated++
	o := &Object{class: class, id: h.nextID, data: data, heap: h}
	if class != nil && class.Collectable() {
		h.track(o)
	}
	return o
}

func (h *Heap) track(o *Object) {
	o.tracked = true
	o.color = White
	o.prev = nil
	o.next = h.head
	if h.head != nil {
		h.head.prev = o
	}
	h.head = o
	h.count++
	if h.count >= h.threshold {
		h.pending = true
	}
}

func (h *Heap) untrack(o *Object) {
	if o.prev != nil {
		o.prev.next = o.next
	} else {
		h.head = o.next
	}
	if o.next != nil {
		o.next.prev = o.prev
	}
	o.prev, o.next = nil, nil
	o.tracked = false
	h.count--
}

// Live returns the number of tracked objects.
func (h *Heap) Live() int { return h.count }

// Threshold returns the tracked count that triggers the next collection.
func (h *Heap) Threshold() int { return h.threshold }

// Suspended reports whether collection is currently suspended.
func (h *Heap) Suspended() bool { return h.suspended > 0 }

func (h *Heap) suspend() { h.suspended++ }

func (h *Heap) resume() {
	if h.suspended > 0 {
		h.suspended--
	}
}

// shouldCollect reports whether a requested collection may run now.
func (h *Heap) shouldCollect() bool {
	return h.pending && h.suspended == 0
}

// collect runs a full mark and sweep. roots must visit every value the
// mutator can still reach directly.
func (h *Heap) collect(roots func(visit func(Value))) GCStats {
	start := time.Now()
	h.pending = false
	h.epoch++
	epoch := h.epoch

	for o := h.head; o != nil; o = o.next {
		o.color = White
	}

	// Mark: roots turn grey, scanning a grey object greys its children and
	// blackens it.
	var grey []*Object
	var markValue func(Value)
	markObject := func(o *Object) {
		if o == nil || o.epoch == epoch {
			return
		}
		o.epoch = epoch
		o.color = Grey
		grey = append(grey, o)
	}
	markValue = func(v Value) {
		switch v.kind {
		case KindObject:
			markObject(v.obj)
		case KindAlias:
			v.alias.traverse(markValue)
		}
	}
	roots(markValue)
	for len(grey) > 0 {
		o := grey[len(grey)-1]
		grey = grey[:len(grey)-1]
		if t, ok := o.data.(Traversable); ok {
			t.Traverse(markValue)
		}
		o.color = Black
	}

	// Sweep: unlink every white object first so that releases performed by
	// Destroy never touch a half-swept list.
	var dead []*Object
	for o := h.head; o != nil; o = o.next {
		if o.epoch != epoch {
			dead = append(dead, o)
		}
	}
	for _, o := range dead {
		h.untrack(o)
	}
	for _, o := range dead {
		if d, ok := o.data.(Destroyable); ok {
			d.Destroy()
		}
		o.refs = 0
	}
	for o := h.head; o != nil; o = o.next {
		o.color = White
	}

	h.cycles++
	h.totalFreed += len(dead)
	h.threshold = max(h.initial, 2*h.count)

	stats := GCStats{
		Freed:     len(dead),
		Live:      h.count,
		Threshold: h.threshold,
		Cycles:    h.cycles,
		Duration:  time.Since(start),
	}
	h.log.Debugf("%s", stats)
	return stats
}
