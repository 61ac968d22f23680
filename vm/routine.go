package vm

import "sort"

// ---------------------------------------------------------------------------
// Routine: an immutable compiled unit
// ---------------------------------------------------------------------------

// LineInfo maps the instruction at Offset, and those after it up to the
// next entry, to a source line.
type LineInfo struct {
	Offset int `cbor:"1,keyasint"`
	Line   int `cbor:"2,keyasint"`
}

// UpvalueInfo describes one captured variable: a local slot of the
// enclosing routine, or an upvalue of the enclosing closure.
type UpvalueInfo struct {
	Index   int  `cbor:"1,keyasint"`
	IsLocal bool `cbor:"2,keyasint"`
}

// Routine is the compiled form of a script or function body. It is built
// once by the compiler and shared read-only by every closure created from
// it.
type Routine struct {
	Name     string        `cbor:"1,keyasint"`
	File     string        `cbor:"2,keyasint,omitempty"`
	Code     []byte        `cbor:"3,keyasint"`
	Lines    []LineInfo    `cbor:"4,keyasint,omitempty"`
	Integers []int64       `cbor:"5,keyasint,omitempty"`
	Floats   []float64     `cbor:"6,keyasint,omitempty"`
	Strings  []string      `cbor:"7,keyasint,omitempty"`
	Routines []*Routine    `cbor:"8,keyasint,omitempty"`
	Params   int           `cbor:"9,keyasint"`
	Refs     RefMask       `cbor:"10,keyasint"`
	Locals   int           `cbor:"11,keyasint"`
	Upvalues []UpvalueInfo `cbor:"12,keyasint,omitempty"`
	Debug    bool          `cbor:"13,keyasint,omitempty"`
}

// LineAt returns the source line of the instruction at offset, or 0.
func (r *Routine) LineAt(offset int) int {
	i := sort.Search(len(r.Lines), func(i int) bool { return r.Lines[i].Offset > offset })
	if i == 0 {
		return 0
	}
	return r.Lines[i-1].Line
}

// Walk calls fn for r and every routine nested in it.
func (r *Routine) Walk(fn func(*Routine)) {
	fn(r)
	for _, nested := range r.Routines {
		nested.Walk(fn)
	}
}
