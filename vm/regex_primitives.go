package vm

import (
	"regexp"
	"strings"
)

// Regex is a compiled regular expression together with the result of its
// last match.
type Regex struct {
	re      *regexp.Regexp
	pattern string
	subject string
	match   []int
}

// NewRegex compiles pattern. flags may contain i (case-insensitive), m
// (multi-line) and s (dot matches newline).
func NewRegex(pattern, flags string) (*Regex, error) {
	prefix := ""
	for _, f := range flags {
		switch f {
		case 'i', 'm', 's':
			if !strings.ContainsRune(prefix, f) {
				prefix += string(f)
			}
		default:
			return nil, NewError(RuntimeError, "invalid regex flag %q", f)
		}
	}
	expr := pattern
	if prefix != "" {
		expr = "(?" + prefix + ")" + pattern
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, WrapError(RuntimeError, err, "invalid regular expression %q", pattern)
	}
	return &Regex{re: re, pattern: pattern}, nil
}

func (r *Regex) Display(bool) string { return "<regex " + r.pattern + ">" }

func (r *Regex) Equal(other any) bool { return r.pattern == other.(*Regex).pattern }

// Match searches subject from the 1-based character position start.
func (r *Regex) Match(subject string, start int) bool {
	off := 0
	if start > 1 {
		off = charOffset(subject, start-1)
	}
	r.subject = subject
	loc := r.re.FindStringSubmatchIndex(subject[off:])
	if loc == nil {
		r.match = nil
		return false
	}
	for i := range loc {
		if loc[i] >= 0 {
			loc[i] += off
		}
	}
	r.match = loc
	return true
}

// Groups returns the number of capture groups in the last match.
func (r *Regex) Groups() int {
	if r.match == nil {
		return 0
	}
	return len(r.match)/2 - 1
}

func (r *Regex) group(i int64) (int, int) {
	if r.match == nil {
		Throwf(RuntimeError, "regex has no match")
	}
	if i < 0 || int(i) > r.Groups() {
		Throwf(IndexError, "invalid group index %d (the regex has %d groups)", i, r.Groups())
	}
	return r.match[2*i], r.match[2*i+1]
}

func (r *Regex) Field(name string) (Value, bool) {
	if name == "pattern" {
		return FromString(r.pattern), true
	}
	return Null, false
}

func (rt *Runtime) initRegex() {
	R, S, I := rt.RegexClass, rt.StringClass, rt.IntegerClass
	regex := func(v Value) *Regex { return v.Payload().(*Regex) }
	newRegex := func(rt *Runtime, pattern, flags string) Value {
		r, err := NewRegex(pattern, flags)
		if err != nil {
			e, _ := AsError(err)
			Throw(e)
		}
		return FromObject(rt.heap.alloc(rt.RegexClass, r))
	}

	rt.RegexClass.AddInitializer(func(rt *Runtime, args []Value) Value {
		return newRegex(rt, args[0].Str(), "")
	}, []*Class{S}, 0)
	rt.RegexClass.AddInitializer(func(rt *Runtime, args []Value) Value {
		return newRegex(rt, args[0].Str(), args[1].Str())
	}, []*Class{S, S}, 0)

	rt.AddGlobal("match", func(rt *Runtime, args []Value) Value {
		return FromBool(regex(args[0]).Match(args[1].Str(), 1))
	}, []*Class{R, S}, 0)
	rt.AddGlobal("match", func(rt *Runtime, args []Value) Value {
		return FromBool(regex(args[0]).Match(args[1].Str(), int(args[2].Int())))
	}, []*Class{R, S, I}, 0)
	rt.AddGlobal("has_match", func(rt *Runtime, args []Value) Value {
		return FromBool(regex(args[0]).match != nil)
	}, []*Class{R}, 0)
	rt.AddGlobal("count", func(rt *Runtime, args []Value) Value {
		return FromInt(int64(regex(args[0]).Groups()))
	}, []*Class{R}, 0)
	rt.AddGlobal("group", func(rt *Runtime, args []Value) Value {
		r := regex(args[0])
		from, to := r.group(args[1].Int())
		if from < 0 {
			return FromString("")
		}
		return FromString(r.subject[from:to])
	}, []*Class{R, I}, 0)
	rt.AddGlobal("get_start", func(rt *Runtime, args []Value) Value {
		r := regex(args[0])
		from, _ := r.group(args[1].Int())
		if from < 0 {
			return FromInt(0)
		}
		return FromInt(int64(charIndex(r.subject, from)))
	}, []*Class{R, I}, 0)
	rt.AddGlobal("get_end", func(rt *Runtime, args []Value) Value {
		r := regex(args[0])
		_, to := r.group(args[1].Int())
		if to < 0 {
			return FromInt(0)
		}
		// Inclusive position of the last character of the group.
		return FromInt(int64(charIndex(r.subject, to) - 1))
	}, []*Class{R, I}, 0)
}
