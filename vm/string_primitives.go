package vm

import (
	"slices"
	"strings"

	"github.com/rivo/uniseg"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// ---------------------------------------------------------------------------
// Grapheme helpers. String positions are 1-based and count user-perceived
// characters (grapheme clusters), not bytes.
// ---------------------------------------------------------------------------

func graphemes(s string) []string {
	var out []string
	g := uniseg.NewGraphemes(s)
	for g.Next() {
		out = append(out, g.Str())
	}
	return out
}

// StringLength returns the number of characters in s.
func StringLength(s string) int {
	return uniseg.GraphemeClusterCount(s)
}

// charOffset returns the byte offset of the 0-based character pos.
func charOffset(s string, pos int) int {
	if pos <= 0 {
		return 0
	}
	g := uniseg.NewGraphemes(s)
	n := 0
	for g.Next() {
		if n == pos {
			from, _ := g.Positions()
			return from
		}
		n++
	}
	return len(s)
}

// charIndex returns the 1-based character index of byte offset off.
func charIndex(s string, off int) int {
	return uniseg.GraphemeClusterCount(s[:off]) + 1
}

func stringGetItem(s string, keys []Value) Value {
	if len(keys) != 1 || !keys[0].Resolve().IsInt() {
		Throwf(IndexError, "string index must be a single Integer")
	}
	clusters := graphemes(s)
	return FromString(clusters[normIndex(keys[0].Resolve().Int(), len(clusters))])
}

// setStringRef writes a new string through a by-reference argument and
// returns it.
func setStringRef(ref Value, s string) Value {
	v := FromString(s)
	if a := ref.Alias(); a != nil {
		a.Set(v)
	}
	return v
}

var (
	upperCaser = cases.Upper(language.Und)
	lowerCaser = cases.Lower(language.Und)
)

// ---------------------------------------------------------------------------
// String library
// ---------------------------------------------------------------------------

func (rt *Runtime) initString() {
	S, I := rt.StringClass, rt.IntegerClass
	str := func(v Value) string { return v.Resolve().Str() }
	ref := ByRef(0)

	rt.AddGlobal("contains", func(rt *Runtime, args []Value) Value {
		return FromBool(strings.Contains(str(args[0]), str(args[1])))
	}, []*Class{S, S}, 0)
	rt.AddGlobal("starts_with", func(rt *Runtime, args []Value) Value {
		return FromBool(strings.HasPrefix(str(args[0]), str(args[1])))
	}, []*Class{S, S}, 0)
	rt.AddGlobal("ends_with", func(rt *Runtime, args []Value) Value {
		return FromBool(strings.HasSuffix(str(args[0]), str(args[1])))
	}, []*Class{S, S}, 0)
	rt.AddGlobal("is_empty", func(rt *Runtime, args []Value) Value {
		return FromBool(str(args[0]) == "")
	}, []*Class{S}, 0)

	find := func(s, sub string, start int64) Value {
		n := StringLength(s)
		if n == 0 {
			return FromInt(0)
		}
		off := charOffset(s, normIndex(start, n))
		i := strings.Index(s[off:], sub)
		if i < 0 {
			return FromInt(0)
		}
		return FromInt(int64(charIndex(s, off+i)))
	}
	findBack := func(s, sub string, start int64) Value {
		n := StringLength(s)
		if n == 0 {
			return FromInt(0)
		}
		end := charOffset(s, normIndex(start, n)+1)
		end = min(len(s), end+len(sub)-1)
		i := strings.LastIndex(s[:end], sub)
		if i < 0 {
			return FromInt(0)
		}
		return FromInt(int64(charIndex(s, i)))
	}
	rt.AddGlobal("find", func(rt *Runtime, args []Value) Value {
		return find(str(args[0]), str(args[1]), 1)
	}, []*Class{S, S}, 0)
	rt.AddGlobal("find", func(rt *Runtime, args []Value) Value {
		return find(str(args[0]), str(args[1]), args[2].Int())
	}, []*Class{S, S, I}, 0)
	rt.AddGlobal("find_back", func(rt *Runtime, args []Value) Value {
		return findBack(str(args[0]), str(args[1]), -1)
	}, []*Class{S, S}, 0)
	rt.AddGlobal("find_back", func(rt *Runtime, args []Value) Value {
		return findBack(str(args[0]), str(args[1]), args[2].Int())
	}, []*Class{S, S, I}, 0)

	rt.AddGlobal("left", func(rt *Runtime, args []Value) Value {
		s := str(args[0])
		n := clampCount(args[1].Int(), StringLength(s))
		return FromString(s[:charOffset(s, n)])
	}, []*Class{S, I}, 0)
	rt.AddGlobal("right", func(rt *Runtime, args []Value) Value {
		s := str(args[0])
		total := StringLength(s)
		n := clampCount(args[1].Int(), total)
		return FromString(s[charOffset(s, total-n):])
	}, []*Class{S, I}, 0)
	rt.AddGlobal("slice", func(rt *Runtime, args []Value) Value {
		s := str(args[0])
		from, to := sliceBounds(args[1].Int(), args[2].Int(), StringLength(s))
		return FromString(s[charOffset(s, from):charOffset(s, to)])
	}, []*Class{S, I, I}, 0)
	rt.AddGlobal("char", func(rt *Runtime, args []Value) Value {
		return stringGetItem(str(args[0]), args[1:2])
	}, []*Class{S, I}, 0)
	rt.AddGlobal("count", func(rt *Runtime, args []Value) Value {
		return FromInt(int64(strings.Count(str(args[0]), str(args[1]))))
	}, []*Class{S, S}, 0)
	rt.AddGlobal("to_upper", func(rt *Runtime, args []Value) Value {
		return FromString(upperCaser.String(str(args[0])))
	}, []*Class{S}, 0)
	rt.AddGlobal("to_lower", func(rt *Runtime, args []Value) Value {
		return FromString(lowerCaser.String(str(args[0])))
	}, []*Class{S}, 0)
	rt.AddGlobal("split", func(rt *Runtime, args []Value) Value {
		parts := strings.Split(str(args[0]), str(args[1]))
		values := make([]Value, len(parts))
		for i, p := range parts {
			values[i] = FromString(p)
		}
		return rt.NewList(values)
	}, []*Class{S, S}, 0)
	rt.AddGlobal("trim", func(rt *Runtime, args []Value) Value {
		return FromString(strings.TrimSpace(str(args[0])))
	}, []*Class{S}, 0)
	rt.AddGlobal("ltrim", func(rt *Runtime, args []Value) Value {
		return FromString(strings.TrimLeft(str(args[0]), " \t\r\n\v\f"))
	}, []*Class{S}, 0)
	rt.AddGlobal("rtrim", func(rt *Runtime, args []Value) Value {
		return FromString(strings.TrimRight(str(args[0]), " \t\r\n\v\f"))
	}, []*Class{S}, 0)

	// Mutators take the string by reference, update the variable and
	// return the new value.
	rt.AddGlobal("reverse", func(rt *Runtime, args []Value) Value {
		clusters := graphemes(str(args[0]))
		slices.Reverse(clusters)
		return setStringRef(args[0], strings.Join(clusters, ""))
	}, []*Class{S}, ref)
	rt.AddGlobal("append", func(rt *Runtime, args []Value) Value {
		return setStringRef(args[0], str(args[0])+str(args[1]))
	}, []*Class{S, S}, ref)
	rt.AddGlobal("prepend", func(rt *Runtime, args []Value) Value {
		return setStringRef(args[0], str(args[1])+str(args[0]))
	}, []*Class{S, S}, ref)
	rt.AddGlobal("insert", func(rt *Runtime, args []Value) Value {
		s := str(args[0])
		n := StringLength(s)
		pos := args[1].Int()
		var off int
		if pos == int64(n)+1 {
			off = len(s)
		} else {
			off = charOffset(s, normIndex(pos, n))
		}
		return setStringRef(args[0], s[:off]+str(args[2])+s[off:])
	}, []*Class{S, I, S}, ref)
	rt.AddGlobal("remove", func(rt *Runtime, args []Value) Value {
		return setStringRef(args[0], strings.ReplaceAll(str(args[0]), str(args[1]), ""))
	}, []*Class{S, S}, ref)
	rt.AddGlobal("remove_first", func(rt *Runtime, args []Value) Value {
		return setStringRef(args[0], strings.Replace(str(args[0]), str(args[1]), "", 1))
	}, []*Class{S, S}, ref)
	rt.AddGlobal("remove_last", func(rt *Runtime, args []Value) Value {
		return setStringRef(args[0], replaceLast(str(args[0]), str(args[1]), ""))
	}, []*Class{S, S}, ref)
	removeAt := func(args []Value, count int64) Value {
		s := str(args[0])
		n := StringLength(s)
		start := normIndex(args[1].Int(), n)
		end := start + clampCount(count, n-start)
		return setStringRef(args[0], s[:charOffset(s, start)]+s[charOffset(s, end):])
	}
	rt.AddGlobal("remove_at", func(rt *Runtime, args []Value) Value {
		return removeAt(args, 1)
	}, []*Class{S, I}, ref)
	rt.AddGlobal("remove_at", func(rt *Runtime, args []Value) Value {
		return removeAt(args, args[2].Int())
	}, []*Class{S, I, I}, ref)
	rt.AddGlobal("replace_at", func(rt *Runtime, args []Value) Value {
		s := str(args[0])
		n := StringLength(s)
		start := normIndex(args[1].Int(), n)
		end := start + clampCount(args[2].Int(), n-start)
		return setStringRef(args[0], s[:charOffset(s, start)]+str(args[3])+s[charOffset(s, end):])
	}, []*Class{S, I, I, S}, ref)
	rt.AddGlobal("replace", func(rt *Runtime, args []Value) Value {
		return setStringRef(args[0], strings.ReplaceAll(str(args[0]), str(args[1]), str(args[2])))
	}, []*Class{S, S, S}, ref)
	rt.AddGlobal("replace_first", func(rt *Runtime, args []Value) Value {
		return setStringRef(args[0], strings.Replace(str(args[0]), str(args[1]), str(args[2]), 1))
	}, []*Class{S, S, S}, ref)
	rt.AddGlobal("replace_last", func(rt *Runtime, args []Value) Value {
		return setStringRef(args[0], replaceLast(str(args[0]), str(args[1]), str(args[2])))
	}, []*Class{S, S, S}, ref)
}

func replaceLast(s, old, repl string) string {
	i := strings.LastIndex(s, old)
	if i < 0 || old == "" {
		return s
	}
	return s[:i] + repl + s[i+len(old):]
}
