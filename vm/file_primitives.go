package vm

import (
	"bufio"
	"io"
	"os"
	"strings"
)

// File is an open file handle. Files are not collectable: they cannot
// hold other values.
type File struct {
	path   string
	mode   string
	f      *os.File
	reader *bufio.Reader
	closed bool
}

// OpenFile opens path. mode is "r" (read), "w" (truncate and write) or "a"
// (append).
func OpenFile(path, mode string) (*File, error) {
	var flags int
	switch mode {
	case "r":
		flags = os.O_RDONLY
	case "w":
		flags = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	case "a":
		flags = os.O_WRONLY | os.O_CREATE | os.O_APPEND
	default:
		return nil, NewError(IOError, "invalid file mode %q", mode)
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, WrapError(IOError, err, "cannot open file %q", path)
	}
	file := &File{path: path, mode: mode, f: f}
	if mode == "r" {
		file.reader = bufio.NewReader(f)
	}
	return file, nil
}

func (f *File) Display(bool) string { return "<file " + f.path + ">" }

func (f *File) Field(name string) (Value, bool) {
	switch name {
	case "path":
		return FromString(f.path), true
	case "mode":
		return FromString(f.mode), true
	}
	return Null, false
}

func (f *File) check(reading bool) {
	if f.closed {
		Throwf(IOError, "file %q is closed", f.path)
	}
	if reading && f.reader == nil {
		Throwf(IOError, "file %q is not open for reading", f.path)
	}
	if !reading && f.reader != nil {
		Throwf(IOError, "file %q is not open for writing", f.path)
	}
}

// ReadLine reads one line without its terminator. The boolean is false at
// end of file.
func (f *File) ReadLine() (string, bool) {
	f.check(true)
	line, err := f.reader.ReadString('\n')
	if err != nil && err != io.EOF {
		Throw(WrapError(IOError, err, "cannot read from %q", f.path))
	}
	if line == "" && err == io.EOF {
		return "", false
	}
	return strings.TrimRight(line, "\r\n"), true
}

// Write writes s.
func (f *File) Write(s string) {
	f.check(false)
	if _, err := f.f.WriteString(s); err != nil {
		Throw(WrapError(IOError, err, "cannot write to %q", f.path))
	}
}

// Close closes the file. Closing twice is allowed.
func (f *File) Close() {
	if f.closed {
		return
	}
	f.closed = true
	if err := f.f.Close(); err != nil {
		Throw(WrapError(IOError, err, "cannot close %q", f.path))
	}
}

func (f *File) seek(offset int64, whence int) int64 {
	f.check(f.reader != nil)
	pos, err := f.f.Seek(offset, whence)
	if err != nil {
		Throw(WrapError(IOError, err, "cannot seek in %q", f.path))
	}
	if f.reader != nil {
		f.reader.Reset(f.f)
	}
	return pos
}

func (f *File) tell() int64 {
	pos := f.seek(0, io.SeekCurrent)
	if f.reader != nil {
		pos -= int64(f.reader.Buffered())
	}
	return pos
}

func (rt *Runtime) initFile() {
	F, S, I, L := rt.FileClass, rt.StringClass, rt.IntegerClass, rt.ListClass
	file := func(v Value) *File { return v.Payload().(*File) }
	open := func(rt *Runtime, path, mode string) Value {
		f, err := OpenFile(path, mode)
		if err != nil {
			e, _ := AsError(err)
			Throw(e)
		}
		return FromObject(rt.heap.alloc(rt.FileClass, f))
	}

	rt.AddGlobal("open", func(rt *Runtime, args []Value) Value {
		return open(rt, args[0].Str(), "r")
	}, []*Class{S}, 0)
	rt.AddGlobal("open", func(rt *Runtime, args []Value) Value {
		return open(rt, args[0].Str(), args[1].Str())
	}, []*Class{S, S}, 0)
	rt.AddGlobal("read_line", func(rt *Runtime, args []Value) Value {
		line, ok := file(args[0]).ReadLine()
		if !ok {
			return Null
		}
		return FromString(line)
	}, []*Class{F}, 0)
	rt.AddGlobal("read_lines", func(rt *Runtime, args []Value) Value {
		f := file(args[0])
		var lines []Value
		for {
			line, ok := f.ReadLine()
			if !ok {
				break
			}
			lines = append(lines, FromString(line))
		}
		return rt.NewList(lines)
	}, []*Class{F}, 0)
	rt.AddGlobal("read", func(rt *Runtime, args []Value) Value {
		f := file(args[0])
		f.check(true)
		data, err := io.ReadAll(f.reader)
		if err != nil {
			Throw(WrapError(IOError, err, "cannot read from %q", f.path))
		}
		return FromString(string(data))
	}, []*Class{F}, 0)
	rt.AddGlobal("read_file", func(rt *Runtime, args []Value) Value {
		data, err := os.ReadFile(args[0].Str())
		if err != nil {
			Throw(WrapError(IOError, err, "cannot read file %q", args[0].Str()))
		}
		return FromString(string(data))
	}, []*Class{S}, 0)
	rt.AddGlobal("write", func(rt *Runtime, args []Value) Value {
		file(args[0]).Write(Display(args[1], false))
		return Null
	}, []*Class{F, rt.ObjectClass}, 0)
	rt.AddGlobal("write_line", func(rt *Runtime, args []Value) Value {
		file(args[0]).Write(Display(args[1], false) + "\n")
		return Null
	}, []*Class{F, rt.ObjectClass}, 0)
	rt.AddGlobal("write_lines", func(rt *Runtime, args []Value) Value {
		f := file(args[0])
		for _, v := range listArg(args[1]).items {
			f.Write(Display(v, false) + "\n")
		}
		return Null
	}, []*Class{F, L}, 0)
	rt.AddGlobal("close", func(rt *Runtime, args []Value) Value {
		file(args[0]).Close()
		return Null
	}, []*Class{F}, 0)
	rt.AddGlobal("rewind", func(rt *Runtime, args []Value) Value {
		file(args[0]).seek(0, io.SeekStart)
		return Null
	}, []*Class{F}, 0)
	rt.AddGlobal("tell", func(rt *Runtime, args []Value) Value {
		return FromInt(file(args[0]).tell())
	}, []*Class{F}, 0)
	rt.AddGlobal("seek", func(rt *Runtime, args []Value) Value {
		file(args[0]).seek(args[1].Int(), io.SeekStart)
		return Null
	}, []*Class{F, I}, 0)
	rt.AddGlobal("eof", func(rt *Runtime, args []Value) Value {
		f := file(args[0])
		f.check(true)
		_, err := f.reader.Peek(1)
		return FromBool(err == io.EOF)
	}, []*Class{F}, 0)
}
