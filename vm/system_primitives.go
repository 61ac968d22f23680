package vm

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// ---------------------------------------------------------------------------
// System
// ---------------------------------------------------------------------------

func ioFail(err error, format string, args ...any) {
	Throw(WrapError(IOError, err, format, args...))
}

func osName() string {
	switch runtime.GOOS {
	case "windows", "linux":
		return runtime.GOOS
	case "darwin":
		return "macos"
	}
	return "generic"
}

// splitExtension splits path into the part before its extension and the
// extension itself, dot included.
func splitExtension(path string) (string, string) {
	ext := filepath.Ext(path)
	return path[:len(path)-len(ext)], ext
}

// listDirectory returns the sorted entry names of dir. Dot files are left
// out unless hidden is set.
func listDirectory(dir string, hidden bool) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		ioFail(err, "cannot list directory %q", dir)
	}
	var names []string
	for _, e := range entries {
		if hidden || !strings.HasPrefix(e.Name(), ".") {
			names = append(names, e.Name())
		}
	}
	return names
}

func (rt *Runtime) initSystem() {
	S, B := rt.StringClass, rt.BooleanClass
	str := func(v Value) string { return v.Resolve().Str() }
	path := func(name string, fn func(string) Value) {
		rt.AddGlobal(name, func(rt *Runtime, args []Value) Value {
			return fn(str(args[0]))
		}, []*Class{S}, 0)
	}
	stat := func(p string) os.FileInfo {
		info, err := os.Stat(p)
		if err != nil {
			return nil
		}
		return info
	}

	// Paths
	path("get_base_name", func(p string) Value { return FromString(filepath.Base(p)) })
	path("get_directory", func(p string) Value { return FromString(filepath.Dir(p)) })
	path("get_extension", func(p string) Value {
		_, ext := splitExtension(p)
		return FromString(ext)
	})
	rt.AddGlobal("get_extension", func(rt *Runtime, args []Value) Value {
		_, ext := splitExtension(str(args[0]))
		if args[1].Truthy() {
			ext = strings.ToLower(ext)
		}
		return FromString(ext)
	}, []*Class{S, B}, 0)
	path("strip_extension", func(p string) Value {
		stem, _ := splitExtension(p)
		return FromString(stem)
	})
	rt.AddGlobal("split_extension", func(rt *Runtime, args []Value) Value {
		stem, ext := splitExtension(str(args[0]))
		return rt.NewList([]Value{FromString(stem), FromString(ext)})
	}, []*Class{S}, 0)
	rt.AddGlobal("join_path", func(rt *Runtime, args []Value) Value {
		return FromString(filepath.Join(str(args[0]), str(args[1])))
	}, []*Class{S, S}, 0)
	path("get_full_path", func(p string) Value {
		abs, err := filepath.Abs(p)
		if err != nil {
			ioFail(err, "cannot resolve %q", p)
		}
		return FromString(abs)
	})
	rt.AddGlobal("get_path_separator", func(rt *Runtime, args []Value) Value {
		return FromString(string(filepath.Separator))
	}, nil, 0)
	rt.AddGlobal("get_os_name", func(rt *Runtime, args []Value) Value {
		return FromString(osName())
	}, nil, 0)

	// Well-known directories
	rt.AddGlobal("get_user_directory", func(rt *Runtime, args []Value) Value {
		home, err := os.UserHomeDir()
		if err != nil {
			ioFail(err, "cannot find the user directory")
		}
		return FromString(home)
	}, nil, 0)
	rt.AddGlobal("get_current_directory", func(rt *Runtime, args []Value) Value {
		wd, err := os.Getwd()
		if err != nil {
			ioFail(err, "cannot get the current directory")
		}
		return FromString(wd)
	}, nil, 0)
	path("set_current_directory", func(p string) Value {
		if err := os.Chdir(p); err != nil {
			ioFail(err, "cannot change directory")
		}
		return Null
	})
	rt.AddGlobal("get_temp_directory", func(rt *Runtime, args []Value) Value {
		return FromString(os.TempDir())
	}, nil, 0)
	rt.AddGlobal("get_temp_name", func(rt *Runtime, args []Value) Value {
		return FromString(filepath.Join(os.TempDir(), fmt.Sprintf("phon-%016x", rt.random.Uint64())))
	}, nil, 0)

	// Queries
	path("exists", func(p string) Value { return FromBool(stat(p) != nil) })
	path("is_file", func(p string) Value {
		info := stat(p)
		return FromBool(info != nil && info.Mode().IsRegular())
	})
	path("is_directory", func(p string) Value {
		info := stat(p)
		return FromBool(info != nil && info.IsDir())
	})
	listing := func(dir string, hidden bool) Value {
		names := listDirectory(dir, hidden)
		values := make([]Value, len(names))
		for i, n := range names {
			values[i] = FromString(n)
		}
		return rt.NewList(values)
	}
	path("list_directory", func(p string) Value { return listing(p, false) })
	rt.AddGlobal("list_directory", func(rt *Runtime, args []Value) Value {
		return listing(str(args[0]), args[1].Truthy())
	}, []*Class{S, B}, 0)

	// Changes
	path("create_directory", func(p string) Value {
		if err := os.MkdirAll(p, 0o755); err != nil {
			ioFail(err, "cannot create directory")
		}
		return Null
	})
	removeDirectory := func(p string, recursive bool) Value {
		if info := stat(p); info == nil || !info.IsDir() {
			Throwf(IOError, "%q is not a directory", p)
		}
		remove := os.Remove
		if recursive {
			remove = os.RemoveAll
		}
		if err := remove(p); err != nil {
			ioFail(err, "cannot remove directory")
		}
		return Null
	}
	path("remove_directory", func(p string) Value { return removeDirectory(p, false) })
	rt.AddGlobal("remove_directory", func(rt *Runtime, args []Value) Value {
		return removeDirectory(str(args[0]), args[1].Truthy())
	}, []*Class{S, B}, 0)
	path("clear_directory", func(p string) Value {
		for _, name := range listDirectory(p, true) {
			if err := os.RemoveAll(filepath.Join(p, name)); err != nil {
				ioFail(err, "cannot clear directory")
			}
		}
		return Null
	})
	path("remove_file", func(p string) Value {
		if info := stat(p); info != nil && info.IsDir() {
			Throwf(IOError, "%q is a directory", p)
		}
		if err := os.Remove(p); err != nil {
			ioFail(err, "cannot remove file")
		}
		return Null
	})
	path("remove_path", func(p string) Value {
		if err := os.RemoveAll(p); err != nil {
			ioFail(err, "cannot remove path")
		}
		return Null
	})
	rt.AddGlobal("rename", func(rt *Runtime, args []Value) Value {
		if err := os.Rename(str(args[0]), str(args[1])); err != nil {
			ioFail(err, "cannot rename %q", str(args[0]))
		}
		return Null
	}, []*Class{S, S}, 0)

	rt.AddGlobal("getenv", func(rt *Runtime, args []Value) Value {
		return FromString(os.Getenv(str(args[0])))
	}, []*Class{S}, 0)
	start := time.Now()
	rt.AddGlobal("clock", func(rt *Runtime, args []Value) Value {
		return FromFloat(time.Since(start).Seconds())
	}, nil, 0)
}
