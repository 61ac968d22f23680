package dist

import (
	"slices"

	"github.com/zeebo/xxh3"

	"github.com/chazu/phon/vm"
)

// capabilities maps the builtins that reach outside the interpreter to
// the capability a chunk using them requires.
var capabilities = map[string]string{
	"open":                  "file",
	"read_file":             "file",
	"exists":                "file",
	"is_file":               "file",
	"is_directory":          "file",
	"list_directory":        "file",
	"create_directory":      "file",
	"remove_directory":      "file",
	"clear_directory":       "file",
	"remove_file":           "file",
	"remove_path":           "file",
	"rename":                "file",
	"get_full_path":         "file",
	"get_temp_name":         "file",
	"get_current_directory": "file",
	"set_current_directory": "file",
	"get_user_directory":    "file",
	"get_temp_directory":    "file",
	"import":                "import",
	"random":                "random",
	"shuffle":               "random",
	"sample":                "random",
}

// HashSource returns the hash recorded in chunks built from source.
func HashSource(source string) uint64 {
	return xxh3.HashString(source)
}

// FromRoutine creates a Chunk for a routine compiled from source.
func FromRoutine(r *vm.Routine, name, source string) *Chunk {
	return &Chunk{
		Version:      Version,
		Name:         name,
		SourceHash:   HashSource(source),
		Debug:        r.Debug,
		Routine:      r,
		Capabilities: RequiredCapabilities(r),
	}
}

// Globals returns the sorted names of the globals read by r or any
// routine nested in it.
func Globals(r *vm.Routine) []string {
	seen := make(map[string]bool)
	r.Walk(func(r *vm.Routine) {
		br := vm.NewBytecodeReader(r.Code)
		for br.HasMore() {
			op := br.ReadOpcode()
			switch op {
			case vm.OpGetGlobal, vm.OpGetGlobalRef, vm.OpGetUniqueGlobal:
				seen[r.Strings[br.ReadUint16()]] = true
			case vm.OpGetGlobalArg:
				seen[r.Strings[br.ReadUint16()]] = true
				br.ReadByte()
			default:
				br.Skip(op.OperandBytes())
			}
		}
	})
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// RequiredCapabilities returns the sorted capabilities r needs.
func RequiredCapabilities(r *vm.Routine) []string {
	return requiredBy(Globals(r))
}

func requiredBy(globals []string) []string {
	var caps []string
	for _, name := range globals {
		if c, ok := capabilities[name]; ok && !slices.Contains(caps, c) {
			caps = append(caps, c)
		}
	}
	slices.Sort(caps)
	return caps
}

// BuildManifest gathers the capabilities the code of all chunks needs.
func BuildManifest(chunks ...*Chunk) *Manifest {
	var caps []string
	for _, c := range chunks {
		if c.Routine == nil {
			continue
		}
		for _, cap := range RequiredCapabilities(c.Routine) {
			if !slices.Contains(caps, cap) {
				caps = append(caps, cap)
			}
		}
	}
	if len(caps) == 0 {
		return nil
	}
	slices.Sort(caps)
	return &Manifest{Required: caps}
}
