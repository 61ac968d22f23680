package vm

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/chazu/phon/vm/hashmap"
)

// ---------------------------------------------------------------------------
// Module: a global namespace
// ---------------------------------------------------------------------------

// Module holds the global variables of a script. Lookups that miss fall
// back to the parent namespace, which for scripts is the builtin module.
// Variables are stored in stable cells so that aliases can point at them.
type Module struct {
	Name   string
	File   string
	vars   *hashmap.Map[string, *Value]
	parent *Module
	object *Object
}

func newModule(name, file string, parent *Module) *Module {
	return &Module{
		Name:   name,
		File:   file,
		vars:   hashmap.NewString[*Value](),
		parent: parent,
	}
}

// Lookup finds the cell of a variable in m or its ancestors.
func (m *Module) Lookup(name string) (*Value, bool) {
	for current := m; current != nil; current = current.parent {
		if cell, ok := current.vars.Find(name); ok {
			return cell, true
		}
	}
	return nil, false
}

// Get returns the value of a variable.
func (m *Module) Get(name string) (Value, bool) {
	cell, ok := m.Lookup(name)
	if !ok {
		return Null, false
	}
	return cell.Resolve(), true
}

// Own returns the cell of a variable defined directly in m.
func (m *Module) Own(name string) (*Value, bool) {
	return m.vars.Find(name)
}

// Define returns the cell of name in m itself, creating it if needed.
// Names inherited from the parent are shadowed, never modified.
func (m *Module) Define(name string) *Value {
	if cell, ok := m.vars.Find(name); ok {
		return cell
	}
	cell := new(Value)
	m.vars.Insert(name, cell)
	return cell
}

// Set assigns a variable in m.
func (m *Module) Set(name string, v Value) {
	storeSlot(m.Define(name), v)
}

// Names returns the names defined directly in m, sorted.
func (m *Module) Names() []string {
	names := make([]string, 0, m.vars.Len())
	for name := range m.vars.Keys() {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Value returns the module as a script value.
func (m *Module) Value() Value { return FromObject(m.object) }

func (m *Module) Traverse(visit func(Value)) {
	for _, cell := range m.vars.All() {
		visit(*cell)
	}
}

func (m *Module) Destroy() {
	for _, cell := range m.vars.All() {
		cell.release()
		*cell = Null
	}
}

func (m *Module) Display(bool) string { return "<module " + m.Name + ">" }

// Field implements field access: module.name reads a global.
func (m *Module) Field(name string) (Value, bool) {
	cell, ok := m.vars.Find(name)
	if !ok {
		return Null, false
	}
	return cell.Resolve(), true
}

// SetField implements module.name = value.
func (m *Module) SetField(name string, v Value) bool {
	m.Set(name, v)
	return true
}

func (rt *Runtime) newModule(name, file string) *Module {
	m := newModule(name, file, rt.builtins)
	m.object = rt.heap.alloc(rt.ModuleClass, m)
	m.object.retain()
	return m
}

// ---------------------------------------------------------------------------
// Imports
// ---------------------------------------------------------------------------

// resolveImport finds the file for an import name, trying the name as
// given and with the script extension, relative to the importing file's
// directory and then to each configured import path.
func (rt *Runtime) resolveImport(name string) (string, bool) {
	var dirs []string
	if f := rt.currentFile(); f != "" {
		dirs = append(dirs, filepath.Dir(f))
	}
	dirs = append(dirs, rt.importPaths...)
	if filepath.IsAbs(name) {
		dirs = []string{""}
	}
	candidates := []string{name}
	if !strings.HasSuffix(name, ScriptExtension) {
		candidates = append(candidates, name+ScriptExtension)
	}
	for _, dir := range dirs {
		for _, c := range candidates {
			path := filepath.Join(dir, c)
			if info, err := os.Stat(path); err == nil && !info.IsDir() {
				if abs, err := filepath.Abs(path); err == nil {
					return abs, true
				}
				return path, true
			}
		}
	}
	return "", false
}

// Import loads a module once and returns it from the cache afterwards.
func (rt *Runtime) Import(name string) Value {
	path, ok := rt.resolveImport(name)
	if !ok {
		Throwf(IOError, "cannot find module %q", name)
	}
	if m, ok := rt.imports[path]; ok {
		return m.Value()
	}
	routine, err := rt.CompileFile(path)
	if err != nil {
		if e, ok := AsError(err); ok {
			Throw(e)
		}
		Throw(WrapError(IOError, err, ""))
	}
	base := strings.TrimSuffix(filepath.Base(path), ScriptExtension)
	m := rt.newModule(base, path)
	rt.imports[path] = m
	rt.log.Debugf("importing module %s from %s", base, path)
	rt.execute(routine, m)
	return m.Value()
}
