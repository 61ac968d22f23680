// Package vm implements the phon runtime.
//
// This package contains:
//   - tagged value representation with alias cells for references
//   - share-counted heap objects with copy-on-write
//   - classes, overloaded functions and native dispatch
//   - the bytecode format and the stack interpreter
//   - the tri-color cycle collector
//   - the built-in library (strings, lists, tables, sets, regexes, files, arrays)
package vm
