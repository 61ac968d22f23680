// Package compiler turns phon source text into vm routines: a scanner, a
// recursive descent parser producing an AST, and a code generator that
// walks the AST with a visitor.
package compiler
