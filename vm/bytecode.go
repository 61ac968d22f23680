package vm

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Opcode definitions
// ---------------------------------------------------------------------------

// Opcode represents a single bytecode instruction.
type Opcode byte

// Stack and constants
const (
	OpNop          Opcode = 0x00 // no operation
	OpPop          Opcode = 0x01 // discard top of stack
	OpPushNull     Opcode = 0x02 // push null
	OpPushTrue     Opcode = 0x03 // push true
	OpPushFalse    Opcode = 0x04 // push false
	OpPushNan      Opcode = 0x05 // push NaN
	OpPushSmallInt Opcode = 0x06 // push signed 16-bit integer
	OpPushInteger  Opcode = 0x07 // push integer constant (16-bit index)
	OpPushFloat    Opcode = 0x08 // push float constant (16-bit index)
	OpPushString   Opcode = 0x09 // push string constant (16-bit index)
)

// Locals (16-bit slot index)
const (
	OpDefineLocal    Opcode = 0x10 // pop into a fresh local
	OpGetLocal       Opcode = 0x11 // push local
	OpGetLocalArg    Opcode = 0x12 // push local as argument (slot, 8-bit position)
	OpGetLocalRef    Opcode = 0x13 // push alias of local
	OpGetUniqueLocal Opcode = 0x14 // unshare local, push it
	OpSetLocal       Opcode = 0x15 // pop into local, through aliases
	OpClearLocal     Opcode = 0x16 // reset local to null without writing through
	OpIncrementLocal Opcode = 0x17 // add 1 to integer local
	OpDecrementLocal Opcode = 0x18 // subtract 1 from integer local
)

// Globals (16-bit name index)
const (
	OpGetGlobal       Opcode = 0x20 // push global
	OpGetGlobalArg    Opcode = 0x21 // push global as argument (name, 8-bit position)
	OpGetGlobalRef    Opcode = 0x22 // push alias of global
	OpGetUniqueGlobal Opcode = 0x23 // unshare global, push it
	OpSetGlobal       Opcode = 0x24 // pop into global
	OpDefineFunction  Opcode = 0x25 // pop function into global, merging overloads
)

// Upvalues (16-bit upvalue index)
const (
	OpGetUpvalue       Opcode = 0x30 // push captured variable
	OpGetUpvalueArg    Opcode = 0x31 // push captured variable as argument (index, 8-bit position)
	OpGetUpvalueRef    Opcode = 0x32 // push alias of captured variable
	OpGetUniqueUpvalue Opcode = 0x33 // unshare captured variable, push it
	OpSetUpvalue       Opcode = 0x34 // pop into captured variable
)

// Indexing (8-bit index count) and fields (name on the stack)
const (
	OpGetIndex       Opcode = 0x40 // pop container and n keys, push element
	OpGetIndexArg    Opcode = 0x41 // element as argument (n, 8-bit position)
	OpGetIndexRef    Opcode = 0x42 // push element alias
	OpGetUniqueIndex Opcode = 0x43 // unshare element in place, push it
	OpSetIndex       Opcode = 0x44 // pop container, n keys and value
	OpGetField       Opcode = 0x45 // pop object and name, push field
	OpGetFieldArg    Opcode = 0x46 // field as argument (8-bit position)
	OpGetFieldRef    Opcode = 0x47 // push field alias
	OpGetUniqueField Opcode = 0x48 // unshare field in place, push it
	OpSetField       Opcode = 0x49 // pop object, name and value
)

// Operators
const (
	OpAdd          Opcode = 0x50
	OpSubtract     Opcode = 0x51
	OpMultiply     Opcode = 0x52
	OpDivide       Opcode = 0x53
	OpModulus      Opcode = 0x54
	OpPower        Opcode = 0x55
	OpNegate       Opcode = 0x56
	OpNot          Opcode = 0x57
	OpConcat       Opcode = 0x58 // concatenate n values (8-bit count)
	OpEqual        Opcode = 0x59
	OpNotEqual     Opcode = 0x5A
	OpLess         Opcode = 0x5B
	OpLessEqual    Opcode = 0x5C
	OpGreater      Opcode = 0x5D
	OpGreaterEqual Opcode = 0x5E
	OpCompare      Opcode = 0x5F // three-way comparison, pushes -1, 0 or 1
)

// Control flow (signed 16-bit offset from the end of the instruction)
const (
	OpJump         Opcode = 0x60 // unconditional jump
	OpJumpFalse    Opcode = 0x61 // pop, jump if false
	OpJumpTrue     Opcode = 0x62 // pop, jump if true
	OpJumpFalseAnd Opcode = 0x63 // jump if false keeping the value, else pop
	OpJumpTrueOr   Opcode = 0x64 // jump if true keeping the value, else pop
)

// Calls
const (
	OpPrecall    Opcode = 0x70 // announce the callee on top of the stack
	OpCall       Opcode = 0x71 // call with n arguments (8-bit count)
	OpReturn     Opcode = 0x72 // return top of stack
	OpNewClosure Opcode = 0x73 // create closure (16-bit routine index, 8-bit parameter type count)
)

// Containers
const (
	OpNewList  Opcode = 0x80 // 16-bit element count
	OpNewTable Opcode = 0x81 // 16-bit pair count
	OpNewSet   Opcode = 0x82 // 16-bit element count
	OpNewArray Opcode = 0x83 // 16-bit rows, 16-bit columns
)

// Iteration (16-bit slot of the iterator local)
const (
	OpNewIterator  Opcode = 0x90 // pop collection, push iterator (8-bit ref flag)
	OpTestIterator Opcode = 0x91 // advance iterator, push whether an element is available
	OpNextKey      Opcode = 0x92 // push current key
	OpNextValue    Opcode = 0x93 // push current value (slot, 8-bit ref flag)
)

// Statements
const (
	OpPrint     Opcode = 0xA0 // print n values (8-bit count)
	OpPrintLine Opcode = 0xA1 // print n values and a newline (8-bit count)
	OpAssert    Opcode = 0xA2 // 8-bit flag: message present
	OpThrow     Opcode = 0xA3 // raise top of stack
)

// ---------------------------------------------------------------------------
// Opcode metadata
// ---------------------------------------------------------------------------

// OpcodeInfo holds metadata about an opcode.
type OpcodeInfo struct {
	Name         string // human-readable name
	OperandBytes int    // number of operand bytes
	StackEffect  int    // net effect on stack (-1 = variable)
}

// opcodeTable maps opcodes to their metadata.
var opcodeTable = map[Opcode]OpcodeInfo{
	OpNop:          {"NOP", 0, 0},
	OpPop:          {"POP", 0, -1},
	OpPushNull:     {"PUSH_NULL", 0, 1},
	OpPushTrue:     {"PUSH_TRUE", 0, 1},
	OpPushFalse:    {"PUSH_FALSE", 0, 1},
	OpPushNan:      {"PUSH_NAN", 0, 1},
	OpPushSmallInt: {"PUSH_SMALL_INT", 2, 1},
	OpPushInteger:  {"PUSH_INTEGER", 2, 1},
	OpPushFloat:    {"PUSH_FLOAT", 2, 1},
	OpPushString:   {"PUSH_STRING", 2, 1},

	OpDefineLocal:    {"DEFINE_LOCAL", 2, -1},
	OpGetLocal:       {"GET_LOCAL", 2, 1},
	OpGetLocalArg:    {"GET_LOCAL_ARG", 3, 1},
	OpGetLocalRef:    {"GET_LOCAL_REF", 2, 1},
	OpGetUniqueLocal: {"GET_UNIQUE_LOCAL", 2, 1},
	OpSetLocal:       {"SET_LOCAL", 2, -1},
	OpClearLocal:     {"CLEAR_LOCAL", 2, 0},
	OpIncrementLocal: {"INCREMENT_LOCAL", 2, 0},
	OpDecrementLocal: {"DECREMENT_LOCAL", 2, 0},

	OpGetGlobal:       {"GET_GLOBAL", 2, 1},
	OpGetGlobalArg:    {"GET_GLOBAL_ARG", 3, 1},
	OpGetGlobalRef:    {"GET_GLOBAL_REF", 2, 1},
	OpGetUniqueGlobal: {"GET_UNIQUE_GLOBAL", 2, 1},
	OpSetGlobal:       {"SET_GLOBAL", 2, -1},
	OpDefineFunction:  {"DEFINE_FUNCTION", 2, -1},

	OpGetUpvalue:       {"GET_UPVALUE", 2, 1},
	OpGetUpvalueArg:    {"GET_UPVALUE_ARG", 3, 1},
	OpGetUpvalueRef:    {"GET_UPVALUE_REF", 2, 1},
	OpGetUniqueUpvalue: {"GET_UNIQUE_UPVALUE", 2, 1},
	OpSetUpvalue:       {"SET_UPVALUE", 2, -1},

	OpGetIndex:       {"GET_INDEX", 1, -1},
	OpGetIndexArg:    {"GET_INDEX_ARG", 2, -1},
	OpGetIndexRef:    {"GET_INDEX_REF", 1, -1},
	OpGetUniqueIndex: {"GET_UNIQUE_INDEX", 1, -1},
	OpSetIndex:       {"SET_INDEX", 1, -1},
	OpGetField:       {"GET_FIELD", 0, -1},
	OpGetFieldArg:    {"GET_FIELD_ARG", 1, -1},
	OpGetFieldRef:    {"GET_FIELD_REF", 0, -1},
	OpGetUniqueField: {"GET_UNIQUE_FIELD", 0, -1},
	OpSetField:       {"SET_FIELD", 0, -3},

	OpAdd:          {"ADD", 0, -1},
	OpSubtract:     {"SUBTRACT", 0, -1},
	OpMultiply:     {"MULTIPLY", 0, -1},
	OpDivide:       {"DIVIDE", 0, -1},
	OpModulus:      {"MODULUS", 0, -1},
	OpPower:        {"POWER", 0, -1},
	OpNegate:       {"NEGATE", 0, 0},
	OpNot:          {"NOT", 0, 0},
	OpConcat:       {"CONCAT", 1, -1},
	OpEqual:        {"EQUAL", 0, -1},
	OpNotEqual:     {"NOT_EQUAL", 0, -1},
	OpLess:         {"LESS", 0, -1},
	OpLessEqual:    {"LESS_EQUAL", 0, -1},
	OpGreater:      {"GREATER", 0, -1},
	OpGreaterEqual: {"GREATER_EQUAL", 0, -1},
	OpCompare:      {"COMPARE", 0, -1},

	OpJump:         {"JUMP", 2, 0},
	OpJumpFalse:    {"JUMP_FALSE", 2, -1},
	OpJumpTrue:     {"JUMP_TRUE", 2, -1},
	OpJumpFalseAnd: {"JUMP_FALSE_AND", 2, -1},
	OpJumpTrueOr:   {"JUMP_TRUE_OR", 2, -1},

	OpPrecall:    {"PRECALL", 0, 0},
	OpCall:       {"CALL", 1, -1},
	OpReturn:     {"RETURN", 0, -1},
	OpNewClosure: {"NEW_CLOSURE", 3, -1},

	OpNewList:  {"NEW_LIST", 2, -1},
	OpNewTable: {"NEW_TABLE", 2, -1},
	OpNewSet:   {"NEW_SET", 2, -1},
	OpNewArray: {"NEW_ARRAY", 4, -1},

	OpNewIterator:  {"NEW_ITERATOR", 1, 0},
	OpTestIterator: {"TEST_ITERATOR", 2, 1},
	OpNextKey:      {"NEXT_KEY", 2, 1},
	OpNextValue:    {"NEXT_VALUE", 3, 1},

	OpPrint:     {"PRINT", 1, -1},
	OpPrintLine: {"PRINT_LINE", 1, -1},
	OpAssert:    {"ASSERT", 1, -1},
	OpThrow:     {"THROW", 0, -1},
}

// Info returns the metadata for an opcode.
func (op Opcode) Info() OpcodeInfo {
	if info, ok := opcodeTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN_%02X", byte(op)), OperandBytes: 0, StackEffect: 0}
}

// Name returns the human-readable name for an opcode.
func (op Opcode) Name() string {
	return op.Info().Name
}

// OperandBytes returns the number of operand bytes for an opcode.
func (op Opcode) OperandBytes() int {
	return op.Info().OperandBytes
}

// String implements the Stringer interface.
func (op Opcode) String() string {
	return op.Name()
}

// IsJump reports whether the opcode takes a relative jump offset.
func (op Opcode) IsJump() bool {
	return op >= OpJump && op <= OpJumpTrueOr
}

// ---------------------------------------------------------------------------
// BytecodeBuilder: Helper for constructing bytecode
// ---------------------------------------------------------------------------

// BytecodeBuilder helps construct bytecode sequences and the line table
// that maps instruction offsets back to source lines.
type BytecodeBuilder struct {
	bytes []byte
	lines []LineInfo
	line  int
}

// NewBytecodeBuilder creates a new bytecode builder.
func NewBytecodeBuilder() *BytecodeBuilder {
	return &BytecodeBuilder{
		bytes: make([]byte, 0, 64),
	}
}

// Bytes returns the constructed bytecode.
func (b *BytecodeBuilder) Bytes() []byte {
	return b.bytes
}

// Lines returns the line table.
func (b *BytecodeBuilder) Lines() []LineInfo {
	return b.lines
}

// Len returns the current length.
func (b *BytecodeBuilder) Len() int {
	return len(b.bytes)
}

// SetLine sets the source line attributed to subsequent instructions.
func (b *BytecodeBuilder) SetLine(line int) {
	b.line = line
}

func (b *BytecodeBuilder) mark() {
	if b.line == 0 {
		return
	}
	if n := len(b.lines); n > 0 && b.lines[n-1].Line == b.line {
		return
	}
	b.lines = append(b.lines, LineInfo{Offset: len(b.bytes), Line: b.line})
}

// Emit appends an opcode with no operands.
func (b *BytecodeBuilder) Emit(op Opcode) {
	b.mark()
	b.bytes = append(b.bytes, byte(op))
}

// EmitByte appends an opcode with a single byte operand.
func (b *BytecodeBuilder) EmitByte(op Opcode, operand byte) {
	b.mark()
	b.bytes = append(b.bytes, byte(op), operand)
}

// EmitBytes appends an opcode with two byte operands.
func (b *BytecodeBuilder) EmitBytes(op Opcode, a, c byte) {
	b.mark()
	b.bytes = append(b.bytes, byte(op), a, c)
}

// EmitInt16 appends an opcode with a signed 16-bit operand (little-endian).
func (b *BytecodeBuilder) EmitInt16(op Opcode, operand int16) {
	b.EmitUint16(op, uint16(operand))
}

// EmitUint16 appends an opcode with a 16-bit operand (little-endian).
func (b *BytecodeBuilder) EmitUint16(op Opcode, operand uint16) {
	b.mark()
	b.bytes = append(b.bytes, byte(op), byte(operand), byte(operand>>8))
}

// EmitUint16Byte appends an opcode with a 16-bit and an 8-bit operand.
func (b *BytecodeBuilder) EmitUint16Byte(op Opcode, operand uint16, extra byte) {
	b.mark()
	b.bytes = append(b.bytes, byte(op), byte(operand), byte(operand>>8), extra)
}

// EmitUint16Pair appends an opcode with two 16-bit operands.
func (b *BytecodeBuilder) EmitUint16Pair(op Opcode, first, second uint16) {
	b.mark()
	b.bytes = append(b.bytes, byte(op), byte(first), byte(first>>8), byte(second), byte(second>>8))
}

// ---------------------------------------------------------------------------
// Label management for jumps
// ---------------------------------------------------------------------------

// Label represents a jump target, possibly not yet known.
type Label struct {
	resolved bool
	position int   // target position once resolved
	refs     []int // operand positions waiting for the target
}

// NewLabel creates an unresolved label.
func (b *BytecodeBuilder) NewLabel() *Label {
	return &Label{resolved: false, refs: make([]int, 0, 2)}
}

// Mark resolves a label to the current position.
func (b *BytecodeBuilder) Mark(label *Label) {
	if label.resolved {
		panic("label already resolved")
	}
	label.resolved = true
	label.position = len(b.bytes)

	for _, ref := range label.refs {
		b.patch(ref, label.position)
	}
	label.refs = nil
}

// Here returns a label resolved to the current position, for backward
// jumps.
func (b *BytecodeBuilder) Here() *Label {
	return &Label{resolved: true, position: len(b.bytes)}
}

func (b *BytecodeBuilder) patch(ref, target int) {
	offset := target - (ref + 2) // offset from after the operand
	b.bytes[ref] = byte(offset)
	b.bytes[ref+1] = byte(offset >> 8)
}

// EmitJump emits a jump instruction with a label.
func (b *BytecodeBuilder) EmitJump(op Opcode, label *Label) {
	b.mark()
	b.bytes = append(b.bytes, byte(op))
	if label.resolved {
		offset := label.position - (len(b.bytes) + 2)
		b.bytes = append(b.bytes, byte(offset), byte(offset>>8))
	} else {
		label.refs = append(label.refs, len(b.bytes))
		b.bytes = append(b.bytes, 0, 0)
	}
}

// ---------------------------------------------------------------------------
// Bytecode reader for disassembly
// ---------------------------------------------------------------------------

// BytecodeReader reads bytecode for disassembly.
type BytecodeReader struct {
	bytes []byte
	pos   int
}

// NewBytecodeReader creates a reader for bytecode.
func NewBytecodeReader(bc []byte) *BytecodeReader {
	return &BytecodeReader{bytes: bc, pos: 0}
}

// Position returns the current read position.
func (r *BytecodeReader) Position() int {
	return r.pos
}

// HasMore returns true if there are more bytes to read.
func (r *BytecodeReader) HasMore() bool {
	return r.pos < len(r.bytes)
}

// ReadOpcode reads and returns the next opcode.
func (r *BytecodeReader) ReadOpcode() Opcode {
	if r.pos >= len(r.bytes) {
		panic("bytecode underflow")
	}
	op := Opcode(r.bytes[r.pos])
	r.pos++
	return op
}

// ReadByte reads a single byte operand.
func (r *BytecodeReader) ReadByte() byte {
	if r.pos >= len(r.bytes) {
		panic("bytecode underflow")
	}
	b := r.bytes[r.pos]
	r.pos++
	return b
}

// ReadUint16 reads a 16-bit operand (little-endian).
func (r *BytecodeReader) ReadUint16() uint16 {
	if r.pos+2 > len(r.bytes) {
		panic("bytecode underflow")
	}
	v := binary.LittleEndian.Uint16(r.bytes[r.pos:])
	r.pos += 2
	return v
}

// ReadInt16 reads a signed 16-bit operand (little-endian).
func (r *BytecodeReader) ReadInt16() int16 {
	return int16(r.ReadUint16())
}

// Skip advances the position by n bytes.
func (r *BytecodeReader) Skip(n int) {
	r.pos += n
}

// ---------------------------------------------------------------------------
// Disassembly
// ---------------------------------------------------------------------------

// DisassembleInstruction disassembles the instruction at the reader's
// position, using routine's constant pools to annotate operands.
func DisassembleInstruction(routine *Routine, r *BytecodeReader) string {
	pos := r.Position()
	op := r.ReadOpcode()
	info := op.Info()

	switch op {
	case OpPushSmallInt:
		return fmt.Sprintf("%04d  %-20s %d", pos, info.Name, r.ReadInt16())

	case OpPushInteger:
		idx := r.ReadUint16()
		return fmt.Sprintf("%04d  %-20s %d (%d)", pos, info.Name, idx, routine.Integers[idx])

	case OpPushFloat:
		idx := r.ReadUint16()
		return fmt.Sprintf("%04d  %-20s %d (%g)", pos, info.Name, idx, routine.Floats[idx])

	case OpPushString, OpGetGlobal, OpGetGlobalRef, OpGetUniqueGlobal, OpSetGlobal, OpDefineFunction:
		idx := r.ReadUint16()
		return fmt.Sprintf("%04d  %-20s %d (%q)", pos, info.Name, idx, routine.Strings[idx])

	case OpGetGlobalArg:
		idx := r.ReadUint16()
		argPos := r.ReadByte()
		return fmt.Sprintf("%04d  %-20s %d (%q) arg=%d", pos, info.Name, idx, routine.Strings[idx], argPos)

	case OpGetLocalArg, OpGetUpvalueArg, OpNextValue:
		idx := r.ReadUint16()
		extra := r.ReadByte()
		return fmt.Sprintf("%04d  %-20s %d %d", pos, info.Name, idx, extra)

	case OpJump, OpJumpTrue, OpJumpFalse, OpJumpFalseAnd, OpJumpTrueOr:
		offset := r.ReadInt16()
		target := r.Position() + int(offset)
		return fmt.Sprintf("%04d  %-20s %d (-> %04d)", pos, info.Name, offset, target)

	case OpNewClosure:
		idx := r.ReadUint16()
		ntypes := r.ReadByte()
		name := "?"
		if int(idx) < len(routine.Routines) {
			name = routine.Routines[idx].Name
		}
		return fmt.Sprintf("%04d  %-20s %d (%s) types=%d", pos, info.Name, idx, name, ntypes)

	case OpNewArray:
		rows := r.ReadUint16()
		cols := r.ReadUint16()
		return fmt.Sprintf("%04d  %-20s %dx%d", pos, info.Name, rows, cols)

	case OpGetIndexArg:
		n := r.ReadByte()
		argPos := r.ReadByte()
		return fmt.Sprintf("%04d  %-20s %d arg=%d", pos, info.Name, n, argPos)
	}

	switch info.OperandBytes {
	case 0:
		return fmt.Sprintf("%04d  %s", pos, info.Name)
	case 1:
		return fmt.Sprintf("%04d  %-20s %d", pos, info.Name, r.ReadByte())
	case 2:
		return fmt.Sprintf("%04d  %-20s %d", pos, info.Name, r.ReadUint16())
	}
	r.Skip(info.OperandBytes)
	return fmt.Sprintf("%04d  %s", pos, info.Name)
}

// Disassemble returns a listing of routine and, recursively, of the
// routines nested in it.
func Disassemble(routine *Routine) string {
	var b strings.Builder
	disassembleInto(&b, routine)
	return b.String()
}

func disassembleInto(b *strings.Builder, routine *Routine) {
	name := routine.Name
	if name == "" {
		name = "<main>"
	}
	fmt.Fprintf(b, "routine %s (params=%d, locals=%d, upvalues=%d)\n",
		name, routine.Params, routine.Locals, len(routine.Upvalues))

	r := NewBytecodeReader(routine.Code)
	line := 0
	for r.HasMore() {
		if l := routine.LineAt(r.Position()); l != line {
			line = l
			fmt.Fprintf(b, "; line %d\n", line)
		}
		b.WriteString(DisassembleInstruction(routine, r))
		b.WriteByte('\n')
	}
	for _, nested := range routine.Routines {
		b.WriteByte('\n')
		disassembleInto(b, nested)
	}
}
