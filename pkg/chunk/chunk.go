// Package chunk defines loxido's bytecode format: the opcode vocabulary, the
// Chunk a function compiles into, and a disassembler used by the VM's trace
// mode.
package chunk

import (
	"fmt"
	"strings"

	"github.com/kristofer/loxido/pkg/value"
)

// Opcode identifies a single bytecode operation.
type Opcode byte

const (
	// === Literals ===

	// Constant pushes Constants[Operand] onto the stack.
	Constant Opcode = iota
	// Nil pushes the nil value.
	Nil
	// True pushes the boolean true.
	True
	// False pushes the boolean false.
	False

	// === Stack Operations ===

	// Pop discards the top of the stack.
	Pop

	// === Variables ===

	// GetLocal pushes the value of the local at stack slot Operand.
	GetLocal
	// SetLocal stores the top of the stack into local slot Operand without
	// popping it (assignment is an expression).
	SetLocal
	// DefineGlobal binds the top of the stack to the global whose name is
	// Constants[Operand], then pops it.
	DefineGlobal
	// GetGlobal pushes the value bound to the global named Constants[Operand].
	GetGlobal
	// SetGlobal stores the top of the stack into an existing global named
	// Constants[Operand] without popping it.
	SetGlobal
	// GetUpvalue pushes the value captured by upvalue Operand.
	GetUpvalue
	// SetUpvalue stores the top of the stack into upvalue Operand without
	// popping it.
	SetUpvalue
	// CloseUpvalue closes the upvalue capturing the top stack slot and pops it.
	CloseUpvalue

	// === Properties ===

	// GetProperty pops an instance and pushes the field or bound method
	// named Constants[Operand].
	GetProperty
	// SetProperty pops a value and an instance, stores the value into the
	// field named Constants[Operand], then pushes the value back.
	SetProperty
	// GetSuper pops the superclass and then the instance, and pushes the
	// superclass method named Constants[Operand], bound to that instance.
	GetSuper
	// Inherit clones the superclass (below top) method table into the
	// subclass (top of stack), then pops the subclass.
	Inherit

	// === Arithmetic and comparisons ===

	Add
	Subtract
	Multiply
	Divide
	Negate
	Not
	Equal
	Greater
	Less

	// === Control flow ===

	// Jump unconditionally sets ip to Operand.
	Jump
	// JumpIfFalse sets ip to Operand if the top of the stack is falsey,
	// without popping it.
	JumpIfFalse
	// Loop unconditionally sets ip to Operand; Operand is always behind the
	// current ip, distinguishing it from Jump in disassembly.
	Loop

	// === Calls ===

	// Call invokes the callable below its Operand arguments.
	Call
	// Invoke performs a combined GetProperty+Call for the common case of a
	// direct method call with no intervening closure capture. Operand packs
	// the method name's constant index and the argument count.
	Invoke
	// SuperInvoke is Invoke resolved against the superclass's method table.
	SuperInvoke
	// Closure pushes a new closure over the function prototype at
	// Constants[Operand]; the upvalue capture descriptors for the function
	// are stored in the Chunk's Upvalues map under this instruction's offset.
	Closure
	// Return pops the function's result and returns it to the caller.
	Return

	// === Classes ===

	// Class pushes a new empty class named Constants[Operand].
	Class
	// Method pops a closure and binds it as a method named Constants[Operand]
	// on the class now at the top of the stack.
	Method

	// Print pops and prints the top of the stack.
	Print
)

var opcodeNames = map[Opcode]string{
	Constant:     "CONSTANT",
	Nil:          "NIL",
	True:         "TRUE",
	False:        "FALSE",
	Pop:          "POP",
	GetLocal:     "GET_LOCAL",
	SetLocal:     "SET_LOCAL",
	DefineGlobal: "DEFINE_GLOBAL",
	GetGlobal:    "GET_GLOBAL",
	SetGlobal:    "SET_GLOBAL",
	GetUpvalue:   "GET_UPVALUE",
	SetUpvalue:   "SET_UPVALUE",
	CloseUpvalue: "CLOSE_UPVALUE",
	GetProperty:  "GET_PROPERTY",
	SetProperty:  "SET_PROPERTY",
	GetSuper:     "GET_SUPER",
	Inherit:      "INHERIT",
	Add:          "ADD",
	Subtract:     "SUBTRACT",
	Multiply:     "MULTIPLY",
	Divide:       "DIVIDE",
	Negate:       "NEGATE",
	Not:          "NOT",
	Equal:        "EQUAL",
	Greater:      "GREATER",
	Less:         "LESS",
	Jump:         "JUMP",
	JumpIfFalse:  "JUMP_IF_FALSE",
	Loop:         "LOOP",
	Call:         "CALL",
	Invoke:       "INVOKE",
	SuperInvoke:  "SUPER_INVOKE",
	Closure:      "CLOSURE",
	Return:       "RETURN",
	Class:        "CLASS",
	Method:       "METHOD",
	Print:        "PRINT",
}

// String returns a human-readable opcode name, used by the disassembler.
func (op Opcode) String() string {
	if name, ok := opcodeNames[op]; ok {
		return name
	}
	return "UNKNOWN"
}

// Constants for packing/unpacking the Invoke and SuperInvoke operand: the
// method name's constant pool index in the high bits, the argument count in
// the low byte.
const (
	InvokeNameShift = 8
	InvokeArgMask   = 0xFF
)

// PackInvoke combines a constant index and argument count into an Invoke
// operand.
func PackInvoke(nameConstant, argCount int) int {
	return (nameConstant << InvokeNameShift) | (argCount & InvokeArgMask)
}

// UnpackInvoke reverses PackInvoke.
func UnpackInvoke(operand int) (nameConstant, argCount int) {
	return operand >> InvokeNameShift, operand & InvokeArgMask
}

// Instruction is one bytecode operation plus its operand; the operand's
// meaning depends on Op (a constant index, a local slot, a jump target, or
// unused).
type Instruction struct {
	Op      Opcode
	Operand int
}

// UpvalueDesc describes how a Closure instruction's function captures one
// upvalue: from the enclosing function's local slots, or from the
// enclosing function's own upvalues.
type UpvalueDesc struct {
	Index   int
	IsLocal bool
}

// Chunk is the compiled bytecode for one function: its instruction stream,
// constant pool, and a parallel line table for runtime error reporting.
type Chunk struct {
	Code      []Instruction
	Constants []value.Value
	Lines     []int

	// Upvalues holds the capture descriptors for each Closure instruction,
	// indexed by the position of that instruction in Code.
	Upvalues map[int][]UpvalueDesc
}

// New returns an empty Chunk.
func New() *Chunk {
	return &Chunk{Upvalues: make(map[int][]UpvalueDesc)}
}

// Write appends an instruction and records the source line it came from,
// returning the instruction's index (used for back-patching jumps).
func (c *Chunk) Write(op Opcode, operand int, line int) int {
	c.Code = append(c.Code, Instruction{Op: op, Operand: operand})
	c.Lines = append(c.Lines, line)
	return len(c.Code) - 1
}

// Patch overwrites the operand of an already-emitted instruction, used to
// back-patch forward jumps once the jump target is known.
func (c *Chunk) Patch(index int, operand int) {
	c.Code[index].Operand = operand
}

// AddConstant appends v to the constant pool, returning its index. It never
// reuses an existing entry, so equal constants occupy separate slots.
func (c *Chunk) AddConstant(v value.Value) int {
	c.Constants = append(c.Constants, v)
	return len(c.Constants) - 1
}

// Disassemble renders the whole chunk in a human-readable form, labeled
// with name (the function's name, or "<script>" for the top level).
func (c *Chunk) Disassemble(name string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "== %s ==\n", name)
	for i := range c.Code {
		b.WriteString(c.DisassembleInstruction(i))
		b.WriteByte('\n')
	}
	return b.String()
}

// DisassembleInstruction renders the single instruction at offset.
func (c *Chunk) DisassembleInstruction(offset int) string {
	inst := c.Code[offset]
	line := c.Lines[offset]

	lineCol := fmt.Sprintf("%4d", line)
	if offset > 0 && c.Lines[offset-1] == line {
		lineCol = "   |"
	}

	switch inst.Op {
	case Constant, DefineGlobal, GetGlobal, SetGlobal, GetProperty, SetProperty, GetSuper, Class, Method:
		return fmt.Sprintf("%04d %s %-14s %4d '%s'", offset, lineCol, inst.Op, inst.Operand, c.formatConstant(inst.Operand))
	case GetLocal, SetLocal, GetUpvalue, SetUpvalue, Call:
		return fmt.Sprintf("%04d %s %-14s %4d", offset, lineCol, inst.Op, inst.Operand)
	case Jump, JumpIfFalse, Loop:
		return fmt.Sprintf("%04d %s %-14s -> %d", offset, lineCol, inst.Op, inst.Operand)
	case Invoke, SuperInvoke:
		nameConstant, argCount := UnpackInvoke(inst.Operand)
		return fmt.Sprintf("%04d %s %-14s (%d args) %4d '%s'", offset, lineCol, inst.Op, argCount, nameConstant, c.formatConstant(nameConstant))
	case Closure:
		desc := fmt.Sprintf("%04d %s %-14s %4d '%s'", offset, lineCol, inst.Op, inst.Operand, c.formatConstant(inst.Operand))
		for _, up := range c.Upvalues[offset] {
			kind := "upvalue"
			if up.IsLocal {
				kind = "local"
			}
			desc += fmt.Sprintf("\n      |                     %s %d", kind, up.Index)
		}
		return desc
	default:
		return fmt.Sprintf("%04d %s %-14s", offset, lineCol, inst.Op)
	}
}

func (c *Chunk) formatConstant(index int) string {
	if index < 0 || index >= len(c.Constants) {
		return "?"
	}
	v := c.Constants[index]
	switch v.Kind {
	case value.Nil:
		return "nil"
	case value.Bool:
		return fmt.Sprintf("%t", v.Bool)
	case value.Number:
		return value.FormatNumber(v.Number)
	default:
		return fmt.Sprintf("obj#%d", v.Obj)
	}
}
