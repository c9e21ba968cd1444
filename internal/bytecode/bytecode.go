// Package bytecode defines the 21-opcode instruction set that
// internal/compiler lowers into and internal/vm executes (spec.md §4.2).
//
// Architecture:
//
// The instruction set is stack-oriented: almost every opcode pops its
// operands off the current frame's operand stack and pushes its result
// back. A handful of opcodes have non-uniform operand orderings that the
// compiler and interpreter must agree on exactly — see the Op doc comments
// below, especially Iaload/Iastore/Putfield.
package bytecode

// Op identifies a bytecode instruction.
type Op int

const (
	// Ldc pushes a tagged integer constant. Operand: the constant value.
	Ldc Op = iota
	// Load pushes locals[Operand].
	Load
	// Store pops the top of stack and writes it to locals[Operand].
	Store
	// Iadd pops two integers, pushes their sum.
	Iadd
	// Isub pops two integers (a, b in that push order), pushes a-b.
	Isub
	// Imul pops two integers, pushes their product.
	Imul
	// Band pops two tagged 0/1 values, pushes their bitwise and.
	Band
	// Ilt pops two integers (a, b), pushes 1 if a<b else 0.
	Ilt
	// Bneg pops one tagged 0/1 value, pushes its logical negation.
	Bneg
	// Goto unconditionally jumps to instruction ip_start+Operand.
	Goto
	// GotoIfFalse pops a value; if it is tagged 0, jumps to ip_start+Operand.
	GotoIfFalse
	// New allocates an object of the class-layout index Operand.
	New
	// Newarray pops a length, pushes a newly allocated integer array.
	Newarray
	// Getfield pops an object, pushes its field Operand.
	Getfield
	// Putfield pops a value then an object ([value, object] push order)
	// and writes the value into the object's field Operand.
	Putfield
	// Iaload pops an index then an array ([index, array] push order),
	// pushes the array's element at that index, re-tagged as an integer.
	Iaload
	// Iastore pops an index, a value, then an array
	// ([index, value, array] push order) and writes the value — still a
	// raw tagged word — into the array at that index.
	Iastore
	// Length pops an array, pushes its element count.
	Length
	// Invoke dispatches a virtual call. Operand: vtable slot. Operand2:
	// argument count including the receiver. Pops the receiver and
	// Operand2-1 arguments off the caller's stack (in push order) and
	// transfers control to a new frame.
	Invoke
	// Print pops an integer and writes its decimal form followed by a
	// newline to standard output.
	Print
	// Return pops the top of the returning frame's stack as the return
	// value, destroys the frame, and resumes the caller — or, in the
	// outermost frame, ends execution successfully without popping.
	Return
)

// String renders the opcode mnemonic used by the text disassembler
// (spec.md §6) and error messages.
func (op Op) String() string {
	switch op {
	case Ldc:
		return "ldc"
	case Load:
		return "load"
	case Store:
		return "store"
	case Iadd:
		return "iadd"
	case Isub:
		return "isub"
	case Imul:
		return "imul"
	case Band:
		return "band"
	case Ilt:
		return "ilt"
	case Bneg:
		return "bneg"
	case Goto:
		return "goto"
	case GotoIfFalse:
		return "goto_if_false"
	case New:
		return "new"
	case Newarray:
		return "newarray"
	case Getfield:
		return "getfield"
	case Putfield:
		return "putfield"
	case Iaload:
		return "iaload"
	case Iastore:
		return "iastore"
	case Length:
		return "length"
	case Invoke:
		return "invoke"
	case Print:
		return "print"
	case Return:
		return "return"
	default:
		return "unknown"
	}
}

// Instruction is one bytecode instruction. Operand2 is only meaningful for
// Invoke; every other opcode ignores it.
type Instruction struct {
	Op       Op
	Operand  int64
	Operand2 int64
}

// NumOperands reports how many of Operand/Operand2 are meaningful for op,
// used by the disassembler to decide how many fields to print.
func (op Op) NumOperands() int {
	switch op {
	case Iadd, Isub, Imul, Band, Ilt, Bneg, Iaload, Iastore, Length, Print, Return, Newarray:
		return 0
	case Invoke:
		return 2
	default: // Ldc, Load, Store, Goto, GotoIfFalse, New, Getfield, Putfield
		return 1
	}
}

// NewInstr builds a zero-operand instruction (Iadd, Isub, ..., Return).
func NewInstr(op Op) Instruction { return Instruction{Op: op} }

// NewInstr1 builds a one-operand instruction (Ldc, Load, Store, Getfield,
// Putfield, New, Goto, GotoIfFalse).
func NewInstr1(op Op, operand int64) Instruction {
	return Instruction{Op: op, Operand: operand}
}

// NewInvoke builds an Invoke instruction with its two operands: the
// vtable slot and the argument count including the receiver.
func NewInvoke(slot, argCount int64) Instruction {
	return Instruction{Op: Invoke, Operand: slot, Operand2: argCount}
}
