package vm

import (
	"github.com/pkg/errors"

	"github.com/d-netto/minivm/internal/layout"
)

// frame is one method activation: its operand stack, its locals slice
// (slot 0 is always the receiver, the "this" pointer — see internal/compiler's
// slot-numbering discipline), and the instruction pointer into its
// method's instruction vector. Mirrors the teacher's per-call VM state
// (pkg/vm.VM.stack/sp/locals) but one frame per call instead of one VM
// struct reused by position.
type frame struct {
	method *layout.MethodLayout
	locals []Value
	stack  []Value
	sp     int
	ip     int
}

func newFrame(m *layout.MethodLayout, nLocals int) *frame {
	return &frame{
		method: m,
		locals: make([]Value, nLocals),
		stack:  make([]Value, 0, 16),
	}
}

func (f *frame) push(v Value) {
	if f.sp < len(f.stack) {
		f.stack[f.sp] = v
	} else {
		f.stack = append(f.stack, v)
	}
	f.sp++
}

// pop removes and returns the top of the operand stack. Popping an empty
// stack is a StackUnderflow condition (spec.md §7), reported with the
// frame's method context rather than left to panic as a bare index fault.
func (f *frame) pop() (Value, error) {
	if f.sp == 0 {
		return 0, errors.Errorf("vm: %s.%s: stack underflow", f.method.Class, f.method.Method)
	}
	f.sp--
	return f.stack[f.sp], nil
}

// pop2 pops the top two operands, returning them as (top, second) — the
// order every binary-operator opcode handler wants (right operand on top).
func (f *frame) pop2() (top, second Value, err error) {
	top, err = f.pop()
	if err != nil {
		return 0, 0, err
	}
	second, err = f.pop()
	if err != nil {
		return 0, 0, err
	}
	return top, second, nil
}
