package vm

import (
	"fmt"
	"io"

	"github.com/pkg/errors"

	"github.com/d-netto/minivm/internal/bytecode"
	"github.com/d-netto/minivm/internal/layout"
)

// Interp is the stack-machine interpreter: the method layouts it dispatches
// into, the heap it allocates onto, and the live frame stack (outermost
// first), mirroring the teacher's callStack/StackFrame bookkeeping from
// pkg/vm.VM but holding full execution state per frame rather than names
// only, since here frames really do carry the locals and operand stack.
type Interp struct {
	set    *layout.Set
	heap   *Heap
	frames []*frame
	out    io.Writer
}

// New creates an interpreter over set, allocating onto a heap of the given
// word budget.
func New(set *layout.Set, heapBudget int, out io.Writer) *Interp {
	h := NewHeap(heapBudget)
	in := &Interp{set: set, heap: h, out: out}
	h.collectFn = in.collect
	return in
}

// RunMain executes the program's main method to completion. Per spec.md
// §4.3, returning from the outermost frame terminates execution
// successfully; any runtime error (stack underflow, out-of-memory, nil
// dereference, bad array index) is returned instead.
func (in *Interp) RunMain() error {
	main := in.set.MethodByName(in.mainClassName(), "main")
	if main == nil {
		return errors.New("vm: no main method in layout set")
	}
	fr := newFrame(main, 1)
	in.frames = append(in.frames, fr)
	_, err := in.run(fr)
	in.frames = in.frames[:0]
	return err
}

func (in *Interp) mainClassName() string {
	if len(in.set.Classes) == 0 {
		return ""
	}
	return in.set.Classes[0].Name
}

// run executes fr's instructions from its current ip until a Return,
// returning the method's result value.
func (in *Interp) run(fr *frame) (Value, error) {
	ins := fr.method.Instructions
	for {
		if fr.ip < 0 || fr.ip >= len(ins) {
			return 0, errors.Errorf("vm: %s.%s: instruction pointer %d out of bounds", fr.method.Class, fr.method.Method, fr.ip)
		}
		inst := ins[fr.ip]

		switch inst.Op {
		case bytecode.Ldc:
			fr.push(TagInt(inst.Operand))

		case bytecode.Load:
			if int(inst.Operand) >= len(fr.locals) {
				return 0, errors.Errorf("vm: %s.%s: local slot %d out of bounds", fr.method.Class, fr.method.Method, inst.Operand)
			}
			fr.push(fr.locals[inst.Operand])

		case bytecode.Store:
			if int(inst.Operand) >= len(fr.locals) {
				return 0, errors.Errorf("vm: %s.%s: local slot %d out of bounds", fr.method.Class, fr.method.Method, inst.Operand)
			}
			v, err := fr.pop()
			if err != nil {
				return 0, err
			}
			fr.locals[inst.Operand] = v

		case bytecode.Iadd:
			b, a, err := fr.pop2()
			if err != nil {
				return 0, err
			}
			fr.push(TagInt(a.UntagInt() + b.UntagInt()))

		case bytecode.Isub:
			b, a, err := fr.pop2()
			if err != nil {
				return 0, err
			}
			fr.push(TagInt(a.UntagInt() - b.UntagInt()))

		case bytecode.Imul:
			b, a, err := fr.pop2()
			if err != nil {
				return 0, err
			}
			fr.push(TagInt(a.UntagInt() * b.UntagInt()))

		case bytecode.Band:
			b, a, err := fr.pop2()
			if err != nil {
				return 0, err
			}
			fr.push(boolValue(a.truthy() && b.truthy()))

		case bytecode.Ilt:
			b, a, err := fr.pop2()
			if err != nil {
				return 0, err
			}
			fr.push(boolValue(a.UntagInt() < b.UntagInt()))

		case bytecode.Bneg:
			a, err := fr.pop()
			if err != nil {
				return 0, err
			}
			fr.push(boolValue(!a.truthy()))

		case bytecode.Goto:
			fr.ip = int(inst.Operand)
			continue

		case bytecode.GotoIfFalse:
			v, err := fr.pop()
			if err != nil {
				return 0, err
			}
			if !v.truthy() {
				fr.ip = int(inst.Operand)
				continue
			}

		case bytecode.New:
			idx := int(inst.Operand)
			if idx < 0 || idx >= len(in.set.Classes) {
				return 0, errors.Errorf("vm: new: class index %d out of bounds", idx)
			}
			cl := in.set.Classes[idx]
			ref, err := in.heap.NewObject(idx, len(cl.Fields))
			if err != nil {
				return 0, err
			}
			fr.push(ref)

		case bytecode.Newarray:
			n, err := fr.pop()
			if err != nil {
				return 0, err
			}
			ref, err := in.heap.NewArray(n.UntagInt())
			if err != nil {
				return 0, err
			}
			fr.push(ref)

		case bytecode.Getfield:
			obj, err := fr.pop()
			if err != nil {
				return 0, err
			}
			o, err := in.derefObject(obj, fr)
			if err != nil {
				return 0, err
			}
			if int(inst.Operand) >= len(o.fields) {
				return 0, errors.Errorf("vm: %s.%s: field index %d out of bounds", fr.method.Class, fr.method.Method, inst.Operand)
			}
			fr.push(o.fields[inst.Operand])

		case bytecode.Putfield:
			obj, err := fr.pop()
			if err != nil {
				return 0, err
			}
			val, err := fr.pop()
			if err != nil {
				return 0, err
			}
			o, err := in.derefObject(obj, fr)
			if err != nil {
				return 0, err
			}
			if int(inst.Operand) >= len(o.fields) {
				return 0, errors.Errorf("vm: %s.%s: field index %d out of bounds", fr.method.Class, fr.method.Method, inst.Operand)
			}
			o.fields[inst.Operand] = val

		case bytecode.Iaload:
			arr, err := fr.pop()
			if err != nil {
				return 0, err
			}
			idx, err := fr.pop()
			if err != nil {
				return 0, err
			}
			a, err := in.derefArray(arr, fr)
			if err != nil {
				return 0, err
			}
			i := idx.UntagInt()
			if i < 0 || int(i) >= len(a.elems) {
				return 0, errors.Errorf("vm: %s.%s: array index %d out of bounds (len %d)", fr.method.Class, fr.method.Method, i, len(a.elems))
			}
			fr.push(a.elems[i] | 1)

		case bytecode.Iastore:
			arr, err := fr.pop()
			if err != nil {
				return 0, err
			}
			val, err := fr.pop()
			if err != nil {
				return 0, err
			}
			idx, err := fr.pop()
			if err != nil {
				return 0, err
			}
			a, err := in.derefArray(arr, fr)
			if err != nil {
				return 0, err
			}
			i := idx.UntagInt()
			if i < 0 || int(i) >= len(a.elems) {
				return 0, errors.Errorf("vm: %s.%s: array index %d out of bounds (len %d)", fr.method.Class, fr.method.Method, i, len(a.elems))
			}
			a.elems[i] = val

		case bytecode.Length:
			arr, err := fr.pop()
			if err != nil {
				return 0, err
			}
			a, err := in.derefArray(arr, fr)
			if err != nil {
				return 0, err
			}
			fr.push(TagInt(int64(len(a.elems))))

		case bytecode.Invoke:
			result, err := in.invoke(fr, int(inst.Operand), int(inst.Operand2))
			if err != nil {
				return 0, err
			}
			fr.push(result)

		case bytecode.Print:
			v, err := fr.pop()
			if err != nil {
				return 0, err
			}
			fmt.Fprintln(in.out, v.UntagInt())

		case bytecode.Return:
			// spec.md §4.3: the outermost frame's return ends the run
			// successfully (RunMain returns nil) without consuming an
			// operand — main's body pushes nothing before its trailing
			// return.
			if len(in.frames) == 1 {
				return 0, nil
			}
			return fr.pop()

		default:
			return 0, errors.Errorf("vm: unknown opcode %v", inst.Op)
		}

		fr.ip++
	}
}

func (in *Interp) derefObject(v Value, fr *frame) (*heapObj, error) {
	if v.IsNull() || !v.IsPtr() {
		return nil, errors.Errorf("vm: %s.%s: null pointer dereference", fr.method.Class, fr.method.Method)
	}
	return in.heap.get(v), nil
}

func (in *Interp) derefArray(v Value, fr *frame) (*heapObj, error) {
	o, err := in.derefObject(v, fr)
	if err != nil {
		return nil, err
	}
	if o.kind != kindArray {
		return nil, errors.Errorf("vm: %s.%s: expected array, got object", fr.method.Class, fr.method.Method)
	}
	return o, nil
}

// invoke dispatches a virtual call: the receiver's dynamic class (read off
// its heap object, not its static type) supplies the vtable slot looked up
// at compile time by internal/compiler, per spec.md §4.2/§4.3's override
// semantics.
func (in *Interp) invoke(caller *frame, slot, argCount int) (Value, error) {
	args := make([]Value, argCount-1)
	for i := argCount - 2; i >= 0; i-- {
		v, err := caller.pop()
		if err != nil {
			return 0, err
		}
		args[i] = v
	}
	recv, err := caller.pop()
	if err != nil {
		return 0, err
	}
	o, err := in.derefObject(recv, caller)
	if err != nil {
		return 0, err
	}
	if o.kind != kindObject {
		return 0, errors.Errorf("vm: invoke: receiver is not an object")
	}
	if o.classIdx < 0 || o.classIdx >= len(in.set.Classes) {
		return 0, errors.Errorf("vm: invoke: receiver has invalid class index %d", o.classIdx)
	}
	cl := in.set.Classes[o.classIdx]
	if slot < 0 || slot >= len(cl.Vtbl) {
		return 0, errors.Errorf("vm: invoke: vtable slot %d out of bounds for class %s", slot, cl.Name)
	}
	vs := cl.Vtbl[slot]
	ml := in.set.MethodByName(vs.Class, vs.Method)
	if ml == nil {
		return 0, errors.Errorf("vm: invoke: no method layout for %s.%s", vs.Class, vs.Method)
	}

	callee := newFrame(ml, 1+len(ml.Args)+len(ml.Locals))
	callee.locals[0] = recv
	copy(callee.locals[1:], args)

	in.frames = append(in.frames, callee)
	result, err := in.run(callee)
	in.frames = in.frames[:len(in.frames)-1]
	if err != nil {
		return 0, errors.Wrapf(err, "%s.%s", vs.Class, vs.Method)
	}
	return result, nil
}
