// Package compiler lowers a type-checked AST into the linear bytecode
// described in spec.md §4.2: expression/statement lowering into a
// basic-block graph (block.go), followed by branch resolution and
// linearization (resolve, in block.go).
package compiler

import (
	"github.com/pkg/errors"

	"github.com/d-netto/minivm/internal/ast"
	"github.com/d-netto/minivm/internal/bytecode"
	"github.com/d-netto/minivm/internal/layout"
	"github.com/d-netto/minivm/internal/sema"
)

// Compile lowers every method in prog (the main method first) into its
// finalized instruction vector, writing the result directly into the
// corresponding entries of set.
func Compile(t *sema.Table, set *layout.Set, prog *ast.Program) error {
	mainLayout := set.MethodByName(t.MainClass.Name, "main")
	if err := compileMethod(t, set, mainLayout, t.MainClass.Name, nil, prog.Main.Body, nil); err != nil {
		return errors.Wrapf(err, "compiling %s.main", t.MainClass.Name)
	}

	for _, cd := range prog.Classes {
		for _, md := range cd.Methods {
			ml := set.MethodByName(cd.Name, md.Name)
			if err := compileMethod(t, set, ml, cd.Name, md, nil, md.Return); err != nil {
				return errors.Wrapf(err, "compiling %s.%s", cd.Name, md.Name)
			}
		}
	}
	return nil
}

// methodCtx carries everything lowering needs for one method: its layout
// (for slot/field resolution), the block arena it is emitting into, and
// the current block instructions are appended to (replacing the original's
// single mutable `current_basic_block` global, per spec.md §9).
type methodCtx struct {
	table       *sema.Table
	set         *layout.Set
	class       string
	classLayout *layout.ClassLayout
	method      *layout.MethodLayout
	arena       *blockArena
	cur         *block
}

func (mc *methodCtx) emit(i bytecode.Instruction) {
	mc.cur.instructions = append(mc.cur.instructions, i)
}

// compileMethod lowers one method body (block of statements plus a trailing
// return expression for ordinary methods, or a single statement for main)
// into its method layout's Instructions field.
func compileMethod(t *sema.Table, set *layout.Set, ml *layout.MethodLayout, class string, md *ast.MethodDecl, mainBody ast.Stmt, ret ast.Expr) error {
	mc := &methodCtx{
		table:       t,
		set:         set,
		class:       class,
		classLayout: set.ClassByName(class),
		method:      ml,
		arena:       &blockArena{},
	}
	mc.cur = mc.arena.newBlock()

	if mainBody != nil {
		if err := lowerStmt(mc, mainBody); err != nil {
			return err
		}
		mc.emit(bytecode.NewInstr(bytecode.Return))
		ml.Instructions = resolve(mc.arena)
		return nil
	}

	for _, s := range md.Body {
		if err := lowerStmt(mc, s); err != nil {
			return err
		}
	}
	if err := lowerExpr(mc, ret); err != nil {
		return err
	}
	mc.emit(bytecode.NewInstr(bytecode.Return))
	ml.Instructions = resolve(mc.arena)
	return nil
}

func lowerStmt(mc *methodCtx, s ast.Stmt) error {
	switch n := s.(type) {
	case *ast.BlockStmt:
		for _, inner := range n.Stmts {
			if err := lowerStmt(mc, inner); err != nil {
				return err
			}
		}
		return nil

	case *ast.IfStmt:
		return lowerIf(mc, n)

	case *ast.WhileStmt:
		return lowerWhile(mc, n)

	case *ast.PrintStmt:
		if err := lowerExpr(mc, n.Value); err != nil {
			return err
		}
		mc.emit(bytecode.NewInstr(bytecode.Print))
		return nil

	case *ast.AssignStmt:
		if err := lowerExpr(mc, n.Value); err != nil {
			return err
		}
		return lowerStoreTo(mc, n.Name)

	case *ast.ArrayAssignStmt:
		return lowerArrayAssign(mc, n)

	default:
		return errors.Errorf("unhandled statement type %T", s)
	}
}

// lowerIf lowers `if (c) Then else Else` per spec.md §4.2: the cond-block
// ends in goto_if_false (operand patched later to the else-block's start),
// the then-block ends in an unconditional goto to the join block, and the
// else-block falls through into the join block. Blocks are created in
// exactly that order — cond (reused as mc.cur), then, else, join — which
// is what makes creation-order linearization correct (see block.go).
func lowerIf(mc *methodCtx, n *ast.IfStmt) error {
	if err := lowerExpr(mc, n.Cond); err != nil {
		return err
	}
	condBlock := mc.cur
	mc.emit(bytecode.NewInstr1(bytecode.GotoIfFalse, 0))

	thenBlock := mc.arena.newBlock()
	condBlock.then = thenBlock
	mc.cur = thenBlock
	if err := lowerStmt(mc, n.Then); err != nil {
		return err
	}
	thenEnd := mc.cur
	thenEnd.instructions = append(thenEnd.instructions, bytecode.NewInstr1(bytecode.Goto, 0))

	elseBlock := mc.arena.newBlock()
	condBlock.els = elseBlock
	mc.cur = elseBlock
	if err := lowerStmt(mc, n.Else); err != nil {
		return err
	}
	elseEnd := mc.cur

	joinBlock := mc.arena.newBlock()
	thenEnd.then = joinBlock
	elseEnd.then = joinBlock
	mc.cur = joinBlock
	return nil
}

// lowerWhile lowers `while (c) Body` per spec.md §4.2: the current block
// falls through into the cond-block; the cond-block ends in goto_if_false
// to the exit block; the body-block follows the cond-block and ends in an
// unconditional goto back to the cond-block's start; the exit block is
// created last and becomes current.
func lowerWhile(mc *methodCtx, n *ast.WhileStmt) error {
	condBlock := mc.arena.newBlock()
	mc.cur.then = condBlock
	mc.cur = condBlock
	if err := lowerExpr(mc, n.Cond); err != nil {
		return err
	}
	mc.emit(bytecode.NewInstr1(bytecode.GotoIfFalse, 0))

	bodyBlock := mc.arena.newBlock()
	condBlock.then = bodyBlock
	mc.cur = bodyBlock
	if err := lowerStmt(mc, n.Body); err != nil {
		return err
	}
	bodyEnd := mc.cur
	bodyEnd.instructions = append(bodyEnd.instructions, bytecode.NewInstr1(bytecode.Goto, 0))
	bodyEnd.then = condBlock

	exitBlock := mc.arena.newBlock()
	condBlock.els = exitBlock
	mc.cur = exitBlock
	return nil
}

// lowerArrayAssign lowers `x[i] = e`. Per spec.md §4.2 and §9 Open
// Question 1, we take the unified discipline: always push the array value
// itself, so Iastore's stack layout is [index, value, array] regardless of
// whether the array lives in an arg/local or a field (see vm's Iastore
// handler for the matching pop order).
func lowerArrayAssign(mc *methodCtx, n *ast.ArrayAssignStmt) error {
	if err := lowerExpr(mc, n.Index); err != nil {
		return err
	}
	if err := lowerExpr(mc, n.Value); err != nil {
		return err
	}
	return lowerLoadFrom(mc, n.Name, bytecode.NewInstr(bytecode.Iastore))
}

// lowerLoadFrom pushes the named arg/local/field's value (the receiver of
// an array operation) and then emits trailer, which consumes it.
func lowerLoadFrom(mc *methodCtx, name string, trailer bytecode.Instruction) error {
	if slot, ok := resolveSlot(mc.method, name); ok {
		mc.emit(bytecode.NewInstr1(bytecode.Load, int64(slot)))
		mc.emit(trailer)
		return nil
	}
	idx, ok := fieldIndex(mc.classLayout, name)
	if !ok {
		return errors.Errorf("%s.%s: unknown variable %q", mc.class, mc.method.Method, name)
	}
	mc.emit(bytecode.NewInstr1(bytecode.Load, 0))
	mc.emit(bytecode.NewInstr1(bytecode.Getfield, int64(idx)))
	mc.emit(trailer)
	return nil
}

// lowerStoreTo lowers an assignment's destination per spec.md §4.2: an
// arg/local is a direct store; a field requires pushing `this` first and
// using putfield (receiver order: value then object, per Putfield's
// documented stack effect).
func lowerStoreTo(mc *methodCtx, name string) error {
	if slot, ok := resolveSlot(mc.method, name); ok {
		mc.emit(bytecode.NewInstr1(bytecode.Store, int64(slot)))
		return nil
	}
	idx, ok := fieldIndex(mc.classLayout, name)
	if !ok {
		return errors.Errorf("%s.%s: unknown variable %q", mc.class, mc.method.Method, name)
	}
	// Stack is [value]; putfield wants [value, object].
	mc.emit(bytecode.NewInstr1(bytecode.Load, 0))
	mc.emit(bytecode.NewInstr1(bytecode.Putfield, int64(idx)))
	return nil
}

// resolveSlot implements the arg/local numbering discipline from spec.md
// §4.2: locals slot 0 is reserved for `this`; arg i (0-based) maps to slot
// i+1; local j (0-based) maps to slot len(args)+1+j.
func resolveSlot(ml *layout.MethodLayout, name string) (int, bool) {
	for i, a := range ml.Args {
		if a == name {
			return i + 1, true
		}
	}
	for j, l := range ml.Locals {
		if l == name {
			return len(ml.Args) + 1 + j, true
		}
	}
	return 0, false
}

func fieldIndex(cl *layout.ClassLayout, name string) (int, bool) {
	for i, f := range cl.Fields {
		if f == name {
			return i, true
		}
	}
	return 0, false
}

func lowerExpr(mc *methodCtx, e ast.Expr) error {
	switch n := e.(type) {
	case *ast.IntLiteral:
		mc.emit(bytecode.NewInstr1(bytecode.Ldc, n.Value))
		return nil

	case *ast.BoolLiteral:
		v := int64(0)
		if n.Value {
			v = 1
		}
		mc.emit(bytecode.NewInstr1(bytecode.Ldc, v))
		return nil

	case *ast.ThisExpr:
		mc.emit(bytecode.NewInstr1(bytecode.Load, 0))
		return nil

	case *ast.IdentExpr:
		if slot, ok := resolveSlot(mc.method, n.Name); ok {
			mc.emit(bytecode.NewInstr1(bytecode.Load, int64(slot)))
			return nil
		}
		idx, ok := fieldIndex(mc.classLayout, n.Name)
		if !ok {
			return errors.Errorf("%s.%s: unknown variable %q", mc.class, mc.method.Method, n.Name)
		}
		mc.emit(bytecode.NewInstr1(bytecode.Load, 0))
		mc.emit(bytecode.NewInstr1(bytecode.Getfield, int64(idx)))
		return nil

	case *ast.NotExpr:
		if err := lowerExpr(mc, n.Value); err != nil {
			return err
		}
		mc.emit(bytecode.NewInstr(bytecode.Bneg))
		return nil

	case *ast.BinaryExpr:
		if err := lowerExpr(mc, n.Left); err != nil {
			return err
		}
		if err := lowerExpr(mc, n.Right); err != nil {
			return err
		}
		switch n.Op {
		case ast.Add:
			mc.emit(bytecode.NewInstr(bytecode.Iadd))
		case ast.Sub:
			mc.emit(bytecode.NewInstr(bytecode.Isub))
		case ast.Mul:
			mc.emit(bytecode.NewInstr(bytecode.Imul))
		case ast.Lt:
			mc.emit(bytecode.NewInstr(bytecode.Ilt))
		case ast.And:
			// Compiled to bitwise and: both sides always evaluate, no
			// short-circuit (spec.md §9 Open Question 2).
			mc.emit(bytecode.NewInstr(bytecode.Band))
		default:
			return errors.Errorf("unhandled binary operator %v", n.Op)
		}
		return nil

	case *ast.ArrayLengthExpr:
		if err := lowerExpr(mc, n.Array); err != nil {
			return err
		}
		mc.emit(bytecode.NewInstr(bytecode.Length))
		return nil

	case *ast.ArrayIndexExpr:
		// Iaload wants [index, array]: index pushed before the array.
		if err := lowerExpr(mc, n.Index); err != nil {
			return err
		}
		if err := lowerExpr(mc, n.Array); err != nil {
			return err
		}
		mc.emit(bytecode.NewInstr(bytecode.Iaload))
		return nil

	case *ast.NewIntArrayExpr:
		if err := lowerExpr(mc, n.Size); err != nil {
			return err
		}
		mc.emit(bytecode.NewInstr(bytecode.Newarray))
		return nil

	case *ast.NewObjectExpr:
		idx := mc.set.ClassIndex(n.ClassName)
		if idx < 0 {
			return errors.Errorf("new %s(): unknown class", n.ClassName)
		}
		mc.emit(bytecode.NewInstr1(bytecode.New, int64(idx)))
		return nil

	case *ast.MethodCallExpr:
		if err := lowerExpr(mc, n.Receiver); err != nil {
			return err
		}
		for _, a := range n.Args {
			if err := lowerExpr(mc, a); err != nil {
				return err
			}
		}
		recvLayout := mc.set.ClassByName(n.StaticClass)
		if recvLayout == nil {
			return errors.Errorf("%s.%s(...): unknown static receiver class %q", mc.class, n.Method, n.StaticClass)
		}
		slot := -1
		for i, v := range recvLayout.Vtbl {
			if v.Method == n.Method {
				slot = i
				break
			}
		}
		if slot < 0 {
			return errors.Errorf("%s.%s(...): method not found in vtable", mc.class, n.Method)
		}
		mc.emit(bytecode.NewInvoke(int64(slot), int64(1+len(n.Args))))
		return nil

	default:
		return errors.Errorf("unhandled expression type %T", e)
	}
}
