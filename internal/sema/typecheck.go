package sema

import (
	"github.com/pkg/errors"

	"github.com/d-netto/minivm/internal/ast"
)

// context carries the (current-class, current-method) pair threaded through
// the type-checking pass, replacing the original's mutable `context_t`
// fields with an explicit value passed to every function (spec.md §9).
type context struct {
	class  *ClassSymbol
	method *MethodSymbol
}

// typeCheck is the fifth pass: it traverses every method body (and the
// main method) and assigns a type to every expression, failing fast on the
// first typing-rule violation (spec.md §4.1).
func typeCheck(t *Table, prog *ast.Program) error {
	mainCtx := context{class: t.MainClass, method: t.MainClass.Methods[0]}
	if err := checkStmt(t, mainCtx, prog.Main.Body); err != nil {
		return errors.Wrapf(err, "in %s.main", prog.Main.Name)
	}

	for _, cd := range prog.Classes {
		cs := t.Classes[cd.Name]
		for _, md := range cd.Methods {
			ms := cs.MethodByName(md.Name)
			ctx := context{class: cs, method: ms}
			for _, s := range md.Body {
				if err := checkStmt(t, ctx, s); err != nil {
					return errors.Wrapf(err, "in %s.%s", cd.Name, md.Name)
				}
			}
			retTy, err := checkExpr(t, ctx, md.Return)
			if err != nil {
				return errors.Wrapf(err, "in %s.%s return expression", cd.Name, md.Name)
			}
			if !retTy.Equal(ms.ReturnType) {
				return errors.Wrapf(ErrTypeMismatch, "%s.%s: return type %s does not match declared %s", cd.Name, md.Name, retTy, ms.ReturnType)
			}
		}
	}
	return nil
}

func checkStmt(t *Table, ctx context, s ast.Stmt) error {
	switch n := s.(type) {
	case *ast.BlockStmt:
		for _, inner := range n.Stmts {
			if err := checkStmt(t, ctx, inner); err != nil {
				return err
			}
		}
		return nil

	case *ast.IfStmt:
		ty, err := checkExpr(t, ctx, n.Cond)
		if err != nil {
			return err
		}
		if ty.Kind != ast.BoolKind {
			return errors.Wrapf(ErrTypeMismatch, "if condition must be boolean, got %s", ty)
		}
		if err := checkStmt(t, ctx, n.Then); err != nil {
			return err
		}
		return checkStmt(t, ctx, n.Else)

	case *ast.WhileStmt:
		ty, err := checkExpr(t, ctx, n.Cond)
		if err != nil {
			return err
		}
		if ty.Kind != ast.BoolKind {
			return errors.Wrapf(ErrTypeMismatch, "while condition must be boolean, got %s", ty)
		}
		return checkStmt(t, ctx, n.Body)

	case *ast.PrintStmt:
		ty, err := checkExpr(t, ctx, n.Value)
		if err != nil {
			return err
		}
		if ty.Kind != ast.IntKind {
			return errors.Wrapf(ErrTypeMismatch, "println argument must be an integer, got %s", ty)
		}
		return nil

	case *ast.AssignStmt:
		declTy, _, err := lookupSymbol(t, ctx, n.Name)
		if err != nil {
			return err
		}
		valTy, err := checkExpr(t, ctx, n.Value)
		if err != nil {
			return err
		}
		if !assignable(t, valTy, declTy) {
			return errors.Wrapf(ErrTypeMismatch, "cannot assign %s to %q of type %s", valTy, n.Name, declTy)
		}
		return nil

	case *ast.ArrayAssignStmt:
		declTy, _, err := lookupSymbol(t, ctx, n.Name)
		if err != nil {
			return err
		}
		if declTy.Kind != ast.IntArrayKind {
			return errors.Wrapf(ErrTypeMismatch, "%q is not an array", n.Name)
		}
		idxTy, err := checkExpr(t, ctx, n.Index)
		if err != nil {
			return err
		}
		if idxTy.Kind != ast.IntKind {
			return errors.Wrapf(ErrTypeMismatch, "array index must be an integer, got %s", idxTy)
		}
		valTy, err := checkExpr(t, ctx, n.Value)
		if err != nil {
			return err
		}
		if valTy.Kind != ast.IntKind {
			return errors.Wrapf(ErrTypeMismatch, "array element must be an integer, got %s", valTy)
		}
		return nil

	default:
		return errors.Errorf("unhandled statement type %T", s)
	}
}

func checkExpr(t *Table, ctx context, e ast.Expr) (ast.Type, error) {
	switch n := e.(type) {
	case *ast.IntLiteral:
		n.SetResolved(ast.IntType())
		return ast.IntType(), nil

	case *ast.BoolLiteral:
		n.SetResolved(ast.BoolType())
		return ast.BoolType(), nil

	case *ast.ThisExpr:
		ty := ast.ClassType(ctx.class.Name)
		n.SetResolved(ty)
		return ty, nil

	case *ast.IdentExpr:
		ty, _, err := lookupSymbol(t, ctx, n.Name)
		if err != nil {
			return ast.Type{}, err
		}
		n.SetResolved(ty)
		return ty, nil

	case *ast.NotExpr:
		vty, err := checkExpr(t, ctx, n.Value)
		if err != nil {
			return ast.Type{}, err
		}
		if vty.Kind != ast.BoolKind {
			return ast.Type{}, errors.Wrapf(ErrTypeMismatch, "! requires a boolean operand, got %s", vty)
		}
		n.SetResolved(ast.BoolType())
		return ast.BoolType(), nil

	case *ast.BinaryExpr:
		lty, err := checkExpr(t, ctx, n.Left)
		if err != nil {
			return ast.Type{}, err
		}
		rty, err := checkExpr(t, ctx, n.Right)
		if err != nil {
			return ast.Type{}, err
		}
		switch n.Op {
		case ast.Add, ast.Sub, ast.Mul:
			if lty.Kind != ast.IntKind || rty.Kind != ast.IntKind {
				return ast.Type{}, errors.Wrapf(ErrTypeMismatch, "arithmetic requires integer operands, got %s and %s", lty, rty)
			}
			n.SetResolved(ast.IntType())
			return ast.IntType(), nil
		case ast.Lt:
			if lty.Kind != ast.IntKind || rty.Kind != ast.IntKind {
				return ast.Type{}, errors.Wrapf(ErrTypeMismatch, "< requires integer operands, got %s and %s", lty, rty)
			}
			n.SetResolved(ast.BoolType())
			return ast.BoolType(), nil
		case ast.And:
			if lty.Kind != ast.BoolKind || rty.Kind != ast.BoolKind {
				return ast.Type{}, errors.Wrapf(ErrTypeMismatch, "&& requires boolean operands, got %s and %s", lty, rty)
			}
			n.SetResolved(ast.BoolType())
			return ast.BoolType(), nil
		default:
			return ast.Type{}, errors.Errorf("unhandled binary operator %v", n.Op)
		}

	case *ast.ArrayLengthExpr:
		aty, err := checkExpr(t, ctx, n.Array)
		if err != nil {
			return ast.Type{}, err
		}
		if aty.Kind != ast.IntArrayKind {
			return ast.Type{}, errors.Wrapf(ErrTypeMismatch, ".length requires an array, got %s", aty)
		}
		n.SetResolved(ast.IntType())
		return ast.IntType(), nil

	case *ast.ArrayIndexExpr:
		aty, err := checkExpr(t, ctx, n.Array)
		if err != nil {
			return ast.Type{}, err
		}
		if aty.Kind != ast.IntArrayKind {
			return ast.Type{}, errors.Wrapf(ErrTypeMismatch, "indexing requires an array, got %s", aty)
		}
		ity, err := checkExpr(t, ctx, n.Index)
		if err != nil {
			return ast.Type{}, err
		}
		if ity.Kind != ast.IntKind {
			return ast.Type{}, errors.Wrapf(ErrTypeMismatch, "array index must be an integer, got %s", ity)
		}
		n.SetResolved(ast.IntType())
		return ast.IntType(), nil

	case *ast.NewIntArrayExpr:
		sty, err := checkExpr(t, ctx, n.Size)
		if err != nil {
			return ast.Type{}, err
		}
		if sty.Kind != ast.IntKind {
			return ast.Type{}, errors.Wrapf(ErrTypeMismatch, "array size must be an integer, got %s", sty)
		}
		n.SetResolved(ast.IntArrayType())
		return ast.IntArrayType(), nil

	case *ast.NewObjectExpr:
		if _, ok := t.Classes[n.ClassName]; !ok {
			return ast.Type{}, errors.Wrapf(ErrUnknownClass, "new %s()", n.ClassName)
		}
		ty := ast.ClassType(n.ClassName)
		n.SetResolved(ty)
		return ty, nil

	case *ast.MethodCallExpr:
		rty, err := checkExpr(t, ctx, n.Receiver)
		if err != nil {
			return ast.Type{}, err
		}
		if rty.Kind != ast.ClassKind {
			return ast.Type{}, errors.Wrapf(ErrTypeMismatch, "method call receiver must be a class type, got %s", rty)
		}
		recvClass := t.Classes[rty.ClassName]
		_, ms := recvClass.LookupMethod(n.Method)
		if ms == nil {
			return ast.Type{}, errors.Wrapf(ErrUnknownMethod, "%s has no method %q", rty.ClassName, n.Method)
		}
		if len(n.Args) != len(ms.Params) {
			return ast.Type{}, errors.Wrapf(ErrArityMismatch, "%s.%s expects %d argument(s), got %d", rty.ClassName, n.Method, len(ms.Params), len(n.Args))
		}
		for i, arg := range n.Args {
			aty, err := checkExpr(t, ctx, arg)
			if err != nil {
				return ast.Type{}, err
			}
			if !assignable(t, aty, ms.Params[i].Type) {
				return ast.Type{}, errors.Wrapf(ErrTypeMismatch, "%s.%s argument %d: cannot pass %s as %s", rty.ClassName, n.Method, i, aty, ms.Params[i].Type)
			}
		}
		n.StaticClass = rty.ClassName
		n.SetResolved(ms.ReturnType)
		return ms.ReturnType, nil

	default:
		return ast.Type{}, errors.Errorf("unhandled expression type %T", e)
	}
}

// assignable implements spec.md §4.1's assignment typing rule: primitive
// and array types require equality; class types require subtype
// compatibility (the original requires class equality — REDESIGN per
// spec.md §9 Open Question 3, documented in DESIGN.md).
func assignable(t *Table, from, to ast.Type) bool {
	if to.Kind == ast.ClassKind && from.Kind == ast.ClassKind {
		fromClass, toClass := t.Classes[from.ClassName], t.Classes[to.ClassName]
		return fromClass != nil && toClass != nil && fromClass.IsSubtype(toClass)
	}
	return from.Equal(to)
}

// lookupSymbol resolves a bare identifier per spec.md §4.1: method params,
// then method locals, then the current class's own fields, then an
// ancestor's fields walking toward the root. kind reports which bucket the
// name was found in ("param", "local", "field").
func lookupSymbol(t *Table, ctx context, name string) (ast.Type, string, error) {
	for _, p := range ctx.method.Params {
		if p.Name == name {
			return p.Type, "param", nil
		}
	}
	if ty, ok := ctx.method.Locals[name]; ok {
		return ty, "local", nil
	}
	for cs := ctx.class; cs != nil; cs = cs.Parent {
		if ty, ok := cs.FieldTy[name]; ok {
			return ty, "field", nil
		}
	}
	return ast.Type{}, "", errors.Wrapf(ErrUnknownSymbol, "identifier %q", name)
}
