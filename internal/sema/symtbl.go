// Package sema implements the four ordered symbol-table-building passes
// plus the type-checking pass described in spec.md §4.1.
//
// Each pass is a plain function over (table, node) rather than a visitor
// method, per the design note in spec.md §9: the original's per-pass
// visitor classes with a dozen empty overrides collapse into one function
// per pass and a type switch over ast.Stmt/ast.Expr.
package sema

import (
	"fmt"
	"sort"

	"github.com/pkg/errors"

	"github.com/d-netto/minivm/internal/ast"
)

// ClassSymbol is the per-class entry of the symbol table: name, optional
// parent, fields in insertion order, and methods in declaration order.
type ClassSymbol struct {
	Name    string
	Parent  *ClassSymbol // nil for the root of the hierarchy
	Fields  []string
	FieldTy map[string]ast.Type
	Methods []*MethodSymbol
}

// MethodSymbol is the per-method entry: ordered parameters, a local-name to
// type map, and the declared return type.
type MethodSymbol struct {
	Name       string
	Params     []ast.VarDecl
	Locals     map[string]ast.Type
	ReturnType ast.Type
}

// MethodByName returns the method symbol named m, or nil.
func (c *ClassSymbol) MethodByName(m string) *MethodSymbol {
	for _, ms := range c.Methods {
		if ms.Name == m {
			return ms
		}
	}
	return nil
}

// LookupMethod walks c's parent chain (c included) looking for a method
// named m, matching spec.md §4.1's "lookup walks the parent chain" rule.
func (c *ClassSymbol) LookupMethod(m string) (*ClassSymbol, *MethodSymbol) {
	for cur := c; cur != nil; cur = cur.Parent {
		if ms := cur.MethodByName(m); ms != nil {
			return cur, ms
		}
	}
	return nil, nil
}

// IsSubtype reports whether c is other or a descendant of other, walking
// the parent chain (reflexive and transitive, per spec.md §8 property 1).
func (c *ClassSymbol) IsSubtype(other *ClassSymbol) bool {
	for cur := c; cur != nil; cur = cur.Parent {
		if cur == other {
			return true
		}
	}
	return false
}

// Table is the shared symbol table built up across the four collection
// passes and consumed by the type checker and the bytecode compiler.
type Table struct {
	Classes   map[string]*ClassSymbol
	MainClass *ClassSymbol
	order     []string // declaration order, for deterministic iteration
}

func newTable() *Table {
	return &Table{Classes: map[string]*ClassSymbol{}}
}

func (t *Table) declare(name string) *ClassSymbol {
	cs := &ClassSymbol{Name: name, FieldTy: map[string]ast.Type{}}
	t.Classes[name] = cs
	t.order = append(t.order, name)
	return cs
}

// ClassesInOrder returns every declared class (main class first) in
// source declaration order, for passes that must iterate deterministically
// (layout, vtable construction).
func (t *Table) ClassesInOrder() []*ClassSymbol {
	out := make([]*ClassSymbol, 0, len(t.order))
	for _, n := range t.order {
		out = append(out, t.Classes[n])
	}
	return out
}

// ResolveType maps a source type name to a concrete ast.Type, resolving
// class names against the table. Returns an error (UnknownClass) if a
// class-shaped type name is not declared.
func (t *Table) ResolveType(ty ast.Type) (ast.Type, error) {
	if ty.Kind == ast.ClassKind {
		if _, ok := t.Classes[ty.ClassName]; !ok {
			return ast.Type{}, errors.Wrapf(ErrUnknownClass, "type %q", ty.ClassName)
		}
	}
	return ty, nil
}

// Sentinel errors forming the taxonomy from spec.md §7. Wrapped with
// github.com/pkg/errors at each call site so a single top-level handler can
// print one diagnostic with full context.
var (
	ErrUnknownClass  = errors.New("UnknownClass")
	ErrUnknownSymbol = errors.New("UnknownSymbol")
	ErrUnknownMethod = errors.New("UnknownMethod")
	ErrTypeMismatch  = errors.New("TypeMismatch")
	ErrArityMismatch = errors.New("ArityMismatch")
)

// Build runs all five passes over prog and returns the fully resolved
// table, or the first fatal semantic error encountered (per spec.md §4.1,
// any typing violation is fatal for the compilation unit).
func Build(prog *ast.Program) (*Table, error) {
	t := newTable()

	if err := collectClasses(t, prog); err != nil {
		return nil, err
	}
	if err := resolveParents(t, prog); err != nil {
		return nil, err
	}
	if err := collectFields(t, prog); err != nil {
		return nil, err
	}
	if err := collectMethods(t, prog); err != nil {
		return nil, err
	}
	if err := typeCheck(t, prog); err != nil {
		return nil, err
	}
	return t, nil
}

// Pass 1: collect classes. Creates a class symbol for the main class
// (pre-populated with a zero-arg `main` returning int) and for every
// declared class, with empty field/method sets.
func collectClasses(t *Table, prog *ast.Program) error {
	main := t.declare(prog.Main.Name)
	main.Methods = append(main.Methods, &MethodSymbol{
		Name:       "main",
		Locals:     map[string]ast.Type{},
		ReturnType: ast.IntType(),
	})
	t.MainClass = main

	seen := map[string]bool{prog.Main.Name: true}
	for _, cd := range prog.Classes {
		if seen[cd.Name] {
			return errors.Errorf("duplicate class declaration %q", cd.Name)
		}
		seen[cd.Name] = true
		t.declare(cd.Name)
	}
	return nil
}

// Pass 2: resolve parents. Fails with ErrUnknownClass if a parent clause
// names an undeclared class.
func resolveParents(t *Table, prog *ast.Program) error {
	for _, cd := range prog.Classes {
		if cd.Parent == "" {
			continue
		}
		parent, ok := t.Classes[cd.Parent]
		if !ok {
			return errors.Wrapf(ErrUnknownClass, "class %q extends unknown class %q", cd.Name, cd.Parent)
		}
		t.Classes[cd.Name].Parent = parent
	}
	return nil
}

// Pass 3: collect fields, resolving each declared field type via the
// table's type resolver.
func collectFields(t *Table, prog *ast.Program) error {
	for _, cd := range prog.Classes {
		cs := t.Classes[cd.Name]
		for _, f := range cd.Fields {
			if _, dup := cs.FieldTy[f.Name]; dup {
				return errors.Errorf("class %q declares field %q more than once", cd.Name, f.Name)
			}
			ty, err := t.ResolveType(f.Type)
			if err != nil {
				return errors.Wrapf(err, "field %q of class %q", f.Name, cd.Name)
			}
			cs.Fields = append(cs.Fields, f.Name)
			cs.FieldTy[f.Name] = ty
		}
	}
	return nil
}

// Pass 4: collect methods. Builds a MethodSymbol per declaration: ordered
// params, a local-name map, and the resolved return type.
func collectMethods(t *Table, prog *ast.Program) error {
	for _, cd := range prog.Classes {
		cs := t.Classes[cd.Name]
		seen := map[string]bool{}
		for _, md := range cd.Methods {
			if seen[md.Name] {
				return errors.Errorf("class %q declares method %q more than once", cd.Name, md.Name)
			}
			seen[md.Name] = true

			ms := &MethodSymbol{Name: md.Name, Locals: map[string]ast.Type{}}
			for _, p := range md.Params {
				pty, err := t.ResolveType(p.Type)
				if err != nil {
					return errors.Wrapf(err, "parameter %q of %s.%s", p.Name, cd.Name, md.Name)
				}
				ms.Params = append(ms.Params, ast.VarDecl{Name: p.Name, Type: pty})
			}
			for _, l := range md.Locals {
				lty, err := t.ResolveType(l.Type)
				if err != nil {
					return errors.Wrapf(err, "local %q of %s.%s", l.Name, cd.Name, md.Name)
				}
				if _, dup := ms.Locals[l.Name]; dup {
					return errors.Errorf("method %s.%s declares local %q more than once", cd.Name, md.Name, l.Name)
				}
				ms.Locals[l.Name] = lty
			}
			rty, err := t.ResolveType(md.ReturnType)
			if err != nil {
				return errors.Wrapf(err, "return type of %s.%s", cd.Name, md.Name)
			}
			ms.ReturnType = rty
			cs.Methods = append(cs.Methods, ms)
		}
	}
	return nil
}

// String renders the resolved hierarchy, fields, and method signatures, in
// the teacher's plain-text debug-dump style. Exposed via the CLI's
// --emit-symtbl flag (see SPEC_FULL.md §4).
func (t *Table) String() string {
	out := ""
	names := append([]string{}, t.order...)
	sort.Strings(names)
	for _, name := range names {
		cs := t.Classes[name]
		parent := "<none>"
		if cs.Parent != nil {
			parent = cs.Parent.Name
		}
		out += fmt.Sprintf("class %s (parent: %s)\n", cs.Name, parent)
		for _, f := range cs.Fields {
			out += fmt.Sprintf("  field %s: %s\n", f, cs.FieldTy[f])
		}
		for _, m := range cs.Methods {
			out += fmt.Sprintf("  method %s(", m.Name)
			for i, p := range m.Params {
				if i > 0 {
					out += ", "
				}
				out += fmt.Sprintf("%s: %s", p.Name, p.Type)
			}
			out += fmt.Sprintf(") -> %s\n", m.ReturnType)
		}
	}
	return out
}
