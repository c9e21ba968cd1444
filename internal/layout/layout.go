// Package layout implements spec.md §4.2's class/method layout pass and
// vtable builder: the bridge between the resolved symbol table and
// bytecode lowering.
package layout

import (
	"github.com/samber/lo"

	"github.com/d-netto/minivm/internal/ast"
	"github.com/d-netto/minivm/internal/bytecode"
	"github.com/d-netto/minivm/internal/sema"
)

// ClassLayout is the compile-time layout of one class: its field slots in
// allocation order (inherited fields first, most-distant ancestor to
// nearest, then the class's own) and its vtable (method slot to declaring
// (class, method) pair).
type ClassLayout struct {
	Name   string
	Parent string // "" when there is no parent
	Fields []string
	Vtbl   []VtblSlot
}

// VtblSlot is one dispatch-table entry: the method name and the class that
// currently supplies its implementation.
type VtblSlot struct {
	Method string
	Class  string
}

// MethodLayout is the compile-time layout of one method: its fully
// qualified name, its argument and local names (in declaration order), and
// (filled in later by internal/compiler) its finalized instruction vector.
type MethodLayout struct {
	Class, Method string
	Args          []string
	Locals        []string
	Instructions  []bytecode.Instruction // populated by internal/compiler
}

// Set is the full layout output: every class layout and every method
// layout, both in registration order.
type Set struct {
	Classes []*ClassLayout
	Methods []*MethodLayout
}

// ClassByName finds a class layout by name.
func (s *Set) ClassByName(name string) *ClassLayout {
	for _, c := range s.Classes {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// ClassIndex returns the index of the class-layout entry named name, used
// by `new k` lowering (spec.md §4.2).
func (s *Set) ClassIndex(name string) int {
	return lo.IndexOf(lo.Map(s.Classes, func(c *ClassLayout, _ int) string { return c.Name }), name)
}

// ClassName, MethodName, ArgNames, LocalNames, and InstructionList
// implement bytecode.DisassembleMethod so internal/bytecode can print a
// listing without importing internal/layout.
func (m *MethodLayout) ClassName() string  { return m.Class }
func (m *MethodLayout) MethodName() string { return m.Method }
func (m *MethodLayout) ArgNames() []string { return m.Args }
func (m *MethodLayout) LocalNames() []string { return m.Locals }
func (m *MethodLayout) InstructionList() []bytecode.Instruction { return m.Instructions }

// MethodByName finds the method layout for (class, method).
func (s *Set) MethodByName(class, method string) *MethodLayout {
	for _, m := range s.Methods {
		if m.Class == class && m.Method == method {
			return m
		}
	}
	return nil
}

// Build runs the class/method layout pass followed by the vtable pass and
// returns the combined Set.
func Build(t *sema.Table, prog *ast.Program) *Set {
	s := &Set{}
	buildClassLayouts(s, t, prog)
	registerMethodLayouts(s, t, prog)
	buildVtables(s, t)
	return s
}

// parentChain returns cs and every ancestor, nearest first, ending at the
// hierarchy root — the "nearest ancestor to root" order spec.md §4.2 calls
// for before the final reversal in buildClassLayouts.
func parentChain(cs *sema.ClassSymbol) []*sema.ClassSymbol {
	var chain []*sema.ClassSymbol
	for cur := cs; cur != nil; cur = cur.Parent {
		chain = append(chain, cur)
	}
	return chain
}

// buildClassLayouts walks every class in source order (main class first),
// concatenating each ancestor's own declared fields (distant-to-near)
// followed by the class's own fields.
func buildClassLayouts(s *Set, t *sema.Table, prog *ast.Program) {
	addClass := func(cs *sema.ClassSymbol) {
		chain := parentChain(cs) // nearest ancestor to root
		ancestors := lo.Reverse(chain[1:])
		var fields []string
		for _, anc := range ancestors {
			fields = append(fields, anc.Fields...)
		}
		fields = append(fields, cs.Fields...)

		parentName := ""
		if cs.Parent != nil {
			parentName = cs.Parent.Name
		}
		s.Classes = append(s.Classes, &ClassLayout{
			Name:   cs.Name,
			Parent: parentName,
			Fields: fields,
		})
	}

	addClass(t.MainClass)
	for _, cd := range prog.Classes {
		addClass(t.Classes[cd.Name])
	}
}

// registerMethodLayouts registers one method-layout entry per method
// declaration (main method first), preserving source order.
func registerMethodLayouts(s *Set, t *sema.Table, prog *ast.Program) {
	s.Methods = append(s.Methods, &MethodLayout{
		Class:  t.MainClass.Name,
		Method: "main",
	})

	for _, cd := range prog.Classes {
		for _, md := range cd.Methods {
			args := lo.Map(md.Params, func(p ast.VarDecl, _ int) string { return p.Name })
			locals := lo.Map(md.Locals, func(l ast.VarDecl, _ int) string { return l.Name })
			s.Methods = append(s.Methods, &MethodLayout{
				Class:  cd.Name,
				Method: md.Name,
				Args:   args,
				Locals: locals,
			})
		}
	}
}

// buildVtables computes, for every class, the dispatch table described in
// spec.md §4.2: iterate all registered method layouts in registration
// order; a layout whose declaring class is the target class or one of its
// ancestors either overwrites the existing slot for that method name
// (override) or appends a new one.
func buildVtables(s *Set, t *sema.Table) {
	for _, cl := range s.Classes {
		cs := t.Classes[cl.Name]
		chainNames := lo.Map(parentChain(cs), func(c *sema.ClassSymbol, _ int) string { return c.Name })

		for _, m := range s.Methods {
			if !lo.Contains(chainNames, m.Class) {
				continue
			}
			idx := lo.IndexOf(lo.Map(cl.Vtbl, func(v VtblSlot, _ int) string { return v.Method }), m.Method)
			if idx >= 0 {
				cl.Vtbl[idx] = VtblSlot{Method: m.Method, Class: m.Class}
			} else {
				cl.Vtbl = append(cl.Vtbl, VtblSlot{Method: m.Method, Class: m.Class})
			}
		}
	}
}
