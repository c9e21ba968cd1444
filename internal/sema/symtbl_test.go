package sema

import (
	"testing"

	"github.com/d-netto/minivm/internal/ast"
	"github.com/d-netto/minivm/internal/parser"
)

func build(t *testing.T, src string) *Table {
	t.Helper()
	prog, err := parser.New(src).Parse()
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	tbl, err := Build(prog)
	if err != nil {
		t.Fatalf("sema.Build error: %v", err)
	}
	return tbl
}

const hierarchySrc = `
class Main {
    public static void main(String[] a) {
        System.out.println(1);
    }
}
class P {
    int x;
    public int f() {
        return 1;
    }
}
class C extends P {
    int y;
    public int f() {
        return 2;
    }
}
class D extends C {
}`

// TestSubtypeReflexiveAndTransitive verifies spec.md §8 property 1: every
// class is a subtype of itself, and subtyping composes along the chain.
func TestSubtypeReflexiveAndTransitive(t *testing.T) {
	tbl := build(t, hierarchySrc)
	p, c, d := tbl.Classes["P"], tbl.Classes["C"], tbl.Classes["D"]

	if !p.IsSubtype(p) {
		t.Error("P should be a subtype of itself")
	}
	if !c.IsSubtype(p) {
		t.Error("C should be a subtype of P")
	}
	if !d.IsSubtype(c) {
		t.Error("D should be a subtype of C")
	}
	if !d.IsSubtype(p) {
		t.Error("D should be a subtype of P transitively through C")
	}
	if p.IsSubtype(c) {
		t.Error("P should not be a subtype of its own subclass C")
	}
}

func TestLookupMethodWalksParentChain(t *testing.T) {
	tbl := build(t, hierarchySrc)
	d := tbl.Classes["D"]

	declClass, ms := d.LookupMethod("f")
	if ms == nil {
		t.Fatal("expected D to inherit method f from C")
	}
	if declClass.Name != "C" {
		t.Errorf("expected f to resolve to declaring class C (the override), got %s", declClass.Name)
	}
}

func TestResolveParents_UnknownParentFails(t *testing.T) {
	src := `
class Main { public static void main(String[] a) { System.out.println(1); } }
class C extends Ghost {
}`
	prog, err := parser.New(src).Parse()
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if _, err := Build(prog); err == nil {
		t.Fatal("expected UnknownClass error for undeclared parent")
	}
}

func TestCollectFields_DuplicateFieldFails(t *testing.T) {
	src := `
class Main { public static void main(String[] a) { System.out.println(1); } }
class C {
    int x;
    int x;
}`
	prog, err := parser.New(src).Parse()
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if _, err := Build(prog); err == nil {
		t.Fatal("expected an error for a class declaring the same field twice")
	}
}

func TestMainClassHasSingleMainMethod(t *testing.T) {
	tbl := build(t, hierarchySrc)
	if len(tbl.MainClass.Methods) != 1 || tbl.MainClass.Methods[0].Name != "main" {
		t.Fatalf("expected the main class to have exactly one method named main, got %#v", tbl.MainClass.Methods)
	}
	if !tbl.MainClass.Methods[0].ReturnType.Equal(ast.IntType()) {
		t.Errorf("expected main to return int, got %s", tbl.MainClass.Methods[0].ReturnType)
	}
}
