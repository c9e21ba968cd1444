package compiler

import (
	"testing"

	"github.com/d-netto/minivm/internal/bytecode"
	"github.com/d-netto/minivm/internal/layout"
	"github.com/d-netto/minivm/internal/parser"
	"github.com/d-netto/minivm/internal/sema"
)

func compile(t *testing.T, src string) *layout.Set {
	t.Helper()
	prog, err := parser.New(src).Parse()
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	tbl, err := sema.Build(prog)
	if err != nil {
		t.Fatalf("sema error: %v", err)
	}
	set := layout.Build(tbl, prog)
	if err := Compile(tbl, set, prog); err != nil {
		t.Fatalf("compile error: %v", err)
	}
	return set
}

// assertValidBranches checks the bounds half of spec.md §8 property 4:
// every goto/goto_if_false operand is a valid index into its own method's
// instruction vector. It also checks that the method ends in a return.
// Whether a branch lands on its intended block is checked by
// TestCompile_GotoTargetsBlockStart.
func assertValidBranches(t *testing.T, ml *layout.MethodLayout) {
	t.Helper()
	n := len(ml.Instructions)
	for i, inst := range ml.Instructions {
		switch inst.Op {
		case bytecode.Goto, bytecode.GotoIfFalse:
			if inst.Operand < 0 || int(inst.Operand) >= n {
				t.Errorf("%s.%s instruction %d (%s): operand %d out of bounds [0,%d)", ml.Class, ml.Method, i, inst.Op, inst.Operand, n)
			}
		}
	}
	// The method must end in a return; nothing should be unreachable after it.
	if n == 0 || ml.Instructions[n-1].Op != bytecode.Return {
		t.Errorf("%s.%s: expected the last instruction to be return, got %v", ml.Class, ml.Method, ml.Instructions[n-1].Op)
	}
}

func TestCompile_WhileLoopBranchesAreValid(t *testing.T) {
	src := `
class Main { public static void main(String[] a) { System.out.println(1); } }
class Sum {
    public int compute() {
        int i;
        int acc;
        i = 1;
        acc = 0;
        while (i < 11) {
            acc = acc + i;
            i = i + 1;
        }
        return acc;
    }
}`
	set := compile(t, src)
	ml := set.MethodByName("Sum", "compute")
	assertValidBranches(t, ml)

	// There must be exactly one goto_if_false (loop exit test) and one
	// unconditional goto (the back edge to the condition).
	var gotoCount, gifCount int
	for _, inst := range ml.Instructions {
		switch inst.Op {
		case bytecode.Goto:
			gotoCount++
		case bytecode.GotoIfFalse:
			gifCount++
		}
	}
	if gotoCount != 1 || gifCount != 1 {
		t.Errorf("expected exactly one goto and one goto_if_false, got %d and %d", gotoCount, gifCount)
	}
}

func TestCompile_IfElseBranchesAreValid(t *testing.T) {
	src := `
class Main { public static void main(String[] a) { System.out.println(1); } }
class C {
    public int run() {
        int acc;
        if (1 < 2) {
            acc = 1;
        } else {
            acc = 2;
        }
        return acc;
    }
}`
	set := compile(t, src)
	ml := set.MethodByName("C", "run")
	assertValidBranches(t, ml)
}

func TestCompile_NestedIfInsideWhile(t *testing.T) {
	src := `
class Main { public static void main(String[] a) { System.out.println(1); } }
class C {
    public int run() {
        int i;
        int acc;
        i = 0;
        acc = 0;
        while (i < 10) {
            if (i < 5) {
                acc = acc + 1;
            } else {
                acc = acc + 2;
            }
            i = i + 1;
        }
        return acc;
    }
}`
	set := compile(t, src)
	ml := set.MethodByName("C", "run")
	assertValidBranches(t, ml)
}

func TestCompile_GotoTargetsBlockStart(t *testing.T) {
	// The goto_if_false for a while loop's condition must target the first
	// instruction strictly after the loop body, i.e. the exit block start,
	// and that instruction must be reachable (not itself a stray mid-block
	// offset).
	src := `
class Main { public static void main(String[] a) { System.out.println(1); } }
class C {
    public int run() {
        int i;
        i = 0;
        while (i < 3) {
            i = i + 1;
        }
        return i;
    }
}`
	set := compile(t, src)
	ml := set.MethodByName("C", "run")

	var gifIdx = -1
	for i, inst := range ml.Instructions {
		if inst.Op == bytecode.GotoIfFalse {
			gifIdx = i
			break
		}
	}
	if gifIdx < 0 {
		t.Fatal("expected a goto_if_false instruction")
	}
	target := int(ml.Instructions[gifIdx].Operand)
	if target <= gifIdx {
		t.Errorf("expected the loop-exit branch to jump forward past the body, got target %d <= gif %d", target, gifIdx)
	}
	if target < 0 || target >= len(ml.Instructions) {
		t.Errorf("branch target %d out of range [0,%d)", target, len(ml.Instructions))
	} else if target > 0 && ml.Instructions[target-1].Op != bytecode.Goto {
		t.Errorf("expected the loop-exit target to follow the body's back-edge goto, got %s at %d", ml.Instructions[target-1].Op, target-1)
	}
}

func TestCompile_FieldAssignmentUsesPutfieldWithThis(t *testing.T) {
	src := `
class Main { public static void main(String[] a) { System.out.println(1); } }
class P { int x; }
class C extends P {
    public int run() {
        x = 5;
        return x;
    }
}`
	set := compile(t, src)
	ml := set.MethodByName("C", "run")
	assertValidBranches(t, ml)

	var sawPutfield bool
	for i, inst := range ml.Instructions {
		if inst.Op == bytecode.Putfield {
			sawPutfield = true
			if inst.Operand != 0 {
				t.Errorf("expected inherited field x at index 0, got %d", inst.Operand)
			}
			if i == 0 || ml.Instructions[i-1] != bytecode.NewInstr1(bytecode.Load, 0) {
				t.Errorf("expected putfield at %d to be preceded by load 0 (this)", i)
			}
		}
	}
	if !sawPutfield {
		t.Error("expected a putfield instruction for the field assignment")
	}
}

func TestCompile_ArrayAssignUsesUnifiedIastoreDiscipline(t *testing.T) {
	// spec.md §9 Open Question 1 / DESIGN.md: Iastore always sees
	// [index, value, array] regardless of whether the array is a local or a
	// field, so Iastore itself carries no operand.
	src := `
class Main { public static void main(String[] a) { System.out.println(1); } }
class Arr {
    int buf;
    public int run() {
        int[] xs;
        xs = new int[3];
        xs[0] = 1;
        return xs[0];
    }
}`
	set := compile(t, src)
	ml := set.MethodByName("Arr", "run")
	assertValidBranches(t, ml)

	for _, inst := range ml.Instructions {
		if inst.Op == bytecode.Iastore && inst.Operand != 0 {
			t.Errorf("expected Iastore to carry no meaningful operand, got %d", inst.Operand)
		}
	}
}

func TestCompile_VirtualCallResolvesVtableSlot(t *testing.T) {
	src := `
class Main { public static void main(String[] a) { System.out.println(1); } }
class A { public int f() { return 1; } }
class B extends A { public int f() { return 2; } }
class Holder {
    public int run() {
        A x;
        x = new B();
        return x.f();
    }
}`
	set := compile(t, src)
	ml := set.MethodByName("Holder", "run")
	assertValidBranches(t, ml)

	var sawInvoke bool
	for _, inst := range ml.Instructions {
		if inst.Op == bytecode.Invoke {
			sawInvoke = true
			if inst.Operand2 != 1 {
				t.Errorf("expected invoke argcount 1 (receiver only), got %d", inst.Operand2)
			}
		}
	}
	if !sawInvoke {
		t.Error("expected an invoke instruction for x.f()")
	}
}

func TestCompile_CursorResetsBetweenMethods(t *testing.T) {
	// Two methods with loops: if the per-method cursor leaked across
	// methods, the second method's branch offsets would be shifted by the
	// first method's instruction count and fail bounds checking.
	src := `
class Main { public static void main(String[] a) { System.out.println(1); } }
class C {
    public int loop1() {
        int i;
        i = 0;
        while (i < 5) {
            i = i + 1;
        }
        return i;
    }
    public int loop2() {
        int j;
        j = 0;
        while (j < 7) {
            j = j + 1;
        }
        return j;
    }
}`
	set := compile(t, src)
	assertValidBranches(t, set.MethodByName("C", "loop1"))
	assertValidBranches(t, set.MethodByName("C", "loop2"))
}

