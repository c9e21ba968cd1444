package vm_test

import (
	"bytes"
	"testing"

	"github.com/d-netto/minivm/internal/compiler"
	"github.com/d-netto/minivm/internal/layout"
	"github.com/d-netto/minivm/internal/parser"
	"github.com/d-netto/minivm/internal/sema"
	"github.com/d-netto/minivm/internal/vm"
)

// run compiles and executes src through the full pipeline (parser -> sema
// -> layout -> compiler -> vm) and returns everything written to stdout,
// the way cmd/minivm's runFile does.
func run(t *testing.T, src string) string {
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
	if err := compiler.Compile(tbl, set, prog); err != nil {
		t.Fatalf("compile error: %v", err)
	}
	var out bytes.Buffer
	interp := vm.New(set, 1<<20, &out)
	if err := interp.RunMain(); err != nil {
		t.Fatalf("runtime error: %v", err)
	}
	return out.String()
}

// TestS1_HelloInt is spec.md §8 scenario S1.
func TestS1_HelloInt(t *testing.T) {
	src := `
class Main {
    public static void main(String[] a) {
        System.out.println(42);
    }
}`
	if got, want := run(t, src), "42\n"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

// TestS2_Arithmetic is spec.md §8 scenario S2: `*` binds tighter than `+`.
func TestS2_Arithmetic(t *testing.T) {
	src := `
class Main {
    public static void main(String[] a) {
        System.out.println(2 + 3 * 4);
    }
}`
	if got, want := run(t, src), "14\n"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

// TestS3_WhileSum is spec.md §8 scenario S3: 1+2+...+10 via a while loop.
func TestS3_WhileSum(t *testing.T) {
	src := `
class Main {
    public static void main(String[] a) {
        System.out.println(new Sum().compute());
    }
}
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
	if got, want := run(t, src), "55\n"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

// TestS4_Array is spec.md §8 scenario S4. main's body is a single statement
// with no local-declaration grammar of its own (spec.md §6), so the array
// lives in a helper class's method, as in testdata/s4_array.mj.
func TestS4_Array(t *testing.T) {
	src := `
class Main {
    public static void main(String[] a) {
        System.out.println(new ArrayDemo().run());
    }
}
class ArrayDemo {
    public int run() {
        int[] arr;
        arr = new int[3];
        arr[0] = 7;
        arr[1] = 8;
        arr[2] = 9;
        System.out.println(arr[0] + arr[1] + arr[2]);
        System.out.println(arr.length);
        return arr.length;
    }
}`
	if got, want := run(t, src), "24\n3\n"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

// TestS5_VirtualDispatch is spec.md §8 scenario S5.
func TestS5_VirtualDispatch(t *testing.T) {
	src := `
class Main {
    public static void main(String[] a) {
        System.out.println(new Dispatch().run());
    }
}
class A {
    public int f() { return 1; }
}
class B extends A {
    public int f() { return 2; }
}
class Dispatch {
    public int run() {
        A x;
        x = new B();
        return x.f();
    }
}`
	if got, want := run(t, src), "2\n"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

// TestS6_InheritedField is spec.md §8 scenario S6.
func TestS6_InheritedField(t *testing.T) {
	src := `
class Main {
    public static void main(String[] a) {
        System.out.println(new C().run());
    }
}
class P {
    int x;
}
class C extends P {
    public int run() {
        x = 5;
        System.out.println(x);
        return x;
    }
}`
	if got, want := run(t, src), "5\n5\n"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestNot_And_Comparison(t *testing.T) {
	src := `
class Main {
    public static void main(String[] a) {
        if (!(1 < 0) && 2 < 3) {
            System.out.println(1);
        } else {
            System.out.println(0);
        }
    }
}`
	if got, want := run(t, src), "1\n"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestRecursiveVirtualCall(t *testing.T) {
	src := `
class Main {
    public static void main(String[] a) {
        System.out.println(new Fact().run(5));
    }
}
class Fact {
    public int run(int n) {
        int result;
        if (n < 2) {
            result = 1;
        } else {
            result = n * this.run(n - 1);
        }
        return result;
    }
}`
	if got, want := run(t, src), "120\n"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestGCReclaimsGarbageDuringLoop(t *testing.T) {
	// Allocates far more arrays than fit in a tiny heap budget; correctness
	// depends on the collector reclaiming each iteration's garbage array
	// before the next allocation.
	src := `
class Main {
    public static void main(String[] a) {
        System.out.println(new Loop().run());
    }
}
class Loop {
    public int run() {
        int i;
        int[] scratch;
        i = 0;
        while (i < 1000) {
            scratch = new int[8];
            scratch[0] = i;
            i = i + 1;
        }
        return i;
    }
}`
	// scratch is reassigned every iteration, so the prior array becomes
	// garbage immediately; the small heap budget below forces several
	// collections over the course of the loop.
	prog, err := parser.New(src).Parse()
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	tbl, err := sema.Build(prog)
	if err != nil {
		t.Fatalf("sema error: %v", err)
	}
	set := layout.Build(tbl, prog)
	if err := compiler.Compile(tbl, set, prog); err != nil {
		t.Fatalf("compile error: %v", err)
	}
	var out bytes.Buffer
	interp := vm.New(set, 64, &out)
	if err := interp.RunMain(); err != nil {
		t.Fatalf("runtime error (GC should have kept the heap under budget): %v", err)
	}
}
