package bytecode

import (
	"strings"
	"testing"
)

type fakeMethod struct {
	class, method string
	args, locals  []string
	instructions  []Instruction
}

func (f fakeMethod) ClassName() string             { return f.class }
func (f fakeMethod) MethodName() string            { return f.method }
func (f fakeMethod) ArgNames() []string             { return f.args }
func (f fakeMethod) LocalNames() []string           { return f.locals }
func (f fakeMethod) InstructionList() []Instruction { return f.instructions }

func TestDisassemble_HeaderAndOperandCounts(t *testing.T) {
	m := fakeMethod{
		class:  "Sum",
		method: "compute",
		args:   nil,
		locals: []string{"i", "acc"},
		instructions: []Instruction{
			NewInstr1(Ldc, 1),
			NewInstr1(Store, 1),
			NewInstr(Iadd),
			NewInvoke(0, 1),
			NewInstr(Return),
		},
	}

	var sb strings.Builder
	if err := Disassemble(&sb, []DisassembleMethod{m}); err != nil {
		t.Fatalf("Disassemble error: %v", err)
	}
	out := sb.String()

	for _, want := range []string{
		"method Sum.compute",
		"local i",
		"local acc",
		"ldc 1",
		"store 1",
		"iadd",
		"invoke 0 1",
		"return",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected disassembly to contain %q, got:\n%s", want, out)
		}
	}
}

func TestDisassemble_NoArgsOrLocalsOmitsThoseLines(t *testing.T) {
	m := fakeMethod{class: "Main", method: "main", instructions: []Instruction{NewInstr(Return)}}
	var sb strings.Builder
	if err := Disassemble(&sb, []DisassembleMethod{m}); err != nil {
		t.Fatalf("Disassemble error: %v", err)
	}
	if strings.Contains(sb.String(), "arg") || strings.Contains(sb.String(), "local") {
		t.Errorf("expected no arg/local lines for a method with none, got:\n%s", sb.String())
	}
}

func TestOp_NumOperands(t *testing.T) {
	cases := map[Op]int{
		Ldc: 1, Load: 1, Store: 1, Getfield: 1, Putfield: 1, New: 1, Goto: 1, GotoIfFalse: 1,
		Iadd: 0, Isub: 0, Imul: 0, Band: 0, Ilt: 0, Bneg: 0, Iaload: 0, Iastore: 0, Length: 0, Print: 0, Return: 0, Newarray: 0,
		Invoke: 2,
	}
	for op, want := range cases {
		if got := op.NumOperands(); got != want {
			t.Errorf("%s.NumOperands() = %d, want %d", op, got, want)
		}
	}
}

func TestOp_StringMnemonics(t *testing.T) {
	cases := map[Op]string{
		Ldc: "ldc", GotoIfFalse: "goto_if_false", Iaload: "iaload", Iastore: "iastore",
		Invoke: "invoke", Return: "return",
	}
	for op, want := range cases {
		if got := op.String(); got != want {
			t.Errorf("Op(%d).String() = %q, want %q", int(op), got, want)
		}
	}
}
