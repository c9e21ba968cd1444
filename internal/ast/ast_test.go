package ast

import "testing"

func TestType_EqualByKindAndClassName(t *testing.T) {
	if !IntType().Equal(IntType()) {
		t.Error("IntType should equal IntType")
	}
	if IntType().Equal(BoolType()) {
		t.Error("IntType should not equal BoolType")
	}
	if !ClassType("Foo").Equal(ClassType("Foo")) {
		t.Error("same-named class types should be equal")
	}
	if ClassType("Foo").Equal(ClassType("Bar")) {
		t.Error("differently-named class types should not be equal")
	}
	if IntArrayType().Equal(ClassType("int")) {
		t.Error("an int array must not equal a class type even if the names happen to match")
	}
}

func TestType_String(t *testing.T) {
	cases := map[Type]string{
		IntType():        "int",
		BoolType():       "boolean",
		IntArrayType():   "int[]",
		ClassType("Foo"): "Foo",
	}
	for ty, want := range cases {
		if got := ty.String(); got != want {
			t.Errorf("Type{%#v}.String() = %q, want %q", ty, got, want)
		}
	}
}

func TestExprBase_ResolvedRoundTrip(t *testing.T) {
	lit := &IntLiteral{Value: 7}
	if lit.Resolved().Kind != InvalidKind {
		t.Errorf("a fresh expression should have no resolved type yet, got %v", lit.Resolved())
	}
	lit.SetResolved(IntType())
	if !lit.Resolved().Equal(IntType()) {
		t.Errorf("expected Resolved() to report the type set by SetResolved, got %v", lit.Resolved())
	}
}
