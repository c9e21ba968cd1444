// Package bytecode (format.go) implements the textual disassembly listing
// described in spec.md §6.
//
// Format per method:
//
//	method <Class>.<method>
//	  arg   <name>
//	  local <name>
//	        <opcode> [operand [operand2]]
//	        ...
//
// This is the teacher's pkg/bytecode/format.go recast from a binary .sg
// container format (magic number, version, constant-type tags — see
// DESIGN.md on why that part of the teacher was dropped rather than
// adapted) into the plain-text per-method listing spec.md calls for.
package bytecode

import (
	"fmt"
	"io"
)

// DisassembleMethod is implemented by anything the disassembler can print
// a method for — internal/layout.MethodLayout satisfies this without
// internal/bytecode needing to import internal/layout.
type DisassembleMethod interface {
	ClassName() string
	MethodName() string
	ArgNames() []string
	LocalNames() []string
	InstructionList() []Instruction
}

// Disassemble writes the textual listing for every method to w, in the
// order given.
func Disassemble(w io.Writer, methods []DisassembleMethod) error {
	for _, m := range methods {
		if err := disassembleOne(w, m); err != nil {
			return err
		}
	}
	return nil
}

func disassembleOne(w io.Writer, m DisassembleMethod) error {
	if _, err := fmt.Fprintf(w, "method %s.%s\n", m.ClassName(), m.MethodName()); err != nil {
		return err
	}
	for _, a := range m.ArgNames() {
		if _, err := fmt.Fprintf(w, "  arg   %s\n", a); err != nil {
			return err
		}
	}
	for _, l := range m.LocalNames() {
		if _, err := fmt.Fprintf(w, "  local %s\n", l); err != nil {
			return err
		}
	}
	for _, inst := range m.InstructionList() {
		line := "        " + inst.Op.String()
		switch inst.Op.NumOperands() {
		case 1:
			line += fmt.Sprintf(" %d", inst.Operand)
		case 2:
			line += fmt.Sprintf(" %d %d", inst.Operand, inst.Operand2)
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}
