// Command minivm compiles and runs MiniJava-like source programs: lexer ->
// parser -> sema -> layout -> compiler -> vm, wired as a cobra command tree
// the way cmd/pedumper wires its dump subcommands in the retrieval pack.
package main

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/d-netto/minivm/internal/bytecode"
	"github.com/d-netto/minivm/internal/compiler"
	"github.com/d-netto/minivm/internal/layout"
	"github.com/d-netto/minivm/internal/parser"
	"github.com/d-netto/minivm/internal/sema"
	"github.com/d-netto/minivm/internal/vm"
)

const version = "0.1.0"

var (
	emitBytecode bool
	emitSymtbl   bool
	heapBudget   int
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "minivm",
		Short: "A MiniJava-like compiler and bytecode interpreter",
		Long:  "minivm compiles a small Java-like language to a stack-oriented bytecode and runs it on a tagged-pointer interpreter with mark-sweep collection.",
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("minivm version " + version)
		},
	}

	runCmd := &cobra.Command{
		Use:   "run <file>",
		Short: "Compile and run a source file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFile(args[0])
		},
	}
	runCmd.Flags().BoolVar(&emitBytecode, "emit-bc", false, "print the disassembled bytecode before running")
	runCmd.Flags().BoolVar(&emitSymtbl, "emit-symtbl", false, "print the resolved symbol table before running")
	runCmd.Flags().IntVar(&heapBudget, "heap-words", 1<<20, "heap budget, in words, before a collection is forced")

	rootCmd.AddCommand(versionCmd, runCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runFile(path string) error {
	src, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "reading %s", path)
	}

	p := parser.New(string(src))
	prog, err := p.Parse()
	if err != nil {
		return errors.Wrap(err, "parsing")
	}

	table, err := sema.Build(prog)
	if err != nil {
		return errors.Wrap(err, "semantic analysis")
	}
	if emitSymtbl {
		fmt.Fprint(os.Stderr, table.String())
	}

	layoutSet := layout.Build(table, prog)
	if err := compiler.Compile(table, layoutSet, prog); err != nil {
		return errors.Wrap(err, "compiling")
	}

	if emitBytecode {
		if err := bytecode.Disassemble(os.Stderr, toDisassembleMethods(layoutSet)); err != nil {
			return errors.Wrap(err, "disassembling")
		}
	}

	interp := vm.New(layoutSet, heapBudget, os.Stdout)
	if err := interp.RunMain(); err != nil {
		return errors.Wrap(err, "running")
	}
	return nil
}

func toDisassembleMethods(set *layout.Set) []bytecode.DisassembleMethod {
	out := make([]bytecode.DisassembleMethod, len(set.Methods))
	for i, m := range set.Methods {
		out[i] = m
	}
	return out
}
