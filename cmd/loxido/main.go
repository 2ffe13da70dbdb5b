// Command loxido is the CLI entry point for the Lox interpreter: a
// readline-backed REPL, and a file runner with the standard sysexits.h
// exit-code convention.
package main

import (
	"fmt"
	"os"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/kristofer/loxido/pkg/compiler"
	"github.com/kristofer/loxido/pkg/vm"
)

const version = "0.1.0"

// Exit codes follow the BSD sysexits.h convention the teacher's own CLI
// and the original Lox implementation both use.
const (
	exitUsage    = 64
	exitDataErr  = 65 // compile error
	exitSoftware = 70 // runtime error
	exitNoInput  = 74 // file read failure
)

func main() {
	root := &cobra.Command{
		Use:     "loxido [script]",
		Short:   "loxido - a bytecode interpreter for Lox",
		Version: version,
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return runREPL()
			}
			return runFile(args[0])
		},
	}

	runCmd := &cobra.Command{
		Use:   "run <script>",
		Short: "run a Lox source file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFile(args[0])
		},
	}

	replCmd := &cobra.Command{
		Use:   "repl",
		Short: "start an interactive REPL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runREPL()
		},
	}

	root.AddCommand(runCmd, replCmd)

	if err := root.Execute(); err != nil {
		os.Exit(exitUsage)
	}
}

// runFile loads, compiles, and runs a Lox source file, translating any
// failure into the matching sysexits.h exit code.
func runFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading file: %v\n", err)
		os.Exit(exitNoInput)
	}

	v := vm.New()
	if err := v.Interpret(string(data)); err != nil {
		if _, ok := err.(*compiler.Error); ok {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(exitDataErr)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitSoftware)
	}
	return nil
}

// runREPL drives an interactive session over a single persistent VM, so
// globals and classes declared in one line remain visible to the next.
func runREPL() error {
	rl, err := readline.New("> ")
	if err != nil {
		return err
	}
	defer rl.Close()

	v := vm.New()

	for {
		line, err := rl.Readline()
		if err != nil { // io.EOF (Ctrl-D) or readline.ErrInterrupt (Ctrl-C)
			return nil
		}
		if line == "" {
			continue
		}
		if err := v.Interpret(line); err != nil {
			fmt.Fprintln(os.Stderr, err)
		}
	}
}
