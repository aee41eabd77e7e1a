package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/briarlang/briar/internal/compiler"
	"github.com/briarlang/briar/internal/vm"
)

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Read-eval-print loop",
	Args:  cobra.NoArgs,
	RunE:  replExecution,
}

// replExecution is clox's repl(): one line at a time into a single,
// long-lived VM. Each line compiles as its own top-level function, so a
// bare "var x = 1;" on one line and "print x;" on the next share state
// through the VM's global table exactly as they would in a script.
func replExecution(cmd *cobra.Command, args []string) error {
	opts, err := vmOptions(cmd, "")
	if err != nil {
		return err
	}
	v := vm.New(opts)
	defer v.Free()

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Fprint(os.Stdout, "> ")
		if !scanner.Scan() {
			break
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		fn, errs := compiler.CompileAll(v, line)
		if len(errs) > 0 {
			printCompileErrors(os.Stderr, line, errs)
			continue
		}
		if _, runErr := v.InterpretFunction(fn); runErr != nil {
			var rerr *vm.RuntimeError
			if errors.As(runErr, &rerr) {
				printRuntimeError(os.Stderr, line, rerr)
			} else {
				fmt.Fprintln(os.Stderr, runErr)
			}
		}
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	fmt.Fprintln(os.Stdout)
	return nil
}
