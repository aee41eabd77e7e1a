package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	briarcompiler "github.com/briarlang/briar/internal/compiler"
	"github.com/briarlang/briar/internal/image"
	"github.com/briarlang/briar/internal/vm"
)

var runCmd = &cobra.Command{
	Use:   "run <file.briar>",
	Short: "Compile and execute a briar source file",
	Args:  cobra.ExactArgs(1),
	RunE:  runExecution,
}

// runExecution mirrors clox's main(): read the source, compile it,
// interpret it, and translate the InterpretResult into the exit code
// spec.md §6 mandates (0/65/70).
func runExecution(cmd *cobra.Command, args []string) error {
	path := args[0]
	src, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	opts, err := vmOptions(cmd, path)
	if err != nil {
		return err
	}
	v := vm.New(opts)
	defer v.Free()

	fn, err := loadOrCompile(v, path, src)
	if err != nil {
		var compileErr *compileErrors
		if errors.As(err, &compileErr) {
			printCompileErrors(os.Stderr, src, compileErr.errs)
			os.Exit(65)
		}
		return err
	}

	result, runErr := v.InterpretFunction(fn)
	if runErr != nil {
		var rerr *vm.RuntimeError
		if errors.As(runErr, &rerr) {
			printRuntimeError(os.Stderr, src, rerr)
		} else {
			fmt.Fprintln(os.Stderr, runErr)
		}
		os.Exit(70)
	}
	if result != vm.InterpretOK {
		os.Exit(70)
	}
	return nil
}

// compileErrors carries the compiler's structured diagnostics past the
// point where runExecution needs to decide between exit(65) and a plain
// Go error.
type compileErrors struct {
	errs []briarcompiler.CompileError
}

func (c *compileErrors) Error() string {
	return fmt.Sprintf("%d compile error(s)", len(c.errs))
}

// loadOrCompile loads a .briarc image next to path when it exists and is
// newer than the source, skipping lex/parse/compile entirely (SPEC_FULL.md
// §4.11); otherwise it compiles src fresh.
func loadOrCompile(v *vm.VM, path string, src []byte) (*vm.ObjFunctionVal, error) {
	imgPath := path + "c"
	if srcInfo, err := os.Stat(path); err == nil {
		if imgInfo, err := os.Stat(imgPath); err == nil && imgInfo.ModTime().After(srcInfo.ModTime()) {
			f, err := os.Open(imgPath)
			if err == nil {
				defer f.Close()
				if fn, err := image.Load(f, v); err == nil {
					return fn, nil
				}
			}
		}
	}

	fn, errs := briarcompiler.CompileAll(v, src)
	if len(errs) > 0 {
		return nil, &compileErrors{errs: errs}
	}
	return fn, nil
}
