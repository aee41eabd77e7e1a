package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/briarlang/briar/internal/compiler"
	"github.com/briarlang/briar/internal/image"
	"github.com/briarlang/briar/internal/vm"
)

var buildCmd = &cobra.Command{
	Use:   "build <file.briar>",
	Short: "Compile a briar source file to a .briarc image",
	Args:  cobra.ExactArgs(1),
	RunE:  buildExecution,
}

func buildExecution(cmd *cobra.Command, args []string) error {
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

	fn, errs := compiler.CompileAll(v, src)
	if len(errs) > 0 {
		printCompileErrors(os.Stderr, src, errs)
		os.Exit(65)
	}

	outPath := strings.TrimSuffix(path, ".briar") + ".briarc"
	if outPath == path {
		outPath = path + "c"
	}
	out, err := os.Create(outPath)
	if err != nil {
		return err
	}
	defer out.Close()

	if err := image.Save(out, fn); err != nil {
		return fmt.Errorf("build: %w", err)
	}
	fmt.Fprintf(os.Stdout, "built %s\n", outPath)
	return nil
}
