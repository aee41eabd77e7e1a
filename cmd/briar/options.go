package main

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/briarlang/briar/internal/config"
	"github.com/briarlang/briar/internal/vm"
)

// vmOptions merges briar.toml (found by walking up from the source file's
// directory) with the --trace/--stress-gc/--verbose persistent flags,
// flags winning over the manifest.
func vmOptions(cmd *cobra.Command, sourcePath string) (vm.Options, error) {
	dir := "."
	if sourcePath != "" {
		dir = filepath.Dir(sourcePath)
	}
	cfg, err := config.FindAndLoad(dir)
	if err != nil {
		return vm.Options{}, err
	}
	opts := cfg.Options()
	opts.Stdout = os.Stdout

	flags := cmd.Root().PersistentFlags()
	if v, _ := flags.GetBool("trace"); v {
		opts.TraceExecution = true
	}
	if v, _ := flags.GetBool("stress-gc"); v {
		opts.StressGC = true
	}
	if v, _ := flags.GetBool("verbose"); v {
		opts.Verbose = true
	}
	return opts, nil
}
