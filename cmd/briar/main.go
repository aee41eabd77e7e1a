package main

import (
	"os"

	"github.com/spf13/cobra"

	// Registers vm.CompileHook as a side effect of import, the same
	// driver-registration pattern database/sql uses for drivers.
	_ "github.com/briarlang/briar/internal/compiler"
)

var rootCmd = &cobra.Command{
	Use:   "briar",
	Short: "briar language compiler and runtime",
	Long:  "briar runs, builds and REPLs a tree-free, stack-based bytecode class language.",
}

func init() {
	rootCmd.PersistentFlags().Bool("trace", false, "trace every instruction executed")
	rootCmd.PersistentFlags().Bool("stress-gc", false, "collect garbage before every allocation")
	rootCmd.PersistentFlags().Bool("verbose", false, "log GC cycle boundaries")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(replCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
