package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/inyutin/WAVM/engine"
	"github.com/inyutin/WAVM/linker"
	"github.com/inyutin/WAVM/runner"
)

var (
	flagVerbose     bool
	flagMemoryPages uint32
	flagInspect     bool

	// Exit code produced by a completed run; main hands it to os.Exit.
	exitCode int
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "wavm-run <module.wat> [--] [args...]",
		Short: "Run a WebAssembly text module as a program",
		Long: `wavm-run parses a WebAssembly text module, resolves its imports against
the built-in host environment (fabricating trap stubs for anything
unknown), instantiates it in a fresh execution domain, and invokes its
main entry point. A single i32 result becomes the process exit code.`,
		Args:          cobra.ArbitraryArgs,
		SilenceErrors: true,
		RunE:          runE,
	}
	root.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false,
		"enable debug logging")
	root.PersistentFlags().Uint32Var(&flagMemoryPages, "memory-limit-pages", 0,
		"cap linear memories at this many 64 KiB pages (0 = runtime default)")

	run := &cobra.Command{
		Use:   "run <module.wat> [--] [args...]",
		Short: "Run a module (same as the bare invocation)",
		Args:  cobra.ArbitraryArgs,
		RunE:  runE,
	}
	run.Flags().BoolVar(&flagInspect, "inspect", false,
		"open an interactive view of the module's exports instead of running it")
	run.Flags().SetInterspersed(false)
	root.Flags().SetInterspersed(false)
	root.AddCommand(run)

	return root
}

func runE(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		cmd.Usage()
		return fmt.Errorf("module path required")
	}

	if flagVerbose {
		logger, err := zap.NewDevelopment()
		if err != nil {
			return err
		}
		defer logger.Sync()
		engine.SetLogger(logger)
		linker.SetLogger(logger)
	}

	path, guestArgs := args[0], args[1:]

	if flagInspect {
		return inspect(cmd.Context(), path)
	}

	exitCode = runner.Run(cmd.Context(), runner.Config{
		Path:             path,
		Args:             guestArgs,
		MemoryLimitPages: flagMemoryPages,
	})
	return nil
}

func execute() int {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return runner.ExitFailure
	}
	return exitCode
}
