// Package runner drives a WebAssembly text module from file to exit code:
// load, parse, link against host modules, instantiate in a fresh domain,
// find the conventional entry point, and run it as a program.
package runner

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/inyutin/WAVM/emscripten"
	"github.com/inyutin/WAVM/engine"
	"github.com/inyutin/WAVM/errors"
	"github.com/inyutin/WAVM/linker"
	"github.com/inyutin/WAVM/wasm"
	"github.com/inyutin/WAVM/wat"
)

// Process exit codes for runs that do not produce their own.
const (
	ExitSuccess = 0
	ExitFailure = 1
)

// Entry point names tried in order.
var entryNames = []string{"main", "_main"}

// Config describes one program run.
type Config struct {
	// Path of the module source text.
	Path string
	// Args passed to a 2-parameter entry point, after the module path.
	Args []string
	// MemoryLimitPages caps linear memories, in 64 KiB pages. Zero means
	// the runtime default.
	MemoryLimitPages uint32
	// Stderr receives diagnostics; it defaults to the process stream.
	Stderr io.Writer
}

func (c *Config) stderr() io.Writer {
	if c.Stderr != nil {
		return c.Stderr
	}
	return os.Stderr
}

// Load reads and parses a module source file into its description. Parse
// diagnostics come back inside the error, one per line.
func Load(path string) (*wasm.Module, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Load(path, err)
	}
	desc, err := wat.Compile(string(src))
	if err != nil {
		return nil, errors.ParseFailed(path, err)
	}
	return desc, nil
}

// Run executes the configured module as a program and returns the process
// exit code. Failures at any stage print to the configured stderr and map
// to ExitFailure; a guest that returns a single i32 supplies the exit code
// itself, any other result shape maps to ExitSuccess.
//
// A panic escaping the pipeline is routed through the fatal handler rather
// than crashing the embedding process.
func Run(ctx context.Context, cfg Config) (code int) {
	defer func() {
		if r := recover(); r != nil {
			reportFatal(fmt.Errorf("unhandled fault: %v", r))
			code = ExitFailure
		}
	}()

	code, err := run(ctx, cfg)
	if err != nil {
		fmt.Fprintln(cfg.stderr(), err)
		return ExitFailure
	}
	return code
}

func run(ctx context.Context, cfg Config) (int, error) {
	desc, err := Load(cfg.Path)
	if err != nil {
		return ExitFailure, err
	}

	domain := engine.NewDomain(ctx, engine.Config{MemoryLimitPages: cfg.MemoryLimitPages})
	defer domain.Close(ctx)

	registry := linker.NewRegistry()

	var env *emscripten.Instance
	if emscripten.Detect(desc) {
		env, err = emscripten.Instantiate(ctx, domain, desc)
		if err != nil {
			return ExitFailure, err
		}
		env.Register(registry)
	}

	compiled, err := domain.Compile(ctx, desc)
	if err != nil {
		return ExitFailure, err
	}

	resolver := linker.NewResolver(registry, linker.NewSynthesizer(domain))
	bindings, err := linker.Link(ctx, desc, resolver)
	if err != nil {
		return ExitFailure, err
	}

	name := filepath.Base(cfg.Path)
	instance, err := domain.Instantiate(ctx, compiled, name, bindings)
	if err != nil {
		return ExitFailure, err
	}

	if env != nil {
		if err := emscripten.InitializeGlobals(ctx, desc, instance); err != nil {
			return ExitFailure, err
		}
	}

	entry, ft, err := findEntry(desc)
	if err != nil {
		return ExitFailure, err
	}

	strategy, ok := argStrategies[len(ft.Params)]
	if !ok {
		return ExitFailure, errors.BadArity(entry, len(ft.Params))
	}
	callArgs, err := strategy(ctx, cfg, env, instance, entry)
	if err != nil {
		return ExitFailure, err
	}

	engine.Logger().Debug("invoking entry point",
		zap.String("entry", entry),
		zap.Int("params", len(ft.Params)))

	results, err := instance.ExportedFunction(entry).Call(ctx, callArgs...)
	if err != nil {
		return ExitFailure, errors.Trap(entry, err)
	}

	if len(ft.Results) == 1 && ft.Results[0] == wasm.I32 {
		return int(int32(results[0])), nil
	}
	return ExitSuccess, nil
}

// argStrategies maps entry-point arity to the way its argument vector is
// built. Arity 0 runs bare; arity 2 follows the (argc, argv) convention,
// materialized in guest memory with the module path as the first argument.
// Arities outside the table are unsupported.
var argStrategies = map[int]func(ctx context.Context, cfg Config, env *emscripten.Instance, instance api.Module, entry string) ([]uint64, error){
	0: func(context.Context, Config, *emscripten.Instance, api.Module, string) ([]uint64, error) {
		return nil, nil
	},
	2: func(ctx context.Context, cfg Config, env *emscripten.Instance, instance api.Module, entry string) ([]uint64, error) {
		if env == nil {
			return nil, errors.New(errors.PhaseRuntime, errors.KindBadArity,
				"entry point %q takes (argc, argv) but the module provides no environment memory to hold them", entry)
		}
		return env.InjectArgs(ctx, instance, append([]string{cfg.Path}, cfg.Args...))
	},
}

// findEntry locates the conventional entry export and its signature.
func findEntry(desc *wasm.Module) (string, wasm.FuncType, error) {
	for _, name := range entryNames {
		exp, ok := desc.ExportNamed(name)
		if !ok || exp.Kind != wasm.KindFunc {
			continue
		}
		ft, ok := desc.FuncTypeOf(exp.Index)
		if !ok {
			return "", wasm.FuncType{}, errors.Internal(
				fmt.Sprintf("export %q references function %d with no type", name, exp.Index), nil)
		}
		return name, ft, nil
	}
	return "", wasm.FuncType{}, errors.MissingEntry(entryNames...)
}
