// Package wavm runs WebAssembly text modules as programs.
//
// It parses a module from the WebAssembly text format, resolves its imports
// against host-provided modules (fabricating safe trap stubs for anything
// the host does not supply), instantiates it in an isolated execution
// domain, and invokes its main entry point with forwarded command-line
// arguments.
//
// # Architecture Overview
//
// The module is organized into several packages with distinct
// responsibilities:
//
//	WAVM/            Root package (documentation only)
//	├── wat/         WAT text format to module description compiler
//	├── wasm/        Module descriptions, validation, binary encoding
//	├── linker/      Import resolution, stub synthesis, host registry
//	├── engine/      Execution domains backed by wazero
//	├── emscripten/  The embedded emscripten-style host environment
//	├── runner/      The file-to-exit-code program driver
//	├── errors/      Structured error types shared by the pipeline
//	└── cmd/wavm-run The command-line tool
//
// # Quick Start
//
// Run a module file as a program:
//
//	code := runner.Run(ctx, runner.Config{
//	    Path: "program.wat",
//	    Args: os.Args[1:],
//	})
//	os.Exit(code)
//
// Or drive the pipeline directly:
//
//	desc, err := runner.Load("program.wat")
//	domain := engine.NewDomain(ctx, engine.DefaultConfig())
//	defer domain.Close(ctx)
//
//	compiled, err := domain.Compile(ctx, desc)
//	registry := linker.NewRegistry()
//	resolver := linker.NewResolver(registry, linker.NewSynthesizer(domain))
//	bindings, err := linker.Link(ctx, desc, resolver)
//	instance, err := domain.Instantiate(ctx, compiled, "program", bindings)
//
// # Import Resolution
//
// An import naming an unknown module, or a known module without the
// requested export, resolves to a synthesized stub: functions that trap
// when called, zero-initialized globals, and fresh memories and tables of
// the declared shape. An export that exists but whose type disagrees with
// the declaration is a hard link failure; one link pass reports every such
// mismatch.
//
// # Thread Safety
//
// Domain, Registry, and the loggers are safe for concurrent use. A live
// instance is NOT thread-safe and should be driven by a single goroutine.
package wavm
