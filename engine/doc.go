// Package engine wraps the wazero runtime as an isolated execution domain.
//
// A Domain owns every instance created during one run: the target module,
// host environment modules, and any stubs the linker fabricates. Closing the
// domain releases them all at once. Compilation and instantiation both go
// through the Domain so all objects share one namespace and imports can be
// bound by instance name.
package engine
