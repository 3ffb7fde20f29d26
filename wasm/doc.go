// Package wasm holds the in-memory description of a WebAssembly module and
// turns it into the binary form a runtime can compile.
//
// A Module is produced once (by the wat compiler or by hand, as the linker
// does for stub modules) and treated as read-only afterwards. Encode emits
// the standard binary sections; Validate performs the structural checks that
// must hold before encoding is meaningful.
package wasm
