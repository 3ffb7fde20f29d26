// Package linker resolves a module's imports against a registry of named
// host instances, synthesizing trap stubs for anything the registry cannot
// provide.
//
// Resolution degrades gracefully: an unknown module name or a missing export
// is stubbed, never an error, so programs importing optional host hooks run
// as long as they do not call them. Only a present-but-mismatched export is
// a hard failure, and Link collects every such failure before reporting.
package linker
