// wavm-run loads a WebAssembly text module, links its imports, and runs it
// as a program.
package main

import "os"

func main() {
	os.Exit(execute())
}
