package runner

import (
	"fmt"
	"os"
	"sync"
)

// The fatal handler receives faults that escape the run pipeline, such as
// panics out of host functions. It reports; the run still finishes with
// ExitFailure.
var (
	fatalMu      sync.Mutex
	fatalHandler = defaultFatalHandler
)

func defaultFatalHandler(err error) {
	fmt.Fprintln(os.Stderr, "fatal:", err)
}

// SetFatalHandler installs a process-wide handler for faults that escape
// the run pipeline. A nil handler restores the default, which prints to
// stderr.
func SetFatalHandler(h func(error)) {
	fatalMu.Lock()
	defer fatalMu.Unlock()
	if h == nil {
		h = defaultFatalHandler
	}
	fatalHandler = h
}

func reportFatal(err error) {
	fatalMu.Lock()
	h := fatalHandler
	fatalMu.Unlock()
	h(err)
}
