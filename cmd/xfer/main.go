// Command xfer is the CLI entrypoint: a Cobra command tree wiring the
// configuration loader, the transfer engine, and every registered backend
// together. Backend packages register themselves via init(), so they are
// imported here purely for their side effects.
package main

import (
	"fmt"
	"os"

	_ "github.com/standalone-transfer/xfer/internal/backends/count"
	_ "github.com/standalone-transfer/xfer/internal/backends/gdrive"
	_ "github.com/standalone-transfer/xfer/internal/backends/httpsrc"
	_ "github.com/standalone-transfer/xfer/internal/backends/local"
	_ "github.com/standalone-transfer/xfer/internal/backends/onedrive"
	_ "github.com/standalone-transfer/xfer/internal/backends/onedriveshare"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
