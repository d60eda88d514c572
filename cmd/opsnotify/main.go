// Command opsnotify serves the ops notification API and runs dispatcher
// sweeps.
//
//	opsnotify serve              # HTTP API + scheduled sweeps
//	opsnotify sweep              # one sweep, JSON report on stdout
//	opsnotify split --start ...  # per-local-day segments of an interval
//	opsnotify version
package main

import (
	"os"

	"github.com/joho/godotenv"
)

func main() {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
