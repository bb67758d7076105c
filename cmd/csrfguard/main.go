// Command csrfguard runs a demo HTTP server protected by the csrf middleware.
package main

import (
	"os"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
