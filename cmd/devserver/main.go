// Command devserver runs the handbook agent locally: an HTTP server in front
// of the Lambda handler, plus one-shot ask and ingest commands.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
