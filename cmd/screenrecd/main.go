// SPDX-License-Identifier: MIT

// Command screenrecd is the recorder daemon: it loads Configuration
// (spec §6), brings up the capture/encode/mux pipeline behind a
// Supervisor, and serves a /healthz + /metrics endpoint for fleet
// monitoring, the same shape as the teacher's tvarr-ffmpegd entry point.
package main

import (
	"fmt"
	"os"

	"github.com/coylemichael/screenrecorder/cmd/screenrecd/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
