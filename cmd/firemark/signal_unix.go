//go:build !windows

package main

import (
	"os"
	"syscall"
)

// terminationSignals are the signals that trigger a graceful shutdown.
// Process managers (systemd, Kubernetes) stop services with SIGTERM.
var terminationSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}
