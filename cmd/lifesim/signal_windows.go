//go:build windows

package main

import "os"

// shutdownSignals trigger graceful shutdown. On Windows only os.Interrupt
// (Ctrl+C) is available; SIGTERM does not exist.
var shutdownSignals = []os.Signal{os.Interrupt}
