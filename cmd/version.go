package main

import (
	"fmt"
	"runtime"
)

// Version is the release identifier.
const Version = "v0.1.0"

// PrintVersion prints the current version.
func PrintVersion() {
	fmt.Printf("log-watcher %s\n", Version)
	fmt.Printf("Runtime: %s/%s\n", runtime.GOOS, runtime.GOARCH)
}
