// sftpgate runs single SFTP operations (list, get, put, delete, mkdir and
// rmdir) against configured server profiles, each request on its own
// short-lived session. It serves requests over HTTP or runs one from the
// command line.
package main

import (
	"errors"
	"log/slog"
	"os"
	"strconv"
)

// Version and BuildDate are set via ldflags during build.
// Example: -ldflags="-X main.Version=v1.0.0 -X main.BuildDate=2026-01-03"
var (
	Version   = "dev"
	BuildDate = "unknown"
)

func main() {
	cmd := newRootCommand(os.Stdout, os.Stderr)
	if err := cmd.Execute(); err != nil {
		var exit *exitError
		if errors.As(err, &exit) {
			os.Exit(exit.code)
		}
		slog.Error("fatal error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// exitError ends the process with code without printing anything more.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return "exit status " + strconv.Itoa(e.code)
}
