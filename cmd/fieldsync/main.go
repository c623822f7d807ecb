// Package main is the entry point of the fieldsync engine.
package main

import (
	"log/slog"
	"os"

	"github.com/fieldsync/fieldsync/cmd/fieldsync/app"
	"github.com/fieldsync/fieldsync/internal/logging"
)

func main() {
	// Log to stderr until a command loads its configuration, so stdout stays clean for
	// commands that print data (sync, status, version --format json).
	logger, _ := logging.New(nil)
	slog.SetDefault(logger)

	if err := app.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
