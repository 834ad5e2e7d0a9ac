package testutil

import (
	"io"
	"log/slog"
)

// DiscardLogger returns a logger that drops everything, for tests that do not
// assert on log output.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
