package utils

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMultiLogHandler_RespectsLevels(t *testing.T) {
	var debugOut, infoOut bytes.Buffer
	debugHandler := slog.NewTextHandler(&debugOut, &slog.HandlerOptions{Level: slog.LevelDebug})
	infoHandler := slog.NewTextHandler(&infoOut, &slog.HandlerOptions{Level: slog.LevelInfo})

	logger := slog.New(NewMultiLogHandler(debugHandler, infoHandler)).With("run", "r1")
	logger.Debug("chunk compared", "path", "/a.txt")
	logger.Info("sync complete", "files", 2)

	assert.Contains(t, debugOut.String(), "chunk compared")
	assert.Contains(t, debugOut.String(), "sync complete")
	assert.NotContains(t, infoOut.String(), "chunk compared")
	assert.Contains(t, infoOut.String(), "run=r1")
}
