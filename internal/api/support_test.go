package api_test

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"log/slog"
)

func noopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func contextBackground() context.Context {
	return context.Background()
}

// hashTokenForTest mirrors the invitation-token hashing the handler under
// test performs internally, letting tests seed an Invitation by its raw
// token without reaching into unexported helpers.
func hashTokenForTest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
