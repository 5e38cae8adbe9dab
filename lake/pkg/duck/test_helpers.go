package duck

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// testEngineWithConn creates a local-only engine and a connection for testing
func testEngineWithConn(t *testing.T) (*Engine, Connection) {
	t.Helper()
	ctx := context.Background()

	tmpDir := t.TempDir()
	engine, err := NewEngine(ctx, testLogger(), EngineConfig{Roots: []string{"file://" + tmpDir}})
	require.NoError(t, err)
	t.Cleanup(func() { engine.Close() })

	conn, err := engine.Conn(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return engine, conn
}
