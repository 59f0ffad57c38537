//go:build e2e

package e2e

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dusk-indust/auratriage/internal/backend"
	"github.com/dusk-indust/auratriage/internal/mcptools"
	"github.com/dusk-indust/auratriage/internal/orchestrator"
	"github.com/dusk-indust/auratriage/internal/records"
	"github.com/dusk-indust/auratriage/internal/server"
	"github.com/stretchr/testify/require"
)

// stack is a running server backed by a seeded SQLite store and the stub
// backend.
type stack struct {
	store  *records.Store
	stub   *backend.Stub
	server *server.Server
	client *server.Client
	base   string
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startStack(t *testing.T) *stack {
	t.Helper()
	ctx := context.Background()
	logger := quietLogger()

	store, err := records.Open(ctx, filepath.Join(t.TempDir(), "cases.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	_, err = store.Seed(ctx)
	require.NoError(t, err)

	stub := backend.NewStub(nil)
	pipe, err := orchestrator.New(orchestrator.DefaultPlan(), backend.NewRegistry(stub),
		orchestrator.WithLogger(logger),
		orchestrator.WithPacer(backend.NewPacer(0)))
	require.NoError(t, err)

	var n atomic.Int64
	runs := server.NewRunStore(16)
	svc := mcptools.NewTriageService(pipe, store, runs)
	srv := server.NewServer(pipe, store,
		server.WithLogger(logger),
		server.WithRunStore(runs),
		server.WithIDGenerator(func() string { return fmt.Sprintf("e2e-%d", n.Add(1)) }),
		server.WithMount("/mcp", mcptools.Handler(mcptools.NewTriageMCPServer(svc))),
	)
	require.NoError(t, srv.Start("127.0.0.1:0"))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Stop(ctx)
	})

	base := "http://" + srv.Addr()
	return &stack{
		store:  store,
		stub:   stub,
		server: srv,
		client: server.NewClient(base, server.WithTimeout(30*time.Second)),
		base:   base,
	}
}
