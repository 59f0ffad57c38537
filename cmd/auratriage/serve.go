package main

import (
	"context"
	"flag"
	"time"

	"github.com/dusk-indust/auratriage/internal/mcptools"
	"github.com/dusk-indust/auratriage/internal/server"
	"golang.org/x/sync/errgroup"
)

// serve runs the HTTP front until ctx is cancelled. The MCP tools share the
// run registry and are mounted at /mcp.
func (c *cli) serve(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	addr := fs.String("addr", "", "listen address (default $AURATRIAGE_ADDR)")
	noMCP := fs.Bool("no-mcp", false, "do not mount the MCP endpoint at /mcp")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := c.newApp(ctx, c.stdout, true)
	if err != nil {
		return err
	}
	defer a.Close()

	listen := a.cfg.Addr
	if *addr != "" {
		listen = *addr
	}

	runs := server.NewRunStore(a.cfg.RunHistory)
	opts := []server.Option{
		server.WithLogger(a.logger),
		server.WithRunStore(runs),
	}
	if !*noMCP {
		svc := mcptools.NewTriageService(a.pipeline, a.store, runs)
		opts = append(opts, server.WithMount("/mcp", mcptools.Handler(mcptools.NewTriageMCPServer(svc))))
	}

	srv := server.NewServer(a.pipeline, a.store, opts...)
	if err := srv.Start(listen); err != nil {
		return err
	}
	a.logger.Info("auratriage started",
		"version", version,
		"addr", srv.Addr(),
		"backend", a.cfg.Backend,
		"mcp", !*noMCP)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("auratriage shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Stop(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		return err
	}
	a.logger.Info("auratriage stopped")
	return nil
}

// serveMCP runs the MCP tools on stdio. Logs go to stderr since stdout
// carries the protocol.
func (c *cli) serveMCP(ctx context.Context) error {
	a, err := c.newApp(ctx, c.stderr, true)
	if err != nil {
		return err
	}
	defer a.Close()

	svc := mcptools.NewTriageService(a.pipeline, a.store, server.NewRunStore(a.cfg.RunHistory))
	return mcptools.RunStdio(ctx, mcptools.NewTriageMCPServer(svc))
}
