package main

import (
	"context"
	"errors"
	"flag"
	"fmt"

	"github.com/dusk-indust/auratriage/internal/orchestrator"
	"github.com/dusk-indust/auratriage/internal/server"
)

// watch streams a case from a running server and prints its events.
func (c *cli) watch(ctx context.Context, args []string) error {
	var cf caseFlags
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	cf.register(fs)
	serverURL := fs.String("server", "http://localhost:8000", "base URL of a running auratriage server")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	client := server.NewClient(*serverURL)
	events, runID, err := client.Stream(ctx, cf.request(fs))
	if err != nil {
		return err
	}
	if !cf.json {
		fmt.Fprintf(c.stdout, "run %s\n", runID)
	}

	p := newEventPrinter(c.stdout, cf.json)
	var failed string
	for se := range events {
		if se.Err != nil {
			return fmt.Errorf("reading stream: %w", se.Err)
		}
		if err := p.print(se.Event); err != nil {
			return err
		}
		switch se.Event.Type {
		case orchestrator.EventError:
			failed = se.Event.Message
		case orchestrator.EventTriageComplete:
			return nil
		}
	}
	if failed != "" {
		return fmt.Errorf("run %s failed: %s", runID, failed)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return errors.New("stream ended before the run finished")
}
