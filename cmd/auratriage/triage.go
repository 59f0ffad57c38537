package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/dusk-indust/auratriage/internal/export"
	"github.com/dusk-indust/auratriage/internal/orchestrator"
	"github.com/dusk-indust/auratriage/internal/server"
	"golang.org/x/sync/errgroup"
)

// caseFlags are the case selectors shared by triage and watch.
type caseFlags struct {
	patient  string
	context  string
	symptoms string
	json     bool
}

func (f *caseFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&f.patient, "patient", "", "patient ID from the case store")
	fs.StringVar(&f.context, "context", "", "free-text case context (appended to the record when --patient is set)")
	fs.StringVar(&f.symptoms, "symptoms", "", "presenting complaint; remaining arguments are used when empty")
	fs.BoolVar(&f.json, "json", false, "print events as JSON lines")
}

func (f *caseFlags) request(fs *flag.FlagSet) server.TriageRequest {
	symptoms := f.symptoms
	if symptoms == "" && fs.NArg() > 0 {
		symptoms = strings.Join(fs.Args(), " ")
	}
	return server.TriageRequest{
		PatientID:   f.patient,
		CaseContext: f.context,
		Symptoms:    symptoms,
	}
}

// triage runs one case in-process and prints its events as they arrive.
func (c *cli) triage(ctx context.Context, args []string) error {
	var cf caseFlags
	fs := flag.NewFlagSet("triage", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	cf.register(fs)
	out := fs.String("out", "", "also write a report of the run (.json for JSON, otherwise Markdown)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := c.newApp(ctx, c.stderr, false)
	if err != nil {
		return err
	}
	defer a.Close()

	in, err := server.ResolveCase(ctx, a.store, cf.request(fs))
	if err != nil {
		return err
	}

	sink := orchestrator.NewChannelSink(0)
	var (
		g   errgroup.Group
		run *orchestrator.Run
	)
	g.Go(func() error {
		defer sink.Close()
		var err error
		run, err = a.pipeline.Run(ctx, in, sink)
		return err
	})

	p := newEventPrinter(c.stdout, cf.json)
	var printErr error
	for ev := range sink.Events() {
		if printErr != nil {
			continue
		}
		if printErr = p.print(ev); printErr != nil {
			sink.Detach()
		}
	}

	runErr := g.Wait()
	if *out != "" && run != nil {
		if err := export.WriteFile(*out, export.FromRun(run, time.Now())); err != nil {
			return errors.Join(runErr, err)
		}
		if !cf.json {
			fmt.Fprintf(c.stdout, "\nReport written to %s\n", *out)
		}
	}
	if runErr != nil {
		return runErr
	}
	return printErr
}
