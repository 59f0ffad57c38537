package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/dusk-indust/auratriage/internal/orchestrator"
	"github.com/dusk-indust/auratriage/internal/server"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// batchResult is the outcome of one case in a batch file.
type batchResult struct {
	Index        int               `json:"index"`
	RunID        string            `json:"run_id,omitempty"`
	PatientID    string            `json:"patient_id,omitempty"`
	Status       string            `json:"status"`
	AgentResults map[string]string `json:"agent_results,omitempty"`
	Summary      string            `json:"summary,omitempty"`
	Error        string            `json:"error,omitempty"`
}

// batch runs every case in a JSON file and prints the results as a JSON
// array in file order. A failed case does not stop the others.
func (c *cli) batch(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("batch", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	file := fs.String("file", "", "JSON array of triage requests ({patient_id, case_context, symptoms, include_summary})")
	concurrency := fs.Int("concurrency", 2, "maximum cases in flight")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *file == "" && fs.NArg() > 0 {
		*file = fs.Arg(0)
	}
	if *file == "" {
		return errors.New("batch: --file is required")
	}
	if *concurrency < 1 {
		return errors.New("batch: --concurrency must be at least 1")
	}

	reqs, err := readBatchFile(*file)
	if err != nil {
		return err
	}

	a, err := c.newApp(ctx, c.stderr, false)
	if err != nil {
		return err
	}
	defer a.Close()

	results := make([]batchResult, len(reqs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(*concurrency)
	for i, req := range reqs {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			results[i] = runBatchCase(gctx, a, i, req)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	enc := json.NewEncoder(c.stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(results); err != nil {
		return err
	}

	failed := 0
	for _, r := range results {
		if r.Status != string(orchestrator.StatusCompleted) {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("batch: %d of %d cases failed", failed, len(results))
	}
	return nil
}

func readBatchFile(path string) ([]server.TriageRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("batch: %w", err)
	}
	var reqs []server.TriageRequest
	if err := json.Unmarshal(data, &reqs); err != nil {
		return nil, fmt.Errorf("batch: parsing %s: %w", path, err)
	}
	if len(reqs) == 0 {
		return nil, fmt.Errorf("batch: %s contains no cases", path)
	}
	return reqs, nil
}

func runBatchCase(ctx context.Context, a *app, index int, req server.TriageRequest) batchResult {
	res := batchResult{Index: index, PatientID: req.PatientID}

	in, err := server.ResolveCase(ctx, a.store, req)
	if err != nil {
		res.Status = string(orchestrator.StatusFailed)
		res.Error = err.Error()
		return res
	}
	in.RunID = uuid.NewString()
	res.RunID = in.RunID

	plan := a.pipeline.Plan()
	var outputs []string
	if req.IncludeSummary {
		var run *orchestrator.Run
		run, err = a.pipeline.Run(ctx, in, orchestrator.NopSink{})
		if run != nil {
			outputs = run.Outputs()
			res.Summary = run.Summary
		}
	} else {
		outputs, err = a.pipeline.RunAndCollect(ctx, in)
	}
	if err != nil {
		res.Status = string(orchestrator.StatusFailed)
		res.Error = err.Error()
		a.logger.Warn("batch case failed", "index", index, "run_id", in.RunID, "error", err)
		return res
	}

	res.Status = string(orchestrator.StatusCompleted)
	res.AgentResults = make(map[string]string, len(outputs))
	for i, out := range outputs {
		res.AgentResults[plan.Stages[i].Key] = out
	}
	return res
}
