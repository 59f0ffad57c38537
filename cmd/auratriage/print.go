package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/dusk-indust/auratriage/internal/orchestrator"
)

// eventPrinter writes run events either as JSON lines or as status lines
// followed by the stage output.
type eventPrinter struct {
	w    io.Writer
	json bool
	enc  *json.Encoder
}

func newEventPrinter(w io.Writer, asJSON bool) *eventPrinter {
	return &eventPrinter{w: w, json: asJSON, enc: json.NewEncoder(w)}
}

func (p *eventPrinter) print(ev orchestrator.Event) error {
	if p.json {
		return p.enc.Encode(ev)
	}
	if _, err := fmt.Fprintln(p.w, orchestrator.FormatEvent(ev)); err != nil {
		return err
	}
	switch ev.Type {
	case orchestrator.EventAgentResult:
		return p.block(ev.Content)
	case orchestrator.EventTriageComplete:
		if ev.Summary == "" {
			return nil
		}
		if _, err := fmt.Fprintln(p.w, "\nSummary:"); err != nil {
			return err
		}
		return p.block(ev.Summary)
	}
	return nil
}

// block writes text indented under the preceding status line.
func (p *eventPrinter) block(text string) error {
	var b strings.Builder
	for _, line := range strings.Split(strings.TrimRight(text, "\n"), "\n") {
		b.WriteString("      ")
		b.WriteString(line)
		b.WriteByte('\n')
	}
	_, err := io.WriteString(p.w, b.String())
	return err
}
