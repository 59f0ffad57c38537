package orchestrator

import (
	"fmt"
	"strings"
)

// CascadeEntry is one role-labelled block of stage output.
type CascadeEntry struct {
	Role string
	Text string
}

// Cascade accumulates stage outputs in completion order. It is append-only:
// nothing is truncated, deduplicated, or rewritten, so the rendered length
// never decreases. A Cascade belongs to a single run and is not safe for
// concurrent use.
type Cascade struct {
	entries []CascadeEntry
	size    int
}

// Append adds text produced by role to the end of the cascade.
func (c *Cascade) Append(role, text string) {
	c.entries = append(c.entries, CascadeEntry{Role: role, Text: text})
	c.size += len(renderEntry(role, text))
}

// Render returns every entry in order, each under a role-labelled boundary.
func (c *Cascade) Render() string {
	var b strings.Builder
	b.Grow(c.size)
	for _, e := range c.entries {
		b.WriteString(renderEntry(e.Role, e.Text))
	}
	return b.String()
}

// Len returns len(c.Render()) without rendering.
func (c *Cascade) Len() int { return c.size }

// Entries returns a copy of the appended entries.
func (c *Cascade) Entries() []CascadeEntry {
	out := make([]CascadeEntry, len(c.entries))
	copy(out, c.entries)
	return out
}

func renderEntry(role, text string) string {
	return fmt.Sprintf("\n\n--- Output from %s ---\n%s", role, text)
}
