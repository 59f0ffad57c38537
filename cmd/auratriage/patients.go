package main

import (
	"context"
	"flag"
	"fmt"
	"strings"
)

// patients prints the case store as a table.
func (c *cli) patients(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("patients", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	insurance := fs.String("insurance", "", "only list patients on this insurance tier")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := c.newApp(ctx, c.stderr, false)
	if err != nil {
		return err
	}
	defer a.Close()

	list, err := a.store.ListPatients(ctx)
	if err != nil {
		return err
	}

	shown := 0
	for _, p := range list {
		if *insurance != "" && !strings.EqualFold(p.InsuranceTier, *insurance) {
			continue
		}
		if shown == 0 {
			fmt.Fprintf(c.stdout, "  %-6s %-24s %3s %-2s %-9s %-12s %s\n", "ID", "Name", "Age", "G", "Insurance", "City", "ABHA")
		}
		fmt.Fprintf(c.stdout, "  %-6s %-24s %3d %-2s %-9s %-12s %s\n",
			p.ID, p.Name, p.Age, p.Gender, p.InsuranceTier, p.City, p.ABHA)
		shown++
	}

	if shown == 0 {
		fmt.Fprintln(c.stdout, "No patients found.")
		if *insurance == "" {
			fmt.Fprintln(c.stdout, "Set AURATRIAGE_SEED=true to load the demo patients.")
		}
	}
	return nil
}
