package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"

	"github.com/dusk-indust/auratriage/internal/scaffold"
)

// mcpConfig represents the structure of a .mcp.json file.
type mcpConfig struct {
	MCPServers map[string]json.RawMessage `json:"mcpServers"`
}

// auratriageMCPEntry is the MCP server configuration for the auratriage
// binary.
var auratriageMCPEntry = json.RawMessage(`{
  "type": "stdio",
  "command": "auratriage",
  "args": ["--serve-mcp"]
}`)

// initProject writes the starter files and registers the MCP server in the
// target directory.
func (c *cli) initProject(args []string) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	dir := fs.String("dir", ".", "directory to initialize")
	force := fs.Bool("force", false, "overwrite existing files and entries")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return runInit(c.stdout, *dir, *force)
}

func runInit(w io.Writer, projectRoot string, force bool) error {
	abs, err := filepath.Abs(projectRoot)
	if err != nil {
		return fmt.Errorf("resolving project root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return err
	}

	names := make([]string, 0, len(scaffold.Targets))
	for name := range scaffold.Targets {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		dest := filepath.Join(abs, scaffold.Targets[name])
		if !force {
			if _, err := os.Stat(dest); err == nil {
				fmt.Fprintf(w, "  skipped %s (exists, use --force to overwrite)\n", dotRelative(abs, dest))
				continue
			}
		}
		data, err := scaffold.FS.ReadFile(path.Join(scaffold.Root, name))
		if err != nil {
			return fmt.Errorf("reading embedded %s: %w", name, err)
		}
		if err := os.WriteFile(dest, data, 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", dest, err)
		}
		fmt.Fprintf(w, "  created %s\n", dotRelative(abs, dest))
	}

	if err := mergeMCPConfig(w, filepath.Join(abs, ".mcp.json"), force); err != nil {
		return err
	}

	fmt.Fprintln(w, "\nSetup complete. Copy .env.example to .env and set OPENROUTER_API_KEY.")
	return nil
}

// mergeMCPConfig creates or merges the auratriage entry into .mcp.json.
func mergeMCPConfig(w io.Writer, mcpPath string, force bool) error {
	var cfg mcpConfig

	data, err := os.ReadFile(mcpPath)
	if err == nil {
		if err := json.Unmarshal(data, &cfg); err != nil {
			return fmt.Errorf("parsing %s: %w", mcpPath, err)
		}
	}

	if cfg.MCPServers == nil {
		cfg.MCPServers = make(map[string]json.RawMessage)
	}

	if _, exists := cfg.MCPServers["auratriage"]; exists && !force {
		fmt.Fprintf(w, "  skipped .mcp.json auratriage entry (exists, use --force to overwrite)\n")
		return nil
	}

	cfg.MCPServers["auratriage"] = auratriageMCPEntry

	out, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling .mcp.json: %w", err)
	}

	if err := os.WriteFile(mcpPath, append(out, '\n'), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", mcpPath, err)
	}

	action := "created"
	if data != nil {
		action = "updated"
	}
	fmt.Fprintf(w, "  %s .mcp.json with auratriage MCP server\n", action)
	return nil
}

// dotRelative returns a display path relative to the project root, prefixed
// with "./".
func dotRelative(base, target string) string {
	rel, err := filepath.Rel(base, target)
	if err != nil {
		return target
	}
	return "./" + rel
}
