package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
)

// CLI flags parsed from command line.
type cliFlags struct {
	ConfigPath string
	EnvFile    string
	ServeMCP   bool
	Version    bool
}

// version is set by goreleaser at build time.
var version = "dev"

const usage = `usage: auratriage [flags] <command> [command flags]

commands:
  serve      run the HTTP, SSE, WebSocket and MCP endpoints
  triage     run one case and print its events
  watch      stream a case from a running server
  batch      run a JSON file of cases concurrently
  patients   list patients in the case store
  init       write starter config and register the MCP server

flags:
`

// cli carries the output streams every command writes to.
type cli struct {
	flags  cliFlags
	stdout io.Writer
	stderr io.Writer
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	c := &cli{stdout: stdout, stderr: stderr}

	fs := flag.NewFlagSet("auratriage", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprint(stderr, usage)
		fs.PrintDefaults()
	}
	fs.StringVar(&c.flags.ConfigPath, "config", "", "stage override file (default: auratriage.yml in the working directory)")
	fs.StringVar(&c.flags.EnvFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	fs.BoolVar(&c.flags.ServeMCP, "serve-mcp", false, "run as an MCP server on stdio")
	fs.BoolVar(&c.flags.Version, "version", false, "print version and exit")

	if err := fs.Parse(args); err != nil {
		return err
	}

	if c.flags.Version {
		fmt.Fprintln(stdout, version)
		return nil
	}

	if err := loadDotenv(c.flags.EnvFile); err != nil {
		return err
	}

	if c.flags.ServeMCP {
		return c.serveMCP(ctx)
	}

	if fs.NArg() == 0 {
		fs.Usage()
		return flag.ErrHelp
	}

	cmd, rest := fs.Arg(0), fs.Args()[1:]
	switch cmd {
	case "serve":
		return c.serve(ctx, rest)
	case "triage":
		return c.triage(ctx, rest)
	case "watch":
		return c.watch(ctx, rest)
	case "batch":
		return c.batch(ctx, rest)
	case "patients":
		return c.patients(ctx, rest)
	case "init":
		return c.initProject(rest)
	default:
		return fmt.Errorf("unknown command %q (run 'auratriage -h' for usage)", cmd)
	}
}

// loadDotenv loads path into the environment without overriding variables
// that are already set. A missing file is not an error.
func loadDotenv(path string) error {
	if path == "" {
		return nil
	}
	err := godotenv.Load(path)
	if err == nil || errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("loading %s: %w", path, err)
}

// newLogger returns a JSON logger for long-running processes and a text
// logger for one-shot commands.
func newLogger(w io.Writer, json bool, level slog.Level) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if json {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
