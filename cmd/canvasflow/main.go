package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/Tsinling0525/canvasflow/app"
	"github.com/Tsinling0525/canvasflow/cmd/api/server"
	"github.com/Tsinling0525/canvasflow/config"
)

// errUsage makes main print the usage text and exit with status 2.
var errUsage = errors.New("usage")

func usage(w io.Writer) {
	fmt.Fprintln(w, "Usage: canvasflow [--config path] <command> [args]")
	fmt.Fprintln(w, "  server                                       start the API server (foreground)")
	fmt.Fprintln(w, "  run --file path [--format native|n8n] [--input json] [--save]")
	fmt.Fprintln(w, "                                               run a workflow file once")
	fmt.Fprintln(w, "  runs list|show <id>|delete <id>|clear        inspect the run log")
	fmt.Fprintln(w, "  workflows list|show <id>|import --file path [--format native|n8n]|delete <id>")
	fmt.Fprintln(w, "                                               manage stored workflows")
	fmt.Fprintln(w, "  node-types                                   list available node types")
}

func main() {
	global := flag.NewFlagSet("canvasflow", flag.ExitOnError)
	configPath := global.String("config", "", "Path to YAML config file")
	_ = global.Parse(os.Args[1:])
	args := global.Args()
	if len(args) == 0 {
		args = []string{"server"}
	}

	cfg, err := config.NewLoader().WithConfigPath(*configPath).Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}
	// The CLI keeps stdout for command output.
	if args[0] != "server" {
		cfg.Log.OutputPaths = []string{"stderr"}
		if cfg.Log.Level == "info" {
			cfg.Log.Level = "warn"
		}
	}
	logger := config.NewLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	defer func() { _ = a.Close() }()

	if err := dispatch(ctx, &cli{app: a, out: os.Stdout}, args); err != nil {
		if errors.Is(err, errUsage) {
			usage(os.Stderr)
			stop()
			os.Exit(2)
		}
		logger.Debug("command failed", zap.Error(err))
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

func dispatch(ctx context.Context, c *cli, args []string) error {
	switch args[0] {
	case "server":
		return server.Serve(ctx, c.app)
	case "run":
		return c.run(ctx, args[1:])
	case "runs":
		return c.runs(ctx, args[1:])
	case "workflows":
		return c.workflows(ctx, args[1:])
	case "node-types":
		return c.nodeTypes()
	default:
		return errUsage
	}
}
