// airq imports air-quality sensor files and answers aggregate queries.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/xtxerr/airq/internal/errors"
	"github.com/xtxerr/airq/internal/logging"
	"github.com/xtxerr/airq/internal/metrics"
	"github.com/xtxerr/airq/internal/storage"
	"github.com/xtxerr/airq/internal/storage/config"
)

// Version is set at build time via ldflags
var Version = "dev"

const usage = `usage: airq [flags] <command> [command flags]

commands:
  import <file|s3://bucket/key>...   ingest semicolon-delimited sensor files
  range -from T -to T                readings between two bounds
  timeline -param P [-interval I] [-reducer R] [-from T] [-to T]
  summary [-reducer R] [-from T] [-to T]
  percentiles [-param P] [-q 0.5,0.9] [-interval I] [-from T] [-to T]
  export -out FILE [-from T] [-to T] write a Parquet archive
  restore FILE                       re-ingest a Parquet archive
  params                             list queryable parameters
  shell                              interactive query shell

flags:
`

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("airq", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprint(stderr, usage)
		fs.PrintDefaults()
	}

	cfgPath := fs.String("config", "airq.yaml", "config file path")
	backend := fs.String("backend", "", "store backend: duckdb, mongo, memory (overrides config)")
	dbPath := fs.String("db", "", "duckdb database path (overrides config)")
	mongoURI := fs.String("mongo-uri", "", "mongodb connection string (overrides config)")
	metricsAddr := fs.String("metrics-addr", "", "serve Prometheus metrics on this address")
	logLevel := fs.String("log-level", "", "log level: debug, info, warn, error")
	jsonOut := fs.Bool("json", false, "write JSON even on a terminal")
	version := fs.Bool("version", false, "print version and exit")

	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return errors.CodeOK
		}
		return errors.CodeInvalidRequest
	}

	if *version {
		fmt.Fprintf(stdout, "airq %s\n", Version)
		return errors.CodeOK
	}

	if fs.NArg() == 0 {
		fs.Usage()
		return errors.CodeInvalidRequest
	}

	// Load config
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg = config.DefaultConfig()
		} else {
			fmt.Fprintf(stderr, "airq: %v\n", err)
			return errors.ErrorToCode(err)
		}
	}

	// CLI overrides
	if *backend != "" {
		cfg.Backend = *backend
	}
	if *dbPath != "" {
		cfg.DuckDB.Path = *dbPath
	}
	if *mongoURI != "" {
		cfg.Mongo.URI = *mongoURI
	}
	if *metricsAddr != "" {
		cfg.Metrics.Listen = *metricsAddr
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "airq: %v\n", err)
		return errors.ErrorToCode(err)
	}

	logging.Init(logging.ParseLevel(cfg.Log.Level), cfg.Log.JSON)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := newOutput(stdout, *jsonOut)
	name, cmdArgs := fs.Arg(0), fs.Args()[1:]

	if err := execute(ctx, cfg, out, name, cmdArgs); err != nil {
		if err == flag.ErrHelp {
			return errors.CodeOK
		}
		code := errors.ErrorToCode(err)
		logging.Debug("command failed", "command", name, "code", errors.CodeName(code), "error", err)
		fmt.Fprintf(stderr, "airq: %v\n", err)
		return code
	}
	return errors.CodeOK
}

// execute opens the store and runs one command.
func execute(ctx context.Context, cfg *config.Config, out *output, name string, args []string) error {
	cmd, ok := lookupCommand(name)
	if !ok {
		return fmt.Errorf("%w: unknown command %q", errors.ErrInvalidParameter, name)
	}

	// params needs no store
	if cmd.noStore {
		return cmd.run(ctx, &app{out: out}, args)
	}

	if cfg.Metrics.Listen != "" {
		go func() {
			if err := metrics.Serve(ctx, cfg.Metrics.Listen); err != nil {
				logging.Error("metrics endpoint failed", "addr", cfg.Metrics.Listen, "error", err)
			}
		}()
	}

	svc, err := storage.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer svc.Close()

	return cmd.run(ctx, &app{svc: svc, out: out}, args)
}
