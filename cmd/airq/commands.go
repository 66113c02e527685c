package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/xtxerr/airq/internal/errors"
	"github.com/xtxerr/airq/internal/storage"
	"github.com/xtxerr/airq/internal/storage/ingestion"
	"github.com/xtxerr/airq/internal/storage/query"
	"github.com/xtxerr/airq/internal/storage/types"
	"github.com/xtxerr/airq/internal/validation"
)

// app is the state shared by commands.
type app struct {
	svc *storage.Service
	out *output

	// interactive is set inside the shell, which cannot be nested.
	interactive bool
}

type command struct {
	name    string
	help    string
	noStore bool
	run     func(ctx context.Context, a *app, args []string) error
}

var commands map[string]command

func init() {
	commands = map[string]command{
		"import":      {name: "import", help: "import <file|s3://bucket/key|->...", run: runImport},
		"range":       {name: "range", help: "range -from T -to T", run: runRange},
		"timeline":    {name: "timeline", help: "timeline -param P [-interval I] [-reducer R] [-from T] [-to T]", run: runTimeline},
		"summary":     {name: "summary", help: "summary [-param P] [-reducer R] [-from T] [-to T]", run: runSummary},
		"percentiles": {name: "percentiles", help: "percentiles [-param P] [-q 0.5,0.9] [-interval I] [-from T] [-to T]", run: runPercentiles},
		"export":      {name: "export", help: "export -out FILE [-from T] [-to T]", run: runExport},
		"restore":     {name: "restore", help: "restore FILE", run: runRestore},
		"params":      {name: "params", help: "params", noStore: true, run: runParams},
		"shell":       {name: "shell", help: "shell", run: runShell},
	}
}

func lookupCommand(name string) (command, bool) {
	cmd, ok := commands[name]
	return cmd, ok
}

// commandNames returns the command names in sorted order.
func commandNames() []string {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func newFlags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	return fs
}

// parseFlags parses args and maps flag syntax errors to invalid requests.
func parseFlags(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return err
		}
		return fmt.Errorf("%w: %s: %v", errors.ErrInvalidParameter, fs.Name(), err)
	}
	return nil
}

// boundFlags registers -from and -to.
func boundFlags(fs *flag.FlagSet) (from, to *string) {
	from = fs.String("from", "", "lower bound, inclusive (2004-03-10, 2004-03-10T18:00:00, RFC3339)")
	to = fs.String("to", "", "upper bound, inclusive; a date includes the whole day")
	return from, to
}

// =============================================================================
// Commands
// =============================================================================

func runImport(ctx context.Context, a *app, args []string) error {
	fs := newFlags("import")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return errors.NewMissingField("file")
	}

	if fs.NArg() == 1 && fs.Arg(0) == "-" {
		report, err := a.svc.Import(ctx, os.Stdin, "stdin")
		if werr := a.out.reports([]ingestion.FileReport{{Report: report, Err: err}}); werr != nil {
			return werr
		}
		return err
	}

	reports := a.svc.ImportFiles(ctx, fs.Args()...)
	if err := a.out.reports(reports); err != nil {
		return err
	}
	return ingestion.ImportErrors(reports)
}

func runRange(ctx context.Context, a *app, args []string) error {
	fs := newFlags("range")
	from, to := boundFlags(fs)
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	readings, err := a.svc.Range(ctx, *from, *to)
	if err != nil {
		return err
	}
	return a.out.readings(readings)
}

func runTimeline(ctx context.Context, a *app, args []string) error {
	fs := newFlags("timeline")
	param := fs.String("param", "", "parameter name (see params)")
	interval := fs.String("interval", "", "hourly, daily, monthly or yearly (default daily)")
	reducer := fs.String("reducer", "", "sum, avg, min or max (default sum)")
	from, to := boundFlags(fs)
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	buckets, err := a.svc.TimeSeries(ctx, *param, *from, *to, *interval, *reducer)
	if err != nil {
		return err
	}
	return a.out.buckets(buckets)
}

func runSummary(ctx context.Context, a *app, args []string) error {
	fs := newFlags("summary")
	param := fs.String("param", "", "restrict to one parameter")
	reducer := fs.String("reducer", "", "avg, min or max (default avg)")
	from, to := boundFlags(fs)
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	if *param == "" {
		sum, err := a.svc.Summary(ctx, *from, *to, *reducer)
		if err != nil {
			return err
		}
		return a.out.summary(sum)
	}

	tr, err := validation.ParseRange(*from, *to)
	if err != nil {
		return err
	}
	res, err := a.svc.Execute(ctx, query.Spec{
		Kind:      query.KindSummary,
		Range:     tr,
		Parameter: *param,
		Reducer:   *reducer,
	})
	if err != nil {
		return err
	}
	return a.out.summary(res.Summary)
}

func runPercentiles(ctx context.Context, a *app, args []string) error {
	fs := newFlags("percentiles")
	param := fs.String("param", "", "parameter name; empty selects all")
	qs := fs.String("q", "", "comma-separated quantiles in [0,1] (default 0.5,0.9,0.95,0.99)")
	interval := fs.String("interval", "", "bucket by hourly, daily, monthly or yearly")
	from, to := boundFlags(fs)
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	quantiles, err := validation.ParseQuantiles(*qs)
	if err != nil {
		return err
	}

	dists, err := a.svc.Percentiles(ctx, *param, *from, *to, *interval, quantiles)
	if err != nil {
		return err
	}
	return a.out.distributions(dists)
}

func runExport(ctx context.Context, a *app, args []string) error {
	fs := newFlags("export")
	path := fs.String("out", "", "Parquet file to write")
	from, to := boundFlags(fs)
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if *path == "" {
		return errors.NewMissingField("out")
	}

	info, err := a.svc.Export(ctx, *from, *to, *path)
	if err != nil {
		return err
	}
	return a.out.exported(info)
}

func runRestore(ctx context.Context, a *app, args []string) error {
	fs := newFlags("restore")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.NewMissingField("file")
	}

	report, err := a.svc.Restore(ctx, fs.Arg(0))
	if werr := a.out.reports([]ingestion.FileReport{{Report: report, Err: err}}); werr != nil {
		return werr
	}
	return err
}

func runParams(ctx context.Context, a *app, args []string) error {
	return a.out.params(types.Fields())
}

// splitArgs splits a shell line into arguments. Double quotes group words.
func splitArgs(line string) []string {
	var (
		args   []string
		cur    strings.Builder
		quote  bool
		inWord bool
	)
	for _, r := range line {
		switch {
		case r == '"':
			quote = !quote
			inWord = true
		case (r == ' ' || r == '\t') && !quote:
			if inWord {
				args = append(args, cur.String())
				cur.Reset()
				inWord = false
			}
		default:
			cur.WriteRune(r)
			inWord = true
		}
	}
	if inWord {
		args = append(args, cur.String())
	}
	return args
}
