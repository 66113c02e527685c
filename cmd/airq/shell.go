package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	prompt "github.com/c-bata/go-prompt"

	"github.com/xtxerr/airq/internal/errors"
	"github.com/xtxerr/airq/internal/storage/types"
	"github.com/xtxerr/airq/internal/validation"
)

// runShell reads commands interactively until exit or EOF. Command errors
// are printed and do not end the session.
func runShell(ctx context.Context, a *app, args []string) error {
	if a.interactive {
		return fmt.Errorf("%w: shell is already running", errors.ErrInvalidParameter)
	}

	sh := &shell{ctx: ctx, app: &app{svc: a.svc, out: a.out, interactive: true}}

	p := prompt.New(sh.execute, sh.complete,
		prompt.OptionTitle("airq"),
		prompt.OptionPrefix("airq> "),
		prompt.OptionSetExitCheckerOnInput(func(in string, breakline bool) bool {
			return breakline && isExit(in)
		}),
	)
	p.Run()
	return nil
}

type shell struct {
	ctx context.Context
	app *app
}

func isExit(line string) bool {
	switch strings.TrimSpace(line) {
	case "exit", "quit", `\q`:
		return true
	}
	return false
}

func (sh *shell) execute(line string) {
	args := splitArgs(line)
	if len(args) == 0 || isExit(line) {
		return
	}

	if args[0] == "help" {
		for _, name := range commandNames() {
			fmt.Fprintf(os.Stdout, "  %s\n", commands[name].help)
		}
		fmt.Fprintln(os.Stdout, "  exit")
		return
	}

	cmd, ok := lookupCommand(args[0])
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q (try help)\n", args[0])
		return
	}

	if err := cmd.run(sh.ctx, sh.app, args[1:]); err != nil && err != flag.ErrHelp {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
	}
}

func (sh *shell) complete(d prompt.Document) []prompt.Suggest {
	before := d.TextBeforeCursor()
	word := d.GetWordBeforeCursor()
	args := strings.Fields(before)

	// First word: command names
	if len(args) == 0 || (len(args) == 1 && !strings.HasSuffix(before, " ")) {
		var s []prompt.Suggest
		for _, name := range commandNames() {
			s = append(s, prompt.Suggest{Text: name, Description: commands[name].help})
		}
		s = append(s, prompt.Suggest{Text: "help"}, prompt.Suggest{Text: "exit"})
		return prompt.FilterHasPrefix(s, word, true)
	}

	prev := args[len(args)-1]
	if !strings.HasSuffix(before, " ") && len(args) >= 2 {
		prev = args[len(args)-2]
	}

	return prompt.FilterHasPrefix(valueSuggestions(prev), word, true)
}

// valueSuggestions returns completions for the value of the named flag.
func valueSuggestions(name string) []prompt.Suggest {
	var s []prompt.Suggest
	switch strings.TrimLeft(name, "-") {
	case "param":
		for _, d := range types.Fields() {
			s = append(s, prompt.Suggest{Text: d.Name, Description: d.Description})
		}
	case "interval":
		for _, iv := range []types.Interval{types.IntervalHourly, types.IntervalDaily, types.IntervalMonthly, types.IntervalYearly} {
			s = append(s, prompt.Suggest{Text: iv.String(), Description: "key " + iv.Layout()})
		}
	case "reducer":
		for _, r := range []types.Reducer{types.ReducerSum, types.ReducerAvg, types.ReducerMin, types.ReducerMax} {
			s = append(s, prompt.Suggest{Text: r.String()})
		}
	case "q":
		var qs []string
		for _, q := range validation.DefaultQuantiles {
			qs = append(qs, fmt.Sprint(q))
		}
		s = append(s, prompt.Suggest{Text: strings.Join(qs, ","), Description: "default quantiles"})
	}
	return s
}
