package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/banshee-data/greenwave/internal/db"
	"github.com/banshee-data/greenwave/internal/phase"
	"github.com/banshee-data/greenwave/internal/timeutil"
)

func runWatch(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	store := addStoreFlags(fs)
	descent := fs.Float64("descent", 0, "Descent time in seconds (stored value if zero)")
	every := fs.Duration("every", time.Second, "Print interval (configured evaluation interval if zero)")
	once := fs.Bool("once", false, "Print one evaluation and exit")
	if err := fs.Parse(args); err != nil {
		return err
	}

	database, cfg, err := store.open()
	if err != nil {
		return err
	}
	defer database.Close()

	interval := *every
	if interval <= 0 {
		interval = cfg.GetEvaluationInterval()
	}
	margins := phase.Margins{EarlySeconds: cfg.GetEarlyMarginSeconds(), LateSeconds: cfg.GetLateMarginSeconds()}
	load := settingsLoader(database, margins, *descent)
	warnAt := cfg.GetCountdownWarningSeconds()
	emit := func(ev phase.Evaluation) {
		fmt.Fprintln(out, formatEvaluation(ev, warnAt))
	}

	clock := timeutil.RealClock{}
	if *once {
		emit(phase.Evaluate(load(), clock.Now()))
		return nil
	}
	err = phase.Watch(ctx, clock, interval, load, emit)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// settingsLoader reads the stored settings on every call so edits made
// through the API show up on the next tick. If a read fails the previous
// inputs are reused.
func settingsLoader(database *db.DB, m phase.Margins, descent float64) func() phase.Inputs {
	var last phase.Inputs
	loaded := false
	return func() phase.Inputs {
		st, err := database.Settings()
		if err != nil {
			log.Printf("reading settings: %v", err)
			if loaded {
				return last
			}
			st = db.Settings{}
		}
		in := st.Inputs(m)
		if descent > 0 {
			in.DescentSeconds = descent
		}
		last, loaded = in, err == nil
		return in
	}
}

func formatEvaluation(ev phase.Evaluation, warnAt float64) string {
	line := fmt.Sprintf("%s  %-6s  %-7s  green in %5.1fs",
		ev.At.Format("15:04:05.0"), ev.Light, ev.Result.Decision, ev.Result.TimeUntilGreen)
	if ev.Result.CountdownWarning(warnAt) {
		line += "  get ready"
	}
	return line
}
