package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"text/tabwriter"
	"time"

	"github.com/banshee-data/greenwave/internal/calibration"
	"github.com/banshee-data/greenwave/internal/capture"
	"github.com/banshee-data/greenwave/internal/config"
	"github.com/banshee-data/greenwave/internal/db"
	"github.com/banshee-data/greenwave/internal/feedback"
	"github.com/banshee-data/greenwave/internal/security"
	"github.com/banshee-data/greenwave/internal/timeutil"
	"github.com/banshee-data/greenwave/internal/trace"
)

func runCalibrate(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("calibrate", flag.ContinueOnError)
	store := addStoreFlags(fs)
	src := addSourceFlags(fs)
	haptic := addHapticFlags(fs)
	plotDir := fs.String("plot-dir", "", "Directory to write a PNG trace of the session to")
	timeout := fs.Duration("timeout", 15*time.Minute, "Give up after this long")
	if err := fs.Parse(args); err != nil {
		return err
	}

	database, cfg, err := store.open()
	if err != nil {
		return err
	}
	defer database.Close()

	fb, release, err := haptic.open(feedback.OpenSerial)
	if err != nil {
		return err
	}
	defer release()

	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	clock := timeutil.RealClock{}
	source, err := src.factory(cfg, clock)()
	if err != nil {
		return err
	}
	_, err = calibrateOnce(ctx, calibrateRun{
		db:       database,
		cfg:      cfg,
		clock:    clock,
		source:   source,
		feedback: fb,
		plotDir:  *plotDir,
		every:    time.Second,
	}, out)
	return err
}

// calibrateRun is everything one calibration from the command line needs.
type calibrateRun struct {
	db       *db.DB
	cfg      *config.TuningConfig
	clock    timeutil.Clock
	source   capture.Source
	feedback calibration.Feedback
	plotDir  string
	// every is how often progress is reported.
	every    time.Duration
}

// calibrateOnce runs a session to completion, stores a successful result
// and prints a summary. The trace is written to plotDir whatever the
// outcome so failed sessions can be inspected.
func calibrateOnce(ctx context.Context, r calibrateRun, out io.Writer) (db.Settings, error) {
	rec := trace.NewRecorder(0, r.cfg.GetOnsetThresholdPercent())
	opts := calibration.OptionsFromConfig(r.cfg)
	opts.Clock = r.clock
	opts.Feedback = r.feedback
	opts.Observer = rec

	sess, err := calibration.Start(ctx, r.source, opts)
	if err != nil {
		return db.Settings{}, err
	}
	fmt.Fprintf(out, "calibration %s: watching for %d green onsets\n", sess.ID, sess.Progress().Required)

	res, err := waitWithProgress(sess, r.clock, r.every, out)
	if r.plotDir != "" {
		if path, perr := savePlot(rec, r.plotDir, sess.ID.String()); perr != nil {
			log.Printf("trace plot not written: %v", perr)
		} else {
			fmt.Fprintf(out, "trace written to %s\n", path)
		}
	}
	if err != nil {
		return db.Settings{}, fmt.Errorf("calibration %s: %w", sess.ID, err)
	}

	st, err := r.db.ApplyCalibration(sess.ID, res, r.clock.Now())
	if err != nil {
		return db.Settings{}, fmt.Errorf("storing calibration %s: %w", sess.ID, err)
	}
	printResult(out, res)
	printSettings(out, st)
	return st, nil
}

// waitWithProgress blocks until sess ends, printing a line whenever another
// onset has been accepted.
func waitWithProgress(sess *calibration.Session, clock timeutil.Clock, every time.Duration, out io.Writer) (calibration.Result, error) {
	ticker := clock.NewTicker(every)
	defer ticker.Stop()

	seen := 0
	for {
		select {
		case <-sess.Done():
			return sess.Wait()
		case <-ticker.C():
			p := sess.Progress()
			if p.Onsets > seen {
				seen = p.Onsets
				fmt.Fprintf(out, "  onset %d/%d at %s\n", p.Onsets, p.Required, p.LastOnset.Format("15:04:05.000"))
			}
		}
	}
}

func savePlot(rec *trace.Recorder, dir, name string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path, err := security.SafeJoin(dir, "calibration-"+name, ".png")
	if err != nil {
		return "", err
	}
	return path, rec.SavePNG(path, dir)
}

func printResult(out io.Writer, res calibration.Result) {
	green := fmt.Sprintf("%.1fs", res.MeasuredGreenSeconds)
	if !res.GreenMeasured {
		green += " (fallback)"
	}
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "measured cycle\t%.1fs\n", res.MeasuredCycleSeconds)
	fmt.Fprintf(tw, "measured green\t%s\n", green)
	fmt.Fprintf(tw, "deviation\t%.2fs\n", res.DeviationSeconds)
	fmt.Fprintf(tw, "quality\t%d/100\n", res.QualityScore)
	tw.Flush()
}
