package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/banshee-data/greenwave/internal/api"
	"github.com/banshee-data/greenwave/internal/db"
	"github.com/banshee-data/greenwave/internal/httputil"
)

// runSettings handles sync and reset, either on the local database or
// through a running server.
func runSettings(ctx context.Context, cmd string, args []string, out io.Writer) error {
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	store := addStoreFlags(fs)
	server := fs.String("server", "", "Base URL of a running server (the database is used directly if empty)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var (
		st  db.Settings
		err error
	)
	if *server != "" {
		st, err = remoteSettings(ctx, api.NewClient(*server, httputil.NewStandardClient(nil)), cmd)
	} else {
		st, err = localSettings(store, cmd, time.Now())
	}
	if err != nil {
		return err
	}
	printSettings(out, st)
	return nil
}

func remoteSettings(ctx context.Context, c *api.Client, cmd string) (db.Settings, error) {
	var (
		resp api.SettingsResponse
		err  error
	)
	switch cmd {
	case "sync":
		resp, err = c.SyncNow(ctx)
	case "reset":
		resp, err = c.ResetToDefaults(ctx)
	default:
		return db.Settings{}, fmt.Errorf("unknown settings command %q", cmd)
	}
	return resp.Settings, err
}

func localSettings(store *storeFlags, cmd string, now time.Time) (db.Settings, error) {
	database, cfg, err := store.open()
	if err != nil {
		return db.Settings{}, err
	}
	defer database.Close()

	switch cmd {
	case "sync":
		return database.SyncNow(now)
	case "reset":
		return database.ResetToDefaults(db.DefaultSettings(cfg), now)
	default:
		return db.Settings{}, fmt.Errorf("unknown settings command %q", cmd)
	}
}

func printSettings(out io.Writer, st db.Settings) {
	synced := "never"
	if st.SyncTimestamp != nil {
		synced = st.SyncTimestamp.Local().Format(time.RFC3339)
	}
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "status\t%s\n", st.Status())
	fmt.Fprintf(tw, "descent\t%.1fs\n", st.DescentSeconds)
	fmt.Fprintf(tw, "cycle\t%.1fs (green %.1fs, yellow %.1fs)\n", st.CycleSeconds, st.GreenSeconds, st.YellowSeconds)
	fmt.Fprintf(tw, "synced\t%s\n", synced)
	if st.CalibrationMethod == db.MethodCameraTriple {
		fmt.Fprintf(tw, "quality\t%d/100\n", st.CalibrationQuality)
	}
	tw.Flush()
}
