// Command greenwave predicts whether a rider descending towards a fixed-time
// signal will arrive on green, and calibrates its timing from a camera.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/banshee-data/greenwave/internal/config"
	"github.com/banshee-data/greenwave/internal/db"
	"github.com/banshee-data/greenwave/internal/version"
)

const usage = `usage: greenwave <command> [flags]

commands:
  serve      run the HTTP API
  calibrate  time three green onsets from the camera and store the result
  watch      print the live decision
  sync       mark a green onset now
  reset      restore the default timing
  version    print build information

Run "greenwave <command> -h" for the flags of a command.
`

// Environment variables that supply flag defaults. They may also be set in
// a .env file in the working directory.
const (
	envDB         = "GREENWAVE_DB"
	envConfig     = "GREENWAVE_CONFIG"
	envHapticPort = "GREENWAVE_HAPTIC_PORT"
)

func main() {
	if err := loadDotEnv(".env"); err != nil {
		log.Fatalf("Failed to load .env: %v", err)
	}
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1], os.Args[2:], os.Stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		log.Fatal(err)
	}
}

func run(ctx context.Context, cmd string, args []string, out io.Writer) error {
	switch cmd {
	case "serve":
		return runServe(ctx, args)
	case "calibrate":
		return runCalibrate(ctx, args, out)
	case "watch":
		return runWatch(ctx, args, out)
	case "sync", "reset":
		return runSettings(ctx, cmd, args, out)
	case "version":
		_, err := fmt.Fprintln(out, version.Current())
		return err
	case "help", "-h", "--help":
		_, err := fmt.Fprint(out, usage)
		return err
	default:
		return fmt.Errorf("unknown command %q\n\n%s", cmd, usage)
	}
}

// loadDotEnv reads files into the environment without overriding variables
// that are already set. Missing files are ignored.
func loadDotEnv(files ...string) error {
	err := godotenv.Load(files...)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// storeFlags are the flags every command that touches settings shares.
type storeFlags struct {
	dbPath     *string
	configPath *string
}

func addStoreFlags(fs *flag.FlagSet) *storeFlags {
	return &storeFlags{
		dbPath:     fs.String("db", envOr(envDB, "greenwave.db"), "Path to the settings database"),
		configPath: fs.String("config", os.Getenv(envConfig), "Tuning config JSON file (built-in defaults if empty)"),
	}
}

func (f *storeFlags) config() (*config.TuningConfig, error) {
	if *f.configPath == "" {
		return config.DefaultTuningConfig(), nil
	}
	return config.LoadTuningConfig(*f.configPath)
}

// open loads the tuning config and opens the database, migrating it to the
// latest schema.
func (f *storeFlags) open() (*db.DB, *config.TuningConfig, error) {
	cfg, err := f.config()
	if err != nil {
		return nil, nil, err
	}
	database, err := db.NewDB(*f.dbPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database %s: %w", *f.dbPath, err)
	}
	return database, cfg, nil
}
