package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/banshee-data/greenwave/internal/api"
	"github.com/banshee-data/greenwave/internal/calibration"
	"github.com/banshee-data/greenwave/internal/capture"
	"github.com/banshee-data/greenwave/internal/config"
	"github.com/banshee-data/greenwave/internal/feedback"
	"github.com/banshee-data/greenwave/internal/phase"
	"github.com/banshee-data/greenwave/internal/timeutil"
)

// sourceFlags choose between the camera and the simulated signal.
type sourceFlags struct {
	camera    *string
	simulate  *bool
	simCycle  *float64
	simGreen  *float64
	simYellow *float64
}

func addSourceFlags(fs *flag.FlagSet) *sourceFlags {
	return &sourceFlags{
		camera:    fs.String("camera", "0", "Camera device index, path or stream URL"),
		simulate:  fs.Bool("simulate", false, "Calibrate against a simulated signal instead of the camera"),
		simCycle:  fs.Float64("sim-cycle", 60, "Simulated cycle length in seconds"),
		simGreen:  fs.Float64("sim-green", 25, "Simulated green phase in seconds"),
		simYellow: fs.Float64("sim-yellow", 3, "Simulated yellow phase in seconds"),
	}
}

// factory returns a constructor for fresh sources. A simulated signal turns
// green when the source is created.
func (f *sourceFlags) factory(cfg *config.TuningConfig, clock timeutil.Clock) api.SourceFactory {
	if *f.simulate {
		return func() (capture.Source, error) {
			return capture.NewSimulator(clock, capture.SimulatorOptions{
				Signal: phase.Params{
					SyncTimestamp: clock.Now(),
					CycleSeconds:  *f.simCycle,
					GreenSeconds:  *f.simGreen,
					YellowSeconds: *f.simYellow,
				},
				Width:  cfg.GetFrameWidth(),
				Height: cfg.GetFrameHeight(),
			}), nil
		}
	}
	device := *f.camera
	return func() (capture.Source, error) {
		return capture.NewWebcam(capture.WebcamOptions{
			Device: device,
			Width:  cfg.GetFrameWidth(),
			Height: cfg.GetFrameHeight(),
		}), nil
	}
}

// hapticFlags configure the optional serial vibration controller.
type hapticFlags struct {
	port *string
	baud *int
}

func addHapticFlags(fs *flag.FlagSet) *hapticFlags {
	return &hapticFlags{
		port: fs.String("haptic-port", os.Getenv(envHapticPort), "Serial port of the haptic controller (disabled if empty)"),
		baud: fs.Int("haptic-baud", 115200, "Baud rate of the haptic controller"),
	}
}

// open builds the onset feedback: always a log line, plus the haptic
// controller when a port is configured. The returned func releases the
// port.
func (f *hapticFlags) open(opener feedback.PortOpener) (calibration.Feedback, func(), error) {
	sinks := feedback.Multi{feedback.LogSink{}}
	if *f.port == "" {
		return sinks, func() {}, nil
	}
	ss, err := feedback.NewSerialSink(*f.port, feedback.PortOptions{BaudRate: *f.baud}, opener)
	if err != nil {
		return nil, nil, err
	}
	release := func() {
		if err := ss.Close(); err != nil {
			log.Printf("closing haptic port: %v", err)
		}
	}
	return append(sinks, ss), release, nil
}

func runServe(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	store := addStoreFlags(fs)
	src := addSourceFlags(fs)
	haptic := addHapticFlags(fs)
	listen := fs.String("listen", ":8080", "Listen address")
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

	clock := timeutil.RealClock{}
	srv := api.NewServer(ctx, api.Options{
		DB:        database,
		Config:    cfg,
		Clock:     clock,
		NewSource: src.factory(cfg, clock),
		Feedback:  fb,
	})

	mux := srv.ServeMux()
	if err := database.AttachAdminRoutes(mux); err != nil {
		return fmt.Errorf("failed to attach admin routes: %w", err)
	}

	server := &http.Server{
		Addr:              *listen,
		Handler:           api.LoggingMiddleware(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		errc <- server.ListenAndServe()
	}()
	log.Printf("listening on %s", *listen)

	select {
	case err := <-errc:
		srv.Close()
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Println("shutting down HTTP server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
		if err := server.Close(); err != nil {
			log.Printf("HTTP server force close error: %v", err)
		}
	}
	srv.Close()
	log.Printf("graceful shutdown complete")
	return nil
}
