//go:build !gocv
// +build !gocv

package capture

import (
	"context"
	"fmt"

	"github.com/banshee-data/greenwave/internal/detect"
)

// Webcam is a stub when camera support is disabled.
// Build with -tags=gocv to capture through OpenCV.
type Webcam struct {
	opts WebcamOptions
}

// NewWebcam returns a webcam source that can never be started.
func NewWebcam(opts WebcamOptions) *Webcam {
	return &Webcam{opts: opts.withDefaults()}
}

func (w *Webcam) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return fmt.Errorf("open %q: %w: camera support not enabled, rebuild with -tags=gocv", w.opts.Device, ErrDeviceNotFound)
}

func (w *Webcam) Frame(ctx context.Context) (detect.FrameSample, error) {
	return detect.FrameSample{}, ErrNotStarted
}

func (w *Webcam) Stop() error { return nil }
