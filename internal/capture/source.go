// Package capture supplies downsampled RGB frames to the calibration loop:
// a gocv-backed webcam for real use and a simulated signal for development
// and tests.
package capture

import (
	"context"
	"errors"

	"github.com/banshee-data/greenwave/internal/detect"
)

var (
	// ErrPermissionDenied means the platform refused camera access.
	ErrPermissionDenied = errors.New("camera permission denied")
	// ErrDeviceNotFound means no camera matched the requested device.
	ErrDeviceNotFound = errors.New("camera device not found")
	// ErrDeviceLost means a started camera stopped delivering frames.
	ErrDeviceLost = errors.New("camera stopped delivering frames")
	// ErrNotStarted is returned by Frame before Start or after Stop.
	ErrNotStarted = errors.New("capture not started")
)

// Source is a pull-on-demand frame source.
//
// Start acquires the device. Frame blocks until the next frame is available
// or ctx is done. Stop releases the device; it is safe to call more than
// once and from any goroutine.
type Source interface {
	Start(ctx context.Context) error
	Frame(ctx context.Context) (detect.FrameSample, error)
	Stop() error
}
