//go:build gocv
// +build gocv

package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"

	"gocv.io/x/gocv"

	"github.com/banshee-data/greenwave/internal/detect"
	"github.com/banshee-data/greenwave/internal/monitoring"
)

// videoReader is the part of *gocv.VideoCapture the webcam uses.
type videoReader interface {
	Read(m *gocv.Mat) bool
	Close() error
}

var errFrameInProgress = errors.New("capture: frame already in progress")

// Webcam reads frames from a local camera through OpenCV, downsamples them
// to the analysis resolution and converts them to packed RGB.
type Webcam struct {
	opts WebcamOptions

	mu       sync.Mutex
	cap      videoReader
	raw      gocv.Mat
	small    gocv.Mat
	rgb      gocv.Mat
	// reading is set while Frame waits on the device without holding mu.
	reading  bool
	// stopping defers a Stop that arrived mid-read to the reading Frame.
	stopping bool
}

// NewWebcam returns an unstarted webcam source.
func NewWebcam(opts WebcamOptions) *Webcam {
	return &Webcam{opts: opts.withDefaults()}
}

func (w *Webcam) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cap != nil {
		return nil
	}

	vc, err := gocv.OpenVideoCapture(w.opts.Device)
	if err != nil {
		return classifyOpenError(w.opts.Device, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return fmt.Errorf("open %q: %w", w.opts.Device, ErrDeviceNotFound)
	}

	w.attach(vc)
	monitoring.Logf("capture: opened camera %q at %dx%d", w.opts.Device, w.opts.Width, w.opts.Height)
	return nil
}

func (w *Webcam) attach(r videoReader) {
	w.cap = r
	w.raw = gocv.NewMat()
	w.small = gocv.NewMat()
	w.rgb = gocv.NewMat()
}

// Frame blocks in the device read without holding the lock, so Stop can be
// called from another goroutine while a read is stuck.
func (w *Webcam) Frame(ctx context.Context) (detect.FrameSample, error) {
	if err := ctx.Err(); err != nil {
		return detect.FrameSample{}, err
	}
	w.mu.Lock()
	if w.cap == nil {
		w.mu.Unlock()
		return detect.FrameSample{}, ErrNotStarted
	}
	if w.reading {
		w.mu.Unlock()
		return detect.FrameSample{}, errFrameInProgress
	}
	w.reading = true
	vc := w.cap
	w.mu.Unlock()

	// raw is only touched by the goroutine that set reading.
	ok := vc.Read(&w.raw)

	w.mu.Lock()
	defer w.mu.Unlock()
	w.reading = false
	if w.stopping {
		w.stopping = false
		if err := w.closeLocked(); err != nil {
			monitoring.Logf("capture: releasing camera %q: %v", w.opts.Device, err)
		}
		return detect.FrameSample{}, ErrNotStarted
	}
	if !ok || w.raw.Empty() {
		return detect.FrameSample{}, ErrDeviceLost
	}
	gocv.Resize(w.raw, &w.small, image.Pt(w.opts.Width, w.opts.Height), 0, 0, gocv.InterpolationArea)
	gocv.CvtColor(w.small, &w.rgb, gocv.ColorBGRToRGB)

	// ToBytes copies out of the Mat, so the sample outlives the next Read.
	return detect.FrameSample{
		Width:  w.opts.Width,
		Height: w.opts.Height,
		Pix:    w.rgb.ToBytes(),
	}, nil
}

// Stop releases the camera. If a Frame is blocked in a read, the release
// happens when that read returns.
func (w *Webcam) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cap == nil {
		return nil
	}
	if w.reading {
		w.stopping = true
		return nil
	}
	return w.closeLocked()
}

func (w *Webcam) closeLocked() error {
	w.raw.Close()
	w.small.Close()
	w.rgb.Close()
	err := w.cap.Close()
	w.cap = nil
	monitoring.Logf("capture: released camera %q", w.opts.Device)
	return err
}
