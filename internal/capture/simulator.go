package capture

import (
	"context"
	"image"
	"sync"
	"time"

	"github.com/banshee-data/greenwave/internal/detect"
	"github.com/banshee-data/greenwave/internal/phase"
	"github.com/banshee-data/greenwave/internal/timeutil"
)

// Colours the simulated signal head is painted with.
var (
	litGreen   = [3]uint8{40, 220, 90}
	litYellow  = [3]uint8{235, 180, 30}
	litRed     = [3]uint8{220, 40, 30}
	background = [3]uint8{18, 18, 22}
)

// SimulatorOptions describes the virtual signal and camera.
type SimulatorOptions struct {
	// Signal is the timing the virtual signal follows. Its SyncTimestamp is
	// the instant of a green onset.
	Signal phase.Params
	// FrameInterval is the simulated frame period. Default 33ms.
	FrameInterval time.Duration
	Width, Height int
	// FlickerEvery renders every Nth frame of a green phase dark. Zero
	// disables flicker.
	FlickerEvery int
	// FailAfter makes Frame return ErrDeviceLost after that many frames.
	// Zero never fails.
	FailAfter int
	// StartErr, when set, is returned by Start.
	StartErr error
}

// Simulator renders a fixed-time signal. With a *timeutil.MockClock it
// advances the clock by FrameInterval on each Frame so hours of signal run
// in milliseconds; with any other clock it paces frames on a ticker.
type Simulator struct {
	clock timeutil.Clock
	opts  SimulatorOptions

	// Pre-rendered frames keyed by lamp colour; dark is the unlit head.
	lit  map[[3]uint8]detect.FrameSample
	dark detect.FrameSample

	mu      sync.Mutex
	started bool
	ticker  timeutil.Ticker
	frames  int
	stops   int
}

// NewSimulator returns an unstarted simulator.
func NewSimulator(clock timeutil.Clock, opts SimulatorOptions) *Simulator {
	if opts.FrameInterval <= 0 {
		opts.FrameInterval = 33 * time.Millisecond
	}
	if opts.Width <= 0 {
		opts.Width = 320
	}
	if opts.Height <= 0 {
		opts.Height = 240
	}
	opts.Signal = opts.Signal.Sanitize()

	s := &Simulator{clock: clock, opts: opts, lit: make(map[[3]uint8]detect.FrameSample)}
	s.dark = s.paint(nil)
	for _, c := range [][3]uint8{litGreen, litYellow, litRed} {
		s.lit[c] = s.paint(&c)
	}
	return s
}

func (s *Simulator) paint(lamp *[3]uint8) detect.FrameSample {
	frame := detect.NewFrameSample(s.opts.Width, s.opts.Height)
	frame.Fill(image.Rect(0, 0, s.opts.Width, s.opts.Height), background[0], background[1], background[2])
	if lamp != nil {
		frame.Fill(detect.CenterROI(s.opts.Width, s.opts.Height, 0.3), lamp[0], lamp[1], lamp[2])
	}
	return frame
}

func (s *Simulator) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.opts.StartErr != nil {
		return s.opts.StartErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}
	s.started = true
	if _, ok := s.clock.(*timeutil.MockClock); !ok {
		s.ticker = s.clock.NewTicker(s.opts.FrameInterval)
	}
	return nil
}

func (s *Simulator) Frame(ctx context.Context) (detect.FrameSample, error) {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return detect.FrameSample{}, ErrNotStarted
	}
	if s.opts.FailAfter > 0 && s.frames >= s.opts.FailAfter {
		s.mu.Unlock()
		return detect.FrameSample{}, ErrDeviceLost
	}
	first := s.frames == 0
	ticker := s.ticker
	s.mu.Unlock()

	if !first {
		if err := s.wait(ctx, ticker); err != nil {
			return detect.FrameSample{}, err
		}
	}

	now := s.clock.Now()
	s.mu.Lock()
	s.frames++
	n := s.frames
	s.mu.Unlock()
	return s.render(now, n), nil
}

func (s *Simulator) wait(ctx context.Context, ticker timeutil.Ticker) error {
	if mc, ok := s.clock.(*timeutil.MockClock); ok {
		if err := ctx.Err(); err != nil {
			return err
		}
		mc.Advance(s.opts.FrameInterval)
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-ticker.C():
		return nil
	}
}

// render returns the frame for instant now. Frames are shared between
// calls and must not be modified.
func (s *Simulator) render(now time.Time, n int) detect.FrameSample {
	switch phase.Light(s.opts.Signal, now) {
	case phase.Green:
		if s.opts.FlickerEvery > 0 && n%s.opts.FlickerEvery == 0 {
			return s.dark
		}
		return s.lit[litGreen]
	case phase.Yellow:
		return s.lit[litYellow]
	default:
		return s.lit[litRed]
	}
}

func (s *Simulator) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return nil
	}
	s.started = false
	s.stops++
	if s.ticker != nil {
		s.ticker.Stop()
		s.ticker = nil
	}
	return nil
}

// Frames returns the number of frames delivered so far.
func (s *Simulator) Frames() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}

// Released reports whether the simulator was started and then stopped.
func (s *Simulator) Released() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.started && s.stops > 0
}
