package calibration

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/greenwave/internal/capture"
	"github.com/banshee-data/greenwave/internal/config"
	"github.com/banshee-data/greenwave/internal/detect"
	"github.com/banshee-data/greenwave/internal/monitoring"
	"github.com/banshee-data/greenwave/internal/timeutil"
)

// OnsetVibration is the haptic pattern played on every accepted onset:
// on, off, on.
var OnsetVibration = []time.Duration{50 * time.Millisecond, 50 * time.Millisecond, 50 * time.Millisecond}

// Feedback receives best-effort notifications from a running session.
// Calls are made from a dedicated goroutine so a slow device never delays
// frame analysis; errors are logged and otherwise ignored.
type Feedback interface {
	Flash() error
	Vibrate(pattern []time.Duration) error
}

// Observer sees every scored frame and accepted onset. Calls are made from
// the session goroutine and must not block.
type Observer interface {
	ObserveSample(at time.Time, greenPercent float64)
	ObserveOnset(rec OnsetRecord)
}

// Options configures a Session. Zero fields take defaults.
type Options struct {
	Params               Params
	Classifier           detect.Classifier
	FallbackGreenSeconds float64
	Clock                timeutil.Clock
	Feedback             Feedback
	Observer             Observer
}

// OptionsFromConfig builds session options from the tuning config.
func OptionsFromConfig(cfg *config.TuningConfig) Options {
	return Options{
		Params:               ParamsFromConfig(cfg),
		Classifier:           detect.NewClassifier(cfg),
		FallbackGreenSeconds: cfg.GetFallbackGreenSeconds(),
	}
}

func (o *Options) applyDefaults() {
	if o.Params == (Params{}) {
		o.Params = DefaultParams()
	}
	if o.Classifier == (detect.Classifier{}) {
		o.Classifier = detect.DefaultClassifier()
	}
	if o.FallbackGreenSeconds <= 0 {
		o.FallbackGreenSeconds = config.EmptyTuningConfig().GetFallbackGreenSeconds()
	}
	if o.Clock == nil {
		o.Clock = timeutil.RealClock{}
	}
}

// Progress is a point-in-time view of a session for status displays.
type Progress struct {
	ID             string    `json:"id"`
	State          State     `json:"state"`
	Onsets         int       `json:"onsets"`
	Required       int       `json:"required"`
	Tracking       bool      `json:"tracking"`
	LastOnset      time.Time `json:"last_onset,omitempty"`
	SinceLastOnset float64   `json:"since_last_onset_seconds"`
	GreenPercent   float64   `json:"green_percent"`
	Frames         int64     `json:"frames"`
	Visible        bool      `json:"visible"`
	Error          string    `json:"error,omitempty"`
}

// Session is one run of the calibration protocol against a frame source.
// Exactly one goroutine pulls frames; the capture device is released on
// every exit path before Done is closed.
type Session struct {
	ID uuid.UUID

	src      capture.Source
	opts     Options
	logf     func(format string, v ...interface{})
	cancel   context.CancelFunc
	done     chan struct{}
	// feedback queues accepted onsets for the feedback goroutine; nil
	// without a Feedback.
	feedback chan OnsetRecord

	mu       sync.Mutex
	det      *Detector
	visible  bool
	wake     chan struct{}
	greenPct float64
	frames   int64
	result   Result
	err      error
}

// Start grants the session, acquires src and begins analysing frames. If the
// source cannot be started Start returns a *CaptureUnavailableError and no
// session. Cancelling ctx tears the session down as if Cancel were called.
func Start(ctx context.Context, src capture.Source, opts Options) (*Session, error) {
	opts.applyDefaults()

	id := uuid.New()
	s := &Session{
		ID:      id,
		src:     src,
		opts:    opts,
		logf:    monitoring.Scoped("calibration " + id.String()[:8]),
		done:    make(chan struct{}),
		det:     NewDetector(opts.Params),
		visible: true,
	}

	if err := s.det.Grant(); err != nil {
		return nil, err
	}
	if err := src.Start(ctx); err != nil {
		s.release()
		cerr := s.det.CaptureFailed(err)
		s.logf("capture unavailable: %v", cerr)
		return nil, cerr
	}
	if err := s.det.CaptureAcquired(); err != nil {
		s.release()
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	if opts.Feedback != nil {
		s.feedback = make(chan OnsetRecord, OnsetsRequired)
		go s.deliverFeedback(s.feedback)
	}
	s.logf("started; waiting for %d green onsets", OnsetsRequired)
	go s.run(runCtx)
	return s, nil
}

// Cancel stops the session without a result. It does not wait; use Wait.
func (s *Session) Cancel() { s.cancel() }

// Done is closed once the session has ended and released its source.
func (s *Session) Done() <-chan struct{} { return s.done }

// Wait blocks until the session ends and returns its outcome: a Result, or
// one of *IntervalOutOfRangeError, *CaptureUnavailableError or
// ErrCancelled.
func (s *Session) Wait() (Result, error) {
	<-s.done
	return s.Result()
}

// Result returns the outcome without blocking. Before the session ends it
// returns a zero Result and a nil error.
func (s *Session) Result() (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result, s.err
}

// SetVisible suspends frame analysis while the hosting surface is hidden and
// resumes it, with all detector state intact, when it is shown again.
// Frames are not backfilled for the gap.
func (s *Session) SetVisible(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v == s.visible {
		return
	}
	s.visible = v
	if v {
		close(s.wake)
		s.logf("resumed")
	} else {
		s.wake = make(chan struct{})
		s.logf("paused")
	}
}

// Progress returns a snapshot of the session.
func (s *Session) Progress() Progress {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := Progress{
		ID:           s.ID.String(),
		State:        s.det.State(),
		Onsets:       len(s.det.onsets),
		Required:     OnsetsRequired,
		Tracking:     s.det.Tracking(),
		LastOnset:    s.det.LastOnset(),
		GreenPercent: s.greenPct,
		Frames:       s.frames,
		Visible:      s.visible,
	}
	if !p.LastOnset.IsZero() {
		p.SinceLastOnset = s.opts.Clock.Since(p.LastOnset).Seconds()
	}
	if s.err != nil {
		p.Error = s.err.Error()
	}
	return p
}

func (s *Session) run(ctx context.Context) {
	defer close(s.done)
	defer s.release()
	defer s.cancel()
	if s.feedback != nil {
		defer close(s.feedback)
	}

	for {
		if err := s.waitVisible(ctx); err != nil {
			s.finishCancelled()
			return
		}

		frame, err := s.src.Frame(ctx)
		if err != nil {
			if ctx.Err() != nil {
				s.finishCancelled()
				return
			}
			s.mu.Lock()
			cerr := s.det.CaptureFailed(err)
			s.err = cerr
			s.mu.Unlock()
			s.logf("capture lost: %v", cerr)
			return
		}

		if s.step(ctx, frame) {
			return
		}
	}
}

// step scores one frame and reports whether the session has ended.
func (s *Session) step(ctx context.Context, frame detect.FrameSample) bool {
	now := s.opts.Clock.Now()
	pct := s.opts.Classifier.Classify(frame)

	s.mu.Lock()
	if ctx.Err() != nil {
		s.mu.Unlock()
		s.finishCancelled()
		return true
	}
	ev := s.det.Observe(now, pct)
	s.greenPct = pct
	s.frames++
	var onsets []OnsetRecord
	if ev.Kind == EventComplete {
		onsets = s.det.Onsets()
	}
	s.mu.Unlock()

	if s.opts.Observer != nil {
		s.opts.Observer.ObserveSample(now, pct)
	}

	switch ev.Kind {
	case EventOnset:
		s.logf("onset %d/%d at %s", ev.Onset.Sequence, OnsetsRequired, ev.Onset.Timestamp.Format(time.RFC3339Nano))
		s.notify(ev.Onset)
	case EventGreenEnded:
		s.logf("green phase after onset %d lasted %.2fs", ev.Onset.Sequence, ev.Onset.GreenPhase.Seconds())
	case EventComplete:
		s.logf("onset %d/%d at %s", ev.Onset.Sequence, OnsetsRequired, ev.Onset.Timestamp.Format(time.RFC3339Nano))
		s.notify(ev.Onset)
		s.complete(onsets)
		return true
	case EventFailed:
		s.mu.Lock()
		s.err = ev.Err
		s.mu.Unlock()
		s.logf("rejected: %v", ev.Err)
		return true
	}
	return false
}

func (s *Session) complete(onsets []OnsetRecord) {
	res, err := Calibrate(onsets, s.opts.FallbackGreenSeconds)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.det.fail(err)
		s.err = err
		s.logf("calibration failed: %v", err)
		return
	}
	s.result = res
	if !res.GreenMeasured {
		s.logf("no green phase measured; using fallback %.0fs", res.MeasuredGreenSeconds)
	}
	s.logf("complete: cycle %.0fs green %.0fs quality %d (deviation %.2fs)",
		res.MeasuredCycleSeconds, res.MeasuredGreenSeconds, res.QualityScore, res.DeviationSeconds)
}

func (s *Session) finishCancelled() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.det.Cancel() {
		s.err = ErrCancelled
		s.logf("cancelled")
	}
}

func (s *Session) waitVisible(ctx context.Context) error {
	s.mu.Lock()
	if s.visible {
		s.mu.Unlock()
		return ctx.Err()
	}
	wake := s.wake
	s.mu.Unlock()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-wake:
		return nil
	}
}

func (s *Session) notify(rec OnsetRecord) {
	if s.opts.Observer != nil {
		s.opts.Observer.ObserveOnset(rec)
	}
	if s.feedback == nil {
		return
	}
	select {
	case s.feedback <- rec:
	default:
		s.logf("feedback busy; skipped onset %d", rec.Sequence)
	}
}

// deliverFeedback flashes and vibrates once per queued onset until q is
// closed. It may outlive the session while a device write is stuck.
func (s *Session) deliverFeedback(q <-chan OnsetRecord) {
	for rec := range q {
		if err := s.opts.Feedback.Flash(); err != nil {
			s.logf("flash for onset %d failed: %v", rec.Sequence, err)
		}
		if err := s.opts.Feedback.Vibrate(OnsetVibration); err != nil {
			s.logf("vibrate for onset %d failed: %v", rec.Sequence, err)
		}
	}
}

func (s *Session) release() {
	if err := s.src.Stop(); err != nil && !errors.Is(err, capture.ErrNotStarted) {
		s.logf("releasing capture: %v", err)
	}
}
