package calibration

import (
	"fmt"
	"time"

	"github.com/banshee-data/greenwave/internal/config"
)

// OnsetsRequired is the number of accepted onsets that completes a session.
const OnsetsRequired = 3

// Params tunes the detector. Zero values are not meaningful; start from
// DefaultParams or ParamsFromConfig.
type Params struct {
	// OnsetThreshold is the green percentage above which a frame is lit.
	OnsetThreshold float64
	// DarkFrames is how many consecutive unlit frames end a green phase.
	DarkFrames int
	// Cooldown suppresses rising edges after an accepted onset.
	Cooldown time.Duration
	// MinInterval and MaxInterval bound onset-to-onset intervals.
	MinInterval time.Duration
	MaxInterval time.Duration
}

// DefaultParams returns the built-in detector tuning.
func DefaultParams() Params {
	return ParamsFromConfig(config.EmptyTuningConfig())
}

// ParamsFromConfig reads the detector tuning out of cfg.
func ParamsFromConfig(cfg *config.TuningConfig) Params {
	return Params{
		OnsetThreshold: cfg.GetOnsetThresholdPercent(),
		DarkFrames:     cfg.GetDarkFramesToConfirm(),
		Cooldown:       cfg.GetCooldown(),
		MinInterval:    cfg.GetMinInterval(),
		MaxInterval:    cfg.GetMaxInterval(),
	}
}

// EventKind is what a single observation caused.
type EventKind int

const (
	EventNone EventKind = iota
	// EventOnset: a rising edge was accepted and more onsets are needed.
	EventOnset
	// EventGreenEnded: a falling edge was confirmed and the green phase
	// attached to the latest onset.
	EventGreenEnded
	// EventComplete: the final onset was accepted; Onsets holds the set.
	EventComplete
	// EventFailed: an interval was out of range; Err holds the diagnostic.
	EventFailed
)

// Event is returned by Observe.
type Event struct {
	Kind  EventKind
	Onset OnsetRecord
	Err   error
}

// Detector is the calibration state machine. It holds all mutable detection
// state for one session and is driven by a single goroutine; it is not safe
// for concurrent use.
type Detector struct {
	params Params
	state  State
	err    error

	onsets     []OnsetRecord
	tracking   bool
	greenStart time.Time
	darkFrames int
	lastOnset  time.Time
}

// NewDetector returns a detector in StatePermission.
func NewDetector(p Params) *Detector {
	if p.DarkFrames < 1 {
		p.DarkFrames = 1
	}
	return &Detector{params: p, state: StatePermission}
}

// State returns the current state.
func (d *Detector) State() State { return d.state }

// Err returns the error that moved the detector to StateError, if any.
func (d *Detector) Err() error { return d.err }

// Tracking reports whether a green phase is currently being timed.
func (d *Detector) Tracking() bool { return d.tracking }

// LastOnset returns the timestamp of the latest accepted onset, or the zero
// time if none has been accepted.
func (d *Detector) LastOnset() time.Time { return d.lastOnset }

// Onsets returns a copy of the accepted onsets.
func (d *Detector) Onsets() []OnsetRecord {
	return append([]OnsetRecord(nil), d.onsets...)
}

func (d *Detector) transition(from, to State) error {
	if d.state != from {
		return fmt.Errorf("calibration: cannot move to %s from %s", to, d.state)
	}
	d.state = to
	return nil
}

// Grant records that the user agreed to camera use.
func (d *Detector) Grant() error {
	return d.transition(StatePermission, StateRequesting)
}

// CaptureAcquired records that the frame source started.
func (d *Detector) CaptureAcquired() error {
	return d.transition(StateRequesting, StateTargeting)
}

// CaptureFailed moves to StateError because the frame source could not be
// started or was lost. It returns the classified error.
func (d *Detector) CaptureFailed(err error) *CaptureUnavailableError {
	cerr := captureUnavailable(err)
	if !d.state.Terminal() {
		d.fail(cerr)
	}
	return cerr
}

// Cancel terminates the session without a result. It reports whether the
// detector was still running.
func (d *Detector) Cancel() bool {
	if d.state.Terminal() {
		return false
	}
	d.state = StateCancelled
	d.reset()
	return true
}

func (d *Detector) fail(err error) {
	d.state = StateError
	d.err = err
	d.reset()
}

func (d *Detector) reset() {
	d.onsets = nil
	d.tracking = false
	d.darkFrames = 0
}

// Observe feeds one frame's green percentage taken at now. Observations
// outside StateTargeting and StateWaitingNext are ignored.
func (d *Detector) Observe(now time.Time, pct float64) Event {
	if !d.state.analysing() {
		return Event{}
	}

	if pct > d.params.OnsetThreshold {
		// A lit frame breaks any run of dark frames.
		d.darkFrames = 0
		if d.inCooldown(now) {
			return Event{}
		}
		return d.accept(now)
	}

	if !d.tracking {
		return Event{}
	}
	d.darkFrames++
	if d.darkFrames < d.params.DarkFrames {
		return Event{}
	}

	last := &d.onsets[len(d.onsets)-1]
	last.GreenPhase = now.Sub(d.greenStart)
	last.GreenMeasured = true
	d.tracking = false
	d.darkFrames = 0
	return Event{Kind: EventGreenEnded, Onset: *last}
}

func (d *Detector) inCooldown(now time.Time) bool {
	return len(d.onsets) > 0 && now.Sub(d.lastOnset) < d.params.Cooldown
}

func (d *Detector) accept(now time.Time) Event {
	if n := len(d.onsets); n > 0 {
		if err := d.checkInterval(now.Sub(d.onsets[n-1].Timestamp)); err != nil {
			d.fail(err)
			return Event{Kind: EventFailed, Err: err}
		}
	}

	rec := OnsetRecord{Timestamp: now, Sequence: len(d.onsets) + 1}
	d.onsets = append(d.onsets, rec)
	d.lastOnset = now
	// An onset inside a still-lit phase keeps timing from the phase start.
	if !d.tracking {
		d.greenStart = now
	}
	d.tracking = true
	d.darkFrames = 0

	if len(d.onsets) == OnsetsRequired {
		d.state = StateComplete
		d.tracking = false
		return Event{Kind: EventComplete, Onset: rec}
	}
	d.state = StateWaitingNext
	return Event{Kind: EventOnset, Onset: rec}
}

func (d *Detector) checkInterval(interval time.Duration) error {
	var class IntervalClass
	switch {
	case interval < d.params.MinInterval:
		class = TooFast
	case interval > d.params.MaxInterval:
		class = TooSlow
	default:
		return nil
	}
	return &IntervalOutOfRangeError{
		MeasuredSeconds: interval.Seconds(),
		Classification:  class,
		Min:             d.params.MinInterval.Seconds(),
		Max:             d.params.MaxInterval.Seconds(),
	}
}
