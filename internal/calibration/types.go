// Package calibration synchronises to a fixed-time traffic signal by
// watching it through a camera. A Detector turns per-frame green scores into
// three accepted green onsets, Calibrate reduces them to a cycle length,
// green duration and quality score, and a Session runs the whole thing
// against a capture.Source on its own goroutine.
package calibration

import (
	"fmt"
	"time"
)

// State is the detector's position in the calibration protocol.
type State int

const (
	StatePermission State = iota
	StateRequesting
	StateTargeting
	StateWaitingNext
	StateComplete
	StateError
	StateCancelled
)

var stateNames = [...]string{
	StatePermission:  "PERMISSION",
	StateRequesting:  "REQUESTING",
	StateTargeting:   "TARGETING",
	StateWaitingNext: "WAITING_NEXT",
	StateComplete:    "COMPLETE",
	StateError:       "ERROR",
	StateCancelled:   "CANCELLED",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "UNKNOWN"
	}
	return stateNames[s]
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *State) UnmarshalText(b []byte) error {
	for i, name := range stateNames {
		if name == string(b) {
			*s = State(i)
			return nil
		}
	}
	return fmt.Errorf("unknown calibration state %q", b)
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == StateComplete || s == StateError || s == StateCancelled
}

// analysing reports whether frames are being scored in this state.
func (s State) analysing() bool {
	return s == StateTargeting || s == StateWaitingNext
}

// OnsetRecord is one accepted green onset. GreenPhase is only meaningful
// once GreenMeasured is set by the matching confirmed falling edge.
type OnsetRecord struct {
	Timestamp     time.Time     `json:"timestamp"`
	Sequence      int           `json:"sequence"`
	GreenPhase    time.Duration `json:"green_phase_ns,omitempty"`
	GreenMeasured bool          `json:"green_measured"`
}

// Result is the outcome of a successful calibration.
type Result struct {
	// SyncTimestamp is the most recent onset, used as the phase anchor.
	SyncTimestamp        time.Time `json:"sync_timestamp"`
	MeasuredCycleSeconds float64   `json:"measured_cycle_seconds"`
	MeasuredGreenSeconds float64   `json:"measured_green_seconds"`
	QualityScore         int       `json:"quality_score"`
	// GreenMeasured is false when no falling edge was confirmed and
	// MeasuredGreenSeconds is the configured fallback.
	GreenMeasured    bool    `json:"green_measured"`
	DeviationSeconds float64 `json:"deviation_seconds"`
}
