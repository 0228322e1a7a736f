// Package phase predicts where a fixed-time traffic signal is in its cycle
// and turns that into a go/wait decision for someone a known number of
// seconds away from the stop line.
//
// Every function here is pure: the caller passes the clock reading, and
// malformed timing parameters are clamped rather than rejected so a live
// display never stops updating.
package phase

import (
	"fmt"
	"math"
	"time"
)

// Substitutes used when the supplied parameters are unusable.
const (
	FallbackCycleSeconds = 60
	FallbackGreenSeconds = 30
)

// Params anchors the signal cycle: the signal turned green at
// SyncTimestamp, and every CycleSeconds thereafter.
type Params struct {
	SyncTimestamp time.Time
	CycleSeconds  float64
	GreenSeconds  float64
	YellowSeconds float64
}

// Margins are the buffers at each end of the green window inside which an
// arrival is only CAUTION rather than LAUNCH.
type Margins struct {
	EarlySeconds float64
	LateSeconds  float64
}

// Sanitize returns a copy of p that satisfies cycle > 0, 0 < green ≤ cycle,
// yellow ≥ 0 and green+yellow ≤ cycle.
func (p Params) Sanitize() Params {
	if !(p.CycleSeconds > 0) || math.IsInf(p.CycleSeconds, 0) {
		p.CycleSeconds = FallbackCycleSeconds
	}
	if !(p.GreenSeconds > 0) || math.IsInf(p.GreenSeconds, 0) {
		p.GreenSeconds = FallbackGreenSeconds
	}
	if p.GreenSeconds > p.CycleSeconds {
		p.GreenSeconds = p.CycleSeconds
	}
	if !(p.YellowSeconds > 0) || math.IsInf(p.YellowSeconds, 0) {
		p.YellowSeconds = 0
	}
	if p.GreenSeconds+p.YellowSeconds > p.CycleSeconds {
		p.YellowSeconds = p.CycleSeconds - p.GreenSeconds
	}
	return p
}

// Position returns the cycle phase at instant t in [0, CycleSeconds).
// Instants before the anchor map to phase 0. p must already be sanitized.
func (p Params) Position(t time.Time) float64 {
	return p.phaseAfter(t.Sub(p.SyncTimestamp).Seconds())
}

// phaseAfter maps seconds since the anchor to the cycle phase.
func (p Params) phaseAfter(elapsed float64) float64 {
	if elapsed < 0 {
		elapsed = 0
	}
	pos := math.Mod(elapsed, p.CycleSeconds)
	if pos < 0 {
		pos += p.CycleSeconds
	}
	return pos
}

// LightState is the colour shown by the signal.
type LightState int

const (
	Green LightState = iota
	Yellow
	Red
)

func (s LightState) String() string {
	switch s {
	case Green:
		return "GREEN"
	case Yellow:
		return "YELLOW"
	default:
		return "RED"
	}
}

// MarshalText encodes the state by name for JSON responses.
func (s LightState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *LightState) UnmarshalText(b []byte) error {
	for _, c := range []LightState{Green, Yellow, Red} {
		if string(b) == c.String() {
			*s = c
			return nil
		}
	}
	return fmt.Errorf("unknown light state %q", b)
}

// stateAt partitions the cycle: [0,green) GREEN, [green,green+yellow)
// YELLOW, the remainder RED.
func (p Params) stateAt(pos float64) LightState {
	switch {
	case pos < p.GreenSeconds:
		return Green
	case pos < p.GreenSeconds+p.YellowSeconds:
		return Yellow
	default:
		return Red
	}
}

// Light returns the colour the signal is showing at now.
func Light(p Params, now time.Time) LightState {
	p = p.Sanitize()
	return p.stateAt(p.Position(now))
}

// Decision is the travel recommendation.
type Decision int

const (
	Hold Decision = iota
	Caution
	Launch
)

func (d Decision) String() string {
	switch d {
	case Launch:
		return "LAUNCH"
	case Caution:
		return "CAUTION"
	default:
		return "HOLD"
	}
}

// MarshalText encodes the decision by name for JSON responses.
func (d Decision) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func (d *Decision) UnmarshalText(b []byte) error {
	for _, c := range []Decision{Hold, Caution, Launch} {
		if string(b) == c.String() {
			*d = c
			return nil
		}
	}
	return fmt.Errorf("unknown decision %q", b)
}

// Result is one evaluation of the decision engine.
type Result struct {
	Decision Decision `json:"decision"`
	// TimeUntilGreen is the seconds from now until the next green onset.
	// While green it counts to the following cycle's onset.
	TimeUntilGreen float64 `json:"time_until_green"`
	// ArrivalPhase is the cycle phase at the moment of arrival.
	ArrivalPhase float64 `json:"arrival_phase"`
}

// CountdownWarning reports whether the next green is at most threshold
// seconds away.
func (r Result) CountdownWarning(threshold float64) bool {
	return r.TimeUntilGreen <= threshold
}

// Decide classifies an arrival descentSeconds after now. Arrivals inside
// [early, green−late] of the green window are LAUNCH, other green arrivals
// CAUTION, and yellow or red arrivals HOLD. TimeUntilGreen is anchored at
// now, not at the arrival.
func Decide(descentSeconds float64, p Params, m Margins, now time.Time) Result {
	p = p.Sanitize()
	if math.IsNaN(descentSeconds) || math.IsInf(descentSeconds, 0) {
		descentSeconds = 0
	}

	// Kept in float seconds: a time.Duration overflows for huge descents.
	arrivalPhase := p.phaseAfter(now.Sub(p.SyncTimestamp).Seconds() + descentSeconds)

	decision := Hold
	if arrivalPhase < p.GreenSeconds {
		if arrivalPhase >= m.EarlySeconds && arrivalPhase <= p.GreenSeconds-m.LateSeconds {
			decision = Launch
		} else {
			decision = Caution
		}
	}

	return Result{
		Decision:       decision,
		TimeUntilGreen: p.CycleSeconds - p.Position(now),
		ArrivalPhase:   arrivalPhase,
	}
}
