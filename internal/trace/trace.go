// Package trace records the green-percentage signal seen during a
// calibration session and renders it for debugging: an interactive
// go-echarts page for the HTTP API and a gonum/plot PNG for the CLI.
package trace

import (
	"strconv"
	"sync"
	"time"

	"github.com/banshee-data/greenwave/internal/calibration"
)

// DefaultCapacity keeps about ten minutes of samples at 30 fps.
const DefaultCapacity = 18000

// Sample is one scored frame.
type Sample struct {
	At           time.Time `json:"at"`
	GreenPercent float64   `json:"green_percent"`
}

// Recorder is a bounded buffer of samples and onsets. It implements
// calibration.Observer and is safe for concurrent use.
type Recorder struct {
	mu        sync.Mutex
	threshold float64
	buf       []Sample
	head      int
	full      bool
	onsets    []calibration.OnsetRecord
}

// NewRecorder keeps at most capacity samples, dropping the oldest.
// threshold is drawn as a reference line.
func NewRecorder(capacity int, threshold float64) *Recorder {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Recorder{threshold: threshold, buf: make([]Sample, 0, capacity)}
}

func (r *Recorder) ObserveSample(at time.Time, pct float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := Sample{At: at, GreenPercent: pct}
	if !r.full {
		r.buf = append(r.buf, s)
		if len(r.buf) == cap(r.buf) {
			r.full = true
		}
		return
	}
	r.buf[r.head] = s
	r.head = (r.head + 1) % len(r.buf)
}

func (r *Recorder) ObserveOnset(rec calibration.OnsetRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onsets = append(r.onsets, rec)
}

// Samples returns the retained samples, oldest first.
func (r *Recorder) Samples() []Sample {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Sample, 0, len(r.buf))
	out = append(out, r.buf[r.head:]...)
	out = append(out, r.buf[:r.head]...)
	return out
}

// Onsets returns every onset observed since the last Reset.
func (r *Recorder) Onsets() []calibration.OnsetRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]calibration.OnsetRecord(nil), r.onsets...)
}

// Threshold returns the reference line level.
func (r *Recorder) Threshold() float64 { return r.threshold }

// Reset discards everything recorded.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf = r.buf[:0]
	r.head = 0
	r.full = false
	r.onsets = nil
}

// series is the recording in plot coordinates: seconds since the first
// sample against green percentage.
type series struct {
	xs, ys     []float64
	onsetXs    []float64
	onsetLabel []string
	start      time.Time
}

func (r *Recorder) series() series {
	samples := r.Samples()
	onsets := r.Onsets()

	var s series
	if len(samples) == 0 {
		return s
	}
	s.start = samples[0].At
	s.xs = make([]float64, len(samples))
	s.ys = make([]float64, len(samples))
	for i, smp := range samples {
		s.xs[i] = smp.At.Sub(s.start).Seconds()
		s.ys[i] = smp.GreenPercent
	}
	for _, o := range onsets {
		if o.Timestamp.Before(s.start) {
			continue
		}
		s.onsetXs = append(s.onsetXs, o.Timestamp.Sub(s.start).Seconds())
		s.onsetLabel = append(s.onsetLabel, onsetLabel(o))
	}
	return s
}

func onsetLabel(o calibration.OnsetRecord) string {
	label := "onset " + strconv.Itoa(o.Sequence)
	if o.GreenMeasured {
		label += " (green " + o.GreenPhase.Round(100*time.Millisecond).String() + ")"
	}
	return label
}
