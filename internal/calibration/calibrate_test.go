package calibration

import (
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func onsetsAt(secs ...float64) []OnsetRecord {
	out := make([]OnsetRecord, len(secs))
	for i, s := range secs {
		out[i] = OnsetRecord{Timestamp: sec(s), Sequence: i + 1}
	}
	return out
}

func TestCalibrate_EvenCycle(t *testing.T) {
	t.Parallel()
	got, err := Calibrate(onsetsAt(0, 90, 180), 35)
	require.NoError(t, err)

	want := Result{
		SyncTimestamp:        sec(180),
		MeasuredCycleSeconds: 90,
		MeasuredGreenSeconds: 35,
		QualityScore:         100,
		GreenMeasured:        false,
		DeviationSeconds:     0,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Calibrate() mismatch (-want +got):\n%s", diff)
	}
}

func TestCalibrate_MeasuredGreen(t *testing.T) {
	t.Parallel()
	onsets := onsetsAt(0, 92, 181)
	onsets[0].GreenPhase, onsets[0].GreenMeasured = 35*time.Second, true
	onsets[1].GreenPhase, onsets[1].GreenMeasured = 33*time.Second, true
	// The third onset's phase is never measured because the session ends.

	got, err := Calibrate(onsets, 35)
	require.NoError(t, err)

	assert.Equal(t, 91.0, got.MeasuredCycleSeconds, "(92+89)/2 = 90.5 rounds up")
	assert.Equal(t, 34.0, got.MeasuredGreenSeconds)
	assert.True(t, got.GreenMeasured)
	assert.InDelta(t, 3, got.DeviationSeconds, 1e-9)
	assert.Equal(t, QualityLow, got.QualityScore)
	assert.Equal(t, sec(181), got.SyncTimestamp)
}

func TestCalibrate_GreenRounding(t *testing.T) {
	t.Parallel()
	onsets := onsetsAt(0, 60, 120)
	onsets[1].GreenPhase, onsets[1].GreenMeasured = 24400*time.Millisecond, true

	got, err := Calibrate(onsets, 35)
	require.NoError(t, err)
	assert.Equal(t, 24.0, got.MeasuredGreenSeconds)
}

func TestCalibrate_Quality(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		onsets []OnsetRecord
		want   int
	}{
		{"identical intervals", onsetsAt(0, 60, 120), QualityHigh},
		{"half second apart", onsetsAt(0, 60, 120.5), QualityHigh},
		{"one second apart", onsetsAt(0, 60, 121), QualityMedium},
		{"just under three", onsetsAt(0, 60, 122.9), QualityMedium},
		{"three seconds apart", onsetsAt(0, 60, 123), QualityLow},
		{"wildly uneven", onsetsAt(0, 45, 145), QualityLow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := Calibrate(tt.onsets, 35)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.QualityScore)
		})
	}
}

func TestCalibrate_IsIdempotent(t *testing.T) {
	t.Parallel()
	onsets := onsetsAt(0, 61.237, 122.901)
	onsets[0].GreenPhase, onsets[0].GreenMeasured = 27123*time.Millisecond, true

	first, err := Calibrate(onsets, 35)
	require.NoError(t, err)
	second, err := Calibrate(onsets, 35)
	require.NoError(t, err)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("second call differs (-first +second):\n%s", diff)
	}
	assert.Equal(t, math.Float64bits(first.MeasuredCycleSeconds), math.Float64bits(second.MeasuredCycleSeconds))
	assert.Equal(t, math.Float64bits(first.DeviationSeconds), math.Float64bits(second.DeviationSeconds))
	assert.True(t, first.SyncTimestamp.Equal(second.SyncTimestamp))
}

func TestCalibrate_Errors(t *testing.T) {
	t.Parallel()

	_, err := Calibrate(onsetsAt(0, 90), 35)
	assert.Error(t, err)

	_, err = Calibrate(onsetsAt(0, 90, 90), 35)
	assert.Error(t, err)

	_, err = Calibrate(onsetsAt(90, 0, 180), 35)
	assert.Error(t, err)

	_, err = Calibrate(onsetsAt(0, 0.2, 0.4), 35)
	assert.Error(t, err, "cycle rounding to zero is rejected")
}
