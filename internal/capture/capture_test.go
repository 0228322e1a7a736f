package capture

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/greenwave/internal/detect"
	"github.com/banshee-data/greenwave/internal/phase"
	"github.com/banshee-data/greenwave/internal/timeutil"
)

var t0 = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

func newSim(opts SimulatorOptions) (*Simulator, *timeutil.MockClock) {
	clock := timeutil.NewMockClock(t0)
	if opts.Signal.CycleSeconds == 0 {
		opts.Signal = phase.Params{SyncTimestamp: t0, CycleSeconds: 60, GreenSeconds: 25, YellowSeconds: 3}
	}
	return NewSimulator(clock, opts), clock
}

func TestSimulator_FollowsSignal(t *testing.T) {
	t.Parallel()
	sim, clock := newSim(SimulatorOptions{FrameInterval: time.Second})
	ctx := context.Background()
	require.NoError(t, sim.Start(ctx))
	defer sim.Stop()

	classifier := detect.DefaultClassifier()
	for i := 0; i < 120; i++ {
		frame, err := sim.Frame(ctx)
		require.NoError(t, err)
		require.True(t, frame.Valid())

		pos := float64(i % 60)
		pct := classifier.Classify(frame)
		if pos < 25 {
			assert.Greaterf(t, pct, 50.0, "second %d should be green", i)
		} else {
			assert.Zerof(t, pct, "second %d should not be green", i)
		}
		assert.Equal(t, t0.Add(time.Duration(i)*time.Second), clock.Now())
	}
	assert.Equal(t, 120, sim.Frames())
}

func TestSimulator_Flicker(t *testing.T) {
	t.Parallel()
	sim, _ := newSim(SimulatorOptions{FrameInterval: 100 * time.Millisecond, FlickerEvery: 4})
	ctx := context.Background()
	require.NoError(t, sim.Start(ctx))

	classifier := detect.DefaultClassifier()
	var dark int
	for i := 1; i <= 20; i++ {
		frame, err := sim.Frame(ctx)
		require.NoError(t, err)
		if classifier.Classify(frame) == 0 {
			dark++
			assert.Zero(t, i%4, "frame %d flickered off-pattern", i)
		}
	}
	assert.Equal(t, 5, dark)
}

func TestSimulator_FailAfter(t *testing.T) {
	t.Parallel()
	sim, _ := newSim(SimulatorOptions{FailAfter: 3})
	ctx := context.Background()
	require.NoError(t, sim.Start(ctx))

	for i := 0; i < 3; i++ {
		_, err := sim.Frame(ctx)
		require.NoError(t, err)
	}
	_, err := sim.Frame(ctx)
	assert.ErrorIs(t, err, ErrDeviceLost)
}

func TestSimulator_Lifecycle(t *testing.T) {
	t.Parallel()
	sim, _ := newSim(SimulatorOptions{})
	ctx := context.Background()

	_, err := sim.Frame(ctx)
	assert.ErrorIs(t, err, ErrNotStarted)
	assert.False(t, sim.Released())

	require.NoError(t, sim.Start(ctx))
	require.NoError(t, sim.Stop())
	require.NoError(t, sim.Stop(), "Stop is idempotent")
	assert.True(t, sim.Released())

	_, err = sim.Frame(ctx)
	assert.ErrorIs(t, err, ErrNotStarted)
}

func TestSimulator_StartErr(t *testing.T) {
	t.Parallel()
	sim, _ := newSim(SimulatorOptions{StartErr: ErrPermissionDenied})
	err := sim.Start(context.Background())
	assert.ErrorIs(t, err, ErrPermissionDenied)
}

func TestSimulator_RealClockHonoursContext(t *testing.T) {
	t.Parallel()
	sim := NewSimulator(timeutil.RealClock{}, SimulatorOptions{FrameInterval: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, sim.Start(ctx))
	defer sim.Stop()

	_, err := sim.Frame(ctx)
	require.NoError(t, err, "first frame is immediate")

	cancel()
	_, err = sim.Frame(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClassifyOpenError(t *testing.T) {
	t.Parallel()
	tests := []struct {
		msg  string
		want error
	}{
		{"Permission denied", ErrPermissionDenied},
		{"camera access not authorized", ErrPermissionDenied},
		{"no such file or directory", ErrDeviceNotFound},
		{"device not found", ErrDeviceNotFound},
	}
	for _, tt := range tests {
		err := classifyOpenError("0", errors.New(tt.msg))
		assert.ErrorIsf(t, err, tt.want, "message %q", tt.msg)
	}

	other := classifyOpenError("0", errors.New("backend exploded"))
	assert.False(t, errors.Is(other, ErrPermissionDenied))
	assert.False(t, errors.Is(other, ErrDeviceNotFound))
}

func TestWebcam_Defaults(t *testing.T) {
	t.Parallel()
	w := NewWebcam(WebcamOptions{})
	assert.Equal(t, WebcamOptions{Device: "0", Width: 320, Height: 240}, w.opts)

	_, err := w.Frame(context.Background())
	assert.ErrorIs(t, err, ErrNotStarted)
	assert.NoError(t, w.Stop())
}
