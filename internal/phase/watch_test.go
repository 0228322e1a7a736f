package phase

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/greenwave/internal/timeutil"
)

func TestEvaluate(t *testing.T) {
	in := Inputs{DescentSeconds: 10, Params: scenarioParams(), Margins: scenarioMargins}
	ev := Evaluate(in, at(60))

	assert.Equal(t, at(60), ev.At)
	assert.Equal(t, Red, ev.Light)
	assert.Equal(t, Hold, ev.Result.Decision)
	assert.InDelta(t, 30, ev.Result.TimeUntilGreen, 1e-9)
}

func TestWatch_EmitsOnEveryTickAndReloadsInputs(t *testing.T) {
	clock := timeutil.NewMockClock(anchor)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var descent atomic.Int64
	descent.Store(10)
	load := func() Inputs {
		return Inputs{DescentSeconds: float64(descent.Load()), Params: scenarioParams(), Margins: scenarioMargins}
	}

	evals := make(chan Evaluation, 1)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, clock, 100*time.Millisecond, load, func(ev Evaluation) { evals <- ev })
	}()

	recv := func() Evaluation {
		t.Helper()
		select {
		case ev := <-evals:
			return ev
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for evaluation")
			return Evaluation{}
		}
	}

	first := recv()
	assert.Equal(t, anchor, first.At)
	assert.Equal(t, Launch, first.Result.Decision)

	descent.Store(50)
	clock.Advance(100 * time.Millisecond)
	second := recv()
	assert.Equal(t, anchor.Add(100*time.Millisecond), second.At)
	assert.Equal(t, Hold, second.Result.Decision, "changed inputs apply on the next tick")

	clock.Advance(100 * time.Millisecond)
	third := recv()
	assert.Equal(t, anchor.Add(200*time.Millisecond), third.At)

	cancel()
	select {
	case err := <-done:
		require.True(t, errors.Is(err, context.Canceled))
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}

func TestWatch_ReturnsImmediatelyOnCancelledContext(t *testing.T) {
	clock := timeutil.NewMockClock(anchor)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var emitted int
	err := Watch(ctx, clock, time.Second, func() Inputs { return Inputs{Params: scenarioParams()} }, func(Evaluation) { emitted++ })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, emitted)
}
