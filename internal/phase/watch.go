package phase

import (
	"context"
	"time"

	"github.com/banshee-data/greenwave/internal/timeutil"
)

// Inputs is the immutable snapshot one evaluation reads.
type Inputs struct {
	DescentSeconds float64
	Params         Params
	Margins        Margins
}

// Evaluation is a single tick of the live display.
type Evaluation struct {
	At     time.Time  `json:"at"`
	Light  LightState `json:"light"`
	Result Result     `json:"result"`
}

// Evaluate computes the light state and decision for in at now.
func Evaluate(in Inputs, now time.Time) Evaluation {
	return Evaluation{
		At:     now,
		Light:  Light(in.Params, now),
		Result: Decide(in.DescentSeconds, in.Params, in.Margins, now),
	}
}

// Watch evaluates immediately and then on every tick of clock until ctx is
// cancelled. load is called once per tick so settings changes are picked up
// without locking; emit receives each fresh Evaluation. Watch returns
// ctx.Err().
func Watch(ctx context.Context, clock timeutil.Clock, every time.Duration, load func() Inputs, emit func(Evaluation)) error {
	ticker := clock.NewTicker(every)
	defer ticker.Stop()

	emit(Evaluate(load(), clock.Now()))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C():
			emit(Evaluate(load(), clock.Now()))
		}
	}
}
