package calibration

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

// Quality scores by interval agreement.
const (
	QualityHigh   = 100
	QualityMedium = 70
	QualityLow    = 40
)

// Calibrate reduces three onsets to a cycle length, green duration and
// quality score. fallbackGreenSeconds is used, and GreenMeasured left false,
// when none of the onsets carries a measured green phase. The result depends
// only on its arguments.
func Calibrate(onsets []OnsetRecord, fallbackGreenSeconds float64) (Result, error) {
	if len(onsets) != OnsetsRequired {
		return Result{}, fmt.Errorf("calibrate: need %d onsets, got %d", OnsetsRequired, len(onsets))
	}

	i1 := onsets[1].Timestamp.Sub(onsets[0].Timestamp).Seconds()
	i2 := onsets[2].Timestamp.Sub(onsets[1].Timestamp).Seconds()
	if i1 <= 0 || i2 <= 0 {
		return Result{}, errors.New("calibrate: onsets are not strictly increasing")
	}

	cycle := math.Round(stat.Mean([]float64{i1, i2}, nil))
	if cycle <= 0 {
		return Result{}, fmt.Errorf("calibrate: measured cycle %.3fs rounds to zero", (i1+i2)/2)
	}
	deviation := math.Abs(i1 - i2)

	res := Result{
		SyncTimestamp:        onsets[2].Timestamp,
		MeasuredCycleSeconds: cycle,
		MeasuredGreenSeconds: fallbackGreenSeconds,
		QualityScore:         qualityFor(deviation),
		DeviationSeconds:     deviation,
	}

	var greens []float64
	for _, o := range onsets {
		if o.GreenMeasured {
			greens = append(greens, o.GreenPhase.Seconds())
		}
	}
	if len(greens) > 0 {
		res.MeasuredGreenSeconds = math.Round(stat.Mean(greens, nil))
		res.GreenMeasured = true
	}
	return res, nil
}

func qualityFor(deviation float64) int {
	switch {
	case deviation < 1:
		return QualityHigh
	case deviation < 3:
		return QualityMedium
	default:
		return QualityLow
	}
}
