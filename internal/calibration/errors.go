package calibration

import (
	"errors"
	"fmt"

	"github.com/banshee-data/greenwave/internal/capture"
)

// ErrCancelled is returned by Session.Wait after an explicit cancel or
// teardown of the session's context.
var ErrCancelled = errors.New("calibration cancelled")

// CaptureReason classifies why the camera could not be used.
type CaptureReason string

const (
	ReasonPermissionDenied CaptureReason = "permission-denied"
	ReasonDeviceNotFound   CaptureReason = "device-not-found"
	ReasonOther            CaptureReason = "other"
)

// CaptureUnavailableError reports that the frame source could not be
// started, or was lost mid-session.
type CaptureUnavailableError struct {
	Reason CaptureReason
	Err    error
}

func (e *CaptureUnavailableError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("capture unavailable: %s", e.Reason)
	}
	return fmt.Sprintf("capture unavailable (%s): %v", e.Reason, e.Err)
}

func (e *CaptureUnavailableError) Unwrap() error { return e.Err }

func captureUnavailable(err error) *CaptureUnavailableError {
	reason := ReasonOther
	switch {
	case errors.Is(err, capture.ErrPermissionDenied):
		reason = ReasonPermissionDenied
	case errors.Is(err, capture.ErrDeviceNotFound):
		reason = ReasonDeviceNotFound
	}
	return &CaptureUnavailableError{Reason: reason, Err: err}
}

// IntervalClass says which side of the accepted range an interval fell on.
type IntervalClass string

const (
	TooFast IntervalClass = "too-fast"
	TooSlow IntervalClass = "too-slow"
)

// IntervalOutOfRangeError reports an onset-to-onset interval outside the
// configured bounds. The session's onsets have been discarded.
type IntervalOutOfRangeError struct {
	MeasuredSeconds float64
	Classification  IntervalClass
	Min, Max        float64
}

func (e *IntervalOutOfRangeError) Error() string {
	return fmt.Sprintf("onset interval %.1fs out of range [%.0fs, %.0fs]: %s",
		e.MeasuredSeconds, e.Min, e.Max, e.Classification)
}
