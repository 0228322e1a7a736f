// Package testutil provides shared test utilities and fixtures.
//
// It holds the HTTP assertion helpers used by the API tests and synthetic
// camera frames for the calibration and capture tests.
package testutil

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/banshee-data/greenwave/internal/detect"
)

// Frame size used by the synthetic frame helpers.
const (
	FrameWidth  = 320
	FrameHeight = 240
)

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t *testing.T, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// NewTestRequest creates a test HTTP request with an optional body.
func NewTestRequest(method, path, body string) *http.Request {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}

// SolidFrame returns a frame filled with one colour.
func SolidFrame(r, g, b uint8) detect.FrameSample {
	f := detect.NewFrameSample(FrameWidth, FrameHeight)
	for i := 0; i < len(f.Pix); i += detect.BytesPerPixel {
		f.Pix[i], f.Pix[i+1], f.Pix[i+2] = r, g, b
	}
	return f
}

// GreenFrame is a frame whose ROI scores 100%.
func GreenFrame() detect.FrameSample { return SolidFrame(30, 200, 80) }

// DarkFrame is a frame whose ROI scores 0%.
func DarkFrame() detect.FrameSample { return SolidFrame(10, 12, 10) }

// AmberFrame is a bright non-green frame; it also scores 0%.
func AmberFrame() detect.FrameSample { return SolidFrame(240, 170, 20) }

// PartialGreenFrame returns a frame where the first rows of the default
// 40% ROI are green, so that Classify with the default classifier returns
// approximately percent.
func PartialGreenFrame(percent float64) detect.FrameSample {
	f := DarkFrame()
	roi := detect.CenterROI(FrameWidth, FrameHeight, detect.DefaultClassifier().ROIFraction)
	rows := int(float64(roi.Dy()) * percent / 100)
	roi.Max.Y = roi.Min.Y + rows
	f.Fill(roi, 30, 200, 80)
	return f
}
