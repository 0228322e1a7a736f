package trace

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/greenwave/internal/calibration"
)

var t0 = time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC)

func TestRecorder_RingBuffer(t *testing.T) {
	t.Parallel()
	r := NewRecorder(4, 15)
	for i := 0; i < 6; i++ {
		r.ObserveSample(t0.Add(time.Duration(i)*time.Second), float64(i))
	}

	got := r.Samples()
	require.Len(t, got, 4)
	for i, s := range got {
		assert.Equal(t, float64(i+2), s.GreenPercent, "oldest samples are dropped first")
		assert.Equal(t, t0.Add(time.Duration(i+2)*time.Second), s.At)
	}

	r.Reset()
	assert.Empty(t, r.Samples())
	assert.Empty(t, r.Onsets())
}

func TestRecorder_PartialBuffer(t *testing.T) {
	t.Parallel()
	r := NewRecorder(0, 15)
	r.ObserveSample(t0, 1)
	r.ObserveSample(t0.Add(time.Second), 2)
	assert.Equal(t, []Sample{{At: t0, GreenPercent: 1}, {At: t0.Add(time.Second), GreenPercent: 2}}, r.Samples())
	assert.Equal(t, 15.0, r.Threshold())
}

func recorded() *Recorder {
	r := NewRecorder(100, 15)
	for i := 0; i < 50; i++ {
		pct := 0.0
		if i%20 < 8 {
			pct = 60
		}
		r.ObserveSample(t0.Add(time.Duration(i)*time.Second), pct)
	}
	r.ObserveOnset(calibration.OnsetRecord{Timestamp: t0, Sequence: 1})
	r.ObserveOnset(calibration.OnsetRecord{Timestamp: t0.Add(20 * time.Second), Sequence: 2, GreenPhase: 8 * time.Second, GreenMeasured: true})
	// Onsets older than the retained samples are not plotted.
	r.ObserveOnset(calibration.OnsetRecord{Timestamp: t0.Add(-time.Minute), Sequence: 3})
	return r
}

func TestRecorder_Series(t *testing.T) {
	t.Parallel()
	s := recorded().series()
	assert.Len(t, s.xs, 50)
	assert.Equal(t, 49.0, s.xs[49])
	assert.Equal(t, []float64{0, 20}, s.onsetXs)
	assert.Equal(t, []string{"onset 1", "onset 2 (green 8s)"}, s.onsetLabel)
}

func TestRenderHTML(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	require.NoError(t, recorded().RenderHTML(&buf, "session abc"))

	html := buf.String()
	assert.Contains(t, html, "Calibration trace")
	assert.Contains(t, html, "session abc")
	assert.Contains(t, html, "onset 2")
}

func TestRenderHTML_Empty(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	require.NoError(t, NewRecorder(10, 15).RenderHTML(&buf, ""))
	assert.NotZero(t, buf.Len())
}

func TestSavePNG(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "trace.png")

	require.NoError(t, recorded().SavePNG(path, dir))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

func TestSavePNG_Rejects(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	r := recorded()

	assert.Error(t, r.SavePNG(filepath.Join(dir, "trace.svg"), dir), "wrong extension")
	assert.Error(t, r.SavePNG(filepath.Join(dir, "..", "escape.png"), dir), "outside safe dir")
	assert.Error(t, NewRecorder(10, 15).SavePNG(filepath.Join(dir, "empty.png"), dir), "nothing recorded")
}
