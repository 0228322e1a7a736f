//go:build !gocv
// +build !gocv

package capture

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebcam_WithoutCameraSupport(t *testing.T) {
	t.Parallel()
	w := NewWebcam(WebcamOptions{Device: "/dev/video2"})

	err := w.Start(context.Background())
	require.ErrorIs(t, err, ErrDeviceNotFound)
	assert.Contains(t, err.Error(), "-tags=gocv")
	assert.Contains(t, err.Error(), `"/dev/video2"`)

	_, err = w.Frame(context.Background())
	assert.ErrorIs(t, err, ErrNotStarted)
	assert.NoError(t, w.Stop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, w.Start(ctx), context.Canceled)
}
