//go:build gocv
// +build gocv

package capture

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

// stuckReader blocks every Read until release is closed.
type stuckReader struct {
	release chan struct{}
	entered chan struct{}

	mu     sync.Mutex
	closed int
}

func (r *stuckReader) Read(*gocv.Mat) bool {
	r.entered <- struct{}{}
	<-r.release
	return false
}

func (r *stuckReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed++
	return nil
}

func (r *stuckReader) closes() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

func TestWebcam_StopDuringBlockedRead(t *testing.T) {
	r := &stuckReader{release: make(chan struct{}), entered: make(chan struct{}, 1)}
	w := NewWebcam(WebcamOptions{})
	w.mu.Lock()
	w.attach(r)
	w.mu.Unlock()

	errc := make(chan error, 1)
	go func() {
		_, err := w.Frame(context.Background())
		errc <- err
	}()
	select {
	case <-r.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("frame did not reach the device read")
	}

	_, err := w.Frame(context.Background())
	assert.ErrorIs(t, err, errFrameInProgress)

	stopped := make(chan error, 1)
	go func() { stopped <- w.Stop() }()
	select {
	case err := <-stopped:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Stop waited on a blocked read")
	}
	assert.Zero(t, r.closes(), "device is still in use by the read")

	close(r.release)
	select {
	case err := <-errc:
		assert.ErrorIs(t, err, ErrNotStarted)
	case <-time.After(2 * time.Second):
		t.Fatal("frame did not return after the read")
	}
	assert.Equal(t, 1, r.closes())
	assert.NoError(t, w.Stop())
	assert.Equal(t, 1, r.closes())
}
