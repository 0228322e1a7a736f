package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/greenwave/internal/db"
	"github.com/banshee-data/greenwave/internal/httputil"
	"github.com/banshee-data/greenwave/internal/phase"
)

func TestClient_AgainstServer(t *testing.T) {
	f := newFixture(t, nil)
	ts := httptest.NewServer(f.mux)
	defer ts.Close()

	ctx := context.Background()
	c := NewClient(ts.URL+"/", nil)

	st, err := c.SyncNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, "BASIC SYNC", st.Status)

	dec, err := c.Decision(ctx)
	require.NoError(t, err)
	assert.Equal(t, phase.Launch, dec.Result.Decision)
	assert.Equal(t, phase.Green, dec.Light)

	st, err = c.UpdateSettings(ctx, db.SettingsUpdate{DescentSeconds: ptr(30.0)})
	require.NoError(t, err)
	assert.Equal(t, 30.0, st.DescentSeconds)

	_, err = c.UpdateSettings(ctx, db.SettingsUpdate{GreenSeconds: ptr(90.0)})
	var serr *StatusError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, http.StatusBadRequest, serr.StatusCode)
	assert.Contains(t, serr.Message, "green")

	_, err = c.CalibrationStatus(ctx)
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, http.StatusNotFound, serr.StatusCode)

	st, err = c.ResetToDefaults(ctx)
	require.NoError(t, err)
	assert.Equal(t, "NO SYNC", st.Status)

	got, err := c.Settings(ctx)
	require.NoError(t, err)
	assert.Equal(t, 12.0, got.DescentSeconds)
}

func TestClient_MockTransport(t *testing.T) {
	mock := httputil.NewMockHTTPClient().
		AddResponse(http.StatusConflict, `{"error":"a calibration session is already running"}`).
		AddResponse(http.StatusBadGateway, `<html>`).
		AddErrorResponse(errors.New("connection refused")).
		AddResponse(http.StatusAccepted, `{"active":true,"progress":{"id":"abc","state":"TARGETING","required":3,"visible":true}}`).
		AddResponse(http.StatusOK, `not json`)
	c := NewClient("http://bike.local:8080", mock)
	ctx := context.Background()

	_, err := c.StartCalibration(ctx)
	assert.EqualError(t, err, "server returned 409: a calibration session is already running")

	_, err = c.CancelCalibration(ctx)
	assert.EqualError(t, err, "server returned 502: Bad Gateway")

	_, err = c.Decision(ctx)
	assert.ErrorContains(t, err, "connection refused")

	st, err := c.StartCalibration(ctx)
	require.NoError(t, err)
	assert.True(t, st.Active)
	assert.Equal(t, "abc", st.Progress.ID)
	assert.Equal(t, "TARGETING", st.Progress.State.String())

	_, err = c.Settings(ctx)
	assert.ErrorContains(t, err, "decode /api/settings response")

	req, body := mock.Request(0)
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "http://bike.local:8080/api/calibration/start", req.URL.String())
	assert.Empty(t, body)
	assert.Equal(t, 5, mock.RequestCount())
}

func TestClient_ContextCancelled(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := NewClient(ts.URL, nil).Decision(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
