package httputil

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStandardClient(t *testing.T) {
	assert.Same(t, http.DefaultClient, NewStandardClient(nil))
	c := &http.Client{}
	assert.Same(t, c, NewStandardClient(c))
}

func TestMockHTTPClient(t *testing.T) {
	m := NewMockHTTPClient().
		AddResponse(http.StatusAccepted, `{"ok":true}`).
		AddErrorResponse(errors.New("connection refused"))

	req, err := http.NewRequest(http.MethodPost, "http://device/api/sync", strings.NewReader(`{"x":1}`))
	require.NoError(t, err)
	resp, err := m.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, `{"ok":true}`, string(body))

	req2, _ := http.NewRequest(http.MethodGet, "http://device/api/light", nil)
	_, err = m.Do(req2)
	assert.EqualError(t, err, "connection refused")

	resp, err = m.Do(req2)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode, "empty queue answers 200")

	assert.Equal(t, 3, m.RequestCount())
	got, gotBody := m.Request(0)
	assert.Equal(t, "/api/sync", got.URL.Path)
	assert.Equal(t, `{"x":1}`, gotBody)
	got, _ = m.Request(5)
	assert.Nil(t, got)
}
