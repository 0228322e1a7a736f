package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/banshee-data/greenwave/internal/db"
	"github.com/banshee-data/greenwave/internal/httputil"
)

// Client talks to a running greenwave server.
type Client struct {
	BaseURL string
	HTTP    httputil.HTTPClient
}

// NewClient returns a client for baseURL using hc, or the default HTTP
// client if hc is nil.
func NewClient(baseURL string, hc httputil.HTTPClient) *Client {
	if hc == nil {
		hc = httputil.NewStandardClient(nil)
	}
	return &Client{BaseURL: strings.TrimRight(baseURL, "/"), HTTP: hc}
}

// StatusError is a non-2xx reply.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Error string `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&e); err != nil || e.Error == "" {
			e.Error = http.StatusText(resp.StatusCode)
		}
		return &StatusError{StatusCode: resp.StatusCode, Message: e.Error}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func (c *Client) Decision(ctx context.Context) (DecisionResponse, error) {
	var out DecisionResponse
	err := c.do(ctx, http.MethodGet, "/api/decision", nil, &out)
	return out, err
}

func (c *Client) Settings(ctx context.Context) (SettingsResponse, error) {
	var out SettingsResponse
	err := c.do(ctx, http.MethodGet, "/api/settings", nil, &out)
	return out, err
}

func (c *Client) UpdateSettings(ctx context.Context, u db.SettingsUpdate) (SettingsResponse, error) {
	var out SettingsResponse
	err := c.do(ctx, http.MethodPut, "/api/settings", u, &out)
	return out, err
}

func (c *Client) SyncNow(ctx context.Context) (SettingsResponse, error) {
	var out SettingsResponse
	err := c.do(ctx, http.MethodPost, "/api/sync", nil, &out)
	return out, err
}

func (c *Client) ResetToDefaults(ctx context.Context) (SettingsResponse, error) {
	var out SettingsResponse
	err := c.do(ctx, http.MethodPost, "/api/reset", nil, &out)
	return out, err
}

func (c *Client) StartCalibration(ctx context.Context) (CalibrationStatus, error) {
	var out CalibrationStatus
	err := c.do(ctx, http.MethodPost, "/api/calibration/start", nil, &out)
	return out, err
}

func (c *Client) CalibrationStatus(ctx context.Context) (CalibrationStatus, error) {
	var out CalibrationStatus
	err := c.do(ctx, http.MethodGet, "/api/calibration/status", nil, &out)
	return out, err
}

func (c *Client) CancelCalibration(ctx context.Context) (CalibrationStatus, error) {
	var out CalibrationStatus
	err := c.do(ctx, http.MethodPost, "/api/calibration/cancel", nil, &out)
	return out, err
}
