package capture

import (
	"fmt"
	"strings"
)

// WebcamOptions selects the camera and the analysis resolution.
type WebcamOptions struct {
	// Device is a device index ("0"), a device path or a stream URL.
	Device string
	Width  int
	Height int
}

func (o WebcamOptions) withDefaults() WebcamOptions {
	if o.Device == "" {
		o.Device = "0"
	}
	if o.Width <= 0 {
		o.Width = 320
	}
	if o.Height <= 0 {
		o.Height = 240
	}
	return o
}

func classifyOpenError(device string, err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "permission") || strings.Contains(msg, "not authorized"):
		return fmt.Errorf("open %q: %w: %v", device, ErrPermissionDenied, err)
	case strings.Contains(msg, "no such") || strings.Contains(msg, "not found"):
		return fmt.Errorf("open %q: %w: %v", device, ErrDeviceNotFound, err)
	default:
		return fmt.Errorf("open %q: %w", device, err)
	}
}
