// Package feedback tells the rider that the camera saw a green onset: a log
// line, and a buzz from a handlebar vibration motor driven over a serial
// link. Every sink is best-effort; callers log errors and carry on.
package feedback

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/banshee-data/greenwave/internal/monitoring"
)

// Sink receives onset notifications.
type Sink interface {
	Flash() error
	Vibrate(pattern []time.Duration) error
}

// LogSink writes notifications to the monitoring logger.
type LogSink struct{}

func (LogSink) Flash() error {
	monitoring.Logf("feedback: flash")
	return nil
}

func (LogSink) Vibrate(pattern []time.Duration) error {
	monitoring.Logf("feedback: vibrate %s", encodePattern(pattern))
	return nil
}

// Multi fans notifications out to every sink and joins their errors.
type Multi []Sink

func (m Multi) Flash() error {
	var errs []error
	for _, s := range m {
		if err := s.Flash(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Vibrate(pattern []time.Duration) error {
	var errs []error
	for _, s := range m {
		if err := s.Vibrate(pattern); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// PortOpener opens a serial port. It matches serial.Open so tests can
// substitute an in-memory port.
type PortOpener func(path string, mode *serial.Mode) (io.WriteCloser, error)

// OpenSerial opens a real port with go.bug.st/serial.
func OpenSerial(path string, mode *serial.Mode) (io.WriteCloser, error) {
	return serial.Open(path, mode)
}

// SerialSink drives a vibration controller that accepts one ASCII command
// per line:
//
//	FLASH
//	VIBRATE 50,50,50
//
// Vibrate durations are milliseconds, alternating on and off.
type SerialSink struct {
	path string

	mu   sync.Mutex
	port io.WriteCloser
}

// NewSerialSink opens path with opts through open (OpenSerial if nil).
func NewSerialSink(path string, opts PortOptions, open PortOpener) (*SerialSink, error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}
	if open == nil {
		open = OpenSerial
	}
	port, err := open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("open haptic port %s: %w", path, err)
	}
	monitoring.Logf("feedback: haptic controller on %s at %d baud", path, mode.BaudRate)
	return &SerialSink{path: path, port: port}, nil
}

func (s *SerialSink) Flash() error {
	return s.send("FLASH")
}

func (s *SerialSink) Vibrate(pattern []time.Duration) error {
	if len(pattern) == 0 {
		return nil
	}
	return s.send("VIBRATE " + encodePattern(pattern))
}

func (s *SerialSink) send(cmd string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.port == nil {
		return fmt.Errorf("haptic port %s closed", s.path)
	}
	if _, err := io.WriteString(s.port, cmd+"\n"); err != nil {
		return fmt.Errorf("write %q to %s: %w", cmd, s.path, err)
	}
	return nil
}

// Close releases the port. Further notifications return an error.
func (s *SerialSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.port == nil {
		return nil
	}
	err := s.port.Close()
	s.port = nil
	return err
}

func encodePattern(pattern []time.Duration) string {
	parts := make([]string, len(pattern))
	for i, d := range pattern {
		parts[i] = strconv.FormatInt(d.Milliseconds(), 10)
	}
	return strings.Join(parts, ",")
}
