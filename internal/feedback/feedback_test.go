package feedback

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"

	"github.com/banshee-data/greenwave/internal/monitoring"
)

type memPort struct {
	mu       sync.Mutex
	buf      bytes.Buffer
	closed   bool
	writeErr error
}

func (p *memPort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.writeErr != nil {
		return 0, p.writeErr
	}
	return p.buf.Write(b)
}

func (p *memPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *memPort) lines() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return strings.Split(strings.TrimRight(p.buf.String(), "\n"), "\n")
}

func openerFor(port *memPort, gotMode **serial.Mode, gotPath *string) PortOpener {
	return func(path string, mode *serial.Mode) (io.WriteCloser, error) {
		*gotPath = path
		*gotMode = mode
		return port, nil
	}
}

var pattern = []time.Duration{50 * time.Millisecond, 50 * time.Millisecond, 50 * time.Millisecond}

func TestSerialSink_WritesCommands(t *testing.T) {
	port := &memPort{}
	var mode *serial.Mode
	var path string

	sink, err := NewSerialSink("/dev/ttyUSB1", PortOptions{BaudRate: 57600}, openerFor(port, &mode, &path))
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyUSB1", path)
	assert.Equal(t, &serial.Mode{BaudRate: 57600, DataBits: 8, StopBits: serial.OneStopBit, Parity: serial.NoParity}, mode)

	require.NoError(t, sink.Flash())
	require.NoError(t, sink.Vibrate(pattern))
	require.NoError(t, sink.Vibrate(nil), "empty pattern is a no-op")

	assert.Equal(t, []string{"FLASH", "VIBRATE 50,50,50"}, port.lines())

	require.NoError(t, sink.Close())
	assert.True(t, port.closed)
	assert.NoError(t, sink.Close())
	assert.Error(t, sink.Flash())
}

func TestSerialSink_WriteError(t *testing.T) {
	port := &memPort{writeErr: errors.New("cable unplugged")}
	var mode *serial.Mode
	var path string
	sink, err := NewSerialSink("/dev/ttyACM0", PortOptions{}, openerFor(port, &mode, &path))
	require.NoError(t, err)

	err = sink.Flash()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cable unplugged")
}

func TestNewSerialSink_Errors(t *testing.T) {
	_, err := NewSerialSink("/dev/null", PortOptions{Parity: "mark"}, nil)
	assert.Error(t, err)

	openErr := errors.New("no such device")
	_, err = NewSerialSink("/dev/ttyUSB9", PortOptions{}, func(string, *serial.Mode) (io.WriteCloser, error) {
		return nil, openErr
	})
	assert.ErrorIs(t, err, openErr)
}

func TestPortOptions_Normalise(t *testing.T) {
	tests := []struct {
		name    string
		in      PortOptions
		want    PortOptions
		wantErr bool
	}{
		{name: "defaults", in: PortOptions{}, want: PortOptions{BaudRate: 115200, DataBits: 8, StopBits: 1, Parity: "N"}},
		{name: "explicit", in: PortOptions{BaudRate: 9600, DataBits: 7, StopBits: 2, Parity: "even"}, want: PortOptions{BaudRate: 9600, DataBits: 7, StopBits: 2, Parity: "E"}},
		{name: "negative baud", in: PortOptions{BaudRate: -1}, want: PortOptions{BaudRate: 115200, DataBits: 8, StopBits: 1, Parity: "N"}},
		{name: "bad data bits", in: PortOptions{DataBits: 9}, wantErr: true},
		{name: "bad stop bits", in: PortOptions{StopBits: 3}, wantErr: true},
		{name: "bad parity", in: PortOptions{Parity: "space"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.in.Normalise()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPortOptions_SerialMode(t *testing.T) {
	mode, err := PortOptions{StopBits: 2, Parity: "O"}.SerialMode()
	require.NoError(t, err)
	assert.Equal(t, serial.TwoStopBits, mode.StopBits)
	assert.Equal(t, serial.OddParity, mode.Parity)

	_, err = PortOptions{DataBits: 4}.SerialMode()
	assert.Error(t, err)
}

type countingSink struct {
	flashes, vibrates int
	err               error
}

func (c *countingSink) Flash() error                    { c.flashes++; return c.err }
func (c *countingSink) Vibrate(_ []time.Duration) error { c.vibrates++; return c.err }

func TestMulti(t *testing.T) {
	ok := &countingSink{}
	bad := &countingSink{err: errors.New("motor stalled")}
	m := Multi{ok, bad, LogSink{}}

	err := m.Flash()
	assert.ErrorIs(t, err, bad.err)
	err = m.Vibrate(pattern)
	assert.ErrorIs(t, err, bad.err)

	assert.Equal(t, 1, ok.flashes)
	assert.Equal(t, 1, ok.vibrates)
	assert.Equal(t, 1, bad.flashes, "later sinks still run after an error")

	assert.NoError(t, Multi{ok}.Flash())
	assert.NoError(t, Multi{}.Vibrate(pattern))
}

func TestLogSink(t *testing.T) {
	var lines []string
	monitoring.SetLogger(func(format string, v ...interface{}) {
		lines = append(lines, format)
	})
	defer monitoring.SetLogger(nil)

	require.NoError(t, LogSink{}.Flash())
	require.NoError(t, LogSink{}.Vibrate(pattern))
	assert.Len(t, lines, 2)
	assert.Equal(t, "50,50,50", encodePattern(pattern))
}
