package monitoring

import (
	"fmt"
	"testing"
)

func TestSetLogger(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	called := false
	SetLogger(func(format string, v ...interface{}) {
		called = true
	})
	Logf("test message")
	if !called {
		t.Error("Custom logger was not called")
	}

	called = false
	SetLogger(nil)
	Logf("test message")
	if called {
		t.Error("No-op logger should not have triggered the previous callback")
	}
}

func TestScoped(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	var lines []string
	SetLogger(func(format string, v ...interface{}) {
		lines = append(lines, fmt.Sprintf(format, v...))
	})

	logf := Scoped("a1b2c3d4")
	logf("onset %d accepted", 2)

	if len(lines) != 1 || lines[0] != "[a1b2c3d4] onset 2 accepted" {
		t.Errorf("lines = %q", lines)
	}
}

func TestScoped_FollowsLaterSetLogger(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	logf := Scoped("x")
	got := ""
	SetLogger(func(format string, v ...interface{}) {
		got = fmt.Sprintf(format, v...)
	})
	logf("hello")
	if got != "[x] hello" {
		t.Errorf("got %q", got)
	}
}
