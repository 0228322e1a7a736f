package security

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidatePathWithinDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	safeDir := filepath.Join(tmpDir, "safe")
	unsafeDir := filepath.Join(tmpDir, "unsafe")
	require.NoError(t, os.MkdirAll(safeDir, 0o755))
	require.NoError(t, os.MkdirAll(unsafeDir, 0o755))
	symlinkPath := filepath.Join(safeDir, "evil-symlink")
	require.NoError(t, os.Symlink(unsafeDir, symlinkPath))

	tests := []struct {
		name      string
		filePath  string
		safeDir   string
		wantError bool
	}{
		{"file in directory", filepath.Join(tmpDir, "trace.png"), tmpDir, false},
		{"nested path that does not exist yet", filepath.Join(tmpDir, "a", "b", "trace.png"), tmpDir, false},
		{"dot-dot escape", filepath.Join(tmpDir, "..", "trace.png"), tmpDir, true},
		{"relative escape", "../../../etc/passwd", tmpDir, true},
		{"absolute path elsewhere", "/etc/passwd", tmpDir, true},
		{"through symlink", filepath.Join(symlinkPath, "trace.png"), safeDir, true},
		{"symlink itself", symlinkPath, safeDir, true},
		{"missing safe dir", filepath.Join(tmpDir, "x.png"), filepath.Join(tmpDir, "nope"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePathWithinDirectory(tt.filePath, tt.safeDir)
			if tt.wantError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSafeJoin(t *testing.T) {
	dir := t.TempDir()

	got, err := SafeJoin(dir, "calibration 3f2a/../../x", ".png")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "calibration_3f2a_.._.._x.png"), got)

	_, err = SafeJoin(filepath.Join(dir, "missing"), "x", ".png")
	assert.Error(t, err)
}

func TestSanitizeFilename(t *testing.T) {
	tests := map[string]string{
		"":              "unknown",
		"...":           "unknown",
		"trace-01.png":  "trace-01.png",
		"a b  c":        "a_b_c",
		"../etc/passwd": "etc_passwd",
		"grün":          "gr_n",
	}
	for in, want := range tests {
		assert.Equal(t, want, SanitizeFilename(in), in)
	}
	assert.Equal(t, strings.Repeat("x", 128), SanitizeFilename(strings.Repeat("x", 300)))
}
