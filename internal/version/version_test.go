package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCurrent(t *testing.T) {
	old := Version
	Version = "v1.2.0"
	defer func() { Version = old }()

	info := Current()
	assert.Equal(t, Info{Version: "v1.2.0", GitSHA: GitSHA, BuildTime: BuildTime}, info)
	assert.Contains(t, info.String(), "greenwave v1.2.0")
}
