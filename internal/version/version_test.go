package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerator(t *testing.T) {
	oldV, oldSHA := Version, GitSHA
	t.Cleanup(func() { Version, GitSHA = oldV, oldSHA })

	Version, GitSHA = "1.2.0", "unknown"
	assert.Equal(t, "lidar2map/1.2.0", Generator())

	GitSHA = "0123456789abcdef"
	assert.Equal(t, "lidar2map/1.2.0+0123456", Generator())
	assert.Contains(t, String(), "commit 0123456789abcdef")
}
