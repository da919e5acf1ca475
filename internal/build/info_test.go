package build

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetBuildInfo(t *testing.T) {
	info := GetBuildInfo()

	assert.Equal(t, Name, info.Name)
	assert.Equal(t, "0.1.0", info.Version)
	assert.Equal(t, runtime.Version(), info.GoVersion)
	assert.Contains(t, info.String(), "dochooks 0.1.0")
	assert.NotContains(t, info.String(), "Commit:")
}

func TestUserAgent(t *testing.T) {
	assert.Equal(t, "dochooks/0.1.0", UserAgent())

	old := Commit
	Commit = "abc123"

	t.Cleanup(func() { Commit = old })

	assert.Equal(t, "dochooks/0.1.0 (abc123)", UserAgent())
}
