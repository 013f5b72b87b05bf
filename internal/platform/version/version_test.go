package version

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGet(t *testing.T) {
	saved := Version
	Version = "v1.2.3"
	t.Cleanup(func() { Version = saved })

	info := Get()

	assert.Equal(t, "agentpulse", info.Service)
	assert.Equal(t, "v1.2.3", info.Version)
	assert.Equal(t, runtime.Version(), info.GoVersion)
	assert.Contains(t, info.String(), "agentpulse v1.2.3")
}
