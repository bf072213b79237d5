package envconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/born-ml/hypernet/internal/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig(t *testing.T) {
	t.Setenv("HYPERNET_DEBUG", "")
	t.Setenv("HYPERNET_DEVICE", "")
	t.Setenv("HYPERNET_STRENGTH", "")
	t.Setenv("HYPERNET_HOME", "")
	LoadConfig()
	assert.False(t, Debug)
	assert.Equal(t, tensor.CPU, Device)
	assert.InDelta(t, 1.0, Strength, 1e-9)

	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".hypernet"), Home)

	t.Setenv("HYPERNET_DEBUG", "false")
	LoadConfig()
	assert.False(t, Debug)

	t.Setenv("HYPERNET_DEBUG", "1")
	LoadConfig()
	assert.True(t, Debug)

	t.Setenv("HYPERNET_DEBUG", "yes please")
	LoadConfig()
	assert.True(t, Debug)

	t.Setenv("HYPERNET_DEVICE", "\"WebGPU\"")
	LoadConfig()
	assert.Equal(t, tensor.WebGPU, Device)

	t.Setenv("HYPERNET_DEVICE", "tpu")
	LoadConfig()
	assert.Equal(t, tensor.CPU, Device)

	t.Setenv("HYPERNET_STRENGTH", "0.25")
	LoadConfig()
	assert.InDelta(t, 0.25, Strength, 1e-9)

	t.Setenv("HYPERNET_STRENGTH", "strong")
	LoadConfig()
	assert.InDelta(t, 1.0, Strength, 1e-9)

	t.Setenv("HYPERNET_HOME", " /srv/models ")
	LoadConfig()
	assert.Equal(t, "/srv/models", Home)

	assert.Equal(t, "/srv/models", Values()["HYPERNET_HOME"])
	assert.Len(t, AsMap(), 4)
}
