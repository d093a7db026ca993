package utils

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig(t *testing.T) {
	t.Run("with nil values", func(t *testing.T) {
		config := NewConfig(nil)
		require.NotNil(t, config)
		assert.Empty(t, config.Get("anything"))
	})

	t.Run("with values", func(t *testing.T) {
		values := map[string]string{
			"key1": "value1",
			"key2": "value2",
		}
		config := NewConfig(values)

		assert.Equal(t, "value1", config.Get("key1"))
		assert.Equal(t, "value2", config.Get("key2"))

		// Verify it's a copy, not a reference
		values["key1"] = "modified"
		assert.NotEqual(t, "modified", config.Get("key1"))
	})
}

func TestNewConfigFromEnv(t *testing.T) {
	envContent := "TEST_KEY1=test_value1\nTEST_KEY2=test_value2\n"
	tmpFile, err := os.CreateTemp("", "test_env_*.env")
	require.NoError(t, err)
	defer os.Remove(tmpFile.Name())

	_, err = tmpFile.WriteString(envContent)
	require.NoError(t, err)
	tmpFile.Close()

	config := NewConfigFromEnv(tmpFile.Name())
	require.NotNil(t, config)
	assert.Equal(t, "test_value1", config.Get("TEST_KEY1"))
}

func TestConfigGetWithDefault(t *testing.T) {
	config := NewConfig(map[string]string{
		"existing": "value",
		"empty":    "",
	})

	assert.Equal(t, "value", config.GetWithDefault("existing", "fallback"))
	assert.Equal(t, "fallback", config.GetWithDefault("empty", "fallback"))
	assert.Equal(t, "fallback", config.GetWithDefault("missing", "fallback"))
}

func TestConfigGetDuration(t *testing.T) {
	config := NewConfig(map[string]string{
		"timeout": "45s",
		"invalid": "soon",
	})

	assert.Equal(t, 45*time.Second, config.GetDuration("timeout", time.Minute))
	assert.Equal(t, time.Minute, config.GetDuration("invalid", time.Minute))
	assert.Equal(t, time.Minute, config.GetDuration("missing", time.Minute))
}
