package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEnvFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("LAB_TEST_FROM_FILE=yes\nLAB_TEST_PRESET=file\n"), 0o600))
	t.Setenv("ENV_FILE", path)
	t.Setenv("LAB_TEST_PRESET", "process")
	t.Cleanup(func() { os.Unsetenv("LAB_TEST_FROM_FILE") })

	require.NoError(t, LoadEnv())
	assert.Equal(t, "yes", os.Getenv("LAB_TEST_FROM_FILE"))
	// 进程环境优先
	assert.Equal(t, "process", os.Getenv("LAB_TEST_PRESET"))
}

func TestLoadEnvMissingFile(t *testing.T) {
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	err := LoadEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing.env")
}
