package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEnvFile(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), ".env")

	content := `# Test env file
VETSCAN_TEST_KEY1=value1
VETSCAN_TEST_KEY2="quoted value"
VETSCAN_TEST_KEY3='single quoted'
# Comment
VETSCAN_TEST_KEY4=value4
`
	require.NoError(t, os.WriteFile(envFile, []byte(content), 0644))

	for _, k := range []string{"VETSCAN_TEST_KEY1", "VETSCAN_TEST_KEY2", "VETSCAN_TEST_KEY3", "VETSCAN_TEST_KEY4"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}

	require.NoError(t, loadEnvFile(envFile))

	assert.Equal(t, "value1", os.Getenv("VETSCAN_TEST_KEY1"))
	assert.Equal(t, "quoted value", os.Getenv("VETSCAN_TEST_KEY2"))
	assert.Equal(t, "single quoted", os.Getenv("VETSCAN_TEST_KEY3"))
	assert.Equal(t, "value4", os.Getenv("VETSCAN_TEST_KEY4"))
}

func TestLoadEnvFile_DoesNotOverride(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("VETSCAN_TEST_EXISTING=from_file\n"), 0644))

	t.Setenv("VETSCAN_TEST_EXISTING", "from_env")

	require.NoError(t, loadEnvFile(envFile))
	assert.Equal(t, "from_env", os.Getenv("VETSCAN_TEST_EXISTING"))
}

func TestResolveEnvWithAliases(t *testing.T) {
	t.Setenv("VETSCAN_SERVER_PORT", "")
	t.Setenv("PORT", "8088")
	assert.Equal(t, "8088", ResolveEnvWithAliases("VETSCAN_SERVER_PORT"))

	t.Setenv("VETSCAN_SERVER_PORT", "9000")
	assert.Equal(t, "9000", ResolveEnvWithAliases("VETSCAN_SERVER_PORT"))

	assert.Equal(t, "", ResolveEnvWithAliases("VETSCAN_UNKNOWN_KEY"))
}

func TestGetEnvDefault(t *testing.T) {
	t.Setenv("VETSCAN_TEST_DEFAULT", "")
	assert.Equal(t, "fallback", GetEnvDefault("VETSCAN_TEST_DEFAULT", "fallback"))

	t.Setenv("VETSCAN_TEST_DEFAULT", "set")
	assert.Equal(t, "set", GetEnvDefault("VETSCAN_TEST_DEFAULT", "fallback"))
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	assert.Equal(t, home, expandPath("~"))
	assert.Equal(t, filepath.Join(home, "data"), expandPath("~/data"))
	assert.Equal(t, "/var/lib/vetscan", expandPath("/var/lib/vetscan"))
	assert.Equal(t, "~other/x", expandPath("~other/x"))
}
