package props

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tracker.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	got, err := Load(writeFile(t, "error_severity: warnings\nfire_and_forget: true\nsitespeed_sample_rate: 10\nrequest_timeout: 500ms\n"))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"error_severity":        "warnings",
		"fire_and_forget":       true,
		"sitespeed_sample_rate": 10,
		"request_timeout":       "500ms",
	}, got)
}

func TestLoad_Empty(t *testing.T) {
	got, err := Load(writeFile(t, ""))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "- just\n- a list\n"))
	assert.Error(t, err)
}
