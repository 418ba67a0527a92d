package commands

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigValidateCmd_ValidFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mimic.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: INFO\n  format: json\n"), 0o600))

	cfgFile = path
	defer func() { cfgFile = "" }()

	err := configValidateCmd.RunE(configValidateCmd, nil)
	assert.NoError(t, err)
}

func TestConfigValidateCmd_InvalidFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mimic.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: NOT_A_LEVEL\n"), 0o600))

	cfgFile = path
	defer func() { cfgFile = "" }()

	err := configValidateCmd.RunE(configValidateCmd, nil)
	assert.Error(t, err)
}

func TestConfigShowCmd_PrintsYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mimic.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  listen_addr: \":9999\"\n"), 0o600))

	cfgFile = path
	defer func() { cfgFile = "" }()

	err := configShowCmd.RunE(configShowCmd, nil)
	assert.NoError(t, err)
}
