package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/prasenjit/mockforge/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestWriteDefaultConfig(t *testing.T) {
	dir := t.TempDir()

	path, err := writeDefaultConfig(dir, false)
	require.NoError(t, err)
	assert.DirExists(t, filepath.Join(dir, "data"))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)

	_, err = writeDefaultConfig(dir, false)
	assert.Error(t, err, "existing config must not be overwritten")

	_, err = writeDefaultConfig(dir, true)
	assert.NoError(t, err)
}

func TestOpenStorage(t *testing.T) {
	dir := t.TempDir()

	for _, typ := range []string{config.StorageMemory, config.StorageFile, config.StorageBadger} {
		t.Run(typ, func(t *testing.T) {
			store, err := openStorage(config.StorageConfig{Type: typ, Path: filepath.Join(dir, typ)}, zap.NewNop())
			require.NoError(t, err)
			require.NoError(t, store.Close())
		})
	}

	_, err := os.Stat(filepath.Join(dir, config.StorageBadger))
	assert.NoError(t, err)
}
