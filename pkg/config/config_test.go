package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigValidates(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
}

func TestPresetsValidate(t *testing.T) {
	for _, name := range []string{"default", "quickstart", "conservative", "throughput"} {
		cfg, err := GetPresetConfig(name)
		require.NoError(t, err, name)
		require.NoError(t, cfg.Validate(), name)
	}
}

func TestGetPresetConfigUnknown(t *testing.T) {
	_, err := GetPresetConfig("nonexistent")
	assert.Error(t, err)
}

func TestValidateRejectsOutOfRangeConcurrency(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Concurrency.Default = 99
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsBadSimilarityThreshold(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Merging.DuplicateDetection.SimilarityThreshold = 1.5
	assert.Error(t, cfg.Validate())
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	original := ConservativeConfig()
	require.NoError(t, original.SaveToFile(path))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, original.Concurrency.Default, loaded.Concurrency.Default)
	assert.Equal(t, original.Retry.MaxAttempts, loaded.Retry.MaxAttempts)
}

func TestEnvironmentOverride(t *testing.T) {
	t.Setenv("BATCHSUM_CONCURRENCY_DEFAULT", "5")
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Concurrency.Default)
}

func TestWatcherReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, DefaultConfig().SaveToFile(path))

	reloaded := make(chan *Config, 1)
	w, err := NewWatcher(path, func(c *Config) error {
		reloaded <- c
		return nil
	})
	require.NoError(t, err)
	defer w.Close()

	updated := QuickstartConfig()
	require.NoError(t, updated.SaveToFile(path))

	select {
	case cfg := <-reloaded:
		assert.Equal(t, 1, cfg.Concurrency.Default)
	case <-time.After(2 * time.Second):
		t.Fatal("expected reload callback after file write")
	}
}
