package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyDefaultsDerivesJournalPath(t *testing.T) {
	t.Parallel()

	c := &Config{Basedir: "/srv/store"}
	c.ApplyDefaults()

	assert.Equal(t, "/srv/store.journal", c.JournalPath)
	assert.Equal(t, int(DefaultMaxSyncInterval/time.Second), c.FilestoreMaxSyncInterval)
	assert.Equal(t, 1, c.FilestoreMinSyncInterval)
}

func TestApplyDefaultsDoesNotOverrideExplicitJournalPath(t *testing.T) {
	t.Parallel()

	c := &Config{Basedir: "/srv/store", JournalPath: "/elsewhere/j"}
	c.ApplyDefaults()
	assert.Equal(t, "/elsewhere/j", c.JournalPath)
}

func TestValidateRequiresBasedir(t *testing.T) {
	t.Parallel()

	c := &Config{}
	assert.Error(t, c.Validate())
}

func TestValidateRejectsMinGreaterThanMax(t *testing.T) {
	t.Parallel()

	c := &Config{Basedir: "/srv/store", FilestoreMinSyncInterval: 10, FilestoreMaxSyncInterval: 5}
	assert.Error(t, c.Validate())
}

func TestSyncIntervalConversions(t *testing.T) {
	t.Parallel()

	c := &Config{FilestoreMinSyncInterval: 1, FilestoreMaxSyncInterval: 5}
	assert.Equal(t, time.Second, c.MinSyncInterval())
	assert.Equal(t, 5*time.Second, c.MaxSyncInterval())
}

func TestLoadParsesYAMLAndAppliesDefaults(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "store.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
basedir: /srv/store
journal_dio: true
filestore_btrfs_trans: true
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/srv/store", cfg.Basedir)
	assert.True(t, cfg.JournalDIO)
	assert.True(t, cfg.FilestoreBtrfsTrans)
	assert.Equal(t, "/srv/store.journal", cfg.JournalPath)
}

func TestLoadRejectsMissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load("/nonexistent/path.yaml")
	assert.Error(t, err)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "store.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`journal_dio: true`), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}
