package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8787", cfg.Addr)
	assert.Equal(t, BackendPostgres, cfg.SearchBackend)
	assert.Equal(t, SegmenterGse, cfg.Segmenter)
	assert.Equal(t, 60*time.Second, cfg.ImpressionFlushInterval)
	assert.Equal(t, 30*time.Second, cfg.SnapshotRefreshInterval)
	assert.Equal(t, 1.414, cfg.ExplorationFactor)
	assert.Equal(t, 10.0, cfg.StrengthWeight)
	assert.Equal(t, 20, cfg.DefaultLimit)
	assert.Equal(t, 100, cfg.MaxLimit)
	assert.Empty(t, cfg.MeiliURL)
	assert.Empty(t, cfg.RedisURL)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("API_ADDR", ":9000")
	t.Setenv("SEARCH_BACKEND", "Memory")
	t.Setenv("SEGMENTER", "unigram")
	t.Setenv("IMPRESSION_FLUSH_INTERVAL", "5s")
	t.Setenv("RANKING_STRENGTH_WEIGHT", "2.5")
	t.Setenv("REDIS_URL", "redis://localhost:6379/1")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Addr)
	assert.Equal(t, BackendMemory, cfg.SearchBackend)
	assert.Equal(t, SegmenterUnigram, cfg.Segmenter)
	assert.Equal(t, 5*time.Second, cfg.ImpressionFlushInterval)
	assert.Equal(t, 2.5, cfg.StrengthWeight)
	assert.Equal(t, "redis://localhost:6379/1", cfg.RedisURL)
}

func TestLoadFileWithEnvironmentOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "searchd.yaml")
	body := "api_addr: \":7000\"\nsearch_max_limit: 50\nmeili_url: http://meili:7700\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	t.Setenv("SEARCH_MAX_LIMIT", "60")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.Addr)
	assert.Equal(t, 60, cfg.MaxLimit)
	assert.Equal(t, "http://meili:7700", cfg.MeiliURL)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"unknown backend", map[string]string{"SEARCH_BACKEND": "sqlite"}},
		{"unknown segmenter", map[string]string{"SEGMENTER": "jieba"}},
		{"zero flush interval", map[string]string{"IMPRESSION_FLUSH_INTERVAL": "0s"}},
		{"max below default", map[string]string{"SEARCH_DEFAULT_LIMIT": "50", "SEARCH_MAX_LIMIT": "10"}},
		{"negative weight", map[string]string{"RANKING_EXPLORATION_FACTOR": "-1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load("")
			assert.Error(t, err)
		})
	}
}
