package ingest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/DjordjeVuckovic/index-relay/internal/apperr"
	"github.com/DjordjeVuckovic/index-relay/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Defaults(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Target.Index = "jobs"

	require.NoError(t, cfg.Validate())
	assert.Equal(t, ModeEvents, cfg.Mode)
	assert.Equal(t, 100, cfg.PageSize)
	assert.Equal(t, 0, cfg.MaxRecords)
	assert.Equal(t, 10, cfg.BodyMaxSize)
	assert.Equal(t, time.Second, cfg.FlushInterval())
	assert.Equal(t, domain.AllChangeKinds, cfg.EventKinds)
	assert.Equal(t, domain.DefaultTargetType, cfg.Target.Type)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantMsg string
	}{
		{name: "missing index", mutate: func(c *Config) { c.Target.Index = "" }, wantMsg: "target index is required"},
		{name: "bad mode", mutate: func(c *Config) { c.Mode = "mirror" }, wantMsg: `unknown mode "mirror"`},
		{name: "zero page size", mutate: func(c *Config) { c.PageSize = 0 }, wantMsg: "page size must be positive"},
		{name: "negative max", mutate: func(c *Config) { c.MaxRecords = -1 }, wantMsg: "max records must not be negative"},
		{name: "zero body size", mutate: func(c *Config) { c.BodyMaxSize = 0 }, wantMsg: "body max size must be positive"},
		{name: "zero interval", mutate: func(c *Config) { c.FlushIntervalMs = 0 }, wantMsg: "flush interval must be positive"},
		{name: "bad resume position", mutate: func(c *Config) { c.ResumeAfter = "%%%" }, wantMsg: "invalid resume position"},
		{name: "bad kind", mutate: func(c *Config) { c.EventKinds = []domain.ChangeKind{"moved"} }, wantMsg: `unknown change kind "moved"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Target.Index = "jobs"
			tt.mutate(&cfg)

			err := cfg.Validate()
			var ve *apperr.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestLoadYAML_OverridesBase(t *testing.T) {
	base := DefaultConfig()
	base.Target.Index = "from-env"

	doc := `
name: jobs-sync
mode: sync
target:
  index: jobs
body_max_size: 50
event_kinds: [added, removed]
`
	cfg, err := LoadYAML(strings.NewReader(doc), base)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "jobs-sync", cfg.Name)
	assert.Equal(t, ModeSync, cfg.Mode)
	assert.Equal(t, "jobs", cfg.Target.Index)
	assert.Equal(t, 50, cfg.BodyMaxSize)
	assert.Equal(t, base.PageSize, cfg.PageSize)
	assert.Equal(t, base.FlushIntervalMs, cfg.FlushIntervalMs)
	assert.Equal(t, []domain.ChangeKind{domain.Added, domain.Removed}, cfg.EventKinds)
}

func TestLoadYAML_RejectsUnknownFields(t *testing.T) {
	_, err := LoadYAML(strings.NewReader("batch: 10\n"), DefaultConfig())
	assert.Error(t, err)
}

func TestLoadYAML_EmptyDocument(t *testing.T) {
	base := DefaultConfig()
	cfg, err := LoadYAML(strings.NewReader(""), base)
	require.NoError(t, err)
	assert.Equal(t, base, cfg)
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	require.NoError(t, os.WriteFile(path, []byte("mode: snapshot\npage_size: 500\n"), 0o644))

	cfg, err := LoadYAMLFile(path, DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, ModeSnapshot, cfg.Mode)
	assert.Equal(t, 500, cfg.PageSize)

	_, err = LoadYAMLFile(filepath.Join(t.TempDir(), "missing.yaml"), DefaultConfig())
	assert.Error(t, err)
}
