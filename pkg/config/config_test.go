package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chdirTemp moves the test into an empty directory so no stray .env or
// config.yaml is picked up.
func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	orig, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(orig) })
	return dir
}

func TestLoad_EnvOnlyDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load("", "test-version")
	require.NoError(t, err)

	assert.Equal(t, "test-version", cfg.Version)
	assert.Equal(t, 5000, cfg.Server.Port)
	assert.Equal(t, "gemini", cfg.LLM.Provider)
	assert.Equal(t, 4096, cfg.LLM.MaxOutputTokens)
	assert.Equal(t, 10000, cfg.Pipeline.ExportThreshold)
	assert.Equal(t, []string{"View_Clean_Imports", "View_Clean_Exports"}, cfg.Pipeline.Tables)
	assert.Equal(t, "memory", cfg.Export.Store)
	assert.Equal(t, "exports", cfg.Export.Dir)
	assert.True(t, cfg.MSSQL.ReadOnlyIntent)
	assert.Equal(t, 120*time.Second, cfg.Pipeline.RequestTimeout())
	assert.Equal(t, 24*time.Hour, cfg.Export.JobTTL())
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	dir := chdirTemp(t)
	path := filepath.Join(dir, "agent.yaml")

	yamlContent := `
env: test
server:
  port: 8080
mssql:
  host: db.example.com
  database: Trade
llm:
  provider: openai
  model: gpt-4o-mini
export:
  store: sqlite
  workers: 4
`
	require.NoError(t, os.WriteFile(path, []byte(yamlContent), 0o644))

	t.Setenv("PORT", "9090")
	t.Setenv("MSSQL_PASSWORD", "secret")
	t.Setenv("LLM_PROVIDER", "Anthropic")

	cfg, err := Load(path, "v1")
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "db.example.com", cfg.MSSQL.Host)
	assert.Equal(t, "secret", cfg.MSSQL.Password)
	assert.Equal(t, "anthropic", cfg.LLM.Provider)
	assert.Equal(t, "sqlite", cfg.Export.Store)
	assert.Equal(t, 4, cfg.Export.Workers)
	assert.Equal(t, "0.0.0.0:9090", cfg.Server.Addr())
}

func TestLoad_PasswordNotReadFromYAML(t *testing.T) {
	dir := chdirTemp(t)
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("mssql:\n  password: leaked\n"), 0o644))
	os.Unsetenv("MSSQL_PASSWORD")

	cfg, err := Load("", "v1")
	require.NoError(t, err)
	assert.Empty(t, cfg.MSSQL.Password)
}

func TestLoad_DotEnvFile(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("EXPORT_DIR=/tmp/exim-exports\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("EXPORT_DIR") })

	cfg, err := Load("", "v1")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/exim-exports", cfg.Export.Dir)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server:   ServerConfig{Port: 5000},
			LLM:      LLMConfig{Provider: "gemini"},
			Pipeline: PipelineConfig{ExportThreshold: 10000, Tables: []string{"View_Clean_Imports"}},
			Export:   ExportConfig{Workers: 1, Store: "memory"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, "port"},
		{"unknown provider", func(c *Config) { c.LLM.Provider = "cohere" }, "llm provider"},
		{"zero threshold", func(c *Config) { c.Pipeline.ExportThreshold = 0 }, "export_threshold"},
		{"no tables", func(c *Config) { c.Pipeline.Tables = nil }, "table"},
		{"no workers", func(c *Config) { c.Export.Workers = 0 }, "workers"},
		{"unknown store", func(c *Config) { c.Export.Store = "redis" }, "export store"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
