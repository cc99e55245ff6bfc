package config

import (
	"os"
	"path/filepath"
	"testing"

	"jobmatch-go/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

func TestApplyDefaults(t *testing.T) {
	cfg := validConfig()

	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, 1024, cfg.Embedding.Dimensions)
	assert.Equal(t, 16, cfg.Embedding.MaxBatchSize)
	assert.Equal(t, "job_postings", cfg.Qdrant.Collection)
	assert.Equal(t, cfg.Embedding.Dimensions, cfg.Qdrant.Dimension)
	assert.Equal(t, 8, cfg.Ingest.WorkerPoolSize)
	assert.Equal(t, 72, cfg.Ingest.GraceWindowHours)
	assert.Equal(t, 0.85, cfg.Ingest.Dedup.SimilarityThreshold)
	assert.Equal(t, 128, cfg.Ingest.Dedup.SignatureSize)
	assert.Equal(t, WeightsConfig{Skills: 0.40, Seniority: 0.30, Location: 0.15, Salary: 0.15}, cfg.Scoring.Weights)
	assert.Equal(t, 20, cfg.Scoring.DefaultTopK)
	assert.Equal(t, 300, cfg.Budget.BreakerCooldownSeconds)
}

func TestApplyDefaultsKeepsExplicitValues(t *testing.T) {
	cfg := &Config{}
	cfg.Ingest.WorkerPoolSize = 2
	cfg.Scoring.Weights = WeightsConfig{Skills: 1}
	cfg.ApplyDefaults()
	assert.Equal(t, 2, cfg.Ingest.WorkerPoolSize)
	assert.Equal(t, WeightsConfig{Skills: 1}, cfg.Scoring.Weights)
}

func TestValidateAcceptsDefaults(t *testing.T) {
	require.NoError(t, validConfig().Validate())
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantField string
	}{
		{
			"weights must sum to one",
			func(c *Config) { c.Scoring.Weights = WeightsConfig{Skills: 0.5, Seniority: 0.5, Location: 0.5} },
			"scoring.weights",
		},
		{
			"similarity threshold above one",
			func(c *Config) { c.Ingest.Dedup.SimilarityThreshold = 1.2 },
			"ingest.dedup.similarity_threshold",
		},
		{
			"similarity threshold negative",
			func(c *Config) { c.Ingest.Dedup.SimilarityThreshold = -0.5 },
			"ingest.dedup.similarity_threshold",
		},
		{
			"worker pool too small",
			func(c *Config) { c.Ingest.WorkerPoolSize = -1 },
			"ingest.worker_pool_size",
		},
		{
			"index dimension must match embedding",
			func(c *Config) { c.Qdrant.Dimension = 768 },
			"qdrant.dimension",
		},
		{
			"connector without name",
			func(c *Config) { c.Ingest.Connectors = []ConnectorConfig{{BaseURL: "http://x"}} },
			"ingest.connectors.name",
		},
		{
			"duplicate connectors",
			func(c *Config) {
				c.Ingest.Connectors = []ConnectorConfig{
					{Name: domain.SourceGreenhouse, BaseURL: "http://a"},
					{Name: domain.SourceGreenhouse, BaseURL: "http://b"},
				}
			},
			"ingest.connectors",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			var cfgErr *domain.ConfigurationError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tt.wantField, cfgErr.Field)
		})
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  address: ":9090"
embedding:
  api_key: file-key
  base_url: https://api.example.com/v1/embeddings
  dimensions: 512
qdrant:
  endpoint: http://localhost:6333
ingest:
  worker_pool_size: 4
  connectors:
    - name: greenhouse
      base_url: https://boards.example.com/api
`), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Server.Address)
	assert.Equal(t, "file-key", cfg.Embedding.APIKey)
	assert.Equal(t, 4, cfg.Ingest.WorkerPoolSize)
	require.Len(t, cfg.Ingest.Connectors, 1)
	assert.Equal(t, domain.SourceGreenhouse, cfg.Ingest.Connectors[0].Name)
	// Defaults fill what the file omits; derived values follow the file.
	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, 512, cfg.Qdrant.Dimension)
	require.NoError(t, cfg.Validate())
}

func TestLoadConfigEnvOverridesSecrets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
embedding:
  api_key: file-key
mysql:
  password: file-pass
`), 0o600))

	t.Setenv("EMBEDDING_API_KEY", "env-key")
	t.Setenv("MYSQL_PASSWORD", "env-pass")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "env-key", cfg.Embedding.APIKey)
	assert.Equal(t, "env-pass", cfg.MySQL.Password)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestCacheTTLHelpers(t *testing.T) {
	cfg := validConfig()
	assert.Equal(t, 7*24.0, cfg.EmbeddingCacheTTL().Hours())
	assert.Equal(t, 60.0, cfg.MatchCacheTTL().Minutes())
	assert.Equal(t, 72.0, cfg.GraceWindow().Hours())
}
