package config_test

import (
	"errors"
	"testing"

	"akar-rag/internal/config"

	"github.com/stretchr/testify/assert"
)

func validConfig() config.Config {
	return config.Config{
		TopK:                      6,
		ChunkSize:                 1000,
		ChunkOverlap:              175,
		ConfidenceHighThreshold:   0.75,
		ConfidenceMediumThreshold: 0.55,
		MaxSources:                3,
		MaxQuestionLength:         512,
		RateLimitWindowSeconds:    60,
		RateLimitMaxRequests:      30,
		UpstreamTimeoutSeconds:    30,
		StorageDir:                "storage",
		DBUser:                    "akar",
		DBName:                    "akar",
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr bool
		errIs   error
	}{
		{
			name:   "Valid Config",
			mutate: func(c *config.Config) {},
		},
		{
			name:    "Overlap Equals Size",
			mutate:  func(c *config.Config) { c.ChunkOverlap = c.ChunkSize },
			wantErr: true,
			errIs:   config.ErrInvalidConfig,
		},
		{
			name:    "Negative Overlap",
			mutate:  func(c *config.Config) { c.ChunkOverlap = -1 },
			wantErr: true,
			errIs:   config.ErrInvalidConfig,
		},
		{
			name:    "Zero Chunk Size",
			mutate:  func(c *config.Config) { c.ChunkSize = 0; c.ChunkOverlap = 0 },
			wantErr: true,
			errIs:   config.ErrInvalidConfig,
		},
		{
			name:    "Medium Above High",
			mutate:  func(c *config.Config) { c.ConfidenceMediumThreshold = 0.9 },
			wantErr: true,
			errIs:   config.ErrInvalidConfig,
		},
		{
			name:    "High Above One",
			mutate:  func(c *config.Config) { c.ConfidenceHighThreshold = 1.5 },
			wantErr: true,
			errIs:   config.ErrInvalidConfig,
		},
		{
			name:    "Zero TopK",
			mutate:  func(c *config.Config) { c.TopK = 0 },
			wantErr: true,
			errIs:   config.ErrInvalidConfig,
		},
		{
			name:    "Zero Rate Window",
			mutate:  func(c *config.Config) { c.RateLimitWindowSeconds = 0 },
			wantErr: true,
			errIs:   config.ErrInvalidConfig,
		},
		{
			name:    "Missing Storage Dir",
			mutate:  func(c *config.Config) { c.StorageDir = "" },
			wantErr: true,
			errIs:   config.ErrMissingRequired,
		},
		{
			name:    "DB Enabled Without User",
			mutate:  func(c *config.Config) { c.DBHost = "postgres"; c.DBUser = "" },
			wantErr: true,
			errIs:   config.ErrMissingRequired,
		},
		{
			name:   "DB Disabled Without User",
			mutate: func(c *config.Config) { c.DBUser = "" },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				if tt.errIs != nil {
					assert.True(t, errors.Is(err, tt.errIs))
				}
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
