package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.ServerAddress)
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "strict", cfg.ConflictDetectionMode)
	assert.Equal(t, 10, cfg.BatchSize)
	assert.Equal(t, 10*time.Second, cfg.ResolutionTimeout)
	assert.Equal(t, "exponential", cfg.Retry.BackoffStrategy)
	assert.True(t, cfg.IsDevelopment())
	assert.False(t, cfg.IsProduction())
}

func TestLoadConfigFromEnvironment(t *testing.T) {
	t.Setenv("SERVER_ADDRESS", ":9999")
	t.Setenv("BATCH_SIZE", "25")
	t.Setenv("RESOLUTION_TIMEOUT", "3s")
	t.Setenv("ENABLE_REAL_TIME_SYNC", "false")
	t.Setenv("RETRY_BACKOFF_STRATEGY", "linear")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, ":9999", cfg.ServerAddress)
	assert.Equal(t, 25, cfg.BatchSize)
	assert.Equal(t, 3*time.Second, cfg.ResolutionTimeout)
	assert.False(t, cfg.EnableRealTimeSync)
	assert.Equal(t, "linear", cfg.Retry.BackoffStrategy)
}

func TestLoadConfigRejectsInvalidMode(t *testing.T) {
	t.Setenv("CONFLICT_DETECTION_MODE", "aggressive")

	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestProductionRequiresJWTSecret(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("JWT_SECRET", "")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")
}

func TestRetryPolicyDelay(t *testing.T) {
	tests := []struct {
		name     string
		policy   RetryPolicy
		attempt  int
		expected time.Duration
	}{
		{
			name: "exponential doubles per attempt",
			policy: RetryPolicy{
				BackoffStrategy: "exponential",
				InitialDelay:    100 * time.Millisecond,
				MaxDelay:        5 * time.Second,
			},
			attempt:  3,
			expected: 400 * time.Millisecond,
		},
		{
			name: "exponential caps at max delay",
			policy: RetryPolicy{
				BackoffStrategy: "exponential",
				InitialDelay:    time.Second,
				MaxDelay:        3 * time.Second,
			},
			attempt:  4,
			expected: 3 * time.Second,
		},
		{
			name: "linear grows with attempt",
			policy: RetryPolicy{
				BackoffStrategy: "linear",
				InitialDelay:    200 * time.Millisecond,
				MaxDelay:        5 * time.Second,
			},
			attempt:  3,
			expected: 600 * time.Millisecond,
		},
		{
			name: "fixed ignores attempt",
			policy: RetryPolicy{
				BackoffStrategy: "fixed",
				InitialDelay:    250 * time.Millisecond,
				MaxDelay:        5 * time.Second,
			},
			attempt:  7,
			expected: 250 * time.Millisecond,
		},
		{
			name: "attempt below one treated as first",
			policy: RetryPolicy{
				BackoffStrategy: "exponential",
				InitialDelay:    100 * time.Millisecond,
				MaxDelay:        5 * time.Second,
			},
			attempt:  0,
			expected: 100 * time.Millisecond,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.policy.Delay(tt.attempt))
		})
	}
}
