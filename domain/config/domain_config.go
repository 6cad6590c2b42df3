package config

import (
	"errors"
	"time"
)

// SyncConfig holds all configurable business rules for conflict detection
// and resolution.
type SyncConfig struct {
	// History constraints
	MaxHistoryEntries   int
	HistoryRetention    time.Duration
	CleanupInterval     time.Duration
	MaxPendingConflicts int

	// Batch resolution
	MaxBatchSize          int
	BatchTimeout          time.Duration
	PrioritizeByTimestamp bool

	// Position conflict geometry. The collision threshold and nudge offset
	// were tuned against the default canvas grid; keep them configurable.
	PositionCollisionThreshold float64
	PositionNudgeOffset        float64

	// Manual resolution
	MaxResolutionAttempts int
	ConflictRetention     time.Duration

	// Feature flags
	EnableRealTimeSync       bool
	EnableParallelProcessing bool
	GroupBySimilarity        bool
}

// DefaultSyncConfig returns the default sync configuration.
func DefaultSyncConfig() *SyncConfig {
	return &SyncConfig{
		MaxHistoryEntries:   100,
		HistoryRetention:    24 * time.Hour,
		CleanupInterval:     5 * time.Minute,
		MaxPendingConflicts: 1000,

		MaxBatchSize:          10,
		BatchTimeout:          10 * time.Second,
		PrioritizeByTimestamp: true,

		PositionCollisionThreshold: 50.0,
		PositionNudgeOffset:        60.0,

		MaxResolutionAttempts: 3,
		ConflictRetention:     24 * time.Hour,

		EnableRealTimeSync: true,
		// Pairwise transform ordering is not safe under concurrent
		// application without extra synchronization; default off.
		EnableParallelProcessing: false,
		GroupBySimilarity:        false,
	}
}

// ProductionSyncConfig returns production-specific configuration.
func ProductionSyncConfig() *SyncConfig {
	cfg := DefaultSyncConfig()

	// Tighter queue bounds for production
	cfg.MaxPendingConflicts = 500
	cfg.MaxResolutionAttempts = 5

	return cfg
}

// DevelopmentSyncConfig returns development-specific configuration.
func DevelopmentSyncConfig() *SyncConfig {
	cfg := DefaultSyncConfig()

	// Faster feedback loops while developing
	cfg.CleanupInterval = 30 * time.Second
	cfg.HistoryRetention = time.Hour
	cfg.ConflictRetention = time.Hour

	return cfg
}

// LoadSyncConfig loads sync configuration based on environment.
func LoadSyncConfig(environment string) *SyncConfig {
	switch environment {
	case "production":
		return ProductionSyncConfig()
	case "development":
		return DevelopmentSyncConfig()
	default:
		return DefaultSyncConfig()
	}
}

// Validate checks if the configuration is valid.
func (c *SyncConfig) Validate() error {
	if c.MaxHistoryEntries <= 0 {
		return errors.New("MaxHistoryEntries must be positive")
	}
	if c.MaxBatchSize <= 0 {
		return errors.New("MaxBatchSize must be positive")
	}
	if c.BatchTimeout <= 0 {
		return errors.New("BatchTimeout must be positive")
	}
	if c.CleanupInterval <= 0 {
		return errors.New("CleanupInterval must be positive")
	}
	if c.PositionCollisionThreshold < 0 {
		return errors.New("PositionCollisionThreshold cannot be negative")
	}
	return nil
}
