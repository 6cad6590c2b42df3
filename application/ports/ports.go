package ports

import (
	"context"

	"mindsync/domain/core/entities"
	"mindsync/domain/core/operations"
	"mindsync/domain/events"
)

// OperationStore is the persistence collaborator's view of the append-only
// operation history. The sync core keeps its own in-memory window; the
// store is the sole writer of durable storage.
type OperationStore interface {
	// Append records a resolved operation durably.
	Append(ctx context.Context, op operations.Operation) error

	// Recent returns up to limit operations for a mindmap, newest last.
	Recent(ctx context.Context, mindmapID string, limit int) ([]operations.Operation, error)
}

// DocumentStore persists resolved document snapshots so a reconnecting
// replica can replay from a version instead of from genesis.
type DocumentStore interface {
	SaveSnapshot(ctx context.Context, state *entities.DocumentState) error
	LoadSnapshot(ctx context.Context, mindmapID string) (*entities.DocumentState, error)
}

// EventPublisher delivers domain events to the transport collaborator.
// Implementations must be safe for concurrent use.
type EventPublisher interface {
	Publish(ctx context.Context, event events.DomainEvent) error
}

// ConnectionRegistry tracks which editor sessions are subscribed to a
// mindmap, keyed by transport connection id.
type ConnectionRegistry interface {
	Register(ctx context.Context, mindmapID, connectionID string) error
	Unregister(ctx context.Context, connectionID string) error
	Connections(ctx context.Context, mindmapID string) ([]string, error)
}

// MetricsSink receives resolver metric snapshots for export.
type MetricsSink interface {
	PublishMetrics(ctx context.Context, snapshot MetricsSnapshot) error
}

// MetricsSnapshot is a point-in-time view of the resolver's counters.
type MetricsSnapshot struct {
	TotalConflicts        int64   `json:"total_conflicts"`
	ResolvedConflicts     int64   `json:"resolved_conflicts"`
	ManualConflicts       int64   `json:"manual_conflicts"`
	PendingConflicts      int     `json:"pending_conflicts"`
	AverageResolutionMs   float64 `json:"average_resolution_ms"`
	PeakResolutionMs      float64 `json:"peak_resolution_ms"`
	ConflictRatePerMinute float64 `json:"conflict_rate_per_minute"`
	SuccessRate           float64 `json:"success_rate"`
}
