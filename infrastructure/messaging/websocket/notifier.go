// Package websocket pushes sync events to connected editors through the
// API Gateway Management API.
package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"mindsync/application/ports"
	"mindsync/domain/events"
	pkgerrors "mindsync/pkg/errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/apigatewaymanagementapi"
	apigwtypes "github.com/aws/aws-sdk-go-v2/service/apigatewaymanagementapi/types"
	"go.uber.org/zap"
)

// Message is the wire format pushed to editor clients.
type Message struct {
	Type      string      `json:"type"`
	Timestamp int64       `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// Notifier fans sync events out to every connection subscribed to the
// event's mindmap. It implements ports.EventPublisher so the resolver can
// stay unaware of the transport.
type Notifier struct {
	client   *apigatewaymanagementapi.Client
	registry ports.ConnectionRegistry
	logger   *zap.Logger
}

// NewNotifier creates a WebSocket notifier for the given endpoint.
func NewNotifier(client *apigatewaymanagementapi.Client, registry ports.ConnectionRegistry, logger *zap.Logger) *Notifier {
	return &Notifier{
		client:   client,
		registry: registry,
		logger:   logger,
	}
}

// NewClientForEndpoint builds an API Gateway Management API client bound to
// a specific WebSocket endpoint.
func NewClientForEndpoint(cfg aws.Config, endpoint string) *apigatewaymanagementapi.Client {
	return apigatewaymanagementapi.NewFromConfig(cfg, func(o *apigatewaymanagementapi.Options) {
		o.BaseEndpoint = aws.String(endpoint)
	})
}

// Publish pushes one domain event to every subscriber of its mindmap.
// Gone connections are unregistered on the spot; other per-connection
// failures are logged and skipped so one bad socket cannot block the fanout.
func (n *Notifier) Publish(ctx context.Context, event events.DomainEvent) error {
	connectionIDs, err := n.registry.Connections(ctx, event.GetAggregateID())
	if err != nil {
		return pkgerrors.Wrap(err, "failed to list subscribers")
	}
	if len(connectionIDs) == 0 {
		return nil
	}

	payload, err := json.Marshal(Message{
		Type:      event.GetEventType(),
		Timestamp: event.GetTimestamp().UnixMilli(),
		Data:      event,
	})
	if err != nil {
		return pkgerrors.NewInternalError("failed to serialize websocket message").WithCause(err)
	}

	delivered := 0
	for _, connID := range connectionIDs {
		_, err := n.client.PostToConnection(ctx, &apigatewaymanagementapi.PostToConnectionInput{
			ConnectionId: aws.String(connID),
			Data:         payload,
		})
		if err != nil {
			var gone *apigwtypes.GoneException
			if errors.As(err, &gone) {
				if unregErr := n.registry.Unregister(ctx, connID); unregErr != nil {
					n.logger.Warn("failed to drop stale connection",
						zap.String("connectionID", connID),
						zap.Error(unregErr),
					)
				}
				continue
			}
			n.logger.Warn("failed to push event to connection",
				zap.String("connectionID", connID),
				zap.String("eventType", event.GetEventType()),
				zap.Error(err),
			)
			continue
		}
		delivered++
	}

	n.logger.Debug("event fanned out",
		zap.String("eventType", event.GetEventType()),
		zap.String("mindmapID", event.GetAggregateID()),
		zap.Int("subscribers", len(connectionIDs)),
		zap.Int("delivered", delivered),
	)
	return nil
}

// FanoutPublisher delivers every event to several publishers in order.
// A failure in one sink is logged and does not stop the others.
type FanoutPublisher struct {
	sinks  []ports.EventPublisher
	logger *zap.Logger
}

// NewFanoutPublisher composes multiple event publishers into one.
func NewFanoutPublisher(logger *zap.Logger, sinks ...ports.EventPublisher) *FanoutPublisher {
	return &FanoutPublisher{sinks: sinks, logger: logger}
}

// Publish delivers the event to every sink.
func (f *FanoutPublisher) Publish(ctx context.Context, event events.DomainEvent) error {
	start := time.Now()
	var firstErr error
	for _, sink := range f.sinks {
		if err := sink.Publish(ctx, event); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			f.logger.Warn("event sink failed",
				zap.String("eventType", event.GetEventType()),
				zap.Error(err),
			)
		}
	}
	f.logger.Debug("event published",
		zap.String("eventType", event.GetEventType()),
		zap.Duration("took", time.Since(start)),
	)
	return firstErr
}

var (
	_ ports.EventPublisher = (*Notifier)(nil)
	_ ports.EventPublisher = (*FanoutPublisher)(nil)
)
