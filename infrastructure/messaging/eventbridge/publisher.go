// Package eventbridge publishes sync domain events to an EventBridge bus.
package eventbridge

import (
	"context"
	"encoding/json"
	"time"

	"mindsync/domain/events"
	infraconfig "mindsync/infrastructure/config"
	pkgerrors "mindsync/pkg/errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	awseventbridge "github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"go.uber.org/zap"
)

const eventSource = "mindsync.sync"

// Publisher sends domain events to EventBridge with the configured retry
// policy. Delivery is at-least-once; consumers must tolerate duplicates.
type Publisher struct {
	client  *awseventbridge.Client
	busName string
	retry   infraconfig.RetryPolicy
	logger  *zap.Logger
}

// NewPublisher creates an EventBridge-backed event publisher.
func NewPublisher(client *awseventbridge.Client, busName string, retry infraconfig.RetryPolicy, logger *zap.Logger) *Publisher {
	return &Publisher{
		client:  client,
		busName: busName,
		retry:   retry,
		logger:  logger,
	}
}

// Publish delivers one domain event to the bus.
func (p *Publisher) Publish(ctx context.Context, event events.DomainEvent) error {
	detail, err := json.Marshal(event)
	if err != nil {
		return pkgerrors.NewInternalError("failed to serialize event").WithCause(err)
	}

	entry := types.PutEventsRequestEntry{
		EventBusName: aws.String(p.busName),
		Source:       aws.String(eventSource),
		DetailType:   aws.String(event.GetEventType()),
		Detail:       aws.String(string(detail)),
		Time:         aws.Time(event.GetTimestamp()),
	}

	var lastErr error
	for attempt := 1; attempt <= p.retry.MaxRetries+1; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.retry.Delay(attempt - 1)):
			}
		}

		result, err := p.client.PutEvents(ctx, &awseventbridge.PutEventsInput{
			Entries: []types.PutEventsRequestEntry{entry},
		})
		if err != nil {
			lastErr = err
			p.logger.Warn("event publish attempt failed",
				zap.String("eventType", event.GetEventType()),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			continue
		}
		if result.FailedEntryCount > 0 {
			code, msg := "", ""
			if len(result.Entries) > 0 {
				code = aws.ToString(result.Entries[0].ErrorCode)
				msg = aws.ToString(result.Entries[0].ErrorMessage)
			}
			lastErr = pkgerrors.NewExternalError("eventbridge", nil).
				WithCode(code).
				WithDetails(map[string]interface{}{"message": msg})
			continue
		}
		return nil
	}

	return pkgerrors.NewExternalError("eventbridge", lastErr)
}
