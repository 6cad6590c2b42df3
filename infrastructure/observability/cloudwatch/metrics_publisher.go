// Package cloudwatch exports resolver metrics as CloudWatch custom metrics.
package cloudwatch

import (
	"context"
	"time"

	"mindsync/application/ports"
	pkgerrors "mindsync/pkg/errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscloudwatch "github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"go.uber.org/zap"
)

const metricNamespace = "MindSync/Conflicts"

// MetricsPublisher pushes resolver metric snapshots to CloudWatch.
type MetricsPublisher struct {
	client      *awscloudwatch.Client
	environment string
	logger      *zap.Logger
}

// NewMetricsPublisher creates a CloudWatch-backed metrics sink.
func NewMetricsPublisher(client *awscloudwatch.Client, environment string, logger *zap.Logger) *MetricsPublisher {
	return &MetricsPublisher{
		client:      client,
		environment: environment,
		logger:      logger,
	}
}

// PublishMetrics exports one snapshot as a batch of metric data points.
func (p *MetricsPublisher) PublishMetrics(ctx context.Context, snapshot ports.MetricsSnapshot) error {
	now := time.Now()
	dimensions := []types.Dimension{
		{
			Name:  aws.String("Environment"),
			Value: aws.String(p.environment),
		},
	}

	datum := func(name string, value float64, unit types.StandardUnit) types.MetricDatum {
		return types.MetricDatum{
			MetricName: aws.String(name),
			Value:      aws.Float64(value),
			Unit:       unit,
			Timestamp:  aws.Time(now),
			Dimensions: dimensions,
		}
	}

	data := []types.MetricDatum{
		datum("TotalConflicts", float64(snapshot.TotalConflicts), types.StandardUnitCount),
		datum("ResolvedConflicts", float64(snapshot.ResolvedConflicts), types.StandardUnitCount),
		datum("ManualConflicts", float64(snapshot.ManualConflicts), types.StandardUnitCount),
		datum("PendingConflicts", float64(snapshot.PendingConflicts), types.StandardUnitCount),
		datum("AverageResolutionLatency", snapshot.AverageResolutionMs, types.StandardUnitMilliseconds),
		datum("PeakResolutionLatency", snapshot.PeakResolutionMs, types.StandardUnitMilliseconds),
		datum("ConflictRate", snapshot.ConflictRatePerMinute, types.StandardUnitCountSecond),
		datum("ResolutionSuccessRate", snapshot.SuccessRate*100, types.StandardUnitPercent),
	}

	_, err := p.client.PutMetricData(ctx, &awscloudwatch.PutMetricDataInput{
		Namespace:  aws.String(metricNamespace),
		MetricData: data,
	})
	if err != nil {
		return pkgerrors.NewExternalError("cloudwatch", err)
	}

	p.logger.Debug("metrics exported",
		zap.Int("datapoints", len(data)),
		zap.Int64("totalConflicts", snapshot.TotalConflicts),
	)
	return nil
}

var _ ports.MetricsSink = (*MetricsPublisher)(nil)

// Exporter periodically publishes resolver metrics to a sink.
type Exporter struct {
	source   func() ports.MetricsSnapshot
	sink     ports.MetricsSink
	interval time.Duration
	logger   *zap.Logger

	stopChan    chan struct{}
	stoppedChan chan struct{}
}

// NewExporter creates an exporter that reads snapshots from source every
// interval. Call Start to begin and Stop to shut it down.
func NewExporter(source func() ports.MetricsSnapshot, sink ports.MetricsSink, interval time.Duration, logger *zap.Logger) *Exporter {
	return &Exporter{
		source:      source,
		sink:        sink,
		interval:    interval,
		logger:      logger,
		stopChan:    make(chan struct{}),
		stoppedChan: make(chan struct{}),
	}
}

// Start launches the export loop in its own goroutine.
func (e *Exporter) Start() {
	go e.run()
}

func (e *Exporter) run() {
	defer close(e.stoppedChan)

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stopChan:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := e.sink.PublishMetrics(ctx, e.source()); err != nil {
				e.logger.Warn("metrics export failed", zap.Error(err))
			}
			cancel()
		}
	}
}

// Stop halts the export loop and waits for it to finish.
func (e *Exporter) Stop() {
	close(e.stopChan)
	<-e.stoppedChan
}
