package di

import (
	"context"

	"mindsync/application/ports"
	"mindsync/application/resolution"
	domainconfig "mindsync/domain/config"
	"mindsync/domain/core/operations"
	"mindsync/infrastructure/config"
	"mindsync/infrastructure/messaging/eventbridge"
	"mindsync/infrastructure/messaging/websocket"
	"mindsync/infrastructure/observability/cloudwatch"
	dynamostore "mindsync/infrastructure/persistence/dynamodb"
	"mindsync/infrastructure/persistence/memory"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awscloudwatch "github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awseventbridge "github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"go.uber.org/zap"
)

// connectionIndexName is the GSI resolving mindmap -> connections.
const connectionIndexName = "mindmap-connections-index"

// Container holds all application dependencies
type Container struct {
	Config             *config.Config
	Logger             *zap.Logger
	Resolver           *resolution.Resolver
	OperationStore     ports.OperationStore
	DocumentStore      ports.DocumentStore
	ConnectionRegistry ports.ConnectionRegistry
	EventPublisher     ports.EventPublisher
	MetricsSink        ports.MetricsSink
}

// ProvideLogger creates a new logger instance
func ProvideLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.Environment == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

// ProvideAWSConfig creates AWS configuration
func ProvideAWSConfig(ctx context.Context, cfg *config.Config) (aws.Config, error) {
	return awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.AWSRegion),
	)
}

// ProvideDynamoDBClient creates a DynamoDB client
func ProvideDynamoDBClient(awsCfg aws.Config) *awsdynamodb.Client {
	return awsdynamodb.NewFromConfig(awsCfg)
}

// ProvideEventBridgeClient creates an EventBridge client
func ProvideEventBridgeClient(awsCfg aws.Config) *awseventbridge.Client {
	return awseventbridge.NewFromConfig(awsCfg)
}

// ProvideCloudWatchClient creates a CloudWatch client
func ProvideCloudWatchClient(awsCfg aws.Config) *awscloudwatch.Client {
	return awscloudwatch.NewFromConfig(awsCfg)
}

// ProvideSyncConfig builds the domain sync configuration for the current
// environment, overridden by operational settings from the environment
// surface.
func ProvideSyncConfig(cfg *config.Config) *domainconfig.SyncConfig {
	syncCfg := domainconfig.LoadSyncConfig(cfg.Environment)
	syncCfg.MaxPendingConflicts = cfg.MaxPendingConflicts
	syncCfg.MaxBatchSize = cfg.BatchSize
	syncCfg.BatchTimeout = cfg.ResolutionTimeout
	syncCfg.EnableRealTimeSync = cfg.EnableRealTimeSync
	return syncCfg
}

// ProvideTransformer creates the operation transformer
func ProvideTransformer(syncCfg *domainconfig.SyncConfig) *operations.Transformer {
	return operations.NewTransformer(syncCfg)
}

// ProvideOperationStore creates the operation log store. Development mode
// runs against process memory; everything else hits DynamoDB.
func ProvideOperationStore(client *awsdynamodb.Client, cfg *config.Config) ports.OperationStore {
	if cfg.IsDevelopment() {
		return memory.NewOperationStore()
	}
	return dynamostore.NewOperationStore(client, cfg.OperationsTable)
}

// ProvideDocumentStore creates the snapshot store
func ProvideDocumentStore(client *awsdynamodb.Client, cfg *config.Config) ports.DocumentStore {
	if cfg.IsDevelopment() {
		return memory.NewDocumentStore()
	}
	return dynamostore.NewDocumentStore(client, cfg.SnapshotsTable)
}

// ProvideConnectionRegistry creates the WebSocket subscription registry
func ProvideConnectionRegistry(client *awsdynamodb.Client, cfg *config.Config) ports.ConnectionRegistry {
	if cfg.IsDevelopment() {
		return memory.NewConnectionRegistry()
	}
	return dynamostore.NewConnectionRegistry(client, cfg.ConnectionsTable, connectionIndexName)
}

// ProvideEventPublisher composes the event fanout: EventBridge always, and
// the WebSocket notifier when real-time sync is on and an endpoint is
// configured.
func ProvideEventPublisher(
	ebClient *awseventbridge.Client,
	awsCfg aws.Config,
	registry ports.ConnectionRegistry,
	cfg *config.Config,
	logger *zap.Logger,
) ports.EventPublisher {
	sinks := []ports.EventPublisher{
		eventbridge.NewPublisher(ebClient, cfg.EventBusName, cfg.Retry, logger),
	}

	if cfg.EnableRealTimeSync && cfg.WebSocketEndpoint != "" {
		apigw := websocket.NewClientForEndpoint(awsCfg, cfg.WebSocketEndpoint)
		sinks = append(sinks, websocket.NewNotifier(apigw, registry, logger))
	}

	if len(sinks) == 1 {
		return sinks[0]
	}
	return websocket.NewFanoutPublisher(logger, sinks...)
}

// ProvideMetricsSink creates the CloudWatch metrics exporter sink
func ProvideMetricsSink(client *awscloudwatch.Client, cfg *config.Config, logger *zap.Logger) ports.MetricsSink {
	return cloudwatch.NewMetricsPublisher(client, cfg.Environment, logger)
}

// ProvideResolver creates the conflict resolver
func ProvideResolver(
	syncCfg *domainconfig.SyncConfig,
	transformer *operations.Transformer,
	store ports.OperationStore,
	publisher ports.EventPublisher,
	logger *zap.Logger,
) *resolution.Resolver {
	return resolution.NewResolver(syncCfg, transformer, store, publisher, logger)
}
