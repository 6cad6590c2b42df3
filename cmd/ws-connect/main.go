// Package main implements the WebSocket $connect/$disconnect Lambda.
// It maintains the subscription registry the sync notifier fans out to.
package main

import (
	"context"
	"log"
	"net/http"

	"mindsync/infrastructure/config"
	"mindsync/infrastructure/di"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/zap"
)

var container *di.Container

func init() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	container, err = di.InitializeContainer(context.Background(), cfg)
	if err != nil {
		log.Fatalf("Failed to initialize container: %v", err)
	}
}

// Handler routes $connect and $disconnect events to the registry.
func Handler(ctx context.Context, req events.APIGatewayWebsocketProxyRequest) (events.APIGatewayProxyResponse, error) {
	connectionID := req.RequestContext.ConnectionID

	switch req.RequestContext.RouteKey {
	case "$connect":
		mindmapID := req.QueryStringParameters["mindmap_id"]
		if mindmapID == "" {
			return events.APIGatewayProxyResponse{
				StatusCode: http.StatusBadRequest,
				Body:       "mindmap_id query parameter is required",
			}, nil
		}

		if err := container.ConnectionRegistry.Register(ctx, mindmapID, connectionID); err != nil {
			container.Logger.Error("failed to register connection",
				zap.String("connectionID", connectionID),
				zap.String("mindmapID", mindmapID),
				zap.Error(err),
			)
			return events.APIGatewayProxyResponse{StatusCode: http.StatusInternalServerError}, nil
		}

		container.Logger.Info("connection registered",
			zap.String("connectionID", connectionID),
			zap.String("mindmapID", mindmapID),
		)

	case "$disconnect":
		if err := container.ConnectionRegistry.Unregister(ctx, connectionID); err != nil {
			container.Logger.Error("failed to unregister connection",
				zap.String("connectionID", connectionID),
				zap.Error(err),
			)
			return events.APIGatewayProxyResponse{StatusCode: http.StatusInternalServerError}, nil
		}

		container.Logger.Info("connection unregistered",
			zap.String("connectionID", connectionID),
		)
	}

	return events.APIGatewayProxyResponse{StatusCode: http.StatusOK}, nil
}

func main() {
	lambda.Start(Handler)
}
