package dynamodb

import (
	"context"
	"fmt"
	"time"

	pkgerrors "mindsync/pkg/errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// ConnectionRegistry tracks WebSocket subscriptions in DynamoDB.
//
// Key schema:
//
//	PK = CONN#<connection_id>
//	SK = SUB
//	GSI1PK = MINDMAP#<mindmap_id>, GSI1SK = CONN#<connection_id>
//
// The GSI answers "who is watching this mindmap" without a scan.
type ConnectionRegistry struct {
	client    *dynamodb.Client
	tableName string
	indexName string
}

type connectionRecord struct {
	PK           string `dynamodbav:"PK"`
	SK           string `dynamodbav:"SK"`
	ConnectionID string `dynamodbav:"ConnectionID"`
	MindmapID    string `dynamodbav:"MindmapID"`
	ConnectedAt  string `dynamodbav:"ConnectedAt"`

	GSI1PK string `dynamodbav:"GSI1PK"`
	GSI1SK string `dynamodbav:"GSI1SK"`

	// TTL reaps connections the disconnect handler never saw.
	TTL int64 `dynamodbav:"TTL,omitempty"`
}

const staleConnectionTTL = 24 * time.Hour

// NewConnectionRegistry creates a DynamoDB-backed connection registry.
func NewConnectionRegistry(client *dynamodb.Client, tableName, indexName string) *ConnectionRegistry {
	return &ConnectionRegistry{
		client:    client,
		tableName: tableName,
		indexName: indexName,
	}
}

// Register subscribes a connection to a mindmap's sync feed.
func (r *ConnectionRegistry) Register(ctx context.Context, mindmapID, connectionID string) error {
	record := connectionRecord{
		PK:           fmt.Sprintf("CONN#%s", connectionID),
		SK:           "SUB",
		ConnectionID: connectionID,
		MindmapID:    mindmapID,
		ConnectedAt:  time.Now().Format(time.RFC3339),
		GSI1PK:       fmt.Sprintf("MINDMAP#%s", mindmapID),
		GSI1SK:       fmt.Sprintf("CONN#%s", connectionID),
		TTL:          time.Now().Add(staleConnectionTTL).Unix(),
	}

	item, err := attributevalue.MarshalMap(record)
	if err != nil {
		return pkgerrors.NewDatabaseError("marshal connection record", err)
	}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	if err != nil {
		return pkgerrors.NewDatabaseError("register connection", err)
	}
	return nil
}

// Unregister removes a connection's subscription.
func (r *ConnectionRegistry) Unregister(ctx context.Context, connectionID string) error {
	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: fmt.Sprintf("CONN#%s", connectionID)},
			"SK": &types.AttributeValueMemberS{Value: "SUB"},
		},
	})
	if err != nil {
		return pkgerrors.NewDatabaseError("unregister connection", err)
	}
	return nil
}

// Connections lists the connection ids subscribed to a mindmap.
func (r *ConnectionRegistry) Connections(ctx context.Context, mindmapID string) ([]string, error) {
	keyCond := expression.Key("GSI1PK").Equal(expression.Value(fmt.Sprintf("MINDMAP#%s", mindmapID)))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return nil, pkgerrors.NewDatabaseError("build connection query", err)
	}

	input := &dynamodb.QueryInput{
		TableName:                 aws.String(r.tableName),
		IndexName:                 aws.String(r.indexName),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	}

	var connectionIDs []string
	for {
		result, err := r.client.Query(ctx, input)
		if err != nil {
			return nil, pkgerrors.NewDatabaseError("query connections", err)
		}

		for _, item := range result.Items {
			var record connectionRecord
			if err := attributevalue.UnmarshalMap(item, &record); err != nil {
				continue // skip malformed records
			}
			connectionIDs = append(connectionIDs, record.ConnectionID)
		}

		if result.LastEvaluatedKey == nil {
			break
		}
		input.ExclusiveStartKey = result.LastEvaluatedKey
	}
	return connectionIDs, nil
}
