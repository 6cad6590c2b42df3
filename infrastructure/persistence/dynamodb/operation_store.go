package dynamodb

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"mindsync/domain/core/operations"
	pkgerrors "mindsync/pkg/errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// OperationStore persists the resolved operation log in DynamoDB.
//
// Key schema:
//
//	PK = MINDMAP#<mindmap_id>
//	SK = OP#<timestamp_ms(020d)>#<operation_id>
//
// The zero-padded millisecond timestamp keeps the sort key ordered by
// author time, so Recent is a single descending query.
type OperationStore struct {
	client    *dynamodb.Client
	tableName string
}

// operationRecord is the DynamoDB shape of one resolved operation. The
// payload is stored as raw JSON so the record survives vocabulary growth
// without a table migration.
type operationRecord struct {
	PK          string           `dynamodbav:"PK"`
	SK          string           `dynamodbav:"SK"`
	OperationID string           `dynamodbav:"OperationID"`
	MindmapID   string           `dynamodbav:"MindmapID"`
	UserID      string           `dynamodbav:"UserID"`
	OpType      string           `dynamodbav:"OpType"`
	TargetID    string           `dynamodbav:"TargetID"`
	Timestamp   int64            `dynamodbav:"Timestamp"`
	VectorClock map[string]int64 `dynamodbav:"VectorClock,omitempty"`
	Payload     string           `dynamodbav:"Payload"`

	// TTL for automatic cleanup of old log entries.
	TTL int64 `dynamodbav:"TTL,omitempty"`
}

// operationLogRetention bounds how long resolved operations stay queryable.
const operationLogRetention = 30 * 24 * time.Hour

// NewOperationStore creates a DynamoDB-backed operation store.
func NewOperationStore(client *dynamodb.Client, tableName string) *OperationStore {
	return &OperationStore{
		client:    client,
		tableName: tableName,
	}
}

func operationPK(mindmapID string) string {
	return fmt.Sprintf("MINDMAP#%s", mindmapID)
}

func operationSK(op operations.Operation) string {
	return fmt.Sprintf("OP#%020d#%s", op.Timestamp, op.ID.String())
}

// Append records a resolved operation durably.
func (s *OperationStore) Append(ctx context.Context, op operations.Operation) error {
	payload, err := json.Marshal(op)
	if err != nil {
		return pkgerrors.NewInternalError("failed to serialize operation").WithCause(err)
	}

	record := operationRecord{
		PK:          operationPK(op.MindmapID),
		SK:          operationSK(op),
		OperationID: op.ID.String(),
		MindmapID:   op.MindmapID,
		UserID:      op.UserID,
		OpType:      string(op.Type),
		TargetID:    op.TargetID,
		Timestamp:   op.Timestamp,
		VectorClock: op.VectorClock,
		Payload:     string(payload),
		TTL:         time.Now().Add(operationLogRetention).Unix(),
	}

	item, err := attributevalue.MarshalMap(record)
	if err != nil {
		return pkgerrors.NewDatabaseError("marshal operation record", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	})
	if err != nil {
		return pkgerrors.NewDatabaseError("put operation record", err)
	}
	return nil
}

// Recent returns up to limit operations for a mindmap, newest last.
func (s *OperationStore) Recent(ctx context.Context, mindmapID string, limit int) ([]operations.Operation, error) {
	keyCond := expression.Key("PK").Equal(expression.Value(operationPK(mindmapID))).
		And(expression.Key("SK").BeginsWith("OP#"))

	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return nil, pkgerrors.NewDatabaseError("build operation query", err)
	}

	input := &dynamodb.QueryInput{
		TableName:                 aws.String(s.tableName),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		// Newest first, so the limit trims the oldest entries.
		ScanIndexForward: aws.Bool(false),
	}
	if limit > 0 {
		input.Limit = aws.Int32(int32(limit))
	}

	result, err := s.client.Query(ctx, input)
	if err != nil {
		return nil, pkgerrors.NewDatabaseError("query operations", err)
	}

	ops := make([]operations.Operation, 0, len(result.Items))
	for _, item := range result.Items {
		var record operationRecord
		if err := attributevalue.UnmarshalMap(item, &record); err != nil {
			return nil, pkgerrors.NewDatabaseError("unmarshal operation record", err)
		}
		var op operations.Operation
		if err := json.Unmarshal([]byte(record.Payload), &op); err != nil {
			return nil, pkgerrors.NewInternalError(
				fmt.Sprintf("corrupt operation payload %s", record.OperationID)).WithCause(err)
		}
		ops = append(ops, op)
	}

	// The query returned newest first; callers expect newest last.
	for i, j := 0, len(ops)-1; i < j; i, j = i+1, j-1 {
		ops[i], ops[j] = ops[j], ops[i]
	}
	return ops, nil
}

// DeleteBefore drops log entries older than the cutoff timestamp. Used by
// operational tooling; the TTL attribute handles routine expiry.
func (s *OperationStore) DeleteBefore(ctx context.Context, mindmapID string, cutoff int64) (int, error) {
	keyCond := expression.Key("PK").Equal(expression.Value(operationPK(mindmapID))).
		And(expression.Key("SK").LessThan(expression.Value(fmt.Sprintf("OP#%020d", cutoff))))

	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return 0, pkgerrors.NewDatabaseError("build cleanup query", err)
	}

	input := &dynamodb.QueryInput{
		TableName:                 aws.String(s.tableName),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ProjectionExpression:      aws.String("PK, SK"),
	}

	deleted := 0
	for {
		result, err := s.client.Query(ctx, input)
		if err != nil {
			return deleted, pkgerrors.NewDatabaseError("query expired operations", err)
		}

		for _, item := range result.Items {
			_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
				TableName: aws.String(s.tableName),
				Key: map[string]types.AttributeValue{
					"PK": item["PK"],
					"SK": item["SK"],
				},
			})
			if err != nil {
				return deleted, pkgerrors.NewDatabaseError("delete expired operation", err)
			}
			deleted++
		}

		if result.LastEvaluatedKey == nil {
			break
		}
		input.ExclusiveStartKey = result.LastEvaluatedKey
	}
	return deleted, nil
}
