package dynamodb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"mindsync/domain/core/entities"
	pkgerrors "mindsync/pkg/errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DocumentStore persists resolved document snapshots in DynamoDB.
//
// Key schema:
//
//	PK = SNAPSHOT#<mindmap_id>
//	SK = LATEST
//
// Only the latest snapshot per mindmap is kept; a reconnecting replica
// loads it and replays the operation log from the snapshot version.
type DocumentStore struct {
	client    *dynamodb.Client
	tableName string
}

type snapshotRecord struct {
	PK        string `dynamodbav:"PK"`
	SK        string `dynamodbav:"SK"`
	MindmapID string `dynamodbav:"MindmapID"`
	Version   int64  `dynamodbav:"Version"`
	State     string `dynamodbav:"State"`
	SavedAt   string `dynamodbav:"SavedAt"`
}

// NewDocumentStore creates a DynamoDB-backed document snapshot store.
func NewDocumentStore(client *dynamodb.Client, tableName string) *DocumentStore {
	return &DocumentStore{
		client:    client,
		tableName: tableName,
	}
}

func snapshotPK(mindmapID string) string {
	return fmt.Sprintf("SNAPSHOT#%s", mindmapID)
}

// SaveSnapshot stores the resolved document state, replacing any previous
// snapshot. Writes are conditional on the version not going backwards, so
// a slow writer cannot clobber a newer snapshot.
func (s *DocumentStore) SaveSnapshot(ctx context.Context, state *entities.DocumentState) error {
	if state == nil || state.ID == "" {
		return pkgerrors.NewValidationError("snapshot requires a document id")
	}
	if err := state.Validate(); err != nil {
		return err
	}

	payload, err := json.Marshal(state)
	if err != nil {
		return pkgerrors.NewInternalError("failed to serialize document state").WithCause(err)
	}

	record := snapshotRecord{
		PK:        snapshotPK(state.ID),
		SK:        "LATEST",
		MindmapID: state.ID,
		Version:   state.Version,
		State:     string(payload),
		SavedAt:   time.Now().Format(time.RFC3339),
	}

	item, err := attributevalue.MarshalMap(record)
	if err != nil {
		return pkgerrors.NewDatabaseError("marshal snapshot record", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(Version) OR Version <= :version"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":version": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", state.Version)},
		},
	})
	if err != nil {
		var condFailed *types.ConditionalCheckFailedException
		if errors.As(err, &condFailed) {
			return pkgerrors.NewConflictError(
				fmt.Sprintf("snapshot for %s is already newer than version %d", state.ID, state.Version))
		}
		return pkgerrors.NewDatabaseError("put snapshot record", err)
	}
	return nil
}

// LoadSnapshot retrieves the latest snapshot for a mindmap.
func (s *DocumentStore) LoadSnapshot(ctx context.Context, mindmapID string) (*entities.DocumentState, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: snapshotPK(mindmapID)},
			"SK": &types.AttributeValueMemberS{Value: "LATEST"},
		},
	})
	if err != nil {
		return nil, pkgerrors.NewDatabaseError("get snapshot record", err)
	}
	if result.Item == nil {
		return nil, pkgerrors.NewNotFoundError("snapshot for mindmap " + mindmapID)
	}

	var record snapshotRecord
	if err := attributevalue.UnmarshalMap(result.Item, &record); err != nil {
		return nil, pkgerrors.NewDatabaseError("unmarshal snapshot record", err)
	}

	var state entities.DocumentState
	if err := json.Unmarshal([]byte(record.State), &state); err != nil {
		return nil, pkgerrors.NewInternalError(
			fmt.Sprintf("corrupt snapshot for mindmap %s", mindmapID)).WithCause(err)
	}
	return &state, nil
}
