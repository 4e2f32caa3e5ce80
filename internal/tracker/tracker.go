// Package tracker records imported feed files in DynamoDB so a file
// delivered twice by S3 is only loaded once.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// ErrAlreadyImported is returned by Start when the key has a record.
var ErrAlreadyImported = errors.New("file already imported")

// DefaultLease is how long a started import holds its key. It matches the
// longest Lambda timeout, so a started record older than this belongs to an
// invocation that died before Finish.
const DefaultLease = 15 * time.Minute

// startCondition admits a new key, a failed import, or a started import whose
// lease has run out.
const startCondition = "attribute_not_exists(s3_key) OR #status = :failed OR (#status = :started AND updatedon < :stale)"

// Import statuses.
const (
	StatusStarted   = "started"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// ImportRecord is one item of the import tracker table. Primary key: s3_key (HASH).
type ImportRecord struct {
	Key       string `dynamodbav:"s3_key" json:"key"`
	Pipeline  string `dynamodbav:"pipeline" json:"pipeline"`
	Status    string `dynamodbav:"status" json:"status"`
	CreatedOn int64  `dynamodbav:"createdon" json:"createdon_ms"`
	UpdatedOn int64  `dynamodbav:"updatedon" json:"updatedon_ms"`
	Total     int    `dynamodbav:"total" json:"total"`
	Processed int    `dynamodbav:"processed" json:"processed"`
	Skipped   int    `dynamodbav:"skipped" json:"skipped"`
	Failed    int    `dynamodbav:"failed" json:"failed"`
	Values    int    `dynamodbav:"values" json:"values"`
	Error     string `dynamodbav:"error,omitempty" json:"error,omitempty"`
}

type ddbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Scan(ctx context.Context, in *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// Tracker reads and writes import records.
type Tracker struct {
	client ddbAPI
	table  string
	lease  time.Duration
	now    func() time.Time
}

// New returns a Tracker for table.
func New(cfg aws.Config, table string) *Tracker {
	return &Tracker{client: dynamodb.NewFromConfig(cfg), table: table, lease: DefaultLease, now: time.Now}
}

// Start writes a started record for key. If a record already exists the
// write is rejected and ErrAlreadyImported returned, unless the earlier
// import failed or was started more than a lease ago and never finished.
func (t *Tracker) Start(ctx context.Context, key, pipeline string) (*ImportRecord, error) {
	at := t.now().UTC()
	now := at.UnixMilli()
	rec := &ImportRecord{
		Key:       key,
		Pipeline:  pipeline,
		Status:    StatusStarted,
		CreatedOn: now,
		UpdatedOn: now,
	}
	av, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return nil, err
	}
	exprValues, err := attributevalue.MarshalMap(map[string]any{
		":failed":  StatusFailed,
		":started": StatusStarted,
		":stale":   at.Add(-t.lease).UnixMilli(),
	})
	if err != nil {
		return nil, err
	}
	_, err = t.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                 aws.String(t.table),
		Item:                      av,
		ConditionExpression:       aws.String(startCondition),
		ExpressionAttributeNames:  map[string]string{"#status": "status"},
		ExpressionAttributeValues: exprValues,
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return nil, fmt.Errorf("%s: %w", key, ErrAlreadyImported)
		}
		return nil, fmt.Errorf("start import %s: %w", key, err)
	}
	return rec, nil
}

// Finish stores the final state of rec.
func (t *Tracker) Finish(ctx context.Context, rec *ImportRecord) error {
	rec.UpdatedOn = t.now().UTC().UnixMilli()
	av, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return err
	}
	_, err = t.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(t.table),
		Item:      av,
	})
	if err != nil {
		return fmt.Errorf("finish import %s: %w", rec.Key, err)
	}
	return nil
}

// Get fetches the record for key. Returns (nil, nil) if no such item exists.
func (t *Tracker) Get(ctx context.Context, key string) (*ImportRecord, error) {
	k, err := attributevalue.MarshalMap(struct {
		Key string `dynamodbav:"s3_key"`
	}{Key: key})
	if err != nil {
		return nil, err
	}
	out, err := t.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(t.table),
		Key:            k,
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var rec ImportRecord
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListRecent returns at most limit records created on or after since.
// It scans with a filter because the hash key is the object key.
func (t *Tracker) ListRecent(ctx context.Context, since time.Time, limit int) ([]ImportRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	exprValues, err := attributevalue.MarshalMap(map[string]int64{":since": since.UTC().UnixMilli()})
	if err != nil {
		return nil, err
	}
	var items []ImportRecord
	var lastKey map[string]types.AttributeValue
	for {
		out, err := t.client.Scan(ctx, &dynamodb.ScanInput{
			TableName:                 aws.String(t.table),
			FilterExpression:          aws.String("createdon >= :since"),
			ExpressionAttributeValues: exprValues,
			ExclusiveStartKey:         lastKey,
			Limit:                     aws.Int32(int32(limit - len(items))),
		})
		if err != nil {
			return nil, err
		}
		var batch []ImportRecord
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &batch); err != nil {
			return nil, err
		}
		items = append(items, batch...)
		if len(items) >= limit || len(out.LastEvaluatedKey) == 0 {
			break
		}
		lastKey = out.LastEvaluatedKey
	}
	return items, nil
}
