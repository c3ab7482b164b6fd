package contractors

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

type dynamoAPI interface {
	UpdateItem(context.Context, *dynamodb.UpdateItemInput, ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	GetItem(context.Context, *dynamodb.GetItemInput, ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
}

// DynamoPerformanceStore keeps counters in a DynamoDB table keyed by contractorId,
// relying on ADD update expressions for atomic increments.
type DynamoPerformanceStore struct {
	client    dynamoAPI
	tableName string
	now       func() time.Time
}

var _ PerformanceStore = (*DynamoPerformanceStore)(nil)

func NewDynamoPerformanceStore(client dynamoAPI, tableName string) *DynamoPerformanceStore {
	if client == nil {
		panic("contractors: dynamodb client cannot be nil")
	}
	if tableName == "" {
		panic("contractors: performance table name cannot be empty")
	}
	return &DynamoPerformanceStore{
		client:    client,
		tableName: tableName,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *DynamoPerformanceStore) RecordOutcome(ctx context.Context, contractorID string, converted bool, value float64) (*Performance, error) {
	conversions, revenue := 0, 0.0
	if converted {
		conversions, revenue = 1, value
	}
	return s.add(ctx, contractorID, "ADD totalLeads :one, conversions :conv, revenue :rev SET updatedAt = :now",
		map[string]types.AttributeValue{
			":one":  number(1),
			":conv": number(float64(conversions)),
			":rev":  number(revenue),
		})
}

func (s *DynamoPerformanceStore) RecordPurchase(ctx context.Context, contractorID string, amount float64) (*Performance, error) {
	return s.add(ctx, contractorID, "ADD purchases :one, spend :amt SET updatedAt = :now",
		map[string]types.AttributeValue{
			":one": number(1),
			":amt": number(amount),
		})
}

func (s *DynamoPerformanceStore) add(ctx context.Context, contractorID, expr string, values map[string]types.AttributeValue) (*Performance, error) {
	values[":now"] = &types.AttributeValueMemberS{Value: s.now().Format(time.RFC3339Nano)}
	out, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"contractorId": &types.AttributeValueMemberS{Value: contractorID},
		},
		UpdateExpression:          aws.String(expr),
		ExpressionAttributeValues: values,
		ReturnValues:              types.ReturnValueAllNew,
	})
	if err != nil {
		return nil, fmt.Errorf("contractors: update performance %s: %w", contractorID, err)
	}
	return decodePerformance(out.Attributes)
}

func (s *DynamoPerformanceStore) Get(ctx context.Context, contractorID string) (*Performance, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"contractorId": &types.AttributeValueMemberS{Value: contractorID},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("contractors: get performance %s: %w", contractorID, err)
	}
	if len(out.Item) == 0 {
		return nil, ErrPerformanceNotFound
	}
	return decodePerformance(out.Item)
}

func decodePerformance(item map[string]types.AttributeValue) (*Performance, error) {
	var p Performance
	if err := attributevalue.UnmarshalMap(item, &p); err != nil {
		return nil, fmt.Errorf("contractors: decode performance: %w", err)
	}
	p.recompute()
	return &p, nil
}

func number(v float64) *types.AttributeValueMemberN {
	return &types.AttributeValueMemberN{Value: strconv.FormatFloat(v, 'f', -1, 64)}
}
