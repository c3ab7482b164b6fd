package events

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

type sqsAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSPublisher relays outbox entries to an SQS queue.
type SQSPublisher struct {
	client   sqsAPI
	queueURL string
}

var _ DeliveryHandler = (*SQSPublisher)(nil)

func NewSQSPublisher(client sqsAPI, queueURL string) *SQSPublisher {
	if client == nil {
		panic("events: SQS client cannot be nil")
	}
	if queueURL == "" {
		panic("events: SQS queueURL cannot be empty")
	}
	return &SQSPublisher{client: client, queueURL: queueURL}
}

func (p *SQSPublisher) Handle(ctx context.Context, entry OutboxEntry) error {
	attrs := map[string]types.MessageAttributeValue{
		"event_type": {DataType: aws.String("String"), StringValue: aws.String(entry.Type)},
		"event_id":   {DataType: aws.String("String"), StringValue: aws.String(entry.ID.String())},
	}
	// SQS rejects empty attribute values.
	if entry.AggregateID != "" {
		attrs["lead_id"] = types.MessageAttributeValue{DataType: aws.String("String"), StringValue: aws.String(entry.AggregateID)}
	}
	_, err := p.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:          aws.String(p.queueURL),
		MessageBody:       aws.String(string(entry.Payload)),
		MessageAttributes: attrs,
	})
	if err != nil {
		return fmt.Errorf("events: failed to send SQS message: %w", err)
	}
	return nil
}

// LogPublisher is the delivery handler used when no queue is configured.
type LogPublisher struct {
	Log func(msg string, args ...any)
}

func (p LogPublisher) Handle(ctx context.Context, entry OutboxEntry) error {
	if p.Log != nil {
		p.Log("outbox event", "event_id", entry.ID, "type", entry.Type, "lead_id", entry.AggregateID)
	}
	return nil
}
