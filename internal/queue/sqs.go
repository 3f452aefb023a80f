// Package queue publishes deadline notification events to downstream
// consumers over SQS or an AMQP topic exchange.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqsTypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"reportnotify/internal/types"
)

// SQSSender abstracts the SQS SendMessage operation for testability.
// Production code uses the *sqs.Client from aws-sdk-go-v2.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSPublisher sends DeadlineNotificationEvent payloads to a single queue.
type SQSPublisher struct {
	client   SQSSender
	queueURL string
	logger   *slog.Logger
}

// NewSQSPublisher creates an SQSPublisher for queueURL.
func NewSQSPublisher(client SQSSender, queueURL string, logger *slog.Logger) *SQSPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &SQSPublisher{client: client, queueURL: queueURL, logger: logger}
}

// PublishDeadlineNotification serializes evt and sends it with routing_key and
// trigger message attributes so subscribers can filter without decoding.
func (p *SQSPublisher) PublishDeadlineNotification(ctx context.Context, evt types.DeadlineNotificationEvent) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("queue: failed to marshal DeadlineNotificationEvent: %w", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqsTypes.MessageAttributeValue{
			"routing_key": {
				DataType:    aws.String("String"),
				StringValue: aws.String(types.EventRoutingKey),
			},
			"trigger": {
				DataType:    aws.String("String"),
				StringValue: aws.String(evt.Trigger),
			},
		},
	}

	if _, err := p.client.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("queue: failed to send DeadlineNotificationEvent to %s: %w", p.queueURL, err)
	}

	p.logger.InfoContext(ctx, "deadline notification event sent",
		"queue_url", p.queueURL,
		"event_id", evt.EventID,
		"report_request_id", evt.ReportRequestID,
		"trigger", evt.Trigger,
	)
	return nil
}

// NoopPublisher discards events. Used when EVENTS_BACKEND=none.
type NoopPublisher struct{}

func (NoopPublisher) PublishDeadlineNotification(context.Context, types.DeadlineNotificationEvent) error {
	return nil
}
