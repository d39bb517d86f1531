// Package queue provides the SQS producer that hands verified payment events
// from the webhook receiver to the fulfillment worker.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqsTypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"matchpass/internal/config"
	"matchpass/internal/types"
)

// Message attribute keys set on every payment event.
const (
	AttrEventType   = "event_type"
	AttrProductCode = "product_code"
)

// SQSSender abstracts the SQS SendMessage operation for testability.
// Production code uses the *sqs.Client from aws-sdk-go-v2.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// PaymentEventPublisher serializes PaymentEvents onto the payment-event queue.
type PaymentEventPublisher struct {
	client   SQSSender
	queueURL string
	logger   *slog.Logger
}

// NewPaymentEventPublisher creates a publisher for the queue named in awsCfg.
func NewPaymentEventPublisher(client SQSSender, awsCfg config.AWSConfig, logger *slog.Logger) *PaymentEventPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &PaymentEventPublisher{
		client:   client,
		queueURL: awsCfg.PaymentEventQueue,
		logger:   logger,
	}
}

// Publish sends ev to the queue. Failures are returned as upstream_queue
// AppErrors so the caller can decide whether to fall back to inline apply.
func (p *PaymentEventPublisher) Publish(ctx context.Context, ev types.PaymentEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("queue: failed to marshal PaymentEvent: %w", err)
	}

	attrs := map[string]sqsTypes.MessageAttributeValue{
		AttrEventType: {
			DataType:    aws.String("String"),
			StringValue: aws.String(string(ev.Type)),
		},
	}
	// SQS rejects empty string attribute values.
	if ev.ProductCode != "" {
		attrs[AttrProductCode] = sqsTypes.MessageAttributeValue{
			DataType:    aws.String("String"),
			StringValue: aws.String(ev.ProductCode),
		}
	}

	out, err := p.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:          aws.String(p.queueURL),
		MessageBody:       aws.String(string(body)),
		MessageAttributes: attrs,
	})
	if err != nil {
		return types.NewAppError(types.ErrCodeUpstreamQueue,
			fmt.Sprintf("queue: failed to send PaymentEvent to %s", p.queueURL), err)
	}

	p.logger.InfoContext(ctx, "payment event published",
		"queue_url", p.queueURL,
		"message_id", aws.ToString(out.MessageId),
		"event_type", string(ev.Type),
		"payment_id", ev.PaymentID,
		"payment_intent_id", ev.PaymentIntentID,
		"source_event_id", ev.SourceEventID,
	)
	return nil
}

// DecodePaymentEvent parses a message body produced by Publish.
func DecodePaymentEvent(body string) (types.PaymentEvent, error) {
	var ev types.PaymentEvent
	if err := json.Unmarshal([]byte(body), &ev); err != nil {
		return ev, types.NewAppError(types.ErrCodeValidationInvalidBody, "queue: malformed payment event", err)
	}
	switch ev.Type {
	case types.PaymentEventCompleted, types.PaymentEventRefunded:
		return ev, nil
	default:
		return ev, types.NewAppError(types.ErrCodeValidationInvalidBody,
			fmt.Sprintf("queue: unsupported payment event type %q", ev.Type), nil)
	}
}
