// Package purgequeue moves snapshot retention off the write path via SQS.
package purgequeue

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// PurgeMessage is the SQS message body for a snapshot purge request.
type PurgeMessage struct {
	AID string `json:"aid"`
}

// SQSSender abstracts SQS send operations for dependency inversion.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSPublisher publishes purge requests to an SQS queue.
type SQSPublisher struct {
	client   SQSSender
	queueURL string
}

// NewSQSPublisher creates a new SQSPublisher.
func NewSQSPublisher(client SQSSender, queueURL string) *SQSPublisher {
	return &SQSPublisher{
		client:   client,
		queueURL: queueURL,
	}
}

// SchedulePurge enqueues a purge of the historical snapshots of aid.
func (p *SQSPublisher) SchedulePurge(ctx context.Context, aid string) error {
	if aid == "" {
		return nil
	}

	body, err := json.Marshal(PurgeMessage{AID: aid})
	if err != nil {
		return err
	}

	_, err = p.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		return fmt.Errorf("failed to enqueue purge of %s: %w", aid, err)
	}
	return nil
}

// ParseMessage decodes a purge request body.
func ParseMessage(body string) (PurgeMessage, error) {
	var msg PurgeMessage
	if err := json.Unmarshal([]byte(body), &msg); err != nil {
		return PurgeMessage{}, fmt.Errorf("failed to parse purge message: %w", err)
	}
	if msg.AID == "" {
		return PurgeMessage{}, errors.New("purge message has no aid")
	}
	return msg, nil
}
