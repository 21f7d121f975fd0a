package queue

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// SQSConfig configures the SQS-backed provider. Endpoint overrides the
// AWS endpoint for local brokers (ElasticMQ, LocalStack); static
// credentials are used when AccessKeyID is set, the default chain
// otherwise.
type SQSConfig struct {
	Region          string
	Endpoint        string
	QueueURL        string
	AccessKeyID     string
	SecretAccessKey string
}

// SQSProvider implements Provider on Amazon SQS.
type SQSProvider struct {
	client   *sqs.Client
	queueURL string
}

// NewSQSProvider builds the SQS client and returns a Provider bound to
// the configured queue URL.
func NewSQSProvider(ctx context.Context, cfg SQSConfig) (*SQSProvider, error) {
	if cfg.QueueURL == "" {
		return nil, fmt.Errorf("sqs queue url is required")
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	return &SQSProvider{client: client, queueURL: cfg.QueueURL}, nil
}

// Send enqueues one message body.
func (p *SQSProvider) Send(ctx context.Context, body []byte) error {
	_, err := p.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		return fmt.Errorf("sqs send: %w", err)
	}
	return nil
}

// Receive long-polls SQS. SQS caps a single receive at 10 messages and
// the wait at 20 seconds; both are clamped here.
func (p *SQSProvider) Receive(ctx context.Context, maxMessages int, wait time.Duration) ([]Message, error) {
	if maxMessages < 1 {
		maxMessages = 1
	}
	if maxMessages > 10 {
		maxMessages = 10
	}
	waitSeconds := int32(wait / time.Second)
	if waitSeconds > 20 {
		waitSeconds = 20
	}

	out, err := p.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(p.queueURL),
		MaxNumberOfMessages: int32(maxMessages),
		WaitTimeSeconds:     waitSeconds,
		MessageSystemAttributeNames: []types.MessageSystemAttributeName{
			types.MessageSystemAttributeNameApproximateReceiveCount,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("sqs receive: %w", err)
	}

	messages := make([]Message, 0, len(out.Messages))
	for _, m := range out.Messages {
		msg := Message{
			Body:         []byte(aws.ToString(m.Body)),
			ReceiveCount: 1,
		}
		if m.ReceiptHandle != nil {
			msg.ReceiptHandle = *m.ReceiptHandle
		}
		if raw, ok := m.Attributes[string(types.MessageSystemAttributeNameApproximateReceiveCount)]; ok {
			if n, convErr := strconv.Atoi(raw); convErr == nil {
				msg.ReceiveCount = n
			}
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

// Delete acknowledges one delivery.
func (p *SQSProvider) Delete(ctx context.Context, receiptHandle string) error {
	_, err := p.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(p.queueURL),
		ReceiptHandle: aws.String(receiptHandle),
	})
	if err != nil {
		return fmt.Errorf("sqs delete: %w", err)
	}
	return nil
}

// Close is a no-op; the SQS client holds no persistent connection.
func (p *SQSProvider) Close() error { return nil }
