package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"

	"cepcrawler/internal/cep"
)

// PubSubPublisher implements Publisher on Google Cloud Pub/Sub.
type PubSubPublisher struct {
	client *pubsub.Client
	topic  *pubsub.Topic
}

// NewPubSubPublisher creates a Pub/Sub client and verifies the topic
// exists. It authenticates via Application Default Credentials.
func NewPubSubPublisher(ctx context.Context, projectID, topicID string) (*PubSubPublisher, error) {
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}

	topic := client.Topic(topicID)
	exists, err := topic.Exists(ctx)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("check pubsub topic %q: %w", topicID, err)
	}
	if !exists {
		_ = client.Close()
		return nil, fmt.Errorf("pubsub topic %q does not exist in project %q", topicID, projectID)
	}

	return &PubSubPublisher{client: client, topic: topic}, nil
}

// jobFinishedEvent is the published payload.
type jobFinishedEvent struct {
	CrawlID   string `json:"crawl_id"`
	Status    string `json:"status"`
	Total     int64  `json:"total"`
	Successes int64  `json:"successes"`
	Errors    int64  `json:"errors"`
}

// JobFinished publishes the terminal snapshot. The send itself is
// asynchronous; the Pub/Sub client batches and retries in the
// background, so this is fire-and-forget.
func (p *PubSubPublisher) JobFinished(ctx context.Context, job cep.CrawlJob) error {
	payload, err := json.Marshal(jobFinishedEvent{
		CrawlID:   job.CrawlID,
		Status:    string(job.Status),
		Total:     job.Total,
		Successes: job.Successes,
		Errors:    job.Errors,
	})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	p.topic.Publish(ctx, &pubsub.Message{Data: payload})
	return nil
}

// Close stops the topic's publisher and closes the client.
func (p *PubSubPublisher) Close() error {
	p.topic.Stop()
	if err := p.client.Close(); err != nil {
		return fmt.Errorf("close pubsub client: %w", err)
	}
	return nil
}
