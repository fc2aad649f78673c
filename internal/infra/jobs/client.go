package jobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/flowdeckio/api/pkg/domain/shared"
	"github.com/flowdeckio/api/pkg/logger"
)

// Client manages enqueueing background jobs using Asynq.
type Client struct {
	client *asynq.Client
	logger *logger.Logger
}

// ClientConfig contains configuration for the job client.
type ClientConfig struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// NewClient creates a new job client for enqueueing tasks.
func NewClient(cfg ClientConfig, log *logger.Logger) (*Client, error) {
	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}

	client := asynq.NewClient(redisOpt)

	return &Client{
		client: client,
		logger: log.With("component", "job_client"),
	}, nil
}

// Close closes the client connection.
func (c *Client) Close() error {
	return c.client.Close()
}

// EnqueueDocumentProcessing enqueues an ingestion job for a document.
func (c *Client) EnqueueDocumentProcessing(ctx context.Context, documentID shared.ID) error {
	task, err := NewDocumentProcessTask(DocumentProcessPayload{DocumentID: documentID.String()})
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}

	info, err := c.client.EnqueueContext(ctx, task)
	if err != nil {
		c.logger.Error("failed to enqueue document processing",
			"document_id", documentID.String(),
			"error", err,
		)
		return fmt.Errorf("failed to enqueue task: %w", err)
	}

	c.logger.Info("document processing queued",
		"task_id", info.ID,
		"document_id", documentID.String(),
		"queue", info.Queue,
	)
	return nil
}

// EnqueueStaleRecovery enqueues a sweep of documents stuck in processing.
// Duplicate sweeps already in the queue are skipped.
func (c *Client) EnqueueStaleRecovery(ctx context.Context) error {
	info, err := c.client.EnqueueContext(ctx, NewDocumentRecoverStaleTask())
	if err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			return nil
		}
		return fmt.Errorf("failed to enqueue task: %w", err)
	}

	c.logger.Debug("stale recovery queued", "task_id", info.ID, "queue", info.Queue)
	return nil
}
