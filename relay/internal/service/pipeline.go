package service

import (
	"context"
	"log/slog"

	"basegraph.app/relay/core/db"
	"basegraph.app/relay/internal/llm"
	"basegraph.app/relay/internal/queue"
	"basegraph.app/relay/internal/store"
)

// Pipeline handles the event processing pipeline (currently empty)
type Pipeline struct {
	store     *store.Store
	consumer  *queue.RedisConsumer
	llmClient llm.Client
	logger    *slog.Logger
}

// NewPipeline creates a new pipeline instance
func NewPipeline(database *db.DB, consumer *queue.RedisConsumer, llmClient llm.Client, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		store:     store.New(database.Queries()),
		consumer:  consumer,
		llmClient: llmClient,
		logger:    logger,
	}
}

// ProcessIssue processes a single issue event (placeholder implementation)
func (p *Pipeline) ProcessIssue(ctx context.Context, eventLogID int64) error {
	p.logger.InfoContext(ctx, "processing issue event", "event_log_id", eventLogID)
	// TODO: Implement actual pipeline processing
	return nil
}
