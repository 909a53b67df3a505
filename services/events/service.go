package events

import (
	"context"

	"github.com/asergian/beacon-sub001/dto"
	"github.com/asergian/beacon-sub001/interfaces"
	"github.com/asergian/beacon-sub001/internal/logger"
)

// NewEventPublisher connects to RabbitMQ. An empty url yields a publisher that only logs.
func NewEventPublisher(rabbitmqURL string, log logger.Logger, config *PublisherConfig) (interfaces.EventPublisher, error) {
	if rabbitmqURL == "" {
		log.Warn("RABBITMQ_URL not set, activity events will not be published")
		return &noopPublisher{log: log}, nil
	}
	publisher, err := NewRabbitMQPublisher(rabbitmqURL, log, config)
	if err != nil {
		return nil, err
	}
	return publisher, nil
}

type noopPublisher struct {
	log logger.Logger
}

func (p *noopPublisher) PublishPipelineCompleted(_ context.Context, event dto.PipelineCompleted) error {
	p.log.Debugf("Skipping publish of pipeline run %s for user %s", event.RequestID, event.UserID)
	return nil
}

func (p *noopPublisher) Close() error {
	return nil
}
