package services

import (
	"context"

	"crewhall/src/models"
)

// EventPublisher receives lifecycle events after their transaction commits.
type EventPublisher interface {
	Publish(ctx context.Context, event models.GroupEvent) error
}

type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, models.GroupEvent) error {
	return nil
}
