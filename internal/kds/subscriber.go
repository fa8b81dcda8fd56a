package kds

import (
	"context"
	"fmt"

	"github.com/appetiteclub/apt"
	"github.com/appetiteclub/apt/events"

	"github.com/expeditehq/expedite/pkg/event"
)

// BoardSubscriber feeds live order and order item events into the board
// cache so connected kitchen displays stay current without polling storage.
type BoardSubscriber struct {
	subscriber events.Subscriber
	cache      *BoardCache
	logger     apt.Logger
}

func NewBoardSubscriber(sub events.Subscriber, cache *BoardCache, logger apt.Logger) *BoardSubscriber {
	if logger == nil {
		logger = apt.NewNoopLogger()
	}
	return &BoardSubscriber{
		subscriber: sub,
		cache:      cache,
		logger:     logger,
	}
}

// Start warms the cache and subscribes to the order topics. The warmup is
// best effort; an empty cache heals itself as live events arrive.
func (s *BoardSubscriber) Start(ctx context.Context) error {
	if s.cache != nil {
		if err := s.cache.Warm(ctx); err != nil {
			s.logger.Info("board cache warmup failed", "error", err)
		}
	}
	if s.subscriber == nil {
		return fmt.Errorf("board subscriber not configured")
	}

	s.logger.Info("starting board subscriber", "topics", []string{event.OrdersTopic, event.OrderItemsTopic})

	if err := s.subscriber.Subscribe(ctx, event.OrdersTopic, s.cache.HandleOrderEvent); err != nil {
		return fmt.Errorf("cannot subscribe to %s: %w", event.OrdersTopic, err)
	}
	if err := s.subscriber.Subscribe(ctx, event.OrderItemsTopic, s.cache.HandleItemEvent); err != nil {
		return fmt.Errorf("cannot subscribe to %s: %w", event.OrderItemsTopic, err)
	}
	return nil
}
