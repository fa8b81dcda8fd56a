package audit

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// MockEventRepo is an append-only in-memory test double for EventRepo
type MockEventRepo struct {
	Events     []*Event
	AppendFunc func(ctx context.Context, event *Event) error
}

func NewMockEventRepo() *MockEventRepo {
	return &MockEventRepo{Events: make([]*Event, 0)}
}

func (m *MockEventRepo) Append(ctx context.Context, event *Event) error {
	if m.AppendFunc != nil {
		return m.AppendFunc(ctx, event)
	}
	m.Events = append(m.Events, event)
	return nil
}

func (m *MockEventRepo) ListByEntity(ctx context.Context, entityID uuid.UUID) ([]*Event, error) {
	var out []*Event
	for _, e := range m.Events {
		if e.EntityID == entityID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *MockEventRepo) List(ctx context.Context, limit int) ([]*Event, error) {
	if limit <= 0 || limit > len(m.Events) {
		limit = len(m.Events)
	}
	return m.Events[:limit], nil
}

// MockPublisher captures published payloads by topic
type MockPublisher struct {
	Published   map[string][][]byte
	PublishFunc func(ctx context.Context, topic string, payload []byte) error
}

func NewMockPublisher() *MockPublisher {
	return &MockPublisher{Published: make(map[string][][]byte)}
}

func (m *MockPublisher) Publish(ctx context.Context, topic string, payload []byte) error {
	if m.PublishFunc != nil {
		return m.PublishFunc(ctx, topic, payload)
	}
	m.Published[topic] = append(m.Published[topic], payload)
	return nil
}

var errRepoDown = errors.New("repository unavailable")
