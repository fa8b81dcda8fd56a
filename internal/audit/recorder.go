package audit

import (
	"context"
	"encoding/json"

	"github.com/appetiteclub/apt"
	"github.com/appetiteclub/apt/events"

	"github.com/expeditehq/expedite/pkg"
)

// Recorder appends audit records and mirrors them to the event bus.
// Persistence is authoritative; publication is best effort.
type Recorder struct {
	repo      EventRepo
	publisher events.Publisher
	logger    apt.Logger
}

func NewRecorder(repo EventRepo, publisher events.Publisher, logger apt.Logger) *Recorder {
	if logger == nil {
		logger = apt.NewNoopLogger()
	}
	return &Recorder{
		repo:      repo,
		publisher: publisher,
		logger:    logger,
	}
}

func (r *Recorder) Record(ctx context.Context, event *Event) error {
	if err := r.repo.Append(ctx, event); err != nil {
		return err
	}

	if r.publisher == nil {
		return nil
	}

	evt := pkg.AuditEvent{
		EventType:  pkg.EventAuditRecorded,
		EntityType: event.EntityType,
		EntityID:   event.EntityID.String(),
		Action:     event.Action,
		OldValue:   event.OldValue,
		NewValue:   event.NewValue,
		ActorID:    event.ActorID.String(),
		OccurredAt: event.OccurredAt,
	}

	payload, err := json.Marshal(evt)
	if err != nil {
		r.logger.Error("cannot marshal audit event", "error", err, "entity_id", event.EntityID.String())
		return nil
	}
	if err := r.publisher.Publish(ctx, pkg.AuditTopic, payload); err != nil {
		r.logger.Error("cannot publish audit event", "error", err, "entity_id", event.EntityID.String())
	}
	return nil
}
