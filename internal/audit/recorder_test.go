package audit

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"

	"github.com/expeditehq/expedite/pkg"
)

func TestRecorderRecord(t *testing.T) {
	repo := NewMockEventRepo()
	publisher := NewMockPublisher()
	recorder := NewRecorder(repo, publisher, nil)

	entityID := uuid.New()
	evt := NewEvent(EntityOrder, entityID, ActionCreated)
	evt.NewValue = "placed"
	evt.ActorID = uuid.New()

	if err := recorder.Record(context.Background(), evt); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	if len(repo.Events) != 1 {
		t.Fatalf("persisted events = %d, want 1", len(repo.Events))
	}
	if repo.Events[0].Action != ActionCreated {
		t.Errorf("action = %s, want %s", repo.Events[0].Action, ActionCreated)
	}

	payloads := publisher.Published[pkg.AuditTopic]
	if len(payloads) != 1 {
		t.Fatalf("published payloads = %d, want 1", len(payloads))
	}

	var mirrored pkg.AuditEvent
	if err := json.Unmarshal(payloads[0], &mirrored); err != nil {
		t.Fatalf("decode mirrored event: %v", err)
	}
	if mirrored.EventType != pkg.EventAuditRecorded {
		t.Errorf("event type = %s, want %s", mirrored.EventType, pkg.EventAuditRecorded)
	}
	if mirrored.EntityID != entityID.String() {
		t.Errorf("entity id = %s, want %s", mirrored.EntityID, entityID)
	}
	if mirrored.NewValue != "placed" {
		t.Errorf("new value = %s, want placed", mirrored.NewValue)
	}
}

func TestRecorderPersistenceFailureIsFatal(t *testing.T) {
	repo := NewMockEventRepo()
	repo.AppendFunc = func(ctx context.Context, event *Event) error {
		return errRepoDown
	}
	publisher := NewMockPublisher()
	recorder := NewRecorder(repo, publisher, nil)

	err := recorder.Record(context.Background(), NewEvent(EntityOrder, uuid.New(), ActionCreated))
	if err == nil {
		t.Fatal("Record() should propagate repository failure")
	}
	if len(publisher.Published) != 0 {
		t.Error("nothing should be published when persistence fails")
	}
}

func TestRecorderPublishFailureIsBestEffort(t *testing.T) {
	repo := NewMockEventRepo()
	publisher := NewMockPublisher()
	publisher.PublishFunc = func(ctx context.Context, topic string, payload []byte) error {
		return errRepoDown
	}
	recorder := NewRecorder(repo, publisher, nil)

	if err := recorder.Record(context.Background(), NewEvent(EntityTable, uuid.New(), ActionTableStatusChanged)); err != nil {
		t.Fatalf("Record() error = %v, publish failures must not surface", err)
	}
	if len(repo.Events) != 1 {
		t.Errorf("persisted events = %d, want 1", len(repo.Events))
	}
}

func TestRecorderWithoutPublisher(t *testing.T) {
	repo := NewMockEventRepo()
	recorder := NewRecorder(repo, nil, nil)

	if err := recorder.Record(context.Background(), NewEvent(EntityOrderItem, uuid.New(), ActionItemStatusChanged)); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if len(repo.Events) != 1 {
		t.Errorf("persisted events = %d, want 1", len(repo.Events))
	}
}

func TestEventRepoListByEntity(t *testing.T) {
	repo := NewMockEventRepo()
	ctx := context.Background()

	target := uuid.New()
	other := uuid.New()

	_ = repo.Append(ctx, NewEvent(EntityOrder, target, ActionCreated))
	_ = repo.Append(ctx, NewEvent(EntityOrder, other, ActionCreated))
	_ = repo.Append(ctx, NewEvent(EntityOrder, target, ActionOrderStatusDerived))

	events, err := repo.ListByEntity(ctx, target)
	if err != nil {
		t.Fatalf("ListByEntity() error = %v", err)
	}
	if len(events) != 2 {
		t.Errorf("events = %d, want 2", len(events))
	}
}
