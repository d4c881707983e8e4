package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/beatvault/beatvault-backend/pkg/db/dbtest"
	"github.com/beatvault/beatvault-backend/pkg/db/models"
	"github.com/beatvault/beatvault-backend/pkg/enums"
)

func TestEmitWritesEnvelopeOnTransaction(t *testing.T) {
	db := dbtest.Open(t)
	repo := NewRepository(db)
	svc := NewService(repo, nil)
	aggregateID := uuid.New()
	actorID := uuid.New()

	err := db.Transaction(func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventPurchaseCompleted,
			AggregateType: enums.AggregatePurchase,
			AggregateID:   aggregateID,
			Actor:         &ActorRef{UserID: actorID, Role: string(enums.UserRoleFree)},
			Data:          map[string]string{"session_id": "cs_1"},
		})
	})
	if err != nil {
		t.Fatalf("emit: %v", err)
	}

	rows, err := repo.FetchPending(context.Background(), 10, 0)
	if err != nil {
		t.Fatalf("fetch pending: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	if rows[0].AggregateID != aggregateID || rows[0].EventType != enums.EventPurchaseCompleted {
		t.Fatalf("unexpected row %+v", rows[0])
	}

	var envelope PayloadEnvelope
	if err := json.Unmarshal(rows[0].Payload, &envelope); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if envelope.Version != 1 || envelope.EventID == "" || envelope.Actor == nil || envelope.Actor.UserID != actorID {
		t.Fatalf("unexpected envelope %+v", envelope)
	}
}

func TestEmitIsDiscardedOnRollback(t *testing.T) {
	db := dbtest.Open(t)
	repo := NewRepository(db)
	svc := NewService(repo, nil)
	boom := errors.New("boom")

	err := db.Transaction(func(tx *gorm.DB) error {
		if err := svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventSubscriptionActivated,
			AggregateType: enums.AggregateUser,
			AggregateID:   uuid.New(),
			Data:          struct{}{},
		}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected rollback error, got %v", err)
	}

	rows, err := repo.FetchPending(context.Background(), 10, 0)
	if err != nil {
		t.Fatalf("fetch pending: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("expected no rows after rollback, got %d", len(rows))
	}
}

func TestEmitValidation(t *testing.T) {
	svc := NewService(NewRepository(nil), nil)
	if err := svc.Emit(context.Background(), nil, DomainEvent{}); err == nil {
		t.Fatal("expected transaction required error")
	}

	db := dbtest.Open(t)
	err := svc.Emit(context.Background(), db, DomainEvent{
		EventType:     enums.OutboxEventType("bogus"),
		AggregateType: enums.AggregateUser,
	})
	if err == nil {
		t.Fatal("expected unknown event type error")
	}
}

func TestRepositoryMarkPublishedAndFailed(t *testing.T) {
	db := dbtest.Open(t)
	repo := NewRepository(db)
	ctx := context.Background()

	published := &models.OutboxEvent{
		EventType:     enums.EventPurchaseCompleted,
		AggregateType: enums.AggregatePurchase,
		AggregateID:   uuid.New(),
		Payload:       []byte(`{}`),
	}
	failing := &models.OutboxEvent{
		EventType:     enums.EventSubscriptionCancelled,
		AggregateType: enums.AggregateUser,
		AggregateID:   uuid.New(),
		Payload:       []byte(`{}`),
	}
	for _, row := range []*models.OutboxEvent{published, failing} {
		if err := repo.Insert(db, row); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	if err := repo.MarkPublished(ctx, published.ID); err != nil {
		t.Fatalf("mark published: %v", err)
	}
	if err := repo.MarkFailed(ctx, failing.ID, errors.New("topic missing")); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	rows, err := repo.FetchPending(ctx, 10, 3)
	if err != nil {
		t.Fatalf("fetch pending: %v", err)
	}
	if len(rows) != 1 || rows[0].ID != failing.ID {
		t.Fatalf("expected only failing row pending, got %+v", rows)
	}
	if rows[0].AttemptCount != 1 || rows[0].LastError == nil || *rows[0].LastError != "topic missing" {
		t.Fatalf("unexpected failure bookkeeping %+v", rows[0])
	}

	rows, err = repo.FetchPending(ctx, 10, 1)
	if err != nil {
		t.Fatalf("fetch pending: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("expected exhausted row to be skipped, got %d", len(rows))
	}
}
