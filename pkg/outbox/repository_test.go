package outbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/beatvault/beatvault-backend/pkg/db/dbtest"
	"github.com/beatvault/beatvault-backend/pkg/db/models"
	"github.com/beatvault/beatvault-backend/pkg/enums"
)

func TestDeletePublishedBeforeKeepsRecentAndRetryableRows(t *testing.T) {
	db := dbtest.Open(t)
	repo := NewRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()
	old := now.Add(-60 * 24 * time.Hour)

	insert := func(createdAt time.Time, publishedAt *time.Time, attempts int) uuid.UUID {
		row := &models.OutboxEvent{
			EventType:     enums.EventPurchaseCompleted,
			AggregateType: enums.AggregatePurchase,
			AggregateID:   uuid.New(),
			Payload:       []byte(`{}`),
			CreatedAt:     createdAt,
			PublishedAt:   publishedAt,
			AttemptCount:  attempts,
		}
		if err := repo.Insert(db, row); err != nil {
			t.Fatalf("insert: %v", err)
		}
		return row.ID
	}

	oldPublished := insert(old, &old, 0)
	recent := now.Add(-time.Hour)
	recentPublished := insert(recent, &recent, 0)
	deadLetter := insert(old, nil, 10)
	retryable := insert(old, nil, 2)

	cutoff := now.Add(-30 * 24 * time.Hour)
	deleted, err := repo.DeletePublishedBefore(ctx, db, cutoff, 10)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if deleted != 2 {
		t.Fatalf("expected 2 rows deleted, got %d", deleted)
	}

	var remaining []uuid.UUID
	if err := db.Model(&models.OutboxEvent{}).Order("created_at ASC").Pluck("id", &remaining).Error; err != nil {
		t.Fatalf("pluck: %v", err)
	}
	kept := map[uuid.UUID]bool{}
	for _, id := range remaining {
		kept[id] = true
	}
	if kept[oldPublished] || kept[deadLetter] {
		t.Fatalf("expired rows survived: %v", remaining)
	}
	if !kept[recentPublished] || !kept[retryable] {
		t.Fatalf("expected recent and retryable rows kept, got %v", remaining)
	}
}

func TestDeletePublishedBeforeRequiresTx(t *testing.T) {
	repo := NewRepository(nil)
	if _, err := repo.DeletePublishedBefore(context.Background(), nil, time.Now(), 0); err == nil {
		t.Fatal("expected error without transaction")
	}
}

func TestFetchPendingSkipsPublishedAndTerminalRows(t *testing.T) {
	db := dbtest.Open(t)
	repo := NewRepository(db)
	ctx := context.Background()

	newRow := func() *models.OutboxEvent {
		row := &models.OutboxEvent{
			EventType:     enums.EventPurchaseCompleted,
			AggregateType: enums.AggregatePurchase,
			AggregateID:   uuid.New(),
			Payload:       []byte(`{}`),
		}
		if err := repo.Insert(db, row); err != nil {
			t.Fatalf("insert: %v", err)
		}
		return row
	}
	published := newRow()
	failing := newRow()
	poisoned := newRow()
	pending := newRow()

	if err := repo.MarkPublished(ctx, published.ID); err != nil {
		t.Fatalf("mark published: %v", err)
	}
	if err := repo.MarkFailed(ctx, failing.ID, errors.New("topic unavailable")); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	if err := repo.MarkTerminal(ctx, poisoned.ID, errors.New("bad payload"), 5); err != nil {
		t.Fatalf("mark terminal: %v", err)
	}

	rows, err := repo.FetchPending(ctx, 10, 5)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	got := map[uuid.UUID]models.OutboxEvent{}
	for _, row := range rows {
		got[row.ID] = row
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 pending rows, got %d", len(got))
	}
	if _, ok := got[pending.ID]; !ok {
		t.Fatal("untouched row missing")
	}
	retry, ok := got[failing.ID]
	if !ok {
		t.Fatal("failed row should be retried")
	}
	if retry.AttemptCount != 1 || retry.LastError == nil || *retry.LastError != "topic unavailable" {
		t.Fatalf("unexpected failure bookkeeping: %+v", retry)
	}
}
