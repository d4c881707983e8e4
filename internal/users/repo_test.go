package users

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/beatvault/beatvault-backend/pkg/db/dbtest"
	"github.com/beatvault/beatvault-backend/pkg/enums"
)

func TestRepositorySubscriptionLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(dbtest.Open(t))

	user, err := repo.Create(ctx, CreateUserDTO{Username: "mira", Email: " Mira@Example.com ", PasswordHash: "hash"})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if user.Email != "mira@example.com" {
		t.Fatalf("expected normalized email, got %q", user.Email)
	}
	if user.Role != enums.UserRoleFree || user.SubscriptionStatus != enums.SubscriptionStatusNone {
		t.Fatalf("unexpected defaults role=%s status=%s", user.Role, user.SubscriptionStatus)
	}

	byEmail, err := repo.FindByEmail(ctx, "MIRA@example.com")
	if err != nil || byEmail.ID != user.ID {
		t.Fatalf("find by email: %v", err)
	}

	customer := "cus_123"
	rows, err := repo.UpdateSubscriptionState(ctx, user.ID, ActivePro("sub_123", &customer))
	if err != nil || rows != 1 {
		t.Fatalf("activate: rows=%d err=%v", rows, err)
	}

	bySub, err := repo.FindBySubscriptionID(ctx, "sub_123")
	if err != nil {
		t.Fatalf("find by subscription: %v", err)
	}
	if bySub.Role != enums.UserRolePro || bySub.SubscriptionStatus != enums.SubscriptionStatusActive {
		t.Fatalf("expected active pro, got role=%s status=%s", bySub.Role, bySub.SubscriptionStatus)
	}
	if bySub.StripeCustomerID == nil || *bySub.StripeCustomerID != customer {
		t.Fatalf("expected customer id stored, got %v", bySub.StripeCustomerID)
	}

	active, err := repo.ListActiveSubscribers(ctx, uuid.Nil, 10)
	if err != nil || len(active) != 1 {
		t.Fatalf("list active: len=%d err=%v", len(active), err)
	}

	if _, err := repo.UpdateSubscriptionState(ctx, user.ID, Cancelled()); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	after, err := repo.FindByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("find by id: %v", err)
	}
	if after.Role != enums.UserRoleFree || after.SubscriptionStatus != enums.SubscriptionStatusCancelled {
		t.Fatalf("expected cancelled free, got role=%s status=%s", after.Role, after.SubscriptionStatus)
	}
	if after.SubscriptionID == nil || *after.SubscriptionID != "sub_123" {
		t.Fatalf("expected subscription id retained")
	}

	active, err = repo.ListActiveSubscribers(ctx, uuid.Nil, 10)
	if err != nil || len(active) != 0 {
		t.Fatalf("expected no active subscribers, got %d err=%v", len(active), err)
	}
}

func TestUpdateSubscriptionStateUnknownUser(t *testing.T) {
	repo := NewRepository(dbtest.Open(t))
	rows, err := repo.UpdateSubscriptionState(context.Background(), uuid.New(), Cancelled())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rows != 0 {
		t.Fatalf("expected no rows, got %d", rows)
	}
}
