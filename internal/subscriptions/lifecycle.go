package subscriptions

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/beatvault/beatvault-backend/internal/users"
	pkgdb "github.com/beatvault/beatvault-backend/pkg/db"
	"github.com/beatvault/beatvault-backend/pkg/db/models"
	"github.com/beatvault/beatvault-backend/pkg/enums"
	pkgerrors "github.com/beatvault/beatvault-backend/pkg/errors"
	"github.com/beatvault/beatvault-backend/pkg/outbox"
	"github.com/beatvault/beatvault-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Lifecycle writes subscription state onto users and queues the matching
// outbox event in the same transaction. Webhooks, the cancel endpoint and
// the reconcile job all go through it.
type Lifecycle struct {
	tx     txRunner
	users  *users.Repository
	outbox outboxEmitter
}

func NewLifecycle(tx txRunner, repo *users.Repository, emitter outboxEmitter) (*Lifecycle, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if repo == nil {
		return nil, fmt.Errorf("users repository required")
	}
	if emitter == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	return &Lifecycle{tx: tx, users: repo, outbox: emitter}, nil
}

// Activate marks userID as an active pro subscriber. Re-activating with the
// same subscription id is a no-op.
func (l *Lifecycle) Activate(ctx context.Context, userID uuid.UUID, subscriptionID string, customerID *string) error {
	subscriptionID = strings.TrimSpace(subscriptionID)
	if userID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "subscription user id required")
	}
	if subscriptionID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "subscription id required")
	}
	return l.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := l.users.WithTx(tx)
		user, err := repo.FindByID(ctx, userID)
		if err != nil {
			if pkgdb.IsNotFound(err) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "subscription user not found")
			}
			return err
		}
		if isActiveWith(user, subscriptionID) {
			return nil
		}
		state := users.ActivePro(subscriptionID, customerID)
		if _, err := repo.UpdateSubscriptionState(ctx, userID, state); err != nil {
			return err
		}
		return l.emit(ctx, tx, enums.EventSubscriptionActivated, userID, subscriptionID, state)
	})
}

// CancelBySubscriptionID applies a cancellation to the user holding
// subscriptionID. It reports false when no user holds it.
func (l *Lifecycle) CancelBySubscriptionID(ctx context.Context, subscriptionID string) (bool, error) {
	subscriptionID = strings.TrimSpace(subscriptionID)
	if subscriptionID == "" {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "subscription id required")
	}
	found := false
	err := l.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := l.users.WithTx(tx)
		user, err := repo.FindBySubscriptionID(ctx, subscriptionID)
		if err != nil {
			if pkgdb.IsNotFound(err) {
				return nil
			}
			return err
		}
		found = true
		return l.cancel(ctx, tx, repo, user)
	})
	return found, err
}

// CancelUser applies a cancellation to userID.
func (l *Lifecycle) CancelUser(ctx context.Context, userID uuid.UUID) error {
	return l.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := l.users.WithTx(tx)
		user, err := repo.FindByID(ctx, userID)
		if err != nil {
			if pkgdb.IsNotFound(err) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
			}
			return err
		}
		return l.cancel(ctx, tx, repo, user)
	})
}

func (l *Lifecycle) cancel(ctx context.Context, tx *gorm.DB, repo *users.Repository, user *models.User) error {
	if user.SubscriptionStatus == enums.SubscriptionStatusCancelled && user.Role == enums.UserRoleFree {
		return nil
	}
	state := users.Cancelled()
	if _, err := repo.UpdateSubscriptionState(ctx, user.ID, state); err != nil {
		return err
	}
	subscriptionID := ""
	if user.SubscriptionID != nil {
		subscriptionID = *user.SubscriptionID
	}
	return l.emit(ctx, tx, enums.EventSubscriptionCancelled, user.ID, subscriptionID, state)
}

func (l *Lifecycle) emit(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, userID uuid.UUID, subscriptionID string, state users.SubscriptionState) error {
	return l.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateUser,
		AggregateID:   userID,
		Actor:         &outbox.ActorRef{UserID: userID, Role: string(state.Role)},
		Data: payloads.SubscriptionChangedEvent{
			UserID:         userID,
			SubscriptionID: subscriptionID,
			Role:           state.Role,
			Status:         state.Status,
		},
	})
}

func isActiveWith(user *models.User, subscriptionID string) bool {
	return user.Role == enums.UserRolePro &&
		user.SubscriptionStatus == enums.SubscriptionStatusActive &&
		user.SubscriptionID != nil && *user.SubscriptionID == subscriptionID
}
