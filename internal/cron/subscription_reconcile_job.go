package cron

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/beatvault/beatvault-backend/internal/subscriptions"
	"github.com/beatvault/beatvault-backend/pkg/db/models"
	"github.com/beatvault/beatvault-backend/pkg/logger"
)

const defaultReconcileBatch = 100

type subscriberLister interface {
	ListActiveSubscribers(ctx context.Context, afterID uuid.UUID, limit int) ([]models.User, error)
}

type subscriptionCanceller interface {
	CancelUser(ctx context.Context, userID uuid.UUID) error
}

type SubscriptionReconcileJobParams struct {
	Logger    *logger.Logger
	Users     subscriberLister
	Stripe    subscriptions.StripeSubscriptionClient
	Lifecycle subscriptionCanceller
	BatchSize int
}

// NewSubscriptionReconcileJob builds the job that catches cancellations whose
// webhook never arrived.
func NewSubscriptionReconcileJob(params SubscriptionReconcileJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Users == nil {
		return nil, fmt.Errorf("users repository required")
	}
	if params.Stripe == nil {
		return nil, fmt.Errorf("stripe client required")
	}
	if params.Lifecycle == nil {
		return nil, fmt.Errorf("subscription lifecycle required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultReconcileBatch
	}
	return &subscriptionReconcileJob{
		logg:      params.Logger,
		users:     params.Users,
		stripe:    params.Stripe,
		lifecycle: params.Lifecycle,
		batch:     batch,
	}, nil
}

type subscriptionReconcileJob struct {
	logg      *logger.Logger
	users     subscriberLister
	stripe    subscriptions.StripeSubscriptionClient
	lifecycle subscriptionCanceller
	batch     int
}

func (j *subscriptionReconcileJob) Name() string { return "subscription-reconcile" }

// Run walks every active subscriber. A failure on one user does not stop the
// walk; all per-user errors are returned together.
func (j *subscriptionReconcileJob) Run(ctx context.Context) error {
	var (
		errs      error
		checked   int
		cancelled int
		cursor    = uuid.Nil
	)
	for {
		page, err := j.users.ListActiveSubscribers(ctx, cursor, j.batch)
		if err != nil {
			return multierr.Append(errs, fmt.Errorf("list active subscribers: %w", err))
		}
		for i := range page {
			user := &page[i]
			checked++
			ended, err := j.reconcileUser(ctx, user)
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("user %s: %w", user.ID, err))
				continue
			}
			if ended {
				cancelled++
			}
		}
		if len(page) < j.batch {
			break
		}
		cursor = page[len(page)-1].ID
	}

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"checked":   checked,
		"cancelled": cancelled,
		"failed":    len(multierr.Errors(errs)),
	}), "subscription reconcile complete")
	return errs
}

func (j *subscriptionReconcileJob) reconcileUser(ctx context.Context, user *models.User) (bool, error) {
	if user.SubscriptionID == nil || strings.TrimSpace(*user.SubscriptionID) == "" {
		return false, nil
	}
	subID := *user.SubscriptionID
	logCtx := j.logg.WithUserID(ctx, user.ID.String())
	logCtx = j.logg.WithField(logCtx, "subscription_id", subID)

	remote, err := j.stripe.Get(logCtx, subID)
	switch {
	case subscriptions.IsMissingResource(err):
		j.logg.Warn(logCtx, "subscription missing at stripe; cancelling locally")
	case err != nil:
		return false, fmt.Errorf("fetch stripe subscription: %w", err)
	case !subscriptions.IsEnded(remote):
		return false, nil
	}

	if err := j.lifecycle.CancelUser(logCtx, user.ID); err != nil {
		return false, fmt.Errorf("cancel locally: %w", err)
	}
	j.logg.Info(logCtx, "subscription cancelled by reconcile")
	return true, nil
}
