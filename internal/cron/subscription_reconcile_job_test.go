package cron

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v84"
	"go.uber.org/multierr"

	"github.com/beatvault/beatvault-backend/internal/subscriptions"
	"github.com/beatvault/beatvault-backend/internal/users"
	pkgdb "github.com/beatvault/beatvault-backend/pkg/db"
	"github.com/beatvault/beatvault-backend/pkg/db/dbtest"
	"github.com/beatvault/beatvault-backend/pkg/enums"
	"github.com/beatvault/beatvault-backend/pkg/logger"
	"github.com/beatvault/beatvault-backend/pkg/outbox"
)

type remoteSubscriptions struct {
	status map[string]stripe.SubscriptionStatus
	errs   map[string]error
	gets   []string
}

func (r *remoteSubscriptions) Get(_ context.Context, id string) (*stripe.Subscription, error) {
	r.gets = append(r.gets, id)
	if err, ok := r.errs[id]; ok {
		return nil, err
	}
	return &stripe.Subscription{ID: id, Status: r.status[id]}, nil
}

func (r *remoteSubscriptions) Cancel(context.Context, string) (*stripe.Subscription, error) {
	return nil, errors.New("not used")
}

type reconcileFixture struct {
	users     *users.Repository
	lifecycle *subscriptions.Lifecycle
	remote    *remoteSubscriptions
}

func newReconcileFixture(t *testing.T) *reconcileFixture {
	t.Helper()
	conn := dbtest.Open(t)
	repo := users.NewRepository(conn)
	lifecycle, err := subscriptions.NewLifecycle(pkgdb.NewFromConn(conn), repo, outbox.NewService(outbox.NewRepository(conn), nil))
	require.NoError(t, err)
	return &reconcileFixture{
		users:     repo,
		lifecycle: lifecycle,
		remote: &remoteSubscriptions{
			status: map[string]stripe.SubscriptionStatus{},
			errs:   map[string]error{},
		},
	}
}

func (f *reconcileFixture) subscriber(t *testing.T, name, subID string, remote stripe.SubscriptionStatus) uuid.UUID {
	t.Helper()
	ctx := context.Background()
	user, err := f.users.Create(ctx, users.CreateUserDTO{Username: name, Email: name + "@example.com", PasswordHash: "hash"})
	require.NoError(t, err)
	require.NoError(t, f.lifecycle.Activate(ctx, user.ID, subID, nil))
	f.remote.status[subID] = remote
	return user.ID
}

func (f *reconcileFixture) job(t *testing.T, batch int) Job {
	t.Helper()
	job, err := NewSubscriptionReconcileJob(SubscriptionReconcileJobParams{
		Logger:    logger.New(logger.Options{ServiceName: "cron-test"}),
		Users:     f.users,
		Stripe:    f.remote,
		Lifecycle: f.lifecycle,
		BatchSize: batch,
	})
	require.NoError(t, err)
	return job
}

func (f *reconcileFixture) status(t *testing.T, id uuid.UUID) enums.SubscriptionStatus {
	t.Helper()
	user, err := f.users.FindByID(context.Background(), id)
	require.NoError(t, err)
	return user.SubscriptionStatus
}

func TestSubscriptionReconcileCancelsEndedSubscriptionsAcrossPages(t *testing.T) {
	f := newReconcileFixture(t)
	active := f.subscriber(t, "alpha", "sub_active", stripe.SubscriptionStatusActive)
	canceled := f.subscriber(t, "bravo", "sub_canceled", stripe.SubscriptionStatusCanceled)
	expired := f.subscriber(t, "charlie", "sub_expired", stripe.SubscriptionStatusIncompleteExpired)

	require.NoError(t, f.job(t, 2).Run(context.Background()))

	assert.Len(t, f.remote.gets, 3)
	assert.Equal(t, enums.SubscriptionStatusActive, f.status(t, active))
	assert.Equal(t, enums.SubscriptionStatusCancelled, f.status(t, canceled))
	assert.Equal(t, enums.SubscriptionStatusCancelled, f.status(t, expired))
}

func TestSubscriptionReconcileTreatsMissingRemoteAsCancelled(t *testing.T) {
	f := newReconcileFixture(t)
	id := f.subscriber(t, "delta", "sub_gone", stripe.SubscriptionStatusActive)
	f.remote.errs["sub_gone"] = &stripe.Error{HTTPStatusCode: http.StatusNotFound, Code: stripe.ErrorCodeResourceMissing}

	require.NoError(t, f.job(t, 10).Run(context.Background()))
	assert.Equal(t, enums.SubscriptionStatusCancelled, f.status(t, id))
}

func TestSubscriptionReconcileAggregatesPerUserErrors(t *testing.T) {
	f := newReconcileFixture(t)
	first := f.subscriber(t, "echo", "sub_e", stripe.SubscriptionStatusActive)
	second := f.subscriber(t, "foxtrot", "sub_f", stripe.SubscriptionStatusActive)
	ended := f.subscriber(t, "golf", "sub_g", stripe.SubscriptionStatusCanceled)
	f.remote.errs["sub_e"] = errors.New("stripe timeout")
	f.remote.errs["sub_f"] = &stripe.Error{HTTPStatusCode: http.StatusInternalServerError}

	err := f.job(t, 10).Run(context.Background())
	require.Error(t, err)
	assert.Len(t, multierr.Errors(err), 2)

	assert.Equal(t, enums.SubscriptionStatusActive, f.status(t, first))
	assert.Equal(t, enums.SubscriptionStatusActive, f.status(t, second))
	assert.Equal(t, enums.SubscriptionStatusCancelled, f.status(t, ended))
}

func TestNewSubscriptionReconcileJobValidatesParams(t *testing.T) {
	_, err := NewSubscriptionReconcileJob(SubscriptionReconcileJobParams{Logger: logger.New(logger.Options{ServiceName: "cron-test"})})
	assert.Error(t, err)
}
