package purchases

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	pkgcheckout "github.com/beatvault/beatvault-backend/pkg/checkout"
	"github.com/beatvault/beatvault-backend/pkg/db/dbtest"
	"github.com/beatvault/beatvault-backend/pkg/db/models"
	pkgerrors "github.com/beatvault/beatvault-backend/pkg/errors"
)

type stubSessions struct {
	sessions map[string]*stripe.CheckoutSession
}

func (s stubSessions) Lookup(_ context.Context, id string) (*stripe.CheckoutSession, error) {
	sess, ok := s.sessions[id]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "checkout session not found")
	}
	return sess, nil
}

type stubFiles struct {
	owners map[uuid.UUID]uuid.UUID
}

func (s stubFiles) FileReference(_ context.Context, compositionID uuid.UUID) (string, uuid.UUID, error) {
	owner, ok := s.owners[compositionID]
	if !ok {
		return "", uuid.Nil, pkgerrors.New(pkgerrors.CodeNotFound, "composition not found")
	}
	return "master/" + compositionID.String() + ".wav", owner, nil
}

func seedPurchase(t *testing.T, repo *Repository, userID uuid.UUID, sessionID string, compositionIDs ...uuid.UUID) *models.Purchase {
	t.Helper()
	purchase := &models.Purchase{
		UserID:      userID,
		SessionID:   sessionID,
		TotalAmount: decimal.NewFromInt(int64(20 * len(compositionIDs))),
		Currency:    "usd",
	}
	for i, id := range compositionIDs {
		purchase.Items = append(purchase.Items, models.PurchaseItem{
			CompositionID: id,
			Title:         fmt.Sprintf("Track %d", i),
			Artist:        "producer",
			LicenseID:     "basic",
			LicenseName:   "Basic",
			LicensePrice:  decimal.NewFromInt(20),
			CoverImage:    "cover.png",
			File:          "snapshot/" + id.String() + ".mp3",
		})
	}
	require.NoError(t, repo.Create(context.Background(), purchase))
	return purchase
}

func newTestService(t *testing.T, sessions stubSessions, files stubFiles) (Service, *Repository, *gorm.DB) {
	t.Helper()
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	svc, err := NewService(repo, sessions, files)
	require.NoError(t, err)
	return svc, repo, conn
}

func TestCreateRejectsDuplicateSession(t *testing.T) {
	_, repo, conn := newTestService(t, stubSessions{}, stubFiles{})
	userID := uuid.New()
	seedPurchase(t, repo, userID, "sess_dup", uuid.New())

	err := repo.Create(context.Background(), &models.Purchase{
		UserID:      userID,
		SessionID:   "sess_dup",
		TotalAmount: decimal.NewFromInt(20),
		Currency:    "usd",
	})
	require.ErrorIs(t, err, ErrDuplicateSession)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))

	var count int64
	require.NoError(t, conn.Model(&models.Purchase{}).Where("session_id = ?", "sess_dup").Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestFindBySessionIDKeepsItemOrder(t *testing.T) {
	_, repo, _ := newTestService(t, stubSessions{}, stubFiles{})
	first, second := uuid.New(), uuid.New()
	seedPurchase(t, repo, uuid.New(), "sess_order", first, second)

	got, err := repo.FindBySessionID(context.Background(), "sess_order")
	require.NoError(t, err)
	require.Len(t, got.Items, 2)
	assert.Equal(t, first, got.Items[0].CompositionID)
	assert.Equal(t, second, got.Items[1].CompositionID)
	assert.True(t, got.TotalAmount.Equal(decimal.NewFromInt(40)))
}

func TestListIsCallerScopedNewestFirst(t *testing.T) {
	svc, repo, conn := newTestService(t, stubSessions{}, stubFiles{})
	ctx := context.Background()
	alice, bob := uuid.New(), uuid.New()

	older := seedPurchase(t, repo, alice, "sess_a1", uuid.New())
	require.NoError(t, conn.Model(&models.Purchase{}).Where("id = ?", older.ID).
		Update("created_at", time.Now().Add(-time.Hour)).Error)
	newer := seedPurchase(t, repo, alice, "sess_a2", uuid.New())
	seedPurchase(t, repo, bob, "sess_b1", uuid.New())

	list, err := svc.List(ctx, alice)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, newer.ID, list[0].ID)
	assert.Equal(t, older.ID, list[1].ID)

	_, err = svc.Get(ctx, bob, newer.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	got, err := svc.Get(ctx, alice, newer.ID)
	require.NoError(t, err)
	assert.Equal(t, "sess_a2", got.SessionID)
}

func TestVerifyPayment(t *testing.T) {
	alice := uuid.New()
	sessions := stubSessions{sessions: map[string]*stripe.CheckoutSession{
		"sess_paid": {
			ID:            "sess_paid",
			PaymentStatus: stripe.CheckoutSessionPaymentStatusPaid,
			Metadata:      map[string]string{pkgcheckout.MetaUserID: alice.String()},
		},
		"sess_open": {
			ID:                "sess_open",
			PaymentStatus:     stripe.CheckoutSessionPaymentStatusUnpaid,
			ClientReferenceID: alice.String(),
		},
	}}
	svc, repo, _ := newTestService(t, sessions, stubFiles{})
	ctx := context.Background()
	purchase := seedPurchase(t, repo, alice, "sess_paid", uuid.New())

	status, err := svc.VerifyPayment(ctx, alice, "sess_paid")
	require.NoError(t, err)
	assert.True(t, status.Paid)
	assert.True(t, status.Recorded)
	require.NotNil(t, status.PurchaseID)
	assert.Equal(t, purchase.ID, *status.PurchaseID)

	status, err = svc.VerifyPayment(ctx, alice, "sess_open")
	require.NoError(t, err)
	assert.False(t, status.Paid)
	assert.False(t, status.Recorded)

	_, err = svc.VerifyPayment(ctx, uuid.New(), "sess_paid")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	_, err = svc.VerifyPayment(ctx, alice, "sess_missing")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestDownloadEntitlement(t *testing.T) {
	owner, buyer, stranger := uuid.New(), uuid.New(), uuid.New()
	compID := uuid.New()
	deletedComp := uuid.New()
	svc, repo, _ := newTestService(t, stubSessions{}, stubFiles{owners: map[uuid.UUID]uuid.UUID{compID: owner}})
	ctx := context.Background()
	seedPurchase(t, repo, buyer, "sess_dl", compID, deletedComp)

	dl, err := svc.Download(ctx, owner, compID)
	require.NoError(t, err)
	assert.Equal(t, "master/"+compID.String()+".wav", dl.File)

	dl, err = svc.Download(ctx, buyer, compID)
	require.NoError(t, err)
	assert.Equal(t, "snapshot/"+compID.String()+".mp3", dl.File)
	assert.Equal(t, "basic", dl.LicenseID)

	dl, err = svc.Download(ctx, buyer, deletedComp)
	require.NoError(t, err, "purchases outlive catalog deletion")
	assert.Equal(t, "snapshot/"+deletedComp.String()+".mp3", dl.File)

	_, err = svc.Download(ctx, stranger, compID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	_, err = svc.Download(ctx, stranger, uuid.New())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}
