// Package purchases serves the caller-scoped view of the purchase ledger and
// the entitlement checks built on it.
package purchases

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/stripe/stripe-go/v84"

	pkgcheckout "github.com/beatvault/beatvault-backend/pkg/checkout"
	pkgdb "github.com/beatvault/beatvault-backend/pkg/db"
	"github.com/beatvault/beatvault-backend/pkg/db/models"
	pkgerrors "github.com/beatvault/beatvault-backend/pkg/errors"
)

type sessionLookup interface {
	Lookup(ctx context.Context, sessionID string) (*stripe.CheckoutSession, error)
}

type fileResolver interface {
	FileReference(ctx context.Context, compositionID uuid.UUID) (string, uuid.UUID, error)
}

type Service interface {
	List(ctx context.Context, userID uuid.UUID) ([]PurchaseDTO, error)
	Get(ctx context.Context, userID, purchaseID uuid.UUID) (*PurchaseDTO, error)
	VerifyPayment(ctx context.Context, userID uuid.UUID, sessionID string) (*PaymentStatus, error)
	Download(ctx context.Context, userID, compositionID uuid.UUID) (*Download, error)
}

type service struct {
	repo     *Repository
	sessions sessionLookup
	files    fileResolver
}

func NewService(repo *Repository, sessions sessionLookup, files fileResolver) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("purchases repository required")
	}
	if sessions == nil {
		return nil, fmt.Errorf("session lookup required")
	}
	if files == nil {
		return nil, fmt.Errorf("file resolver required")
	}
	return &service{repo: repo, sessions: sessions, files: files}, nil
}

func (s *service) List(ctx context.Context, userID uuid.UUID) ([]PurchaseDTO, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity required")
	}
	rows, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list purchases")
	}
	return lo.Map(rows, func(p models.Purchase, _ int) PurchaseDTO { return toPurchaseDTO(p) }), nil
}

// Get returns the purchase only when it belongs to userID. Another user's
// purchase is reported as missing.
func (s *service) Get(ctx context.Context, userID, purchaseID uuid.UUID) (*PurchaseDTO, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity required")
	}
	purchase, err := s.repo.FindByID(ctx, purchaseID)
	if err != nil {
		if pkgdb.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "purchase not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load purchase")
	}
	if purchase.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "purchase not found")
	}
	dto := toPurchaseDTO(*purchase)
	return &dto, nil
}

func (s *service) VerifyPayment(ctx context.Context, userID uuid.UUID, sessionID string) (*PaymentStatus, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity required")
	}
	sess, err := s.sessions.Lookup(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if owner := sessionOwner(sess); owner != userID.String() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "checkout session belongs to another user")
	}

	status := &PaymentStatus{
		SessionID: sess.ID,
		Status:    string(sess.PaymentStatus),
		Paid: sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid ||
			sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusNoPaymentRequired,
	}
	purchase, err := s.repo.FindBySessionID(ctx, sess.ID)
	switch {
	case err == nil:
		status.Recorded = true
		status.PurchaseID = &purchase.ID
	case !pkgdb.IsNotFound(err):
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load purchase for session")
	}
	return status, nil
}

// Download releases the file to the composition's owner or to a buyer.
// Buyers receive the file captured in their purchase snapshot.
func (s *service) Download(ctx context.Context, userID, compositionID uuid.UUID) (*Download, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity required")
	}
	file, ownerID, err := s.files.FileReference(ctx, compositionID)
	if err != nil && !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		return nil, err
	}
	if err == nil && ownerID == userID {
		return &Download{CompositionID: compositionID, File: file}, nil
	}

	item, itemErr := s.repo.FindOwnedItem(ctx, userID, compositionID)
	if itemErr != nil {
		if pkgdb.IsNotFound(itemErr) {
			if err != nil {
				return nil, err
			}
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "composition not purchased")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, itemErr, "check purchase entitlement")
	}
	return &Download{CompositionID: compositionID, LicenseID: item.LicenseID, File: item.File}, nil
}

func sessionOwner(sess *stripe.CheckoutSession) string {
	if sess == nil {
		return ""
	}
	if owner := sess.Metadata[pkgcheckout.MetaUserID]; owner != "" {
		return owner
	}
	return sess.ClientReferenceID
}
