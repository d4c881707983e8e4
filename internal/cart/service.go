package cart

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"gorm.io/gorm"

	"github.com/beatvault/beatvault-backend/internal/catalog"
	pkgdb "github.com/beatvault/beatvault-backend/pkg/db"
	"github.com/beatvault/beatvault-backend/pkg/db/models"
	pkgerrors "github.com/beatvault/beatvault-backend/pkg/errors"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type licenseResolver interface {
	LicenseFor(ctx context.Context, compositionID uuid.UUID, licenseID string) (catalog.LicenseSnapshot, error)
}

// Service exposes the per-user cart operations.
type Service interface {
	Add(ctx context.Context, userID, compositionID uuid.UUID, licenseID string) (*Entry, error)
	Remove(ctx context.Context, userID, compositionID uuid.UUID) error
	SetLicense(ctx context.Context, userID, compositionID uuid.UUID, licenseID string) (*Entry, error)
	List(ctx context.Context, userID uuid.UUID) ([]Entry, error)
	Replace(ctx context.Context, userID uuid.UUID, selections []Selection) ([]Entry, error)
	Clear(ctx context.Context, userID uuid.UUID) error
}

type service struct {
	repo    *Repository
	tx      txRunner
	catalog licenseResolver
}

// NewService builds a cart service backed by the provided stack.
func NewService(repo *Repository, tx txRunner, resolver licenseResolver) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if resolver == nil {
		return nil, fmt.Errorf("license resolver required")
	}
	return &service{repo: repo, tx: tx, catalog: resolver}, nil
}

func (s *service) Add(ctx context.Context, userID, compositionID uuid.UUID, licenseID string) (*Entry, error) {
	if err := validateKey(userID, compositionID, licenseID); err != nil {
		return nil, err
	}
	snap, err := s.catalog.LicenseFor(ctx, compositionID, strings.TrimSpace(licenseID))
	if err != nil {
		return nil, err
	}

	entry := &models.CartEntry{UserID: userID}
	applySnapshot(entry, snap)
	if err := s.repo.Create(ctx, entry); err != nil {
		if pkgdb.IsUniqueViolation(err, uniqueEntryIndex) {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "license already in cart")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "add cart entry")
	}
	out := toEntry(*entry)
	return &out, nil
}

func (s *service) Remove(ctx context.Context, userID, compositionID uuid.UUID) error {
	if userID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity required")
	}
	if compositionID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "composition id is required")
	}
	if err := s.repo.DeleteByComposition(ctx, userID, compositionID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "remove cart entry")
	}
	return nil
}

// SetLicense switches the license of a composition already in the cart.
// Selecting the license already held is a no-op.
func (s *service) SetLicense(ctx context.Context, userID, compositionID uuid.UUID, licenseID string) (*Entry, error) {
	if err := validateKey(userID, compositionID, licenseID); err != nil {
		return nil, err
	}
	licenseID = strings.TrimSpace(licenseID)

	existing, err := s.repo.FindExact(ctx, userID, compositionID, licenseID)
	switch {
	case err == nil:
		out := toEntry(*existing)
		return &out, nil
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load cart entry")
	}

	current, err := s.repo.FindByComposition(ctx, userID, compositionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "composition not in cart")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load cart entry")
	}

	snap, err := s.catalog.LicenseFor(ctx, compositionID, licenseID)
	if err != nil {
		return nil, err
	}
	applySnapshot(current, snap)
	if err := s.repo.UpdateLicense(ctx, current); err != nil {
		if pkgdb.IsUniqueViolation(err, uniqueEntryIndex) {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "license already in cart")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "switch license")
	}
	out := toEntry(*current)
	return &out, nil
}

func (s *service) List(ctx context.Context, userID uuid.UUID) ([]Entry, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity required")
	}
	rows, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list cart")
	}
	return lo.Map(rows, func(row models.CartEntry, _ int) Entry { return toEntry(row) }), nil
}

// Replace swaps the whole cart for selections, re-snapshotting each one.
func (s *service) Replace(ctx context.Context, userID uuid.UUID, selections []Selection) ([]Entry, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity required")
	}
	seen := make(map[EntryKey]struct{}, len(selections))
	entries := make([]models.CartEntry, 0, len(selections))
	for _, sel := range selections {
		if err := validateKey(userID, sel.CompositionID, sel.LicenseID); err != nil {
			return nil, err
		}
		key := EntryKey{CompositionID: sel.CompositionID, LicenseID: strings.TrimSpace(sel.LicenseID)}
		if _, dup := seen[key]; dup {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "duplicate selection in request")
		}
		seen[key] = struct{}{}

		snap, err := s.catalog.LicenseFor(ctx, key.CompositionID, key.LicenseID)
		if err != nil {
			return nil, err
		}
		entry := models.CartEntry{UserID: userID}
		applySnapshot(&entry, snap)
		entries = append(entries, entry)
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.DeleteByUser(ctx, userID); err != nil {
			return err
		}
		return repo.CreateBatch(ctx, entries)
	})
	if err != nil {
		if pkgdb.IsUniqueViolation(err, uniqueEntryIndex) {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "cart changed concurrently")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "replace cart")
	}
	return s.List(ctx, userID)
}

func (s *service) Clear(ctx context.Context, userID uuid.UUID) error {
	if userID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity required")
	}
	if err := s.repo.DeleteByUser(ctx, userID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "clear cart")
	}
	return nil
}

func validateKey(userID, compositionID uuid.UUID, licenseID string) error {
	if userID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity required")
	}
	if compositionID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "composition id is required")
	}
	if strings.TrimSpace(licenseID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "license id is required")
	}
	return nil
}
