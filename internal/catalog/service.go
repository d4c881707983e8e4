package catalog

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/beatvault/beatvault-backend/pkg/db/models"
	"github.com/beatvault/beatvault-backend/pkg/enums"
	pkgerrors "github.com/beatvault/beatvault-backend/pkg/errors"
	"github.com/beatvault/beatvault-backend/pkg/pagination"
)

const (
	maxTags = 3
	// basicLicenseID is offered at the composition's base price when the
	// producer has not priced any tier.
	basicLicenseID = "basic"
)

var (
	audioExtensions = []string{".mp3", ".wav", ".ogg", ".flac"}
	imageExtensions = []string{".jpg", ".jpeg", ".png", ".gif"}
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type listenLimiter interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// Service exposes the catalog read and write paths.
type Service interface {
	CreateComposition(ctx context.Context, artistID uuid.UUID, input CompositionInput) (*CompositionDTO, error)
	UpdateComposition(ctx context.Context, actorID, compositionID uuid.UUID, input CompositionInput) (*CompositionDTO, error)
	DeleteComposition(ctx context.Context, actorID, compositionID uuid.UUID) error
	GetComposition(ctx context.Context, compositionID uuid.UUID) (*CompositionDTO, error)
	ListCompositions(ctx context.Context, filter ListFilter, page pagination.Params) (*ListResult, error)
	ListLicenses(ctx context.Context) ([]LicenseDTO, error)
	GetLicense(ctx context.Context, licenseID string) (*LicenseDTO, error)
	LicenseFor(ctx context.Context, compositionID uuid.UUID, licenseID string) (LicenseSnapshot, error)
	RecordListen(ctx context.Context, compositionID uuid.UUID, listenerKey string) (bool, error)
	FileReference(ctx context.Context, compositionID uuid.UUID) (string, uuid.UUID, error)
}

type service struct {
	repo        *Repository
	tx          txRunner
	limiter     listenLimiter
	dedupWindow time.Duration
	now         func() time.Time
}

// NewService builds the catalog service. limiter may be nil, in which case
// every listen is recorded.
func NewService(repo *Repository, tx txRunner, limiter listenLimiter, dedupWindow time.Duration) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("catalog repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &service{
		repo:        repo,
		tx:          tx,
		limiter:     limiter,
		dedupWindow: dedupWindow,
		now:         time.Now,
	}, nil
}

func (s *service) CreateComposition(ctx context.Context, artistID uuid.UUID, input CompositionInput) (*CompositionDTO, error) {
	if artistID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "artist identity required")
	}
	composition, err := s.buildComposition(ctx, input)
	if err != nil {
		return nil, err
	}
	composition.ArtistID = artistID

	if err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.repo.WithTx(tx).CreateComposition(ctx, composition)
	}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create composition")
	}
	return s.GetComposition(ctx, composition.ID)
}

func (s *service) UpdateComposition(ctx context.Context, actorID, compositionID uuid.UUID, input CompositionInput) (*CompositionDTO, error) {
	if _, err := s.ownedComposition(ctx, actorID, compositionID); err != nil {
		return nil, err
	}
	composition, err := s.buildComposition(ctx, input)
	if err != nil {
		return nil, err
	}
	composition.ID = compositionID
	composition.ArtistID = actorID

	if err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.repo.WithTx(tx).UpdateComposition(ctx, composition)
	}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update composition")
	}
	return s.GetComposition(ctx, compositionID)
}

func (s *service) DeleteComposition(ctx context.Context, actorID, compositionID uuid.UUID) error {
	if _, err := s.ownedComposition(ctx, actorID, compositionID); err != nil {
		return err
	}
	if err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.repo.WithTx(tx).DeleteComposition(ctx, compositionID)
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "delete composition")
	}
	return nil
}

func (s *service) GetComposition(ctx context.Context, compositionID uuid.UUID) (*CompositionDTO, error) {
	composition, err := s.findComposition(ctx, compositionID)
	if err != nil {
		return nil, err
	}
	dto := toCompositionDTO(*composition)
	return &dto, nil
}

func (s *service) ListCompositions(ctx context.Context, filter ListFilter, page pagination.Params) (*ListResult, error) {
	if filter.Genre != "" && !filter.Genre.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid genre")
	}
	if filter.Key != "" && !filter.Key.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid key")
	}
	if filter.MinBPM < 0 || filter.MaxBPM < 0 || (filter.MaxBPM > 0 && filter.MinBPM > filter.MaxBPM) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid bpm range")
	}
	page = page.Normalize()
	rows, total, err := s.repo.ListCompositions(ctx, filter, page)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list compositions")
	}
	return &ListResult{
		Items: lo.Map(rows, func(row models.Composition, _ int) CompositionDTO { return toCompositionDTO(row) }),
		Total: total,
		Page:  page.Page,
		Limit: page.Limit,
	}, nil
}

func (s *service) ListLicenses(ctx context.Context) ([]LicenseDTO, error) {
	rows, err := s.repo.ListLicenses(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list licenses")
	}
	return lo.Map(rows, func(row models.License, _ int) LicenseDTO { return toLicenseDTO(row) }), nil
}

func (s *service) GetLicense(ctx context.Context, licenseID string) (*LicenseDTO, error) {
	licenseID = strings.TrimSpace(licenseID)
	if licenseID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "license id is required")
	}
	license, err := s.repo.FindLicense(ctx, licenseID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "license not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load license")
	}
	dto := toLicenseDTO(*license)
	return &dto, nil
}

// LicenseFor resolves the price and descriptive fields of one license tier
// of a composition.
func (s *service) LicenseFor(ctx context.Context, compositionID uuid.UUID, licenseID string) (LicenseSnapshot, error) {
	licenseID = strings.TrimSpace(licenseID)
	if licenseID == "" {
		return LicenseSnapshot{}, pkgerrors.New(pkgerrors.CodeValidation, "license id is required")
	}
	composition, err := s.findComposition(ctx, compositionID)
	if err != nil {
		return LicenseSnapshot{}, err
	}

	snapshot := LicenseSnapshot{
		CompositionID: composition.ID,
		Title:         composition.Title,
		LicenseID:     licenseID,
		CoverImage:    composition.CoverImageURL,
		File:          composition.FileURL,
	}
	if composition.Artist != nil {
		snapshot.Artist = composition.Artist.Username
	}

	tier, offered := lo.Find(composition.Licenses, func(t models.CompositionLicense) bool {
		return t.LicenseID == licenseID
	})
	switch {
	case offered:
		snapshot.LicensePrice = tier.Price
		if tier.License != nil {
			snapshot.LicenseName = tier.License.Name
		}
	case len(composition.Licenses) == 0 && licenseID == basicLicenseID:
		snapshot.LicensePrice = composition.Price
	default:
		return LicenseSnapshot{}, pkgerrors.New(pkgerrors.CodeValidation, "license not offered for composition")
	}

	if snapshot.LicenseName == "" {
		license, err := s.repo.FindLicense(ctx, licenseID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return LicenseSnapshot{}, pkgerrors.New(pkgerrors.CodeValidation, "unknown license")
			}
			return LicenseSnapshot{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load license")
		}
		snapshot.LicenseName = license.Name
	}
	return snapshot, nil
}

// RecordListen appends to the listen log unless the same listener was
// counted for the composition within the dedup window. It reports whether
// the listen was recorded.
func (s *service) RecordListen(ctx context.Context, compositionID uuid.UUID, listenerKey string) (bool, error) {
	listenerKey = strings.TrimSpace(listenerKey)
	if listenerKey == "" {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "listener identity required")
	}
	if _, err := s.findComposition(ctx, compositionID); err != nil {
		return false, err
	}

	if s.limiter != nil && s.dedupWindow > 0 {
		scope := fmt.Sprintf("listen:%s:%s", compositionID, listenerKey)
		allowed, _, err := s.limiter.FixedWindowAllow(ctx, scope, 1, s.dedupWindow)
		if err != nil {
			return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "listen dedup unavailable")
		}
		if !allowed {
			return false, nil
		}
	}

	listen := &models.CompositionListen{
		CompositionID: compositionID,
		ListenerKey:   listenerKey,
		ListenedAt:    s.now().UTC(),
	}
	if err := s.repo.AppendListen(ctx, listen); err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record listen")
	}
	return true, nil
}

// FileReference returns the composition's audio file and its owner.
func (s *service) FileReference(ctx context.Context, compositionID uuid.UUID) (string, uuid.UUID, error) {
	composition, err := s.findComposition(ctx, compositionID)
	if err != nil {
		return "", uuid.Nil, err
	}
	return composition.FileURL, composition.ArtistID, nil
}

func (s *service) findComposition(ctx context.Context, id uuid.UUID) (*models.Composition, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "composition id is required")
	}
	composition, err := s.repo.FindComposition(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "composition not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load composition")
	}
	return composition, nil
}

func (s *service) ownedComposition(ctx context.Context, actorID, compositionID uuid.UUID) (*models.Composition, error) {
	composition, err := s.findComposition(ctx, compositionID)
	if err != nil {
		return nil, err
	}
	if composition.ArtistID != actorID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only the creator can modify this composition")
	}
	return composition, nil
}

func (s *service) buildComposition(ctx context.Context, input CompositionInput) (*models.Composition, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}

	ids := lo.Uniq(lo.Map(input.Licenses, func(t LicenseTierInput, _ int) string { return strings.TrimSpace(t.LicenseID) }))
	if len(ids) != len(input.Licenses) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "duplicate license tier")
	}
	known, err := s.repo.FindLicenses(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load licenses")
	}
	if len(known) != len(ids) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown license in tiers")
	}

	return &models.Composition{
		Title:         strings.TrimSpace(input.Title),
		Price:         input.Price,
		Genre:         enums.Genre(input.Genre),
		Key:           enums.MusicalKey(input.Key),
		BPM:           input.BPM,
		Tags:          lo.Compact(lo.Map(input.Tags, func(tag string, _ int) string { return strings.TrimSpace(tag) })),
		FileURL:       strings.TrimSpace(input.File),
		CoverImageURL: strings.TrimSpace(input.CoverImage),
		Licenses: lo.Map(input.Licenses, func(t LicenseTierInput, _ int) models.CompositionLicense {
			return models.CompositionLicense{LicenseID: strings.TrimSpace(t.LicenseID), Price: t.Price}
		}),
	}, nil
}

func validateInput(input CompositionInput) error {
	switch {
	case strings.TrimSpace(input.Title) == "":
		return pkgerrors.New(pkgerrors.CodeValidation, "title is required")
	case input.BPM < 1:
		return pkgerrors.New(pkgerrors.CodeValidation, "bpm must be a positive integer")
	case len(input.Tags) > maxTags:
		return pkgerrors.Newf(pkgerrors.CodeValidation, "at most %d tags allowed", maxTags)
	case input.Price.LessThan(decimal.Zero):
		return pkgerrors.New(pkgerrors.CodeValidation, "price must be non-negative")
	case input.Genre != "" && !enums.Genre(input.Genre).IsValid():
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid genre")
	case input.Key != "" && !enums.MusicalKey(input.Key).IsValid():
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid key")
	case !hasExtension(input.File, audioExtensions):
		return pkgerrors.New(pkgerrors.CodeValidation, "file must be mp3, wav, ogg or flac")
	case !hasExtension(input.CoverImage, imageExtensions):
		return pkgerrors.New(pkgerrors.CodeValidation, "cover image must be jpg, jpeg, png or gif")
	}
	for _, tier := range input.Licenses {
		if strings.TrimSpace(tier.LicenseID) == "" {
			return pkgerrors.New(pkgerrors.CodeValidation, "license id is required")
		}
		if tier.Price.LessThan(decimal.Zero) {
			return pkgerrors.New(pkgerrors.CodeValidation, "license price must be non-negative")
		}
	}
	return nil
}

func hasExtension(ref string, allowed []string) bool {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return false
	}
	if idx := strings.IndexAny(ref, "?#"); idx >= 0 {
		ref = ref[:idx]
	}
	return lo.Contains(allowed, strings.ToLower(path.Ext(ref)))
}
