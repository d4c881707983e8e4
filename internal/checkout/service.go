// Package checkout turns cart snapshots into hosted Stripe checkout sessions.
package checkout

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/stripe/stripe-go/v84"

	"github.com/beatvault/beatvault-backend/internal/cart"
	"github.com/beatvault/beatvault-backend/internal/catalog"
	pkgcheckout "github.com/beatvault/beatvault-backend/pkg/checkout"
	"github.com/beatvault/beatvault-backend/pkg/enums"
	pkgerrors "github.com/beatvault/beatvault-backend/pkg/errors"
	"github.com/beatvault/beatvault-backend/pkg/logger"
	"github.com/beatvault/beatvault-backend/pkg/metrics"
)

const (
	resultCreated = "created"
	resultFailed  = "failed"
)

// Session is the hosted checkout handed back to the buyer.
type Session struct {
	ID  string `json:"sessionId"`
	URL string `json:"url"`
}

// Settings carries the merchant configuration used for every session.
type Settings struct {
	Currency            string
	SuccessURL          string
	CancelURL           string
	SubscriptionPriceID string
}

type cartReader interface {
	List(ctx context.Context, userID uuid.UUID) ([]cart.Entry, error)
}

type licenseResolver interface {
	LicenseFor(ctx context.Context, compositionID uuid.UUID, licenseID string) (catalog.LicenseSnapshot, error)
}

// Builder creates payment and subscription checkout sessions.
type Builder struct {
	provider SessionProvider
	carts    cartReader
	catalog  licenseResolver
	settings Settings
	metrics  *metrics.FulfillmentMetrics
	logg     *logger.Logger
}

// BuilderParams groups the Builder dependencies.
type BuilderParams struct {
	Provider SessionProvider
	Carts    cartReader
	Catalog  licenseResolver
	Settings Settings
	Metrics  *metrics.FulfillmentMetrics
	Logger   *logger.Logger
}

// NewBuilder validates params and returns a Builder.
func NewBuilder(p BuilderParams) (*Builder, error) {
	if p.Provider == nil {
		return nil, fmt.Errorf("session provider required")
	}
	if p.Carts == nil {
		return nil, fmt.Errorf("cart reader required")
	}
	if p.Catalog == nil {
		return nil, fmt.Errorf("license resolver required")
	}
	if strings.TrimSpace(p.Settings.SuccessURL) == "" || strings.TrimSpace(p.Settings.CancelURL) == "" {
		return nil, fmt.Errorf("checkout redirect urls required")
	}
	if strings.TrimSpace(p.Settings.Currency) == "" {
		p.Settings.Currency = "usd"
	}
	return &Builder{
		provider: p.Provider,
		carts:    p.Carts,
		catalog:  p.Catalog,
		settings: p.Settings,
		metrics:  p.Metrics,
		logg:     p.Logger,
	}, nil
}

// Build opens a payment session for items. A client price of zero or less is
// rejected outright; accepted items are then re-priced from the catalog so the
// stored snapshot never trusts client-side prices.
func (b *Builder) Build(ctx context.Context, userID uuid.UUID, items []pkgcheckout.Item) (Session, error) {
	if userID == uuid.Nil {
		return Session{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity required")
	}
	if len(items) == 0 {
		return Session{}, pkgerrors.New(pkgerrors.CodeValidation, "checkout requires at least one item")
	}
	priced := make([]pkgcheckout.Item, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		key := item.CompositionID.String() + "/" + item.LicenseID
		if _, dup := seen[key]; dup {
			return Session{}, pkgerrors.New(pkgerrors.CodeValidation, "duplicate checkout item")
		}
		seen[key] = struct{}{}
		if !item.LicensePrice.IsPositive() {
			return Session{}, pkgerrors.New(pkgerrors.CodeValidation, "checkout item price must be greater than zero")
		}

		snap, err := b.catalog.LicenseFor(ctx, item.CompositionID, strings.TrimSpace(item.LicenseID))
		if err != nil {
			return Session{}, err
		}
		priced = append(priced, itemFromSnapshot(snap))
	}
	return b.createPayment(ctx, userID, priced)
}

// BuildFromCart opens a payment session for the caller's current cart.
func (b *Builder) BuildFromCart(ctx context.Context, userID uuid.UUID) (Session, error) {
	if userID == uuid.Nil {
		return Session{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity required")
	}
	entries, err := b.carts.List(ctx, userID)
	if err != nil {
		return Session{}, err
	}
	if len(entries) == 0 {
		return Session{}, pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
	}
	items := lo.Map(entries, func(e cart.Entry, _ int) pkgcheckout.Item {
		return pkgcheckout.Item{
			CompositionID: e.CompositionID,
			Title:         e.Title,
			Artist:        e.Artist,
			LicenseID:     e.LicenseID,
			LicenseName:   e.LicenseName,
			LicensePrice:  e.LicensePrice,
			CoverImage:    e.CoverImage,
			File:          e.File,
		}
	})
	return b.createPayment(ctx, userID, items)
}

// BuildSubscription opens a subscription session for the pro plan.
func (b *Builder) BuildSubscription(ctx context.Context, userID uuid.UUID) (Session, error) {
	if userID == uuid.Nil {
		return Session{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity required")
	}
	if strings.TrimSpace(b.settings.SubscriptionPriceID) == "" {
		return Session{}, pkgerrors.New(pkgerrors.CodeInternal, "subscription price not configured")
	}
	mode := string(enums.CheckoutModeSubscription)
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		SuccessURL:        stripe.String(b.settings.SuccessURL),
		CancelURL:         stripe.String(b.settings.CancelURL),
		ClientReferenceID: stripe.String(userID.String()),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			Price:    stripe.String(b.settings.SubscriptionPriceID),
			Quantity: stripe.Int64(1),
		}},
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{pkgcheckout.MetaUserID: userID.String()},
		},
	}
	params.AddMetadata(pkgcheckout.MetaUserID, userID.String())
	params.AddMetadata(pkgcheckout.MetaMode, mode)
	return b.create(ctx, mode, params)
}

// Lookup fetches a session from the provider.
func (b *Builder) Lookup(ctx context.Context, sessionID string) (*stripe.CheckoutSession, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "session_id is required")
	}
	sess, err := b.provider.Get(ctx, sessionID)
	if err != nil {
		return nil, providerError(err, "fetch checkout session")
	}
	return sess, nil
}

func (b *Builder) createPayment(ctx context.Context, userID uuid.UUID, items []pkgcheckout.Item) (Session, error) {
	if err := pkgcheckout.ValidateItems(items); err != nil {
		return Session{}, err
	}
	meta, err := pkgcheckout.EncodeMetadata(userID.String(), items)
	if err != nil {
		return Session{}, err
	}

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(b.settings.SuccessURL),
		CancelURL:         stripe.String(b.settings.CancelURL),
		ClientReferenceID: stripe.String(userID.String()),
		LineItems:         lo.Map(items, func(item pkgcheckout.Item, _ int) *stripe.CheckoutSessionLineItemParams { return b.lineItem(item) }),
	}
	for key, value := range meta {
		params.AddMetadata(key, value)
	}
	return b.create(ctx, string(enums.CheckoutModePayment), params)
}

func (b *Builder) create(ctx context.Context, mode string, params *stripe.CheckoutSessionParams) (Session, error) {
	sess, err := b.provider.Create(ctx, params)
	if err != nil {
		b.metrics.IncSession(mode, resultFailed)
		if b.logg != nil {
			b.logg.Error(b.logg.WithField(ctx, "checkout_mode", mode), "checkout session create failed", err)
		}
		return Session{}, providerError(err, "create checkout session")
	}
	b.metrics.IncSession(mode, resultCreated)
	if b.logg != nil {
		logCtx := b.logg.WithSessionID(ctx, sess.ID)
		b.logg.Info(b.logg.WithField(logCtx, "checkout_mode", mode), "checkout session created")
	}
	return Session{ID: sess.ID, URL: sess.URL}, nil
}

func (b *Builder) lineItem(item pkgcheckout.Item) *stripe.CheckoutSessionLineItemParams {
	product := &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
		Name: stripe.String(fmt.Sprintf("%s (%s)", item.Title, item.LicenseName)),
	}
	if item.CoverImage != "" {
		product.Images = []*string{stripe.String(item.CoverImage)}
	}
	return &stripe.CheckoutSessionLineItemParams{
		PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
			Currency:    stripe.String(b.settings.Currency),
			ProductData: product,
			UnitAmount:  stripe.Int64(pkgcheckout.ToCents(item.LicensePrice)),
		},
		Quantity: stripe.Int64(1),
	}
}

func itemFromSnapshot(snap catalog.LicenseSnapshot) pkgcheckout.Item {
	return pkgcheckout.Item{
		CompositionID: snap.CompositionID,
		Title:         snap.Title,
		Artist:        snap.Artist,
		LicenseID:     snap.LicenseID,
		LicenseName:   snap.LicenseName,
		LicensePrice:  snap.LicensePrice,
		CoverImage:    snap.CoverImage,
		File:          snap.File,
	}
}
