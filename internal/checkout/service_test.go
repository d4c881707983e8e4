package checkout

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v84"

	"github.com/beatvault/beatvault-backend/internal/cart"
	"github.com/beatvault/beatvault-backend/internal/catalog"
	pkgcheckout "github.com/beatvault/beatvault-backend/pkg/checkout"
	"github.com/beatvault/beatvault-backend/pkg/config"
	pkgerrors "github.com/beatvault/beatvault-backend/pkg/errors"
	"github.com/beatvault/beatvault-backend/pkg/metrics"
)

type fakeProvider struct {
	created []*stripe.CheckoutSessionParams
	err     error
	calls   int
}

func (f *fakeProvider) Create(_ context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	f.created = append(f.created, params)
	return &stripe.CheckoutSession{ID: "cs_test_1", URL: "https://checkout.stripe.test/cs_test_1"}, nil
}

func (f *fakeProvider) Get(_ context.Context, id string) (*stripe.CheckoutSession, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &stripe.CheckoutSession{ID: id, PaymentStatus: stripe.CheckoutSessionPaymentStatusPaid}, nil
}

type stubCarts struct {
	entries []cart.Entry
}

func (s stubCarts) List(context.Context, uuid.UUID) ([]cart.Entry, error) {
	return s.entries, nil
}

type stubCatalog struct {
	prices map[uuid.UUID]decimal.Decimal
}

func (s stubCatalog) LicenseFor(_ context.Context, compositionID uuid.UUID, licenseID string) (catalog.LicenseSnapshot, error) {
	price, ok := s.prices[compositionID]
	if !ok {
		return catalog.LicenseSnapshot{}, pkgerrors.New(pkgerrors.CodeNotFound, "composition not found")
	}
	return catalog.LicenseSnapshot{
		CompositionID: compositionID,
		Title:         "Night Drive",
		Artist:        "producer",
		LicenseID:     licenseID,
		LicenseName:   "Basic",
		LicensePrice:  price,
		CoverImage:    "https://cdn.test/cover.png",
		File:          "https://cdn.test/night-drive.mp3",
	}, nil
}

func newTestBuilder(t *testing.T, provider SessionProvider, carts cartReader, cat licenseResolver) (*Builder, *metrics.FulfillmentMetrics) {
	t.Helper()
	m := metrics.NewFulfillmentMetrics(prometheus.NewRegistry())
	b, err := NewBuilder(BuilderParams{
		Provider: provider,
		Carts:    carts,
		Catalog:  cat,
		Settings: Settings{
			Currency:            "usd",
			SuccessURL:          "https://app.test/success?session_id={CHECKOUT_SESSION_ID}",
			CancelURL:           "https://app.test/cart",
			SubscriptionPriceID: "price_pro",
		},
		Metrics: m,
	})
	require.NoError(t, err)
	return b, m
}

func TestBuildRepricesFromCatalog(t *testing.T) {
	compID := uuid.New()
	provider := &fakeProvider{}
	b, _ := newTestBuilder(t, provider, stubCarts{}, stubCatalog{prices: map[uuid.UUID]decimal.Decimal{compID: decimal.NewFromInt(20)}})
	userID := uuid.New()

	sess, err := b.Build(context.Background(), userID, []pkgcheckout.Item{{
		CompositionID: compID,
		LicenseID:     "basic",
		LicensePrice:  decimal.RequireFromString("0.01"),
	}})
	require.NoError(t, err)
	assert.Equal(t, "cs_test_1", sess.ID)

	require.Len(t, provider.created, 1)
	params := provider.created[0]
	assert.Equal(t, "payment", *params.Mode)
	assert.Equal(t, userID.String(), *params.ClientReferenceID)
	require.Len(t, params.LineItems, 1)
	line := params.LineItems[0]
	assert.Equal(t, int64(2000), *line.PriceData.UnitAmount)
	assert.Equal(t, "usd", *line.PriceData.Currency)
	assert.Equal(t, "Night Drive (Basic)", *line.PriceData.ProductData.Name)
	require.Len(t, line.PriceData.ProductData.Images, 1)

	items, err := pkgcheckout.DecodeItems(params.Metadata)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.True(t, items[0].LicensePrice.Equal(decimal.NewFromInt(20)))
	assert.Equal(t, userID.String(), params.Metadata[pkgcheckout.MetaUserID])
}

func TestBuildRejectsInvalidInput(t *testing.T) {
	compID := uuid.New()
	freeID := uuid.New()
	provider := &fakeProvider{}
	b, _ := newTestBuilder(t, provider, stubCarts{}, stubCatalog{prices: map[uuid.UUID]decimal.Decimal{
		compID: decimal.NewFromInt(20),
		freeID: decimal.Zero,
	}})
	ctx := context.Background()
	valid := pkgcheckout.Item{CompositionID: compID, LicenseID: "basic", LicensePrice: decimal.NewFromInt(20)}

	cases := map[string]struct {
		userID uuid.UUID
		items  []pkgcheckout.Item
		code   pkgerrors.Code
	}{
		"no items":              {uuid.New(), nil, pkgerrors.CodeValidation},
		"zero client price":     {uuid.New(), []pkgcheckout.Item{{CompositionID: compID, LicenseID: "basic", LicensePrice: decimal.Zero}}, pkgerrors.CodeValidation},
		"negative client price": {uuid.New(), []pkgcheckout.Item{{CompositionID: compID, LicenseID: "basic", LicensePrice: decimal.NewFromInt(-5)}}, pkgerrors.CodeValidation},
		"zero catalog price":    {uuid.New(), []pkgcheckout.Item{{CompositionID: freeID, LicenseID: "basic", LicensePrice: decimal.NewFromInt(20)}}, pkgerrors.CodeValidation},
		"duplicate item":        {uuid.New(), []pkgcheckout.Item{valid, valid}, pkgerrors.CodeValidation},
		"unknown composition":   {uuid.New(), []pkgcheckout.Item{{CompositionID: uuid.New(), LicenseID: "basic", LicensePrice: decimal.NewFromInt(20)}}, pkgerrors.CodeNotFound},
		"anonymous caller":      {uuid.Nil, []pkgcheckout.Item{valid}, pkgerrors.CodeUnauthorized},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := b.Build(ctx, tc.userID, tc.items)
			assert.True(t, pkgerrors.IsCode(err, tc.code), "got %v", err)
		})
	}
	assert.Zero(t, provider.calls)
}

func TestBuildFromCartUsesStoredSnapshot(t *testing.T) {
	entries := []cart.Entry{
		{CompositionID: uuid.New(), LicenseID: "basic", Title: "A", Artist: "x", LicenseName: "Basic", LicensePrice: decimal.NewFromInt(20), CoverImage: "a.png", File: "a.mp3"},
		{CompositionID: uuid.New(), LicenseID: "premium", Title: "B", Artist: "y", LicenseName: "Premium", LicensePrice: decimal.RequireFromString("49.99"), CoverImage: "b.png", File: "b.wav"},
	}
	provider := &fakeProvider{}
	b, _ := newTestBuilder(t, provider, stubCarts{entries: entries}, stubCatalog{})

	_, err := b.BuildFromCart(context.Background(), uuid.New())
	require.NoError(t, err)
	require.Len(t, provider.created, 1)
	assert.Equal(t, int64(4999), *provider.created[0].LineItems[1].PriceData.UnitAmount)

	items, err := pkgcheckout.DecodeItems(provider.created[0].Metadata)
	require.NoError(t, err)
	assert.Equal(t, "b.wav", items[1].File)
}

func TestBuildFromEmptyCart(t *testing.T) {
	b, _ := newTestBuilder(t, &fakeProvider{}, stubCarts{}, stubCatalog{})
	_, err := b.BuildFromCart(context.Background(), uuid.New())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestBuildSubscription(t *testing.T) {
	provider := &fakeProvider{}
	b, _ := newTestBuilder(t, provider, stubCarts{}, stubCatalog{})
	userID := uuid.New()

	_, err := b.BuildSubscription(context.Background(), userID)
	require.NoError(t, err)
	params := provider.created[0]
	assert.Equal(t, "subscription", *params.Mode)
	assert.Equal(t, "price_pro", *params.LineItems[0].Price)
	assert.Equal(t, "subscription", params.Metadata[pkgcheckout.MetaMode])
	assert.Equal(t, userID.String(), params.SubscriptionData.Metadata[pkgcheckout.MetaUserID])
}

func TestProviderFailureIsDependencyError(t *testing.T) {
	compID := uuid.New()
	provider := &fakeProvider{err: errors.New("connection reset")}
	b, _ := newTestBuilder(t, provider, stubCarts{}, stubCatalog{prices: map[uuid.UUID]decimal.Decimal{compID: decimal.NewFromInt(20)}})

	_, err := b.Build(context.Background(), uuid.New(), []pkgcheckout.Item{{CompositionID: compID, LicenseID: "basic", LicensePrice: decimal.NewFromInt(20)}})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	inner := &fakeProvider{err: errors.New("stripe down")}
	provider := WithBreaker(inner, config.CheckoutConfig{BreakerMaxFailures: 2}, nil)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := provider.Create(ctx, &stripe.CheckoutSessionParams{})
		require.Error(t, err)
	}
	_, err := provider.Create(ctx, &stripe.CheckoutSessionParams{})
	require.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, 2, inner.calls)
	assert.True(t, pkgerrors.IsCode(providerError(err, "create"), pkgerrors.CodeDependency))
}

func TestBreakerIgnoresClientErrors(t *testing.T) {
	inner := &fakeProvider{err: &stripe.Error{HTTPStatusCode: 400, Msg: "bad param"}}
	provider := WithBreaker(inner, config.CheckoutConfig{BreakerMaxFailures: 1}, nil)

	for i := 0; i < 3; i++ {
		_, err := provider.Create(context.Background(), &stripe.CheckoutSessionParams{})
		require.Error(t, err)
		assert.True(t, pkgerrors.IsCode(providerError(err, "create"), pkgerrors.CodeValidation))
	}
	assert.Equal(t, 3, inner.calls)
}

func TestLookup(t *testing.T) {
	b, _ := newTestBuilder(t, &fakeProvider{}, stubCarts{}, stubCatalog{})
	sess, err := b.Lookup(context.Background(), "cs_test_9")
	require.NoError(t, err)
	assert.Equal(t, stripe.CheckoutSessionPaymentStatusPaid, sess.PaymentStatus)

	_, err = b.Lookup(context.Background(), " ")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}
