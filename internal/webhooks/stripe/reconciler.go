package stripewebhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"
	"gorm.io/gorm"

	"github.com/beatvault/beatvault-backend/internal/cart"
	"github.com/beatvault/beatvault-backend/internal/purchases"
	pkgcheckout "github.com/beatvault/beatvault-backend/pkg/checkout"
	pkgdb "github.com/beatvault/beatvault-backend/pkg/db"
	"github.com/beatvault/beatvault-backend/pkg/db/models"
	"github.com/beatvault/beatvault-backend/pkg/enums"
	pkgerrors "github.com/beatvault/beatvault-backend/pkg/errors"
	"github.com/beatvault/beatvault-backend/pkg/logger"
	"github.com/beatvault/beatvault-backend/pkg/metrics"
	"github.com/beatvault/beatvault-backend/pkg/outbox"
	"github.com/beatvault/beatvault-backend/pkg/outbox/payloads"
)

// State is where a delivery ended up.
type State string

const (
	StateReceived State = "received"
	StateVerified State = "verified"
	StateApplying State = "applying"
	StateApplied  State = "applied"
	StateFailed   State = "failed"
	StateRejected State = "rejected"
)

const defaultCurrency = "usd"

// errAlreadyApplied aborts the apply transaction when the session already
// has a Purchase.
var errAlreadyApplied = errors.New("session already fulfilled")

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type eventGuard interface {
	Claim(ctx context.Context, id string) (ClaimStatus, error)
	MarkApplied(ctx context.Context, id string) error
	Release(ctx context.Context, id string) error
}

type subscriptionWriter interface {
	Activate(ctx context.Context, userID uuid.UUID, subscriptionID string, customerID *string) error
	CancelBySubscriptionID(ctx context.Context, subscriptionID string) (bool, error)
}

// Outcome summarizes one delivery.
type Outcome struct {
	EventID   string
	EventType string
	State     State
	// Duplicate is set when the delivery was acknowledged without reapplying.
	Duplicate bool
}

// ReconcilerParams groups the Reconciler dependencies. Guard, Metrics and
// Logger are optional.
type ReconcilerParams struct {
	SigningSecret string
	Transactions  txRunner
	Purchases     *purchases.Repository
	Carts         *cart.Repository
	Outbox        outboxEmitter
	Subscriptions subscriptionWriter
	Guard         eventGuard
	Metrics       *metrics.FulfillmentMetrics
	Logger        *logger.Logger
}

// Reconciler verifies Stripe deliveries and applies them exactly once.
type Reconciler struct {
	secret        string
	tx            txRunner
	purchases     *purchases.Repository
	carts         *cart.Repository
	outbox        outboxEmitter
	subscriptions subscriptionWriter
	guard         eventGuard
	metrics       *metrics.FulfillmentMetrics
	logg          *logger.Logger
}

func NewReconciler(p ReconcilerParams) (*Reconciler, error) {
	if strings.TrimSpace(p.SigningSecret) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "webhook signing secret required")
	}
	if p.Transactions == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	if p.Purchases == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "purchases repository required")
	}
	if p.Carts == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "cart repository required")
	}
	if p.Outbox == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "outbox emitter required")
	}
	if p.Subscriptions == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "subscription writer required")
	}
	return &Reconciler{
		secret:        p.SigningSecret,
		tx:            p.Transactions,
		purchases:     p.Purchases,
		carts:         p.Carts,
		outbox:        p.Outbox,
		subscriptions: p.Subscriptions,
		guard:         p.Guard,
		metrics:       p.Metrics,
		logg:          p.Logger,
	}, nil
}

// Handle verifies payload against signature and applies the event.
// Rejected deliveries return a validation error; Failed ones an internal
// error. Unknown event types are acknowledged.
func (r *Reconciler) Handle(ctx context.Context, payload []byte, signature string) (Outcome, error) {
	out := Outcome{State: StateReceived}

	event, err := webhook.ConstructEventWithOptions(payload, signature, r.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		out.State = StateRejected
		r.metrics.IncEvent("unknown", string(out.State))
		r.warn(ctx, "stripe webhook signature rejected", err)
		return out, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid stripe signature")
	}
	out.EventID = event.ID
	out.EventType = string(event.Type)
	out.State = StateVerified
	if r.logg != nil {
		ctx = r.logg.WithEvent(ctx, event.ID, string(event.Type))
	}

	if !handles(event.Type) {
		out.State = StateApplied
		r.metrics.IncEvent(out.EventType, "ignored")
		return out, nil
	}

	status := Claimed
	if r.guard != nil {
		status, err = r.guard.Claim(ctx, event.ID)
		if err != nil {
			// The unique session index still arbitrates without Redis.
			r.warn(ctx, "webhook guard unavailable", err)
			status = Claimed
		}
		if status == AlreadyApplied {
			out.State = StateApplied
			out.Duplicate = true
			r.metrics.IncEvent(out.EventType, string(out.State))
			return out, nil
		}
	}

	out.State = StateApplying
	started := time.Now()
	duplicate, err := r.apply(ctx, event)
	r.metrics.ObserveApply(out.EventType, time.Since(started))
	if err != nil {
		out.State = StateFailed
		r.metrics.IncEvent(out.EventType, string(out.State))
		if r.guard != nil && status == Claimed {
			if relErr := r.guard.Release(ctx, event.ID); relErr != nil {
				r.warn(ctx, "webhook guard release failed", relErr)
			}
		}
		if r.logg != nil {
			r.logg.Error(ctx, "stripe webhook apply failed", err)
		}
		return out, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "apply stripe event")
	}

	out.State = StateApplied
	out.Duplicate = duplicate
	r.metrics.IncEvent(out.EventType, string(out.State))
	if r.guard != nil {
		if markErr := r.guard.MarkApplied(ctx, event.ID); markErr != nil {
			r.warn(ctx, "webhook guard mark failed", markErr)
		}
	}
	if r.logg != nil {
		r.logg.Info(r.logg.WithField(ctx, "duplicate", duplicate), "stripe webhook applied")
	}
	return out, nil
}

// snapshotTime bounds which cart rows belong to the session's snapshot.
// Stripe reports creation in whole seconds, so the bound is padded by one.
func snapshotTime(sess *stripe.CheckoutSession) time.Time {
	if sess.Created <= 0 {
		return time.Time{}
	}
	return time.Unix(sess.Created, 0).Add(time.Second)
}

func handles(t stripe.EventType) bool {
	return t == stripe.EventTypeCheckoutSessionCompleted || t == stripe.EventTypeCustomerSubscriptionDeleted
}

func (r *Reconciler) apply(ctx context.Context, event stripe.Event) (bool, error) {
	if event.Data == nil {
		return false, errors.New("event data missing")
	}
	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return false, fmt.Errorf("decode checkout session: %w", err)
		}
		if sessionMode(&sess) == enums.CheckoutModeSubscription {
			return false, r.applySubscription(ctx, &sess)
		}
		return r.applyPayment(ctx, &sess)
	case stripe.EventTypeCustomerSubscriptionDeleted:
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return false, fmt.Errorf("decode subscription: %w", err)
		}
		found, err := r.subscriptions.CancelBySubscriptionID(ctx, sub.ID)
		if err != nil {
			return false, err
		}
		if !found && r.logg != nil {
			r.logg.Info(r.logg.WithField(ctx, "subscription_id", sub.ID), "cancelled subscription has no local user")
		}
		return false, nil
	}
	return false, nil
}

// applyPayment records the Purchase, clears the checked-out cart entries
// and queues purchase_completed in one transaction. It reports true when
// the session had already been fulfilled.
func (r *Reconciler) applyPayment(ctx context.Context, sess *stripe.CheckoutSession) (bool, error) {
	if strings.TrimSpace(sess.ID) == "" {
		return false, errors.New("checkout session id missing")
	}
	userID, err := sessionUser(sess)
	if err != nil {
		return false, err
	}
	items, err := pkgcheckout.DecodeItems(sess.Metadata)
	if err != nil {
		return false, err
	}

	purchase := &models.Purchase{
		UserID:      userID,
		SessionID:   sess.ID,
		TotalAmount: pkgcheckout.Total(items),
		Currency:    defaultCurrency,
		Items: lo.Map(items, func(item pkgcheckout.Item, _ int) models.PurchaseItem {
			return models.PurchaseItem{
				CompositionID: item.CompositionID,
				Title:         item.Title,
				Artist:        item.Artist,
				LicenseID:     item.LicenseID,
				LicenseName:   item.LicenseName,
				LicensePrice:  item.LicensePrice,
				CoverImage:    item.CoverImage,
				File:          item.File,
			}
		}),
	}
	if sess.AmountTotal > 0 {
		purchase.TotalAmount = pkgcheckout.FromCents(sess.AmountTotal)
	}
	if sess.Currency != "" {
		purchase.Currency = strings.ToLower(string(sess.Currency))
	}
	keys := lo.Map(items, func(item pkgcheckout.Item, _ int) cart.EntryKey {
		return cart.EntryKey{CompositionID: item.CompositionID, LicenseID: item.LicenseID}
	})

	err = r.tx.WithTx(ctx, func(tx *gorm.DB) error {
		purchaseRepo := r.purchases.WithTx(tx)
		if _, err := purchaseRepo.FindBySessionID(ctx, sess.ID); err == nil {
			return errAlreadyApplied
		} else if !pkgdb.IsNotFound(err) {
			return err
		}
		if err := purchaseRepo.Create(ctx, purchase); err != nil {
			if errors.Is(err, purchases.ErrDuplicateSession) {
				return errAlreadyApplied
			}
			return err
		}
		if _, err := r.carts.WithTx(tx).DeleteEntries(ctx, userID, keys, snapshotTime(sess)); err != nil {
			return err
		}
		return r.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPurchaseCompleted,
			AggregateType: enums.AggregatePurchase,
			AggregateID:   purchase.ID,
			Actor:         &outbox.ActorRef{UserID: userID},
			Data: payloads.PurchaseCompletedEvent{
				PurchaseID:  purchase.ID,
				UserID:      userID,
				SessionID:   sess.ID,
				TotalAmount: purchase.TotalAmount,
				Currency:    purchase.Currency,
				Items: lo.Map(items, func(item pkgcheckout.Item, _ int) payloads.PurchasedLicenses {
					return payloads.PurchasedLicenses{
						CompositionID: item.CompositionID,
						LicenseID:     item.LicenseID,
						Price:         item.LicensePrice,
					}
				}),
			},
		})
	})
	if errors.Is(err, errAlreadyApplied) {
		return true, nil
	}
	return false, err
}

func (r *Reconciler) applySubscription(ctx context.Context, sess *stripe.CheckoutSession) error {
	userID, err := sessionUser(sess)
	if err != nil {
		return err
	}
	if sess.Subscription == nil || strings.TrimSpace(sess.Subscription.ID) == "" {
		return errors.New("subscription checkout without subscription id")
	}
	var customerID *string
	if sess.Customer != nil && sess.Customer.ID != "" {
		customerID = &sess.Customer.ID
	}
	return r.subscriptions.Activate(ctx, userID, sess.Subscription.ID, customerID)
}

func sessionMode(sess *stripe.CheckoutSession) enums.CheckoutMode {
	if sess.Mode != "" {
		return enums.CheckoutMode(sess.Mode)
	}
	if mode := sess.Metadata[pkgcheckout.MetaMode]; mode != "" {
		return enums.CheckoutMode(mode)
	}
	return enums.CheckoutModePayment
}

func sessionUser(sess *stripe.CheckoutSession) (uuid.UUID, error) {
	raw := strings.TrimSpace(sess.Metadata[pkgcheckout.MetaUserID])
	if raw == "" {
		raw = strings.TrimSpace(sess.ClientReferenceID)
	}
	userID, err := uuid.Parse(raw)
	if err != nil || userID == uuid.Nil {
		return uuid.Nil, fmt.Errorf("checkout session %s has no valid userId", sess.ID)
	}
	return userID, nil
}

func (r *Reconciler) warn(ctx context.Context, msg string, err error) {
	if r.logg == nil {
		return
	}
	r.logg.Warn(r.logg.WithField(ctx, "error", err.Error()), msg)
}
