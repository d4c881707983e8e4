package webhooks

import (
	"context"
	"io"
	"net/http"

	"github.com/beatvault/beatvault-backend/api/responses"
	stripewebhook "github.com/beatvault/beatvault-backend/internal/webhooks/stripe"
	pkgerrors "github.com/beatvault/beatvault-backend/pkg/errors"
	"github.com/beatvault/beatvault-backend/pkg/logger"
)

// Stripe rejects payloads above 512KiB, so anything larger is not a real event.
const maxWebhookBody = 512 << 10

type eventReconciler interface {
	Handle(ctx context.Context, payload []byte, signature string) (stripewebhook.Outcome, error)
}

type ack struct {
	Received bool `json:"received"`
}

// StripeWebhook verifies and applies a Stripe delivery. It answers 200 for
// applied, duplicate and ignored events, 400 for authenticity failures and
// 500 when applying failed so Stripe redelivers.
func StripeWebhook(reconciler eventReconciler, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if reconciler == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook reconciler unavailable"))
			return
		}

		payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read webhook body"))
			return
		}
		signature := r.Header.Get("Stripe-Signature")
		if signature == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "stripe signature missing"))
			return
		}

		outcome, err := reconciler.Handle(ctx, payload, signature)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if logg != nil {
			logCtx := logg.WithEvent(ctx, outcome.EventID, outcome.EventType)
			logCtx = logg.WithFields(logCtx, map[string]any{
				"state":     string(outcome.State),
				"duplicate": outcome.Duplicate,
			})
			logg.Info(logCtx, "stripe.webhook.acknowledged")
		}
		responses.WriteJSON(w, http.StatusOK, ack{Received: true})
	}
}
