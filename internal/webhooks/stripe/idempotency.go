package stripewebhook

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/beatvault/beatvault-backend/pkg/redis"
)

const (
	markProcessing = "processing"
	markApplied    = "applied"
)

// ClaimStatus is the outcome of claiming an event id.
type ClaimStatus int

const (
	// Claimed means this delivery is the first to see the event id.
	Claimed ClaimStatus = iota
	// InFlight means another delivery holds the claim and has not finished.
	InFlight
	// AlreadyApplied means the event was applied by an earlier delivery.
	AlreadyApplied
)

// IdempotencyGuard remembers Stripe event ids in Redis so an applied
// delivery is acknowledged without reapplying.
// Keys follow the `bv:idempotency:evt:<scope>:<event_id>` pattern.
type IdempotencyGuard struct {
	store redis.IdempotencyStore
	ttl   time.Duration
	scope string
}

// NewIdempotencyGuard builds a guard. ttl bounds how long an applied event
// id is remembered.
func NewIdempotencyGuard(store redis.IdempotencyStore, ttl time.Duration, scope string) (*IdempotencyGuard, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if strings.TrimSpace(scope) == "" {
		return nil, errors.New("scope is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	return &IdempotencyGuard{store: store, ttl: ttl, scope: scope}, nil
}

// Claim marks the event as being processed. InFlight callers may still
// proceed because the purchase write is guarded by its own unique index.
func (g *IdempotencyGuard) Claim(ctx context.Context, id string) (ClaimStatus, error) {
	key, err := g.key(id)
	if err != nil {
		return Claimed, err
	}
	set, err := g.store.SetNX(ctx, key, markProcessing, g.ttl)
	if err != nil {
		return Claimed, err
	}
	if set {
		return Claimed, nil
	}
	current, err := g.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			// expired between SETNX and GET
			return Claimed, nil
		}
		return Claimed, err
	}
	if current == markApplied {
		return AlreadyApplied, nil
	}
	return InFlight, nil
}

// MarkApplied records the event as applied for the guard TTL.
func (g *IdempotencyGuard) MarkApplied(ctx context.Context, id string) error {
	key, err := g.key(id)
	if err != nil {
		return err
	}
	return g.store.Set(ctx, key, markApplied, g.ttl)
}

// Release forgets the event so a redelivery is processed again.
func (g *IdempotencyGuard) Release(ctx context.Context, id string) error {
	key, err := g.key(id)
	if err != nil {
		return err
	}
	return g.store.Del(ctx, key)
}

func (g *IdempotencyGuard) key(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", errors.New("event id is required")
	}
	return g.store.IdempotencyKey(fmt.Sprintf("evt:%s", g.scope), id), nil
}
