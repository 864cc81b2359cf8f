package stripewebhook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/marketplace-backend/pkg/redis"
)

var errNoEventID = errors.New("stripe event id is required")

// ReplayGuard records Stripe event ids. Stripe redelivers until it sees a
// 2xx, so an id already held is acknowledged without being applied again.
type ReplayGuard struct {
	store redis.IdempotencyStore
	ttl   time.Duration
	scope string
}

func NewReplayGuard(store redis.IdempotencyStore, ttl time.Duration, scope string) (*ReplayGuard, error) {
	switch {
	case store == nil:
		return nil, errors.New("replay guard: store is required")
	case ttl < 0:
		return nil, fmt.Errorf("replay guard: negative ttl %s", ttl)
	case scope == "":
		return nil, errors.New("replay guard: scope is required")
	}
	return &ReplayGuard{store: store, ttl: ttl, scope: scope}, nil
}

// Claim returns true for the first delivery of eventID.
func (g *ReplayGuard) Claim(ctx context.Context, eventID string) (bool, error) {
	if eventID == "" {
		return false, errNoEventID
	}
	first, err := g.store.Claim(ctx, g.store.Key(g.scope, eventID), time.Now().UTC().Format(time.RFC3339), g.ttl)
	if err != nil {
		return false, fmt.Errorf("claim stripe event %s: %w", eventID, err)
	}
	return first, nil
}

// Forget drops a claim after a failed apply so the retry is processed.
func (g *ReplayGuard) Forget(ctx context.Context, eventID string) error {
	if eventID == "" {
		return errNoEventID
	}
	return g.store.Release(ctx, g.store.Key(g.scope, eventID))
}
