// Package idempotency lets a consumer process each outbox event at most once
// across redeliveries and replicas.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/bazaar-backend/pkg/redis"
)

var (
	ErrStoreRequired    = errors.New("idempotency store is required")
	ErrConsumerRequired = errors.New("consumer name is required")
)

// Guard claims event ids for one consumer. Claims are redis keys of the form
// bz:idempotency:evt:<consumer>:<event_id> that expire after ttl; a zero ttl
// keeps them forever.
type Guard struct {
	store    redis.IdempotencyStore
	consumer string
	ttl      time.Duration
	now      func() time.Time
}

func NewGuard(store redis.IdempotencyStore, consumer string, ttl time.Duration) (*Guard, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	consumer = strings.TrimSpace(consumer)
	if consumer == "" {
		return nil, ErrConsumerRequired
	}
	if ttl < 0 {
		return nil, fmt.Errorf("idempotency ttl must be non-negative, got %s", ttl)
	}
	return &Guard{store: store, consumer: consumer, ttl: ttl, now: time.Now}, nil
}

// Claim reports true when the caller is the first to see eventID and must
// handle it. False means another delivery already did.
func (g *Guard) Claim(ctx context.Context, eventID string) (bool, error) {
	key, err := g.key(eventID)
	if err != nil {
		return false, err
	}
	claimed, err := g.store.SetNX(ctx, key, g.now().UTC().Format(time.RFC3339), g.ttl)
	if err != nil {
		return false, fmt.Errorf("claim event %s: %w", eventID, err)
	}
	return claimed, nil
}

// Release drops a claim so the next redelivery is handled again.
func (g *Guard) Release(ctx context.Context, eventID string) error {
	key, err := g.key(eventID)
	if err != nil {
		return err
	}
	if err := g.store.Del(ctx, key); err != nil {
		return fmt.Errorf("release event %s: %w", eventID, err)
	}
	return nil
}

func (g *Guard) key(eventID string) (string, error) {
	id, err := uuid.Parse(strings.TrimSpace(eventID))
	if err != nil || id == uuid.Nil {
		return "", fmt.Errorf("invalid event id %q", eventID)
	}
	return g.store.IdempotencyKey("evt:"+g.consumer, id.String()), nil
}
