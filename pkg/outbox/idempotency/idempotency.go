// Package idempotency lets Pub/Sub consumers process each outbox event once.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/gikundiro/fanpay-backend/pkg/redis"
)

const defaultTTL = 7 * 24 * time.Hour

// Guard hands each (consumer, event) pair to a single delivery. Ownership is
// a SETNX marker under fp:idempotency:evt:<consumer>:<event_id> that expires
// after ttl, which must outlive the subscription's redelivery window.
type Guard struct {
	store redis.IdempotencyStore
	ttl   time.Duration
}

func NewGuard(store redis.IdempotencyStore, ttl time.Duration) (*Guard, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("idempotency ttl must not be negative")
	}
	if ttl == 0 {
		ttl = defaultTTL
	}
	return &Guard{store: store, ttl: ttl}, nil
}

// Claim reports whether this delivery owns the event. False means another
// delivery already took it and the message can be acked.
func (g *Guard) Claim(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error) {
	key, err := g.key(consumer, eventID)
	if err != nil {
		return false, err
	}
	return g.store.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), g.ttl)
}

// Release drops the claim after a failed attempt so the redelivery runs.
func (g *Guard) Release(ctx context.Context, consumer string, eventID uuid.UUID) error {
	key, err := g.key(consumer, eventID)
	if err != nil {
		return err
	}
	return g.store.Del(ctx, key)
}

func (g *Guard) key(consumer string, eventID uuid.UUID) (string, error) {
	switch {
	case consumer == "":
		return "", errors.New("consumer name is required")
	case eventID == uuid.Nil:
		return "", errors.New("event id is required")
	}
	return g.store.IdempotencyKey("evt:"+consumer, eventID.String()), nil
}

// Claimer is what Once needs; *Guard satisfies it.
type Claimer interface {
	Claim(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error)
	Release(ctx context.Context, consumer string, eventID uuid.UUID) error
}

// Once runs fn unless another delivery of the event already claimed it. When
// fn fails the claim is released, so a redelivery runs fn again, and fn's
// error is returned. ran is false when the event was skipped as a duplicate.
func Once(ctx context.Context, c Claimer, consumer string, eventID uuid.UUID, fn func(context.Context) error) (ran bool, err error) {
	owned, err := c.Claim(ctx, consumer, eventID)
	if err != nil {
		return false, fmt.Errorf("claim %s/%s: %w", consumer, eventID, err)
	}
	if !owned {
		return false, nil
	}
	if err := fn(ctx); err != nil {
		if relErr := c.Release(context.WithoutCancel(ctx), consumer, eventID); relErr != nil {
			return true, errors.Join(err, fmt.Errorf("release claim: %w", relErr))
		}
		return true, err
	}
	return true, nil
}
