package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mpesa-gateway/internal/status"

	"github.com/redis/go-redis/v9"
)

const (
	orderKeyPrefix    = "mpesa:order:"
	checkoutKeyPrefix = "mpesa:checkout:"
	// PendingKey is a set of checkout ids still waiting for a terminal result.
	PendingKey = "mpesa:pending"

	reservedMarker = "IN_PROGRESS"
)

// OrderGuard keeps at most one live push per order.
//
//	mpesa:order:<orderId>       IN_PROGRESS while a push is being sent, then the checkout id
//	mpesa:checkout:<checkoutId> the order id, for callbacks and polls
type OrderGuard struct {
	redis             *redis.Client
	lockTTL           time.Duration
	reconciliationTTL time.Duration
}

func NewOrderGuard(redisClient *redis.Client, lockTTL, reconciliationTTL time.Duration) *OrderGuard {
	return &OrderGuard{
		redis:             redisClient,
		lockTTL:           lockTTL,
		reconciliationTTL: reconciliationTTL,
	}
}

// Reserve claims the order for a new push. It returns the checkout id of an
// earlier queued push when there is one, in which case nothing is claimed.
func (g *OrderGuard) Reserve(ctx context.Context, orderID string) (string, error) {
	key := orderKeyPrefix + orderID

	ok, err := g.redis.SetNX(ctx, key, reservedMarker, g.lockTTL).Result()
	if err != nil {
		return "", fmt.Errorf("Reserve: redis.SetNX: %w", err)
	}
	if ok {
		return "", nil
	}

	existing, err := g.redis.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) || existing == reservedMarker {
		return "", status.ErrOrderInProgress
	}
	if err != nil {
		return "", fmt.Errorf("Reserve: redis.Get: %w", err)
	}
	return existing, nil
}

// Complete records the queued push for the reconciliation window.
func (g *OrderGuard) Complete(ctx context.Context, orderID, checkoutID string) error {
	if err := g.redis.Set(ctx, orderKeyPrefix+orderID, checkoutID, g.reconciliationTTL).Err(); err != nil {
		return fmt.Errorf("Complete: redis.Set order: %w", err)
	}
	if err := g.redis.Set(ctx, checkoutKeyPrefix+checkoutID, orderID, g.reconciliationTTL).Err(); err != nil {
		return fmt.Errorf("Complete: redis.Set checkout: %w", err)
	}
	if err := g.redis.SAdd(ctx, PendingKey, checkoutID).Err(); err != nil {
		return fmt.Errorf("Complete: redis.SAdd: %w", err)
	}
	return nil
}

// Release frees the order so the caller may try again.
func (g *OrderGuard) Release(ctx context.Context, orderID string) error {
	if err := g.redis.Del(ctx, orderKeyPrefix+orderID).Err(); err != nil {
		return fmt.Errorf("Release: redis.Del: %w", err)
	}
	return nil
}

// OrderFor returns the order a checkout id belongs to.
func (g *OrderGuard) OrderFor(ctx context.Context, checkoutID string) (string, error) {
	orderID, err := g.redis.Get(ctx, checkoutKeyPrefix+checkoutID).Result()
	if errors.Is(err, redis.Nil) {
		return "", status.ErrPaymentNotFound
	}
	if err != nil {
		return "", fmt.Errorf("OrderFor: redis.Get: %w", err)
	}
	return orderID, nil
}

// Resolve marks a checkout as terminal. A failed push releases its order so a
// new push can be started; a successful one keeps the order claimed.
func (g *OrderGuard) Resolve(ctx context.Context, orderID, checkoutID string, state status.State) error {
	if err := g.redis.SRem(ctx, PendingKey, checkoutID).Err(); err != nil {
		return fmt.Errorf("Resolve: redis.SRem: %w", err)
	}
	if state != status.Failed || orderID == "" {
		return nil
	}

	current, err := g.redis.Get(ctx, orderKeyPrefix+orderID).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("Resolve: redis.Get: %w", err)
	}
	if current != checkoutID {
		return nil
	}
	return g.Release(ctx, orderID)
}

// Pending lists checkout ids still waiting for a terminal result.
func (g *OrderGuard) Pending(ctx context.Context) ([]string, error) {
	ids, err := g.redis.SMembers(ctx, PendingKey).Result()
	if err != nil {
		return nil, fmt.Errorf("Pending: redis.SMembers: %w", err)
	}
	return ids, nil
}

// Forget drops a checkout id from the pending set.
func (g *OrderGuard) Forget(ctx context.Context, checkoutID string) error {
	if err := g.redis.SRem(ctx, PendingKey, checkoutID).Err(); err != nil {
		return fmt.Errorf("Forget: redis.SRem: %w", err)
	}
	return nil
}
