package redis

import (
	"context"
	"time"

	"finkargo-billing/internal/domain/ports/adapter"
	"finkargo-billing/internal/infra/metrics"
)

var _ adapter.EventDeduper = (*EventDeduper)(nil)

// EventDeduper remembers webhook event ids with SETNX. It only short-circuits
// redeliveries; the payment status guard in Postgres stays authoritative.
type EventDeduper struct {
	client RedisClient
}

func NewEventDeduper(client RedisClient) *EventDeduper {
	return &EventDeduper{client: client}
}

func (d *EventDeduper) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	ok, err := d.client.SetNX(ctx, key, time.Now().Unix(), ttl)
	if err != nil {
		metrics.IncDedupe("error")
		return false, err
	}
	if ok {
		metrics.IncDedupe("miss")
	} else {
		metrics.IncDedupe("hit")
	}
	return ok, nil
}

func (d *EventDeduper) Release(ctx context.Context, key string) error {
	return d.client.Del(ctx, key)
}
