// Package cache is a read-through cache for query results. It is never the
// source of truth: entries are keyed by entity type and a per-entity
// generation, so invalidating an entity makes every earlier entry for it
// unreachable at once.
package cache

import (
	"context"
	"fmt"
	"strings"
)

type Entity string

const (
	EntitySales            Entity = "sales"
	EntitySaleEditLogs     Entity = "sale_edit_logs"
	EntityRegisterSessions Entity = "register_sessions"
	EntityClosingRecords   Entity = "closing_records"
	EntityCustomers        Entity = "customers"
	EntityProducts         Entity = "products"
)

// Slot addresses one entry under the generation observed at lookup time.
// Filling a slot after its entity was invalidated writes to a dead
// generation, so a slow reader can never resurrect stale data.
type Slot struct {
	Entity Entity
	Key    string
}

func (s Slot) valid() bool {
	return s.Entity != "" && s.Key != ""
}

type Cache interface {
	Lookup(ctx context.Context, entity Entity, key string, dest any) (Slot, bool, error)
	Fill(ctx context.Context, slot Slot, value any) error
	Invalidate(ctx context.Context, entities ...Entity) error
}

type Outcome string

const (
	OutcomeHit   Outcome = "hit"
	OutcomeMiss  Outcome = "miss"
	OutcomeError Outcome = "error"
)

// Reporter receives the outcome of every read-through call. err is only set
// for OutcomeError.
type Reporter func(ctx context.Context, entity Entity, outcome Outcome, err error)

// ReadThrough serves key from c or calls load and stores the result. Cache
// failures are reported and otherwise ignored; load failures are returned.
func ReadThrough[T any](ctx context.Context, c Cache, entity Entity, key string, report Reporter, load func(context.Context) (T, error)) (T, error) {
	if c == nil {
		return load(ctx)
	}
	if report == nil {
		report = func(context.Context, Entity, Outcome, error) {}
	}

	var cached T
	slot, hit, err := c.Lookup(ctx, entity, key, &cached)
	switch {
	case err != nil:
		report(ctx, entity, OutcomeError, err)
	case hit:
		report(ctx, entity, OutcomeHit, nil)
		return cached, nil
	default:
		report(ctx, entity, OutcomeMiss, nil)
	}

	value, err := load(ctx)
	if err != nil {
		return value, err
	}
	if slot.valid() {
		if err := c.Fill(ctx, slot, value); err != nil {
			report(ctx, entity, OutcomeError, err)
		}
	}
	return value, nil
}

// Key joins parts into a cache key, e.g. Key("by_customer", id).
func Key(parts ...any) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, fmt.Sprint(p))
	}
	return strings.Join(out, ":")
}

type Noop struct{}

func (Noop) Lookup(context.Context, Entity, string, any) (Slot, bool, error) {
	return Slot{}, false, nil
}

func (Noop) Fill(context.Context, Slot, any) error {
	return nil
}

func (Noop) Invalidate(context.Context, ...Entity) error {
	return nil
}
