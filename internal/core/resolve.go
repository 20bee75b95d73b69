package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/JonMunkholm/policyingest/internal/metrics"
)

// Resolver maps natural keys to entity IDs, creating entities on first sight.
type Resolver struct {
	store Store
}

// NewResolver returns a Resolver over store.
func NewResolver(store Store) *Resolver {
	return &Resolver{store: store}
}

// Find returns the ID of the entity with key, or ErrNotFound.
func (r *Resolver) Find(ctx context.Context, kind Kind, key Filter) (ID, error) {
	id, err := r.store.FindOne(ctx, kind, key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ID{}, err
		}
		return ID{}, fmt.Errorf("find %s: %w", kind, err)
	}
	metrics.EntityResolved(string(kind), "found")
	return id, nil
}

// ResolveOrCreate returns the entity with key, creating it from key and attrs
// when absent. An existing entity is returned unchanged. If another job
// inserts the same key between the lookup and the insert, the store reports
// ErrConflict and the winner's ID is returned instead.
func (r *Resolver) ResolveOrCreate(ctx context.Context, kind Kind, key Filter, attrs Attrs) (ID, error) {
	id, err := r.Find(ctx, kind, key)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return ID{}, err
	}

	doc := make(Attrs, len(key)+len(attrs))
	for k, v := range attrs {
		doc[k] = v
	}
	for k, v := range key {
		doc[k] = v
	}

	id, err = r.store.Create(ctx, kind, doc)
	if err == nil {
		metrics.EntityResolved(string(kind), "created")
		return id, nil
	}
	if !errors.Is(err, ErrConflict) {
		return ID{}, fmt.Errorf("create %s: %w", kind, err)
	}

	id, err = r.store.FindOne(ctx, kind, key)
	if err != nil {
		return ID{}, fmt.Errorf("refetch %s after conflict: %w", kind, err)
	}
	metrics.EntityResolved(string(kind), "refetched")
	return id, nil
}

// Upsert sets attrs on the entity with key, inserting it when absent.
func (r *Resolver) Upsert(ctx context.Context, kind Kind, key Filter, attrs Attrs) (ID, error) {
	id, err := r.store.FindOneAndUpdate(ctx, kind, key, attrs, UpdateOptions{Upsert: true})
	if errors.Is(err, ErrConflict) {
		// A concurrent insert won; the key exists now, so update it.
		id, err = r.store.FindOneAndUpdate(ctx, kind, key, attrs, UpdateOptions{})
	}
	if err != nil {
		return ID{}, fmt.Errorf("upsert %s: %w", kind, err)
	}
	metrics.EntityResolved(string(kind), "upserted")
	return id, nil
}
