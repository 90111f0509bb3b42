// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"
)

// TypedCache stores values of type T as JSON in a Cache. Keys are placed
// under a namespace so one namespace can be invalidated at once.
type TypedCache[T any] struct {
	cache      Cache
	namespace  string
	defaultTTL time.Duration
}

// NewTypedCache wraps cache. namespace is prepended to every key.
func NewTypedCache[T any](cache Cache, namespace string, defaultTTL time.Duration) *TypedCache[T] {
	return &TypedCache[T]{
		cache:      cache,
		namespace:  namespace,
		defaultTTL: defaultTTL,
	}
}

func (c *TypedCache[T]) key(k string) string {
	return c.namespace + k
}

// Get returns the value under key. Misses, backend errors and values that
// no longer decode all report false.
func (c *TypedCache[T]) Get(ctx context.Context, key string) (*T, bool) {
	data, err := c.cache.Get(ctx, c.key(key))
	if err != nil {
		return nil, false
	}

	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, false
	}
	return &v, true
}

// Set stores value under key with the default TTL.
func (c *TypedCache[T]) Set(ctx context.Context, key string, value *T) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.cache.Set(ctx, c.key(key), data, c.defaultTTL)
}

// Delete removes key.
func (c *TypedCache[T]) Delete(ctx context.Context, key string) error {
	return c.cache.Delete(ctx, c.key(key))
}

// Invalidate removes every key of the namespace.
func (c *TypedCache[T]) Invalidate(ctx context.Context) error {
	return c.cache.DeleteByPrefix(ctx, c.namespace)
}

// GetOrSet returns the cached value under key or computes, stores and
// returns it. A failing store is logged; the computed value is still
// returned.
func (c *TypedCache[T]) GetOrSet(ctx context.Context, key string, fn func() (*T, error)) (*T, error) {
	if v, ok := c.Get(ctx, key); ok {
		return v, nil
	}

	v, err := fn()
	if err != nil {
		return nil, err
	}
	if err := c.Set(ctx, key, v); err != nil {
		slog.Warn("failed to cache value", "key", c.key(key), "error", err)
	}
	return v, nil
}
