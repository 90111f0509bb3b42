// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package store

import (
	"context"
	"fmt"
	"reflect"
)

// Manager is a limited query set bound to one mapped model. It queries
// through the session of the context it is called with.
//
// Models that need more query methods embed *Manager[T] in their own type
// and attach that with WithManager:
//
//	type UserManager struct{ *store.Manager[User] }
//
//	func (m *UserManager) Authors(ctx context.Context) *store.Query[User] {
//		return m.Filter(ctx, "role >= ?", RoleAuthor)
//	}
type Manager[T any] struct {
	mapping *Mapping
}

// NewManager returns an unbound manager for T.
func NewManager[T any]() *Manager[T] {
	return &Manager[T]{}
}

// Bind binds the manager to the mapping of its model. It is called by Map.
func (m *Manager[T]) Bind(mapping *Mapping) error {
	if m.mapping != nil {
		return ErrAlreadyBound
	}
	if mapping.Model() != m.Model() {
		return fmt.Errorf("manager for %s cannot be bound to %s", m.Model().Name(), mapping.Model().Name())
	}
	m.mapping = mapping
	return nil
}

// Model returns the model type the manager serves.
func (m *Manager[T]) Model() reflect.Type {
	return reflect.TypeFor[T]()
}

// Mapping returns the mapping the manager is bound to, or nil.
func (m *Manager[T]) Mapping() *Mapping {
	return m.mapping
}

// Base returns the manager itself. Types embedding *Manager[T] inherit it,
// which is how ManagerOf finds the base manager of a custom one.
func (m *Manager[T]) Base() *Manager[T] {
	return m
}

// Query returns a new query over all rows of the model.
func (m *Manager[T]) Query(ctx context.Context) *Query[T] {
	if m.mapping == nil {
		return failedQuery[T](ctx, fmt.Errorf("%s manager: %w", m.Model().Name(), ErrNotMapped))
	}
	return newQuery[T](ctx, m.mapping.primaryKey())
}

// At returns the object at position i of the unordered query.
func (m *Manager[T]) At(ctx context.Context, i int) (*T, error) {
	return m.Query(ctx).At(i)
}

// All returns all objects.
func (m *Manager[T]) All(ctx context.Context) ([]*T, error) {
	return m.Query(ctx).All()
}

// First returns the first object.
func (m *Manager[T]) First(ctx context.Context) (*T, error) {
	return m.Query(ctx).First()
}

// One returns the only object, failing with ErrMultipleResults if more than
// one row exists and ErrNotFound if none does.
func (m *Manager[T]) One(ctx context.Context) (*T, error) {
	return m.Query(ctx).One()
}

// Get looks an object up by primary key.
func (m *Manager[T]) Get(ctx context.Context, id any) (*T, error) {
	return m.Query(ctx).Get(id)
}

// Filter filters all objects by a condition and returns the query.
func (m *Manager[T]) Filter(ctx context.Context, cond any, args ...any) *Query[T] {
	return m.Query(ctx).Filter(cond, args...)
}

// FilterBy filters by column equality.
func (m *Manager[T]) FilterBy(ctx context.Context, fields map[string]any) *Query[T] {
	return m.Query(ctx).FilterBy(fields)
}

// OrderBy orders all objects.
func (m *Manager[T]) OrderBy(ctx context.Context, order string) *Query[T] {
	return m.Query(ctx).OrderBy(order)
}

// Limit limits all objects.
func (m *Manager[T]) Limit(ctx context.Context, limit int) *Query[T] {
	return m.Query(ctx).Limit(limit)
}

// Offset returns a query with an offset.
func (m *Manager[T]) Offset(ctx context.Context, offset int) *Query[T] {
	return m.Query(ctx).Offset(offset)
}

// Count counts all objects.
func (m *Manager[T]) Count(ctx context.Context) (int64, error) {
	return m.Query(ctx).Count()
}
