// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package store

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DefaultBatchSize is the page size Each uses when given a size <= 0.
const DefaultBatchSize = 100

type scope func(*gorm.DB) *gorm.DB

// Query is an immutable query over one model. Every chaining method returns
// a new Query; nothing runs until a terminal method (All, First, One, Get,
// Count, At, Each) is called, and every terminal flushes the session first.
type Query[T any] struct {
	ctx    context.Context
	pk     string
	scopes []scope
	err    error
}

func newQuery[T any](ctx context.Context, pk string) *Query[T] {
	return &Query[T]{ctx: ctx, pk: pk}
}

func failedQuery[T any](ctx context.Context, err error) *Query[T] {
	return &Query[T]{ctx: ctx, err: err}
}

func (q *Query[T]) with(s scope) *Query[T] {
	return &Query[T]{
		ctx:    q.ctx,
		pk:     q.pk,
		err:    q.err,
		scopes: append(slices.Clip(q.scopes), s),
	}
}

// Filter adds a condition, in any form gorm.DB.Where accepts.
func (q *Query[T]) Filter(cond any, args ...any) *Query[T] {
	return q.with(func(db *gorm.DB) *gorm.DB { return db.Where(cond, args...) })
}

// FilterBy adds equality conditions keyed by column name.
func (q *Query[T]) FilterBy(fields map[string]any) *Query[T] {
	return q.with(func(db *gorm.DB) *gorm.DB { return db.Where(fields) })
}

// OrderBy adds an ORDER BY term such as "last_update DESC".
func (q *Query[T]) OrderBy(order string) *Query[T] {
	return q.with(func(db *gorm.DB) *gorm.DB { return db.Order(order) })
}

// Limit limits the number of rows.
func (q *Query[T]) Limit(limit int) *Query[T] {
	return q.with(func(db *gorm.DB) *gorm.DB { return db.Limit(limit) })
}

// Offset skips rows.
func (q *Query[T]) Offset(offset int) *Query[T] {
	return q.with(func(db *gorm.DB) *gorm.DB { return db.Offset(offset) })
}

// Preload loads an association together with the rows.
func (q *Query[T]) Preload(association string, args ...any) *Query[T] {
	return q.with(func(db *gorm.DB) *gorm.DB { return db.Preload(association, args...) })
}

// Err returns the error the query carries from construction, if any.
func (q *Query[T]) Err() error {
	return q.err
}

// build flushes the session of the context and returns the statement.
func (q *Query[T]) build() (*gorm.DB, error) {
	if q.err != nil {
		return nil, q.err
	}
	sess, err := MustFromContext(q.ctx)
	if err != nil {
		return nil, err
	}
	if err := sess.Flush(q.ctx); err != nil {
		return nil, fmt.Errorf("autoflush: %w", err)
	}

	db := sess.DB(q.ctx).Model(new(T))
	for _, s := range q.scopes {
		db = s(db)
	}
	return db, nil
}

// All returns every matching object.
func (q *Query[T]) All() ([]*T, error) {
	db, err := q.build()
	if err != nil {
		return nil, err
	}

	var out []*T
	if err := db.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// First returns the first matching object in query order.
func (q *Query[T]) First() (*T, error) {
	db, err := q.build()
	if err != nil {
		return nil, err
	}

	out := new(T)
	if err := db.Take(out).Error; err != nil {
		return nil, translate(err)
	}
	return out, nil
}

// One returns the only matching object.
func (q *Query[T]) One() (*T, error) {
	db, err := q.build()
	if err != nil {
		return nil, err
	}

	var out []*T
	if err := db.Limit(2).Find(&out).Error; err != nil {
		return nil, err
	}
	switch len(out) {
	case 0:
		return nil, ErrNotFound
	case 1:
		return out[0], nil
	default:
		return nil, ErrMultipleResults
	}
}

// Get returns the matching object with primary key id.
func (q *Query[T]) Get(id any) (*T, error) {
	db, err := q.build()
	if err != nil {
		return nil, err
	}
	if q.pk == "" {
		return nil, errors.New("model has no primary key")
	}

	out := new(T)
	cond := clause.Eq{Column: clause.Column{Table: clause.CurrentTable, Name: q.pk}, Value: id}
	if err := db.Where(cond).Take(out).Error; err != nil {
		return nil, translate(err)
	}
	return out, nil
}

// At returns the object at position i.
func (q *Query[T]) At(i int) (*T, error) {
	if i < 0 {
		return nil, fmt.Errorf("negative index %d", i)
	}
	db, err := q.build()
	if err != nil {
		return nil, err
	}

	var out []*T
	if err := db.Offset(i).Limit(1).Find(&out).Error; err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, ErrNotFound
	}
	return out[0], nil
}

// Count counts the matching rows.
func (q *Query[T]) Count() (int64, error) {
	db, err := q.build()
	if err != nil {
		return 0, err
	}

	var n int64
	if err := db.Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}

// Each walks the matching objects page by page, keeping the query order,
// and stops at the first error fn returns. Limit and Offset of the query are
// replaced by the paging.
func (q *Query[T]) Each(batchSize int, fn func(*T) error) error {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	db, err := q.build()
	if err != nil {
		return err
	}
	base := db.Session(&gorm.Session{})

	for offset := 0; ; offset += batchSize {
		if err := q.ctx.Err(); err != nil {
			return err
		}

		var batch []*T
		if err := base.Offset(offset).Limit(batchSize).Find(&batch).Error; err != nil {
			return err
		}
		for _, obj := range batch {
			if err := fn(obj); err != nil {
				return err
			}
		}
		if len(batch) < batchSize {
			return nil
		}
	}
}

func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
