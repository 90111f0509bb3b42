// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package store

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"

	"gorm.io/gorm"
)

// Session is a unit of work. Objects handed to Add are written on the next
// Flush, objects handed to Delete are removed after that. Loaded objects are
// not tracked for changes: modify them and Add them again.
//
// Managers flush the session of the context before they query, so pending
// work is always visible to reads made through the same session.
type Session struct {
	engine *Engine

	mu      sync.Mutex
	tx      *gorm.DB
	pending []any
	deleted []any
	closed  bool
}

// NewSession creates a session on the engine. Most code gets its session
// from the context instead, see Enter.
func (e *Engine) NewSession() *Session {
	return &Session{engine: e}
}

// Engine returns the engine the session talks to.
func (s *Session) Engine() *Engine {
	return s.engine
}

// Add marks obj for saving. obj must be a non-nil pointer to a struct.
// Adding the same object twice is a no-op.
func (s *Session) Add(obj any) error {
	if err := checkEntity(obj); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}

	s.deleted = removeObject(s.deleted, obj)
	if indexOf(s.pending, obj) < 0 {
		s.pending = append(s.pending, obj)
	}
	return nil
}

// Expunge forgets obj without touching the database.
func (s *Session) Expunge(obj any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = removeObject(s.pending, obj)
	s.deleted = removeObject(s.deleted, obj)
}

// IsPending reports whether obj waits to be saved.
func (s *Session) IsPending(obj any) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return indexOf(s.pending, obj) >= 0
}

// Pending returns the number of objects waiting to be saved or deleted.
func (s *Session) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending) + len(s.deleted)
}

// Delete marks obj for deletion. An object that was never written is just
// dropped from the pending queue.
func (s *Session) Delete(ctx context.Context, obj any) error {
	if err := checkEntity(obj); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}

	s.pending = removeObject(s.pending, obj)

	zero, err := s.primaryKeyZero(ctx, obj)
	if err != nil {
		return err
	}
	if zero {
		return nil
	}
	if indexOf(s.deleted, obj) < 0 {
		s.deleted = append(s.deleted, obj)
	}
	return nil
}

// Flush writes all pending saves and deletes, in the order they were queued,
// inside the open transaction or a transaction of its own. On failure the
// queues are kept.
func (s *Session) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	return s.flushLocked(ctx)
}

func (s *Session) flushLocked(ctx context.Context) error {
	if len(s.pending) == 0 && len(s.deleted) == 0 {
		return nil
	}

	write := func(tx *gorm.DB) error {
		for _, obj := range s.pending {
			if err := tx.Save(obj).Error; err != nil {
				return fmt.Errorf("saving %T: %w", obj, err)
			}
		}
		for _, obj := range s.deleted {
			if err := tx.Delete(obj).Error; err != nil {
				return fmt.Errorf("deleting %T: %w", obj, err)
			}
		}
		return nil
	}

	var err error
	if s.tx != nil {
		err = write(s.tx.WithContext(ctx))
	} else {
		err = s.engine.gormDB.WithContext(ctx).Transaction(write)
	}
	if err != nil {
		return err
	}

	s.pending = nil
	s.deleted = nil
	return nil
}

// Begin opens a transaction. Until Commit or Rollback every statement of
// the session runs inside it.
func (s *Session) Begin(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	if s.tx != nil {
		return errors.New("transaction already open")
	}

	tx := s.engine.gormDB.WithContext(ctx).Begin()
	if tx.Error != nil {
		return fmt.Errorf("beginning transaction: %w", tx.Error)
	}
	s.tx = tx
	return nil
}

// InTransaction reports whether Begin was called without a matching
// Commit or Rollback.
func (s *Session) InTransaction() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tx != nil
}

// Commit flushes pending work and commits the open transaction. Without an
// open transaction it only flushes.
func (s *Session) Commit(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}

	if err := s.flushLocked(ctx); err != nil {
		return err
	}
	if s.tx == nil {
		return nil
	}

	err := s.tx.Commit().Error
	s.tx = nil
	if err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// Rollback rolls back the open transaction and discards pending work.
func (s *Session) Rollback() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rollbackLocked()
}

func (s *Session) rollbackLocked() error {
	s.pending = nil
	s.deleted = nil
	if s.tx == nil {
		return nil
	}

	err := s.tx.Rollback().Error
	s.tx = nil
	if err != nil {
		return fmt.Errorf("rolling back transaction: %w", err)
	}
	return nil
}

// Clear discards pending work but keeps the open transaction.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = nil
	s.deleted = nil
}

// Refresh reloads obj from the database by its primary key.
func (s *Session) Refresh(ctx context.Context, obj any) error {
	if err := checkEntity(obj); err != nil {
		return err
	}
	if err := s.Flush(ctx); err != nil {
		return err
	}

	err := s.DB(ctx).Take(obj).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// Execute runs a raw statement after flushing and returns the number of
// affected rows.
func (s *Session) Execute(ctx context.Context, query string, args ...any) (int64, error) {
	if err := s.Flush(ctx); err != nil {
		return 0, err
	}

	res := s.DB(ctx).Exec(query, args...)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

// DB returns a GORM handle bound to ctx and to the open transaction, if any.
func (s *Session) DB(ctx context.Context) *gorm.DB {
	s.mu.Lock()
	tx := s.tx
	s.mu.Unlock()

	if tx != nil {
		return tx.WithContext(ctx)
	}
	return s.engine.gormDB.WithContext(ctx)
}

// Close rolls back anything still open. The session cannot be used
// afterwards.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.rollbackLocked()
}

// primaryKeyZero reports whether obj has not been assigned a primary key yet.
func (s *Session) primaryKeyZero(ctx context.Context, obj any) (bool, error) {
	stmt := &gorm.Statement{DB: s.engine.gormDB}
	if err := stmt.Parse(obj); err != nil {
		return false, fmt.Errorf("parsing %T: %w", obj, err)
	}
	field := stmt.Schema.PrioritizedPrimaryField
	if field == nil {
		return false, fmt.Errorf("%T has no primary key", obj)
	}
	_, zero := field.ValueOf(ctx, reflect.Indirect(reflect.ValueOf(obj)))
	return zero, nil
}

func checkEntity(obj any) error {
	v := reflect.ValueOf(obj)
	if v.Kind() != reflect.Pointer || v.IsNil() || v.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("entity must be a non-nil pointer to a struct, got %T", obj)
	}
	return nil
}

func indexOf(objs []any, obj any) int {
	for i, o := range objs {
		if o == obj {
			return i
		}
	}
	return -1
}

func removeObject(objs []any, obj any) []any {
	if i := indexOf(objs, obj); i >= 0 {
		return append(objs[:i], objs[i+1:]...)
	}
	return objs
}
