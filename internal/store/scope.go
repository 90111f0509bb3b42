// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package store

import "context"

type sessionKey struct{}

// Enter starts a session scope: it returns a context carrying a fresh
// session. Every request, command and job enters its own scope and calls
// Remove when it is done.
func (e *Engine) Enter(ctx context.Context) (context.Context, *Session) {
	s := e.NewSession()
	return WithSession(ctx, s), s
}

// WithSession returns a context carrying s.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// FromContext returns the session of the current scope.
func FromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(sessionKey{}).(*Session)
	return s, ok && s != nil
}

// MustFromContext is like FromContext but fails with ErrNoSession.
func MustFromContext(ctx context.Context) (*Session, error) {
	s, ok := FromContext(ctx)
	if !ok {
		return nil, ErrNoSession
	}
	return s, nil
}

// Remove closes the session of the current scope, rolling back whatever was
// left open. It is safe to call on a context without a session.
func Remove(ctx context.Context) error {
	if s, ok := FromContext(ctx); ok {
		return s.Close()
	}
	return nil
}
