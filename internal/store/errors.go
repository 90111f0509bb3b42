// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package store

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a query that needs a row finds none.
	ErrNotFound = errors.New("record not found")

	// ErrMultipleResults is returned by One when more than one row matches.
	ErrMultipleResults = errors.New("multiple rows found where one was expected")

	// ErrNoSession is returned when an operation needs the session of the
	// current scope but the context carries none.
	ErrNoSession = errors.New("no database session in context")

	// ErrNotMapped is returned for model types that were never mapped, and by
	// managers that were never bound.
	ErrNotMapped = errors.New("model is not mapped")

	// ErrAlreadyBound is returned when a manager is bound a second time.
	ErrAlreadyBound = errors.New("manager already bound to model")

	// ErrSessionClosed is returned by a session after Close.
	ErrSessionClosed = errors.New("session closed")
)

// AttributeCollisionError is returned by Map when a model has no manager
// attached and the default manager name is already taken by the model.
type AttributeCollisionError struct {
	Model     string
	Attribute string
}

func (e *AttributeCollisionError) Error() string {
	return fmt.Sprintf("the model %s already has an attribute called %q; "+
		"either rename the attribute or attach a manager under a different name",
		e.Model, e.Attribute)
}
