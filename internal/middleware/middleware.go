// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package middleware provides HTTP middleware for request-scoped database
// sessions, authentication and rate limiting.
package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/olegiv/textpress-go/internal/model"
)

// ContextKey is a type for context keys to avoid collisions.
type ContextKey string

// ContextKeyUser is the context key of the authenticated user.
const ContextKeyUser ContextKey = "user"

// GetUser returns the authenticated user of the request, or nil.
func GetUser(r *http.Request) *model.User {
	u, _ := r.Context().Value(ContextKeyUser).(*model.User)
	return u
}

// APIError represents a JSON error response.
type APIError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// WriteAPIError writes a JSON error response.
func WriteAPIError(w http.ResponseWriter, statusCode int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	apiErr := APIError{}
	apiErr.Error.Code = code
	apiErr.Error.Message = message

	_ = json.NewEncoder(w).Encode(apiErr)
}
