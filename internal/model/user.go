// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package model defines the blog models (users, posts, tags, comments,
// pages and post links), their query managers and the statistics queries
// built on them.
package model

import (
	"fmt"
	"strings"

	"github.com/olegiv/textpress-go/internal/auth"
)

// Role is the permission level of a user.
type Role int

// User roles, in increasing order of permissions.
const (
	RoleNobody Role = iota
	RoleSubscriber
	RoleAuthor
	RoleEditor
	RoleAdmin
)

var roleNames = [...]string{"nobody", "subscriber", "author", "editor", "admin"}

func (r Role) String() string {
	if r >= 0 && int(r) < len(roleNames) {
		return roleNames[r]
	}
	return fmt.Sprintf("role(%d)", int(r))
}

// ParseRole parses a role name.
func ParseRole(name string) (Role, error) {
	for i, n := range roleNames {
		if strings.EqualFold(name, n) {
			return Role(i), nil
		}
	}
	return RoleNobody, fmt.Errorf("unknown role %q", name)
}

// DefaultDisplayFormat is the display name format of new users.
const DefaultDisplayFormat = "$nick"

// User represents a blog user.
type User struct {
	ID            int64          `gorm:"column:user_id;primaryKey" json:"id"`
	Username      string         `gorm:"column:username" json:"username"`
	FirstName     string         `gorm:"column:first_name" json:"first_name"`
	LastName      string         `gorm:"column:last_name" json:"last_name"`
	DisplayFormat string         `gorm:"column:display_name" json:"display_name"` // e.g. "$first $last"
	Description   string         `gorm:"column:description" json:"description"`
	Extra         map[string]any `gorm:"column:extra;serializer:json" json:"extra,omitempty"`
	PasswordHash  string         `gorm:"column:pw_hash" json:"-"` // Never expose in JSON
	Email         string         `gorm:"column:email" json:"email"`
	WWW           string         `gorm:"column:www" json:"www"`
	Role          Role           `gorm:"column:role" json:"role"`
}

// TableName implements gorm's schema.Tabler.
func (User) TableName() string {
	return "users"
}

// DisplayName expands the display name format. $nick and $username stand
// for the username, $first and $last for the first and last name. An empty
// result falls back to the username.
func (u *User) DisplayName() string {
	format := u.DisplayFormat
	if format == "" {
		format = DefaultDisplayFormat
	}
	r := strings.NewReplacer(
		"$username", u.Username,
		"$nick", u.Username,
		"$first", u.FirstName,
		"$last", u.LastName,
	)
	if name := strings.TrimSpace(r.Replace(format)); name != "" {
		return name
	}
	return u.Username
}

// IsAdmin returns true if the user has admin role.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// HasRole reports whether the user has at least role r.
func (u *User) HasRole(r Role) bool {
	return u.Role >= r
}

// SetPassword hashes password into PasswordHash.
func (u *User) SetPassword(password string) error {
	hash, err := auth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}
	u.PasswordHash = hash
	return nil
}

// CheckPassword reports whether password matches the stored hash. Users
// without a hash never match.
func (u *User) CheckPassword(password string) bool {
	if u.PasswordHash == "" {
		return false
	}
	ok, err := auth.CheckPassword(password, u.PasswordHash)
	return err == nil && ok
}
