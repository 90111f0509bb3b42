// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package model

// Page is a static page outside the post stream.
type Page struct {
	ID            int64          `gorm:"column:page_id;primaryKey" json:"id"`
	Key           string         `gorm:"column:key" json:"key"`
	Title         string         `gorm:"column:title" json:"title"`
	Body          string         `gorm:"column:body" json:"body"`
	Extra         map[string]any `gorm:"column:extra;serializer:json" json:"extra,omitempty"`
	NavigationPos *int           `gorm:"column:navigation_pos" json:"navigation_pos,omitempty"`
	ParentID      *int64         `gorm:"column:parent_id" json:"parent_id,omitempty"`
	Parent        *Page          `gorm:"foreignKey:ParentID;references:ID" json:"-"`
}

// TableName implements gorm's schema.Tabler.
func (Page) TableName() string {
	return "pages"
}

// InNavigation reports whether the page has a navigation position.
func (p *Page) InNavigation() bool {
	return p.NavigationPos != nil
}
