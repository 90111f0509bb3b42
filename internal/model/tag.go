// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package model

import (
	"gorm.io/gorm"

	"github.com/olegiv/textpress-go/internal/util"
)

// Tag is a keyword posts are filed under.
type Tag struct {
	ID          int64  `gorm:"column:tag_id;primaryKey" json:"id"`
	Slug        string `gorm:"column:slug" json:"slug"`
	Name        string `gorm:"column:name" json:"name"`
	Description string `gorm:"column:description" json:"description"`
}

// TableName implements gorm's schema.Tabler.
func (Tag) TableName() string {
	return "tags"
}

// BeforeSave derives a missing slug from the name.
func (t *Tag) BeforeSave(*gorm.DB) error {
	if t.Slug == "" {
		t.Slug = util.Slugify(t.Name)
	}
	return nil
}
