// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package model

// PostLink is an additional link of a post, such as an enclosure.
type PostLink struct {
	ID       int64  `gorm:"column:link_id;primaryKey" json:"id"`
	PostID   int64  `gorm:"column:post_id" json:"post_id"`
	Href     string `gorm:"column:href;not null" json:"href"`
	Rel      string `gorm:"column:rel" json:"rel,omitempty"`
	Type     string `gorm:"column:type" json:"type,omitempty"`
	HrefLang string `gorm:"column:hreflang" json:"hreflang,omitempty"`
	Title    string `gorm:"column:title" json:"title,omitempty"`
	Length   *int64 `gorm:"column:length" json:"length,omitempty"`
}

// TableName implements gorm's schema.Tabler.
func (PostLink) TableName() string {
	return "post_links"
}
