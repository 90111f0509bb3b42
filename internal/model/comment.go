// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package model

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/olegiv/textpress-go/internal/content"
)

// CommentStatus is the moderation state of a comment.
type CommentStatus int

// Comment statuses
const (
	CommentModerated     CommentStatus = 0
	CommentUnmoderated   CommentStatus = 1
	CommentBlockedByUser CommentStatus = 2
	CommentBlockedSpam   CommentStatus = 3
)

// Comment is a reader comment or pingback on a post.
type Comment struct {
	ID          int64         `gorm:"column:comment_id;primaryKey" json:"id"`
	PostID      int64         `gorm:"column:post_id" json:"post_id"`
	UserID      *int64        `gorm:"column:user_id" json:"user_id,omitempty"`
	User        *User         `gorm:"foreignKey:UserID;references:ID" json:"-"`
	Author      string        `gorm:"column:author" json:"author"`
	Email       string        `gorm:"column:email" json:"email"`
	WWW         string        `gorm:"column:www" json:"www"`
	Body        string        `gorm:"column:body" json:"body"`
	IsPingback  bool          `gorm:"column:is_pingback;not null" json:"is_pingback"`
	ParserData  ParserData    `gorm:"column:parser_data;serializer:json" json:"parser_data"`
	ParentID    *int64        `gorm:"column:parent_id" json:"parent_id,omitempty"`
	Parent      *Comment      `gorm:"foreignKey:ParentID;references:ID" json:"-"`
	PubDate     time.Time     `gorm:"column:pub_date" json:"pub_date"`
	BlockedMsg  string        `gorm:"column:blocked_msg" json:"blocked_msg"`
	SubmitterIP string        `gorm:"column:submitter_ip" json:"-"`
	Status      CommentStatus `gorm:"column:status;not null" json:"status"`
}

// TableName implements gorm's schema.Tabler.
func (Comment) TableName() string {
	return "comments"
}

// Blocked reports whether the comment was blocked by a user or as spam.
func (c *Comment) Blocked() bool {
	return c.Status == CommentBlockedByUser || c.Status == CommentBlockedSpam
}

// RenderedBody returns the HTML of the body.
func (c *Comment) RenderedBody() string {
	return c.ParserData.Body
}

// BeforeSave sets the publication date of new comments and renders the body.
// Comments are plain text unless a parser was chosen.
func (c *Comment) BeforeSave(*gorm.DB) error {
	if c.PubDate.IsZero() {
		c.PubDate = time.Now().UTC()
	}

	parser := c.ParserData.Parser
	if parser == "" {
		parser = content.Text
	}
	body, err := content.Render(parser, c.Body)
	if err != nil {
		return fmt.Errorf("rendering comment: %w", err)
	}
	c.ParserData = ParserData{Parser: parser, Body: body}
	return nil
}
