// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/olegiv/textpress-go/internal/content"
	"github.com/olegiv/textpress-go/internal/util"
)

// PostStatus is the publication state of a post.
type PostStatus int

// Post statuses
const (
	PostStatusDraft     PostStatus = 1
	PostStatusPublished PostStatus = 2
)

// UntitledSlug is the slug of posts whose title yields no slug.
const UntitledSlug = "untitled"

// ParserData holds the markup a text was written in and its rendered HTML.
type ParserData struct {
	Parser string `json:"parser"`
	Body   string `json:"body,omitempty"`
	Intro  string `json:"intro,omitempty"`
}

// Post represents a blog post. Intro and Body hold the raw markup; the
// rendered HTML lives in ParserData.
type Post struct {
	ID              int64          `gorm:"column:post_id;primaryKey" json:"id"`
	PubDate         time.Time      `gorm:"column:pub_date" json:"pub_date"`
	LastUpdate      time.Time      `gorm:"column:last_update" json:"last_update"`
	Slug            string         `gorm:"column:slug" json:"slug"`
	UID             string         `gorm:"column:uid" json:"uid"`
	Title           string         `gorm:"column:title" json:"title"`
	Intro           string         `gorm:"column:intro" json:"intro"`
	Body            string         `gorm:"column:body" json:"body"`
	AuthorID        *int64         `gorm:"column:author_id" json:"author_id"`
	Author          *User          `gorm:"foreignKey:AuthorID;references:ID" json:"author,omitempty"`
	CommentsEnabled bool           `gorm:"column:comments_enabled;not null" json:"comments_enabled"`
	PingsEnabled    bool           `gorm:"column:pings_enabled;not null" json:"pings_enabled"`
	ParserData      ParserData     `gorm:"column:parser_data;serializer:json" json:"parser_data"`
	Extra           map[string]any `gorm:"column:extra;serializer:json" json:"extra,omitempty"`
	Status          PostStatus     `gorm:"column:status" json:"status"`

	Tags     []*Tag      `gorm:"many2many:post_tags;joinForeignKey:post_id;joinReferences:tag_id" json:"tags,omitempty"`
	Comments []*Comment  `gorm:"foreignKey:PostID" json:"comments,omitempty"`
	Links    []*PostLink `gorm:"foreignKey:PostID" json:"links,omitempty"`
}

// TableName implements gorm's schema.Tabler.
func (Post) TableName() string {
	return "posts"
}

// IsPublished returns true if the post is published.
func (p *Post) IsPublished() bool {
	return p.Status == PostStatusPublished
}

// IsDraft returns true if the post is a draft.
func (p *Post) IsDraft() bool {
	return p.Status == PostStatusDraft
}

// RenderedBody returns the HTML of the body.
func (p *Post) RenderedBody() string {
	return p.ParserData.Body
}

// RenderedIntro returns the HTML of the intro, empty if there is none.
func (p *Post) RenderedIntro() string {
	return p.ParserData.Intro
}

// Touch sets the last update time to now.
func (p *Post) Touch() {
	p.LastUpdate = time.Now().UTC()
}

// URL returns the absolute URL of the post below blogURL:
// <blog>/<yyyy>/<mm>/<dd>/<slug>.
func (p *Post) URL(blogURL string) string {
	d := p.PubDate.UTC()
	return fmt.Sprintf("%s/%04d/%02d/%02d/%s",
		strings.TrimRight(blogURL, "/"), d.Year(), d.Month(), d.Day(), p.Slug)
}

// BeforeSave fills the slug, uid and dates of new posts and renders intro
// and body.
func (p *Post) BeforeSave(*gorm.DB) error {
	if p.Slug == "" {
		p.Slug = util.Slugify(p.Title)
		if p.Slug == "" {
			p.Slug = UntitledSlug
		}
	}
	if p.UID == "" {
		p.UID = "urn:uuid:" + uuid.NewString()
	}

	now := time.Now().UTC()
	if p.PubDate.IsZero() {
		p.PubDate = now
	}
	if p.LastUpdate.IsZero() {
		p.LastUpdate = now
	}
	if p.Status == 0 {
		p.Status = PostStatusDraft
	}

	return p.render()
}

func (p *Post) render() error {
	parser := p.ParserData.Parser
	if parser == "" {
		parser = content.DefaultParser
	}

	body, err := content.Render(parser, p.Body)
	if err != nil {
		return fmt.Errorf("rendering body of post %q: %w", p.Slug, err)
	}
	var intro string
	if p.Intro != "" {
		if intro, err = content.Render(parser, p.Intro); err != nil {
			return fmt.Errorf("rendering intro of post %q: %w", p.Slug, err)
		}
	}

	p.ParserData = ParserData{Parser: parser, Body: body, Intro: intro}
	return nil
}
