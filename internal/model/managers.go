// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package model

import (
	"context"
	"fmt"
	"time"

	"github.com/olegiv/textpress-go/internal/store"
)

// UserManager queries users.
type UserManager struct {
	*store.Manager[User]
}

// Authors returns the users allowed to write posts.
func (m *UserManager) Authors(ctx context.Context) *store.Query[User] {
	return m.Filter(ctx, "role >= ?", RoleAuthor).OrderBy("username")
}

// Admins returns the administrators.
func (m *UserManager) Admins(ctx context.Context) *store.Query[User] {
	return m.FilterBy(ctx, map[string]any{"role": RoleAdmin}).OrderBy("user_id")
}

// ByUsername looks a user up by username.
func (m *UserManager) ByUsername(ctx context.Context, username string) (*User, error) {
	return m.FilterBy(ctx, map[string]any{"username": username}).One()
}

// PostManager queries posts.
type PostManager struct {
	*store.Manager[Post]
	now func() time.Time
}

// Published returns the published posts whose publication date has passed.
func (m *PostManager) Published(ctx context.Context) *store.Query[Post] {
	return m.Filter(ctx, "status = ? AND pub_date <= ?", PostStatusPublished, m.now().UTC())
}

// ByLastUpdate returns all posts, most recently updated first.
func (m *PostManager) ByLastUpdate(ctx context.Context) *store.Query[Post] {
	return m.OrderBy(ctx, "last_update DESC, post_id DESC")
}

// BySlug looks a post up by slug.
func (m *PostManager) BySlug(ctx context.Context, slug string) (*Post, error) {
	return m.FilterBy(ctx, map[string]any{"slug": slug}).First()
}

// TagManager queries tags.
type TagManager struct {
	*store.Manager[Tag]
}

// BySlug looks a tag up by slug.
func (m *TagManager) BySlug(ctx context.Context, slug string) (*Tag, error) {
	return m.FilterBy(ctx, map[string]any{"slug": slug}).One()
}

// Managers are the query managers of all blog models.
type Managers struct {
	Mapper   *store.Mapper
	Users    *UserManager
	Posts    *PostManager
	Tags     *TagManager
	Comments *store.Manager[Comment]
	Links    *store.Manager[PostLink]
	Pages    *store.Manager[Page]
}

// Setup maps every model on mapper and returns the managers. Users, posts
// and tags get their custom managers as default manager; the others get the
// plain default manager.
func Setup(mapper *store.Mapper) (*Managers, error) {
	m := &Managers{
		Mapper: mapper,
		Users:  &UserManager{Manager: store.NewManager[User]()},
		Posts:  &PostManager{Manager: store.NewManager[Post](), now: time.Now},
		Tags:   &TagManager{Manager: store.NewManager[Tag]()},
	}

	if _, err := store.Map[User](mapper, store.WithManager(store.DefaultManagerName, m.Users)); err != nil {
		return nil, err
	}
	if _, err := store.Map[Post](mapper, store.WithManager(store.DefaultManagerName, m.Posts)); err != nil {
		return nil, err
	}
	if _, err := store.Map[Tag](mapper, store.WithManager(store.DefaultManagerName, m.Tags)); err != nil {
		return nil, err
	}
	if _, err := store.Map[Comment](mapper); err != nil {
		return nil, err
	}
	if _, err := store.Map[PostLink](mapper); err != nil {
		return nil, err
	}
	if _, err := store.Map[Page](mapper); err != nil {
		return nil, err
	}

	var err error
	if m.Comments, err = store.Objects[Comment](mapper); err != nil {
		return nil, fmt.Errorf("comment manager: %w", err)
	}
	if m.Links, err = store.Objects[PostLink](mapper); err != nil {
		return nil, fmt.Errorf("post link manager: %w", err)
	}
	if m.Pages, err = store.Objects[Page](mapper); err != nil {
		return nil, fmt.Errorf("page manager: %w", err)
	}
	return m, nil
}

// NewUser creates a user registered in the session of ctx.
func (m *Managers) NewUser(ctx context.Context, init func(*User) error) (*User, error) {
	return store.New(ctx, m.Mapper, init)
}

// NewPost creates a post registered in the session of ctx.
func (m *Managers) NewPost(ctx context.Context, init func(*Post) error) (*Post, error) {
	return store.New(ctx, m.Mapper, init)
}

// NewTag creates a tag registered in the session of ctx.
func (m *Managers) NewTag(ctx context.Context, init func(*Tag) error) (*Tag, error) {
	return store.New(ctx, m.Mapper, init)
}

// NewComment creates a comment registered in the session of ctx.
func (m *Managers) NewComment(ctx context.Context, init func(*Comment) error) (*Comment, error) {
	return store.New(ctx, m.Mapper, init)
}
