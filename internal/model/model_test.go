// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package model

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olegiv/textpress-go/internal/store"
	"github.com/olegiv/textpress-go/internal/testutil"
)

func setupModels(t *testing.T) (context.Context, *store.Session, *Managers) {
	t.Helper()
	engine, cleanup := testutil.TestEngine(t)
	t.Cleanup(cleanup)

	m, err := Setup(store.NewMapper(engine))
	require.NoError(t, err)

	ctx, sess := testutil.TestScope(t, engine)
	return ctx, sess, m
}

func day(y int, mo time.Month, d int) time.Time {
	return time.Date(y, mo, d, 12, 0, 0, 0, time.UTC)
}

func addUser(t *testing.T, ctx context.Context, m *Managers, username string, role Role) *User {
	t.Helper()
	u, err := m.NewUser(ctx, func(u *User) error {
		u.Username = username
		u.Email = username + "@example.com"
		u.Role = role
		return nil
	})
	require.NoError(t, err)
	return u
}

func addPost(t *testing.T, ctx context.Context, m *Managers, title string, status PostStatus, pub time.Time, tags ...*Tag) *Post {
	t.Helper()
	p, err := m.NewPost(ctx, func(p *Post) error {
		p.Title = title
		p.Body = "Body of " + title
		p.Status = status
		p.PubDate = pub
		p.LastUpdate = pub
		p.Tags = tags
		return nil
	})
	require.NoError(t, err)
	return p
}

func TestSetup(t *testing.T) {
	engine, cleanup := testutil.TestEngine(t)
	defer cleanup()
	mapper := store.NewMapper(engine)

	m, err := Setup(mapper)
	require.NoError(t, err)

	tables := make([]string, 0)
	for _, mp := range mapper.Mappings() {
		tables = append(tables, mp.Table())
	}
	assert.Equal(t, []string{"comments", "pages", "post_links", "posts", "tags", "users"}, tables)

	users, err := store.Objects[User](mapper)
	require.NoError(t, err)
	assert.Same(t, m.Users.Manager, users)

	_, err = Setup(mapper)
	assert.Error(t, err, "mapping the models twice must fail")
}

func TestRoles(t *testing.T) {
	assert.Equal(t, "editor", RoleEditor.String())
	assert.Equal(t, "role(9)", Role(9).String())

	r, err := ParseRole("Admin")
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, r)

	_, err = ParseRole("owner")
	assert.Error(t, err)

	u := &User{Role: RoleEditor}
	assert.True(t, u.HasRole(RoleAuthor))
	assert.False(t, u.HasRole(RoleAdmin))
	assert.False(t, u.IsAdmin())
}

func TestUserDisplayName(t *testing.T) {
	tests := []struct {
		format string
		want   string
	}{
		{"", "mitsuhiko"},
		{"$nick", "mitsuhiko"},
		{"$first $last", "Armin Ronacher"},
		{"$first ($username)", "Armin (mitsuhiko)"},
		{"Mr. $last", "Mr. Ronacher"},
		{"   ", "mitsuhiko"},
	}
	for _, tt := range tests {
		u := &User{Username: "mitsuhiko", FirstName: "Armin", LastName: "Ronacher", DisplayFormat: tt.format}
		assert.Equal(t, tt.want, u.DisplayName(), "format %q", tt.format)
	}

	anon := &User{Username: "anon", DisplayFormat: "$first"}
	assert.Equal(t, "anon", anon.DisplayName())
}

func TestUserPassword(t *testing.T) {
	u := &User{Username: "writer"}
	assert.False(t, u.CheckPassword(""), "user without hash must not match")

	require.NoError(t, u.SetPassword("s3cret"))
	assert.True(t, strings.HasPrefix(u.PasswordHash, "$argon2id$"))
	assert.True(t, u.CheckPassword("s3cret"))
	assert.False(t, u.CheckPassword("wrong"))
}

func TestPostBeforeSave(t *testing.T) {
	ctx, sess, m := setupModels(t)

	p, err := m.NewPost(ctx, func(p *Post) error {
		p.Title = "Hello, World!"
		p.Intro = "Short *intro*"
		p.Body = "Some **bold** text"
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, sess.Commit(ctx))

	assert.NotZero(t, p.ID)
	assert.Equal(t, "hello-world", p.Slug)
	assert.True(t, strings.HasPrefix(p.UID, "urn:uuid:"), "uid %q", p.UID)
	assert.Equal(t, PostStatusDraft, p.Status)
	assert.False(t, p.PubDate.IsZero())
	assert.False(t, p.LastUpdate.IsZero())
	assert.Equal(t, "markdown", p.ParserData.Parser)
	assert.Contains(t, p.RenderedBody(), "<strong>bold</strong>")
	assert.Contains(t, p.RenderedIntro(), "<em>intro</em>")

	loaded, err := m.Posts.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.UID, loaded.UID)
	assert.Equal(t, p.ParserData, loaded.ParserData)
	assert.Equal(t, "Some **bold** text", loaded.Body)
}

func TestPostUntitledAndBadParser(t *testing.T) {
	ctx, sess, m := setupModels(t)

	p, err := m.NewPost(ctx, func(p *Post) error {
		p.Title = "!!!"
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, sess.Flush(ctx))
	assert.Equal(t, UntitledSlug, p.Slug)
	assert.Empty(t, p.RenderedIntro())

	_, err = m.NewPost(ctx, func(p *Post) error {
		p.Title = "broken"
		p.ParserData.Parser = "zeml"
		return nil
	})
	require.NoError(t, err)
	assert.Error(t, sess.Flush(ctx), "unknown parser must fail the flush")
	sess.Clear()
}

func TestPostURL(t *testing.T) {
	p := &Post{Slug: "hello", PubDate: time.Date(2008, 3, 7, 23, 30, 0, 0, time.UTC)}
	assert.Equal(t, "http://example.com/blog/2008/03/07/hello", p.URL("http://example.com/blog/"))
	assert.Equal(t, "http://example.com/2008/03/07/hello", p.URL("http://example.com"))
}

func TestPostAssociations(t *testing.T) {
	ctx, sess, m := setupModels(t)

	author := addUser(t, ctx, m, "author", RoleAuthor)
	require.NoError(t, sess.Flush(ctx))

	length := int64(1024)
	p, err := m.NewPost(ctx, func(p *Post) error {
		p.Title = "With everything"
		p.Body = "body"
		p.AuthorID = &author.ID
		p.Status = PostStatusPublished
		p.Tags = []*Tag{{Name: "Go Lang"}, {Name: "Python"}}
		p.Links = []*PostLink{{Href: "http://example.com/a.mp3", Rel: "enclosure", Type: "audio/mpeg", Length: &length}}
		p.Comments = []*Comment{
			{Author: "reader", Body: "first <b>comment</b>\nsecond line", Status: CommentModerated},
			{Author: "spammer", Body: "buy", Status: CommentBlockedSpam},
		}
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, sess.Commit(ctx))

	loaded, err := m.Posts.Query(ctx).
		Preload("Author").Preload("Tags").Preload("Comments").Preload("Links").
		Get(p.ID)
	require.NoError(t, err)

	require.NotNil(t, loaded.Author)
	assert.Equal(t, "author", loaded.Author.Username)
	require.Len(t, loaded.Tags, 2)
	assert.ElementsMatch(t, []string{"go-lang", "python"}, []string{loaded.Tags[0].Slug, loaded.Tags[1].Slug})
	require.Len(t, loaded.Links, 1)
	assert.Equal(t, int64(1024), *loaded.Links[0].Length)

	require.Len(t, loaded.Comments, 2)
	var blocked int
	for _, c := range loaded.Comments {
		assert.Equal(t, p.ID, c.PostID)
		assert.Equal(t, "text", c.ParserData.Parser)
		assert.False(t, c.PubDate.IsZero())
		if c.Blocked() {
			blocked++
		}
		if c.Author == "reader" {
			assert.Equal(t, "first &lt;b&gt;comment&lt;/b&gt;<br>\nsecond line", c.RenderedBody())
		}
	}
	assert.Equal(t, 1, blocked)

	tag, err := m.Tags.BySlug(ctx, "python")
	require.NoError(t, err)
	assert.Equal(t, "Python", tag.Name)
}

func TestCommentBlocked(t *testing.T) {
	for status, want := range map[CommentStatus]bool{
		CommentModerated:     false,
		CommentUnmoderated:   false,
		CommentBlockedByUser: true,
		CommentBlockedSpam:   true,
	} {
		c := &Comment{Status: status}
		assert.Equal(t, want, c.Blocked(), "status %d", status)
	}
}

func TestUserManager(t *testing.T) {
	ctx, sess, m := setupModels(t)

	addUser(t, ctx, m, "zoe", RoleEditor)
	addUser(t, ctx, m, "reader", RoleSubscriber)
	addUser(t, ctx, m, "adam", RoleAuthor)
	addUser(t, ctx, m, "root", RoleAdmin)
	require.NoError(t, sess.Commit(ctx))

	authors, err := m.Users.Authors(ctx).All()
	require.NoError(t, err)
	names := make([]string, 0, len(authors))
	for _, u := range authors {
		names = append(names, u.Username)
	}
	assert.Equal(t, []string{"adam", "root", "zoe"}, names)

	u, err := m.Users.ByUsername(ctx, "reader")
	require.NoError(t, err)
	assert.Equal(t, RoleSubscriber, u.Role)

	_, err = m.Users.ByUsername(ctx, "ghost")
	assert.ErrorIs(t, err, store.ErrNotFound)

	admin, err := m.Users.Admins(ctx).First()
	require.NoError(t, err)
	assert.Equal(t, "root", admin.Username)
}

func TestPostManager(t *testing.T) {
	ctx, sess, m := setupModels(t)
	m.Posts.now = func() time.Time { return day(2024, 6, 1) }

	addPost(t, ctx, m, "old", PostStatusPublished, day(2024, 1, 10))
	addPost(t, ctx, m, "draft", PostStatusDraft, day(2024, 3, 1))
	addPost(t, ctx, m, "new", PostStatusPublished, day(2024, 5, 20))
	addPost(t, ctx, m, "scheduled", PostStatusPublished, day(2024, 7, 1))
	require.NoError(t, sess.Commit(ctx))

	published, err := m.Posts.Published(ctx).OrderBy("pub_date").All()
	require.NoError(t, err)
	require.Len(t, published, 2)
	assert.Equal(t, "old", published[0].Slug)
	assert.Equal(t, "new", published[1].Slug)

	ordered, err := m.Posts.ByLastUpdate(ctx).All()
	require.NoError(t, err)
	var slugs []string
	for _, p := range ordered {
		slugs = append(slugs, p.Slug)
	}
	assert.Equal(t, []string{"scheduled", "new", "draft", "old"}, slugs)

	p, err := m.Posts.BySlug(ctx, "draft")
	require.NoError(t, err)
	assert.True(t, p.IsDraft())

	_, err = m.Posts.BySlug(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestEnsureAdmin(t *testing.T) {
	ctx, _, m := setupModels(t)

	created, err := EnsureAdmin(ctx, m)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = EnsureAdmin(ctx, m)
	require.NoError(t, err)
	assert.False(t, created)

	admin, err := m.Users.ByUsername(ctx, DefaultAdminUsername)
	require.NoError(t, err)
	assert.True(t, admin.IsAdmin())
	assert.True(t, admin.CheckPassword(DefaultAdminPassword))

	n, err := m.Users.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
