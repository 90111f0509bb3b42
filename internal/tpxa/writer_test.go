// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package tpxa

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/xml"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olegiv/textpress-go/internal/model"
	"github.com/olegiv/textpress-go/internal/store"
	"github.com/olegiv/textpress-go/internal/testutil"
)

const xmlNS = "http://www.w3.org/XML/1998/namespace"

var testBlog = Blog{
	Title:   "Pocoo & Friends",
	Tagline: "Code <and> words",
	URL:     "http://example.com/blog/",
}

// xnode is a namespace-resolved view of the exported document.
type xnode struct {
	XMLName xml.Name
	Attrs   []xml.Attr `xml:",any,attr"`
	Text    string     `xml:",chardata"`
	Nodes   []xnode    `xml:",any"`
}

func (n xnode) attr(space, local string) string {
	for _, a := range n.Attrs {
		if a.Name.Space == space && a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}

func (n xnode) all(space, local string) []xnode {
	var out []xnode
	for _, c := range n.Nodes {
		if c.XMLName.Space == space && c.XMLName.Local == local {
			out = append(out, c)
		}
	}
	return out
}

func (n xnode) one(t *testing.T, space, local string) xnode {
	t.Helper()
	found := n.all(space, local)
	require.Len(t, found, 1, "expected one %s element in %s", local, n.XMLName.Local)
	return found[0]
}

func parseDocument(t *testing.T, doc []byte) xnode {
	t.Helper()
	var root xnode
	require.NoError(t, xml.Unmarshal(doc, &root), "document is not well-formed:\n%s", doc)
	return root
}

type fixture struct {
	ctx          context.Context
	m            *model.Managers
	alice, bob   *model.User
	older, newer *model.Post
	first, reply *model.Comment
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	engine, cleanup := testutil.TestEngine(t)
	t.Cleanup(cleanup)

	m, err := model.Setup(store.NewMapper(engine))
	require.NoError(t, err)
	ctx, _ := testutil.TestScope(t, engine)
	return &fixture{ctx: ctx, m: m}
}

func (f *fixture) populate(t *testing.T) {
	t.Helper()
	ctx, m := f.ctx, f.m
	sess, err := store.MustFromContext(ctx)
	require.NoError(t, err)

	f.alice, err = m.NewUser(ctx, func(u *model.User) error {
		u.Username = "alice"
		u.FirstName = "Alice"
		u.LastName = "Liddell"
		u.DisplayFormat = "$first $last"
		u.Email = "alice@example.com"
		u.Description = "Writes things"
		u.Role = model.RoleAuthor
		return u.SetPassword("wonderland")
	})
	require.NoError(t, err)
	f.bob, err = m.NewUser(ctx, func(u *model.User) error {
		u.Username = "bob"
		u.Email = "bob@example.com"
		u.Role = model.RoleAdmin
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, sess.Flush(ctx))

	length := int64(2048)
	f.older, err = m.NewPost(ctx, func(p *model.Post) error {
		p.Title = "First Post"
		p.Intro = "An *intro*"
		p.Body = "Hello **world** & more"
		p.AuthorID = &f.alice.ID
		p.PubDate = time.Date(2024, 2, 28, 9, 0, 0, 0, time.UTC)
		p.LastUpdate = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
		p.CommentsEnabled = true
		p.Status = model.PostStatusPublished
		p.Extra = map[string]any{"pingback_url": "http://example.com/pb"}
		p.Tags = []*model.Tag{{Name: "Go"}, {Name: "Atom Feeds"}}
		p.Links = []*model.PostLink{{Href: "http://example.com/talk.mp3", Rel: "enclosure", Type: "audio/mpeg", Length: &length}}
		p.Comments = []*model.Comment{{
			Author:      "Reader",
			Email:       "reader@example.com",
			WWW:         "http://reader.example.com/",
			Body:        "Nice <post>",
			PubDate:     time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC),
			Status:      model.CommentModerated,
			SubmitterIP: "192.0.2.1",
		}}
		return nil
	})
	require.NoError(t, err)

	f.newer, err = m.NewPost(ctx, func(p *model.Post) error {
		p.Title = "Draft"
		p.Body = "Not yet"
		p.AuthorID = &f.bob.ID
		p.PubDate = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
		p.LastUpdate = time.Date(2024, 5, 2, 8, 30, 0, 0, time.UTC)
		p.PingsEnabled = true
		p.Status = model.PostStatusDraft
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, sess.Commit(ctx))

	f.first = f.older.Comments[0]
	f.reply, err = m.NewComment(ctx, func(c *model.Comment) error {
		c.PostID = f.older.ID
		c.ParentID = &f.first.ID
		c.Author = "Spammer"
		c.Body = "cheap pills"
		c.PubDate = time.Date(2024, 3, 3, 0, 0, 0, 0, time.UTC)
		c.Status = model.CommentBlockedSpam
		c.BlockedMsg = "spam"
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, sess.Commit(ctx))
}

func (f *fixture) export(t *testing.T, opts ...Option) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := NewWriter(f.m, testBlog, append([]Option{WithVersion("v1.2.3"), WithLogger(testutil.TestLoggerSilent())}, opts...)...)
	n, err := w.WriteTo(f.ctx, &buf)
	require.NoError(t, err)
	assert.Equal(t, int64(buf.Len()), n)
	return buf.Bytes()
}

func TestWriter_Document(t *testing.T) {
	f := newFixture(t)
	f.populate(t)

	doc := f.export(t)
	assert.True(t, bytes.HasPrefix(doc, []byte(`<?xml version="1.0" encoding="utf-8"?>`)))
	assert.True(t, bytes.HasSuffix(doc, []byte(`</a:feed>`)))

	feed := parseDocument(t, doc)
	assert.Equal(t, xml.Name{Space: AtomNS, Local: "feed"}, feed.XMLName)

	assert.Equal(t, "Pocoo & Friends", feed.one(t, AtomNS, "title").Text)
	assert.Equal(t, "Code <and> words", feed.one(t, AtomNS, "subtitle").Text)
	assert.Equal(t, "tag:example.com,2024-05-02:blog/tpxa_export/full", feed.one(t, AtomNS, "id").Text)
	assert.Equal(t, "2024-05-02T08:30:00Z", feed.one(t, AtomNS, "updated").Text)
	assert.Equal(t, testBlog.URL, feed.one(t, AtomNS, "link").attr("", "href"))

	gen := feed.one(t, AtomNS, "generator")
	assert.Equal(t, GeneratorName, gen.Text)
	assert.Equal(t, GeneratorURI, gen.attr(AtomNS, "uri"))
	assert.Equal(t, "v1.2.3", gen.attr(AtomNS, "version"))

	entries := feed.all(AtomNS, "entry")
	require.Len(t, entries, 2)
	assert.Equal(t, "Draft", entries[0].one(t, AtomNS, "title").Text, "newest post comes first")

	deps := feed.one(t, TextPressNS, "dependencies")
	users := deps.all(TextPressNS, "user")
	require.Len(t, users, 2)
	byID := map[string]xnode{}
	for _, u := range users {
		byID[u.attr(TextPressNS, "dependency")] = u
	}
	assert.Equal(t, "alice", byID["1"].one(t, TextPressNS, "username").Text)
	assert.Equal(t, "bob", byID["2"].one(t, TextPressNS, "username").Text)

	// Every author reference resolves to the user node of the author.
	usernames := map[string]string{"Alice Liddell": "alice", "bob": "bob"}
	for _, e := range entries {
		author := e.one(t, AtomNS, "author")
		ref := author.attr(TextPressNS, "dependency")
		node, ok := byID[ref]
		require.True(t, ok, "dangling author reference %q", ref)
		name := author.one(t, AtomNS, "name").Text
		assert.Equal(t, usernames[name], node.one(t, TextPressNS, "username").Text)
	}

	alice := byID["1"]
	assert.Equal(t, "2", alice.one(t, TextPressNS, "role").Text)
	assert.Equal(t, "$first $last", alice.one(t, TextPressNS, "display_name").Text)
	assert.Equal(t, "Liddell", alice.one(t, TextPressNS, "last_name").Text)
	assert.Equal(t, "Writes things", alice.one(t, TextPressNS, "description").Text)
	hash, err := base64.StdEncoding.DecodeString(alice.one(t, TextPressNS, "pw_hash").Text)
	require.NoError(t, err)
	assert.Equal(t, f.alice.PasswordHash, string(hash))
}

func TestWriter_WellFormedTokens(t *testing.T) {
	f := newFixture(t)
	f.populate(t)
	doc := f.export(t)

	dec := xml.NewDecoder(bytes.NewReader(doc))
	dec.Strict = true

	var entries, comments int
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err, "document is not well-formed")

		switch tok := tok.(type) {
		case xml.StartElement:
			if tok.Name == (xml.Name{Space: AtomNS, Local: "entry"}) {
				entries++
			}
		case xml.Comment:
			comments++
			assert.NotContains(t, string(tok), "--")
		}
	}
	assert.Equal(t, 2, entries)
	assert.Equal(t, 1, comments)
}

func TestWriter_Entry(t *testing.T) {
	f := newFixture(t)
	f.populate(t)

	feed := parseDocument(t, f.export(t))
	entries := feed.all(AtomNS, "entry")
	require.Len(t, entries, 2)
	e := entries[1]

	url := "http://example.com/blog/2024/02/28/first-post"
	assert.Equal(t, url, e.attr(xmlNS, "base"))
	title := e.one(t, AtomNS, "title")
	assert.Equal(t, "First Post", title.Text)
	assert.Equal(t, "text", title.attr("", "type"))
	assert.Equal(t, f.older.UID, e.one(t, AtomNS, "id").Text)
	assert.Equal(t, "2024-03-01T10:00:00Z", e.one(t, AtomNS, "updated").Text)
	assert.Equal(t, "2024-02-28T09:00:00Z", e.one(t, AtomNS, "published").Text)

	links := e.all(AtomNS, "link")
	require.Len(t, links, 2)
	assert.Equal(t, url, links[0].attr("", "href"))
	assert.Equal(t, "enclosure", links[1].attr("", "rel"))
	assert.Equal(t, "audio/mpeg", links[1].attr("", "type"))
	assert.Equal(t, "2048", links[1].attr("", "length"))
	assert.Empty(t, links[1].attr("", "hreflang"))

	var terms []string
	for _, c := range e.all(AtomNS, "category") {
		terms = append(terms, c.attr("", "term")+"="+c.attr("", "label"))
	}
	assert.Equal(t, []string{"atom-feeds=Atom Feeds", "go=Go"}, terms)

	author := e.one(t, AtomNS, "author")
	assert.Equal(t, "alice@example.com", author.one(t, AtomNS, "email").Text)

	assert.Equal(t, "first-post", e.one(t, TextPressNS, "slug").Text)
	assert.Equal(t, f.older.ID, mustAtoi(t, e.one(t, TextPressNS, "id").Text))
	assert.Equal(t, "yes", e.one(t, TextPressNS, "comments_enabled").Text)
	assert.Equal(t, "no", e.one(t, TextPressNS, "pings_enabled").Text)
	assert.Equal(t, "2", e.one(t, TextPressNS, "status").Text)

	body := e.one(t, AtomNS, "content")
	assert.Equal(t, "html", body.attr("", "type"))
	assert.Contains(t, body.Text, "<strong>world</strong>")
	summary := e.one(t, AtomNS, "summary")
	assert.Contains(t, summary.Text, "<em>intro</em>")

	var payload postPayload
	require.NoError(t, DecodePayload(e.one(t, TextPressNS, "data").Text, &payload))
	assert.Equal(t, "Hello **world** & more", payload.RawBody)
	assert.Equal(t, "An *intro*", payload.RawIntro)
	assert.Equal(t, "markdown", payload.ParserData.Parser)
	assert.Equal(t, "http://example.com/pb", payload.Extra["pingback_url"])

	assert.Empty(t, entries[0].all(AtomNS, "summary"), "posts without intro have no summary")
	assert.Equal(t, "yes", entries[0].one(t, TextPressNS, "pings_enabled").Text)
}

func TestWriter_Comments(t *testing.T) {
	f := newFixture(t)
	f.populate(t)

	feed := parseDocument(t, f.export(t))
	e := feed.all(AtomNS, "entry")[1]

	comments := e.all(TextPressNS, "comment")
	require.Len(t, comments, 2)
	assert.Empty(t, feed.all(AtomNS, "entry")[0].all(TextPressNS, "comment"))

	first, reply := comments[0], comments[1]
	assert.Equal(t, f.first.ID, mustAtoi(t, first.one(t, TextPressNS, "id").Text))
	a := first.one(t, TextPressNS, "author")
	assert.Equal(t, "Reader", a.one(t, TextPressNS, "name").Text)
	assert.Equal(t, "reader@example.com", a.one(t, TextPressNS, "email").Text)
	assert.Equal(t, "http://reader.example.com/", a.one(t, TextPressNS, "uri").Text)
	assert.Equal(t, "2024-03-02T00:00:00Z", first.one(t, TextPressNS, "published").Text)
	assert.Equal(t, "no", first.one(t, TextPressNS, "blocked").Text)
	assert.Equal(t, "no", first.one(t, TextPressNS, "is_pingback").Text)
	assert.Equal(t, "", first.one(t, TextPressNS, "parent").Text)

	assert.Equal(t, "yes", reply.one(t, TextPressNS, "blocked").Text)
	assert.Equal(t, "spam", reply.one(t, TextPressNS, "blocked_msg").Text)
	assert.Equal(t, f.first.ID, mustAtoi(t, reply.one(t, TextPressNS, "parent").Text))

	var payload commentPayload
	require.NoError(t, DecodePayload(first.one(t, TextPressNS, "data").Text, &payload))
	assert.Equal(t, "Nice <post>", payload.RawBody)
	assert.Equal(t, "text", payload.ParserData.Parser)
	assert.Equal(t, "Nice &lt;post&gt;", payload.ParserData.Body)
}

func TestWriter_EmptyBlog(t *testing.T) {
	f := newFixture(t)
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	w := NewWriter(f.m, Blog{Title: "Empty", URL: "https://empty.example.org"},
		WithClock(func() time.Time { return now }), WithLogger(testutil.TestLoggerSilent()))

	var chunks []string
	for chunk, err := range w.Chunks(f.ctx) {
		require.NoError(t, err)
		chunks = append(chunks, string(chunk))
	}
	require.Len(t, chunks, 2, "preamble and epilogue only")
	assert.Equal(t, epilogue, chunks[1])

	feed := parseDocument(t, []byte(strings.Join(chunks, "")))
	assert.Empty(t, feed.all(AtomNS, "entry"))
	assert.Empty(t, feed.all(TextPressNS, "dependencies"))
	assert.Equal(t, "tag:empty.example.org,2025-01-02:tpxa_export/full", feed.one(t, AtomNS, "id").Text)
	assert.Equal(t, "2025-01-02T03:04:05Z", feed.one(t, AtomNS, "updated").Text)
	assert.Equal(t, "dev", feed.one(t, AtomNS, "generator").attr(AtomNS, "version"))
}

func TestWriter_UsedOnce(t *testing.T) {
	f := newFixture(t)
	w := NewWriter(f.m, testBlog, WithLogger(testutil.TestLoggerSilent()))

	_, err := w.WriteTo(f.ctx, &bytes.Buffer{})
	require.NoError(t, err)

	_, err = w.WriteTo(f.ctx, &bytes.Buffer{})
	assert.ErrorIs(t, err, ErrWriterUsed)
}

func TestWriter_StopEarly(t *testing.T) {
	f := newFixture(t)
	f.populate(t)
	w := NewWriter(f.m, testBlog, WithBatchSize(1), WithLogger(testutil.TestLoggerSilent()))

	n := 0
	for _, err := range w.Chunks(f.ctx) {
		require.NoError(t, err)
		n++
		if n == 2 {
			break
		}
	}
	assert.Equal(t, 2, n)
}

func TestWriter_NoSession(t *testing.T) {
	f := newFixture(t)
	w := NewWriter(f.m, testBlog, WithLogger(testutil.TestLoggerSilent()))

	var got error
	for _, err := range w.Chunks(context.Background()) {
		if err != nil {
			got = err
		}
	}
	assert.ErrorIs(t, got, store.ErrNoSession)
}

func TestWriter_InvalidBlogURL(t *testing.T) {
	f := newFixture(t)
	w := NewWriter(f.m, Blog{URL: "/relative"}, WithLogger(testutil.TestLoggerSilent()))

	_, err := w.WriteTo(f.ctx, &bytes.Buffer{})
	assert.Error(t, err)
}

type recordingParticipant struct {
	BaseParticipant
	blogNode *Element
	users    []string
}

func (p *recordingParticipant) Setup(w *Writer) error {
	p.blogNode = w.NewDependency(TP.Name("blog"))
	TP.Sub(p.blogNode, "title", w.Blog().Title)
	return nil
}

func (p *recordingParticipant) ProcessUser(w *Writer, u *model.User, node *Element) error {
	id, ok := w.UserDependency(u.ID)
	if !ok {
		return errors.New("user not registered")
	}
	p.users = append(p.users, id)
	TP.Sub(node, "karma", "42")
	return nil
}

func (p *recordingParticipant) ProcessPost(_ *Writer, post *model.Post, entry *Element) error {
	ref, _ := p.blogNode.Attr(TP.Name("dependency"))
	TP.Sub(entry, "blog", "", TP.Attr("dependency", ref))
	return nil
}

func TestWriter_Participants(t *testing.T) {
	f := newFixture(t)
	f.populate(t)
	part := &recordingParticipant{}

	feed := parseDocument(t, f.export(t, WithParticipants(part)))
	assert.Equal(t, []string{"2", "3"}, part.users)

	deps := feed.one(t, TextPressNS, "dependencies")
	blog := deps.one(t, TextPressNS, "blog")
	assert.Equal(t, "1", blog.attr(TextPressNS, "dependency"))
	assert.Equal(t, testBlog.Title, blog.one(t, TextPressNS, "title").Text)

	for _, u := range deps.all(TextPressNS, "user") {
		assert.Equal(t, "42", u.one(t, TextPressNS, "karma").Text)
	}
	for _, e := range feed.all(AtomNS, "entry") {
		assert.Equal(t, "1", e.one(t, TextPressNS, "blog").attr(TextPressNS, "dependency"))
	}
}

type failingParticipant struct {
	BaseParticipant
	err error
}

func (p failingParticipant) ProcessPost(*Writer, *model.Post, *Element) error {
	return p.err
}

func TestWriter_ParticipantError(t *testing.T) {
	f := newFixture(t)
	f.populate(t)
	boom := errors.New("boom")

	w := NewWriter(f.m, testBlog, WithParticipants(failingParticipant{err: boom}), WithLogger(testutil.TestLoggerSilent()))
	_, err := w.WriteTo(f.ctx, &bytes.Buffer{})
	assert.ErrorIs(t, err, boom)
}

func TestWriter_WriteToFile(t *testing.T) {
	f := newFixture(t)
	f.populate(t)
	path := filepath.Join(t.TempDir(), "export.xml")

	w := NewWriter(f.m, testBlog, WithLogger(testutil.TestLoggerSilent()))
	require.NoError(t, w.WriteToFile(f.ctx, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	feed := parseDocument(t, data)
	assert.Len(t, feed.all(AtomNS, "entry"), 2)

	// A failing export leaves no file behind.
	failed := filepath.Join(t.TempDir(), "failed.xml")
	w = NewWriter(f.m, testBlog, WithLogger(testutil.TestLoggerSilent()))
	assert.Error(t, w.WriteToFile(context.Background(), failed))
	_, err = os.Stat(failed)
	assert.True(t, os.IsNotExist(err))
}

func TestNewDependencyIDsAreHex(t *testing.T) {
	w := NewWriter(nil, Blog{})
	var last *Element
	for range 11 {
		last = w.NewDependency(TP.Name("thing"))
	}
	id, ok := last.Attr("tp:dependency")
	require.True(t, ok)
	assert.Equal(t, "b", id)
}

func mustAtoi(t *testing.T, s string) int64 {
	t.Helper()
	n, err := strconv.ParseInt(s, 10, 64)
	require.NoError(t, err)
	return n
}
