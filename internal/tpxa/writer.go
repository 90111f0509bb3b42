// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package tpxa writes TextPress eXtended Atom exports: an Atom feed of all
// posts carrying the TextPress data Atom has no place for, with users and
// other shared records collected in a dependency section at the end.
//
// Big blogs produce big files, so the document is produced as a stream of
// chunks: a hand written preamble, one serialized fragment per post, the
// dependencies and the closing tag.
package tpxa

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"os"
	"strconv"
	"sync/atomic"
	"time"

	"gorm.io/gorm"

	"github.com/olegiv/textpress-go/internal/model"
	"github.com/olegiv/textpress-go/internal/store"
	"github.com/olegiv/textpress-go/internal/version"
)

// Namespaces of the document.
const (
	AtomNS      = "http://www.w3.org/2005/Atom"
	TextPressNS = "http://textpress.pocoo.org/"
)

// Generator identification.
const (
	GeneratorURI  = "http://textpress.pocoo.org/"
	GeneratorName = "TextPress TPXA Export"
)

// ContentType is the media type exports are served with.
const ContentType = "application/atom+xml; charset=utf-8"

// DefaultBatchSize is the number of posts loaded per query.
const DefaultBatchSize = 50

// ErrWriterUsed is returned when a Writer is drained a second time.
var ErrWriterUsed = errors.New("tpxa writer already used")

var errStopped = errors.New("consumer stopped")

const preamble = `<?xml version="1.0" encoding="utf-8"?>
<!--

    This is a TextPress eXtended Atom file. It is a superset of the Atom
    format, so every application that understands Atom can use at least the
    Atom subset of the exported data. You can use this file to import your
    blog data into other blog software.

    Developer Notice
    ================

    If you write an importer for this format:

    -   parse the file with a real XML parser that fails on syntax and
        encoding errors.
    -   handle namespaces. The prefixes may change between exports, so match
        elements by their fully qualified names.

    User Notice
    ===========

    This file contains a dump of your blog, possibly without details that
    plugins did not export. It is not meant as a backup of your blog or as
    the way to move it from one machine to another. It is a portable file
    other blog software can read if you want to switch.

-->
<a:feed xmlns:a="%s" xmlns:tp="%s">` +
	`<a:title>%s</a:title>` +
	`<a:subtitle>%s</a:subtitle>` +
	`<a:id>%s</a:id>` +
	`<a:generator a:uri="%s" a:version="%s">%s</a:generator>` +
	`<a:link href="%s"></a:link>` +
	`<a:updated>%s</a:updated>`

const epilogue = `</a:feed>`

// Blog describes the exported blog.
type Blog struct {
	Title   string
	Tagline string
	URL     string
}

// Option configures a Writer.
type Option func(*Writer)

// WithParticipants adds participants, run in the given order.
func WithParticipants(p ...Participant) Option {
	return func(w *Writer) { w.participants = append(w.participants, p...) }
}

// WithClock replaces the time source used when the blog has no posts.
func WithClock(now func() time.Time) Option {
	return func(w *Writer) { w.now = now }
}

// WithVersion sets the generator version.
func WithVersion(v string) Option {
	return func(w *Writer) { w.version = v }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Writer) { w.logger = l }
}

// WithBatchSize sets how many posts are loaded per query.
func WithBatchSize(n int) Option {
	return func(w *Writer) { w.batchSize = n }
}

// Writer produces one export. It reads through the session of the context
// handed to Chunks and can be drained once.
type Writer struct {
	managers     *model.Managers
	blog         Blog
	participants []Participant
	now          func() time.Time
	version      string
	logger       *slog.Logger
	batchSize    int

	used  atomic.Bool
	deps  []*Element
	users map[int64]string
}

// NewWriter creates a writer exporting the blog through m.
func NewWriter(m *model.Managers, blog Blog, opts ...Option) *Writer {
	w := &Writer{
		managers:  m,
		blog:      blog,
		now:       time.Now,
		version:   version.DevVersion,
		logger:    slog.Default(),
		batchSize: DefaultBatchSize,
		users:     make(map[int64]string),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Blog returns the exported blog.
func (w *Writer) Blog() Blog {
	return w.blog
}

// Managers returns the managers the writer reads through.
func (w *Writer) Managers() *model.Managers {
	return w.managers
}

// NewDependency creates a dependency node called name (a prefixed name such
// as TP.Name("user")) with a fresh id in its tp:dependency attribute. The
// node is written in the dependency section; entries refer to it by id.
func (w *Writer) NewDependency(name string) *Element {
	id := strconv.FormatInt(int64(len(w.deps)+1), 16)
	node := NewElement(name, "", TP.Attr("dependency", id))
	w.deps = append(w.deps, node)
	return node
}

// UserDependency returns the dependency id of a registered user.
func (w *Writer) UserDependency(userID int64) (string, bool) {
	id, ok := w.users[userID]
	return id, ok
}

// Chunks returns the document as a sequence of byte chunks. The sequence
// reads the database lazily while it is consumed and can be consumed once;
// on failure the last pair carries the error.
func (w *Writer) Chunks(ctx context.Context) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		if !w.used.CompareAndSwap(false, true) {
			yield(nil, ErrWriterUsed)
			return
		}
		emit := func(b []byte) error {
			if !yield(b, nil) {
				return errStopped
			}
			return nil
		}
		if err := w.generate(ctx, emit); err != nil && !errors.Is(err, errStopped) {
			yield(nil, err)
		}
	}
}

// WriteTo writes the whole document to out and returns the number of bytes
// written.
func (w *Writer) WriteTo(ctx context.Context, out io.Writer) (int64, error) {
	var n int64
	for chunk, err := range w.Chunks(ctx) {
		if err != nil {
			return n, err
		}
		m, err := out.Write(chunk)
		n += int64(m)
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

// WriteToFile writes the document to path. A partially written file is
// removed.
func (w *Writer) WriteToFile(ctx context.Context, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	_, err = w.WriteTo(ctx, f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
		return err
	}
	return nil
}

func (w *Writer) generate(ctx context.Context, emit func([]byte) error) error {
	lastUpdate := w.now().UTC()
	newest, err := w.managers.Posts.ByLastUpdate(ctx).First()
	switch {
	case err == nil:
		lastUpdate = newest.LastUpdate
	case !errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("looking up newest post: %w", err)
	}

	feedID, err := BuildTagURI(w.blog.URL, lastUpdate, "tpxa_export", "full")
	if err != nil {
		return err
	}
	head := fmt.Sprintf(preamble,
		AtomNS, TextPressNS,
		escape(w.blog.Title),
		escape(w.blog.Tagline),
		escape(feedID),
		GeneratorURI, escape(w.version), GeneratorName,
		escape(w.blog.URL),
		FormatISO8601(lastUpdate),
	)
	if err := emit([]byte(head)); err != nil {
		return err
	}

	for _, p := range w.participants {
		if err := p.Setup(w); err != nil {
			return fmt.Errorf("participant setup: %w", err)
		}
	}

	if err := w.managers.Users.OrderBy(ctx, "user_id").Each(w.batchSize, w.registerUser); err != nil {
		return fmt.Errorf("registering users: %w", err)
	}

	posts := 0
	err = w.managers.Posts.ByLastUpdate(ctx).
		Preload("Author").
		Preload("Tags", func(db *gorm.DB) *gorm.DB { return db.Order("tags.slug") }).
		Preload("Links", func(db *gorm.DB) *gorm.DB { return db.Order("link_id") }).
		Preload("Comments", func(db *gorm.DB) *gorm.DB { return db.Order("pub_date, comment_id") }).
		Each(w.batchSize, func(p *model.Post) error {
			entry, err := w.dumpPost(p)
			if err != nil {
				return err
			}
			data, err := entry.Bytes()
			if err != nil {
				return fmt.Errorf("serializing post %d: %w", p.ID, err)
			}
			posts++
			return emit(data)
		})
	if err != nil {
		if errors.Is(err, errStopped) {
			return err
		}
		return fmt.Errorf("dumping posts: %w", err)
	}

	if len(w.deps) > 0 {
		if err := emit([]byte("<tp:dependencies>")); err != nil {
			return err
		}
		for _, node := range w.deps {
			data, err := node.Bytes()
			if err != nil {
				return fmt.Errorf("serializing dependency: %w", err)
			}
			if err := emit(data); err != nil {
				return err
			}
		}
		if err := emit([]byte("</tp:dependencies>")); err != nil {
			return err
		}
	}

	if err := emit([]byte(epilogue)); err != nil {
		return err
	}
	w.logger.Info("tpxa export written", "posts", posts, "users", len(w.users), "dependencies", len(w.deps))
	return nil
}

func (w *Writer) registerUser(u *model.User) error {
	node := w.NewDependency(TP.Name("user"))
	id, _ := node.Attr(TP.Name("dependency"))

	TP.Sub(node, "username", u.Username)
	TP.Sub(node, "role", strconv.Itoa(int(u.Role)))
	TP.Sub(node, "pw_hash", base64String(u.PasswordHash))
	TP.Sub(node, "display_name", u.DisplayFormat)
	TP.Sub(node, "first_name", u.FirstName)
	TP.Sub(node, "last_name", u.LastName)
	TP.Sub(node, "description", u.Description)
	w.users[u.ID] = id

	for _, p := range w.participants {
		if err := p.ProcessUser(w, u, node); err != nil {
			return fmt.Errorf("processing user %s: %w", u.Username, err)
		}
	}
	return nil
}

type postPayload struct {
	Extra      map[string]any   `json:"extra"`
	RawBody    string           `json:"raw_body"`
	RawIntro   string           `json:"raw_intro"`
	ParserData model.ParserData `json:"parser_data"`
}

type commentPayload struct {
	RawBody    string           `json:"raw_body"`
	ParserData model.ParserData `json:"parser_data"`
}

func (w *Writer) dumpPost(p *model.Post) (*Element, error) {
	url := p.URL(w.blog.URL)
	entry := Atom.New("entry", "", Attr{Name: "xml:base", Value: url})
	Atom.Sub(entry, "title", p.Title, Attr{Name: "type", Value: "text"})
	Atom.Sub(entry, "id", p.UID)
	Atom.Sub(entry, "updated", FormatISO8601(p.LastUpdate))
	Atom.Sub(entry, "published", FormatISO8601(p.PubDate))
	Atom.Sub(entry, "link", "", Attr{Name: "href", Value: url})

	if p.Author != nil {
		author := Atom.Sub(entry, "author", "")
		if id, ok := w.users[p.Author.ID]; ok {
			author.SetAttr(TP.Name("dependency"), id)
		}
		Atom.Sub(author, "name", p.Author.DisplayName())
		Atom.Sub(author, "email", p.Author.Email)
	} else {
		w.logger.Debug("post has no author", "post_id", p.ID)
	}

	for _, t := range p.Tags {
		Atom.Sub(entry, "category", "", Attr{Name: "term", Value: t.Slug}, Attr{Name: "label", Value: t.Name})
	}
	for _, l := range p.Links {
		Atom.Sub(entry, "link", "", linkAttrs(l)...)
	}

	TP.Sub(entry, "slug", p.Slug)
	TP.Sub(entry, "id", strconv.FormatInt(p.ID, 10))
	TP.Sub(entry, "comments_enabled", yesNo(p.CommentsEnabled))
	TP.Sub(entry, "pings_enabled", yesNo(p.PingsEnabled))
	TP.Sub(entry, "status", strconv.Itoa(int(p.Status)))

	Atom.Sub(entry, "content", p.RenderedBody(), Attr{Name: "type", Value: "html"})
	if p.Intro != "" {
		Atom.Sub(entry, "summary", p.RenderedIntro(), Attr{Name: "type", Value: "html"})
	}

	data, err := encodePayload(postPayload{
		Extra:      p.Extra,
		RawBody:    p.Body,
		RawIntro:   p.Intro,
		ParserData: p.ParserData,
	})
	if err != nil {
		return nil, fmt.Errorf("post %d: %w", p.ID, err)
	}
	TP.Sub(entry, "data", data)

	for _, c := range p.Comments {
		if err := dumpComment(entry, c); err != nil {
			return nil, fmt.Errorf("post %d: %w", p.ID, err)
		}
	}

	for _, part := range w.participants {
		if err := part.ProcessPost(w, p, entry); err != nil {
			return nil, fmt.Errorf("processing post %d: %w", p.ID, err)
		}
	}
	return entry, nil
}

func dumpComment(entry *Element, c *model.Comment) error {
	comment := TP.Sub(entry, "comment", "")
	TP.Sub(comment, "id", strconv.FormatInt(c.ID, 10))

	author := TP.Sub(comment, "author", "")
	TP.Sub(author, "name", c.Author)
	TP.Sub(author, "email", c.Email)
	TP.Sub(author, "uri", c.WWW)

	TP.Sub(comment, "published", FormatISO8601(c.PubDate))
	TP.Sub(comment, "blocked", yesNo(c.Blocked()))
	TP.Sub(comment, "is_pingback", yesNo(c.IsPingback))
	TP.Sub(comment, "blocked_msg", c.BlockedMsg)

	parent := ""
	if c.ParentID != nil {
		parent = strconv.FormatInt(*c.ParentID, 10)
	}
	TP.Sub(comment, "parent", parent)

	data, err := encodePayload(commentPayload{RawBody: c.Body, ParserData: c.ParserData})
	if err != nil {
		return fmt.Errorf("comment %d: %w", c.ID, err)
	}
	TP.Sub(comment, "data", data)
	return nil
}

func linkAttrs(l *model.PostLink) []Attr {
	attrs := []Attr{{Name: "href", Value: l.Href}}
	for _, a := range []Attr{
		{Name: "rel", Value: l.Rel},
		{Name: "type", Value: l.Type},
		{Name: "hreflang", Value: l.HrefLang},
		{Name: "title", Value: l.Title},
	} {
		if a.Value != "" {
			attrs = append(attrs, a)
		}
	}
	if l.Length != nil {
		attrs = append(attrs, Attr{Name: "length", Value: strconv.FormatInt(*l.Length, 10)})
	}
	return attrs
}
