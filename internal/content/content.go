// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package content renders the markup of posts and comments into HTML.
package content

import (
	"bytes"
	"errors"
	"fmt"
	"html"
	"slices"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// Parser names.
const (
	Markdown = "markdown"
	HTML     = "html"
	Text     = "text"
)

// DefaultParser is used for posts that do not name one.
const DefaultParser = Markdown

// ErrUnknownParser is returned by Render for parser names it cannot handle.
var ErrUnknownParser = errors.New("unknown parser")

var (
	sanitizer = bluemonday.UGCPolicy()
	markdown  = goldmark.New(goldmark.WithExtensions(extension.GFM))
)

// Parsers returns the supported parser names, sorted.
func Parsers() []string {
	names := []string{Markdown, HTML, Text}
	slices.Sort(names)
	return names
}

// Render converts raw in the markup of parser to sanitized HTML. The empty
// parser name means DefaultParser.
func Render(parser, raw string) (string, error) {
	if parser == "" {
		parser = DefaultParser
	}

	switch parser {
	case Markdown:
		var buf bytes.Buffer
		if err := markdown.Convert([]byte(raw), &buf); err != nil {
			return "", fmt.Errorf("rendering markdown: %w", err)
		}
		return sanitizer.Sanitize(buf.String()), nil
	case HTML:
		return sanitizer.Sanitize(raw), nil
	case Text:
		escaped := html.EscapeString(strings.ReplaceAll(raw, "\r\n", "\n"))
		return strings.ReplaceAll(escaped, "\n", "<br>\n"), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownParser, parser)
	}
}
