// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package util holds small helpers shared across TextPress: slugs, client
// addresses and safe file paths.
package util

import (
	"regexp"
	"strings"

	"github.com/mozillazg/go-unidecode"
	"golang.org/x/text/unicode/norm"
)

// MaxSlugLength is the width of the slug columns.
const MaxSlugLength = 150

// nonSlug matches runs of characters that cannot appear in a slug.
var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify turns s into a URL slug: compatibility-normalized, transliterated
// to ASCII, lower case, with every run of other characters collapsed into a
// single hyphen. Slugs longer than MaxSlugLength are cut at a hyphen where
// possible. The result is empty when s has nothing to transliterate.
func Slugify(s string) string {
	ascii := unidecode.Unidecode(norm.NFKC.String(s))
	slug := strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(ascii), "-"), "-")

	if len(slug) > MaxSlugLength {
		slug = slug[:MaxSlugLength]
		if i := strings.LastIndexByte(slug, '-'); i > MaxSlugLength/2 {
			slug = slug[:i]
		}
		slug = strings.TrimRight(slug, "-")
	}
	return slug
}

// IsValidSlug reports whether s could have been produced by Slugify.
func IsValidSlug(s string) bool {
	if s == "" || len(s) > MaxSlugLength {
		return false
	}
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') && r != '-' {
			return false
		}
	}
	return s[0] != '-' && s[len(s)-1] != '-' && !strings.Contains(s, "--")
}
