// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package tpxa

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// ISO8601 is the layout of all timestamps in the document.
const ISO8601 = "2006-01-02T15:04:05Z"

// FormatISO8601 formats t in UTC.
func FormatISO8601(t time.Time) string {
	return t.UTC().Format(ISO8601)
}

// BuildTagURI builds a tag URI (RFC 4151) for a resource of the blog at
// blogURL: tag:<host>,<date>:<path segments>/<resource>/<identifier>.
func BuildTagURI(blogURL string, date time.Time, resource, identifier string) (string, error) {
	u, err := url.Parse(blogURL)
	if err != nil {
		return "", fmt.Errorf("parsing blog URL: %w", err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("blog URL %q has no host", blogURL)
	}

	var parts []string
	for _, seg := range strings.Split(u.Path, "/") {
		if seg != "" {
			parts = append(parts, seg)
		}
	}
	parts = append(parts, resource, identifier)

	return fmt.Sprintf("tag:%s,%s:%s", u.Host, date.UTC().Format("2006-01-02"), strings.Join(parts, "/")), nil
}

// yesNo renders a flag the way the document spells booleans.
func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// encodePayload serializes v as base64 encoded JSON for tp:data elements.
func encodePayload(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encoding payload: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// DecodePayload reverses the encoding of a tp:data element into v.
func DecodePayload(s string, v any) error {
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("decoding payload: %w", err)
	}
	return json.Unmarshal(data, v)
}

func base64String(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}
