// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"bytes"
	"encoding/xml"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// runCLI executes the root command with args against a database in dir.
func runCLI(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("TEXTPRESS_DB_PATH", filepath.Join(dir, "textpress.db"))
	t.Setenv("TEXTPRESS_LOG_LEVEL", "error")
	t.Setenv("TEXTPRESS_BLOG_URL", "http://cli.example.com/")
	t.Setenv("TEXTPRESS_BLOG_TITLE", "CLI Blog")

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(append([]string{"--env-file", ""}, args...))
	err := root.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := runCLI(t, t.TempDir(), "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.HasPrefix(out, "textpress dev") {
		t.Errorf("output = %q", out)
	}
}

func TestMigrateAndUserAdd(t *testing.T) {
	dir := t.TempDir()

	if _, err := runCLI(t, dir, "migrate", "--seed"); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "textpress.db")); err != nil {
		t.Fatalf("database not created: %v", err)
	}

	out, err := runCLI(t, dir, "user", "add", "--username", "carol", "--password", "s3cret", "--email", "carol@example.com", "--role", "editor")
	if err != nil {
		t.Fatalf("user add: %v", err)
	}
	if !strings.Contains(out, "created editor user carol") {
		t.Errorf("output = %q", out)
	}

	if _, err := runCLI(t, dir, "user", "add", "--username", "carol", "--password", "x"); err == nil {
		t.Error("duplicate user accepted")
	}
	if _, err := runCLI(t, dir, "user", "add", "--username", "dave", "--password", "x", "--role", "owner"); err == nil {
		t.Error("unknown role accepted")
	}
}

func TestExportCommand(t *testing.T) {
	dir := t.TempDir()
	if _, err := runCLI(t, dir, "migrate", "--seed"); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	out, err := runCLI(t, dir, "export")
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	var feed struct {
		Title string `xml:"http://www.w3.org/2005/Atom title"`
	}
	if err := xml.Unmarshal([]byte(out), &feed); err != nil {
		t.Fatalf("stdout is not a TPXA document: %v\n%s", err, out)
	}
	if feed.Title != "CLI Blog" {
		t.Errorf("title = %q", feed.Title)
	}
	if !strings.Contains(out, "<tp:username>admin</tp:username>") {
		t.Error("seeded admin missing from export")
	}

	file := filepath.Join(dir, "out.xml")
	if _, err := runCLI(t, dir, "export", "-o", file); err != nil {
		t.Fatalf("export -o: %v", err)
	}
	data, err := os.ReadFile(file)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("<?xml")) {
		t.Errorf("file starts with %q", data[:min(len(data), 20)])
	}
}

func TestInvalidConfig(t *testing.T) {
	t.Setenv("TEXTPRESS_DB_DRIVER", "postgres")
	if _, err := runCLI(t, t.TempDir(), "migrate"); err == nil {
		t.Error("unknown driver accepted")
	}
}
