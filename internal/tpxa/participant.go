// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package tpxa

import "github.com/olegiv/textpress-go/internal/model"

// Participant lets other components add data to an export. Setup runs once
// before any user is registered. ProcessUser sees every user node after its
// children were written and ProcessPost every entry after its comments.
// Participants may append children or attributes and create further
// dependency nodes with Writer.NewDependency.
type Participant interface {
	Setup(w *Writer) error
	ProcessUser(w *Writer, user *model.User, node *Element) error
	ProcessPost(w *Writer, post *model.Post, entry *Element) error
}

// BaseParticipant implements Participant with no-ops. Embed it to implement
// only the hooks you need.
type BaseParticipant struct{}

// Setup implements Participant.
func (BaseParticipant) Setup(*Writer) error { return nil }

// ProcessUser implements Participant.
func (BaseParticipant) ProcessUser(*Writer, *model.User, *Element) error { return nil }

// ProcessPost implements Participant.
func (BaseParticipant) ProcessPost(*Writer, *model.Post, *Element) error { return nil }
