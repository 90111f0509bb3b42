// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type withObjectsField struct {
	ID      int64 `gorm:"primaryKey"`
	Objects string
}

type withObjectsMethod struct {
	ID int64 `gorm:"primaryKey"`
}

func (*withObjectsMethod) Objects() string { return "" }

type other struct {
	ID int64 `gorm:"primaryKey"`
}

func TestMapDefaultManager(t *testing.T) {
	mapper := NewMapper(nil)

	mapping, err := Map[note](mapper)
	require.NoError(t, err)
	assert.Equal(t, []string{DefaultManagerName}, mapping.ManagerNames())
	assert.Equal(t, "note_id", mapping.primaryKey())

	objects, err := Objects[note](mapper)
	require.NoError(t, err)
	assert.Same(t, mapping, objects.Mapping())

	got, ok := mapper.Mapping(objects.Model())
	require.True(t, ok)
	assert.Same(t, mapping, got)
	assert.Len(t, mapper.Mappings(), 1)
}

func TestMapAttributeCollision(t *testing.T) {
	tests := []struct {
		name string
		mapF func(*Mapper) error
	}{
		{"field", func(m *Mapper) error { _, err := Map[withObjectsField](m); return err }},
		{"method", func(m *Mapper) error { _, err := Map[withObjectsMethod](m); return err }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.mapF(NewMapper(nil))
			var collision *AttributeCollisionError
			require.True(t, errors.As(err, &collision), "got %v", err)
			assert.Equal(t, "Objects", collision.Attribute)
		})
	}
}

func TestMapCollisionAvoidedByCustomManager(t *testing.T) {
	mapper := NewMapper(nil)
	_, err := Map[withObjectsField](mapper, WithManager("query", NewManager[withObjectsField]()))
	assert.NoError(t, err)
}

func TestMapTwice(t *testing.T) {
	mapper := NewMapper(nil)
	_, err := Map[note](mapper)
	require.NoError(t, err)
	_, err = Map[note](mapper)
	assert.Error(t, err)
}

func TestManagerBoundOnce(t *testing.T) {
	shared := NewManager[note]()

	_, err := Map[note](NewMapper(nil), WithManager("a", shared))
	require.NoError(t, err)

	_, err = Map[note](NewMapper(nil), WithManager("a", shared))
	assert.ErrorIs(t, err, ErrAlreadyBound)
}

func TestManagerWrongModel(t *testing.T) {
	_, err := Map[note](NewMapper(nil), WithManager("a", NewManager[other]()))
	assert.Error(t, err)
}

func TestMapFailureLeavesManagersUnbound(t *testing.T) {
	mapper := NewMapper(nil)
	good := NewManager[note]()

	_, err := Map[note](mapper, WithManager("good", good), WithManager("bad", NewManager[other]()))
	require.Error(t, err)
	assert.Nil(t, good.Mapping())
	_, mapped := mapper.Mapping(good.Model())
	assert.False(t, mapped)

	mapping, err := Map[note](mapper, WithManager("good", good))
	require.NoError(t, err)
	assert.Same(t, mapping, good.Mapping())
}

func TestMapSameManagerTwice(t *testing.T) {
	shared := NewManager[note]()

	_, err := Map[note](NewMapper(nil), WithManager("a", shared), WithManager("b", shared))
	require.Error(t, err)
	assert.Nil(t, shared.Mapping())
}

func TestWithManagerValidation(t *testing.T) {
	mapper := NewMapper(nil)

	_, err := Map[note](mapper, WithManager("", NewManager[note]()))
	assert.Error(t, err)

	_, err = Map[note](mapper, WithManager("a", nil))
	assert.Error(t, err)

	_, err = Map[note](mapper, WithManager("a", NewManager[note]()), WithManager("a", NewManager[note]()))
	assert.Error(t, err)
}

func TestUnboundManager(t *testing.T) {
	_, err := NewManager[note]().All(context.Background())
	assert.ErrorIs(t, err, ErrNotMapped)

	_, err = Objects[note](NewMapper(nil))
	assert.ErrorIs(t, err, ErrNotMapped)
}

func TestNew(t *testing.T) {
	engine, cleanup := testEngine(t)
	defer cleanup()
	ctx, sess := engine.Enter(context.Background())
	defer func() { _ = Remove(ctx) }()
	mapper, objects := mapNotes(t, engine)

	t.Run("saved with session", func(t *testing.T) {
		n, err := New(ctx, mapper, func(n *note) error {
			n.Title = "created"
			return nil
		})
		require.NoError(t, err)
		assert.True(t, sess.IsPending(n))

		got, err := objects.FilterBy(ctx, map[string]any{"title": "created"}).One()
		require.NoError(t, err)
		assert.Equal(t, n.ID, got.ID)
	})

	t.Run("no save", func(t *testing.T) {
		n, err := New(ctx, mapper, func(n *note) error {
			n.Title = "transient"
			return nil
		}, NoSave())
		require.NoError(t, err)
		assert.False(t, sess.IsPending(n))
	})

	t.Run("init failure expunges", func(t *testing.T) {
		before := sess.Pending()
		_, err := New(ctx, mapper, func(*note) error { return assert.AnError })
		assert.ErrorIs(t, err, assert.AnError)
		assert.Equal(t, before, sess.Pending())
	})

	t.Run("explicit session", func(t *testing.T) {
		alt := engine.NewSession()
		defer func() { _ = alt.Close() }()
		n, err := New[note](ctx, mapper, nil, InSession(alt))
		require.NoError(t, err)
		assert.True(t, alt.IsPending(n))
		assert.False(t, sess.IsPending(n))
	})

	t.Run("no session", func(t *testing.T) {
		_, err := New[note](context.Background(), mapper, nil)
		assert.ErrorIs(t, err, ErrNoSession)

		_, err = New[note](context.Background(), mapper, nil, NoSave())
		assert.NoError(t, err)
	})

	t.Run("not mapped", func(t *testing.T) {
		_, err := New[other](ctx, mapper, nil)
		assert.ErrorIs(t, err, ErrNotMapped)
	})
}
