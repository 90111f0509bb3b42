// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package store

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"gorm.io/gorm/schema"
)

// DefaultManagerName is the name the default manager is attached under when
// a model is mapped without managers.
const DefaultManagerName = "objects"

// defaultManagerAttribute is how a model would spell DefaultManagerName as a
// Go field or method.
const defaultManagerAttribute = "Objects"

// Binder is implemented by query managers. Map binds every attached manager
// to the mapping of its model.
type Binder interface {
	Bind(mapping *Mapping) error
	Model() reflect.Type
	Mapping() *Mapping
}

// Mapping describes one mapped model type and the managers attached to it.
type Mapping struct {
	model    reflect.Type
	table    string
	schema   *schema.Schema
	names    []string
	managers map[string]Binder
}

// Model returns the mapped struct type.
func (m *Mapping) Model() reflect.Type {
	return m.model
}

// Table returns the table the model is mapped onto.
func (m *Mapping) Table() string {
	return m.table
}

// Schema returns the parsed GORM schema of the model.
func (m *Mapping) Schema() *schema.Schema {
	return m.schema
}

// primaryKey returns the column name of the primary key, or "".
func (m *Mapping) primaryKey() string {
	if f := m.schema.PrioritizedPrimaryField; f != nil {
		return f.DBName
	}
	return ""
}

// Manager returns the manager attached under name.
func (m *Mapping) Manager(name string) (Binder, bool) {
	b, ok := m.managers[name]
	return b, ok
}

// ManagerNames returns the names of all attached managers in attach order.
func (m *Mapping) ManagerNames() []string {
	return append([]string(nil), m.names...)
}

// Mapper is the registry of mapped models.
type Mapper struct {
	namer   schema.Namer
	schemas *sync.Map

	mu       sync.RWMutex
	mappings map[reflect.Type]*Mapping
}

// NewMapper creates a mapper using the naming strategy of the engine. A nil
// engine uses GORM's default naming strategy.
func NewMapper(e *Engine) *Mapper {
	var namer schema.Namer = schema.NamingStrategy{}
	if e != nil && e.gormDB.NamingStrategy != nil {
		namer = e.gormDB.NamingStrategy
	}
	return &Mapper{
		namer:    namer,
		schemas:  &sync.Map{},
		mappings: make(map[reflect.Type]*Mapping),
	}
}

// Mapping returns the mapping of a model type.
func (m *Mapper) Mapping(model reflect.Type) (*Mapping, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mp, ok := m.mappings[model]
	return mp, ok
}

// Mappings returns all mappings ordered by table name.
func (m *Mapper) Mappings() []*Mapping {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Mapping, 0, len(m.mappings))
	for _, mp := range m.mappings {
		out = append(out, mp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].table < out[j].table })
	return out
}

// MapOption configures Map.
type MapOption func(*mapConfig) error

type mapConfig struct {
	names    []string
	managers map[string]Binder
}

// WithManager attaches b to the model under name.
func WithManager(name string, b Binder) MapOption {
	return func(c *mapConfig) error {
		if name == "" {
			return fmt.Errorf("manager name must not be empty")
		}
		if b == nil {
			return fmt.Errorf("manager %q is nil", name)
		}
		if _, dup := c.managers[name]; dup {
			return fmt.Errorf("manager %q attached twice", name)
		}
		c.names = append(c.names, name)
		c.managers[name] = b
		return nil
	}
}

// Map maps model type T. Managers attached with WithManager are bound to the
// model; when none are attached a default Manager[T] is attached as
// DefaultManagerName, unless T already has a field or method of that name,
// in which case an *AttributeCollisionError is returned.
func Map[T any](m *Mapper, opts ...MapOption) (*Mapping, error) {
	typ := reflect.TypeFor[T]()
	if typ.Kind() != reflect.Struct {
		return nil, fmt.Errorf("cannot map %s: not a struct type", typ)
	}

	cfg := mapConfig{managers: make(map[string]Binder)}
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return nil, fmt.Errorf("mapping %s: %w", typ.Name(), err)
		}
	}

	if len(cfg.managers) == 0 {
		if hasAttribute(typ, defaultManagerAttribute) {
			return nil, &AttributeCollisionError{Model: typ.Name(), Attribute: defaultManagerAttribute}
		}
		cfg.names = []string{DefaultManagerName}
		cfg.managers[DefaultManagerName] = NewManager[T]()
	}

	sch, err := schema.Parse(new(T), m.schemas, m.namer)
	if err != nil {
		return nil, fmt.Errorf("parsing schema of %s: %w", typ.Name(), err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, dup := m.mappings[typ]; dup {
		return nil, fmt.Errorf("model %s is already mapped", typ.Name())
	}

	// Check every manager first so a failing one leaves none of them bound.
	seen := make(map[Binder]string, len(cfg.names))
	for _, name := range cfg.names {
		b := cfg.managers[name]
		if b.Mapping() != nil {
			return nil, fmt.Errorf("binding manager %q of %s: %w", name, typ.Name(), ErrAlreadyBound)
		}
		if b.Model() != typ {
			return nil, fmt.Errorf("binding manager %q of %s: manager serves %s", name, typ.Name(), b.Model().Name())
		}
		if prev, dup := seen[b]; dup {
			return nil, fmt.Errorf("binding manager %q of %s: same manager attached as %q", name, typ.Name(), prev)
		}
		seen[b] = name
	}

	mapping := &Mapping{
		model:    typ,
		table:    sch.Table,
		schema:   sch,
		names:    cfg.names,
		managers: cfg.managers,
	}
	for _, name := range cfg.names {
		if err := cfg.managers[name].Bind(mapping); err != nil {
			return nil, fmt.Errorf("binding manager %q of %s: %w", name, typ.Name(), err)
		}
	}

	m.mappings[typ] = mapping
	return mapping, nil
}

// Objects returns the default manager of T.
func Objects[T any](m *Mapper) (*Manager[T], error) {
	return ManagerOf[T](m, DefaultManagerName)
}

// ManagerOf returns the manager attached to T under name, which must embed
// or be a *Manager[T].
func ManagerOf[T any](m *Mapper, name string) (*Manager[T], error) {
	mapping, ok := m.Mapping(reflect.TypeFor[T]())
	if !ok {
		return nil, fmt.Errorf("%s: %w", reflect.TypeFor[T]().Name(), ErrNotMapped)
	}
	b, ok := mapping.Manager(name)
	if !ok {
		return nil, fmt.Errorf("model %s has no manager %q", mapping.model.Name(), name)
	}

	switch mgr := b.(type) {
	case *Manager[T]:
		return mgr, nil
	case interface{ Base() *Manager[T] }:
		return mgr.Base(), nil
	}
	return nil, fmt.Errorf("manager %q of %s is a %T", name, mapping.model.Name(), b)
}

// NewOption configures New.
type NewOption func(*newConfig)

type newConfig struct {
	noSave  bool
	session *Session
}

// NoSave creates the instance without registering it in any session.
func NoSave() NewOption {
	return func(c *newConfig) { c.noSave = true }
}

// InSession registers the instance in s instead of the session of the
// context.
func InSession(s *Session) NewOption {
	return func(c *newConfig) { c.session = s }
}

// New creates an instance of the mapped type T. Unless NoSave is given the
// instance is registered for saving in the session before init runs; when
// init fails it is expunged again and the error returned.
func New[T any](ctx context.Context, m *Mapper, init func(*T) error, opts ...NewOption) (*T, error) {
	if _, ok := m.Mapping(reflect.TypeFor[T]()); !ok {
		return nil, fmt.Errorf("%s: %w", reflect.TypeFor[T]().Name(), ErrNotMapped)
	}

	var cfg newConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	obj := new(T)

	var sess *Session
	if !cfg.noSave {
		sess = cfg.session
		if sess == nil {
			var err error
			if sess, err = MustFromContext(ctx); err != nil {
				return nil, err
			}
		}
		if err := sess.Add(obj); err != nil {
			return nil, err
		}
	}

	if init != nil {
		if err := init(obj); err != nil {
			if sess != nil {
				sess.Expunge(obj)
			}
			return nil, err
		}
	}
	return obj, nil
}

// hasAttribute reports whether typ has a field, or typ or *typ a method,
// called name.
func hasAttribute(typ reflect.Type, name string) bool {
	if _, ok := typ.FieldByName(name); ok {
		return true
	}
	if _, ok := typ.MethodByName(name); ok {
		return true
	}
	_, ok := reflect.PointerTo(typ).MethodByName(name)
	return ok
}
