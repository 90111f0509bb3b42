// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package tpxa

import (
	"bytes"
	"encoding/xml"
	"strings"
)

// Attr is an attribute of an Element. Name carries its prefix, e.g.
// "tp:dependency" or "xml:base".
type Attr struct {
	Name  string
	Value string
}

// Element is a node of an export fragment. Names are written with the
// namespace prefix declared on the feed element ("a:" or "tp:"), so a
// fragment is only meaningful inside the document.
type Element struct {
	Name     string
	Attrs    []Attr
	Text     string
	Children []*Element
}

// NewElement creates an element.
func NewElement(name, text string, attrs ...Attr) *Element {
	return &Element{Name: name, Text: text, Attrs: attrs}
}

// Append adds child as last child of e and returns it.
func (e *Element) Append(child *Element) *Element {
	e.Children = append(e.Children, child)
	return child
}

// Attr returns the value of the named attribute.
func (e *Element) Attr(name string) (string, bool) {
	for _, a := range e.Attrs {
		if a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}

// SetAttr sets or replaces an attribute.
func (e *Element) SetAttr(name, value string) {
	for i := range e.Attrs {
		if e.Attrs[i].Name == name {
			e.Attrs[i].Value = value
			return
		}
	}
	e.Attrs = append(e.Attrs, Attr{Name: name, Value: value})
}

// Child returns the first child called name, or nil.
func (e *Element) Child(name string) *Element {
	for _, c := range e.Children {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// ChildrenNamed returns all children called name.
func (e *Element) ChildrenNamed(name string) []*Element {
	var out []*Element
	for _, c := range e.Children {
		if c.Name == name {
			out = append(out, c)
		}
	}
	return out
}

// MarshalXML implements xml.Marshaler. The start element handed in is
// ignored; the element writes its own prefixed name.
func (e *Element) MarshalXML(enc *xml.Encoder, _ xml.StartElement) error {
	return e.encode(enc)
}

func (e *Element) encode(enc *xml.Encoder) error {
	start := xml.StartElement{Name: xml.Name{Local: e.Name}}
	for _, a := range e.Attrs {
		start.Attr = append(start.Attr, xml.Attr{Name: xml.Name{Local: a.Name}, Value: a.Value})
	}
	if err := enc.EncodeToken(start); err != nil {
		return err
	}
	if e.Text != "" {
		if err := enc.EncodeToken(xml.CharData(e.Text)); err != nil {
			return err
		}
	}
	for _, c := range e.Children {
		if err := c.encode(enc); err != nil {
			return err
		}
	}
	return enc.EncodeToken(start.End())
}

// Bytes serializes the element.
func (e *Element) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	enc := xml.NewEncoder(&buf)
	if err := e.encode(enc); err != nil {
		return nil, err
	}
	if err := enc.Flush(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ElementHelper builds elements of one namespace prefix.
type ElementHelper struct {
	prefix string
}

// Name returns the prefixed name of tag.
func (h ElementHelper) Name(tag string) string {
	return h.prefix + ":" + tag
}

// New creates a detached element.
func (h ElementHelper) New(tag, text string, attrs ...Attr) *Element {
	return NewElement(h.Name(tag), text, attrs...)
}

// Sub creates an element and appends it to parent.
func (h ElementHelper) Sub(parent *Element, tag, text string, attrs ...Attr) *Element {
	return parent.Append(h.New(tag, text, attrs...))
}

// Attr creates an attribute in the namespace of the helper.
func (h ElementHelper) Attr(name, value string) Attr {
	return Attr{Name: h.Name(name), Value: value}
}

// Element helpers for the two namespaces of the document.
var (
	Atom = ElementHelper{prefix: "a"}
	TP   = ElementHelper{prefix: "tp"}
)

func escape(s string) string {
	var b strings.Builder
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}
