// Copyright 2023 The Gxmpp Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package xmlstream

import (
	"encoding/xml"
	"strings"
)

// Element is an XML subtree: a name, its attributes, the character data it
// contains, and its child elements. Stanzas delivered by a Stream are
// Elements detached from the stream's root.
type Element struct {
	Name     xml.Name
	Attr     []xml.Attr
	Text     string
	Children []*Element
}

// AttrValue returns the value of the first attribute with the given local
// name, or the empty string if no such attribute exists.
func (e *Element) AttrValue(local string) string {
	for _, a := range e.Attr {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}

// Child returns the first child element with the given local name, or nil.
func (e *Element) Child(local string) *Element {
	for _, c := range e.Children {
		if c.Name.Local == local {
			return c
		}
	}
	return nil
}

// String serializes the element. It is a presentation aid for logs and
// tests; mixed content is rendered with the element's character data ahead
// of its children.
func (e *Element) String() string {
	var b strings.Builder
	e.write(&b)
	return b.String()
}

func (e *Element) write(b *strings.Builder) {
	b.WriteByte('<')
	b.WriteString(tagName(e.Name))
	for _, a := range e.Attr {
		b.WriteByte(' ')
		b.WriteString(attrName(a.Name))
		b.WriteString(`="`)
		xml.EscapeText(b, []byte(a.Value))
		b.WriteByte('"')
	}
	if e.Text == "" && len(e.Children) == 0 {
		b.WriteString("/>")
		return
	}
	b.WriteByte('>')
	xml.EscapeText(b, []byte(e.Text))
	for _, c := range e.Children {
		c.write(b)
	}
	b.WriteString("</")
	b.WriteString(tagName(e.Name))
	b.WriteByte('>')
}

func tagName(n xml.Name) string {
	return n.Local
}

func attrName(n xml.Name) string {
	switch n.Space {
	case "":
		return n.Local
	case "xmlns":
		return "xmlns:" + n.Local
	default:
		return n.Space + ":" + n.Local
	}
}
