// Copyright 2023 The Gxmpp Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package jid

import (
	"golang.org/x/text/transform"
)

var (
	// Escape is a transform that maps escapable runes to their escaped form
	// as defined in XEP-0106: JID Escaping.
	Escape escaper

	// Unescape is a transform that maps valid escape sequences to their
	// unescaped form as defined in XEP-0106: JID Escaping. A backslash only
	// forms an escape together with the two following characters when the
	// three match the escape table; any other sequence passes through
	// untouched.
	Unescape unescaper
)

// EscapedChars is a string composed of all the characters that will be
// escaped or unescaped by the transformers in this package (in no particular
// order).
const EscapedChars = ` "&'/:<>@\`

type escaper struct{}

// Transform implements transform.Transformer.
func (escaper) Transform(dst, src []byte, atEOF bool) (nDst, nSrc int, err error) {
	for nSrc < len(src) {
		var rep string
		switch c := src[nSrc]; c {
		case ' ':
			rep = `\20`
		case '"':
			rep = `\22`
		case '&':
			rep = `\26`
		case '\'':
			rep = `\27`
		case '/':
			rep = `\2f`
		case ':':
			rep = `\3a`
		case '<':
			rep = `\3c`
		case '>':
			rep = `\3e`
		case '@':
			rep = `\40`
		case '\\':
			rep = `\5c`
		default:
			if nDst == len(dst) {
				return nDst, nSrc, transform.ErrShortDst
			}
			dst[nDst] = c
			nDst++
			nSrc++
			continue
		}
		if len(dst)-nDst < len(rep) {
			return nDst, nSrc, transform.ErrShortDst
		}
		nDst += copy(dst[nDst:], rep)
		nSrc++
	}
	return nDst, nSrc, nil
}

// Span implements transform.SpanningTransformer.
func (escaper) Span(src []byte, atEOF bool) (n int, err error) {
	for n < len(src) {
		switch src[n] {
		case ' ', '"', '&', '\'', '/', ':', '<', '>', '@', '\\':
			return n, transform.ErrEndOfSpan
		}
		n++
	}
	return n, nil
}

// Reset implements transform.Transformer.
func (escaper) Reset() {}

// String returns s with all escapable characters replaced by their XEP-0106
// escape sequences.
func (t escaper) String(s string) string {
	out, _, _ := transform.String(t, s)
	return out
}

// Bytes returns a new byte slice with all escapable characters replaced by
// their XEP-0106 escape sequences.
func (t escaper) Bytes(b []byte) []byte {
	out, _, _ := transform.Bytes(t, b)
	return out
}

type unescaper struct{}

func unescapeByte(a, b byte) (byte, bool) {
	switch {
	case a == '2' && b == '0':
		return ' ', true
	case a == '2' && b == '2':
		return '"', true
	case a == '2' && b == '6':
		return '&', true
	case a == '2' && b == '7':
		return '\'', true
	case a == '2' && b == 'f':
		return '/', true
	case a == '3' && b == 'a':
		return ':', true
	case a == '3' && b == 'c':
		return '<', true
	case a == '3' && b == 'e':
		return '>', true
	case a == '4' && b == '0':
		return '@', true
	case a == '5' && b == 'c':
		return '\\', true
	}
	return 0, false
}

// Transform implements transform.Transformer.
func (unescaper) Transform(dst, src []byte, atEOF bool) (nDst, nSrc int, err error) {
	for nSrc < len(src) {
		c := src[nSrc]
		if c != '\\' {
			if nDst == len(dst) {
				return nDst, nSrc, transform.ErrShortDst
			}
			dst[nDst] = c
			nDst++
			nSrc++
			continue
		}
		if len(src)-nSrc < 3 {
			if !atEOF {
				return nDst, nSrc, transform.ErrShortSrc
			}
			// A truncated trailer at the end of the input passes through.
			if len(dst)-nDst < len(src)-nSrc {
				return nDst, nSrc, transform.ErrShortDst
			}
			nDst += copy(dst[nDst:], src[nSrc:])
			nSrc = len(src)
			return nDst, nSrc, nil
		}
		if r, ok := unescapeByte(src[nSrc+1], src[nSrc+2]); ok {
			if nDst == len(dst) {
				return nDst, nSrc, transform.ErrShortDst
			}
			dst[nDst] = r
			nDst++
			nSrc += 3
			continue
		}
		// Not a recognized sequence; the backslash and both trailing
		// characters pass through.
		if len(dst)-nDst < 3 {
			return nDst, nSrc, transform.ErrShortDst
		}
		nDst += copy(dst[nDst:], src[nSrc:nSrc+3])
		nSrc += 3
	}
	return nDst, nSrc, nil
}

// Span implements transform.SpanningTransformer.
func (unescaper) Span(src []byte, atEOF bool) (n int, err error) {
	for n < len(src) {
		if src[n] != '\\' {
			n++
			continue
		}
		if len(src)-n < 3 {
			if !atEOF {
				return n, transform.ErrShortSrc
			}
			return len(src), nil
		}
		if _, ok := unescapeByte(src[n+1], src[n+2]); ok {
			return n, transform.ErrEndOfSpan
		}
		n += 3
	}
	return n, nil
}

// Reset implements transform.Transformer.
func (unescaper) Reset() {}

// String returns s with all XEP-0106 escape sequences replaced by the
// characters they encode.
func (t unescaper) String(s string) string {
	out, _, _ := transform.String(t, s)
	return out
}

// Bytes returns a new byte slice with all XEP-0106 escape sequences replaced
// by the characters they encode.
func (t unescaper) Bytes(b []byte) []byte {
	out, _, _ := transform.Bytes(t, b)
	return out
}
