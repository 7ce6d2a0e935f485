// Copyright 2023 The Gxmpp Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package stringprep wraps the PRECIS profile enforcement and IDNA encoding
// used when preparing the parts of an XMPP address.
package stringprep

import (
	"fmt"
	"strings"

	"golang.org/x/net/idna"
	"golang.org/x/text/secure/precis"
)

// Names of the PRECIS profiles enforced by this package.
const (
	ProfileUsernameCaseMapped = "UsernameCaseMapped"
	ProfileOpaqueString       = "OpaqueString"
)

// ProfileError is returned when a string is rejected by a PRECIS profile.
type ProfileError struct {
	Profile string
	Err     error
}

func (e *ProfileError) Error() string {
	return fmt.Sprintf("stringprep: input rejected by the %s profile: %v", e.Profile, e.Err)
}

func (e *ProfileError) Unwrap() error { return e.Err }

// EncodingError is returned when a domain cannot be encoded as an A-label.
type EncodingError struct {
	Err error
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("stringprep: invalid internationalized domain: %v", e.Err)
}

func (e *EncodingError) Unwrap() error { return e.Err }

// Localpart enforces the UsernameCaseMapped profile on s. The profile
// width-maps, case-maps, normalizes to NFC, and rejects disallowed code
// points.
func Localpart(s string) (string, error) {
	out, err := precis.UsernameCaseMapped.String(s)
	if err != nil {
		return "", &ProfileError{Profile: ProfileUsernameCaseMapped, Err: err}
	}
	return out, nil
}

// Resourcepart enforces the OpaqueString profile on s.
func Resourcepart(s string) (string, error) {
	out, err := precis.OpaqueString.String(s)
	if err != nil {
		return "", &ProfileError{Profile: ProfileOpaqueString, Err: err}
	}
	return out, nil
}

// Domainpart encodes s as an IDNA A-label string. The lookup profile is used
// so that the result is case-folded and suitable for comparison and DNS.
// Domains with an empty label (eg. "example..com") are rejected.
func Domainpart(s string) (string, error) {
	out, err := idna.Lookup.ToASCII(s)
	if err != nil {
		return "", &EncodingError{Err: err}
	}
	// The lookup profile does not verify label lengths, so empty labels pass
	// through it unreported.
	if strings.HasPrefix(out, ".") || strings.Contains(out, "..") {
		return "", &EncodingError{Err: fmt.Errorf("idna: empty label in %q", s)}
	}
	return out, nil
}
