// Copyright 2023 The Gxmpp Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package jid

import (
	"errors"
	"fmt"
)

// Errors returned when constructing a JID from invalid parts.
var (
	// ErrEmptyDomain is returned when the domainpart is missing. A JID must
	// always carry a domainpart.
	ErrEmptyDomain = errors.New("jid: domainpart must not be empty")

	// ErrBoundarySpace is returned by New when the localpart begins or ends
	// with the SPACE character, which XEP-0106 forbids even in escaped form.
	ErrBoundarySpace = errors.New("jid: localpart must not start or end with a space")
)

// LengthError is returned when a part of the JID is empty or exceeds 1023
// octets once encoded.
type LengthError struct {
	Part string
}

func (e *LengthError) Error() string {
	return fmt.Sprintf("jid: %s must be between 1 and 1023 octets", e.Part)
}

// PrecisError is returned when a part is rejected by the PRECIS profile that
// governs it.
type PrecisError struct {
	Profile string
	Err     error
}

func (e *PrecisError) Error() string {
	return fmt.Sprintf("jid: part rejected by the %s profile: %v", e.Profile, e.Err)
}

func (e *PrecisError) Unwrap() error { return e.Err }

// IDNAError is returned when the domainpart cannot be encoded as an
// internationalized domain name.
type IDNAError struct {
	Err error
}

func (e *IDNAError) Error() string {
	return fmt.Sprintf("jid: domainpart is not a valid internationalized domain: %v", e.Err)
}

func (e *IDNAError) Unwrap() error { return e.Err }
