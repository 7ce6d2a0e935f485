// Copyright 2023 The Gxmpp Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package jid implements XMPP addresses (historically called "Jabber ID's"
// or "JID's") as described in RFC 7622 and transformers for the escaping
// mechanism defined in XEP-0106: JID Escaping.
//
// A JID is an immutable (localpart, domainpart, resourcepart) triple held in
// escaped, normalized form. Parse trusts its input to already be in wire
// form; New validates and canonicalizes unescaped parts.
package jid // import "okami.im/gxmpp/jid"
