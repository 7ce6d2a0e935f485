// Copyright 2023 The Gxmpp Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package gxmpp is the core substrate of an XMPP client: addressing
// (okami.im/gxmpp/jid), endpoint discovery and happy-eyeballs connection
// establishment (okami.im/gxmpp/dial), and the streaming XML front-end
// (okami.im/gxmpp/xmlstream).
//
// The root package ties the three together: Dial discovers a service's
// endpoints, tries them one after another in discovery order (IPv6 before
// IPv4 within an endpoint), and wraps the first socket that connects in a
// stream reader. Discovered endpoints are not raced against each other. Everything above the stream — TLS, SASL, stanza routing —
// is left to the caller.
package gxmpp // import "okami.im/gxmpp"
