// Copyright 2023 The Gxmpp Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package gxmpp

import (
	"context"
	"net"
	"time"

	"github.com/rs/zerolog"

	"okami.im/gxmpp/dial"
	"okami.im/gxmpp/jid"
	"okami.im/gxmpp/xmlstream"
)

// Config holds the knobs for establishing a connection. The zero value
// dials the "xmpp-client" service on its well-known port using the system
// resolver.
type Config struct {
	// Service is the SRV service label, eg. "xmpp-client" or "xmpp-server".
	Service string

	// Port overrides the fallback port used when SRV discovery yields
	// nothing. Zero means the service's well-known port.
	Port uint16

	// Querier issues the DNS queries for discovery. Nil uses the resolver
	// from /etc/resolv.conf.
	Querier dial.Querier

	// Dialer establishes the TCP connections. Nil uses a dial.Dialer whose
	// only non-zero field is Log, set from this Config.
	Dialer *dial.Dialer

	// Log receives discovery and connection diagnostics.
	Log zerolog.Logger
}

func (c *Config) service() string {
	if c.Service == "" {
		return "xmpp-client"
	}
	return c.Service
}

// A Conn is an established XMPP transport: the underlying socket plus the
// stream reader parsing its inbound half.
type Conn struct {
	net.Conn
	reader *xmlstream.Reader
}

// Dial discovers the service endpoints of the address's domainpart and
// connects to them, returning the first connection established wrapped in a
// stream reader. The stream itself is not opened; writing the stream header
// and negotiating what follows is the caller's business.
func Dial(ctx context.Context, addr *jid.JID, cfg *Config) (*Conn, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	port := cfg.Port
	if port == 0 {
		p, err := dial.LookupPort("tcp", cfg.service())
		if err != nil {
			return nil, err
		}
		port = p
	}
	querier := cfg.Querier
	if querier == nil {
		querier = dial.SystemClient()
	}
	resolver := dial.NewResolver(cfg.service(), "tcp", querier, dial.WithLogger(cfg.Log))
	dialer := cfg.Dialer
	if dialer == nil {
		dialer = &dial.Dialer{Log: cfg.Log}
	}

	conn, err := dialer.DialService(ctx, resolver, addr.Domainpart(), port)
	if err != nil {
		return nil, err
	}
	return NewConn(conn), nil
}

// NewConn wraps an already-established transport in a Conn. Useful when the
// socket comes from somewhere other than Dial (tests, TLS wrapping).
func NewConn(conn net.Conn) *Conn {
	return &Conn{Conn: conn, reader: xmlstream.NewReader(conn)}
}

// Next returns the next stanza from the stream. See xmlstream.Reader.Next.
func (c *Conn) Next(timeout time.Duration) (*xmlstream.Element, error) {
	return c.reader.Next(timeout)
}

// Root returns the stream's root element once the peer has opened it.
func (c *Conn) Root() *xmlstream.Element { return c.reader.Root() }

// Send writes raw bytes to the transport.
func (c *Conn) Send(p []byte) error { return c.reader.Send(p) }

// Close tears down the stream parser and closes the transport.
func (c *Conn) Close() error {
	c.reader.Close()
	return c.Conn.Close()
}
