// Copyright 2023 The Gxmpp Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package dial

import (
	"context"
	"net"
)

// LookupPort returns the default port for the provided network and service
// using net.LookupPort. If the provided service is one of the XMPP services
// and it is not found by net.LookupPort, a well-known default is returned.
func LookupPort(network, service string) (uint16, error) {
	p, err := net.LookupPort(network, service)
	if err == nil {
		return uint16(p), nil
	}
	switch service {
	case "xmpp-client", "xmpps-client":
		return 5222, nil
	case "xmpp-server", "xmpps-server":
		return 5269, nil
	}
	return 0, err
}

// DialService discovers the endpoints of host through r and connects to
// them in discovery order, returning the first connection established.
// Failures are not aggregated: if no candidate connects, the last
// candidate's error is returned, or a bare ConnError when discovery produced
// no candidates at all.
func (d *Dialer) DialService(ctx context.Context, r *Resolver, host string, port uint16) (net.Conn, error) {
	it := r.LookupAddrs(ctx, host, port)
	var err error
	for {
		c, ok := it.Next(ctx)
		if !ok {
			break
		}
		conn, e := d.DialCandidate(ctx, c)
		if e == nil {
			return conn, nil
		}
		err = e
	}
	if err == nil {
		err = &ConnError{}
	}
	return nil, err
}
