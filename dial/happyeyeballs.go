// Copyright 2023 The Gxmpp Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package dial

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
)

// Timing of the RFC 8305 connection race.
const (
	// resolveDelay is how long IPv4 connection attempts wait for the IPv6
	// resolver to produce its first address.
	resolveDelay = 50 * time.Millisecond

	// connectDelay is the head start IPv6 connection attempts get once the
	// IPv6 resolver has produced an address.
	connectDelay = 100 * time.Millisecond

	// minTimeout is the floor applied to the remaining total budget on each
	// wait.
	minTimeout = time.Millisecond
)

// ErrTimeout is returned by DialContext when the total timeout expires
// before any connection attempt succeeds. It is distinct from ConnError,
// which reports that every attempt was tried and failed.
var ErrTimeout = errors.New("dial: timed out before a connection could be established")

// AttemptError records the failure of a single resolver or connect attempt.
type AttemptError struct {
	// Network is the attempt's address family ("ip6"/"ip4" for resolution,
	// "tcp6"/"tcp4" for connects).
	Network string

	// Addr is the address dialed, empty for resolver failures.
	Addr string

	// Err is the underlying cause.
	Err error
}

func (e *AttemptError) Error() string {
	if e.Addr == "" {
		return "dial: resolve " + e.Network + ": " + e.Err.Error()
	}
	return "dial: connect " + e.Network + " " + e.Addr + ": " + e.Err.Error()
}

func (e *AttemptError) Unwrap() error { return e.Err }

// ConnError aggregates the failures of every attempt made during a dial. It
// is returned once no in-flight work remains.
type ConnError struct {
	Attempts []*AttemptError
}

func (e *ConnError) Error() string {
	if len(e.Attempts) == 0 {
		return "dial: no addresses found"
	}
	parts := make([]string, len(e.Attempts))
	for i, a := range e.Attempts {
		parts[i] = a.Error()
	}
	return "dial: all connection attempts failed: " + strings.Join(parts, "; ")
}

// A Dialer connects to a single host and port, racing address families per
// RFC 8305. The zero value is a usable Dialer with no timeouts that uses the
// system resolver.
//
// The Dialer only establishes the transport connection; session negotiation
// happens on the returned net.Conn.
type Dialer struct {
	// Timeout bounds the whole dial, resolution included. Zero means no
	// limit beyond the context's.
	Timeout time.Duration

	// DNSTimeout bounds each of the two per-family resolver tasks.
	DNSTimeout time.Duration

	// LocalAddr is the source address for outgoing connections, as in
	// net.Dialer.
	LocalAddr net.Addr

	// Control, if non-nil, is invoked on each socket after it is created and
	// bound but before it connects, as in net.Dialer. An error aborts that
	// attempt only.
	Control func(network, address string, c syscall.RawConn) error

	// NoHappyEyeballs disables the connection race; the address is dialed
	// with a single attempt.
	NoHappyEyeballs bool

	// Resolver resolves hostnames to addresses. Nil uses net.DefaultResolver.
	Resolver *net.Resolver

	// Log receives connection race diagnostics. The zero value discards
	// everything.
	Log zerolog.Logger

	// Test seams; nil means the real thing.
	lookup      func(ctx context.Context, network, host string) ([]netip.Addr, error)
	dialAttempt func(ctx context.Context, network, address string) (net.Conn, error)
}

// event tags, mirroring the wire between the race's tasks and its main
// loop: a successful connect, a resolved address, a failed resolver task,
// and a failed connect attempt.
type eventKind int8

const (
	evConn eventKind = iota
	evAddr
	evResolveErr
	evConnErr
	// evResolveDone marks a resolver task that finished after producing
	// addresses, so the main loop can tell "still resolving" from "every
	// attempt is in flight".
	evResolveDone
)

type event struct {
	kind    eventKind
	family  string // "ip6" or "ip4"
	addr    netip.Addr
	conn    net.Conn
	err     error
	dialed  string // address string of a failed connect
	network string // network of a failed connect
}

// DialContext connects to the given "host:port" address on a TCP network.
//
// IP literal hosts (and Dialers with NoHappyEyeballs set) are dialed
// directly with a single attempt. Hostnames are resolved per family and the
// connect attempts are raced: IPv6 attempts start as addresses arrive, IPv4
// attempts are held back while the IPv6 resolver is given resolveDelay to
// produce a first address and, if it does, a further connectDelay head
// start. The first established connection wins and every other task is
// cancelled.
func (d *Dialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	host, portStr, err := net.SplitHostPort(address)
	if err != nil {
		return nil, err
	}
	if _, _, ok := literalNetwork(host); ok || d.NoHappyEyeballs {
		return d.dialDirect(ctx, network, address)
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return nil, err
	}
	return d.race(ctx, host, uint16(port))
}

// Dial connects with the background context.
func (d *Dialer) Dial(network, address string) (net.Conn, error) {
	return d.DialContext(context.Background(), network, address)
}

// DialCandidate connects to one discovered endpoint. The IPv6 address is
// tried before the IPv4 address; both are direct dials since discovery has
// already produced literal addresses.
func (d *Dialer) DialCandidate(ctx context.Context, c Candidate) (net.Conn, error) {
	var err error
	if c.V6.IsValid() {
		conn, e := d.dialDirect(ctx, "tcp6", netip.AddrPortFrom(c.V6, c.Port).String())
		if e == nil {
			return conn, nil
		}
		err = e
	}
	if c.V4.IsValid() {
		conn, e := d.dialDirect(ctx, "tcp4", netip.AddrPortFrom(c.V4, c.Port).String())
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

func (d *Dialer) dialDirect(ctx context.Context, network, address string) (net.Conn, error) {
	if d.dialAttempt != nil {
		return d.dialAttempt(ctx, network, address)
	}
	nd := net.Dialer{
		Timeout:   d.Timeout,
		LocalAddr: d.LocalAddr,
		Control:   d.Control,
		Resolver:  d.Resolver,
	}
	return nd.DialContext(ctx, network, address)
}

func (d *Dialer) race(ctx context.Context, host string, port uint16) (net.Conn, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	bus := make(chan event)
	go d.resolveTask(ctx, bus, "ip6", host)
	go d.resolveTask(ctx, bus, "ip4", host)

	var (
		attempts    []*AttemptError
		deferred    []netip.Addr
		dnsPending  = 2
		connPending = 0
		v6Seen      = false
		drained     = false
	)

	// The stagger timer plays the role of a separate delay task: it opens
	// the IPv4 gate either resolveDelay after the race starts or, if the
	// IPv6 resolver produced an address inside that window, connectDelay
	// after that first address.
	stagger := time.NewTimer(resolveDelay)
	defer stagger.Stop()

	var deadline time.Time
	if d.Timeout > 0 {
		deadline = time.Now().Add(d.Timeout)
	}
	budget := time.NewTimer(time.Hour)
	defer budget.Stop()

	for {
		var budgetC <-chan time.Time
		if !deadline.IsZero() {
			remaining := time.Until(deadline)
			if remaining < minTimeout {
				remaining = minTimeout
			}
			if !budget.Stop() {
				select {
				case <-budget.C:
				default:
				}
			}
			budget.Reset(remaining)
			budgetC = budget.C
		}

		select {
		case <-stagger.C:
			drained = true
			for _, a := range deferred {
				go d.connectTask(ctx, bus, "tcp4", netip.AddrPortFrom(a, port))
			}
			deferred = nil

		case <-budgetC:
			return nil, ErrTimeout

		case <-ctx.Done():
			return nil, ctx.Err()

		case ev := <-bus:
			switch ev.kind {
			case evConn:
				return ev.conn, nil

			case evAddr:
				connPending++
				if ev.family == "ip6" {
					if !v6Seen && !drained {
						v6Seen = true
						if stagger.Stop() {
							stagger.Reset(connectDelay)
						}
					}
					go d.connectTask(ctx, bus, "tcp6", netip.AddrPortFrom(ev.addr, port))
				} else if drained {
					go d.connectTask(ctx, bus, "tcp4", netip.AddrPortFrom(ev.addr, port))
				} else {
					deferred = append(deferred, ev.addr)
				}

			case evResolveDone:
				dnsPending--
				if dnsPending == 0 && connPending == 0 {
					return nil, &ConnError{Attempts: attempts}
				}

			case evResolveErr:
				dnsPending--
				attempts = append(attempts, &AttemptError{Network: ev.family, Err: ev.err})
				d.Log.Debug().Str("family", ev.family).Err(ev.err).Msg("resolver task failed")
				if dnsPending == 0 && connPending == 0 {
					return nil, &ConnError{Attempts: attempts}
				}

			case evConnErr:
				connPending--
				attempts = append(attempts, &AttemptError{Network: ev.network, Addr: ev.dialed, Err: ev.err})
				d.Log.Debug().Str("addr", ev.dialed).Err(ev.err).Msg("connect attempt failed")
				if dnsPending == 0 && connPending == 0 {
					return nil, &ConnError{Attempts: attempts}
				}
			}
		}
	}
}

// resolveTask resolves host within one address family and posts each found
// address to the bus. Cancellation is silent; failure and timeout post a
// single resolver-error event.
func (d *Dialer) resolveTask(ctx context.Context, bus chan<- event, family, host string) {
	// The query context may carry the DNS timeout; bus sends keep using the
	// race's own context so that an expired query can still report itself.
	qctx := ctx
	if d.DNSTimeout > 0 {
		var cancel context.CancelFunc
		qctx, cancel = context.WithTimeout(ctx, d.DNSTimeout)
		defer cancel()
	}
	addrs, err := d.lookupAddrs(qctx, family, host)
	if err != nil {
		if ctx.Err() != nil {
			// The race is already over; cancellation is not an error.
			return
		}
		select {
		case bus <- event{kind: evResolveErr, family: family, err: err}:
		case <-ctx.Done():
		}
		return
	}
	for _, a := range addrs {
		select {
		case bus <- event{kind: evAddr, family: family, addr: a}:
		case <-ctx.Done():
			return
		}
	}
	select {
	case bus <- event{kind: evResolveDone, family: family}:
	case <-ctx.Done():
	}
}

func (d *Dialer) lookupAddrs(ctx context.Context, family, host string) ([]netip.Addr, error) {
	if d.lookup != nil {
		return d.lookup(ctx, family, host)
	}
	resolver := d.Resolver
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	return resolver.LookupNetIP(ctx, family, host)
}

// connectTask dials one address and posts the outcome. If the race has
// already been decided the freshly-connected socket is closed instead of
// posted.
func (d *Dialer) connectTask(ctx context.Context, bus chan<- event, network string, ap netip.AddrPort) {
	address := ap.String()
	conn, err := d.attempt(ctx, network, address)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		select {
		case bus <- event{kind: evConnErr, network: network, dialed: address, err: err}:
		case <-ctx.Done():
		}
		return
	}
	select {
	case bus <- event{kind: evConn, conn: conn}:
	case <-ctx.Done():
		conn.Close()
	}
}

func (d *Dialer) attempt(ctx context.Context, network, address string) (net.Conn, error) {
	if d.dialAttempt != nil {
		return d.dialAttempt(ctx, network, address)
	}
	nd := net.Dialer{
		LocalAddr: d.LocalAddr,
		Control:   d.Control,
	}
	return nd.DialContext(ctx, network, address)
}

// literalNetwork reports whether host is an IP literal and the concrete
// network it implies.
func literalNetwork(host string) (netip.Addr, string, bool) {
	v4, v6, ok := literal(host)
	switch {
	case !ok:
		return netip.Addr{}, "", false
	case v4.IsValid():
		return v4, "tcp4", true
	default:
		return v6, "tcp6", true
	}
}
