// Copyright 2023 The Gxmpp Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package dial discovers the transport endpoints of an XMPP service and
// establishes TCP connections to them.
//
// Discovery follows RFC 2782: the service's SRV records are resolved and
// walked in priority order with weighted random selection inside each
// priority, and each target is resolved to its A/AAAA address pairs, the
// first of which becomes that target's candidate.
// Connection establishment follows RFC 8305 (happy eyeballs): IPv6 and IPv4
// attempts are raced with staggered starts and the first established
// connection wins.
package dial // import "okami.im/gxmpp/dial"

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strings"

	"github.com/miekg/dns"
	"github.com/rs/zerolog"
)

// Status classifies the outcome of a DNS query.
type Status uint8

const (
	// StatusFound means the query produced at least one record.
	StatusFound Status = iota

	// StatusEmpty means the name does not exist or holds no records of the
	// requested type.
	StatusEmpty

	// StatusTimeout means the query timed out.
	StatusTimeout

	// StatusFailed means the query failed for any other reason.
	StatusFailed
)

// Record is a single DNS answer record. Addr is set for A and AAAA answers;
// Target, Port, Priority, and Weight are set for SRV answers.
type Record struct {
	Addr netip.Addr

	Target   string
	Port     uint16
	Priority uint16
	Weight   uint16
}

// Result is the outcome of a single DNS query. Callers switch on Status
// instead of sniffing error types; Err carries the underlying cause for
// StatusTimeout and StatusFailed.
type Result struct {
	Status  Status
	Records []Record
	Err     error
}

// A Querier issues DNS queries. qtype is a DNS record type such as
// dns.TypeSRV, dns.TypeA, or dns.TypeAAAA. Implementations never report
// failure through a Go error; degradation is encoded in the Result so tests
// can substitute fixtures without faking error types.
type Querier interface {
	Query(ctx context.Context, qname string, qtype uint16) Result
}

// Client is the default Querier. It issues queries over the wire with
// github.com/miekg/dns against a single configured server.
type Client struct {
	// DNS is the underlying client. A nil DNS uses a zero dns.Client (UDP,
	// default timeouts).
	DNS *dns.Client

	// Server is the "host:port" of the server queried.
	Server string
}

// SystemClient returns a Client configured from /etc/resolv.conf, falling
// back to the local resolver when the file cannot be read.
func SystemClient() *Client {
	server := "127.0.0.1:53"
	if cfg, err := dns.ClientConfigFromFile("/etc/resolv.conf"); err == nil && len(cfg.Servers) > 0 {
		server = net.JoinHostPort(cfg.Servers[0], cfg.Port)
	}
	return &Client{Server: server}
}

// Query implements Querier.
func (c *Client) Query(ctx context.Context, qname string, qtype uint16) Result {
	client := c.DNS
	if client == nil {
		client = &dns.Client{}
	}
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(qname), qtype)
	m.RecursionDesired = true

	resp, _, err := client.ExchangeContext(ctx, m, c.Server)
	if err != nil {
		var nerr net.Error
		if errors.As(err, &nerr) && nerr.Timeout() || errors.Is(err, context.DeadlineExceeded) {
			return Result{Status: StatusTimeout, Err: err}
		}
		return Result{Status: StatusFailed, Err: err}
	}
	switch resp.Rcode {
	case dns.RcodeSuccess:
	case dns.RcodeNameError:
		return Result{Status: StatusEmpty}
	default:
		return Result{Status: StatusFailed, Err: fmt.Errorf("dial: query for %s returned %s", qname, dns.RcodeToString[resp.Rcode])}
	}

	var records []Record
	for _, rr := range resp.Answer {
		switch rr := rr.(type) {
		case *dns.SRV:
			records = append(records, Record{
				Target:   strings.TrimSuffix(rr.Target, "."),
				Port:     rr.Port,
				Priority: rr.Priority,
				Weight:   rr.Weight,
			})
		case *dns.A:
			if a, ok := netip.AddrFromSlice(rr.A.To4()); ok {
				records = append(records, Record{Addr: a})
			}
		case *dns.AAAA:
			if a, ok := netip.AddrFromSlice(rr.AAAA); ok {
				records = append(records, Record{Addr: a})
			}
		}
	}
	if len(records) == 0 {
		return Result{Status: StatusEmpty}
	}
	return Result{Status: StatusFound, Records: records}
}

// ErrUnresolvable is returned by ResolveAddrs when neither A nor AAAA
// records exist for a host.
var ErrUnresolvable = errors.New("dial: host could not be resolved")

// AddrPair is one candidate address pair for a host: the i-th IPv4 address
// zipped with the i-th IPv6 address. The zero netip.Addr marks an absent
// half; at least one half is always set.
type AddrPair struct {
	V4 netip.Addr
	V6 netip.Addr
}

// Candidate is a connectable endpoint produced by discovery.
type Candidate struct {
	V4   netip.Addr
	V6   netip.Addr
	Port uint16
}

// An Iter yields candidate endpoints one at a time. Next returns false once
// no candidates remain.
type Iter interface {
	Next(ctx context.Context) (Candidate, bool)
}

// Resolver resolves a service host to a ranked set of candidate endpoints.
type Resolver struct {
	prefix  string
	querier Querier
	log     zerolog.Logger
	rnd     randSource
}

// An Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets the logger used to report DNS degradation. The default
// logger discards everything.
func WithLogger(log zerolog.Logger) Option {
	return func(r *Resolver) { r.log = log }
}

// WithRand sets the random source used for RFC 2782 weighted selection.
// Intended for deterministic tests.
func WithRand(rnd randSource) Option {
	return func(r *Resolver) { r.rnd = rnd }
}

// NewResolver returns a Resolver that discovers "_service._proto.<host>" SRV
// records through q. Use service "xmpp-client" and proto "tcp" for
// client-to-server streams.
func NewResolver(service, proto string, q Querier, opts ...Option) *Resolver {
	r := &Resolver{
		prefix:  "_" + service + "._" + proto + ".",
		querier: q,
		log:     zerolog.Nop(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// LookupAddrs resolves host to an iterator of candidate endpoints carrying
// the given default port.
//
// IP literals short-circuit to a single candidate. Otherwise the service's
// SRV records are resolved and iterated per RFC 2782; if the SRV lookup
// produces nothing (missing records, timeout, or server failure) the host's
// own A/AAAA records are used instead. DNS failures never surface as errors
// here; they degrade to fewer candidates and a diagnostic log line.
func (r *Resolver) LookupAddrs(ctx context.Context, host string, port uint16) Iter {
	if v4, v6, ok := literal(host); ok {
		return &listIter{candidates: []Candidate{{V4: v4, V6: v6, Port: port}}}
	}

	qname := r.prefix + host
	res := r.querier.Query(ctx, qname, dns.TypeSRV)
	switch res.Status {
	case StatusFound:
		return newPicker(r, res.Records, r.rnd)
	case StatusEmpty:
		r.log.Debug().Str("qname", qname).Msg("missing SRV record")
	case StatusTimeout:
		r.log.Warn().Str("qname", qname).Msg("timed out while querying SRV record")
	case StatusFailed:
		r.log.Error().Err(res.Err).Str("qname", qname).Msg("DNS failed while querying SRV record")
	}

	pairs, err := r.ResolveAddrs(ctx, host)
	if err != nil {
		return &listIter{}
	}
	candidates := make([]Candidate, 0, len(pairs))
	for _, p := range pairs {
		candidates = append(candidates, Candidate{V4: p.V4, V6: p.V6, Port: port})
	}
	return &listIter{candidates: candidates}
}

// ResolveAddrs resolves qname to its address pairs: the A and AAAA answers
// are zipped positionally, the longer list padding the shorter with absent
// halves. A failed query of either type is logged and contributes no
// addresses; ErrUnresolvable is returned only when both lists come back
// empty.
func (r *Resolver) ResolveAddrs(ctx context.Context, qname string) ([]AddrPair, error) {
	v4 := r.addrQuery(ctx, qname, dns.TypeA)
	v6 := r.addrQuery(ctx, qname, dns.TypeAAAA)
	if len(v4) == 0 && len(v6) == 0 {
		return nil, ErrUnresolvable
	}

	n := len(v4)
	if len(v6) > n {
		n = len(v6)
	}
	pairs := make([]AddrPair, n)
	for i, a := range v4 {
		pairs[i].V4 = a
	}
	for i, a := range v6 {
		pairs[i].V6 = a
	}
	return pairs, nil
}

func (r *Resolver) addrQuery(ctx context.Context, qname string, qtype uint16) []netip.Addr {
	rdtype := dns.TypeToString[qtype]
	res := r.querier.Query(ctx, qname, qtype)
	switch res.Status {
	case StatusFound:
	case StatusEmpty:
		r.log.Debug().Str("qname", qname).Str("rdtype", rdtype).Msg("missing address record")
		return nil
	case StatusTimeout:
		r.log.Warn().Str("qname", qname).Str("rdtype", rdtype).Msg("timed out while querying address record")
		return nil
	case StatusFailed:
		r.log.Error().Err(res.Err).Str("qname", qname).Str("rdtype", rdtype).Msg("DNS failed while querying address record")
		return nil
	}
	addrs := make([]netip.Addr, 0, len(res.Records))
	for _, rec := range res.Records {
		if rec.Addr.IsValid() {
			addrs = append(addrs, rec.Addr)
		}
	}
	return addrs
}

// literal reports whether host is an IP literal, and under which family.
// IPv6 literals may be wrapped in square brackets.
func literal(host string) (v4, v6 netip.Addr, ok bool) {
	if ip, err := netip.ParseAddr(host); err == nil && ip.Is4() {
		return ip, netip.Addr{}, true
	}
	if ip, err := netip.ParseAddr(strings.Trim(host, "[]")); err == nil {
		return netip.Addr{}, ip, true
	}
	return netip.Addr{}, netip.Addr{}, false
}

type listIter struct {
	candidates []Candidate
}

func (it *listIter) Next(_ context.Context) (Candidate, bool) {
	if len(it.candidates) == 0 {
		return Candidate{}, false
	}
	c := it.candidates[0]
	it.candidates = it.candidates[1:]
	return c, true
}
