// Copyright 2023 The Gxmpp Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package dial

import (
	"context"
	"fmt"
	"net/netip"
	"testing"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeQuerier serves canned DNS results keyed by qname and rdtype.
type fakeQuerier struct {
	answers map[string]Result
}

func (f *fakeQuerier) Query(_ context.Context, qname string, qtype uint16) Result {
	if r, ok := f.answers[key(qname, qtype)]; ok {
		return r
	}
	return Result{Status: StatusEmpty}
}

func key(qname string, qtype uint16) string {
	return fmt.Sprintf("%s/%s", qname, dns.TypeToString[qtype])
}

func srv(target string, port, priority, weight uint16) Record {
	return Record{Target: target, Port: port, Priority: priority, Weight: weight}
}

func addr(s string) Record {
	return Record{Addr: netip.MustParseAddr(s)}
}

func found(records ...Record) Result {
	return Result{Status: StatusFound, Records: records}
}

func drain(ctx context.Context, it Iter) []Candidate {
	var out []Candidate
	for {
		c, ok := it.Next(ctx)
		if !ok {
			return out
		}
		out = append(out, c)
	}
}

func TestLookupAddrsLiteral(t *testing.T) {
	r := NewResolver("xmpp-client", "tcp", &fakeQuerier{})
	ctx := context.Background()

	got := drain(ctx, r.LookupAddrs(ctx, "192.0.2.7", 5222))
	require.Len(t, got, 1)
	assert.Equal(t, netip.MustParseAddr("192.0.2.7"), got[0].V4)
	assert.False(t, got[0].V6.IsValid())
	assert.Equal(t, uint16(5222), got[0].Port)

	got = drain(ctx, r.LookupAddrs(ctx, "[2001:db8::1]", 5269))
	require.Len(t, got, 1)
	assert.False(t, got[0].V4.IsValid())
	assert.Equal(t, netip.MustParseAddr("2001:db8::1"), got[0].V6)
	assert.Equal(t, uint16(5269), got[0].Port)
}

func TestLookupAddrsFallback(t *testing.T) {
	// No SRV record: the host's own A and AAAA records are zipped
	// positionally into candidates carrying the caller's port.
	q := &fakeQuerier{answers: map[string]Result{
		key("example.net", dns.TypeA):    found(addr("192.0.2.1"), addr("192.0.2.2")),
		key("example.net", dns.TypeAAAA): found(addr("2001:db8::1")),
	}}
	r := NewResolver("xmpp-client", "tcp", q)
	ctx := context.Background()

	got := drain(ctx, r.LookupAddrs(ctx, "example.net", 5222))
	require.Len(t, got, 2)
	assert.Equal(t, netip.MustParseAddr("192.0.2.1"), got[0].V4)
	assert.Equal(t, netip.MustParseAddr("2001:db8::1"), got[0].V6)
	assert.Equal(t, netip.MustParseAddr("192.0.2.2"), got[1].V4)
	assert.False(t, got[1].V6.IsValid())
	for _, c := range got {
		assert.Equal(t, uint16(5222), c.Port)
	}
}

func TestLookupAddrsFallbackOnTimeout(t *testing.T) {
	q := &fakeQuerier{answers: map[string]Result{
		key("_xmpp-client._tcp.example.net", dns.TypeSRV): {Status: StatusTimeout, Err: context.DeadlineExceeded},
		key("example.net", dns.TypeA):                     found(addr("192.0.2.1")),
	}}
	r := NewResolver("xmpp-client", "tcp", q)
	ctx := context.Background()

	got := drain(ctx, r.LookupAddrs(ctx, "example.net", 5222))
	require.Len(t, got, 1)
	assert.Equal(t, netip.MustParseAddr("192.0.2.1"), got[0].V4)
}

func TestLookupAddrsSRV(t *testing.T) {
	// A populated SRV answer overrides the caller's port with each
	// record's own.
	q := &fakeQuerier{answers: map[string]Result{
		key("_xmpp-client._tcp.example.net", dns.TypeSRV): found(srv("xmpp.example.net", 5299, 10, 0)),
		key("xmpp.example.net", dns.TypeA):                found(addr("192.0.2.1")),
	}}
	r := NewResolver("xmpp-client", "tcp", q)
	ctx := context.Background()

	got := drain(ctx, r.LookupAddrs(ctx, "example.net", 5222))
	require.Len(t, got, 1)
	assert.Equal(t, uint16(5299), got[0].Port)
	assert.Equal(t, netip.MustParseAddr("192.0.2.1"), got[0].V4)
}

func TestLookupAddrsNothingResolves(t *testing.T) {
	r := NewResolver("xmpp-client", "tcp", &fakeQuerier{})
	ctx := context.Background()
	assert.Empty(t, drain(ctx, r.LookupAddrs(ctx, "example.net", 5222)))
}

func TestResolveAddrsUnresolvable(t *testing.T) {
	r := NewResolver("xmpp-client", "tcp", &fakeQuerier{})
	_, err := r.ResolveAddrs(context.Background(), "nowhere.example")
	assert.ErrorIs(t, err, ErrUnresolvable)
}

func TestResolveAddrsDegradesOnFailure(t *testing.T) {
	// A failed AAAA query contributes nothing but does not break the A
	// results.
	q := &fakeQuerier{answers: map[string]Result{
		key("example.net", dns.TypeA):    found(addr("192.0.2.1")),
		key("example.net", dns.TypeAAAA): {Status: StatusFailed, Err: fmt.Errorf("SERVFAIL")},
	}}
	r := NewResolver("xmpp-client", "tcp", q)

	pairs, err := r.ResolveAddrs(context.Background(), "example.net")
	require.NoError(t, err)
	require.Len(t, pairs, 1)
	assert.Equal(t, netip.MustParseAddr("192.0.2.1"), pairs[0].V4)
	assert.False(t, pairs[0].V6.IsValid())
}
