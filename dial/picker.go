// Copyright 2023 The Gxmpp Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package dial

import (
	"context"
	"math/rand"
	"sort"
)

// randSource is the subset of *rand.Rand used for RFC 2782 selection.
type randSource interface {
	Intn(n int) int
}

// globalRand defers to the shared math/rand source.
type globalRand struct{}

func (globalRand) Intn(n int) int { return rand.Intn(n) }

// priorityGroup holds the not-yet-consumed SRV entries of one priority and
// the cached sum of their weights.
type priorityGroup struct {
	entries     []Record
	totalWeight int
}

// picker yields candidate endpoints from an SRV answer set per RFC 2782:
// priority groups are consumed in ascending order, and entries within a
// group are drawn by weighted random selection (uniformly once only
// zero-weight entries remain). Targets that resolve to no addresses are
// skipped.
type picker struct {
	res    *Resolver
	groups []priorityGroup
	cur    priorityGroup
	rnd    randSource
}

func newPicker(res *Resolver, records []Record, rnd randSource) *picker {
	if rnd == nil {
		rnd = globalRand{}
	}
	sorted := make([]Record, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Priority != sorted[j].Priority {
			return sorted[i].Priority < sorted[j].Priority
		}
		return sorted[i].Weight < sorted[j].Weight
	})

	var groups []priorityGroup
	for _, rec := range sorted {
		if n := len(groups); n == 0 || groups[n-1].entries[0].Priority != rec.Priority {
			groups = append(groups, priorityGroup{})
		}
		g := &groups[len(groups)-1]
		g.entries = append(g.entries, rec)
		g.totalWeight += int(rec.Weight)
	}
	return &picker{res: res, groups: groups, rnd: rnd}
}

// Next implements Iter. Selected entries are removed from their group and
// the group's weight total decremented, so repeated draws walk the whole
// answer set exactly once.
func (p *picker) Next(ctx context.Context) (Candidate, bool) {
	for {
		if len(p.cur.entries) == 0 {
			if len(p.groups) == 0 {
				return Candidate{}, false
			}
			p.cur = p.groups[0]
			p.groups = p.groups[1:]
		}

		rec := p.take(p.pick())
		pairs, err := p.res.ResolveAddrs(ctx, rec.Target)
		if err != nil || len(pairs) == 0 {
			// This target contributes nothing; move on to the next entry.
			continue
		}
		return Candidate{V4: pairs[0].V4, V6: pairs[0].V6, Port: rec.Port}, true
	}
}

// pick chooses an index into the current group: a weighted draw while any
// weight remains, a uniform draw once only zero-weight entries are left.
func (p *picker) pick() int {
	if p.cur.totalWeight > 0 {
		r := p.rnd.Intn(p.cur.totalWeight) + 1
		sum := 0
		for i, e := range p.cur.entries {
			sum += int(e.Weight)
			if sum >= r {
				return i
			}
		}
	}
	return p.rnd.Intn(len(p.cur.entries))
}

func (p *picker) take(i int) Record {
	rec := p.cur.entries[i]
	p.cur.entries = append(p.cur.entries[:i], p.cur.entries[i+1:]...)
	p.cur.totalWeight -= int(rec.Weight)
	return rec
}
