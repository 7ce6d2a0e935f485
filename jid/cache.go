// Copyright 2023 The Gxmpp Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package jid

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// Parse and New are pure, so recent results are memoized. The caches are an
// optimization only; entries are immutable and eviction never changes
// observable behavior.
const (
	parseCacheSize = 1024
	newCacheSize   = 128
)

var (
	parseCache = mustCache(parseCacheSize)
	newCache   = mustCache(newCacheSize)
)

func mustCache(size int) *lru.Cache[string, *JID] {
	c, err := lru.New[string, *JID](size)
	if err != nil {
		panic(err)
	}
	return c
}
