// The MIT License (MIT)

// Copyright (c) 2017-2020 Uber Technologies Inc.

// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

// Package rangecache caches partition key range metadata per collection.
// Ranges are fetched through a RangeFetcher on cache miss and invalidated
// when the backend signals a stale range (splits and merges).
package rangecache

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/uber-go/tally"

	"github.com/uber/docstore/common/cache"
	"github.com/uber/docstore/common/clock"
	"github.com/uber/docstore/common/log"
	"github.com/uber/docstore/common/log/tag"
	"github.com/uber/docstore/common/metrics"
	"github.com/uber/docstore/common/types"
	"github.com/uber/docstore/partition/murmur"
)

const (
	// MinInclusiveKey is the low bound of the full partition key hash space.
	MinInclusiveKey = ""
	// MaxExclusiveKey is the high bound of the full hash space. Every
	// effective key is an 8 digit hex string, so "G" sorts above all of them.
	MaxExclusiveKey = "G"

	defaultMaxCollections = 1000
	defaultTTL            = 5 * time.Minute
)

type (
	// RangeFetcher loads the current partition key ranges of a collection
	// from the backend.
	RangeFetcher interface {
		FetchPartitionKeyRanges(ctx context.Context, collectionID string) ([]types.PartitionKeyRange, error)
	}

	// Provider is the cached view over a RangeFetcher.
	Provider struct {
		fetcher RangeFetcher
		cache   cache.Cache
		logger  log.Logger
		scope   tally.Scope
	}

	// Options tunes the provider's cache.
	Options struct {
		// MaxCollections bounds the number of cached collections.
		MaxCollections int
		// TTL expires cached range sets so splits are eventually observed
		// even without an explicit invalidation signal.
		TTL time.Duration
		// TimeSource drives TTL expiry. Real time when nil.
		TimeSource clock.TimeSource
		Logger     log.Logger
		// MetricsScope receives cache hit/miss counters.
		MetricsScope tally.Scope
	}
)

// EffectiveKey renders a partition key's hash as a fixed width uppercase hex
// string so lexicographic order over effective keys matches numeric order
// over the hash space [0, 2^32).
func EffectiveKey(partitionKey string) string {
	return fmt.Sprintf("%08X", murmur.HashString(partitionKey))
}

// NewProvider creates a range metadata provider over the given fetcher.
func NewProvider(fetcher RangeFetcher, opts Options) *Provider {
	if opts.MaxCollections <= 0 {
		opts.MaxCollections = defaultMaxCollections
	}
	if opts.TTL <= 0 {
		opts.TTL = defaultTTL
	}
	if opts.TimeSource == nil {
		opts.TimeSource = clock.NewRealTimeSource()
	}
	if opts.Logger == nil {
		opts.Logger = log.NewNoop()
	}
	if opts.MetricsScope == nil {
		opts.MetricsScope = metrics.NoopScope()
	}
	return &Provider{
		fetcher: fetcher,
		logger:  opts.Logger,
		scope:   opts.MetricsScope,
		cache: cache.New(&cache.Options{
			MaxCount:     opts.MaxCollections,
			TTL:          opts.TTL,
			TimeSource:   opts.TimeSource,
			Logger:       opts.Logger,
			MetricsScope: opts.MetricsScope,
		}),
	}
}

// Ranges returns the collection's partition key ranges, fetching through on
// a cache miss. The returned slice is shared and must not be mutated.
//
// Concurrent misses for the same collection may fetch more than once; the
// last writer wins, which is harmless because every fetch returns a full
// validated snapshot.
func (p *Provider) Ranges(ctx context.Context, collectionID string) ([]types.PartitionKeyRange, error) {
	if cached := p.cache.Get(collectionID); cached != nil {
		return cached.([]types.PartitionKeyRange), nil
	}

	ranges, err := p.fetcher.FetchPartitionKeyRanges(ctx, collectionID)
	if err != nil {
		return nil, fmt.Errorf("fetch partition key ranges for collection %q: %w", collectionID, err)
	}
	if err := validateRanges(ranges); err != nil {
		return nil, fmt.Errorf("collection %q: %w", collectionID, err)
	}

	sorted := make([]types.PartitionKeyRange, len(ranges))
	copy(sorted, ranges)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].MinInclusive < sorted[j].MinInclusive
	})

	p.cache.Put(collectionID, sorted)
	p.logger.Debugf("cached %d partition key ranges for collection %s", len(sorted), collectionID)
	return sorted, nil
}

// RangeForKey returns the range owning the given logical partition key.
func (p *Provider) RangeForKey(ctx context.Context, collectionID string, partitionKey string) (types.PartitionKeyRange, error) {
	return p.RangeForEffectiveKey(ctx, collectionID, EffectiveKey(partitionKey))
}

// RangeForEffectiveKey returns the range containing an already hashed key.
func (p *Provider) RangeForEffectiveKey(ctx context.Context, collectionID string, effectiveKey string) (types.PartitionKeyRange, error) {
	ranges, err := p.Ranges(ctx, collectionID)
	if err != nil {
		return types.PartitionKeyRange{}, err
	}
	// first range whose upper bound is above the key; validated coverage
	// guarantees it contains the key
	i := sort.Search(len(ranges), func(i int) bool {
		return ranges[i].MaxExclusive > effectiveKey
	})
	if i == len(ranges) || !ranges[i].Contains(effectiveKey) {
		return types.PartitionKeyRange{}, &types.NoMatchingRangeError{PartitionKey: effectiveKey}
	}
	return ranges[i], nil
}

// RangeByID returns the collection's range with the given id.
func (p *Provider) RangeByID(ctx context.Context, collectionID string, rangeID string) (types.PartitionKeyRange, bool, error) {
	ranges, err := p.Ranges(ctx, collectionID)
	if err != nil {
		return types.PartitionKeyRange{}, false, err
	}
	for _, r := range ranges {
		if r.ID == rangeID {
			return r, true, nil
		}
	}
	return types.PartitionKeyRange{}, false, nil
}

// Invalidate drops the collection's cached ranges. Called when the backend
// reports a gone range after a split or merge; the next lookup refetches.
func (p *Provider) Invalidate(collectionID string) {
	p.cache.Delete(collectionID)
	p.scope.Counter(metrics.CacheEvictCounter).Inc(1)
	p.logger.Info("invalidated partition key range cache", tag.CollectionID(collectionID))
}

// validateRanges checks that the set is non-overlapping, contiguous, and
// covers the full hash space.
func validateRanges(ranges []types.PartitionKeyRange) error {
	if len(ranges) == 0 {
		return fmt.Errorf("empty partition key range set")
	}
	sorted := make([]types.PartitionKeyRange, len(ranges))
	copy(sorted, ranges)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].MinInclusive < sorted[j].MinInclusive
	})
	if sorted[0].MinInclusive != MinInclusiveKey {
		return fmt.Errorf("range set does not start at the hash space minimum, starts at %q", sorted[0].MinInclusive)
	}
	for i, r := range sorted {
		if r.MinInclusive >= r.MaxExclusive {
			return fmt.Errorf("range %q is empty or inverted: [%q, %q)", r.ID, r.MinInclusive, r.MaxExclusive)
		}
		if i > 0 && sorted[i-1].MaxExclusive != r.MinInclusive {
			return fmt.Errorf("gap or overlap between ranges %q and %q: %q != %q",
				sorted[i-1].ID, r.ID, sorted[i-1].MaxExclusive, r.MinInclusive)
		}
	}
	if last := sorted[len(sorted)-1]; last.MaxExclusive != MaxExclusiveKey {
		return fmt.Errorf("range set does not cover up to the hash space maximum, ends at %q", last.MaxExclusive)
	}
	return nil
}
