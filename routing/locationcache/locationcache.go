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

// Package locationcache maintains the client side view of the account's
// region topology and per endpoint availability. It orders candidate
// endpoints for each request by preferred region, filters endpoints recently
// marked unavailable, and guarantees the candidate list is never empty.
package locationcache

import (
	"sync"
	"time"

	"github.com/uber-go/tally"

	"github.com/uber/docstore/common/clock"
	"github.com/uber/docstore/common/config"
	"github.com/uber/docstore/common/log"
	"github.com/uber/docstore/common/log/tag"
	"github.com/uber/docstore/common/metrics"
	"github.com/uber/docstore/common/types"
)

type (
	// Cache is the location cache. Reads take the shared lock; topology
	// updates and unavailability markings take the exclusive lock.
	Cache struct {
		mu sync.RWMutex

		topology        types.AccountTopology
		defaultEndpoint types.Endpoint

		preferredRegions []string
		preference       string

		unavailable map[markKey]*markInfo

		initialDuration time.Duration
		maxDuration     time.Duration

		timeSource clock.TimeSource
		logger     log.Logger
		scope      tally.Scope
	}

	markKey struct {
		address string
		isWrite bool
	}

	markInfo struct {
		since   time.Time
		backoff time.Duration
	}
)

// New creates a location cache seeded with an empty topology. The default
// endpoint is the account URL the client was constructed with; it is the
// candidate of last resort until the first topology update arrives.
func New(
	cfg config.Routing,
	defaultEndpoint types.Endpoint,
	timeSource clock.TimeSource,
	logger log.Logger,
	scope tally.Scope,
) *Cache {
	return &Cache{
		defaultEndpoint:  defaultEndpoint,
		preferredRegions: cfg.PreferredRegions,
		preference:       cfg.EndpointPreference,
		unavailable:      make(map[markKey]*markInfo),
		initialDuration:  cfg.UnavailableEndpointDuration,
		maxDuration:      cfg.UnavailableEndpointMaxDuration,
		timeSource:       timeSource,
		logger:           logger,
		scope:            scope,
	}
}

// Update replaces the cached topology with a fresh snapshot. Unavailability
// markings survive the update; they expire on their own schedule.
func (c *Cache) Update(topology types.AccountTopology) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.topology = topology
	c.logger.Debugf("topology updated: %d writable, %d readable, multiWrite=%v",
		len(topology.WritableLocations), len(topology.ReadableLocations), topology.MultiWriteEnabled)
}

// MultiWriteEnabled reports whether the current topology allows writes in
// every region.
func (c *Cache) MultiWriteEnabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.topology.MultiWriteEnabled
}

// ReadRegionCount returns the number of readable regions in the current
// topology, at least 1.
func (c *Cache) ReadRegionCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if n := len(c.topology.ReadableLocations); n > 0 {
		return n
	}
	return 1
}

// IsGlobalEndpoint reports whether the given endpoint is the account global
// endpoint rather than one of the region specific ones. A client constructed
// against the global endpoint fans out across regions on failover.
func (c *Cache) IsGlobalEndpoint(ep types.Endpoint) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, pair := range c.topology.WritableLocations {
		if pair.RegionalEndpoint.Address == ep.Address {
			return false
		}
	}
	for _, pair := range c.topology.ReadableLocations {
		if pair.RegionalEndpoint.Address == ep.Address {
			return false
		}
	}
	return true
}

// ResolveEndpoints returns the ordered candidate endpoints for the request.
// The list is never empty: when every candidate is marked unavailable the
// least recently marked one is returned anyway, since routing somewhere
// stale beats routing nowhere.
//
// Writes on a single write account are only ever routed to the primary
// region; a write that cannot reach the primary fails fast with
// WriteForbiddenError instead of being sent somewhere that will reject it.
func (c *Cache) ResolveEndpoints(req *types.RequestObject) ([]types.Endpoint, error) {
	if req.RoutedEndpoint != nil {
		return []types.Endpoint{*req.RoutedEndpoint}, nil
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	isWrite := req.OperationType.IsWrite()

	pairs := c.topology.ReadableLocations
	if isWrite {
		pairs = c.topology.WritableLocations
	}
	if len(pairs) == 0 {
		// no topology yet, route to the construction time endpoint
		return []types.Endpoint{c.defaultEndpoint}, nil
	}

	if isWrite && !c.topology.MultiWriteEnabled {
		return c.resolveSingleWriteLocked(req, pairs[0])
	}

	ordered := c.orderByPreferenceLocked(pairs)
	if req.RouteToFailover && len(ordered) > 1 {
		// steer past the region that just failed; the retry count acts as a
		// cursor so successive retries walk successive regions
		shift := req.RetryCount % len(ordered)
		if shift == 0 {
			shift = 1
		}
		ordered = append(append([]types.RegionalEndpointPair{}, ordered[shift:]...), ordered[:shift]...)
	}

	candidates := c.flattenLocked(ordered)
	candidates = dropExcluded(candidates, req)
	return c.filterUnavailableLocked(candidates, isWrite), nil
}

// resolveSingleWriteLocked handles writes on single write accounts: the
// primary pair is the only legal target.
func (c *Cache) resolveSingleWriteLocked(req *types.RequestObject, primary types.RegionalEndpointPair) ([]types.Endpoint, error) {
	candidates := c.pairEndpointsLocked(primary)
	remaining := dropExcluded(candidates, req)
	if len(remaining) == 0 || req.RouteToFailover {
		ep := c.defaultEndpoint
		if len(candidates) > 0 {
			ep = candidates[0]
		}
		return nil, &types.WriteForbiddenError{Endpoint: ep}
	}
	return c.filterUnavailableLocked(remaining, true), nil
}

// orderByPreferenceLocked reorders topology pairs so regions named in the
// preferred list come first, in preference order, followed by the rest in
// topology order.
func (c *Cache) orderByPreferenceLocked(pairs []types.RegionalEndpointPair) []types.RegionalEndpointPair {
	if len(c.preferredRegions) == 0 {
		return pairs
	}
	ordered := make([]types.RegionalEndpointPair, 0, len(pairs))
	taken := make(map[int]bool, len(pairs))
	for _, region := range c.preferredRegions {
		for i, pair := range pairs {
			if !taken[i] && pair.RegionalEndpoint.Region == region {
				ordered = append(ordered, pair)
				taken[i] = true
			}
		}
	}
	for i, pair := range pairs {
		if !taken[i] {
			ordered = append(ordered, pair)
		}
	}
	return ordered
}

// pairEndpointsLocked returns a pair's addresses in configured preference order.
func (c *Cache) pairEndpointsLocked(pair types.RegionalEndpointPair) []types.Endpoint {
	endpoints := pair.Endpoints()
	if c.preference == config.EndpointPreferenceGlobal && len(endpoints) == 2 {
		endpoints[0], endpoints[1] = endpoints[1], endpoints[0]
	}
	return endpoints
}

func (c *Cache) flattenLocked(pairs []types.RegionalEndpointPair) []types.Endpoint {
	candidates := make([]types.Endpoint, 0, 2*len(pairs))
	seen := make(map[string]bool, 2*len(pairs))
	for _, pair := range pairs {
		for _, ep := range c.pairEndpointsLocked(pair) {
			if !seen[ep.Address] {
				seen[ep.Address] = true
				candidates = append(candidates, ep)
			}
		}
	}
	return candidates
}

func dropExcluded(candidates []types.Endpoint, req *types.RequestObject) []types.Endpoint {
	if len(req.ExcludedEndpoints) == 0 {
		return candidates
	}
	remaining := candidates[:0:0]
	for _, ep := range candidates {
		if !req.IsExcluded(ep) {
			remaining = append(remaining, ep)
		}
	}
	if len(remaining) == 0 {
		// an exclusion list covering everything is a caller bug; routing
		// somewhere is still better than routing nowhere
		return candidates
	}
	return remaining
}

// filterUnavailableLocked drops endpoints currently marked unavailable for
// the request kind, falling back to the least recently marked endpoint when
// the filter would empty the list.
func (c *Cache) filterUnavailableLocked(candidates []types.Endpoint, isWrite bool) []types.Endpoint {
	if len(candidates) == 0 {
		return []types.Endpoint{c.defaultEndpoint}
	}
	now := c.timeSource.Now()
	available := candidates[:0:0]
	for _, ep := range candidates {
		if c.isAvailableLocked(ep.Address, isWrite, now) {
			available = append(available, ep)
		}
	}
	if len(available) > 0 {
		return available
	}

	c.scope.Counter(metrics.EndpointFallbackCounter).Inc(1)
	leastStale := candidates[0]
	var oldest time.Time
	for _, ep := range candidates {
		info, ok := c.unavailable[markKey{address: ep.Address, isWrite: isWrite}]
		if !ok {
			continue
		}
		if oldest.IsZero() || info.since.Before(oldest) {
			oldest = info.since
			leastStale = ep
		}
	}
	return []types.Endpoint{leastStale}
}

func (c *Cache) isAvailableLocked(address string, isWrite bool, now time.Time) bool {
	info, ok := c.unavailable[markKey{address: address, isWrite: isWrite}]
	if !ok {
		return true
	}
	// expired markings lift lazily; the entry stays behind so a repeated
	// marking keeps doubling from where it left off
	return now.Sub(info.since) >= info.backoff
}

// MarkEndpointUnavailableForRead takes the endpoint out of read routing for
// the current backoff window.
func (c *Cache) MarkEndpointUnavailableForRead(ep types.Endpoint) {
	c.markUnavailable(ep, false)
}

// MarkEndpointUnavailableForWrite takes the endpoint out of write routing
// for the current backoff window.
func (c *Cache) MarkEndpointUnavailableForWrite(ep types.Endpoint) {
	c.markUnavailable(ep, true)
}

func (c *Cache) markUnavailable(ep types.Endpoint, isWrite bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.timeSource.Now()
	key := markKey{address: ep.Address, isWrite: isWrite}
	info, ok := c.unavailable[key]
	if ok {
		info.since = now
		if info.backoff < c.maxDuration {
			info.backoff = minDuration(info.backoff*2, c.maxDuration)
		}
	} else {
		info = &markInfo{since: now, backoff: c.initialDuration}
		c.unavailable[key] = info
	}

	c.scope.Counter(metrics.EndpointMarkedUnavailableCounter).Inc(1)
	c.logger.Info("endpoint marked unavailable",
		tag.Endpoint(ep.Address),
		tag.Region(ep.Region),
		tag.IsWrite(isWrite),
		tag.BackoffDuration(info.backoff),
	)
}

// ShouldRefreshEndpoints reports whether a topology refresh is due because
// at least one unavailability marking has aged past its backoff window.
func (c *Cache) ShouldRefreshEndpoints() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	now := c.timeSource.Now()
	for _, info := range c.unavailable {
		if now.Sub(info.since) >= info.backoff {
			return true
		}
	}
	return false
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
