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

package metrics

import "github.com/uber-go/tally"

// Sub-scope names used by the routing layer.
const (
	PartitionHealthScopeName = "partition_health"
	LocationCacheScopeName   = "location_cache"
	RangeCacheScopeName      = "range_cache"
	RetryScopeName           = "retry"
)

// Counter names.
const (
	PartitionUnhealthyCounter        = "partition_unhealthy"
	PartitionRecoveredCounter        = "partition_recovered"
	PartitionProbeAdmittedCounter    = "partition_probe_admitted"
	PartitionProbeFailedCounter      = "partition_probe_failed"
	EndpointMarkedUnavailableCounter = "endpoint_marked_unavailable"
	EndpointFallbackCounter          = "endpoint_fallback"
	CacheHitCounter                  = "cache_hit"
	CacheMissCounter                 = "cache_miss"
	CacheEvictCounter                = "cache_evict"
	CacheFullCounter                 = "cache_full"
	RetryCounter                     = "retry"
	RetryExhaustedCounter            = "retry_exhausted"
	TopologyRefreshCounter           = "topology_refresh"
	TopologyRefreshFailedCounter     = "topology_refresh_failed"
)

// Gauge names.
const (
	UnhealthyPartitionGauge = "unhealthy_partitions"
	CacheCountGauge         = "cache_count"
)

// NoopScope returns a scope that records nothing.
func NoopScope() tally.Scope {
	return tally.NoopScope
}
