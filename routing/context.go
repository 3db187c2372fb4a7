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

// Package routing is the partition and region aware request routing layer.
// A Context ties together the location cache, the per partition health
// tracker, the range metadata provider, and the retry policies. It is owned
// by a database client instance: constructed at client init, started once,
// and closed with the client. No process wide state.
package routing

import (
	gocontext "context"
	"io"
	"sync"
	"time"

	"github.com/uber-go/tally"
	"go.uber.org/atomic"
	"go.uber.org/multierr"

	"github.com/uber/docstore/common/clock"
	"github.com/uber/docstore/common/config"
	"github.com/uber/docstore/common/dynamicconfig/dynamicproperties"
	"github.com/uber/docstore/common/log"
	"github.com/uber/docstore/common/log/tag"
	"github.com/uber/docstore/common/metrics"
	"github.com/uber/docstore/common/types"
	"github.com/uber/docstore/partition/rangecache"
	"github.com/uber/docstore/routing/health"
	"github.com/uber/docstore/routing/locationcache"
	"github.com/uber/docstore/routing/retry"
)

//go:generate mockgen -package=$GOPACKAGE -destination=topology_provider_mock.go github.com/uber/docstore/routing TopologyProvider

// TopologyProvider supplies the account's current region layout. The backend
// call behind it is the provider's concern; the routing layer only schedules
// when it is pulled.
type TopologyProvider interface {
	GetAccountTopology(ctx gocontext.Context) (types.AccountTopology, error)
}

const (
	statusInitialized int32 = iota
	statusStarted
	statusStopped
)

const topologyFetchTimeout = 30 * time.Second

type (
	// Params collects the collaborators a Context needs.
	Params struct {
		Config config.Routing
		// DefaultEndpoint is the account URL the client was constructed
		// with, used until the first topology snapshot arrives.
		DefaultEndpoint  types.Endpoint
		TopologyProvider TopologyProvider
		// RangeFetcher is optional; without it requests must carry an
		// explicit partition key range id to get per partition health.
		RangeFetcher rangecache.RangeFetcher
		TimeSource   clock.TimeSource
		Logger       log.Logger
		MetricsScope tally.Scope
	}

	// Context is the routing entry point used by the CRUD pipeline.
	Context struct {
		cfg       config.Routing
		locations *locationcache.Cache
		tracker   *health.Tracker
		ranges    *rangecache.Provider
		topology  TopologyProvider
		fetcher   rangecache.RangeFetcher
		policies  []retry.Policy

		timeSource clock.TimeSource
		logger     log.Logger
		scope      tally.Scope

		refreshGate clock.TimerGate

		status     atomic.Int32
		shutdownCh chan struct{}
		shutdownWG sync.WaitGroup
	}
)

// New creates a stopped routing context. Call Start to begin topology
// refreshes and Close to tear everything down.
func New(params Params) *Context {
	if params.TimeSource == nil {
		params.TimeSource = clock.NewRealTimeSource()
	}
	if params.Logger == nil {
		params.Logger = log.NewNoop()
	}
	if params.MetricsScope == nil {
		params.MetricsScope = metrics.NoopScope()
	}

	locations := locationcache.New(
		params.Config,
		params.DefaultEndpoint,
		params.TimeSource,
		params.Logger,
		params.MetricsScope.SubScope(metrics.LocationCacheScopeName),
	)
	tracker := health.NewTracker(
		health.NewConfig(params.Config.Health),
		params.TimeSource,
		params.Logger,
		params.MetricsScope.SubScope(metrics.PartitionHealthScopeName),
	)

	var ranges *rangecache.Provider
	if params.RangeFetcher != nil {
		ranges = rangecache.NewProvider(params.RangeFetcher, rangecache.Options{
			TimeSource:   params.TimeSource,
			Logger:       params.Logger,
			MetricsScope: params.MetricsScope.SubScope(metrics.RangeCacheScopeName),
		})
	}

	retryScope := params.MetricsScope.SubScope(metrics.RetryScopeName)
	policies := []retry.Policy{
		// discovery first: a stale-routing rejection must re-resolve before
		// the 503 policy gets a say
		retry.NewEndpointDiscoveryPolicy(
			locations,
			dynamicproperties.GetIntPropertyFn(params.Config.Retry.MaxDiscoveryRetries),
			params.Logger,
			retryScope,
		),
		retry.NewServiceUnavailablePolicy(locations.ReadRegionCount, params.Logger, retryScope),
	}

	return &Context{
		cfg:         params.Config,
		locations:   locations,
		tracker:     tracker,
		ranges:      ranges,
		topology:    params.TopologyProvider,
		fetcher:     params.RangeFetcher,
		policies:    policies,
		timeSource:  params.TimeSource,
		logger:      params.Logger,
		scope:       params.MetricsScope,
		refreshGate: clock.NewTimerGate(params.TimeSource),
		shutdownCh:  make(chan struct{}),
	}
}

// Start pulls the initial topology and launches the background refresher.
// Idempotent.
func (c *Context) Start() {
	if !c.status.CompareAndSwap(statusInitialized, statusStarted) {
		return
	}
	c.refreshTopology()
	c.refreshGate.Update(c.timeSource.Now().Add(c.cfg.TopologyRefreshInterval))
	c.shutdownWG.Add(1)
	go c.refreshLoop()
}

// Stop halts the background refresher and waits for it to exit. Idempotent.
func (c *Context) Stop() {
	if !c.status.CompareAndSwap(statusStarted, statusStopped) {
		return
	}
	close(c.shutdownCh)
	c.shutdownWG.Wait()
	c.refreshGate.Stop()
}

// Close stops the context and closes any collaborator that is closeable.
func (c *Context) Close() error {
	c.Stop()
	var errs error
	if closer, ok := c.topology.(io.Closer); ok {
		errs = multierr.Append(errs, closer.Close())
	}
	if closer, ok := c.fetcher.(io.Closer); ok {
		errs = multierr.Append(errs, closer.Close())
	}
	return errs
}

// Resolve picks the endpoint the request should be sent to. The decision is
// recorded on the request so failures can be reported against the endpoint
// that actually served the attempt.
func (c *Context) Resolve(req *types.RequestObject) (types.Endpoint, error) {
	if err := c.ensurePartitionRange(req); err != nil {
		return types.Endpoint{}, err
	}

	candidates, err := c.locations.ResolveEndpoints(req)
	if err != nil {
		return types.Endpoint{}, err
	}

	ep := candidates[0]
	if req.PartitionKeyRangeID != "" {
		// take the first candidate whose breaker admits the request; checking
		// past the chosen one would admit recovery probes nothing will send
		kind := health.KindForOperation(req.OperationType)
		found := false
		for _, candidate := range candidates {
			if c.tracker.IsRoutable(req.PartitionKeyRangeID, candidate, kind) {
				ep = candidate
				found = true
				break
			}
		}
		if !found {
			return types.Endpoint{}, &types.PartitionUnavailableError{PartitionKeyRangeID: req.PartitionKeyRangeID}
		}
	}
	req.RoutedEndpoint = &ep
	c.logger.Debug("resolved request endpoint",
		tag.RequestID(req.ID),
		tag.OperationName(req.OperationType.String()),
		tag.PartitionKeyRangeID(req.PartitionKeyRangeID),
		tag.Endpoint(ep.Address),
		tag.Region(ep.Region),
	)
	return ep, nil
}

// ensurePartitionRange maps a logical partition key onto its owning range id
// so health tracking applies at partition granularity.
func (c *Context) ensurePartitionRange(req *types.RequestObject) error {
	if c.ranges == nil || req.PartitionKeyRangeID != "" || req.PartitionKey == nil || req.CollectionID == "" {
		return nil
	}
	ctx, cancel := gocontext.WithTimeout(gocontext.Background(), topologyFetchTimeout)
	defer cancel()
	r, err := c.ranges.RangeForKey(ctx, req.CollectionID, *req.PartitionKey)
	if err != nil {
		return err
	}
	req.PartitionKeyRangeID = r.ID
	return nil
}

// ReportOutcome feeds an attempt's classified result back into health
// tracking. Transport level failures only ever touch partition health;
// region availability moves on explicit discovery signals, which the retry
// policies raise.
func (c *Context) ReportOutcome(req *types.RequestObject, outcome types.Outcome) {
	if req.RoutedEndpoint == nil {
		return
	}
	routed := *req.RoutedEndpoint

	if req.PartitionKeyRangeID != "" {
		kind := health.KindForOperation(req.OperationType)
		switch outcome.Kind {
		case types.OutcomeSuccess:
			c.tracker.ReportSuccess(req.PartitionKeyRangeID, routed, kind)
		case types.OutcomeTransportError, types.OutcomeServiceUnavailable:
			c.tracker.ReportFailure(req.PartitionKeyRangeID, routed, kind)
		}
	}

	if !outcome.IsSuccess() && c.locations.ShouldRefreshEndpoints() {
		// a marking window has lapsed, pull fresh topology soon
		c.refreshGate.Update(c.timeSource.Now())
	}
}

// ShouldRetry runs the retry policies over a failed attempt. When a policy
// accepts, the request has been re-armed and the returned endpoint is the
// next target. A non-nil error is terminal; (false, nil) means no policy
// applies and the caller should surface the original failure.
func (c *Context) ShouldRetry(req *types.RequestObject, outcome types.Outcome) (bool, types.Endpoint, error) {
	for _, policy := range c.policies {
		shouldRetry, err := policy.ShouldRetry(req, outcome)
		if err != nil {
			return false, types.Endpoint{}, err
		}
		if !shouldRetry {
			continue
		}
		ep, err := c.Resolve(req)
		if err != nil {
			return false, types.Endpoint{}, err
		}
		return true, ep, nil
	}
	return false, types.Endpoint{}, nil
}

// InvalidateRanges drops cached range metadata for a collection. Called when
// the backend reports a gone range after a split or merge.
func (c *Context) InvalidateRanges(collectionID string) {
	if c.ranges != nil {
		c.ranges.Invalidate(collectionID)
	}
}

// UnhealthyPartitionCount reports how many (partition, endpoint) pairs are
// currently excluded from routing for the given operation class.
func (c *Context) UnhealthyPartitionCount(op types.OperationType) int {
	return c.tracker.UnhealthyCount(health.KindForOperation(op))
}

// PartitionHealth returns the breaker record for one (partition, endpoint)
// pair, and whether the pair has ever been attempted.
func (c *Context) PartitionHealth(rangeID string, ep types.Endpoint) (health.HealthInfo, bool) {
	return c.tracker.Snapshot(rangeID, ep)
}

// IsGlobalEndpoint reports whether the configured default endpoint is the
// account global endpoint rather than a region specific one.
func (c *Context) IsGlobalEndpoint(ep types.Endpoint) bool {
	return c.locations.IsGlobalEndpoint(ep)
}

func (c *Context) refreshLoop() {
	defer c.shutdownWG.Done()
	for {
		select {
		case <-c.shutdownCh:
			return
		case <-c.refreshGate.Chan():
			c.refreshTopology()
			c.refreshGate.Update(c.timeSource.Now().Add(c.cfg.TopologyRefreshInterval))
		}
	}
}

func (c *Context) refreshTopology() {
	ctx, cancel := gocontext.WithTimeout(gocontext.Background(), topologyFetchTimeout)
	defer cancel()

	topology, err := c.topology.GetAccountTopology(ctx)
	if err != nil {
		c.scope.Counter(metrics.TopologyRefreshFailedCounter).Inc(1)
		c.logger.Warn("topology refresh failed, keeping the previous snapshot", tag.Error(err))
		return
	}
	c.locations.Update(topology)
	c.tracker.SetMultiWrite(topology.MultiWriteEnabled)
	c.scope.Counter(metrics.TopologyRefreshCounter).Inc(1)
}
