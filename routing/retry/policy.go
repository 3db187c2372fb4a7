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

// Package retry holds the routing layer's retry policies. Policies decide
// via explicit results, not raised errors: each one inspects the failed
// attempt, mutates the request's routing state when a retry makes sense,
// and reports whether the caller should go around again.
package retry

import (
	"github.com/uber-go/tally"

	"github.com/uber/docstore/common/dynamicconfig/dynamicproperties"
	"github.com/uber/docstore/common/log"
	"github.com/uber/docstore/common/log/tag"
	"github.com/uber/docstore/common/metrics"
	"github.com/uber/docstore/common/types"
)

type (
	// Policy decides whether a failed attempt should be retried. A true
	// result means the request has been re-armed (routing state adjusted,
	// retry count incremented) and should be resolved and sent again. A
	// non-nil error is terminal and carries the reason retries stopped.
	Policy interface {
		ShouldRetry(req *types.RequestObject, outcome types.Outcome) (bool, error)
	}

	// EndpointMarker is the slice of the location cache the discovery
	// policy needs.
	EndpointMarker interface {
		MarkEndpointUnavailableForRead(ep types.Endpoint)
		MarkEndpointUnavailableForWrite(ep types.Endpoint)
	}

	// ServiceUnavailablePolicy retries 503-class failures in another
	// region. The attempt bound scales with the topology so every readable
	// region gets a chance, with a floor of two attempts.
	ServiceUnavailablePolicy struct {
		readRegionCount func() int
		logger          log.Logger
		scope           tally.Scope
	}

	// EndpointDiscoveryPolicy reacts to stale-routing signals, writes
	// rejected because the request was routed from an outdated topology.
	// It marks the routed endpoint unavailable, drops the sticky routing
	// decision, and retries so resolution picks a fresh target.
	EndpointDiscoveryPolicy struct {
		marker     EndpointMarker
		maxRetries dynamicproperties.IntPropertyFn
		logger     log.Logger
		scope      tally.Scope
	}
)

// NewServiceUnavailablePolicy creates the 503 retry policy. readRegionCount
// is consulted per decision so topology refreshes move the bound.
func NewServiceUnavailablePolicy(readRegionCount func() int, logger log.Logger, scope tally.Scope) *ServiceUnavailablePolicy {
	return &ServiceUnavailablePolicy{
		readRegionCount: readRegionCount,
		logger:          logger,
		scope:           scope,
	}
}

// ShouldRetry re-arms the request toward the next preferred region, up to
// max(2, read regions) attempts.
func (p *ServiceUnavailablePolicy) ShouldRetry(req *types.RequestObject, outcome types.Outcome) (bool, error) {
	if outcome.Kind != types.OutcomeServiceUnavailable {
		return false, nil
	}

	bound := p.readRegionCount()
	if bound < 2 {
		bound = 2
	}
	if req.RetryCount >= bound {
		p.scope.Counter(metrics.RetryExhaustedCounter).Inc(1)
		return false, &types.ExhaustedRetriesError{Attempts: req.RetryCount, LastErr: outcome.Err}
	}

	req.RetryCount++
	req.RouteToFailover = true
	req.ClearRouting()

	p.scope.Counter(metrics.RetryCounter).Inc(1)
	p.logger.Debug("retrying service-unavailable response in another region",
		tag.RequestID(req.ID),
		tag.OperationName(req.OperationType.String()),
		tag.Attempt(req.RetryCount),
	)
	return true, nil
}

// NewEndpointDiscoveryPolicy creates the stale-routing retry policy.
func NewEndpointDiscoveryPolicy(
	marker EndpointMarker,
	maxRetries dynamicproperties.IntPropertyFn,
	logger log.Logger,
	scope tally.Scope,
) *EndpointDiscoveryPolicy {
	return &EndpointDiscoveryPolicy{
		marker:     marker,
		maxRetries: maxRetries,
		logger:     logger,
		scope:      scope,
	}
}

// ShouldRetry marks the endpoint the attempt was routed to as unavailable
// for the request kind and retries with routing cleared. A request that was
// never actually routed has nothing to mark and nothing to gain from a
// retry.
func (p *EndpointDiscoveryPolicy) ShouldRetry(req *types.RequestObject, outcome types.Outcome) (bool, error) {
	if !outcome.IsWriteForbidden() {
		return false, nil
	}
	if req.RoutedEndpoint == nil {
		return false, nil
	}
	if req.RetryCount >= p.maxRetries() {
		p.scope.Counter(metrics.RetryExhaustedCounter).Inc(1)
		return false, &types.ExhaustedRetriesError{Attempts: req.RetryCount, LastErr: outcome.Err}
	}

	routed := *req.RoutedEndpoint
	if req.OperationType.IsWrite() {
		p.marker.MarkEndpointUnavailableForWrite(routed)
	} else {
		p.marker.MarkEndpointUnavailableForRead(routed)
	}
	req.ClearRouting()
	req.RetryCount++

	p.scope.Counter(metrics.RetryCounter).Inc(1)
	p.logger.Info("routed endpoint rejected the request, re-resolving from fresh topology",
		tag.RequestID(req.ID),
		tag.Endpoint(routed.Address),
		tag.Attempt(req.RetryCount),
	)
	return true, nil
}
