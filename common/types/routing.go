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

package types

import (
	"github.com/google/uuid"
)

type (
	// Endpoint is a physical region endpoint: an opaque network address plus
	// the human readable region it serves. Immutable once observed from topology.
	Endpoint struct {
		Address string
		Region  string
	}

	// RegionalEndpointPair holds the two addresses a region may be reached
	// through: the region specific URL and the account global URL. Which of
	// the two a request actually uses is a location cache policy decision.
	RegionalEndpointPair struct {
		RegionalEndpoint Endpoint
		GlobalEndpoint   Endpoint
	}

	// AccountTopology is a snapshot of the account's region layout as
	// reported by the backend. Ordering of the location slices is the
	// account's own failover priority order.
	AccountTopology struct {
		WritableLocations []RegionalEndpointPair
		ReadableLocations []RegionalEndpointPair
		MultiWriteEnabled bool
	}

	// PartitionKeyRange is a half-open interval [MinInclusive, MaxExclusive)
	// over the partition key hash space, owned by one physical partition.
	// Ranges of a collection are contiguous, non overlapping and cover the
	// full hash space.
	PartitionKeyRange struct {
		ID           string
		MinInclusive string
		MaxExclusive string
	}

	// RequestObject carries one logical operation through the routing layer,
	// accumulating routing decisions along the way. It is created per
	// operation, mutated in place, and discarded when the operation completes.
	RequestObject struct {
		ID                  string
		ResourceType        ResourceType
		OperationType       OperationType
		CollectionID        string
		PartitionKey        *string
		PartitionKeyRangeID string
		// ExcludedEndpoints are endpoints the caller does not want this
		// request routed to, regardless of health.
		ExcludedEndpoints []Endpoint
		// RoutedEndpoint, when set, short-circuits resolution entirely.
		// It supports resumed and sticky routing, and records where the
		// request was last sent for failure reporting.
		RoutedEndpoint *Endpoint
		// RetryCount is the number of failed attempts so far. Retry policies
		// use it both as an attempt bound and as a preferred-location cursor.
		RetryCount int
		// RouteToFailover is set by the service-unavailable retry policy to
		// steer resolution past the first preferred region.
		RouteToFailover bool
	}

	// Outcome is the transport layer's classified result of one attempt,
	// reported back into the routing layer for health accounting.
	Outcome struct {
		Kind    OutcomeKind
		Subcode int
		Err     error
	}
)

// OutcomeKind enumerates the transport result classes the routing layer reacts to.
type OutcomeKind int

const (
	// OutcomeSuccess is a successful attempt.
	OutcomeSuccess OutcomeKind = iota
	// OutcomeTransportError is a connection level failure. It feeds partition
	// health counters but never region level availability.
	OutcomeTransportError
	// OutcomeServiceUnavailable is a 503-class response.
	OutcomeServiceUnavailable
	// OutcomeForbidden is a forbidden response carrying a subcode.
	OutcomeForbidden
)

// ForbiddenSubcodeWriteForbidden marks a write routed to a non primary write
// region of a single write account.
const ForbiddenSubcodeWriteForbidden = 3

// NewRequestObject creates a request carrier for one logical operation.
func NewRequestObject(resourceType ResourceType, operationType OperationType) *RequestObject {
	return &RequestObject{
		ID:            uuid.New().String(),
		ResourceType:  resourceType,
		OperationType: operationType,
	}
}

// IsEmpty reports whether the endpoint is the zero value.
func (e Endpoint) IsEmpty() bool {
	return e.Address == "" && e.Region == ""
}

// Endpoints returns the pair's addresses in default preference order,
// regional address first.
func (p RegionalEndpointPair) Endpoints() []Endpoint {
	endpoints := make([]Endpoint, 0, 2)
	if !p.RegionalEndpoint.IsEmpty() {
		endpoints = append(endpoints, p.RegionalEndpoint)
	}
	if !p.GlobalEndpoint.IsEmpty() {
		endpoints = append(endpoints, p.GlobalEndpoint)
	}
	return endpoints
}

// Contains reports whether key falls inside the half-open range.
func (r PartitionKeyRange) Contains(key string) bool {
	return key >= r.MinInclusive && key < r.MaxExclusive
}

// IsExcluded reports whether ep is on the request's exclusion list.
func (r *RequestObject) IsExcluded(ep Endpoint) bool {
	for _, excluded := range r.ExcludedEndpoints {
		if excluded == ep {
			return true
		}
	}
	return false
}

// ClearRouting drops the sticky routing decision so the next resolve
// recomputes the target from topology.
func (r *RequestObject) ClearRouting() {
	r.RoutedEndpoint = nil
}

// IsSuccess reports whether the attempt succeeded.
func (o Outcome) IsSuccess() bool {
	return o.Kind == OutcomeSuccess
}

// IsWriteForbidden reports whether the outcome is a forbidden response with
// the write forbidden subcode.
func (o Outcome) IsWriteForbidden() bool {
	return o.Kind == OutcomeForbidden && o.Subcode == ForbiddenSubcodeWriteForbidden
}
