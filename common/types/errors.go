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

import "fmt"

// PartitionUnavailableError indicates every endpoint serving a partition has
// its circuit open. Retryable with backoff.
type PartitionUnavailableError struct {
	PartitionKeyRangeID string
}

func (e *PartitionUnavailableError) Error() string {
	return fmt.Sprintf("all endpoints for partition key range %s are unavailable", e.PartitionKeyRangeID)
}

// WriteForbiddenError indicates a write was about to be routed to a non
// primary write region of a single write account. Not retried by the routing
// layer itself, the discovery retry policy reacts to the backend flavor of it.
type WriteForbiddenError struct {
	Endpoint Endpoint
}

func (e *WriteForbiddenError) Error() string {
	return fmt.Sprintf("writes are forbidden on non-primary region %s (%s)", e.Endpoint.Region, e.Endpoint.Address)
}

// NoMatchingRangeError indicates the range resolver found no interval owning
// the partition key. This is a configuration error and is never retried.
type NoMatchingRangeError struct {
	PartitionKey string
}

func (e *NoMatchingRangeError) Error() string {
	return fmt.Sprintf("no partition range contains key %q", e.PartitionKey)
}

// ExhaustedRetriesError indicates a bounded retry policy gave up. It carries
// the failure trail, the last transport error being the primary cause.
type ExhaustedRetriesError struct {
	Attempts int
	LastErr  error
}

func (e *ExhaustedRetriesError) Error() string {
	return fmt.Sprintf("retries exhausted after %d attempts: %v", e.Attempts, e.LastErr)
}

func (e *ExhaustedRetriesError) Unwrap() error {
	return e.LastErr
}
