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

package cache

import (
	"time"

	"github.com/uber-go/tally"

	"github.com/uber/docstore/common/clock"
	"github.com/uber/docstore/common/log"
)

type (
	// Cache is a concurrency-safe fixed size cache with lru eviction.
	Cache interface {
		// Get retrieves the value stored under the given key, or nil
		Get(key interface{}) interface{}
		// Put stores the given key/value pair, returning the previous value if present
		Put(key interface{}, value interface{}) interface{}
		// Delete removes the key and its value
		Delete(key interface{})
		// Size returns the number of entries currently cached
		Size() int
	}

	// Options configure a Cache at construction.
	Options struct {
		// MaxCount bounds the number of entries. Required.
		MaxCount int
		// TTL expires entries this long after they were written. Zero means no expiry.
		TTL time.Duration
		// InitialCapacity sizes the backing map.
		InitialCapacity int
		// TimeSource drives TTL expiry. Defaults to the wall clock.
		TimeSource clock.TimeSource
		// Logger for cache events. Defaults to a noop logger.
		Logger log.Logger
		// MetricsScope records hit/miss/evict counters. Defaults to noop.
		MetricsScope tally.Scope
	}
)
