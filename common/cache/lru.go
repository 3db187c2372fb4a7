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
	"container/list"
	"sync"
	"time"

	"github.com/uber-go/tally"

	"github.com/uber/docstore/common/clock"
	"github.com/uber/docstore/common/log"
	"github.com/uber/docstore/common/metrics"
)

// lru is a concurrent fixed size cache that evicts elements in lru order
type (
	lru struct {
		mut      sync.Mutex
		byAccess *list.List
		byKey    map[interface{}]*list.Element
		maxCount int
		ttl      time.Duration
		// We use this instead of time.Now() in order to make testing easier
		timeSource   clock.TimeSource
		logger       log.Logger
		metricsScope tally.Scope
	}

	entryImpl struct {
		key        interface{}
		createTime time.Time
		value      interface{}
	}
)

// New creates a new cache with the given options
func New(opts *Options) Cache {
	if opts == nil || opts.MaxCount <= 0 {
		panic("MaxCount must be provided for the LRU cache")
	}

	timeSource := opts.TimeSource
	if timeSource == nil {
		timeSource = clock.NewRealTimeSource()
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.NewNoop()
	}
	scope := opts.MetricsScope
	if scope == nil {
		scope = metrics.NoopScope()
	}

	logger.Debugf("LRU cache initialized with maxCount %v ttl %v", opts.MaxCount, opts.TTL)

	return &lru{
		byAccess:     list.New(),
		byKey:        make(map[interface{}]*list.Element, opts.InitialCapacity),
		maxCount:     opts.MaxCount,
		ttl:          opts.TTL,
		timeSource:   timeSource,
		logger:       logger,
		metricsScope: scope,
	}
}

// Get retrieves the value stored under the given key
func (c *lru) Get(key interface{}) interface{} {
	c.mut.Lock()
	defer c.mut.Unlock()

	element := c.byKey[key]
	if element == nil {
		c.metricsScope.Counter(metrics.CacheMissCounter).Inc(1)
		return nil
	}

	entry := element.Value.(*entryImpl)
	if c.isEntryExpired(entry, c.timeSource.Now()) {
		c.deleteInternal(element)
		c.metricsScope.Counter(metrics.CacheMissCounter).Inc(1)
		return nil
	}

	c.byAccess.MoveToFront(element)
	c.metricsScope.Counter(metrics.CacheHitCounter).Inc(1)
	return entry.value
}

// Put puts a new value associated with a given key, returning the existing value (if present)
func (c *lru) Put(key interface{}, value interface{}) interface{} {
	c.mut.Lock()
	defer c.mut.Unlock()

	now := c.timeSource.Now()

	if element := c.byKey[key]; element != nil {
		entry := element.Value.(*entryImpl)
		if c.isEntryExpired(entry, now) {
			c.deleteInternal(element)
		} else {
			existing := entry.value
			entry.value = value
			if c.ttl != 0 {
				entry.createTime = now
			}
			c.byAccess.MoveToFront(element)
			return existing
		}
	}

	entry := &entryImpl{
		key:   key,
		value: value,
	}
	if c.ttl != 0 {
		entry.createTime = now
	}
	c.byKey[key] = c.byAccess.PushFront(entry)

	if len(c.byKey) > c.maxCount {
		c.metricsScope.Counter(metrics.CacheFullCounter).Inc(1)
	}
	for len(c.byKey) > c.maxCount {
		oldest := c.byAccess.Back()
		c.deleteInternal(oldest)
		c.metricsScope.Counter(metrics.CacheEvictCounter).Inc(1)
	}
	c.metricsScope.Gauge(metrics.CacheCountGauge).Update(float64(len(c.byKey)))
	return nil
}

// Delete deletes a key, value pair associated with a key
func (c *lru) Delete(key interface{}) {
	c.mut.Lock()
	defer c.mut.Unlock()

	if element := c.byKey[key]; element != nil {
		c.deleteInternal(element)
	}
}

// Size returns the number of entries currently in the lru, useful if cache is not full
func (c *lru) Size() int {
	c.mut.Lock()
	defer c.mut.Unlock()

	return len(c.byKey)
}

func (c *lru) deleteInternal(element *list.Element) {
	entry := c.byAccess.Remove(element).(*entryImpl)
	delete(c.byKey, entry.key)
}

func (c *lru) isEntryExpired(entry *entryImpl, currentTime time.Time) bool {
	return !entry.createTime.IsZero() && currentTime.After(entry.createTime.Add(c.ttl))
}
