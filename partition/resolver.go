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

// Package partition picks the target partition(s) for an operation, either
// by consistent hashing or by explicit key-range intervals.
package partition

import (
	"sort"

	"github.com/uber/docstore/common/types"
	"github.com/uber/docstore/partition/hashring"
)

type (
	// KeyExtractor pulls the partition key out of a document. Implemented
	// once per document shape.
	KeyExtractor interface {
		Extract(doc interface{}) (string, error)
	}

	// KeyExtractorFunc adapts a plain function to KeyExtractor.
	KeyExtractorFunc func(doc interface{}) (string, error)

	// HashPartitionResolver places documents on owners via the consistent
	// hash ring.
	HashPartitionResolver struct {
		ring      *hashring.Ring
		extractor KeyExtractor
	}

	// Interval is one explicit [Low, High) owner assignment for the range
	// resolver.
	Interval struct {
		Low   string
		High  string
		Owner string
	}

	// RangePartitionResolver places documents on owners via explicit
	// key-range intervals.
	RangePartitionResolver struct {
		intervals []Interval
		extractor KeyExtractor
	}

	// Probe is one read-side partition key constraint: an exact key, a
	// range, or everything.
	Probe struct {
		key  *string
		low  *string
		high *string
		all  bool
	}
)

// Extract implements KeyExtractor.
func (f KeyExtractorFunc) Extract(doc interface{}) (string, error) {
	return f(doc)
}

// KeyProbe constrains a read to the partition owning exactly key.
func KeyProbe(key string) Probe {
	return Probe{key: &key}
}

// RangeProbe constrains a read to partitions intersecting [low, high].
// A nil side is unbounded.
func RangeProbe(low, high *string) Probe {
	return Probe{low: low, high: high}
}

// OpenProbe matches every partition.
func OpenProbe() Probe {
	return Probe{all: true}
}

// NewHashPartitionResolver builds a resolver over the given ring.
func NewHashPartitionResolver(ring *hashring.Ring, extractor KeyExtractor) *HashPartitionResolver {
	return &HashPartitionResolver{
		ring:      ring,
		extractor: extractor,
	}
}

// ResolveForCreate returns the single owner for the document's partition key.
func (r *HashPartitionResolver) ResolveForCreate(doc interface{}) (string, error) {
	key, err := r.extractor.Extract(doc)
	if err != nil {
		return "", err
	}
	return r.ring.ResolveString(key), nil
}

// ResolveForRead returns the owner of key, or every owner when key is nil
// (full fan-out).
func (r *HashPartitionResolver) ResolveForRead(key *string) []string {
	if key == nil {
		return r.ring.Owners()
	}
	return []string{r.ring.ResolveString(*key)}
}

// NewRangePartitionResolver builds a resolver over the given intervals. The
// intervals are copied and kept sorted by low bound.
func NewRangePartitionResolver(intervals []Interval, extractor KeyExtractor) *RangePartitionResolver {
	sorted := make([]Interval, len(intervals))
	copy(sorted, intervals)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Low < sorted[j].Low
	})
	return &RangePartitionResolver{
		intervals: sorted,
		extractor: extractor,
	}
}

// ResolveForCreate returns the owner whose interval contains the document's
// partition key, or NoMatchingRangeError when no interval covers it.
func (r *RangePartitionResolver) ResolveForCreate(doc interface{}) (string, error) {
	key, err := r.extractor.Extract(doc)
	if err != nil {
		return "", err
	}
	for _, interval := range r.intervals {
		if interval.contains(key) {
			return interval.Owner, nil
		}
	}
	return "", &types.NoMatchingRangeError{PartitionKey: key}
}

// ResolveForRead returns the union of owners whose intervals intersect any
// of the probes, de-duplicated, ordered by first match.
func (r *RangePartitionResolver) ResolveForRead(probes []Probe) []string {
	var owners []string
	seen := make(map[string]struct{})
	for _, interval := range r.intervals {
		for _, probe := range probes {
			if !interval.intersects(probe) {
				continue
			}
			if _, dup := seen[interval.Owner]; !dup {
				seen[interval.Owner] = struct{}{}
				owners = append(owners, interval.Owner)
			}
			break
		}
	}
	return owners
}

// contains reports whether key falls in the half-open interval [Low, High).
func (i Interval) contains(key string) bool {
	return key >= i.Low && key < i.High
}

// intersects reports whether the probe overlaps the interval. Probe ranges
// are inclusive on both present sides; a nil side is unbounded.
func (i Interval) intersects(p Probe) bool {
	if p.all {
		return true
	}
	if p.key != nil {
		return i.contains(*p.key)
	}
	if p.low != nil && *p.low >= i.High {
		return false
	}
	if p.high != nil && *p.high < i.Low {
		return false
	}
	return true
}
