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

package rangecache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uber/docstore/common/clock"
	"github.com/uber/docstore/common/types"
)

type stubFetcher struct {
	ranges  []types.PartitionKeyRange
	err     error
	fetches int
}

func (f *stubFetcher) FetchPartitionKeyRanges(ctx context.Context, collectionID string) ([]types.PartitionKeyRange, error) {
	f.fetches++
	return f.ranges, f.err
}

func fullCoverageRanges() []types.PartitionKeyRange {
	return []types.PartitionKeyRange{
		{ID: "0", MinInclusive: MinInclusiveKey, MaxExclusive: "55555555"},
		{ID: "1", MinInclusive: "55555555", MaxExclusive: "AAAAAAAA"},
		{ID: "2", MinInclusive: "AAAAAAAA", MaxExclusive: MaxExclusiveKey},
	}
}

func TestRangesFetchThroughAndCache(t *testing.T) {
	fetcher := &stubFetcher{ranges: fullCoverageRanges()}
	provider := NewProvider(fetcher, Options{})

	ranges, err := provider.Ranges(context.Background(), "coll-1")
	require.NoError(t, err)
	require.Len(t, ranges, 3)
	assert.Equal(t, "0", ranges[0].ID)

	_, err = provider.Ranges(context.Background(), "coll-1")
	require.NoError(t, err)
	assert.Equal(t, 1, fetcher.fetches, "second lookup must come from the cache")
}

func TestRangesSortedOnInsert(t *testing.T) {
	shuffled := []types.PartitionKeyRange{
		fullCoverageRanges()[2],
		fullCoverageRanges()[0],
		fullCoverageRanges()[1],
	}
	provider := NewProvider(&stubFetcher{ranges: shuffled}, Options{})

	ranges, err := provider.Ranges(context.Background(), "coll-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"0", "1", "2"}, []string{ranges[0].ID, ranges[1].ID, ranges[2].ID})
}

func TestFetchErrorPropagates(t *testing.T) {
	fetchErr := errors.New("backend down")
	provider := NewProvider(&stubFetcher{err: fetchErr}, Options{})

	_, err := provider.Ranges(context.Background(), "coll-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, fetchErr)
}

func TestValidateRejectsBrokenSets(t *testing.T) {
	tests := []struct {
		name   string
		ranges []types.PartitionKeyRange
	}{
		{
			name:   "empty set",
			ranges: nil,
		},
		{
			name: "does not start at minimum",
			ranges: []types.PartitionKeyRange{
				{ID: "0", MinInclusive: "11111111", MaxExclusive: MaxExclusiveKey},
			},
		},
		{
			name: "does not cover the maximum",
			ranges: []types.PartitionKeyRange{
				{ID: "0", MinInclusive: MinInclusiveKey, MaxExclusive: "EEEEEEEE"},
			},
		},
		{
			name: "gap between ranges",
			ranges: []types.PartitionKeyRange{
				{ID: "0", MinInclusive: MinInclusiveKey, MaxExclusive: "55555555"},
				{ID: "1", MinInclusive: "66666666", MaxExclusive: MaxExclusiveKey},
			},
		},
		{
			name: "overlapping ranges",
			ranges: []types.PartitionKeyRange{
				{ID: "0", MinInclusive: MinInclusiveKey, MaxExclusive: "66666666"},
				{ID: "1", MinInclusive: "55555555", MaxExclusive: MaxExclusiveKey},
			},
		},
		{
			name: "inverted range",
			ranges: []types.PartitionKeyRange{
				{ID: "0", MinInclusive: "55555555", MaxExclusive: MinInclusiveKey},
				{ID: "1", MinInclusive: MinInclusiveKey, MaxExclusive: MaxExclusiveKey},
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			provider := NewProvider(&stubFetcher{ranges: tc.ranges}, Options{})
			_, err := provider.Ranges(context.Background(), "coll-1")
			assert.Error(t, err)
		})
	}
}

func TestRangeForKeyCoversWholeHashSpace(t *testing.T) {
	provider := NewProvider(&stubFetcher{ranges: fullCoverageRanges()}, Options{})

	keys := []string{"alpha", "beta", "gamma", "delta", "42", ""}
	for _, key := range keys {
		r, err := provider.RangeForKey(context.Background(), "coll-1", key)
		require.NoError(t, err, "key %q", key)
		assert.True(t, r.Contains(EffectiveKey(key)), "key %q must land in its own range", key)
	}
}

func TestRangeForEffectiveKeyBoundaries(t *testing.T) {
	provider := NewProvider(&stubFetcher{ranges: fullCoverageRanges()}, Options{})

	tests := []struct {
		effectiveKey string
		wantRange    string
	}{
		{"00000000", "0"},
		{"55555554", "0"},
		{"55555555", "1"}, // boundary belongs to the low-inclusive range
		{"AAAAAAAA", "2"},
		{"FFFFFFFF", "2"},
	}
	for _, tc := range tests {
		r, err := provider.RangeForEffectiveKey(context.Background(), "coll-1", tc.effectiveKey)
		require.NoError(t, err)
		assert.Equal(t, tc.wantRange, r.ID, "effective key %s", tc.effectiveKey)
	}
}

func TestRangeByID(t *testing.T) {
	provider := NewProvider(&stubFetcher{ranges: fullCoverageRanges()}, Options{})

	r, ok, err := provider.RangeByID(context.Background(), "coll-1", "1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "55555555", r.MinInclusive)

	_, ok, err = provider.RangeByID(context.Background(), "coll-1", "99")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestInvalidateForcesRefetch(t *testing.T) {
	fetcher := &stubFetcher{ranges: fullCoverageRanges()}
	provider := NewProvider(fetcher, Options{})

	_, err := provider.Ranges(context.Background(), "coll-1")
	require.NoError(t, err)
	provider.Invalidate("coll-1")

	// simulate a split observed after invalidation
	fetcher.ranges = []types.PartitionKeyRange{
		{ID: "3", MinInclusive: MinInclusiveKey, MaxExclusive: "80000000"},
		{ID: "4", MinInclusive: "80000000", MaxExclusive: MaxExclusiveKey},
	}
	ranges, err := provider.Ranges(context.Background(), "coll-1")
	require.NoError(t, err)
	assert.Len(t, ranges, 2)
	assert.Equal(t, 2, fetcher.fetches)
}

func TestTTLExpiryForcesRefetch(t *testing.T) {
	ts := clock.NewMockedTimeSource()
	fetcher := &stubFetcher{ranges: fullCoverageRanges()}
	provider := NewProvider(fetcher, Options{TTL: time.Minute, TimeSource: ts})

	_, err := provider.Ranges(context.Background(), "coll-1")
	require.NoError(t, err)

	ts.Advance(59 * time.Second)
	_, err = provider.Ranges(context.Background(), "coll-1")
	require.NoError(t, err)
	assert.Equal(t, 1, fetcher.fetches)

	ts.Advance(2 * time.Second)
	_, err = provider.Ranges(context.Background(), "coll-1")
	require.NoError(t, err)
	assert.Equal(t, 2, fetcher.fetches)
}

func TestEffectiveKeyIsOrderPreservingHex(t *testing.T) {
	key := EffectiveKey("afdgdd")
	assert.Len(t, key, 8)
	assert.Equal(t, "418C1BC2", key) // 1099701186
	assert.Less(t, key, MaxExclusiveKey)
	assert.GreaterOrEqual(t, key, MinInclusiveKey)
}
