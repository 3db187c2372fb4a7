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

package routing

import (
	gocontext "context"
	"errors"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/uber/docstore/common/clock"
	"github.com/uber/docstore/common/config"
	"github.com/uber/docstore/common/types"
	"github.com/uber/docstore/partition/rangecache"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var (
	testGlobal = types.Endpoint{Address: "https://account.documents.example.com"}
	testWest   = types.Endpoint{Address: "https://account-westus.documents.example.com", Region: "westus"}
	testEast   = types.Endpoint{Address: "https://account-eastus.documents.example.com", Region: "eastus"}
	testCentr  = types.Endpoint{Address: "https://account-centralus.documents.example.com", Region: "centralus"}
)

func pairOf(regional types.Endpoint) types.RegionalEndpointPair {
	return types.RegionalEndpointPair{RegionalEndpoint: regional, GlobalEndpoint: testGlobal}
}

func multiRegionTopology(multiWrite bool) types.AccountTopology {
	writable := []types.RegionalEndpointPair{pairOf(testWest)}
	if multiWrite {
		writable = []types.RegionalEndpointPair{pairOf(testWest), pairOf(testEast), pairOf(testCentr)}
	}
	return types.AccountTopology{
		WritableLocations: writable,
		ReadableLocations: []types.RegionalEndpointPair{pairOf(testWest), pairOf(testEast), pairOf(testCentr)},
		MultiWriteEnabled: multiWrite,
	}
}

func singleRegionTopology() types.AccountTopology {
	pairs := []types.RegionalEndpointPair{pairOf(testWest)}
	return types.AccountTopology{WritableLocations: pairs, ReadableLocations: pairs}
}

type rangeFetcherStub struct {
	ranges []types.PartitionKeyRange
}

func (f *rangeFetcherStub) FetchPartitionKeyRanges(ctx gocontext.Context, collectionID string) ([]types.PartitionKeyRange, error) {
	return f.ranges, nil
}

func newStartedContext(t *testing.T, topology types.AccountTopology, fetcher rangecache.RangeFetcher) (*Context, clock.MockedTimeSource) {
	t.Helper()

	ctrl := gomock.NewController(t)
	provider := NewMockTopologyProvider(ctrl)
	provider.EXPECT().GetAccountTopology(gomock.Any()).Return(topology, nil).AnyTimes()

	cfg := config.Routing{}
	cfg.FillDefaults()
	ts := clock.NewMockedTimeSource()

	c := New(Params{
		Config:           cfg,
		DefaultEndpoint:  testGlobal,
		TopologyProvider: provider,
		RangeFetcher:     fetcher,
		TimeSource:       ts,
	})
	c.Start()
	t.Cleanup(func() {
		require.NoError(t, c.Close())
	})
	return c, ts
}

func readRequestForRange(rangeID string) *types.RequestObject {
	req := types.NewRequestObject(types.ResourceTypeDocument, types.OperationTypeRead)
	req.PartitionKeyRangeID = rangeID
	return req
}

func TestStartStopIdempotent(t *testing.T) {
	c, _ := newStartedContext(t, singleRegionTopology(), nil)
	c.Start()
	c.Stop()
	c.Stop()
	require.NoError(t, c.Close())
}

func TestResolvePrefersFirstTopologyRegion(t *testing.T) {
	c, _ := newStartedContext(t, multiRegionTopology(false), nil)

	req := readRequestForRange("0")
	ep, err := c.Resolve(req)
	require.NoError(t, err)
	assert.Equal(t, testWest, ep)
	require.NotNil(t, req.RoutedEndpoint)
	assert.Equal(t, testWest, *req.RoutedEndpoint, "the decision is recorded for failure reporting")
}

func TestUnhealthyPartitionRoutesAroundEndpoint(t *testing.T) {
	c, _ := newStartedContext(t, multiRegionTopology(false), nil)

	// one partition goes bad on the first region
	for i := 0; i < 10; i++ {
		req := readRequestForRange("0")
		_, err := c.Resolve(req)
		require.NoError(t, err)
		c.ReportOutcome(req, types.Outcome{Kind: types.OutcomeTransportError})
		req.ClearRouting()
	}

	assert.Equal(t, 1, c.UnhealthyPartitionCount(types.OperationTypeRead), "exactly one pair is unhealthy")

	ep, err := c.Resolve(readRequestForRange("0"))
	require.NoError(t, err)
	assert.NotEqual(t, testWest, ep, "the unhealthy pair is skipped")

	ep, err = c.Resolve(readRequestForRange("1"))
	require.NoError(t, err)
	assert.Equal(t, testWest, ep, "other partitions are unaffected")
}

func TestSingleWriteFailuresNeverTouchSecondaryRegions(t *testing.T) {
	c, _ := newStartedContext(t, multiRegionTopology(false), nil)

	// writes on a single-write account only ever reach the primary, so
	// failing them must accrue write counters there and nowhere else
	for i := 0; i < 10; i++ {
		req := types.NewRequestObject(types.ResourceTypeDocument, types.OperationTypeCreate)
		req.PartitionKeyRangeID = "0"
		ep, err := c.Resolve(req)
		require.NoError(t, err)
		require.Equal(t, testWest, ep, "write %d must go to the primary", i)
		c.ReportOutcome(req, types.Outcome{Kind: types.OutcomeTransportError})
	}

	info, ok := c.PartitionHealth("0", testWest)
	require.True(t, ok)
	assert.Equal(t, int64(10), info.WriteConsecutiveFailures)

	for _, secondary := range []types.Endpoint{testEast, testCentr} {
		_, ok := c.PartitionHealth("0", secondary)
		assert.False(t, ok, "no failure data may accrue on %s", secondary.Region)
	}
}

func TestAllEndpointsUnhealthyThenRecovery(t *testing.T) {
	c, ts := newStartedContext(t, singleRegionTopology(), nil)

	// exhaust both addresses of the only region
	for attempt := 0; attempt < 20; attempt++ {
		req := readRequestForRange("0")
		_, err := c.Resolve(req)
		if err != nil {
			break
		}
		c.ReportOutcome(req, types.Outcome{Kind: types.OutcomeTransportError})
	}

	_, err := c.Resolve(readRequestForRange("0"))
	var unavailable *types.PartitionUnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, "0", unavailable.PartitionKeyRangeID)
	require.Equal(t, 2, c.UnhealthyPartitionCount(types.OperationTypeRead))

	// backoff elapses, the fault has cleared: one probe goes through and
	// its success closes the breaker
	ts.Advance(time.Second)
	req := readRequestForRange("0")
	ep, err := c.Resolve(req)
	require.NoError(t, err)
	c.ReportOutcome(req, types.Outcome{Kind: types.OutcomeSuccess})

	assert.Equal(t, 1, c.UnhealthyPartitionCount(types.OperationTypeRead), "the probed pair recovered")
	next, err := c.Resolve(readRequestForRange("0"))
	require.NoError(t, err)
	assert.Equal(t, ep, next)
}

func TestShouldRetryServiceUnavailableMovesRegions(t *testing.T) {
	c, _ := newStartedContext(t, multiRegionTopology(true), nil)

	req := types.NewRequestObject(types.ResourceTypeDocument, types.OperationTypeCreate)
	first, err := c.Resolve(req)
	require.NoError(t, err)
	require.Equal(t, testWest, first)

	outcome := types.Outcome{Kind: types.OutcomeServiceUnavailable, Err: errors.New("503")}
	c.ReportOutcome(req, outcome)

	retry, next, err := c.ShouldRetry(req, outcome)
	require.NoError(t, err)
	require.True(t, retry)
	assert.Equal(t, "eastus", next.Region, "the retry steers past the failed region")
	assert.Equal(t, 1, req.RetryCount)
}

func TestShouldRetryExhaustsWithLastError(t *testing.T) {
	c, _ := newStartedContext(t, singleRegionTopology(), nil)

	transportErr := errors.New("503 from the gateway")
	outcome := types.Outcome{Kind: types.OutcomeServiceUnavailable, Err: transportErr}
	req := types.NewRequestObject(types.ResourceTypeDocument, types.OperationTypeRead)

	retries := 0
	for {
		retry, _, err := c.ShouldRetry(req, outcome)
		if !retry {
			var exhausted *types.ExhaustedRetriesError
			require.ErrorAs(t, err, &exhausted)
			assert.ErrorIs(t, err, transportErr)
			break
		}
		retries++
		require.Less(t, retries, 10, "retry loop must terminate")
	}
	assert.Equal(t, 2, retries, "single readable region still gets the floor of two attempts")
}

func TestShouldRetryWriteForbiddenReRoutesToPrimary(t *testing.T) {
	c, _ := newStartedContext(t, multiRegionTopology(false), nil)

	// a request routed from a stale topology hit a read replica
	req := types.NewRequestObject(types.ResourceTypeDocument, types.OperationTypeCreate)
	stale := testEast
	req.RoutedEndpoint = &stale

	outcome := types.Outcome{
		Kind:    types.OutcomeForbidden,
		Subcode: types.ForbiddenSubcodeWriteForbidden,
		Err:     errors.New("write forbidden"),
	}
	retry, next, err := c.ShouldRetry(req, outcome)
	require.NoError(t, err)
	require.True(t, retry)
	assert.Equal(t, testWest, next, "writes go back to the primary region")
}

func TestShouldRetryDeclinesUnknownFailures(t *testing.T) {
	c, _ := newStartedContext(t, singleRegionTopology(), nil)

	req := types.NewRequestObject(types.ResourceTypeDocument, types.OperationTypeRead)
	retry, _, err := c.ShouldRetry(req, types.Outcome{Kind: types.OutcomeTransportError})
	assert.False(t, retry)
	assert.NoError(t, err, "the caller surfaces the original failure")
}

func TestResolveMapsPartitionKeyToRange(t *testing.T) {
	fetcher := &rangeFetcherStub{ranges: []types.PartitionKeyRange{
		{ID: "0", MinInclusive: rangecache.MinInclusiveKey, MaxExclusive: "80000000"},
		{ID: "1", MinInclusive: "80000000", MaxExclusive: rangecache.MaxExclusiveKey},
	}}
	c, _ := newStartedContext(t, singleRegionTopology(), fetcher)

	key := "afdgdd" // hashes to 418C1BC2, below the split point
	req := types.NewRequestObject(types.ResourceTypeDocument, types.OperationTypeRead)
	req.CollectionID = "coll-1"
	req.PartitionKey = &key

	_, err := c.Resolve(req)
	require.NoError(t, err)
	assert.Equal(t, "0", req.PartitionKeyRangeID, "health tracking applies at partition granularity")
}

func TestTopologyRefreshOnTimer(t *testing.T) {
	ctrl := gomock.NewController(t)
	provider := NewMockTopologyProvider(ctrl)

	refreshed := make(chan struct{})
	first := provider.EXPECT().GetAccountTopology(gomock.Any()).Return(singleRegionTopology(), nil)
	provider.EXPECT().GetAccountTopology(gomock.Any()).
		DoAndReturn(func(gocontext.Context) (types.AccountTopology, error) {
			close(refreshed)
			return multiRegionTopology(true), nil
		}).After(first)

	cfg := config.Routing{TopologyRefreshInterval: time.Minute}
	cfg.FillDefaults()
	ts := clock.NewMockedTimeSource()
	c := New(Params{
		Config:           cfg,
		DefaultEndpoint:  testGlobal,
		TopologyProvider: provider,
		TimeSource:       ts,
	})
	c.Start()
	defer func() {
		require.NoError(t, c.Close())
	}()

	ts.Advance(time.Minute)
	select {
	case <-refreshed:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the periodic topology refresh")
	}
}

func TestRefreshFailureKeepsPreviousTopology(t *testing.T) {
	ctrl := gomock.NewController(t)
	provider := NewMockTopologyProvider(ctrl)
	provider.EXPECT().GetAccountTopology(gomock.Any()).Return(types.AccountTopology{}, errors.New("account lookup failed"))

	cfg := config.Routing{}
	cfg.FillDefaults()
	c := New(Params{
		Config:           cfg,
		DefaultEndpoint:  testGlobal,
		TopologyProvider: provider,
		TimeSource:       clock.NewMockedTimeSource(),
	})
	c.Start()
	defer func() {
		require.NoError(t, c.Close())
	}()

	// no topology made it in, requests still route to the default endpoint
	ep, err := c.Resolve(types.NewRequestObject(types.ResourceTypeDocument, types.OperationTypeRead))
	require.NoError(t, err)
	assert.Equal(t, testGlobal, ep)
}

type closableProvider struct {
	topology types.AccountTopology
	closeErr error
	closed   bool
}

func (p *closableProvider) GetAccountTopology(ctx gocontext.Context) (types.AccountTopology, error) {
	return p.topology, nil
}

func (p *closableProvider) Close() error {
	p.closed = true
	return p.closeErr
}

func TestCloseClosesCloseableCollaborators(t *testing.T) {
	closeErr := errors.New("connection pool drain failed")
	provider := &closableProvider{topology: singleRegionTopology(), closeErr: closeErr}

	cfg := config.Routing{}
	cfg.FillDefaults()
	c := New(Params{
		Config:           cfg,
		DefaultEndpoint:  testGlobal,
		TopologyProvider: provider,
		TimeSource:       clock.NewMockedTimeSource(),
	})
	c.Start()

	err := c.Close()
	assert.ErrorIs(t, err, closeErr)
	assert.True(t, provider.closed)
}
