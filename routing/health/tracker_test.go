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

package health

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uber/docstore/common/clock"
	"github.com/uber/docstore/common/config"
	"github.com/uber/docstore/common/log"
	"github.com/uber/docstore/common/metrics"
	"github.com/uber/docstore/common/types"
)

func testHealthConfig() config.Health {
	return config.Health{
		ConsecutiveFailureThreshold:      10,
		WriteConsecutiveFailureThreshold: 5,
		FailureRatePercent:               90,
		MinimumRequestsForFailureRate:    10,
		FailureWindowSize:                100,
		InitialUnavailableDuration:       time.Second,
		MaxUnavailableDuration:           5 * time.Minute,
	}
}

func newTestTracker(t *testing.T) (*Tracker, clock.MockedTimeSource) {
	t.Helper()
	ts := clock.NewMockedTimeSource()
	tracker := NewTracker(NewConfig(testHealthConfig()), ts, log.NewNoop(), metrics.NoopScope())
	return tracker, ts
}

var testEndpoint = types.Endpoint{Address: "https://account-westus.documents.example.com", Region: "westus"}

func TestUnknownPairIsRoutable(t *testing.T) {
	tracker, _ := newTestTracker(t)

	assert.True(t, tracker.IsRoutable("0", testEndpoint, KindRead))
	assert.True(t, tracker.IsRoutable("0", testEndpoint, KindWrite))
	_, ok := tracker.Snapshot("0", testEndpoint)
	assert.False(t, ok, "routability checks alone must not create records")
	assert.Equal(t, 0, tracker.UnhealthyCount(KindRead))
}

func TestConsecutiveReadFailuresOpenBreaker(t *testing.T) {
	tracker, _ := newTestTracker(t)

	for i := 0; i < 9; i++ {
		tracker.ReportFailure("0", testEndpoint, KindRead)
		assert.True(t, tracker.IsRoutable("0", testEndpoint, KindRead), "failure %d must not open the breaker", i+1)
	}
	tracker.ReportFailure("0", testEndpoint, KindRead)

	assert.False(t, tracker.IsRoutable("0", testEndpoint, KindRead))
	assert.True(t, tracker.IsRoutable("0", testEndpoint, KindWrite), "read and write health are independent")
	assert.Equal(t, 1, tracker.UnhealthyCount(KindRead))
	assert.Equal(t, 0, tracker.UnhealthyCount(KindWrite))
}

func TestSuccessResetsConsecutiveFailures(t *testing.T) {
	tracker, _ := newTestTracker(t)

	for i := 0; i < 9; i++ {
		tracker.ReportFailure("0", testEndpoint, KindRead)
	}
	tracker.ReportSuccess("0", testEndpoint, KindRead)
	for i := 0; i < 9; i++ {
		tracker.ReportFailure("0", testEndpoint, KindRead)
	}

	assert.True(t, tracker.IsRoutable("0", testEndpoint, KindRead))
	info, ok := tracker.Snapshot("0", testEndpoint)
	require.True(t, ok)
	assert.Equal(t, int64(9), info.ReadConsecutiveFailures)
	assert.Equal(t, int64(1), info.ReadSuccess)
}

func TestWriteThresholdDependsOnMultiWrite(t *testing.T) {
	t.Run("multi-write uses the lower threshold", func(t *testing.T) {
		tracker, _ := newTestTracker(t)
		tracker.SetMultiWrite(true)

		for i := 0; i < 5; i++ {
			tracker.ReportFailure("0", testEndpoint, KindWrite)
		}
		assert.False(t, tracker.IsRoutable("0", testEndpoint, KindWrite))
	})

	t.Run("single-write uses the read threshold", func(t *testing.T) {
		tracker, _ := newTestTracker(t)

		for i := 0; i < 5; i++ {
			tracker.ReportFailure("0", testEndpoint, KindWrite)
		}
		assert.True(t, tracker.IsRoutable("0", testEndpoint, KindWrite))
		for i := 0; i < 5; i++ {
			tracker.ReportFailure("0", testEndpoint, KindWrite)
		}
		assert.False(t, tracker.IsRoutable("0", testEndpoint, KindWrite))
	})
}

func TestFailureRateOpensBreaker(t *testing.T) {
	tracker, _ := newTestTracker(t)

	// one success then nine failures: the consecutive counter stays below
	// its threshold but the window reaches 9/10 = 90%
	tracker.ReportSuccess("0", testEndpoint, KindRead)
	for i := 0; i < 8; i++ {
		tracker.ReportFailure("0", testEndpoint, KindRead)
	}
	assert.True(t, tracker.IsRoutable("0", testEndpoint, KindRead), "9 samples is below the minimum window")
	tracker.ReportFailure("0", testEndpoint, KindRead)

	assert.False(t, tracker.IsRoutable("0", testEndpoint, KindRead))
	info, ok := tracker.Snapshot("0", testEndpoint)
	require.True(t, ok)
	assert.Equal(t, int64(9), info.ReadConsecutiveFailures, "rate check tripped before the consecutive check")
}

func TestFailureRateNeedsMinimumRequests(t *testing.T) {
	tracker, _ := newTestTracker(t)

	// 100% failures, but below the minimum sample size and below the
	// consecutive threshold
	for i := 0; i < 9; i++ {
		tracker.ReportFailure("0", testEndpoint, KindRead)
	}
	assert.True(t, tracker.IsRoutable("0", testEndpoint, KindRead))
}

func TestRecoveryProbeAdmission(t *testing.T) {
	tracker, ts := newTestTracker(t)

	for i := 0; i < 10; i++ {
		tracker.ReportFailure("0", testEndpoint, KindRead)
	}
	require.False(t, tracker.IsRoutable("0", testEndpoint, KindRead))

	ts.Advance(time.Second)
	assert.True(t, tracker.IsRoutable("0", testEndpoint, KindRead), "first check after backoff admits a probe")
	assert.False(t, tracker.IsRoutable("0", testEndpoint, KindRead), "only one probe per window")

	tracker.ReportSuccess("0", testEndpoint, KindRead)
	assert.True(t, tracker.IsRoutable("0", testEndpoint, KindRead))
	assert.Equal(t, 0, tracker.UnhealthyCount(KindRead))
}

func TestStatusTransitionsThroughTentative(t *testing.T) {
	tracker, ts := newTestTracker(t)

	for i := 0; i < 10; i++ {
		tracker.ReportFailure("0", testEndpoint, KindRead)
	}
	info, ok := tracker.Snapshot("0", testEndpoint)
	require.True(t, ok)
	require.Equal(t, StatusUnhealthy, info.ReadStatus)

	ts.Advance(time.Second)
	require.True(t, tracker.IsRoutable("0", testEndpoint, KindRead))
	info, _ = tracker.Snapshot("0", testEndpoint)
	assert.Equal(t, StatusUnhealthyTentative, info.ReadStatus, "admitting the trial moves the pair to the tentative state")
	assert.Equal(t, 1, tracker.UnhealthyCount(KindRead), "a pair with a trial in flight is still excluded")

	tracker.ReportFailure("0", testEndpoint, KindRead)
	info, _ = tracker.Snapshot("0", testEndpoint)
	assert.Equal(t, StatusUnhealthy, info.ReadStatus, "a failed trial reopens the breaker")

	ts.Advance(2 * time.Second)
	require.True(t, tracker.IsRoutable("0", testEndpoint, KindRead))
	tracker.ReportSuccess("0", testEndpoint, KindRead)
	info, _ = tracker.Snapshot("0", testEndpoint)
	assert.Equal(t, StatusHealthy, info.ReadStatus)
}

func TestFailedProbeDoublesBackoff(t *testing.T) {
	tracker, ts := newTestTracker(t)

	for i := 0; i < 10; i++ {
		tracker.ReportFailure("0", testEndpoint, KindRead)
	}
	ts.Advance(time.Second)
	require.True(t, tracker.IsRoutable("0", testEndpoint, KindRead))
	tracker.ReportFailure("0", testEndpoint, KindRead)

	ts.Advance(time.Second)
	assert.False(t, tracker.IsRoutable("0", testEndpoint, KindRead), "backoff doubled to 2s after the failed probe")
	ts.Advance(time.Second)
	assert.True(t, tracker.IsRoutable("0", testEndpoint, KindRead))
}

func TestBackoffIsCapped(t *testing.T) {
	cfg := testHealthConfig()
	cfg.InitialUnavailableDuration = time.Second
	cfg.MaxUnavailableDuration = 3 * time.Second
	ts := clock.NewMockedTimeSource()
	tracker := NewTracker(NewConfig(cfg), ts, log.NewNoop(), metrics.NoopScope())

	for i := 0; i < 10; i++ {
		tracker.ReportFailure("0", testEndpoint, KindRead)
	}
	// fail probes repeatedly; the backoff must stop growing at the cap
	for i := 0; i < 5; i++ {
		ts.Advance(3 * time.Second)
		require.True(t, tracker.IsRoutable("0", testEndpoint, KindRead), "probe %d", i)
		tracker.ReportFailure("0", testEndpoint, KindRead)
	}
	ts.Advance(3 * time.Second)
	assert.True(t, tracker.IsRoutable("0", testEndpoint, KindRead))
}

func TestDisabledTrackerNeverExcludes(t *testing.T) {
	cfg := testHealthConfig()
	cfg.Disabled = true
	ts := clock.NewMockedTimeSource()
	tracker := NewTracker(NewConfig(cfg), ts, log.NewNoop(), metrics.NoopScope())

	for i := 0; i < 20; i++ {
		tracker.ReportFailure("0", testEndpoint, KindRead)
	}

	assert.True(t, tracker.IsRoutable("0", testEndpoint, KindRead))
	assert.Equal(t, 0, tracker.UnhealthyCount(KindRead))
	info, ok := tracker.Snapshot("0", testEndpoint)
	require.True(t, ok, "outcomes are still recorded while disabled")
	assert.Equal(t, int64(20), info.ReadConsecutiveFailures)
}

func TestPairsAreIndependent(t *testing.T) {
	tracker, _ := newTestTracker(t)
	other := types.Endpoint{Address: "https://account-eastus.documents.example.com", Region: "eastus"}

	for i := 0; i < 10; i++ {
		tracker.ReportFailure("0", testEndpoint, KindRead)
	}

	assert.False(t, tracker.IsRoutable("0", testEndpoint, KindRead))
	assert.True(t, tracker.IsRoutable("0", other, KindRead), "same partition, different endpoint")
	assert.True(t, tracker.IsRoutable("1", testEndpoint, KindRead), "different partition, same endpoint")

	info, ok := tracker.Snapshot("0", other)
	assert.False(t, ok, "pairs never attempted carry no counters")
	assert.Zero(t, info.WriteConsecutiveFailures)
}
