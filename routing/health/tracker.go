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

// Package health tracks per (partition, endpoint) request outcomes and acts
// as a circuit breaker: pairs that keep failing are taken out of routing for
// a backoff window, then probed for recovery.
//
// The breaker is a heuristic, not a correctness mechanism. It only
// influences which candidates the location cache hands out; it never rejects
// a call on its own, and races between checking and updating a record are
// tolerated.
package health

import (
	"sync"
	"time"

	farm "github.com/dgryski/go-farm"
	"github.com/uber-go/tally"
	"go.uber.org/atomic"

	"github.com/uber/docstore/common/clock"
	"github.com/uber/docstore/common/config"
	"github.com/uber/docstore/common/dynamicconfig/dynamicproperties"
	"github.com/uber/docstore/common/log"
	"github.com/uber/docstore/common/log/tag"
	"github.com/uber/docstore/common/metrics"
	"github.com/uber/docstore/common/types"
)

// Kind distinguishes the independently tracked read and write health of a pair.
type Kind int

const (
	// KindRead tracks read outcomes.
	KindRead Kind = iota
	// KindWrite tracks write outcomes.
	KindWrite
)

func (k Kind) String() string {
	if k == KindWrite {
		return "write"
	}
	return "read"
}

// KindForOperation returns the health kind an operation reports under.
func KindForOperation(op types.OperationType) Kind {
	if op.IsWrite() {
		return KindWrite
	}
	return KindRead
}

// Status is the breaker state of one (partition, endpoint, kind).
type Status int

const (
	// StatusHealthy routes normally.
	StatusHealthy Status = iota
	// StatusUnhealthy is excluded from routing until the backoff elapses.
	StatusUnhealthy
	// StatusUnhealthyTentative has the single recovery trial in flight.
	StatusUnhealthyTentative
)

func (s Status) String() string {
	switch s {
	case StatusHealthy:
		return "healthy"
	case StatusUnhealthy:
		return "unhealthy"
	case StatusUnhealthyTentative:
		return "unhealthy-tentative"
	default:
		return "unknown"
	}
}

const shardCount = 16

type (
	// Config holds the breaker thresholds as dynamic properties so they can
	// be tuned without a restart.
	Config struct {
		// Enabled turns the breaker on. When off, outcomes are still
		// recorded but IsRoutable admits everything.
		Enabled dynamicproperties.BoolPropertyFn
		// ConsecutiveFailureThreshold opens the breaker for reads, and for
		// writes on single-write accounts.
		ConsecutiveFailureThreshold dynamicproperties.IntPropertyFn
		// WriteConsecutiveFailureThreshold opens the write breaker on
		// multi-write accounts.
		WriteConsecutiveFailureThreshold dynamicproperties.IntPropertyFn
		// FailureRatePercent is the tolerated failure rate over the window.
		FailureRatePercent dynamicproperties.FloatPropertyFn
		// MinimumRequestsForFailureRate gates the rate check until the
		// window is meaningful.
		MinimumRequestsForFailureRate dynamicproperties.IntPropertyFn
		// FailureWindowSize bounds the rolling outcome window. Fixed at
		// construction.
		FailureWindowSize int
		// InitialUnavailableDuration is the first recovery backoff.
		InitialUnavailableDuration dynamicproperties.DurationPropertyFn
		// MaxUnavailableDuration caps the doubling backoff.
		MaxUnavailableDuration dynamicproperties.DurationPropertyFn
	}

	// HealthInfo is a point-in-time snapshot of one pair's record.
	HealthInfo struct {
		ReadStatus               Status
		ReadSuccess              int64
		ReadConsecutiveFailures  int64
		ReadWindowFailures       int
		ReadWindowTotal          int
		WriteStatus              Status
		WriteSuccess             int64
		WriteConsecutiveFailures int64
		WriteWindowFailures      int
		WriteWindowTotal         int
	}

	// Tracker is the per-partition circuit breaker.
	Tracker struct {
		cfg        Config
		timeSource clock.TimeSource
		logger     log.Logger
		scope      tally.Scope
		multiWrite atomic.Bool

		shards [shardCount]trackerShard
	}

	trackerShard struct {
		sync.Mutex
		records map[pairKey]*record
	}

	pairKey struct {
		rangeID string
		address string
	}

	record struct {
		read  stats
		write stats
	}

	stats struct {
		status              Status
		success             int64
		consecutiveFailures int64
		window              outcomeWindow
		unavailableSince    time.Time
		backoff             time.Duration
	}

	// outcomeWindow is a bounded ring of success/failure outcomes.
	outcomeWindow struct {
		buf      []bool
		next     int
		total    int
		failures int
	}
)

// NewConfig derives a breaker Config from the static health configuration.
func NewConfig(h config.Health) Config {
	return Config{
		Enabled:                          dynamicproperties.GetBoolPropertyFn(!h.Disabled),
		ConsecutiveFailureThreshold:      dynamicproperties.GetIntPropertyFn(h.ConsecutiveFailureThreshold),
		WriteConsecutiveFailureThreshold: dynamicproperties.GetIntPropertyFn(h.WriteConsecutiveFailureThreshold),
		FailureRatePercent:               dynamicproperties.GetFloatPropertyFn(h.FailureRatePercent),
		MinimumRequestsForFailureRate:    dynamicproperties.GetIntPropertyFn(h.MinimumRequestsForFailureRate),
		FailureWindowSize:                h.FailureWindowSize,
		InitialUnavailableDuration:       dynamicproperties.GetDurationPropertyFn(h.InitialUnavailableDuration),
		MaxUnavailableDuration:           dynamicproperties.GetDurationPropertyFn(h.MaxUnavailableDuration),
	}
}

// NewTracker creates a Tracker. Records are created lazily on first report
// or routability check for a pair.
func NewTracker(cfg Config, timeSource clock.TimeSource, logger log.Logger, scope tally.Scope) *Tracker {
	t := &Tracker{
		cfg:        cfg,
		timeSource: timeSource,
		logger:     logger,
		scope:      scope,
	}
	for i := range t.shards {
		t.shards[i].records = make(map[pairKey]*record)
	}
	return t
}

// SetMultiWrite tells the tracker whether the account topology currently
// allows multi-region writes, which selects the write failure threshold.
func (t *Tracker) SetMultiWrite(enabled bool) {
	t.multiWrite.Store(enabled)
}

// shardFor shards by partition so updates to unrelated partitions never contend.
func (t *Tracker) shardFor(rangeID string) *trackerShard {
	return &t.shards[farm.Fingerprint32([]byte(rangeID))%shardCount]
}

func (t *Tracker) getOrCreateLocked(shard *trackerShard, key pairKey) *record {
	rec, ok := shard.records[key]
	if !ok {
		rec = &record{
			read:  stats{window: newOutcomeWindow(t.cfg.FailureWindowSize)},
			write: stats{window: newOutcomeWindow(t.cfg.FailureWindowSize)},
		}
		shard.records[key] = rec
	}
	return rec
}

func (r *record) statsFor(kind Kind) *stats {
	if kind == KindWrite {
		return &r.write
	}
	return &r.read
}

// ReportSuccess records a successful attempt for the pair.
func (t *Tracker) ReportSuccess(rangeID string, ep types.Endpoint, kind Kind) {
	shard := t.shardFor(rangeID)
	shard.Lock()
	defer shard.Unlock()

	st := t.getOrCreateLocked(shard, pairKey{rangeID: rangeID, address: ep.Address}).statsFor(kind)
	st.success++
	st.consecutiveFailures = 0
	st.window.record(true)

	switch st.status {
	case StatusUnhealthyTentative:
		// successful recovery trial closes the breaker
		st.reset()
		t.scope.Counter(metrics.PartitionRecoveredCounter).Inc(1)
		t.logger.Info("partition recovered",
			tag.PartitionKeyRangeID(rangeID),
			tag.Endpoint(ep.Address),
			tag.IsWrite(kind == KindWrite),
			tag.HealthStatus(StatusHealthy),
		)
	case StatusUnhealthy:
		// a success slipping in outside a trial is just as good a signal
		st.reset()
		t.scope.Counter(metrics.PartitionRecoveredCounter).Inc(1)
	}
}

// ReportFailure records a failed attempt for the pair and opens the breaker
// when a threshold trips.
func (t *Tracker) ReportFailure(rangeID string, ep types.Endpoint, kind Kind) {
	shard := t.shardFor(rangeID)
	shard.Lock()
	defer shard.Unlock()

	st := t.getOrCreateLocked(shard, pairKey{rangeID: rangeID, address: ep.Address}).statsFor(kind)
	st.consecutiveFailures++
	st.window.record(false)

	if !t.cfg.Enabled() {
		return
	}

	now := t.timeSource.Now()

	switch st.status {
	case StatusUnhealthyTentative:
		// failed recovery trial: reopen with a longer backoff
		st.status = StatusUnhealthy
		st.unavailableSince = now
		st.backoff = minDuration(st.backoff*2, t.cfg.MaxUnavailableDuration())
		t.scope.Counter(metrics.PartitionProbeFailedCounter).Inc(1)
		t.logger.Info("partition recovery trial failed",
			tag.PartitionKeyRangeID(rangeID),
			tag.Endpoint(ep.Address),
			tag.IsWrite(kind == KindWrite),
			tag.HealthStatus(StatusUnhealthy),
			tag.BackoffDuration(st.backoff),
		)
	case StatusHealthy:
		if !t.thresholdTrippedLocked(st, kind) {
			return
		}
		st.status = StatusUnhealthy
		st.unavailableSince = now
		st.backoff = t.cfg.InitialUnavailableDuration()
		t.scope.Counter(metrics.PartitionUnhealthyCounter).Inc(1)
		t.logger.Info("partition marked unhealthy",
			tag.PartitionKeyRangeID(rangeID),
			tag.Endpoint(ep.Address),
			tag.IsWrite(kind == KindWrite),
			tag.Counter(st.consecutiveFailures),
		)
	}
}

// thresholdTrippedLocked applies the consecutive-failure and failure-rate checks.
func (t *Tracker) thresholdTrippedLocked(st *stats, kind Kind) bool {
	threshold := t.cfg.ConsecutiveFailureThreshold()
	if kind == KindWrite && t.multiWrite.Load() {
		threshold = t.cfg.WriteConsecutiveFailureThreshold()
	}
	if st.consecutiveFailures >= int64(threshold) {
		return true
	}

	minRequests := t.cfg.MinimumRequestsForFailureRate()
	if st.window.total >= minRequests && minRequests > 0 {
		rate := float64(st.window.failures) / float64(st.window.total) * 100
		if rate >= t.cfg.FailureRatePercent() {
			return true
		}
	}
	return false
}

// IsRoutable reports whether the pair may receive a request of the given
// kind. An unhealthy pair whose backoff has elapsed admits exactly one trial
// request; callers learn nothing about probes, they just get a candidate.
func (t *Tracker) IsRoutable(rangeID string, ep types.Endpoint, kind Kind) bool {
	if !t.cfg.Enabled() {
		return true
	}

	shard := t.shardFor(rangeID)
	shard.Lock()
	defer shard.Unlock()

	rec, ok := shard.records[pairKey{rangeID: rangeID, address: ep.Address}]
	if !ok {
		return true
	}
	st := rec.statsFor(kind)

	switch st.status {
	case StatusUnhealthy:
		if t.timeSource.Now().Sub(st.unavailableSince) >= st.backoff {
			// backoff elapsed, admit this request as the recovery trial;
			// the transition itself is the single-admission guard
			st.status = StatusUnhealthyTentative
			t.scope.Counter(metrics.PartitionProbeAdmittedCounter).Inc(1)
			return true
		}
		return false
	case StatusUnhealthyTentative:
		// the trial is already in flight
		return false
	default:
		return true
	}
}

// UnhealthyCount returns the number of pairs currently excluded from routing
// for the given kind. A fully healthy account reports zero.
func (t *Tracker) UnhealthyCount(kind Kind) int {
	count := 0
	for i := range t.shards {
		shard := &t.shards[i]
		shard.Lock()
		for _, rec := range shard.records {
			switch rec.statsFor(kind).status {
			case StatusUnhealthy, StatusUnhealthyTentative:
				count++
			}
		}
		shard.Unlock()
	}
	t.scope.Gauge(metrics.UnhealthyPartitionGauge).Update(float64(count))
	return count
}

// Snapshot returns a copy of the pair's record, and whether one exists.
func (t *Tracker) Snapshot(rangeID string, ep types.Endpoint) (HealthInfo, bool) {
	shard := t.shardFor(rangeID)
	shard.Lock()
	defer shard.Unlock()

	rec, ok := shard.records[pairKey{rangeID: rangeID, address: ep.Address}]
	if !ok {
		return HealthInfo{}, false
	}
	return HealthInfo{
		ReadStatus:               rec.read.status,
		ReadSuccess:              rec.read.success,
		ReadConsecutiveFailures:  rec.read.consecutiveFailures,
		ReadWindowFailures:       rec.read.window.failures,
		ReadWindowTotal:          rec.read.window.total,
		WriteStatus:              rec.write.status,
		WriteSuccess:             rec.write.success,
		WriteConsecutiveFailures: rec.write.consecutiveFailures,
		WriteWindowFailures:      rec.write.window.failures,
		WriteWindowTotal:         rec.write.window.total,
	}, true
}

func (st *stats) reset() {
	st.status = StatusHealthy
	st.consecutiveFailures = 0
	st.unavailableSince = time.Time{}
	st.backoff = 0
	st.window.reset()
}

func newOutcomeWindow(size int) outcomeWindow {
	return outcomeWindow{buf: make([]bool, size)}
}

func (w *outcomeWindow) record(success bool) {
	if len(w.buf) == 0 {
		return
	}
	if w.total == len(w.buf) {
		// evict the oldest outcome
		if !w.buf[w.next] {
			w.failures--
		}
	} else {
		w.total++
	}
	w.buf[w.next] = success
	if !success {
		w.failures++
	}
	w.next = (w.next + 1) % len(w.buf)
}

func (w *outcomeWindow) reset() {
	w.total = 0
	w.failures = 0
	w.next = 0
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
