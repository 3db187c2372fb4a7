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

package clock

import (
	"time"

	"github.com/jonboulle/clockwork"
)

type (
	// TimeSource is an interface to make it easier to test code that uses time.
	TimeSource interface {
		AfterFunc(d time.Duration, f func()) Timer
		Now() time.Time
		Since(t time.Time) time.Duration
		NewTimer(d time.Duration) Timer
		NewTicker(d time.Duration) Ticker
		Sleep(d time.Duration)
	}

	// MockedTimeSource is a time source for testing. Time can be advanced manually.
	MockedTimeSource interface {
		TimeSource
		// Advance advances the fake clock's time by d.
		Advance(d time.Duration)
		// BlockUntil blocks until the fake clock has the given number of waiters.
		BlockUntil(waiters int)
	}

	// Timer is a wrapper around time.Timer so fake timers can be injected in tests.
	Timer interface {
		Chan() <-chan time.Time
		Reset(d time.Duration) bool
		Stop() bool
	}

	// Ticker is a wrapper around time.Ticker so fake tickers can be injected in tests.
	Ticker interface {
		Chan() <-chan time.Time
		Stop()
	}

	realTimeSource struct {
		clockwork.Clock
	}

	mockedTimeSource struct {
		clockwork.FakeClock
	}
)

// NewRealTimeSource returns a TimeSource backed by the wall clock.
func NewRealTimeSource() TimeSource {
	return &realTimeSource{Clock: clockwork.NewRealClock()}
}

// NewMockedTimeSource returns a TimeSource for tests whose time only moves
// when Advance is called.
func NewMockedTimeSource() MockedTimeSource {
	return &mockedTimeSource{FakeClock: clockwork.NewFakeClock()}
}

// NewMockedTimeSourceAt returns a mocked TimeSource initialized to t.
func NewMockedTimeSourceAt(t time.Time) MockedTimeSource {
	return &mockedTimeSource{FakeClock: clockwork.NewFakeClockAt(t)}
}

func (r *realTimeSource) AfterFunc(d time.Duration, f func()) Timer {
	return r.Clock.AfterFunc(d, f)
}

func (r *realTimeSource) NewTimer(d time.Duration) Timer {
	return r.Clock.NewTimer(d)
}

func (r *realTimeSource) NewTicker(d time.Duration) Ticker {
	return r.Clock.NewTicker(d)
}

func (m *mockedTimeSource) AfterFunc(d time.Duration, f func()) Timer {
	return m.FakeClock.AfterFunc(d, f)
}

func (m *mockedTimeSource) NewTimer(d time.Duration) Timer {
	return m.FakeClock.NewTimer(d)
}

func (m *mockedTimeSource) NewTicker(d time.Duration) Ticker {
	return m.FakeClock.NewTicker(d)
}
