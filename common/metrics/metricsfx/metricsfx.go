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

// Package metricsfx provides the root tally scope the routing layer and its
// host application hang their sub-scopes off.
package metricsfx

import (
	gocontext "context"
	"time"

	"github.com/uber-go/tally"
	"go.uber.org/fx"
)

const reportingInterval = time.Second

// Module provides a root tally.Scope with the docstore prefix. Use
// ModuleForExternalScope instead when the host application already owns a
// scope and provides it itself.
var Module = fx.Module("metricsfx", fx.Provide(NewRootScope))

// ModuleForExternalScope only verifies a scope is present in the container,
// the host application supplies the actual one.
var ModuleForExternalScope = fx.Module("metricsfx", fx.Invoke(func(tally.Scope) {}))

// Params are the root scope's dependencies.
type Params struct {
	fx.In

	Lifecycle fx.Lifecycle
	Reporter  tally.StatsReporter `optional:"true"`
}

// NewRootScope builds the root scope and ties its reporting loop to the fx
// lifecycle. Without a reporter the scope still aggregates, which keeps unit
// tests and reporterless clients cheap.
func NewRootScope(params Params) tally.Scope {
	reporter := params.Reporter
	if reporter == nil {
		reporter = tally.NullStatsReporter
	}
	scope, closer := tally.NewRootScope(tally.ScopeOptions{
		Prefix:   "docstore",
		Reporter: reporter,
	}, reportingInterval)
	params.Lifecycle.Append(fx.Hook{
		OnStop: func(gocontext.Context) error {
			return closer.Close()
		},
	})
	return scope
}
