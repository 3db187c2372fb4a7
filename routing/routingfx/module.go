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

// Package routingfx provides the routing layer as an fx module so client
// binaries can assemble it alongside their transport and CRUD layers.
package routingfx

import (
	gocontext "context"

	"github.com/uber-go/tally"
	"go.uber.org/fx"

	"github.com/uber/docstore/common/clock"
	"github.com/uber/docstore/common/config"
	"github.com/uber/docstore/common/log"
	"github.com/uber/docstore/common/types"
	"github.com/uber/docstore/partition/rangecache"
	"github.com/uber/docstore/routing"
)

// Module provides a started routing.Context tied to the fx lifecycle.
var Module = fx.Module("routing", fx.Provide(New))

// Params are the module's dependencies. TimeSource, Logger and MetricsScope
// fall back to production defaults when the app provides none.
type Params struct {
	fx.In

	Config           config.Routing
	DefaultEndpoint  types.Endpoint
	TopologyProvider routing.TopologyProvider
	RangeFetcher     rangecache.RangeFetcher `optional:"true"`
	TimeSource       clock.TimeSource        `optional:"true"`
	Logger           log.Logger              `optional:"true"`
	MetricsScope     tally.Scope             `optional:"true"`

	Lifecycle fx.Lifecycle
}

// New builds the routing context and hooks Start/Close into the app lifecycle.
func New(params Params) *routing.Context {
	ctx := routing.New(routing.Params{
		Config:           params.Config,
		DefaultEndpoint:  params.DefaultEndpoint,
		TopologyProvider: params.TopologyProvider,
		RangeFetcher:     params.RangeFetcher,
		TimeSource:       params.TimeSource,
		Logger:           params.Logger,
		MetricsScope:     params.MetricsScope,
	})
	params.Lifecycle.Append(fx.Hook{
		OnStart: func(gocontext.Context) error {
			ctx.Start()
			return nil
		},
		OnStop: func(gocontext.Context) error {
			return ctx.Close()
		},
	})
	return ctx
}
