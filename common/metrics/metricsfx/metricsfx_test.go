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

package metricsfx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/uber-go/tally"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"
)

func TestModule(t *testing.T) {
	var scope tally.Scope
	fxApp := fxtest.New(t,
		Module,
		fx.Populate(&scope),
	)
	fxApp.RequireStart()
	assert.NotNil(t, scope)
	scope.Counter("test_counter").Inc(1)
	fxApp.RequireStop()
}

func TestModuleWithExternalScope(t *testing.T) {
	testScope := tally.NewTestScope("docstore", nil)
	fxApp := fxtest.New(t,
		fx.Provide(func() tally.Scope { return testScope }),
		ModuleForExternalScope,
		fx.Invoke(func(s tally.Scope) {
			s.Counter("test_counter").Inc(1)
		}),
	)
	fxApp.RequireStart().RequireStop()

	counters := testScope.Snapshot().Counters()
	assert.Len(t, counters, 1)
}
