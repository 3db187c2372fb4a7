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

package tag

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

// LoggingCallAtKey is the name of the field carrying the call site of the log statement.
const LoggingCallAtKey = "logging-call-at"

// Tag is the wrapper over zap.Field.
type Tag struct {
	field zap.Field
}

// Field returns the underlying zap field.
func (t Tag) Field() zap.Field {
	return t.field
}

func newStringTag(key string, value string) Tag {
	return Tag{field: zap.String(key, value)}
}

func newInt64Tag(key string, value int64) Tag {
	return Tag{field: zap.Int64(key, value)}
}

func newIntTag(key string, value int) Tag {
	return Tag{field: zap.Int(key, value)}
}

func newBoolTag(key string, value bool) Tag {
	return Tag{field: zap.Bool(key, value)}
}

func newDurationTag(key string, value time.Duration) Tag {
	return Tag{field: zap.Duration(key, value)}
}

func newErrorTag(key string, value error) Tag {
	return Tag{field: zap.Error(value)}
}

// Error returns a tag for the error being logged.
func Error(err error) Tag {
	return newErrorTag("error", err)
}

// Region returns a tag for a region name.
func Region(region string) Tag {
	return newStringTag("region", region)
}

// Endpoint returns a tag for an endpoint address.
func Endpoint(address string) Tag {
	return newStringTag("endpoint", address)
}

// PartitionKeyRangeID returns a tag for a partition key range id.
func PartitionKeyRangeID(id string) Tag {
	return newStringTag("partition-key-range-id", id)
}

// CollectionID returns a tag for a collection / container id.
func CollectionID(id string) Tag {
	return newStringTag("collection-id", id)
}

// OperationName returns a tag for the logical operation being routed.
func OperationName(name string) Tag {
	return newStringTag("operation", name)
}

// RequestID returns a tag for the request id.
func RequestID(id string) Tag {
	return newStringTag("request-id", id)
}

// Attempt returns a tag for the retry attempt number.
func Attempt(attempt int) Tag {
	return newIntTag("attempt", attempt)
}

// HealthStatus returns a tag for a partition health status.
func HealthStatus(status fmt.Stringer) Tag {
	return newStringTag("health-status", status.String())
}

// IsWrite returns a tag distinguishing write routing from read routing.
func IsWrite(isWrite bool) Tag {
	return newBoolTag("is-write", isWrite)
}

// Counter returns a tag for a generic counter value.
func Counter(value int64) Tag {
	return newInt64Tag("counter", value)
}

// BackoffDuration returns a tag for the current backoff window.
func BackoffDuration(d time.Duration) Tag {
	return newDurationTag("backoff-duration", d)
}
