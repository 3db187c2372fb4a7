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

package log

import (
	"fmt"
	"path/filepath"
	"runtime"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/uber/docstore/common/log/tag"
)

type (
	// Logger is the logging interface used throughout the routing layer.
	// Structured fields are attached via the tag package.
	Logger interface {
		Debug(msg string, tags ...tag.Tag)
		Info(msg string, tags ...tag.Tag)
		Warn(msg string, tags ...tag.Tag)
		Error(msg string, tags ...tag.Tag)
		Debugf(msg string, args ...interface{})
		Infof(msg string, args ...interface{})
		Warnf(msg string, args ...interface{})
		Errorf(msg string, args ...interface{})
		WithTags(tags ...tag.Tag) Logger
		DebugOn() bool
	}

	loggerImpl struct {
		zapLogger *zap.Logger
		skip      int
	}
)

const skipForDefaultLogger = 3

// NewLogger returns a logger backed by the given zap logger.
func NewLogger(zapLogger *zap.Logger) Logger {
	return &loggerImpl{
		zapLogger: zapLogger,
		skip:      skipForDefaultLogger,
	}
}

func caller(skip int) string {
	_, path, lineno, ok := runtime.Caller(skip)
	if !ok {
		return ""
	}
	return fmt.Sprintf("%v:%v", filepath.Base(path), lineno)
}

func (lg *loggerImpl) buildFieldsWithCallat(tags []tag.Tag) []zap.Field {
	fields := make([]zap.Field, len(tags)+1)
	for i, t := range tags {
		fields[i] = t.Field()
	}
	fields[len(tags)] = zap.String(tag.LoggingCallAtKey, caller(lg.skip))
	return fields
}

func (lg *loggerImpl) Debug(msg string, tags ...tag.Tag) {
	if lg.DebugOn() {
		lg.zapLogger.Debug(msg, lg.buildFieldsWithCallat(tags)...)
	}
}

func (lg *loggerImpl) Info(msg string, tags ...tag.Tag) {
	lg.zapLogger.Info(msg, lg.buildFieldsWithCallat(tags)...)
}

func (lg *loggerImpl) Warn(msg string, tags ...tag.Tag) {
	lg.zapLogger.Warn(msg, lg.buildFieldsWithCallat(tags)...)
}

func (lg *loggerImpl) Error(msg string, tags ...tag.Tag) {
	lg.zapLogger.Error(msg, lg.buildFieldsWithCallat(tags)...)
}

func (lg *loggerImpl) Debugf(msg string, args ...interface{}) {
	if lg.DebugOn() {
		lg.zapLogger.Debug(fmt.Sprintf(msg, args...), lg.buildFieldsWithCallat(nil)...)
	}
}

func (lg *loggerImpl) Infof(msg string, args ...interface{}) {
	lg.zapLogger.Info(fmt.Sprintf(msg, args...), lg.buildFieldsWithCallat(nil)...)
}

func (lg *loggerImpl) Warnf(msg string, args ...interface{}) {
	lg.zapLogger.Warn(fmt.Sprintf(msg, args...), lg.buildFieldsWithCallat(nil)...)
}

func (lg *loggerImpl) Errorf(msg string, args ...interface{}) {
	lg.zapLogger.Error(fmt.Sprintf(msg, args...), lg.buildFieldsWithCallat(nil)...)
}

func (lg *loggerImpl) WithTags(tags ...tag.Tag) Logger {
	fields := make([]zap.Field, 0, len(tags))
	for _, t := range tags {
		fields = append(fields, t.Field())
	}
	return &loggerImpl{
		zapLogger: lg.zapLogger.With(fields...),
		skip:      lg.skip,
	}
}

func (lg *loggerImpl) DebugOn() bool {
	return lg.zapLogger.Core().Enabled(zapcore.DebugLevel)
}
