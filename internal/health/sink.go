// Copyright The Hostwatch Authors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package health // import "github.com/hostwatch/hostwatch/internal/health"

import (
	"context"
	"errors"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// ErrSinkClosed is returned by a sink whose backing channel has been disposed.
// Callers that can rebuild the sink should treat it as retryable.
var ErrSinkClosed = errors.New("health sink is closed")

// Sink receives health reports. Implementations must be safe for concurrent
// use; Submit is expected to honor ctx cancellation before doing I/O.
type Sink interface {
	Submit(ctx context.Context, r Report) error
	Close() error
}

// LogSink renders reports to the process log. It is the default sink in
// environments without a health store.
type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Submit(ctx context.Context, r Report) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	fields := []zap.Field{
		zap.String("entity", r.EntityID),
		zap.String("node", r.NodeName),
		zap.String("observer", r.Observer),
		zap.String("metric", r.Metric),
		zap.String("code", r.Code),
		zap.Float64("value", r.Value),
		zap.Duration("ttl", r.TTL),
		zap.String("source_id", r.SourceID),
		zap.String("property", r.Property),
	}

	switch r.Severity {
	case SeverityError:
		s.logger.Error(r.Message, fields...)
	case SeverityWarning:
		s.logger.Warn(r.Message, fields...)
	default:
		s.logger.Info(r.Message, fields...)
	}
	return nil
}

func (s *LogSink) Close() error {
	return nil
}

// MultiSink fans a report out to several sinks, collecting every failure so
// one misbehaving sink does not hide the others.
type MultiSink struct {
	sinks []Sink
}

func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

func (s *MultiSink) Submit(ctx context.Context, r Report) error {
	var err error
	for _, sink := range s.sinks {
		err = multierr.Append(err, sink.Submit(ctx, r))
	}
	return err
}

func (s *MultiSink) Close() error {
	var err error
	for _, sink := range s.sinks {
		err = multierr.Append(err, sink.Close())
	}
	return err
}
