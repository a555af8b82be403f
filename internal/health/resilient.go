// Copyright The Hostwatch Authors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package health // import "github.com/hostwatch/hostwatch/internal/health"

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// SinkFactory builds a fresh sink instance.
type SinkFactory func() (Sink, error)

// ResilientSink wraps a sink and rebuilds it through the factory when the
// current instance reports itself disposed. The rebuild happens at most once
// per submission, so a factory that keeps producing dead sinks surfaces as an
// error instead of a retry loop.
type ResilientSink struct {
	logger  *zap.Logger
	factory SinkFactory

	mu      sync.Mutex
	current Sink
}

func NewResilientSink(logger *zap.Logger, factory SinkFactory) (*ResilientSink, error) {
	initial, err := factory()
	if err != nil {
		return nil, fmt.Errorf("build health sink: %w", err)
	}
	return &ResilientSink{logger: logger, factory: factory, current: initial}, nil
}

func (s *ResilientSink) Submit(ctx context.Context, r Report) error {
	err := s.sink().Submit(ctx, r)
	if !errors.Is(err, ErrSinkClosed) {
		return err
	}

	s.logger.Warn("Health sink was disposed, reconnecting",
		zap.String("entity", r.EntityID),
		zap.String("source_id", r.SourceID))
	if rerr := s.Reconnect(); rerr != nil {
		return rerr
	}
	return s.sink().Submit(ctx, r)
}

// Reconnect replaces the current sink with a freshly built one and closes the
// old instance. It may be called directly when the caller knows the backing
// channel went away.
func (s *ResilientSink) Reconnect() error {
	fresh, err := s.factory()
	if err != nil {
		return fmt.Errorf("reconnect health sink: %w", err)
	}

	s.mu.Lock()
	old := s.current
	s.current = fresh
	s.mu.Unlock()

	if old != nil {
		if cerr := old.Close(); cerr != nil && !errors.Is(cerr, ErrSinkClosed) {
			s.logger.Debug("Closing disposed health sink failed", zap.Error(cerr))
		}
	}
	return nil
}

func (s *ResilientSink) Close() error {
	return s.sink().Close()
}

func (s *ResilientSink) sink() Sink {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}
