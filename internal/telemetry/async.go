// Copyright The Hostwatch Authors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package telemetry // import "github.com/hostwatch/hostwatch/internal/telemetry"

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/hostwatch/hostwatch/internal/selfmetrics"
)

const (
	defaultQueueSize   = 256
	asyncSubmitTimeout = 5 * time.Second
)

// AsyncSink decouples emission from the monitoring loop: payloads are queued
// and delivered by a single worker. When the queue is full the payload is
// dropped and counted, never blocking the caller.
type AsyncSink struct {
	logger *zap.Logger
	inner  Sink

	jobs    chan asyncJob
	quit    chan struct{}
	wg      sync.WaitGroup
	closed  atomic.Bool
	dropped atomic.Int64
	once    sync.Once
}

type asyncJob struct {
	health  bool
	payload Payload
}

func NewAsyncSink(logger *zap.Logger, inner Sink, queueSize int) *AsyncSink {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	s := &AsyncSink{
		logger: logger,
		inner:  inner,
		jobs:   make(chan asyncJob, queueSize),
		quit:   make(chan struct{}),
	}
	s.wg.Add(1)
	go s.run()
	return s
}

func (s *AsyncSink) ReportMetric(ctx context.Context, p Payload) error {
	return s.enqueue(ctx, asyncJob{payload: p})
}

func (s *AsyncSink) ReportHealth(ctx context.Context, p Payload) error {
	return s.enqueue(ctx, asyncJob{health: true, payload: p})
}

// Close drains queued payloads, then closes the wrapped sink.
func (s *AsyncSink) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.quit)
		s.wg.Wait()
		err = s.inner.Close()
	})
	return err
}

// Dropped returns how many payloads were discarded due to a full queue.
func (s *AsyncSink) Dropped() int64 {
	return s.dropped.Load()
}

func (s *AsyncSink) enqueue(ctx context.Context, j asyncJob) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.closed.Load() {
		return nil
	}

	select {
	case s.jobs <- j:
		return nil
	default:
		n := s.dropped.Add(1)
		selfmetrics.TelemetryDropped.Inc()
		if n == 1 || n%100 == 0 {
			s.logger.Warn("Telemetry queue full, dropping payload",
				zap.Int64("dropped_total", n),
				zap.String("metric", j.payload.Metric))
		}
		return nil
	}
}

func (s *AsyncSink) run() {
	defer s.wg.Done()
	for {
		select {
		case j := <-s.jobs:
			s.deliver(j)
		case <-s.quit:
			// Drain whatever is already queued, then stop.
			for {
				select {
				case j := <-s.jobs:
					s.deliver(j)
				default:
					return
				}
			}
		}
	}
}

func (s *AsyncSink) deliver(j asyncJob) {
	ctx, cancel := context.WithTimeout(context.Background(), asyncSubmitTimeout)
	defer cancel()

	var err error
	if j.health {
		err = s.inner.ReportHealth(ctx, j.payload)
	} else {
		err = s.inner.ReportMetric(ctx, j.payload)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Debug("Telemetry emission failed",
			zap.String("metric", j.payload.Metric),
			zap.Error(err))
	}
}
