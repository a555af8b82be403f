// Copyright The Hostwatch Authors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

// Package csvlog appends evaluated usage rows to one CSV file per entity,
// for offline analysis without a telemetry backend. Optional: a nil or
// directory-less logger discards everything.
package csvlog // import "github.com/hostwatch/hostwatch/internal/csvlog"

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/hostwatch/hostwatch/internal/classify"
)

var header = []string{"timestamp", "entity", "metric", "stat", "value"}

type entityFile struct {
	f *os.File
	w *csv.Writer
}

type Logger struct {
	logger *zap.Logger
	dir    string

	mu     sync.Mutex
	files  map[string]*entityFile
	closed bool
}

func New(logger *zap.Logger, dir string) *Logger {
	return &Logger{
		logger: logger,
		dir:    dir,
		files:  make(map[string]*entityFile),
	}
}

// Enabled reports whether rows are being written.
func (l *Logger) Enabled() bool {
	return l != nil && l.dir != ""
}

// Append writes one row to the entity's file, creating it with a header on
// first use.
func (l *Logger) Append(entityName string, metric classify.Metric, stat string, value float64, ts time.Time) error {
	if !l.Enabled() {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return fmt.Errorf("csv logger is closed")
	}

	ef, err := l.fileFor(entityName)
	if err != nil {
		return err
	}

	row := []string{
		ts.UTC().Format(time.RFC3339),
		entityName,
		string(metric),
		stat,
		strconv.FormatFloat(value, 'f', 4, 64),
	}
	if err := ef.w.Write(row); err != nil {
		return fmt.Errorf("append csv row for %s: %w", entityName, err)
	}
	// Flush per row: the watchdog writes a handful of rows per minute and
	// rows must survive an abrupt exit.
	ef.w.Flush()
	return ef.w.Error()
}

func (l *Logger) fileFor(entityName string) (*entityFile, error) {
	name := sanitizeFileName(entityName)
	if ef, ok := l.files[name]; ok {
		return ef, nil
	}

	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create csv directory: %w", err)
	}

	path := filepath.Join(l.dir, name+".csv")
	info, statErr := os.Stat(path)
	fresh := statErr != nil || info.Size() == 0

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open csv file: %w", err)
	}

	ef := &entityFile{f: f, w: csv.NewWriter(f)}
	if fresh {
		if err := ef.w.Write(header); err != nil {
			f.Close()
			return nil, fmt.Errorf("write csv header: %w", err)
		}
		ef.w.Flush()
		l.logger.Debug("Opened csv data file", zap.String("path", path), zap.String("entity", entityName))
	}
	l.files[name] = ef
	return ef, nil
}

// Close flushes and closes every open file.
func (l *Logger) Close() error {
	if !l.Enabled() {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true

	var errs error
	for name, ef := range l.files {
		ef.w.Flush()
		errs = multierr.Append(errs, ef.w.Error())
		errs = multierr.Append(errs, ef.f.Close())
		delete(l.files, name)
	}
	return errs
}

// sanitizeFileName maps an entity name onto a safe flat file name.
func sanitizeFileName(s string) string {
	mapped := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_' || r == '.':
			return r
		default:
			return '_'
		}
	}, s)
	return strings.Trim(mapped, "._")
}
