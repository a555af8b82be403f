// Copyright The Hostwatch Authors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package observers // import "github.com/hostwatch/hostwatch/internal/observers"

import (
	"context"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/hostwatch/hostwatch/internal/classify"
	"github.com/hostwatch/hostwatch/internal/entity"
	"github.com/hostwatch/hostwatch/internal/observer"
)

const certObserverName = "CertificateObserver"

// CertConfig lists the PEM certificate files to track and the remaining-days
// floors they must stay above.
type CertConfig struct {
	Enabled    bool
	Paths      []string
	ExpiryDays FloorThresholds
}

// CertificateObserver reports how many days each configured certificate has
// left. This metric breaches downward, so it bypasses series evaluation and
// hands the engine a ready decision.
type CertificateObserver struct {
	logger *zap.Logger
	eng    Engine
	build  *entity.Builder
	cfg    CertConfig

	now      func() time.Time
	readFile func(string) ([]byte, error)
}

func NewCertificateObserver(logger *zap.Logger, eng Engine, build *entity.Builder, cfg CertConfig) *CertificateObserver {
	return &CertificateObserver{
		logger:   logger,
		eng:      eng,
		build:    build,
		cfg:      cfg,
		now:      time.Now,
		readFile: os.ReadFile,
	}
}

func (o *CertificateObserver) Name() string  { return certObserverName }
func (o *CertificateObserver) Enabled() bool { return o.cfg.Enabled }

func (o *CertificateObserver) Observe(ctx context.Context, rc observer.RunContext) error {
	var errs error
	for _, path := range o.cfg.Paths {
		if err := ctx.Err(); err != nil {
			return err
		}

		daysLeft, err := o.daysUntilExpiry(path)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("certificate %s: %w", path, err))
			continue
		}

		// One entity per certificate file so each tracks its own breach.
		ent := o.build.Node()
		ent.Name = path

		dec := floorDecision(classify.MetricCertExpiryDays, ent.Kind, daysLeft, o.cfg.ExpiryDays)
		err = o.eng.ProcessDecision(ctx, rc, observer.DecisionInput{
			Entity:   ent,
			Metric:   classify.MetricCertExpiryDays,
			Decision: dec,
			Observer: o.Name(),
		})
		if err != nil {
			return err
		}
	}
	return errs
}

// daysUntilExpiry parses the first certificate in the PEM file and returns the
// days until NotAfter, negative once expired.
func (o *CertificateObserver) daysUntilExpiry(path string) (float64, error) {
	raw, err := o.readFile(path)
	if err != nil {
		return 0, err
	}

	for {
		var block *pem.Block
		block, raw = pem.Decode(raw)
		if block == nil {
			return 0, fmt.Errorf("no certificate block found")
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return 0, fmt.Errorf("parse certificate: %w", err)
		}
		return cert.NotAfter.Sub(o.now()).Hours() / 24, nil
	}
}
