// Copyright The Hostwatch Authors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/hostwatch/hostwatch/internal/config"
	"github.com/hostwatch/hostwatch/internal/entity"
	"github.com/hostwatch/hostwatch/internal/health"
	"github.com/hostwatch/hostwatch/internal/observer"
	"github.com/hostwatch/hostwatch/internal/report"
	"github.com/hostwatch/hostwatch/internal/telemetry"
	"github.com/hostwatch/hostwatch/internal/tracelog"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run every observer once and print the node's health",
	Long: `Check runs each configured observer a single time, collects the resulting
health reports and prints them. No dumps are taken and no telemetry leaves
the process.

The exit code reflects the worst severity found: 0 for Ok, 1 for Warning,
2 for Error. A check that cannot run at all exits 3.`,
	Run: func(cmd *cobra.Command, _ []string) {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(3)
		}

		logger, err := buildLogger(cfg.Logging)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(3)
		}
		defer func() { _ = logger.Sync() }()

		store := health.NewMemoryStore(logger)
		reporter := report.NewReporter(logger, store, telemetry.NewNopSink(), tracelog.New(logger, false))
		eng := observer.NewEngine(logger, reporter, nil, nil)

		manager := observer.NewManager(logger, 0, cfg.RunTimeout)
		if err := registerObservers(manager, logger, eng, cfg); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(3)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := manager.RunOnce(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: some observers failed: %v\n", err)
		}

		os.Exit(printSnapshot(cfg.NodeName, store.Snapshot()))
	},
}

// printSnapshot renders the collected reports, worst first, and returns the
// exit code for the run.
func printSnapshot(nodeName string, reports []health.Report) int {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()

	if len(reports) == 0 {
		fmt.Printf("%s no health reports produced\n", cyan(nodeName+":"))
		return 0
	}

	sort.Slice(reports, func(i, j int) bool {
		if reports[i].Severity != reports[j].Severity {
			return reports[i].Severity.WorseThan(reports[j].Severity)
		}
		if reports[i].EntityID != reports[j].EntityID {
			return reports[i].EntityID < reports[j].EntityID
		}
		return reports[i].Metric < reports[j].Metric
	})

	entityWidth, metricWidth := len("ENTITY"), len("METRIC")
	for _, r := range reports {
		entityWidth = max(entityWidth, len(displayName(r)))
		metricWidth = max(metricWidth, len(r.Metric))
	}

	fmt.Printf("%s %d report(s)\n\n", cyan("Health of "+nodeName+":"), len(reports))
	fmt.Printf("%-*s  %-*s  %-8s  %10s  %s\n", entityWidth, "ENTITY", metricWidth, "METRIC", "SEVERITY", "VALUE", "CODE")

	worst := health.SeverityOk
	for _, r := range reports {
		if r.Severity.WorseThan(worst) {
			worst = r.Severity
		}
		fmt.Printf("%-*s  %-*s  %s  %10.1f  %s\n",
			entityWidth, displayName(r),
			metricWidth, r.Metric,
			severityColor(r.Severity).Sprintf("%-8s", r.Severity),
			r.Value, r.Code)
	}

	if worst.Breach() {
		fmt.Printf("\n%s\n", severityColor(worst).Sprintf("Worst severity: %s", worst))
	}
	return worst.Rank()
}

// displayName prefers the kind-qualified entity id; bare node reports read
// better with just the kind.
func displayName(r health.Report) string {
	if r.EntityKind == entity.KindNode && r.EntityName == r.NodeName {
		return string(entity.KindNode)
	}
	return r.EntityID
}

func severityColor(s health.Severity) *color.Color {
	switch s {
	case health.SeverityError:
		return color.New(color.FgRed, color.Bold)
	case health.SeverityWarning:
		return color.New(color.FgYellow)
	default:
		return color.New(color.FgGreen)
	}
}
