// Package main runs the validation suite once against in-memory stores and
// prints a per-drill report. Exits non-zero when any drill fails, so it can
// gate a deploy from CI.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"ramp-guard/internal/domain"
	"ramp-guard/internal/guard"
	"ramp-guard/internal/harness"
	"ramp-guard/internal/storage/memory"
)

func main() {
	timeout := flag.Duration("drill-timeout", 30*time.Second, "Per-drill time bound")
	verbose := flag.Bool("v", false, "Log drill execution")
	flag.Parse()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger().Level(zerolog.WarnLevel)
	if *verbose {
		logger = logger.Level(zerolog.DebugLevel)
	}

	overrides := guard.NewOverrides()
	scale := guard.DefaultConservativeScale()

	deps := harness.Deps{
		Overrides:  overrides,
		KillSwitch: guard.NewKillSwitchDetector(overrides, logger),
		Freeze:     guard.NewPromotionFreeze(overrides),
		Regime: guard.NewRegimeDetector(guard.RegimeThresholds{
			MaxSkew:     0.5,
			MaxFailRate: 0.2,
		}, overrides, logger),
		Profiles: guard.NewProfileSelector(guard.RiskProfile{
			MaxPositionPct:  0.2,
			StopDistanceBps: 250,
			SizeMultiplier:  1.0,
		}, scale, overrides),
		Executor: guard.NewPaperExecutor(func(context.Context, string, domain.Direction, float64) error {
			return nil
		}, logger),
	}

	runner := harness.NewRunner(harness.RunnerOptions{
		Drills:       harness.DefaultDrills(scale),
		Deps:         deps,
		Store:        memory.NewSuiteResultStore(),
		DrillTimeout: *timeout,
		Logger:       logger,
	})

	result, err := runner.Run(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "suite run failed: %v\n", err)
		os.Exit(2)
	}

	fmt.Printf("validation suite %s\n", result.RunID)
	fmt.Printf("started %s, finished %s\n",
		time.UnixMilli(result.StartedTs).UTC().Format(time.RFC3339),
		time.UnixMilli(result.FinishedTs).UTC().Format(time.RFC3339))
	for _, r := range result.Results {
		mark := "PASS"
		if !r.Passed {
			mark = "FAIL"
		}
		fmt.Printf("  [%s] %-26s %s\n", mark, r.Name, r.Details)
	}

	if !result.AllPassed {
		fmt.Println("suite FAILED")
		os.Exit(1)
	}
	fmt.Println("suite passed")
}
