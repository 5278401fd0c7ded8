package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/openspc/engine/internal/engine"
	"github.com/openspc/engine/internal/eventbus"
	"github.com/openspc/engine/internal/limits"
	"github.com/openspc/engine/internal/model"
	"github.com/openspc/engine/internal/repository"
	"github.com/openspc/engine/internal/window"
)

// scenario names a scripted sample sequence from the worked examples.
type scenario struct {
	name         string
	subgroupSize int
	values       [][]float64
}

var scenarios = map[string]scenario{
	// S1: a stable individuals process. No rule should trigger.
	"in-control": {
		name:         "in-control individuals",
		subgroupSize: 1,
		values:       [][]float64{{10.1}, {9.9}, {10.0}, {10.2}, {9.8}, {10.0}, {10.1}, {9.9}},
	},
	// S2: a single point beyond 3 sigma trips Rule 1.
	"rule1-outlier": {
		name:         "Rule 1 single-point outlier",
		subgroupSize: 1,
		values:       [][]float64{{10.0}, {10.1}, {9.9}, {10.0}, {25.0}, {10.1}, {9.9}, {10.0}},
	},
	// S3: a sustained run on one side of the center line trips Rule 2.
	"rule2-shift": {
		name:         "Rule 2 nine-point shift",
		subgroupSize: 1,
		values: [][]float64{
			{10.0}, {9.9}, {10.1},
			{11.0}, {11.1}, {11.2}, {11.0}, {11.3}, {11.1}, {11.2}, {11.0}, {11.4},
		},
	},
	// S4: subgroups of three, charted as subgroup means with a per-sample
	// range against the scenario's fixed limits.
	"subgroup-n3": {
		name:         "subgroup n=3 moving process",
		subgroupSize: 3,
		values: [][]float64{
			{9.9, 10.0, 10.1}, {10.0, 10.1, 9.9}, {10.1, 10.0, 9.8},
			{9.8, 10.0, 10.2}, {10.2, 10.1, 9.9}, {10.0, 9.9, 10.1},
		},
	},
}

func newRunCommand(logLevel, configPath *string) *cobra.Command {
	var scenarioName string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Feed a scripted sample sequence through the pipeline and print each result",
		RunE: func(cmd *cobra.Command, args []string) error {
			sc, ok := scenarios[scenarioName]
			if !ok {
				return fmt.Errorf("unknown scenario %q (choose one of: in-control, rule1-outlier, rule2-shift, subgroup-n3)", scenarioName)
			}

			log := buildLogger(*logLevel)
			defer log.Close()

			cfg, err := loadConfig(*configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			repo := repository.NewMemory()
			bus := eventbus.New()
			windows := window.NewManager(repo.Samples, cfg.Window.ManagerCapacity, cfg.Window.Size)
			calculator := limits.NewCalculator(repo.Characteristics, repo.Samples, windows, bus)
			eng := engine.New(repo.Characteristics, repo.Samples, repo.Violations, windows, calculator, bus)

			violationCount := 0
			bus.Subscribe(eventbus.ViolationCreated, func(_ context.Context, ev eventbus.Event) error {
				violationCount++
				return nil
			})

			ucl, lcl := 13.0, 7.0
			if sc.subgroupSize == 3 {
				ucl, lcl = 10.6, 9.4
			}
			char := &model.Characteristic{
				ID:              "demo-characteristic",
				Name:            sc.name,
				SubgroupSize:    sc.subgroupSize,
				MinMeasurements: 1,
				SubgroupMode:    model.NominalTolerance,
				UCL:             &ucl,
				LCL:             &lcl,
				ProviderType:    model.ProviderManual,
			}
			repo.Characteristics.Put(char)

			log.Info("running scenario", "scenario", scenarioName, "samples", len(sc.values))

			tw := newTabwriter()
			fmt.Fprintln(tw, "sample\tmean\tzone\tsigma_dist\tin_control\tviolations")

			for i, values := range sc.values {
				result, err := eng.ProcessSample(cmd.Context(), char.ID, values, engine.SampleContext{})
				if err != nil {
					return fmt.Errorf("process sample %d: %w", i+1, err)
				}
				ruleNames := ""
				for _, v := range result.Violations {
					if ruleNames != "" {
						ruleNames += ","
					}
					ruleNames += v.RuleName
				}
				fmt.Fprintf(tw, "%d\t%.3f\t%s\t%.2f\t%t\t%s\n",
					i+1, result.Mean, result.Zone, result.SigmaDistance, result.InControl, ruleNames)
			}
			tw.Flush()

			if err := bus.Shutdown(cmd.Context()); err != nil {
				log.Warn("event bus shutdown did not complete", "error", err)
			}
			fmt.Fprintf(os.Stdout, "\n%d violation(s) raised\n", violationCount)
			return nil
		},
	}
	cmd.Flags().StringVar(&scenarioName, "scenario", "in-control", "scripted sample sequence to run (in-control|rule1-outlier|rule2-shift|subgroup-n3)")
	return cmd
}
