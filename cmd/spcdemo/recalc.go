package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openspc/engine/internal/eventbus"
	"github.com/openspc/engine/internal/limits"
	"github.com/openspc/engine/internal/model"
	"github.com/openspc/engine/internal/repository"
	"github.com/openspc/engine/internal/window"
)

// newRecalcCommand demonstrates control-limit recalculation against a
// scripted history: a repeating [10,12,11,13,10] pattern six times over
// (30 individual samples), which the moving-range estimator resolves to a
// center line near 11.2 and sigma near 1.47 (29 moving ranges summing to
// 48).
func newRecalcCommand(logLevel, configPath *string) *cobra.Command {
	var minSamples int

	cmd := &cobra.Command{
		Use:   "recalc",
		Short: "Recalculate control limits from a scripted sample history",
		RunE: func(cmd *cobra.Command, args []string) error {
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

			char := &model.Characteristic{
				ID:              "recalc-characteristic",
				Name:            "moving-range recalculation demo",
				SubgroupSize:    1,
				MinMeasurements: 1,
				SubgroupMode:    model.NominalTolerance,
				ProviderType:    model.ProviderManual,
			}
			repo.Characteristics.Put(char)

			pattern := []float64{10, 12, 11, 13, 10}
			for i := 0; i < 6; i++ {
				for _, v := range pattern {
					if _, err := repo.Samples.CreateWithMeasurements(cmd.Context(), repository.NewSampleParams{
						CharacteristicID: char.ID,
						Values:           []float64{v},
						ActualN:          1,
					}); err != nil {
						return fmt.Errorf("seed sample: %w", err)
					}
				}
			}

			log.Info("recalculating control limits", "characteristic_id", char.ID, "min_samples", minSamples)

			result, err := calculator.RecalculateAndPersist(cmd.Context(), char, limits.Params{
				CharacteristicID: char.ID,
				ExcludeOOC:       true,
				MinSamples:       minSamples,
			})
			if err != nil {
				return fmt.Errorf("recalculate: %w", err)
			}

			tw := newTabwriter()
			fmt.Fprintln(tw, "method\tcenter_line\tucl\tlcl\tsigma\tsample_count")
			fmt.Fprintf(tw, "%s\t%.4f\t%.4f\t%.4f\t%.4f\t%d\n",
				result.Method, result.CenterLine, result.UCL, result.LCL, result.Sigma, result.SampleCount)
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&minSamples, "min-samples", 25, "minimum eligible sample count required before recalculation proceeds")
	return cmd
}
