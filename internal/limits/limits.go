// Package limits implements the control-limit calculator: method
// selection by nominal subgroup size, the three estimators it
// dispatches to, and RecalculateAndPersist's side effects (persist,
// invalidate cache, publish ControlLimitsUpdated).
package limits

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/openspc/engine/internal/errs"
	"github.com/openspc/engine/internal/eventbus"
	"github.com/openspc/engine/internal/model"
	"github.com/openspc/engine/internal/repository"
	"github.com/openspc/engine/internal/statistics"
	"github.com/openspc/engine/internal/window"
)

// Method name strings. Callers match on them, so they are stable.
const (
	MethodMovingRange = "moving_range"
	MethodRBarD2      = "r_bar_d2"
	MethodSBarC4      = "s_bar_c4"
)

// CalculationResult is the calculator's output.
type CalculationResult struct {
	CenterLine     float64
	UCL            float64
	LCL            float64
	Sigma          float64
	Method         string
	SampleCount    int
	ExcludedCount  int
	CalculatedAt   time.Time
}

// Params bundles the calculator's inputs.
type Params struct {
	CharacteristicID string
	ExcludeOOC       bool
	MinSamples       int
	StartDate        *time.Time
	EndDate          *time.Time
	LastN            *int
}

// Calculator computes and (optionally) persists control limits.
type Calculator struct {
	characteristics repository.CharacteristicRepo
	samples         repository.SampleRepo
	windows         *window.Manager
	bus             *eventbus.Bus
}

// NewCalculator builds a Calculator over the given collaborators.
func NewCalculator(characteristics repository.CharacteristicRepo, samples repository.SampleRepo, windows *window.Manager, bus *eventbus.Bus) *Calculator {
	return &Calculator{characteristics: characteristics, samples: samples, windows: windows, bus: bus}
}

// Calculate computes control limits for a characteristic without
// persisting anything.
func (c *Calculator) Calculate(ctx context.Context, p Params) (*CalculationResult, error) {
	char, err := c.characteristics.GetByID(ctx, p.CharacteristicID)
	if err != nil {
		return nil, fmt.Errorf("limits: load characteristic %s: %w", p.CharacteristicID, err)
	}

	samples, err := c.samples.GetByCharacteristic(ctx, p.CharacteristicID, p.StartDate, p.EndDate)
	if err != nil {
		return nil, fmt.Errorf("limits: load samples for %s: %w", p.CharacteristicID, err)
	}

	excludedCount := 0
	eligible := make([]float64, 0, len(samples))
	var eligibleRanges []float64
	var eligibleStdDevs []float64

	for _, s := range samples {
		if p.ExcludeOOC && s.IsExcluded {
			excludedCount++
			continue
		}
		values := s.Values()
		if len(values) == 0 {
			continue
		}
		eligible = append(eligible, statistics.Mean(values))
		if len(values) > 1 {
			eligibleRanges = append(eligibleRanges, statistics.Range(values))
			eligibleStdDevs = append(eligibleStdDevs, statistics.SampleStdDev(values))
		}
	}

	if p.LastN != nil && *p.LastN > 0 && *p.LastN < len(eligible) {
		tailFrom := len(eligible) - *p.LastN
		eligible = eligible[tailFrom:]
		if len(eligibleRanges) > 0 {
			rangeTailFrom := len(eligibleRanges) - *p.LastN
			if rangeTailFrom < 0 {
				rangeTailFrom = 0
			}
			eligibleRanges = eligibleRanges[rangeTailFrom:]
		}
		if len(eligibleStdDevs) > 0 {
			stdTailFrom := len(eligibleStdDevs) - *p.LastN
			if stdTailFrom < 0 {
				stdTailFrom = 0
			}
			eligibleStdDevs = eligibleStdDevs[stdTailFrom:]
		}
	}

	if p.MinSamples > 0 && len(eligible) < p.MinSamples {
		return nil, fmt.Errorf("limits: %w", errs.InsufficientSamples(len(eligible), p.MinSamples))
	}

	n := char.SubgroupSize
	centerLine := statistics.Mean(eligible)

	var sigma float64
	var method string
	switch {
	case n <= 1:
		sigma = statistics.SigmaFromMovingRange(eligible)
		method = MethodMovingRange
	case n <= 10:
		sigma = statistics.SigmaFromRBar(eligibleRanges, n)
		method = MethodRBarD2
	default:
		sigma = statistics.SigmaFromSBar(eligibleStdDevs, n)
		method = MethodSBarC4
	}

	var ucl, lcl float64
	if method == MethodMovingRange {
		ucl = centerLine + 3*sigma
		lcl = centerLine - 3*sigma
	} else {
		sigmaOfMean := sigma / math.Sqrt(float64(n))
		ucl = centerLine + 3*sigmaOfMean
		lcl = centerLine - 3*sigmaOfMean
	}

	return &CalculationResult{
		CenterLine:    centerLine,
		UCL:           ucl,
		LCL:           lcl,
		Sigma:         sigma,
		Method:        method,
		SampleCount:   len(eligible),
		ExcludedCount: excludedCount,
		CalculatedAt:  time.Now().UTC(),
	}, nil
}

// RecalculateAndPersist computes new limits, writes them onto the
// characteristic, invalidates its cached window, and publishes
// ControlLimitsUpdated. The caller is responsible for persisting the
// characteristic mutation through whatever repository write path backs characteristics in a real deployment; here the
// in-memory reference repository mutates the shared *model.Characteristic
// in place, matching how a real ORM-backed repo would commit the same
// object within the caller's transaction.
func (c *Calculator) RecalculateAndPersist(ctx context.Context, char *model.Characteristic, p Params) (*CalculationResult, error) {
	result, err := c.Calculate(ctx, p)
	if err != nil {
		return nil, err
	}

	ucl, lcl, sigma, centerLine := result.UCL, result.LCL, result.Sigma, result.CenterLine
	char.UCL = &ucl
	char.LCL = &lcl
	char.StoredSigma = &sigma
	char.StoredCenterLine = &centerLine

	c.windows.Invalidate(char.ID)

	if c.bus != nil {
		c.bus.Publish(eventbus.NewEvent(eventbus.ControlLimitsUpdated, eventbus.ControlLimitsUpdatedPayload{
			CharacteristicID: char.ID,
			CenterLine:       centerLine,
			UCL:              ucl,
			LCL:              lcl,
			Sigma:            sigma,
			Method:           result.Method,
		}))
	}

	return result, nil
}
