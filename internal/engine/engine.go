// Package engine implements the sample pipeline orchestrator: the
// single ProcessSample operation that validates, persists,
// classifies, evaluates rules against, and raises violations for one
// incoming sample, all within a conceptual transaction boundary. Each
// step narrows or enriches the in-flight sample before handing it to the
// next.
package engine

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/openspc/engine/internal/errs"
	"github.com/openspc/engine/internal/eventbus"
	"github.com/openspc/engine/internal/limits"
	"github.com/openspc/engine/internal/model"
	"github.com/openspc/engine/internal/repository"
	"github.com/openspc/engine/internal/rules"
	"github.com/openspc/engine/internal/statistics"
	"github.com/openspc/engine/internal/window"
)

// SampleContext carries the caller-supplied provenance of a sample:
// batch and operator are both optional.
type SampleContext struct {
	Batch    *string
	Operator *string
}

// ProcessingResult is ProcessSample's return value.
type ProcessingResult struct {
	SampleID         string
	Timestamp        time.Time
	Mean             float64
	Range            *float64
	Zone             statistics.Zone
	SigmaDistance    float64
	AboveCenter      bool
	InControl        bool
	Violations       []*model.Violation
	ProcessingTimeMS float64
}

// Engine orchestrates the sample pipeline over its collaborators.
type Engine struct {
	characteristics repository.CharacteristicRepo
	samples         repository.SampleRepo
	violations      repository.ViolationRepo
	windows         *window.Manager
	calculator      *limits.Calculator
	bus             *eventbus.Bus
}

// New builds an Engine over the given collaborators.
func New(
	characteristics repository.CharacteristicRepo,
	samples repository.SampleRepo,
	violations repository.ViolationRepo,
	windows *window.Manager,
	calculator *limits.Calculator,
	bus *eventbus.Bus,
) *Engine {
	return &Engine{
		characteristics: characteristics,
		samples:         samples,
		violations:      violations,
		windows:         windows,
		calculator:      calculator,
		bus:             bus,
	}
}

// ProcessSample runs the full pipeline for one incoming sample:
// validate, compute statistics, persist, classify, evaluate rules,
// persist violations, publish.
func (e *Engine) ProcessSample(ctx context.Context, charID string, measurements []float64, sctx SampleContext) (*ProcessingResult, error) {
	start := time.Now()

	// Step 1: load characteristic with rules. Every field needed later is
	// read out into locals immediately.
	char, err := e.characteristics.GetWithRules(ctx, charID)
	if err != nil {
		return nil, fmt.Errorf("engine: load characteristic %s: %w", charID, err)
	}
	subgroupSize := char.SubgroupSize
	mode := char.SubgroupMode
	minMeasurements := char.EffectiveMinMeasurements()
	warnThreshold := char.EffectiveWarnBelowCount()
	if subgroupSize > warnThreshold {
		warnThreshold = subgroupSize
	}
	// Mode-specific statistics use the explicit stored process
	// parameters, never the (ucl-lcl)/6 derivation: for n>1 that
	// derivation yields sigma of the subgroup mean, and dividing it by
	// sqrt(n) again in step 3 would corrupt every z-score and effective
	// limit.
	var storedSigma, storedCenter float64
	hasStoredParams := char.StoredSigma != nil && char.StoredCenterLine != nil
	if hasStoredParams {
		storedSigma = *char.StoredSigma
		storedCenter = *char.StoredCenterLine
	}
	derivedCenter, _ := char.DerivedCenterLine()
	derivedSigma, _ := char.DerivedSigma()
	ucl, lcl := char.UCL, char.LCL
	enabledRules := char.EnabledRuleIDs()

	// Step 2: validate measurements.
	n := len(measurements)
	if n < minMeasurements {
		return nil, fmt.Errorf("engine: %d measurements, need at least %d: %w", n, minMeasurements, errs.ErrValidation)
	}
	if mode == model.NominalTolerance && n > subgroupSize {
		return nil, fmt.Errorf("engine: %d measurements exceeds subgroup size %d: %w", n, subgroupSize, errs.ErrValidation)
	}
	isUndersized := n < warnThreshold

	// Step 3: compute mode-specific statistics.
	mean := statistics.Mean(measurements)
	var sampleRange *float64
	if n > 1 {
		r := statistics.Range(measurements)
		sampleRange = &r
	}

	var zScore *float64
	var effectiveUCL, effectiveLCL *float64

	switch mode {
	case model.Standardized:
		if !hasStoredParams {
			return nil, fmt.Errorf("engine: standardized mode requires stored sigma and center line: %w", errs.ErrValidation)
		}
		sigmaMean := storedSigma / math.Sqrt(float64(n))
		z := (mean - storedCenter) / sigmaMean
		zScore = &z
	case model.VariableLimits:
		if !hasStoredParams {
			return nil, fmt.Errorf("engine: variable-limits mode requires stored sigma and center line: %w", errs.ErrValidation)
		}
		sigmaMean := storedSigma / math.Sqrt(float64(n))
		eu := storedCenter + 3*sigmaMean
		el := storedCenter - 3*sigmaMean
		effectiveUCL, effectiveLCL = &eu, &el
	}

	// Step 4: persist the sample and measurements.
	sample, err := e.samples.CreateWithMeasurements(ctx, repository.NewSampleParams{
		CharacteristicID: charID,
		Values:           measurements,
		Batch:            sctx.Batch,
		Operator:         sctx.Operator,
		ActualN:          n,
		IsUndersized:     isUndersized,
		EffectiveUCL:     effectiveUCL,
		EffectiveLCL:     effectiveLCL,
		ZScore:           zScore,
	})
	if err != nil {
		return nil, fmt.Errorf("engine: persist sample: %w", errs.Processing(err))
	}

	// Step 5: compute zone boundaries.
	var boundaries statistics.ZoneBoundaries
	switch {
	case mode == model.Standardized:
		// The window charts z-scores in this mode, so the zone frame is
		// fixed at center 0, sigma 1 regardless of any raw-unit limits.
		boundaries = statistics.NewZoneBoundaries(0, 1)
	case mode == model.VariableLimits:
		boundaries = statistics.NewZoneBoundaries(storedCenter, storedSigma/math.Sqrt(float64(subgroupSize)))
	case ucl != nil && lcl != nil:
		boundaries = statistics.NewZoneBoundaries(derivedCenter, derivedSigma)
	default:
		// No stored limits: derive boundaries from the window's worth of
		// history. Fewer than two eligible samples cannot yield a sigma,
		// so the calculator's failure propagates instead of classifying
		// against a degenerate zero-width zone chart.
		lastN := e.windows.WindowSize()
		result, err := e.calculator.Calculate(ctx, limits.Params{
			CharacteristicID: charID,
			MinSamples:       2,
			LastN:            &lastN,
		})
		if err != nil {
			return nil, fmt.Errorf("engine: derive boundaries for %s: %w", charID, err)
		}
		// The calculator reports process sigma; the zone chart is drawn
		// in units of the subgroup mean's sigma, which its limits already
		// encode as (ucl-lcl)/6 for every method.
		boundaries = statistics.NewZoneBoundaries(result.CenterLine, (result.UCL-result.LCL)/6)
	}

	// Step 6: update the rolling window. The charted value is the z-score
	// in STANDARDIZED mode, the mean otherwise.
	chartValue := mean
	if mode == model.Standardized && zScore != nil {
		chartValue = *zScore
	}
	admitted, _, err := e.windows.AddSample(ctx, charID, window.AddSampleParams{
		SampleID:     sample.ID,
		Timestamp:    sample.Timestamp,
		Value:        chartValue,
		Range:        sampleRange,
		Boundaries:   boundaries,
		Mode:         mode,
		ActualN:      n,
		StoredSigma:  storedSigma,
		StoredCenter: storedCenter,
		EffectiveUCL: effectiveUCL,
		EffectiveLCL: effectiveLCL,
	})
	if err != nil {
		return nil, fmt.Errorf("engine: classify sample into window: %w", errs.Processing(err))
	}

	// Step 7: evaluate enabled rules against the post-append window.
	w, err := e.windows.Get(ctx, charID)
	if err != nil {
		return nil, fmt.Errorf("engine: reload window for rule evaluation: %w", errs.Processing(err))
	}
	triggered := rules.CheckAll(w.Samples(), enabledRules)

	// Step 8: persist a violation record for each triggered rule.
	violations := make([]*model.Violation, 0, len(triggered))
	for _, res := range triggered {
		enable := char.RuleEnableByID(res.RuleID)
		v, err := e.violations.Create(ctx, sample.ID, res.RuleID, res.RuleName, res.Severity, false, enable.RequireAcknowledgement)
		if err != nil {
			return nil, fmt.Errorf("engine: persist violation for rule %d: %w", res.RuleID, errs.Processing(err))
		}
		violations = append(violations, v)

		if e.bus != nil {
			e.bus.Publish(eventbus.NewEvent(eventbus.ViolationCreated, eventbus.ViolationCreatedPayload{
				ViolationID: v.ID,
				SampleID:    sample.ID,
				RuleID:      res.RuleID,
				Severity:    string(res.Severity),
			}))
		}
	}

	inControl := len(violations) == 0

	// Step 9: publish SampleProcessed.
	if e.bus != nil {
		ruleIDs := make([]int, len(triggered))
		for i, res := range triggered {
			ruleIDs[i] = res.RuleID
		}
		e.bus.Publish(eventbus.NewEvent(eventbus.SampleProcessed, eventbus.SampleProcessedPayload{
			SampleID:         sample.ID,
			CharacteristicID: charID,
			InControl:        inControl,
			ViolationRuleIDs: ruleIDs,
		}))
	}

	// Step 10: return the result.
	return &ProcessingResult{
		SampleID:         sample.ID,
		Timestamp:        sample.Timestamp,
		Mean:             mean,
		Range:            sampleRange,
		Zone:             admitted.Zone,
		SigmaDistance:    admitted.SigmaDistance,
		AboveCenter:      admitted.IsAboveCenter,
		InControl:        inControl,
		Violations:       violations,
		ProcessingTimeMS: float64(time.Since(start).Microseconds()) / 1000.0,
	}, nil
}
