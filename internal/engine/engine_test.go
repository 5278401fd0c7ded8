package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/openspc/engine/internal/errs"
	"github.com/openspc/engine/internal/eventbus"
	"github.com/openspc/engine/internal/limits"
	"github.com/openspc/engine/internal/model"
	"github.com/openspc/engine/internal/repository"
	"github.com/openspc/engine/internal/window"
)

func newTestEngine(t *testing.T, char *model.Characteristic) (*Engine, *repository.Memory, *eventbus.Bus) {
	t.Helper()
	repo := repository.NewMemory()
	repo.Characteristics.Put(char)
	mgr := window.NewManager(repo.Samples, 10, 25)
	bus := eventbus.New()
	calc := limits.NewCalculator(repo.Characteristics, repo.Samples, mgr, bus)
	return New(repo.Characteristics, repo.Samples, repo.Violations, mgr, calc, bus), repo, bus
}

func floatPtr(f float64) *float64 { return &f }

func TestProcessSampleRejectsBelowMinMeasurements(t *testing.T) {
	ctx := context.Background()
	char := &model.Characteristic{ID: "c1", SubgroupSize: 3, MinMeasurements: 3, SubgroupMode: model.NominalTolerance, UCL: floatPtr(110), LCL: floatPtr(90)}
	eng, _, _ := newTestEngine(t, char)

	_, err := eng.ProcessSample(ctx, "c1", []float64{10, 11}, SampleContext{})
	if !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func TestProcessSampleRejectsOversizedNominalTolerance(t *testing.T) {
	ctx := context.Background()
	char := &model.Characteristic{ID: "c1", SubgroupSize: 2, MinMeasurements: 1, SubgroupMode: model.NominalTolerance, UCL: floatPtr(110), LCL: floatPtr(90)}
	eng, _, _ := newTestEngine(t, char)

	_, err := eng.ProcessSample(ctx, "c1", []float64{10, 11, 12}, SampleContext{})
	if !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func TestProcessSampleHappyPathNominalTolerance(t *testing.T) {
	ctx := context.Background()
	char := &model.Characteristic{
		ID: "c1", SubgroupSize: 1, MinMeasurements: 1, SubgroupMode: model.NominalTolerance,
		UCL: floatPtr(106), LCL: floatPtr(94),
	}
	eng, _, _ := newTestEngine(t, char)

	result, err := eng.ProcessSample(ctx, "c1", []float64{100}, SampleContext{})
	if err != nil {
		t.Fatalf("ProcessSample: %v", err)
	}
	if !result.InControl {
		t.Errorf("InControl = false, want true for a centered point")
	}
	if result.Mean != 100 {
		t.Errorf("Mean = %v, want 100", result.Mean)
	}
	if len(result.Violations) != 0 {
		t.Errorf("Violations = %v, want none", result.Violations)
	}
}

func TestProcessSampleOutlierTriggersViolation(t *testing.T) {
	ctx := context.Background()
	char := &model.Characteristic{
		ID: "c1", SubgroupSize: 1, MinMeasurements: 1, SubgroupMode: model.NominalTolerance,
		UCL: floatPtr(106), LCL: floatPtr(94),
	}
	eng, _, _ := newTestEngine(t, char)

	result, err := eng.ProcessSample(ctx, "c1", []float64{120}, SampleContext{})
	if err != nil {
		t.Fatalf("ProcessSample: %v", err)
	}
	if result.InControl {
		t.Error("InControl = true, want false for a beyond-UCL point")
	}
	if len(result.Violations) != 1 || result.Violations[0].RuleID != 1 {
		t.Errorf("Violations = %+v, want exactly rule 1 (outlier)", result.Violations)
	}
}

func TestProcessSampleStandardizedModeRequiresStoredParams(t *testing.T) {
	ctx := context.Background()
	char := &model.Characteristic{ID: "c1", SubgroupSize: 1, MinMeasurements: 1, SubgroupMode: model.Standardized}
	eng, _, _ := newTestEngine(t, char)

	_, err := eng.ProcessSample(ctx, "c1", []float64{100}, SampleContext{})
	if !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func TestProcessSampleStandardizedModeComputesZScore(t *testing.T) {
	ctx := context.Background()
	char := &model.Characteristic{
		ID: "c1", SubgroupSize: 4, MinMeasurements: 4, SubgroupMode: model.Standardized,
		StoredCenterLine: floatPtr(100), StoredSigma: floatPtr(8),
	}
	eng, _, _ := newTestEngine(t, char)

	result, err := eng.ProcessSample(ctx, "c1", []float64{108, 108, 108, 108}, SampleContext{})
	if err != nil {
		t.Fatalf("ProcessSample: %v", err)
	}
	// sigma_mean = 8/sqrt(4) = 4; z = (108-100)/4 = 2
	if result.SigmaDistance < 1.9 || result.SigmaDistance > 2.1 {
		t.Errorf("SigmaDistance = %v, want ~2", result.SigmaDistance)
	}
}

func TestProcessSampleNoLimitsNoHistoryFails(t *testing.T) {
	ctx := context.Background()
	char := &model.Characteristic{ID: "c1", SubgroupSize: 1, MinMeasurements: 1, SubgroupMode: model.NominalTolerance}
	eng, _, _ := newTestEngine(t, char)

	// With no stored limits and no prior history there is nothing to
	// derive a sigma from, so the calculator's failure surfaces.
	_, err := eng.ProcessSample(ctx, "c1", []float64{100}, SampleContext{})
	if !errors.Is(err, errs.ErrInsufficientSamples) {
		t.Fatalf("err = %v, want ErrInsufficientSamples", err)
	}
}

func TestProcessSampleNoLimitsDerivesBoundariesFromHistory(t *testing.T) {
	ctx := context.Background()
	char := &model.Characteristic{ID: "c1", SubgroupSize: 1, MinMeasurements: 1, SubgroupMode: model.NominalTolerance}
	eng, repo, _ := newTestEngine(t, char)

	for _, v := range []float64{10, 12, 11, 13, 10} {
		repo.Samples.CreateWithMeasurements(ctx, repository.NewSampleParams{CharacteristicID: "c1", Values: []float64{v}, ActualN: 1})
	}

	result, err := eng.ProcessSample(ctx, "c1", []float64{11.2}, SampleContext{})
	if err != nil {
		t.Fatalf("ProcessSample: %v", err)
	}
	if !result.InControl {
		t.Errorf("InControl = false, want true for a point at the derived center")
	}
}

func TestProcessSampleStandardizedModeIgnoresDerivedLimits(t *testing.T) {
	ctx := context.Background()
	// After a recalculation the characteristic carries raw-unit control
	// limits alongside the stored process parameters; the z-score must
	// still come from the stored sigma, not the (ucl-lcl)/6 derivation
	// (which is sigma of the mean and would be divided by sqrt(n) twice).
	char := &model.Characteristic{
		ID: "c1", SubgroupSize: 4, MinMeasurements: 4, SubgroupMode: model.Standardized,
		StoredCenterLine: floatPtr(100), StoredSigma: floatPtr(8),
		UCL: floatPtr(112), LCL: floatPtr(88),
	}
	eng, _, _ := newTestEngine(t, char)

	result, err := eng.ProcessSample(ctx, "c1", []float64{108, 108, 108, 108}, SampleContext{})
	if err != nil {
		t.Fatalf("ProcessSample: %v", err)
	}
	// sigma_mean = 8/sqrt(4) = 4; z = (108-100)/4 = 2
	if result.SigmaDistance < 1.9 || result.SigmaDistance > 2.1 {
		t.Errorf("SigmaDistance = %v, want ~2", result.SigmaDistance)
	}
}

func TestProcessSampleVariableLimitsIgnoresDerivedLimits(t *testing.T) {
	ctx := context.Background()
	char := &model.Characteristic{
		ID: "c1", SubgroupSize: 4, MinMeasurements: 4, SubgroupMode: model.VariableLimits,
		StoredCenterLine: floatPtr(100), StoredSigma: floatPtr(8),
		UCL: floatPtr(112), LCL: floatPtr(88),
	}
	eng, repo, _ := newTestEngine(t, char)

	result, err := eng.ProcessSample(ctx, "c1", []float64{100, 100, 100, 100}, SampleContext{})
	if err != nil {
		t.Fatalf("ProcessSample: %v", err)
	}

	sample, err := repo.Samples.GetByID(ctx, result.SampleID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	// sigma_mean = 8/sqrt(4) = 4; effective limits = 100 +- 12
	if sample.EffectiveUCL == nil || *sample.EffectiveUCL < 111.9 || *sample.EffectiveUCL > 112.1 {
		t.Errorf("EffectiveUCL = %v, want ~112", sample.EffectiveUCL)
	}
	if sample.EffectiveLCL == nil || *sample.EffectiveLCL < 87.9 || *sample.EffectiveLCL > 88.1 {
		t.Errorf("EffectiveLCL = %v, want ~88", sample.EffectiveLCL)
	}
}

func TestProcessSampleCharacteristicNotFound(t *testing.T) {
	ctx := context.Background()
	eng, _, _ := newTestEngine(t, &model.Characteristic{ID: "other"})
	_, err := eng.ProcessSample(ctx, "missing", []float64{1}, SampleContext{})
	if !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
