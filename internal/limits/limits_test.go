package limits

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/openspc/engine/internal/errs"
	"github.com/openspc/engine/internal/eventbus"
	"github.com/openspc/engine/internal/model"
	"github.com/openspc/engine/internal/repository"
	"github.com/openspc/engine/internal/window"
)

func setup(t *testing.T, subgroupSize int) (*Calculator, *repository.Memory) {
	t.Helper()
	repo := repository.NewMemory()
	repo.Characteristics.Put(&model.Characteristic{ID: "char-1", SubgroupSize: subgroupSize})
	mgr := window.NewManager(repo.Samples, 10, 25)
	bus := eventbus.New()
	return NewCalculator(repo.Characteristics, repo.Samples, mgr, bus), repo
}

func TestCalculateMovingRangeMethodForN1(t *testing.T) {
	ctx := context.Background()
	calc, repo := setup(t, 1)
	for _, v := range []float64{10, 12, 11, 13, 12} {
		repo.Samples.CreateWithMeasurements(ctx, repository.NewSampleParams{CharacteristicID: "char-1", Values: []float64{v}, ActualN: 1})
	}

	result, err := calc.Calculate(ctx, Params{CharacteristicID: "char-1", MinSamples: 2})
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	if result.Method != MethodMovingRange {
		t.Errorf("Method = %s, want %s", result.Method, MethodMovingRange)
	}
	if result.SampleCount != 5 {
		t.Errorf("SampleCount = %d, want 5", result.SampleCount)
	}
}

func TestCalculateRBarD2MethodForSmallSubgroup(t *testing.T) {
	ctx := context.Background()
	calc, repo := setup(t, 4)
	for i := 0; i < 5; i++ {
		repo.Samples.CreateWithMeasurements(ctx, repository.NewSampleParams{
			CharacteristicID: "char-1",
			Values:           []float64{10, 11, 9, 10.5},
			ActualN:          4,
		})
	}

	result, err := calc.Calculate(ctx, Params{CharacteristicID: "char-1", MinSamples: 2})
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	if result.Method != MethodRBarD2 {
		t.Errorf("Method = %s, want %s", result.Method, MethodRBarD2)
	}
}

func TestCalculateSBarC4MethodForLargeSubgroup(t *testing.T) {
	ctx := context.Background()
	calc, repo := setup(t, 12)
	values := make([]float64, 12)
	for i := range values {
		values[i] = float64(10 + i%3)
	}
	for i := 0; i < 3; i++ {
		repo.Samples.CreateWithMeasurements(ctx, repository.NewSampleParams{CharacteristicID: "char-1", Values: values, ActualN: 12})
	}

	result, err := calc.Calculate(ctx, Params{CharacteristicID: "char-1", MinSamples: 2})
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	if result.Method != MethodSBarC4 {
		t.Errorf("Method = %s, want %s", result.Method, MethodSBarC4)
	}
}

func TestCalculateMovingRangeKnownValues(t *testing.T) {
	ctx := context.Background()
	calc, repo := setup(t, 1)
	for _, v := range []float64{10, 12, 11, 13, 10} {
		repo.Samples.CreateWithMeasurements(ctx, repository.NewSampleParams{CharacteristicID: "char-1", Values: []float64{v}, ActualN: 1})
	}

	// moving ranges 2,1,2,3 -> MR-bar 2.0 -> sigma 2.0/1.128
	result, err := calc.Calculate(ctx, Params{CharacteristicID: "char-1", MinSamples: 2})
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	checks := []struct {
		name string
		got  float64
		want float64
	}{
		{"center_line", result.CenterLine, 11.2},
		{"sigma", result.Sigma, 1.773},
		{"ucl", result.UCL, 16.52},
		{"lcl", result.LCL, 5.88},
	}
	for _, c := range checks {
		if c.got < c.want-0.01 || c.got > c.want+0.01 {
			t.Errorf("%s = %v, want %v +-0.01", c.name, c.got, c.want)
		}
	}
}

func TestCalculateInsufficientSamples(t *testing.T) {
	ctx := context.Background()
	calc, repo := setup(t, 1)
	repo.Samples.CreateWithMeasurements(ctx, repository.NewSampleParams{CharacteristicID: "char-1", Values: []float64{10}, ActualN: 1})

	_, err := calc.Calculate(ctx, Params{CharacteristicID: "char-1", MinSamples: 5})
	if !errors.Is(err, errs.ErrInsufficientSamples) {
		t.Fatalf("err = %v, want ErrInsufficientSamples", err)
	}
}

func TestCalculateCharacteristicNotFound(t *testing.T) {
	ctx := context.Background()
	calc, _ := setup(t, 1)
	_, err := calc.Calculate(ctx, Params{CharacteristicID: "missing", MinSamples: 1})
	if !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestRecalculateAndPersistWritesAndInvalidatesAndPublishes(t *testing.T) {
	ctx := context.Background()
	calc, repo := setup(t, 1)
	for _, v := range []float64{10, 12, 11, 13, 12} {
		repo.Samples.CreateWithMeasurements(ctx, repository.NewSampleParams{CharacteristicID: "char-1", Values: []float64{v}, ActualN: 1})
	}

	received := make(chan eventbus.Event, 1)
	bus := eventbus.New()
	bus.Subscribe(eventbus.ControlLimitsUpdated, func(ctx context.Context, ev eventbus.Event) error {
		received <- ev
		return nil
	})
	mgr := window.NewManager(repo.Samples, 10, 25)
	calc = NewCalculator(repo.Characteristics, repo.Samples, mgr, bus)

	// warm the window cache so Invalidate has something to drop
	mgr.Get(ctx, "char-1")

	char, _ := repo.Characteristics.GetByID(ctx, "char-1")
	result, err := calc.RecalculateAndPersist(ctx, char, Params{CharacteristicID: "char-1", MinSamples: 2})
	if err != nil {
		t.Fatalf("RecalculateAndPersist: %v", err)
	}
	if char.UCL == nil || *char.UCL != result.UCL {
		t.Errorf("char.UCL = %v, want %v", char.UCL, result.UCL)
	}

	select {
	case ev := <-received:
		payload := ev.Payload.(eventbus.ControlLimitsUpdatedPayload)
		if payload.CharacteristicID != "char-1" {
			t.Errorf("payload.CharacteristicID = %s, want char-1", payload.CharacteristicID)
		}
	case <-time.After(time.Second):
		t.Error("expected ControlLimitsUpdated to have been published")
	}
}
