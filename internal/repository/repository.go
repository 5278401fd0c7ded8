// Package repository declares the persistence boundary the engine core
// depends on: abstract sample, characteristic, and violation
// storage operations, independent of any specific database. The core
// never imports a concrete driver — callers supply an implementation.
package repository

import (
	"context"
	"time"

	"github.com/openspc/engine/internal/model"
)

// WindowRow is one hydrated point of rolling-window history, as returned
// by SampleRepo.GetRollingWindowData.
type WindowRow struct {
	SampleID  string
	Timestamp time.Time
	Values    []float64
}

// NewSampleParams carries everything CreateWithMeasurements needs to
// persist a sample and its measurements in one call.
type NewSampleParams struct {
	CharacteristicID string
	Values           []float64
	Batch            *string
	Operator         *string
	ActualN          int
	IsUndersized     bool
	EffectiveUCL     *float64
	EffectiveLCL     *float64
	ZScore           *float64
}

// SampleRepo is the persistence boundary for samples and their
// measurements.
type SampleRepo interface {
	CreateWithMeasurements(ctx context.Context, p NewSampleParams) (*model.Sample, error)
	GetByID(ctx context.Context, id string) (*model.Sample, error)
	GetByCharacteristic(ctx context.Context, charID string, start, end *time.Time) ([]*model.Sample, error)
	GetRollingWindowData(ctx context.Context, charID string, windowSize int, excludeExcluded bool) ([]WindowRow, error)
	GetBySampleIDs(ctx context.Context, ids []string) ([]*model.Sample, error)

	// SetExcluded flips a sample's is_excluded flag and appends an
	// EditHistory record. The acknowledgement workflow's
	// exclude-sample option is the only writer.
	SetExcluded(ctx context.Context, sampleID string, excluded bool, editedBy string) (*model.Sample, error)
}

// CharacteristicRepo is the persistence boundary for characteristics.
type CharacteristicRepo interface {
	GetByID(ctx context.Context, id string) (*model.Characteristic, error)
	GetWithRules(ctx context.Context, id string) (*model.Characteristic, error)
	GetWithDataSource(ctx context.Context, id string) (*model.Characteristic, error)
	GetByProviderType(ctx context.Context, providerType model.ProviderType) ([]*model.Characteristic, error)
}

// ViolationRepo is the persistence boundary for violations.
type ViolationRepo interface {
	Create(ctx context.Context, sampleID string, ruleID int, ruleName string, severity model.Severity, acknowledged, requiresAcknowledgement bool) (*model.Violation, error)
	GetBySample(ctx context.Context, sampleID string) ([]*model.Violation, error)
	GetBySampleIDs(ctx context.Context, ids []string) (map[string][]*model.Violation, error)
	Acknowledge(ctx context.Context, violationID, user, reason string) (*model.Violation, error)
}
