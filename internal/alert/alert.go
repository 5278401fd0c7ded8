// Package alert implements the alert manager: violation
// persistence on rule trigger, the acknowledgement workflow (with the
// fixed reason-code catalog), and read-only aggregate queries.
package alert

import (
	"context"
	"fmt"
	"time"

	"github.com/openspc/engine/internal/errs"
	"github.com/openspc/engine/internal/eventbus"
	"github.com/openspc/engine/internal/model"
	"github.com/openspc/engine/internal/repository"
	"github.com/openspc/engine/internal/rules"
	"github.com/openspc/engine/internal/window"
)

// ReasonCode is one of the fixed acknowledgement reason codes.
type ReasonCode string

const (
	ReasonToolChange          ReasonCode = "TOOL_CHANGE"
	ReasonMeasurementError    ReasonCode = "MEASUREMENT_ERROR"
	ReasonMaterialLotChange   ReasonCode = "MATERIAL_LOT_CHANGE"
	ReasonOperatorError       ReasonCode = "OPERATOR_ERROR"
	ReasonEquipmentAdjustment ReasonCode = "EQUIPMENT_ADJUSTMENT"
	ReasonCalibration         ReasonCode = "CALIBRATION"
	ReasonProcessChange       ReasonCode = "PROCESS_CHANGE"
	ReasonEnvironmental       ReasonCode = "ENVIRONMENTAL"
	ReasonSetupChange         ReasonCode = "SETUP_CHANGE"
	ReasonInvestigationOngoing ReasonCode = "INVESTIGATION_ONGOING"
	ReasonOther               ReasonCode = "OTHER"
)

// ReasonCatalog lists every known reason code, in display order.
var ReasonCatalog = []ReasonCode{
	ReasonToolChange,
	ReasonMeasurementError,
	ReasonMaterialLotChange,
	ReasonOperatorError,
	ReasonEquipmentAdjustment,
	ReasonCalibration,
	ReasonProcessChange,
	ReasonEnvironmental,
	ReasonSetupChange,
	ReasonInvestigationOngoing,
	ReasonOther,
}

// IsValidReason reports whether code is one of the catalog values.
func IsValidReason(code ReasonCode) bool {
	for _, r := range ReasonCatalog {
		if r == code {
			return true
		}
	}
	return false
}

// Manager is the alert manager.
type Manager struct {
	violations repository.ViolationRepo
	samples    repository.SampleRepo
	windows    *window.Manager
	bus        *eventbus.Bus
}

// New builds a Manager over the given collaborators.
func New(violations repository.ViolationRepo, samples repository.SampleRepo, windows *window.Manager, bus *eventbus.Bus) *Manager {
	return &Manager{violations: violations, samples: samples, windows: windows, bus: bus}
}

// CreateViolations persists one record per triggered rule and notifies
// the event bus for each. requireAck reports, per rule ID,
// whether that rule's violations need acknowledgement before a
// characteristic is considered back in control — callers typically pass
// char.RuleEnableByID(ruleID).RequireAcknowledgement, the same lookup
// engine.ProcessSample uses for the violations it creates inline.
// Handler errors in the bus's fire-and-forget Publish never roll back
// persistence.
func (m *Manager) CreateViolations(ctx context.Context, sampleID, characteristicID string, results []rules.RuleResult, requireAck func(ruleID int) bool) ([]*model.Violation, error) {
	out := make([]*model.Violation, 0, len(results))
	for _, res := range results {
		needsAck := true
		if requireAck != nil {
			needsAck = requireAck(res.RuleID)
		}
		v, err := m.violations.Create(ctx, sampleID, res.RuleID, res.RuleName, res.Severity, false, needsAck)
		if err != nil {
			return nil, fmt.Errorf("alert: persist violation for rule %d: %w", res.RuleID, err)
		}
		out = append(out, v)

		if m.bus != nil {
			m.bus.Publish(eventbus.NewEvent(eventbus.ViolationCreated, eventbus.ViolationCreatedPayload{
				ViolationID: v.ID,
				SampleID:    sampleID,
				RuleID:      res.RuleID,
				Severity:    string(res.Severity),
			}))
		}
	}
	return out, nil
}

// AcknowledgeParams bundles Acknowledge's inputs.
type AcknowledgeParams struct {
	ViolationID      string
	User             string
	Reason           ReasonCode
	ReasonDetail     string // required when Reason == ReasonOther
	ExcludeSample    bool
	CharacteristicID string // needed to invalidate the window when ExcludeSample is set
}

// Acknowledge sets acknowledgement state on a violation, optionally
// excluding its owning sample, and publishes ViolationAcknowledged.
// Rejects if the violation is already acknowledged or the reason
// code is not in the catalog.
func (m *Manager) Acknowledge(ctx context.Context, p AcknowledgeParams) (*model.Violation, error) {
	if !IsValidReason(p.Reason) {
		return nil, fmt.Errorf("alert: unknown reason code %q: %w", p.Reason, errs.ErrValidation)
	}
	if p.Reason == ReasonOther && p.ReasonDetail == "" {
		return nil, fmt.Errorf("alert: reason OTHER requires a detail: %w", errs.ErrValidation)
	}

	reasonText := string(p.Reason)
	if p.Reason == ReasonOther {
		reasonText = p.ReasonDetail
	}

	v, err := m.violations.Acknowledge(ctx, p.ViolationID, p.User, reasonText)
	if err != nil {
		return nil, fmt.Errorf("alert: acknowledge violation %s: %w", p.ViolationID, err)
	}

	if p.ExcludeSample {
		if _, err := m.samples.SetExcluded(ctx, v.SampleID, true, p.User); err != nil {
			return nil, fmt.Errorf("alert: exclude sample %s: %w", v.SampleID, err)
		}
		if p.CharacteristicID != "" {
			m.windows.Invalidate(p.CharacteristicID)
		}
	}

	if m.bus != nil {
		m.bus.Publish(eventbus.NewEvent(eventbus.ViolationAcknowledged, eventbus.ViolationAcknowledgedPayload{
			ViolationID: v.ID,
			By:          p.User,
			Reason:      reasonText,
		}))
	}

	return v, nil
}

// Stats is the read-only aggregate returned by GetViolationStats.
type Stats struct {
	Total          int
	Acknowledged   int
	Unacknowledged int
	BySeverity     map[model.Severity]int
}

// GetUnacknowledgedCount counts unacknowledged violations of one
// characteristic's samples. A nil characteristicID returns ErrValidation;
// there is no count across all characteristics.
func (m *Manager) GetUnacknowledgedCount(ctx context.Context, characteristicID *string) (int, error) {
	stats, err := m.GetViolationStats(ctx, characteristicID, nil, nil)
	if err != nil {
		return 0, err
	}
	return stats.Unacknowledged, nil
}

// GetViolationStats aggregates violation counts for one characteristic,
// optionally filtered by a time range over the owning sample's timestamp.
// A nil characteristicID returns ErrValidation; there are no stats across
// all characteristics.
func (m *Manager) GetViolationStats(ctx context.Context, characteristicID *string, start, end *time.Time) (*Stats, error) {
	// ViolationRepo exposes no "all violations" query, only GetBySampleIDs,
	// so a fleet-wide aggregate has no backing call to make. Every caller
	// in practice scopes to one characteristic.
	if characteristicID == nil {
		return nil, fmt.Errorf("alert: global violation stats require a characteristic id: %w", errs.ErrValidation)
	}

	samples, err := m.samples.GetByCharacteristic(ctx, *characteristicID, start, end)
	if err != nil {
		return nil, fmt.Errorf("alert: load samples for stats: %w", err)
	}
	sampleIDs := make([]string, len(samples))
	for i, s := range samples {
		sampleIDs[i] = s.ID
	}

	bySample, err := m.violations.GetBySampleIDs(ctx, sampleIDs)
	if err != nil {
		return nil, fmt.Errorf("alert: load violations for stats: %w", err)
	}

	stats := &Stats{BySeverity: make(map[model.Severity]int)}
	for _, vs := range bySample {
		for _, v := range vs {
			stats.Total++
			stats.BySeverity[v.Severity]++
			if v.Acknowledged {
				stats.Acknowledged++
			} else {
				stats.Unacknowledged++
			}
		}
	}
	return stats, nil
}
