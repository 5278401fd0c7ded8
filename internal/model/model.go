// Package model defines the SPC engine's persistent entities:
// Characteristic, Sample, Measurement, Violation, and EditHistory, along
// with the enums and derived-field invariants that govern them.
package model

import "time"

// SubgroupMode selects how a characteristic's samples are statistically
// evaluated.
type SubgroupMode string

const (
	// NominalTolerance uses a fixed subgroup size and constant limits.
	NominalTolerance SubgroupMode = "NOMINAL_TOLERANCE"
	// Standardized plots z-scores so a fixed zone chart applies across
	// variable n.
	Standardized SubgroupMode = "STANDARDIZED"
	// VariableLimits recomputes limits per sample from the actual n.
	VariableLimits SubgroupMode = "VARIABLE_LIMITS"
)

// ProviderType distinguishes how a characteristic receives its samples.
type ProviderType string

const (
	// ProviderManual indicates samples are entered by an operator (or any
	// caller that is not the tag intake).
	ProviderManual ProviderType = "MANUAL"
	// ProviderMQTTTag indicates samples are assembled by the Sparkplug-B
	// tag intake from a streamed sensor topic.
	ProviderMQTTTag ProviderType = "MQTT_TAG"
)

// Severity is the violation severity level.
type Severity string

const (
	SeverityWarning  Severity = "WARNING"
	SeverityCritical Severity = "CRITICAL"
)

// RuleEnable records, per Nelson rule, whether it is active for a
// characteristic and whether its violations demand acknowledgement.
type RuleEnable struct {
	RuleID                int
	Enabled               bool
	RequireAcknowledgement bool
}

// Characteristic is the monitored quality attribute.
type Characteristic struct {
	ID          string
	Name        string
	Description string

	SubgroupSize    int
	MinMeasurements int // 0 means "unset": EffectiveMinMeasurements defaults to 1
	WarnBelowCount  int // 0 means "unset": EffectiveWarnBelowCount defaults to SubgroupSize

	SubgroupMode SubgroupMode

	Target *float64
	USL    *float64
	LSL    *float64

	UCL *float64
	LCL *float64

	StoredCenterLine *float64
	StoredSigma      *float64

	Rules []RuleEnable

	DataSourceID *string
	ProviderType ProviderType
}

// EffectiveMinMeasurements returns MinMeasurements, defaulting to 1 when
// unset.
func (c *Characteristic) EffectiveMinMeasurements() int {
	if c.MinMeasurements > 0 {
		return c.MinMeasurements
	}
	return 1
}

// EffectiveWarnBelowCount returns WarnBelowCount, defaulting to
// SubgroupSize when unset.
func (c *Characteristic) EffectiveWarnBelowCount() int {
	if c.WarnBelowCount > 0 {
		return c.WarnBelowCount
	}
	return c.SubgroupSize
}

// DerivedCenterLine returns (ucl+lcl)/2 when both limits are set, otherwise
// StoredCenterLine, otherwise false.
func (c *Characteristic) DerivedCenterLine() (float64, bool) {
	if c.UCL != nil && c.LCL != nil {
		return (*c.UCL + *c.LCL) / 2, true
	}
	if c.StoredCenterLine != nil {
		return *c.StoredCenterLine, true
	}
	return 0, false
}

// DerivedSigma returns (ucl-lcl)/6 when both limits are set, otherwise
// StoredSigma, otherwise false.
func (c *Characteristic) DerivedSigma() (float64, bool) {
	if c.UCL != nil && c.LCL != nil {
		return (*c.UCL - *c.LCL) / 6, true
	}
	if c.StoredSigma != nil {
		return *c.StoredSigma, true
	}
	return 0, false
}

// RuleEnableByID looks up the enable record for a rule id, defaulting to
// enabled+require-acknowledgement when the characteristic has no explicit
// record.
func (c *Characteristic) RuleEnableByID(ruleID int) RuleEnable {
	for _, r := range c.Rules {
		if r.RuleID == ruleID {
			return r
		}
	}
	return RuleEnable{RuleID: ruleID, Enabled: true, RequireAcknowledgement: true}
}

// EnabledRuleIDs returns the set of rule IDs enabled for this characteristic.
func (c *Characteristic) EnabledRuleIDs() map[int]bool {
	if len(c.Rules) == 0 {
		enabled := make(map[int]bool, 8)
		for id := 1; id <= 8; id++ {
			enabled[id] = true
		}
		return enabled
	}
	enabled := make(map[int]bool, len(c.Rules))
	for _, r := range c.Rules {
		if r.Enabled {
			enabled[r.RuleID] = true
		}
	}
	return enabled
}

// Measurement is a single numeric value within a Sample.
type Measurement struct {
	ID       string
	SampleID string
	Index    int
	Value    float64
}

// EditHistory records a manual correction to a Sample.
type EditHistory struct {
	ID        string
	SampleID  string
	FieldName string
	OldValue  string
	NewValue  string
	EditedBy  string
	EditedAt  time.Time
}

// Sample is one observation event.
type Sample struct {
	ID               string
	CharacteristicID string
	Timestamp        time.Time
	Batch            *string
	Operator         *string
	IsExcluded       bool

	ActualN       int
	IsUndersized  bool
	ZScore        *float64 // STANDARDIZED mode
	EffectiveUCL  *float64 // VARIABLE_LIMITS mode
	EffectiveLCL  *float64 // VARIABLE_LIMITS mode

	Measurements []Measurement
	EditHistory  []EditHistory
}

// Values returns the sample's measurement values in recorded index order.
func (s *Sample) Values() []float64 {
	vals := make([]float64, len(s.Measurements))
	for _, m := range s.Measurements {
		if m.Index >= 0 && m.Index < len(vals) {
			vals[m.Index] = m.Value
		}
	}
	return vals
}

// Violation is a rule trigger.
type Violation struct {
	ID       string
	SampleID string

	RuleID   int
	RuleName string
	Severity Severity

	Acknowledged      bool
	AcknowledgedBy    *string
	AcknowledgedAt    *time.Time
	AcknowledgeReason *string

	RequiresAcknowledgement bool
}
