package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/openspc/engine/internal/errs"
	"github.com/openspc/engine/internal/model"
)

// memoryState is the shared storage backing all three in-memory repos:
// a single sync.RWMutex over plain maps, appropriate
// because this is a test double, not a concurrency model meant to
// generalize to a real backend.
type memoryState struct {
	mu sync.RWMutex

	characteristics map[string]*model.Characteristic
	samples         map[string]*model.Sample
	violations      map[string]*model.Violation
	// sampleOrder preserves insertion order per characteristic for
	// deterministic windowing and range queries.
	sampleOrder map[string][]string
}

func newMemoryState() *memoryState {
	return &memoryState{
		characteristics: make(map[string]*model.Characteristic),
		samples:         make(map[string]*model.Sample),
		violations:      make(map[string]*model.Violation),
		sampleOrder:     make(map[string][]string),
	}
}

// Memory bundles the three repository facades over one shared state, so
// callers can wire a single in-memory backend and hand each facade to the
// component that wants it (cmd/spcdemo, tests).
type Memory struct {
	Characteristics *MemoryCharacteristicRepo
	Samples         *MemorySampleRepo
	Violations      *MemoryViolationRepo
}

// NewMemory builds an empty in-memory repository set.
func NewMemory() *Memory {
	state := newMemoryState()
	return &Memory{
		Characteristics: &MemoryCharacteristicRepo{state: state},
		Samples:         &MemorySampleRepo{state: state},
		Violations:      &MemoryViolationRepo{state: state},
	}
}

// MemoryCharacteristicRepo implements CharacteristicRepo.
type MemoryCharacteristicRepo struct{ state *memoryState }

// Put registers (or replaces) a characteristic. Test/demo setup helper,
// not part of the CharacteristicRepo contract.
func (r *MemoryCharacteristicRepo) Put(c *model.Characteristic) {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	r.state.characteristics[c.ID] = c
}

func (r *MemoryCharacteristicRepo) GetByID(ctx context.Context, id string) (*model.Characteristic, error) {
	r.state.mu.RLock()
	defer r.state.mu.RUnlock()
	c, ok := r.state.characteristics[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return c, nil
}

func (r *MemoryCharacteristicRepo) GetWithRules(ctx context.Context, id string) (*model.Characteristic, error) {
	return r.GetByID(ctx, id)
}

func (r *MemoryCharacteristicRepo) GetWithDataSource(ctx context.Context, id string) (*model.Characteristic, error) {
	return r.GetByID(ctx, id)
}

func (r *MemoryCharacteristicRepo) GetByProviderType(ctx context.Context, providerType model.ProviderType) ([]*model.Characteristic, error) {
	r.state.mu.RLock()
	defer r.state.mu.RUnlock()
	var out []*model.Characteristic
	for _, c := range r.state.characteristics {
		if c.ProviderType == providerType {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// MemorySampleRepo implements SampleRepo.
type MemorySampleRepo struct{ state *memoryState }

func (r *MemorySampleRepo) CreateWithMeasurements(ctx context.Context, p NewSampleParams) (*model.Sample, error) {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()

	sampleID := uuid.NewString()
	measurements := make([]model.Measurement, len(p.Values))
	for i, v := range p.Values {
		measurements[i] = model.Measurement{
			ID:       uuid.NewString(),
			SampleID: sampleID,
			Index:    i,
			Value:    v,
		}
	}

	s := &model.Sample{
		ID:               sampleID,
		CharacteristicID: p.CharacteristicID,
		Timestamp:        time.Now().UTC(),
		Batch:            p.Batch,
		Operator:         p.Operator,
		ActualN:          p.ActualN,
		IsUndersized:     p.IsUndersized,
		ZScore:           p.ZScore,
		EffectiveUCL:     p.EffectiveUCL,
		EffectiveLCL:     p.EffectiveLCL,
		Measurements:     measurements,
	}

	r.state.samples[sampleID] = s
	r.state.sampleOrder[p.CharacteristicID] = append(r.state.sampleOrder[p.CharacteristicID], sampleID)
	return s, nil
}

func (r *MemorySampleRepo) GetByID(ctx context.Context, id string) (*model.Sample, error) {
	r.state.mu.RLock()
	defer r.state.mu.RUnlock()
	s, ok := r.state.samples[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return s, nil
}

func (r *MemorySampleRepo) GetByCharacteristic(ctx context.Context, charID string, start, end *time.Time) ([]*model.Sample, error) {
	r.state.mu.RLock()
	defer r.state.mu.RUnlock()

	var out []*model.Sample
	for _, id := range r.state.sampleOrder[charID] {
		s := r.state.samples[id]
		if start != nil && s.Timestamp.Before(*start) {
			continue
		}
		if end != nil && s.Timestamp.After(*end) {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

func (r *MemorySampleRepo) GetRollingWindowData(ctx context.Context, charID string, windowSize int, excludeExcluded bool) ([]WindowRow, error) {
	r.state.mu.RLock()
	defer r.state.mu.RUnlock()

	ids := r.state.sampleOrder[charID]
	var rows []WindowRow
	for _, id := range ids {
		s := r.state.samples[id]
		if excludeExcluded && s.IsExcluded {
			continue
		}
		rows = append(rows, WindowRow{
			SampleID:  s.ID,
			Timestamp: s.Timestamp,
			Values:    s.Values(),
		})
	}
	if len(rows) > windowSize {
		rows = rows[len(rows)-windowSize:]
	}
	return rows, nil
}

func (r *MemorySampleRepo) SetExcluded(ctx context.Context, sampleID string, excluded bool, editedBy string) (*model.Sample, error) {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()

	s, ok := r.state.samples[sampleID]
	if !ok {
		return nil, errs.ErrNotFound
	}

	oldValue := "false"
	if s.IsExcluded {
		oldValue = "true"
	}
	newValue := "false"
	if excluded {
		newValue = "true"
	}
	if oldValue != newValue {
		s.EditHistory = append(s.EditHistory, model.EditHistory{
			ID:        uuid.NewString(),
			SampleID:  sampleID,
			FieldName: "is_excluded",
			OldValue:  oldValue,
			NewValue:  newValue,
			EditedBy:  editedBy,
			EditedAt:  time.Now().UTC(),
		})
	}
	s.IsExcluded = excluded
	return s, nil
}

func (r *MemorySampleRepo) GetBySampleIDs(ctx context.Context, ids []string) ([]*model.Sample, error) {
	r.state.mu.RLock()
	defer r.state.mu.RUnlock()
	out := make([]*model.Sample, 0, len(ids))
	for _, id := range ids {
		if s, ok := r.state.samples[id]; ok {
			out = append(out, s)
		}
	}
	return out, nil
}

// MemoryViolationRepo implements ViolationRepo.
type MemoryViolationRepo struct{ state *memoryState }

func (r *MemoryViolationRepo) Create(ctx context.Context, sampleID string, ruleID int, ruleName string, severity model.Severity, acknowledged, requiresAcknowledgement bool) (*model.Violation, error) {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()

	v := &model.Violation{
		ID:                      uuid.NewString(),
		SampleID:                sampleID,
		RuleID:                  ruleID,
		RuleName:                ruleName,
		Severity:                severity,
		Acknowledged:            acknowledged,
		RequiresAcknowledgement: requiresAcknowledgement,
	}
	r.state.violations[v.ID] = v
	return v, nil
}

func (r *MemoryViolationRepo) GetBySample(ctx context.Context, sampleID string) ([]*model.Violation, error) {
	r.state.mu.RLock()
	defer r.state.mu.RUnlock()
	var out []*model.Violation
	for _, v := range r.state.violations {
		if v.SampleID == sampleID {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *MemoryViolationRepo) GetBySampleIDs(ctx context.Context, ids []string) (map[string][]*model.Violation, error) {
	r.state.mu.RLock()
	defer r.state.mu.RUnlock()
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	out := make(map[string][]*model.Violation)
	for _, v := range r.state.violations {
		if want[v.SampleID] {
			out[v.SampleID] = append(out[v.SampleID], v)
		}
	}
	return out, nil
}

func (r *MemoryViolationRepo) Acknowledge(ctx context.Context, violationID, user, reason string) (*model.Violation, error) {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()

	v, ok := r.state.violations[violationID]
	if !ok {
		return nil, errs.ErrNotFound
	}
	if v.Acknowledged {
		return nil, errs.ErrAlreadyAcknowledged
	}
	now := time.Now().UTC()
	v.Acknowledged = true
	v.AcknowledgedBy = &user
	v.AcknowledgedAt = &now
	v.AcknowledgeReason = &reason
	return v, nil
}

var (
	_ CharacteristicRepo = (*MemoryCharacteristicRepo)(nil)
	_ SampleRepo         = (*MemorySampleRepo)(nil)
	_ ViolationRepo      = (*MemoryViolationRepo)(nil)
)
