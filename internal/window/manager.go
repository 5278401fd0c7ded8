package window

import (
	"container/list"
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/openspc/engine/internal/model"
	"github.com/openspc/engine/internal/repository"
	"github.com/openspc/engine/internal/statistics"
)

// DefaultManagerCapacity is the default number of characteristics whose
// windows the manager keeps resident before evicting by LRU.
const DefaultManagerCapacity = 1000

// entry is one characteristic's cache slot: the window and a mutex that
// guards every mutation of it. The mutex is embedded in the entry, not
// held separately by the manager, so it is evicted together with the
// window it guards and lock acquisition never needs to cross the key
// boundary.
type entry struct {
	mu     sync.Mutex
	charID string
	window *RollingWindow
}

// Manager maintains Map<CharacteristicId, Window> with LRU ordering and a
// bounded capacity. The map itself is guarded by a short
// critical section only for insert/evict/move-to-front bookkeeping; window
// mutation happens under the per-entry lock, outside that section.
type Manager struct {
	capacity   int
	windowSize int
	sampleRepo repository.SampleRepo
	excludeOOC bool

	mapMu     sync.Mutex
	items     map[string]*list.Element // char id -> list element wrapping *entry
	evictList *list.List

	loadGroup singleflight.Group
}

// NewManager builds a window manager backed by sampleRepo for hydration.
// capacity and windowSize fall back to their defaults when <= 0.
func NewManager(sampleRepo repository.SampleRepo, capacity, windowSize int) *Manager {
	if capacity <= 0 {
		capacity = DefaultManagerCapacity
	}
	if windowSize <= 0 {
		windowSize = DefaultCapacity
	}
	return &Manager{
		capacity:   capacity,
		windowSize: windowSize,
		sampleRepo: sampleRepo,
		excludeOOC: true,
		items:      make(map[string]*list.Element),
		evictList:  list.New(),
	}
}

// acquire returns the entry for charID, creating and hydrating it on a
// cache miss, and moves it to the MRU end. The returned entry's mutex is
// NOT held by the caller; callers lock it themselves around window
// mutation so the map's critical section never nests inside a window's.
func (m *Manager) acquire(ctx context.Context, charID string) (*entry, error) {
	m.mapMu.Lock()
	if elem, ok := m.items[charID]; ok {
		m.evictList.MoveToFront(elem)
		ent := elem.Value.(*entry)
		m.mapMu.Unlock()
		return ent, nil
	}
	m.mapMu.Unlock()

	// Cold path: collapse concurrent loads of the same characteristic into
	// one repository round-trip.
	loadedAny, err, _ := m.loadGroup.Do(charID, func() (any, error) {
		rows, err := m.sampleRepo.GetRollingWindowData(ctx, charID, m.windowSize, m.excludeOOC)
		if err != nil {
			return nil, err
		}
		w := NewRollingWindow(m.windowSize)
		for _, row := range rows {
			w.Append(hydratePoint(row))
		}
		return w, nil
	})
	if err != nil {
		return nil, err
	}

	m.mapMu.Lock()
	defer m.mapMu.Unlock()
	// Another goroutine may have inserted while we were loading (it would
	// have gone through the same singleflight key and arrived at the same
	// result, but the map insert itself is still serialized here).
	if elem, ok := m.items[charID]; ok {
		m.evictList.MoveToFront(elem)
		return elem.Value.(*entry), nil
	}

	ent := &entry{charID: charID, window: loadedAny.(*RollingWindow)}
	elem := m.evictList.PushFront(ent)
	m.items[charID] = elem
	m.evictIfOverCapacityLocked()
	return ent, nil
}

// evictIfOverCapacityLocked drops the LRU-end entry (and its per-key
// lock, by dropping the entry that embeds it) when over capacity. Must be
// called with mapMu held.
func (m *Manager) evictIfOverCapacityLocked() {
	for len(m.items) > m.capacity {
		back := m.evictList.Back()
		if back == nil {
			return
		}
		m.evictList.Remove(back)
		delete(m.items, back.Value.(*entry).charID)
	}
}

// hydratePoint converts a repository row into a WindowPoint: value is the
// arithmetic mean of measurements, range is max-min when n>1, and the
// zone is a placeholder until boundaries are set by the caller.
func hydratePoint(row repository.WindowRow) WindowPoint {
	p := WindowPoint{
		SampleID:  row.SampleID,
		Timestamp: row.Timestamp,
		Value:     statistics.Mean(row.Values),
	}
	if len(row.Values) > 1 {
		r := statistics.Range(row.Values)
		p.Range = &r
	}
	return p
}

// WindowSize reports the per-characteristic window depth hydrated loads
// are bounded by.
func (m *Manager) WindowSize() int { return m.windowSize }

// Get returns the window for charID, loading it from storage on first
// access.
func (m *Manager) Get(ctx context.Context, charID string) (*RollingWindow, error) {
	ent, err := m.acquire(ctx, charID)
	if err != nil {
		return nil, err
	}
	ent.mu.Lock()
	defer ent.mu.Unlock()
	return ent.window, nil
}

// AddSampleParams bundles the per-sample classification inputs AddSample
// needs to append a correctly classified point.
type AddSampleParams struct {
	SampleID     string
	Timestamp    time.Time
	Value        float64
	Range        *float64
	Boundaries   statistics.ZoneBoundaries
	Mode         model.SubgroupMode
	ActualN      int
	StoredSigma  float64
	StoredCenter float64
	EffectiveUCL *float64
	EffectiveLCL *float64
}

// AddSample loads the window if needed, ensures boundaries are set,
// appends a new point classified under the characteristic's mode, and
// returns the admitted point along with any point it evicted.
func (m *Manager) AddSample(ctx context.Context, charID string, p AddSampleParams) (admitted WindowPoint, evicted *WindowPoint, err error) {
	ent, err := m.acquire(ctx, charID)
	if err != nil {
		return WindowPoint{}, nil, err
	}
	ent.mu.Lock()
	defer ent.mu.Unlock()

	if _, set := ent.window.Boundaries(); !set {
		ent.window.SetBoundaries(p.Boundaries)
	}

	zone, above, dist, err := ent.window.ClassifyForMode(p.Value, p.Mode, p.ActualN, p.StoredSigma, p.StoredCenter, p.EffectiveUCL, p.EffectiveLCL)
	if err != nil {
		return WindowPoint{}, nil, err
	}

	point := WindowPoint{
		SampleID:      p.SampleID,
		Timestamp:     p.Timestamp,
		Value:         p.Value,
		Range:         p.Range,
		Zone:          zone,
		IsAboveCenter: above,
		SigmaDistance: dist,
	}

	// A cold hydration that ran after the sample was persisted already
	// restored its row; replace that placeholder with the classified
	// point instead of admitting it twice.
	if recent := ent.window.Recent(1); len(recent) == 1 && recent[0].SampleID == p.SampleID {
		ent.window.ReplaceTail(point)
		return point, nil, nil
	}

	ev, didEvict := ent.window.Append(point)
	if didEvict {
		evicted = ev
	}
	return point, evicted, nil
}

// Invalidate drops the cached window for charID.
func (m *Manager) Invalidate(charID string) {
	m.mapMu.Lock()
	defer m.mapMu.Unlock()
	if elem, ok := m.items[charID]; ok {
		m.evictList.Remove(elem)
		delete(m.items, charID)
	}
}

// UpdateBoundaries swaps boundaries and reclassifies all points, if the
// window for charID is cached. A cache miss is a no-op: there
// is nothing resident to reclassify, and the next Get will hydrate fresh.
func (m *Manager) UpdateBoundaries(ctx context.Context, charID string, b statistics.ZoneBoundaries) {
	m.mapMu.Lock()
	elem, ok := m.items[charID]
	if !ok {
		m.mapMu.Unlock()
		return
	}
	m.evictList.MoveToFront(elem)
	ent := elem.Value.(*entry)
	m.mapMu.Unlock()

	ent.mu.Lock()
	defer ent.mu.Unlock()
	ent.window.SetBoundaries(b)
}
