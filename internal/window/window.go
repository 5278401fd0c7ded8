// Package window implements the rolling-window cache the engine consults
// on every sample: a bounded FIFO of classified points per characteristic
// (RollingWindow), and an LRU-managed map of those windows keyed by
// characteristic id (Manager) that hydrates cold entries from a
// repository.
package window

import (
	"errors"
	"math"
	"time"

	"github.com/openspc/engine/internal/model"
	"github.com/openspc/engine/internal/statistics"
)

// DefaultCapacity is the default rolling-window depth.
const DefaultCapacity = 25

// ErrBoundariesNotSet is returned by Classify when no boundaries have
// been set on the window yet.
var ErrBoundariesNotSet = errors.New("window: boundaries not set")

// WindowPoint is one classified observation resident in a
// RollingWindow.
type WindowPoint struct {
	SampleID      string
	Timestamp     time.Time
	Value         float64
	Range         *float64 // max-min across the sample's measurements, nil when n==1
	Zone          statistics.Zone
	IsAboveCenter bool
	SigmaDistance float64
}

// RollingWindow is a bounded FIFO of WindowPoint for one characteristic.
// It is explicitly single-threaded; Manager adds concurrency safety via a
// lock that lives alongside each window, never inside it.
type RollingWindow struct {
	capacity   int
	points     []WindowPoint
	boundaries *statistics.ZoneBoundaries
}

// NewRollingWindow builds an empty window of the given capacity. A
// non-positive capacity falls back to DefaultCapacity.
func NewRollingWindow(capacity int) *RollingWindow {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &RollingWindow{capacity: capacity}
}

// Append pushes point to the tail. If the window is already at capacity,
// the head point is evicted first and returned.
func (w *RollingWindow) Append(point WindowPoint) (evicted *WindowPoint, didEvict bool) {
	if len(w.points) >= w.capacity {
		ev := w.points[0]
		w.points = w.points[1:]
		evicted, didEvict = &ev, true
	}
	w.points = append(w.points, point)
	return evicted, didEvict
}

// ReplaceTail overwrites the newest resident point. No-op on an empty
// window.
func (w *RollingWindow) ReplaceTail(point WindowPoint) {
	if len(w.points) == 0 {
		return
	}
	w.points[len(w.points)-1] = point
}

// Samples returns resident points oldest-first.
func (w *RollingWindow) Samples() []WindowPoint {
	out := make([]WindowPoint, len(w.points))
	copy(out, w.points)
	return out
}

// Recent returns up to k newest points, newest first.
func (w *RollingWindow) Recent(k int) []WindowPoint {
	if k > len(w.points) {
		k = len(w.points)
	}
	out := make([]WindowPoint, k)
	for i := 0; i < k; i++ {
		out[i] = w.points[len(w.points)-1-i]
	}
	return out
}

// Len reports how many points are resident.
func (w *RollingWindow) Len() int { return len(w.points) }

// Boundaries returns the stored zone boundaries, if any.
func (w *RollingWindow) Boundaries() (statistics.ZoneBoundaries, bool) {
	if w.boundaries == nil {
		return statistics.ZoneBoundaries{}, false
	}
	return *w.boundaries, true
}

// SetBoundaries stores b and reclassifies every resident point.
// Required before Classify works.
func (w *RollingWindow) SetBoundaries(b statistics.ZoneBoundaries) {
	w.boundaries = &b
	for i := range w.points {
		zone, above, dist := statistics.Classify(w.points[i].Value, b)
		w.points[i].Zone = zone
		w.points[i].IsAboveCenter = above
		w.points[i].SigmaDistance = dist
	}
}

// Classify applies the stored boundaries to value. Fails with
// ErrBoundariesNotSet if none have been set.
func (w *RollingWindow) Classify(value float64) (zone statistics.Zone, isAboveCenter bool, sigmaDistance float64, err error) {
	if w.boundaries == nil {
		return "", false, 0, ErrBoundariesNotSet
	}
	zone, isAboveCenter, sigmaDistance = statistics.Classify(value, *w.boundaries)
	return zone, isAboveCenter, sigmaDistance, nil
}

// ClassifyForMode is the mode-aware classifier: in
// STANDARDIZED mode, value is already a z-score and is thresholded
// against fixed ±1/±2/±3 zones; in VARIABLE_LIMITS mode, zones are drawn
// from storedCenter ± k·(storedSigma/√n) with beyond-limit judged against
// the per-point effective limits; otherwise it falls back to the
// boundaries-based classifier.
func (w *RollingWindow) ClassifyForMode(
	value float64,
	mode model.SubgroupMode,
	n int,
	storedSigma, storedCenter float64,
	effectiveUCL, effectiveLCL *float64,
) (zone statistics.Zone, isAboveCenter bool, sigmaDistance float64, err error) {
	switch mode {
	case model.Standardized:
		zone, isAboveCenter, sigmaDistance = statistics.ClassifyStandardized(value)
		return zone, isAboveCenter, sigmaDistance, nil
	case model.VariableLimits:
		if effectiveUCL == nil || effectiveLCL == nil || n <= 0 {
			return "", false, 0, errors.New("window: variable-limits classification requires effective limits and n>0")
		}
		sigmaOfMean := storedSigma / math.Sqrt(float64(n))
		zone, isAboveCenter, sigmaDistance = statistics.ClassifyVariableLimits(value, storedCenter, sigmaOfMean, *effectiveUCL, *effectiveLCL)
		return zone, isAboveCenter, sigmaDistance, nil
	default:
		return w.Classify(value)
	}
}
