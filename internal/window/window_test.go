package window

import (
	"testing"

	"github.com/openspc/engine/internal/model"
	"github.com/openspc/engine/internal/statistics"
)

func TestRollingWindowAppendEvicts(t *testing.T) {
	w := NewRollingWindow(3)
	for i := 0; i < 3; i++ {
		if _, didEvict := w.Append(WindowPoint{SampleID: string(rune('a' + i))}); didEvict {
			t.Fatalf("unexpected eviction at i=%d", i)
		}
	}
	evicted, didEvict := w.Append(WindowPoint{SampleID: "d"})
	if !didEvict || evicted.SampleID != "a" {
		t.Fatalf("Append evicted = %+v, didEvict=%v, want SampleID=a", evicted, didEvict)
	}
	if w.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", w.Len())
	}
}

func TestRollingWindowSamplesAndRecent(t *testing.T) {
	w := NewRollingWindow(5)
	for _, id := range []string{"a", "b", "c"} {
		w.Append(WindowPoint{SampleID: id})
	}
	samples := w.Samples()
	if len(samples) != 3 || samples[0].SampleID != "a" || samples[2].SampleID != "c" {
		t.Errorf("Samples() = %+v, want oldest-first a,b,c", samples)
	}
	recent := w.Recent(2)
	if len(recent) != 2 || recent[0].SampleID != "c" || recent[1].SampleID != "b" {
		t.Errorf("Recent(2) = %+v, want newest-first c,b", recent)
	}
}

func TestRollingWindowClassifyRequiresBoundaries(t *testing.T) {
	w := NewRollingWindow(5)
	if _, _, _, err := w.Classify(10); err != ErrBoundariesNotSet {
		t.Errorf("Classify before SetBoundaries: err = %v, want ErrBoundariesNotSet", err)
	}
}

func TestRollingWindowSetBoundariesReclassifies(t *testing.T) {
	w := NewRollingWindow(5)
	w.Append(WindowPoint{SampleID: "a", Value: 106})
	w.Append(WindowPoint{SampleID: "b", Value: 100})

	w.SetBoundaries(statistics.NewZoneBoundaries(100, 2))

	samples := w.Samples()
	if samples[0].Zone != statistics.BeyondUCL {
		t.Errorf("point a zone = %v, want BeyondUCL", samples[0].Zone)
	}
	if samples[1].Zone != statistics.ZoneCUpper {
		t.Errorf("point b zone = %v, want ZoneCUpper", samples[1].Zone)
	}
}

func TestRollingWindowClassifyForModeStandardized(t *testing.T) {
	w := NewRollingWindow(5)
	zone, above, _, err := w.ClassifyForMode(2.5, model.Standardized, 1, 0, 0, nil, nil)
	if err != nil {
		t.Fatalf("ClassifyForMode: %v", err)
	}
	if zone != statistics.ZoneAUpper || !above {
		t.Errorf("ClassifyForMode standardized z=2.5: zone=%v above=%v, want ZoneAUpper/true", zone, above)
	}
}

func TestRollingWindowClassifyForModeVariableLimits(t *testing.T) {
	w := NewRollingWindow(5)
	ucl, lcl := 112.0, 88.0
	zone, _, _, err := w.ClassifyForMode(113, model.VariableLimits, 4, 4, 100, &ucl, &lcl)
	if err != nil {
		t.Fatalf("ClassifyForMode: %v", err)
	}
	if zone != statistics.BeyondUCL {
		t.Errorf("zone = %v, want BeyondUCL", zone)
	}
}
