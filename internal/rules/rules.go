// Package rules implements the eight Nelson rules: pure
// functions over a window snapshot that each report either "not
// triggered" or a RuleResult. Dispatch is a tagged switch over rule id,
// not a slice of dynamically-dispatched rule values: the rule family is
// closed, so a switch keeps the whole catalog in one place.
package rules

import (
	"fmt"

	"github.com/openspc/engine/internal/errs"
	"github.com/openspc/engine/internal/model"
	"github.com/openspc/engine/internal/statistics"
	"github.com/openspc/engine/internal/window"
)

// RuleResult is a triggered rule.
type RuleResult struct {
	RuleID            int
	RuleName          string
	Severity          model.Severity
	InvolvedSampleIDs []string
	Message           string
}

const (
	RuleOutlier         = 1
	RuleShift           = 2
	RuleTrend           = 3
	RuleAlternator      = 4
	RuleZoneA           = 5
	RuleZoneB           = 6
	RuleStratification  = 7
	RuleMixture         = 8
)

var ruleNames = map[int]string{
	RuleOutlier:        "Outlier",
	RuleShift:          "Shift",
	RuleTrend:          "Trend",
	RuleAlternator:     "Alternator",
	RuleZoneA:          "Zone A",
	RuleZoneB:          "Zone B",
	RuleStratification: "Stratification",
	RuleMixture:        "Mixture",
}

var ruleSeverities = map[int]model.Severity{
	RuleOutlier:        model.SeverityCritical,
	RuleShift:          model.SeverityWarning,
	RuleTrend:          model.SeverityWarning,
	RuleAlternator:     model.SeverityWarning,
	RuleZoneA:          model.SeverityWarning,
	RuleZoneB:          model.SeverityWarning,
	RuleStratification: model.SeverityWarning,
	RuleMixture:        model.SeverityWarning,
}

// ruleMinPoints is the number of trailing window points each rule needs
// before it can evaluate at all.
var ruleMinPoints = map[int]int{
	RuleOutlier:        1,
	RuleShift:          9,
	RuleTrend:          6,
	RuleAlternator:     14,
	RuleZoneA:          3,
	RuleZoneB:          5,
	RuleStratification: 15,
	RuleMixture:        8,
}

// AllRuleIDs lists the eight rule ids in catalog order.
var AllRuleIDs = []int{1, 2, 3, 4, 5, 6, 7, 8}

// CheckAll runs every rule id in enabled against points, returning the
// ones that triggered, in rule-id order. A nil enabled set is treated
// as "all enabled".
func CheckAll(points []window.WindowPoint, enabled map[int]bool) []RuleResult {
	var out []RuleResult
	for _, id := range AllRuleIDs {
		if enabled != nil && !enabled[id] {
			continue
		}
		res, err := CheckOne(points, id)
		if err != nil {
			continue
		}
		if res != nil {
			out = append(out, *res)
		}
	}
	return out
}

// CheckOne evaluates a single rule id against points (chronological,
// oldest first, as returned by RollingWindow.Samples). Rules that lack
// enough history return (nil, nil): insufficient history means not
// triggered, never an error.
func CheckOne(points []window.WindowPoint, ruleID int) (*RuleResult, error) {
	need, ok := ruleMinPoints[ruleID]
	if !ok {
		return nil, fmt.Errorf("rules: unknown rule id %d: %w", ruleID, errs.ErrValidation)
	}
	if len(points) < need {
		return nil, nil
	}
	tail := points[len(points)-need:]

	switch ruleID {
	case RuleOutlier:
		return checkOutlier(tail)
	case RuleShift:
		return checkShift(tail)
	case RuleTrend:
		return checkTrend(tail)
	case RuleAlternator:
		return checkAlternator(tail)
	case RuleZoneA:
		return checkZoneLevel(tail, RuleZoneA, 2, 2)
	case RuleZoneB:
		return checkZoneLevel(tail, RuleZoneB, 1, 4)
	case RuleStratification:
		return checkStratification(tail)
	case RuleMixture:
		return checkMixture(tail)
	default:
		return nil, fmt.Errorf("rules: unknown rule id %d: %w", ruleID, errs.ErrValidation)
	}
}

func newResult(ruleID int, ids []string, message string) *RuleResult {
	return &RuleResult{
		RuleID:            ruleID,
		RuleName:          ruleNames[ruleID],
		Severity:          ruleSeverities[ruleID],
		InvolvedSampleIDs: ids,
		Message:           message,
	}
}

func sampleIDs(pts []window.WindowPoint) []string {
	ids := make([]string, len(pts))
	for i, p := range pts {
		ids[i] = p.SampleID
	}
	return ids
}

func checkOutlier(tail []window.WindowPoint) (*RuleResult, error) {
	last := tail[len(tail)-1]
	if last.Zone == statistics.BeyondUCL || last.Zone == statistics.BeyondLCL {
		return newResult(RuleOutlier, sampleIDs(tail), "point beyond control limit"), nil
	}
	return nil, nil
}

func checkShift(tail []window.WindowPoint) (*RuleResult, error) {
	side := tail[0].IsAboveCenter
	for _, p := range tail {
		if p.IsAboveCenter != side {
			return nil, nil
		}
	}
	return newResult(RuleShift, sampleIDs(tail), "nine consecutive points on one side of center"), nil
}

func checkTrend(tail []window.WindowPoint) (*RuleResult, error) {
	increasing, decreasing := true, true
	for i := 1; i < len(tail); i++ {
		if tail[i].Value <= tail[i-1].Value {
			increasing = false
		}
		if tail[i].Value >= tail[i-1].Value {
			decreasing = false
		}
	}
	if increasing || decreasing {
		return newResult(RuleTrend, sampleIDs(tail), "six consecutive points strictly trending"), nil
	}
	return nil, nil
}

func checkAlternator(tail []window.WindowPoint) (*RuleResult, error) {
	signs := make([]int, 0, len(tail)-1)
	for i := 1; i < len(tail); i++ {
		d := tail[i].Value - tail[i-1].Value
		switch {
		case d > 0:
			signs = append(signs, 1)
		case d < 0:
			signs = append(signs, -1)
		default:
			return nil, nil // a flat run breaks the strict alternation
		}
	}
	for i := 1; i < len(signs); i++ {
		if signs[i] == signs[i-1] {
			return nil, nil
		}
	}
	return newResult(RuleAlternator, sampleIDs(tail), "fourteen points alternating direction"), nil
}

// zoneLevel reports the zone's distance-from-center rank (0=ZoneC,
// 1=ZoneB, 2=ZoneA, 3=beyond) and which side it is on.
func zoneLevel(z statistics.Zone) (level int, upper bool) {
	switch z {
	case statistics.BeyondUCL:
		return 3, true
	case statistics.ZoneAUpper:
		return 2, true
	case statistics.ZoneBUpper:
		return 1, true
	case statistics.ZoneCUpper:
		return 0, true
	case statistics.ZoneCLower:
		return 0, false
	case statistics.ZoneBLower:
		return 1, false
	case statistics.ZoneALower:
		return 2, false
	default: // BeyondLCL
		return 3, false
	}
}

func checkZoneLevel(tail []window.WindowPoint, ruleID, minLevel, minCount int) (*RuleResult, error) {
	upperCount, lowerCount := 0, 0
	for _, p := range tail {
		level, upper := zoneLevel(p.Zone)
		if level < minLevel {
			continue
		}
		if upper {
			upperCount++
		} else {
			lowerCount++
		}
	}
	if upperCount >= minCount || lowerCount >= minCount {
		return newResult(ruleID, sampleIDs(tail), fmt.Sprintf("%d of %d points at or beyond zone threshold on one side", minCount, len(tail))), nil
	}
	return nil, nil
}

func checkStratification(tail []window.WindowPoint) (*RuleResult, error) {
	for _, p := range tail {
		level, _ := zoneLevel(p.Zone)
		if level != 0 {
			return nil, nil
		}
	}
	return newResult(RuleStratification, sampleIDs(tail), "fifteen consecutive points hugging the center line"), nil
}

func checkMixture(tail []window.WindowPoint) (*RuleResult, error) {
	for _, p := range tail {
		level, _ := zoneLevel(p.Zone)
		if level == 0 {
			return nil, nil
		}
	}
	return newResult(RuleMixture, sampleIDs(tail), "eight consecutive points avoiding zone C"), nil
}
