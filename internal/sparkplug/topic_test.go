package sparkplug

import (
	"errors"
	"testing"

	"github.com/openspc/engine/internal/errs"
)

func TestParseTopicNodeLevel(t *testing.T) {
	tp, err := ParseTopic("spBv1.0/spc/NDATA/node1")
	if err != nil {
		t.Fatalf("ParseTopic: %v", err)
	}
	if tp.GroupID != "spc" || tp.MessageType != "NDATA" || tp.EdgeNodeID != "node1" || tp.HasDeviceID {
		t.Errorf("ParseTopic = %+v, want group=spc type=NDATA edge=node1 no device", tp)
	}
}

func TestParseTopicDeviceLevel(t *testing.T) {
	tp, err := ParseTopic("spBv1.0/spc/DDATA/node1/device1")
	if err != nil {
		t.Fatalf("ParseTopic: %v", err)
	}
	if !tp.HasDeviceID || tp.DeviceID != "device1" {
		t.Errorf("ParseTopic = %+v, want device1", tp)
	}
}

func TestParseTopicRejectsWrongNamespace(t *testing.T) {
	_, err := ParseTopic("other/spc/NDATA/node1")
	if !errors.Is(err, errs.ErrDecode) {
		t.Fatalf("err = %v, want ErrDecode", err)
	}
}

func TestParseTopicRejectsUnknownMessageType(t *testing.T) {
	_, err := ParseTopic("spBv1.0/spc/BOGUS/node1")
	if !errors.Is(err, errs.ErrDecode) {
		t.Fatalf("err = %v, want ErrDecode", err)
	}
}

func TestParseTopicRejectsTooFewSegments(t *testing.T) {
	_, err := ParseTopic("spBv1.0/spc/NDATA")
	if !errors.Is(err, errs.ErrDecode) {
		t.Fatalf("err = %v, want ErrDecode", err)
	}
}

func TestBuildTopicRoundTrip(t *testing.T) {
	topic := BuildTopic("spc", "NDATA", "node1", "device1")
	if topic != "spBv1.0/spc/NDATA/node1/device1" {
		t.Errorf("BuildTopic = %q", topic)
	}
	tp, err := ParseTopic(topic)
	if err != nil {
		t.Fatalf("ParseTopic: %v", err)
	}
	if tp.DeviceID != "device1" {
		t.Errorf("round trip lost device id: %+v", tp)
	}
}

func TestBuildTopicNoDevice(t *testing.T) {
	topic := BuildTopic("spc", "NBIRTH", "node1", "")
	if topic != "spBv1.0/spc/NBIRTH/node1" {
		t.Errorf("BuildTopic = %q", topic)
	}
}

func TestMatchTopicPlusWildcard(t *testing.T) {
	if !MatchTopic("spBv1.0/+/NDATA/node1", "spBv1.0/spc/NDATA/node1") {
		t.Error("want + to match exactly one level")
	}
	if MatchTopic("spBv1.0/+/NDATA/node1", "spBv1.0/a/b/NDATA/node1") {
		t.Error("+ must not match multiple levels")
	}
}

func TestMatchTopicHashWildcard(t *testing.T) {
	if !MatchTopic("spBv1.0/spc/#", "spBv1.0/spc/NDATA/node1/device1") {
		t.Error("# should match any non-empty tail")
	}
	if !MatchTopic("spBv1.0/spc/#", "spBv1.0/spc") {
		t.Error("# should match zero trailing levels too")
	}
	if MatchTopic("spBv1.0/spc/#", "other/spc/NDATA") {
		t.Error("# must not match a different prefix")
	}
}

func TestMatchTopicExactOnlyMatchesItself(t *testing.T) {
	if !MatchTopic("spBv1.0/spc/NDATA/node1", "spBv1.0/spc/NDATA/node1") {
		t.Error("exact topic should match itself")
	}
	if MatchTopic("spBv1.0/spc/NDATA/node1", "spBv1.0/spc/NDATA/node2") {
		t.Error("exact topic should not match a different one")
	}
	if MatchTopic("spBv1.0/spc/NDATA/node1", "spBv1.0/spc/NDATA/node1/device1") {
		t.Error("exact topic should not match a longer one")
	}
}
