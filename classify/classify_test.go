package classify

import (
	"testing"

	"github.com/WithSecureOpenSource/mittn/probe"
)

func mustRule(t *testing.T, name, pattern string) Rule {
	t.Helper()
	r, err := NewRule(name, pattern)
	if err != nil {
		t.Fatalf("NewRule(%q): %v", name, err)
	}
	return r
}

func TestClassifyProtocolError(t *testing.T) {
	v := Rules{}.Classify(probe.Observation{ProtocolError: "transport_error: connection reset"})
	if !v.Suspicious {
		t.Error("want suspicious for a non-empty protocol_error")
	}
}

func TestClassifyTimeout(t *testing.T) {
	v := Rules{}.Classify(probe.Observation{Timeout: true})
	if !v.Suspicious {
		t.Error("want suspicious for a timeout")
	}
}

func TestClassifyDisallowedStatus(t *testing.T) {
	r := Rules{Disallowed: map[string]bool{"500": true}}
	if v := r.Classify(probe.Observation{ResponseStatus: "500"}); !v.Suspicious {
		t.Error("want suspicious for a disallowed status")
	}
	if v := r.Classify(probe.Observation{ResponseStatus: "200"}); v.Suspicious {
		t.Error("want benign for an allowed-by-omission status")
	}
}

func TestClassifyAllowedSetPolarity(t *testing.T) {
	r := Rules{Allowed: map[string]bool{"200": true, "201": true}}
	if v := r.Classify(probe.Observation{ResponseStatus: "200"}); v.Suspicious {
		t.Error("want benign for a listed allowed status")
	}
	if v := r.Classify(probe.Observation{ResponseStatus: "500"}); !v.Suspicious {
		t.Error("want suspicious for a status outside the allowed set")
	}
}

func TestClassifyNoStatusRuleWhenBothSetsNil(t *testing.T) {
	v := Rules{}.Classify(probe.Observation{ResponseStatus: "500"})
	if v.Suspicious {
		t.Error("want benign when neither Disallowed nor Allowed is configured")
	}
}

func TestClassifyBodyErrorMatch(t *testing.T) {
	r := Rules{BodyErrors: []Rule{
		mustRule(t, "stacktrace", `internal server error`),
		mustRule(t, "sql", `sql syntax`),
	}}
	v := r.Classify(probe.Observation{ResponseBody: []byte("Caused by: INTERNAL SERVER ERROR at line 5")})
	if !v.Suspicious || !v.BodyErrorDetected {
		t.Fatalf("v = %+v, want suspicious with body error detected", v)
	}
	if v.BodyErrorMatched != "stacktrace" {
		t.Errorf("BodyErrorMatched = %q, want stacktrace", v.BodyErrorMatched)
	}
}

func TestClassifyBodyErrorJoinsMultipleMatches(t *testing.T) {
	r := Rules{BodyErrors: []Rule{
		mustRule(t, "a", `foo`),
		mustRule(t, "b", `bar`),
	}}
	v := r.Classify(probe.Observation{ResponseBody: []byte("foo and bar both present")})
	if v.BodyErrorMatched != "a, b" {
		t.Errorf("BodyErrorMatched = %q, want a, b", v.BodyErrorMatched)
	}
}

func TestClassifyBenignObservationIsZeroValue(t *testing.T) {
	v := Rules{Disallowed: map[string]bool{"500": true}}.Classify(probe.Observation{ResponseStatus: "200"})
	if v != (Verdict{}) {
		t.Errorf("v = %+v, want the zero Verdict", v)
	}
}
