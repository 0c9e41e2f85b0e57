// Package classify turns a probe observation into a verdict: is this
// worth recording as a finding, and why.
package classify

import (
	"regexp"
	"strings"

	"github.com/WithSecureOpenSource/mittn/probe"
)

// Rule is one compiled body-error pattern, carrying the name it
// reports in Verdict.BodyErrorMatched when it fires.
type Rule struct {
	Name    string
	Pattern *regexp.Regexp
}

// NewRule compiles pattern case-insensitively and names it name.
func NewRule(name, pattern string) (Rule, error) {
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return Rule{}, err
	}
	return Rule{Name: name, Pattern: re}, nil
}

// Rules is the classifier's configuration: an optional disallowed- or
// allowed-status set, and a list of body-error regexes.
//
// Exactly one of Disallowed or Allowed should be populated; if both
// are nil, status codes never contribute to the verdict.
type Rules struct {
	// Disallowed marks specific statuses as suspicious.
	Disallowed map[string]bool
	// Allowed, if non-nil, flips the polarity: any status NOT in this
	// set is suspicious. Checked only when Disallowed is nil.
	Allowed map[string]bool
	// BodyErrors are checked against the response body, OR-combined
	// with the status-code rule and the protocol_error/timeout rules.
	BodyErrors []Rule
}

// Verdict is the classifier's answer for one observation.
type Verdict struct {
	Suspicious        bool
	BodyErrorDetected bool
	BodyErrorMatched  string
}

// Classify applies every rule in r to obs, OR-combining them: any
// single rule firing makes the observation suspicious. A benign
// observation's Verdict is the zero value.
func (r Rules) Classify(obs probe.Observation) Verdict {
	var v Verdict

	if obs.ProtocolError != "" {
		v.Suspicious = true
	}
	if obs.Timeout {
		v.Suspicious = true
	}
	if r.statusSuspicious(obs.ResponseStatus) {
		v.Suspicious = true
	}
	if matched := r.matchBodyErrors(obs.ResponseBody); len(matched) > 0 {
		v.Suspicious = true
		v.BodyErrorDetected = true
		v.BodyErrorMatched = strings.Join(matched, ", ")
	}

	return v
}

func (r Rules) statusSuspicious(status string) bool {
	if status == "" {
		return false // no response at all; protocol_error/timeout already cover it
	}
	if r.Disallowed != nil {
		return r.Disallowed[status]
	}
	if r.Allowed != nil {
		return !r.Allowed[status]
	}
	return false
}

func (r Rules) matchBodyErrors(body []byte) []string {
	var matched []string
	for _, rule := range r.BodyErrors {
		if rule.Pattern.Match(body) {
			matched = append(matched, rule.Name)
		}
	}
	return matched
}
