// Package pipeline composes the anomaly engine, the HTTP probe, the
// valid-case heartbeat, the classifier, and the finding archive into
// one scenario run.
package pipeline

import (
	"context"
	"fmt"
	"net/http"
	"runtime/trace"

	"github.com/google/uuid"
	"github.com/quay/zlog"

	"github.com/WithSecureOpenSource/mittn"
	"github.com/WithSecureOpenSource/mittn/archive"
	"github.com/WithSecureOpenSource/mittn/catalogue"
	"github.com/WithSecureOpenSource/mittn/classify"
	"github.com/WithSecureOpenSource/mittn/codec"
	"github.com/WithSecureOpenSource/mittn/inject"
	"github.com/WithSecureOpenSource/mittn/mutate"
	"github.com/WithSecureOpenSource/mittn/probe"
	"github.com/WithSecureOpenSource/mittn/value"
)

// DefaultMethods is the method fan-out used when Config.Methods is
// empty.
var DefaultMethods = []string{
	http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete,
	http.MethodOptions, http.MethodHead, http.MethodPatch,
}

// Config is a scenario's configuration. A caller (the out-of-scope
// runner) populates one of these per scenario; the driver never reads
// flags or environment variables itself.
type Config struct {
	ScenarioID string
	TargetURL  string
	// Methods lists the HTTP methods each derivative is dispatched
	// with, in fan-out order. Defaults to DefaultMethods when empty.
	Methods []string
	// CasesPerKey is N for RunFuzz: how many fuzz cases the mutator
	// produces per key.
	CasesPerKey int
	// Heartbeat, if non-nil, is invoked after every injection.
	Heartbeat *probe.Heartbeat
}

// Validate rejects an incompletely or incorrectly populated Config.
func (c Config) Validate() error {
	if c.ScenarioID == "" {
		return &mittn.Error{Op: "pipeline.Config.Validate", Kind: mittn.ErrInvalid, Message: "scenario_id is required"}
	}
	if c.TargetURL == "" {
		return &mittn.Error{Op: "pipeline.Config.Validate", Kind: mittn.ErrInvalid, Message: "target_url is required"}
	}
	return nil
}

func (c Config) methods() []string {
	if len(c.Methods) == 0 {
		return DefaultMethods
	}
	return c.Methods
}

// Result summarizes one Run.
type Result struct {
	Observations int
	Findings     int
}

// Driver composes the components that carry out one scenario:
// encoding, probing, classifying, and archiving derivative
// submissions. A Driver is meant for one scenario at a time, per the
// single-threaded-and-synchronous contract; callers parallelizing
// scenarios construct independent Drivers, each with its own Prober
// and Archive handle.
type Driver struct {
	Config     Config
	Codec      codec.Codec
	Prober     probe.Prober
	Classifier classify.Rules
	Archive    *archive.Archive
	Mutator    *mutate.Mutator
}

// RunStatic walks the static anomaly catalogue against tmpl, probing,
// classifying, and archiving every derivative.
func (d *Driver) RunStatic(ctx context.Context, tmpl value.Value) (Result, error) {
	if err := d.Config.Validate(); err != nil {
		return Result{}, err
	}
	ctx, task := trace.NewTask(ctx, "pipeline.RunStatic")
	defer task.End()
	runID := uuid.New()
	ctx = zlog.ContextWithValues(ctx, "component", "pipeline", "scenario_id", d.Config.ScenarioID, "run_id", runID.String())
	trace.Log(ctx, "scenario_id", d.Config.ScenarioID)
	zlog.Info(ctx).Int("catalogue_size", len(catalogue.Anomalies)).Msg("static run starting")

	var result Result
	for _, anomaly := range catalogue.Anomalies {
		am := inject.AnomalyMap{Null: anomaly}
		if err := d.runRound(ctx, tmpl, am, &result); err != nil {
			return result, err
		}
	}
	return result, nil
}

// RunFuzz collects leaves from samples, runs the mutator for
// Config.CasesPerKey rounds, and probes every derivative. Injection
// walks only samples[0]: fuzz-mode collection merges every sample
// submission's leaves, but the anomaly engine still needs exactly one
// concrete tree shape to derive positions from, and the original this
// is ported from always walked the first submission in the list.
func (d *Driver) RunFuzz(ctx context.Context, samples []value.Value) (Result, error) {
	if err := d.Config.Validate(); err != nil {
		return Result{}, err
	}
	if len(samples) == 0 {
		return Result{}, &mittn.Error{Op: "pipeline.RunFuzz", Kind: mittn.ErrInvalid, Message: "at least one valid sample submission is required"}
	}
	ctx, task := trace.NewTask(ctx, "pipeline.RunFuzz")
	defer task.End()
	runID := uuid.New()
	ctx = zlog.ContextWithValues(ctx, "component", "pipeline", "scenario_id", d.Config.ScenarioID, "run_id", runID.String())
	trace.Log(ctx, "scenario_id", d.Config.ScenarioID)

	n := d.Config.CasesPerKey
	if n <= 0 {
		n = 1
	}

	vs := value.Collect(samples...)
	fuzzes, err := d.Mutator.Fuzz(ctx, vs, n)
	if err != nil {
		return Result{}, fmt.Errorf("pipeline: fuzzing: %w", err)
	}
	zlog.Info(ctx).Int("cases_per_key", n).Int("keys", len(vs.Keys)).Msg("fuzz run starting")

	if _, ok := fuzzes[""]; !ok {
		return Result{}, &mittn.Error{Op: "pipeline.RunFuzz", Kind: mittn.ErrInternal, Message: "mutator returned no null-bucket cases"}
	}

	tmpl := samples[0]
	var result Result
	for i := 0; i < n; i++ {
		am := inject.AnomalyMap{ByKey: make(map[string]value.Value, len(fuzzes))}
		for key, cases := range fuzzes {
			if i >= len(cases) {
				continue
			}
			if key == "" {
				am.Null = cases[i]
				continue
			}
			am.ByKey[key] = cases[i]
		}
		if err := d.runRound(ctx, tmpl, am, &result); err != nil {
			return result, err
		}
	}
	return result, nil
}

// runRound derives every submission from tmpl for one anomaly map,
// dispatches each over every configured method in order, classifies
// the observation, and archives suspicious ones. After each
// derivative's dispatch it runs the heartbeat once, matching the
// original's once-per-injection cadence.
func (d *Driver) runRound(ctx context.Context, tmpl value.Value, am inject.AnomalyMap, result *Result) error {
	derivatives := inject.Derive(tmpl, am)
	for _, derivative := range derivatives {
		content := d.Codec.Encode(derivative)
		var lastObs probe.Observation
		for _, method := range d.Config.methods() {
			reqURL, body := d.buildRequest(method, content)
			obs := d.Prober.Send(ctx, d.Config.ScenarioID, method, reqURL, d.Codec.ContentType(), body, false)
			result.Observations++
			lastObs = obs

			v := d.Classifier.Classify(obs)
			if !v.Suspicious {
				continue
			}
			if d.Archive == nil {
				return d.fatalNoArchive(obs)
			}
			finding := archive.FindingFrom(obs, v)
			added, err := d.Archive.AddIfAbsent(ctx, finding)
			if err != nil {
				return &mittn.Error{Op: "pipeline.runRound", Kind: mittn.ErrFatal, Message: "archive unreachable while recording a finding", Inner: err}
			}
			if added {
				result.Findings++
			}
		}

		if d.Config.Heartbeat != nil {
			tmplContent := d.Codec.Encode(tmpl)
			method := d.Config.methods()[0]
			hbURL, hbBody := d.buildRequest(method, tmplContent)
			if err := d.Config.Heartbeat.Check(ctx, d.Config.ScenarioID, method, hbURL, d.Codec.ContentType(), hbBody, &lastObs); err != nil {
				return err
			}
		}
	}
	return nil
}

// buildRequest joins content to the target URL with "?" for GET and
// HEAD, since the probe never adds "?" or "&" itself; every other
// method sends content as the request body.
func (d *Driver) buildRequest(method string, content []byte) (reqURL string, body []byte) {
	if method == http.MethodGet || method == http.MethodHead {
		return d.Config.TargetURL + "?" + string(content), nil
	}
	return d.Config.TargetURL, content
}

// fatalNoArchive builds the diagnostic required when a finding must
// be recorded but no archive is configured: a finding must never be
// silently lost.
func (d *Driver) fatalNoArchive(obs probe.Observation) error {
	url := obs.URL
	if len(url) > 200 {
		url = url[:200]
	}
	body := obs.RequestBody
	if len(body) > 200 {
		body = body[:200]
	}
	return &mittn.Error{
		Op:   "pipeline.runRound",
		Kind: mittn.ErrFatal,
		Message: fmt.Sprintf(
			"no archive configured: scenario=%s status=%s protocol_error=%q timeout=%v url=%s method=%s body=%q",
			obs.ScenarioID, obs.ResponseStatus, obs.ProtocolError, obs.Timeout, url, obs.Method, body,
		),
	}
}
