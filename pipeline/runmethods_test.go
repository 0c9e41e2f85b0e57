package pipeline

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/WithSecureOpenSource/mittn/classify"
	"github.com/WithSecureOpenSource/mittn/codec"
	"github.com/WithSecureOpenSource/mittn/probe"
	"github.com/WithSecureOpenSource/mittn/value"
)

func TestRunMethodsRunsOneSubPipelinePerMethod(t *testing.T) {
	var requests int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&requests, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	tmpl := value.Map(strEntry("a", "x"))
	methods := []string{http.MethodPost, http.MethodPut, http.MethodDelete}

	var mu sync.Mutex
	seen := map[string]bool{}

	newDriver := func(method string) *Driver {
		mu.Lock()
		seen[method] = true
		mu.Unlock()
		return &Driver{
			Config:     Config{ScenarioID: "fanout_scenario", TargetURL: srv.URL},
			Codec:      codec.FormCodec{},
			Prober:     probe.Prober{Client: probe.NewClient(0, nil), RunnerHost: "test-runner"},
			Classifier: classify.Rules{},
		}
	}

	results, err := RunMethods(context.Background(), methods, 2, newDriver, tmpl)
	if err != nil {
		t.Fatalf("RunMethods: %v", err)
	}
	if len(results) != len(methods) {
		t.Fatalf("len(results) = %d, want %d", len(results), len(methods))
	}
	for _, method := range methods {
		if !seen[method] {
			t.Errorf("newDriver was never called for method %q", method)
		}
	}
	for i, r := range results {
		if r.Observations == 0 {
			t.Errorf("results[%d].Observations = 0, want at least one probe", i)
		}
	}
}

func TestRunMethodsDefaultsConcurrencyToOne(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	tmpl := value.Map(strEntry("a", "x"))
	newDriver := func(method string) *Driver {
		return &Driver{
			Config:     Config{ScenarioID: "s", TargetURL: srv.URL},
			Codec:      codec.FormCodec{},
			Prober:     probe.Prober{Client: probe.NewClient(0, nil), RunnerHost: "test-runner"},
			Classifier: classify.Rules{},
		}
	}

	if _, err := RunMethods(context.Background(), []string{http.MethodPost}, 0, newDriver, tmpl); err != nil {
		t.Fatalf("RunMethods with concurrency=0: %v", err)
	}
}
