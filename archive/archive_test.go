package archive

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/WithSecureOpenSource/mittn/classify"
	"github.com/WithSecureOpenSource/mittn/probe"
)

// testArchive opens an Archive against HTTPFUZZER_TEST_DSN, skipping
// the test when it isn't set. There is no embedded Postgres available
// here, so these tests only run against a real database a developer
// points at explicitly.
func testArchive(t *testing.T) *Archive {
	t.Helper()
	dsn := os.Getenv("HTTPFUZZER_TEST_DSN")
	if dsn == "" {
		t.Skip("HTTPFUZZER_TEST_DSN not set, skipping archive integration test")
	}
	a, err := Open(context.Background(), dsn)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(a.Close)
	return a
}

func sampleFinding(scenarioID string) Finding {
	return Finding{
		ScenarioID:     scenarioID,
		URL:            "https://example.invalid/submit",
		Method:         "POST",
		ResponseStatus: "500",
		Timestamp:      time.Now().UTC(),
		TestRunnerHost: "test-runner [127.0.0.1]",
	}
}

func TestFindingFromCopiesObservationAndVerdict(t *testing.T) {
	obs := probe.Observation{
		ScenarioID:     "login_form",
		URL:            "https://example.invalid/login",
		Method:         "POST",
		ResponseStatus: "500",
		Timeout:        false,
	}
	v := classify.Verdict{Suspicious: true, BodyErrorDetected: true, BodyErrorMatched: "stacktrace"}

	f := FindingFrom(obs, v)
	if f.ScenarioID != obs.ScenarioID || f.ResponseStatus != obs.ResponseStatus {
		t.Errorf("FindingFrom did not copy observation fields: %+v", f)
	}
	if f.BodyErrorDetected != v.BodyErrorDetected || f.BodyErrorMatched != v.BodyErrorMatched {
		t.Errorf("FindingFrom did not copy verdict fields: %+v", f)
	}
}

func TestFingerprintIgnoresRequestBody(t *testing.T) {
	a := sampleFinding("login_form")
	a.RequestBody = []byte("payload one")
	b := sampleFinding("login_form")
	b.RequestBody = []byte("an entirely different payload")

	if fingerprintOf(a) != fingerprintOf(b) {
		t.Error("two findings differing only in request body should fingerprint identically")
	}
}

func TestFingerprintDistinguishesScenario(t *testing.T) {
	a := sampleFinding("login_form")
	b := sampleFinding("search_form")

	if fingerprintOf(a) == fingerprintOf(b) {
		t.Error("findings from different scenarios should not share a fingerprint")
	}
}

func TestAddIfAbsentDeduplicates(t *testing.T) {
	a := testArchive(t)
	ctx := context.Background()

	f := sampleFinding("dedup_scenario")
	added, err := a.AddIfAbsent(ctx, f)
	if err != nil {
		t.Fatalf("AddIfAbsent (first): %v", err)
	}
	if !added {
		t.Fatal("first AddIfAbsent should have added a new finding")
	}

	f.RequestBody = []byte("a different fuzz case, same fingerprint")
	added, err = a.AddIfAbsent(ctx, f)
	if err != nil {
		t.Fatalf("AddIfAbsent (second): %v", err)
	}
	if added {
		t.Error("second AddIfAbsent with the same fingerprint should not add")
	}
}

func TestIsUniqueViolationMatchesSQLSTATE23505(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "httpfuzzer_issues_fingerprint"}
	if !isUniqueViolation(pgErr) {
		t.Error("isUniqueViolation(23505) = false, want true")
	}
	if !isUniqueViolation(fmt.Errorf("wrapped: %w", pgErr)) {
		t.Error("isUniqueViolation should see through error wrapping")
	}
}

func TestIsUniqueViolationRejectsOtherErrors(t *testing.T) {
	if isUniqueViolation(errors.New("connection refused")) {
		t.Error("isUniqueViolation(plain error) = true, want false")
	}
	other := &pgconn.PgError{Code: "23503"} // foreign_key_violation
	if isUniqueViolation(other) {
		t.Error("isUniqueViolation(23503) = true, want false")
	}
}

func TestAddIfAbsentToleratesConcurrentDuplicateInsert(t *testing.T) {
	a := testArchive(t)
	ctx := context.Background()

	f := sampleFinding("concurrent_dedup_scenario")
	if err := a.Add(ctx, f); err != nil {
		t.Fatalf("Add: %v", err)
	}

	// A second insert racing against the one above (or, as here,
	// simply arriving after it) must be folded into "already known"
	// rather than surfaced as a fatal archive error.
	added, err := a.AddIfAbsent(ctx, f)
	if err != nil {
		t.Fatalf("AddIfAbsent after a raw Add of the same fingerprint: %v", err)
	}
	if added {
		t.Error("AddIfAbsent should report added=false for a fingerprint already inserted by a concurrent Add")
	}
}

func TestKnownReportsPriorFinding(t *testing.T) {
	a := testArchive(t)
	ctx := context.Background()

	f := sampleFinding("known_scenario")
	known, err := a.Known(ctx, f)
	if err != nil {
		t.Fatalf("Known (before insert): %v", err)
	}
	if known {
		t.Fatal("Known should report false before any matching finding is archived")
	}

	if _, err := a.AddIfAbsent(ctx, f); err != nil {
		t.Fatalf("AddIfAbsent: %v", err)
	}

	known, err = a.Known(ctx, f)
	if err != nil {
		t.Fatalf("Known (after insert): %v", err)
	}
	if !known {
		t.Error("Known should report true after a matching finding is archived")
	}
}

func TestNewCountReflectsNewIssues(t *testing.T) {
	a := testArchive(t)
	ctx := context.Background()

	before, err := a.NewCount(ctx)
	if err != nil {
		t.Fatalf("NewCount (before): %v", err)
	}

	f := sampleFinding("new_count_scenario")
	if _, err := a.AddIfAbsent(ctx, f); err != nil {
		t.Fatalf("AddIfAbsent: %v", err)
	}

	after, err := a.NewCount(ctx)
	if err != nil {
		t.Fatalf("NewCount (after): %v", err)
	}
	if after != before+1 {
		t.Errorf("NewCount = %d, want %d", after, before+1)
	}
}
