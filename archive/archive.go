// Package archive is the finding archive: it deduplicates observations
// that already triggered a recorded finding so that a fuzz run that
// finds the same issue a thousand times over only files it once.
package archive

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/quay/zlog"
	"github.com/remind101/migrate"

	"github.com/WithSecureOpenSource/mittn/archive/migrations"
	"github.com/WithSecureOpenSource/mittn/classify"
	"github.com/WithSecureOpenSource/mittn/probe"
)

var (
	queryCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "httpfuzzer",
			Subsystem: "archive",
			Name:      "queries_total",
			Help:      "Total number of queries issued against the finding archive.",
		},
		[]string{"query"},
	)

	queryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "httpfuzzer",
			Subsystem: "archive",
			Name:      "query_duration_seconds",
			Help:      "The duration of queries issued against the finding archive.",
		},
		[]string{"query"},
	)
)

// Finding is one httpfuzzer_issues row, built from a probe observation
// and the verdict that judged it suspicious.
type Finding struct {
	ScenarioID        string
	URL               string
	Method            string
	RequestHeaders    []byte
	RequestBody       []byte
	ResponseStatus    string
	ResponseHeaders   []byte
	ResponseBody      []byte
	ResponseHistory   []byte
	ProtocolError     string
	Timeout           bool
	BodyErrorDetected bool
	BodyErrorMatched  string
	Timestamp         time.Time
	TestRunnerHost    string
}

// FindingFrom builds a Finding out of an Observation and the Verdict
// that classified it, ready to be handed to Archive.AddIfAbsent.
func FindingFrom(obs probe.Observation, v classify.Verdict) Finding {
	return Finding{
		ScenarioID:        obs.ScenarioID,
		URL:               obs.URL,
		Method:            obs.Method,
		RequestHeaders:    obs.RequestHeaders,
		RequestBody:       obs.RequestBody,
		ResponseStatus:    obs.ResponseStatus,
		ResponseHeaders:   obs.ResponseHeaders,
		ResponseBody:      obs.ResponseBody,
		ResponseHistory:   obs.ResponseHistory,
		ProtocolError:     obs.ProtocolError,
		Timeout:           obs.Timeout,
		BodyErrorDetected: v.BodyErrorDetected,
		BodyErrorMatched:  v.BodyErrorMatched,
		Timestamp:         obs.Timestamp,
		TestRunnerHost:    obs.TestRunnerHost,
	}
}

// fingerprint is the tuple httpfuzzer_issues_fingerprint is unique on.
// Two findings with the same fingerprint are considered the same
// issue: a fuzz case is not stored verbatim, so two different inputs
// that elicit an equivalent failure are indistinguishable here. If
// fuzzing one field turns up something, that field deserves its own
// focused run rather than relying on the archive to separate cases.
type fingerprint struct {
	scenarioID        string
	method            string
	responseStatus    string
	protocolError     string
	timeout           bool
	bodyErrorDetected bool
	bodyErrorMatched  string
}

func fingerprintOf(f Finding) fingerprint {
	return fingerprint{
		scenarioID:        f.ScenarioID,
		method:            f.Method,
		responseStatus:    f.ResponseStatus,
		protocolError:     f.ProtocolError,
		timeout:           f.Timeout,
		bodyErrorDetected: f.BodyErrorDetected,
		bodyErrorMatched:  f.BodyErrorMatched,
	}
}

// Archive is a handle on the httpfuzzer_issues table. The zero value
// is not usable; construct one with Open.
type Archive struct {
	pool *pgxpool.Pool
}

// Open connects to connString, applies any pending schema migrations,
// and returns a ready-to-use Archive. The caller must call Close when
// finished.
func Open(ctx context.Context, connString string) (*Archive, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("archive: connecting: %w", err)
	}
	if err := runMigrations(ctx, pool.Config().ConnConfig); err != nil {
		pool.Close()
		return nil, fmt.Errorf("archive: migrating: %w", err)
	}
	return &Archive{pool: pool}, nil
}

// Close releases the underlying connection pool.
func (a *Archive) Close() {
	a.pool.Close()
}

func runMigrations(ctx context.Context, cfg *pgx.ConnConfig) error {
	ctx = zlog.ContextWithValues(ctx, "table", migrations.MigrationTable)
	zlog.Info(ctx).Int("count", len(migrations.Migrations)).Msg("migrations queued")

	db := sql.OpenDB(stdlib.GetConnector(*cfg))
	defer db.Close()

	migrator := migrate.NewPostgresMigrator(db)
	migrator.Table = migrations.MigrationTable
	err := migrator.Exec(migrate.Up, migrations.Migrations...)
	zlog.Info(ctx).Err(err).Msg("migrations done")
	return err
}

// uniqueViolation is the Postgres SQLSTATE for a unique_violation.
const uniqueViolation = "23505"

// isUniqueViolation reports whether err is a unique-key conflict on
// the fingerprint index, the expected shape of a race between two
// concurrent probes recording the same finding.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func observe(query string, start time.Time) {
	queryCounter.WithLabelValues(query).Inc()
	queryDuration.WithLabelValues(query).Observe(time.Since(start).Seconds())
}

// Known reports whether a finding with f's fingerprint has already
// been recorded.
func (a *Archive) Known(ctx context.Context, f Finding) (bool, error) {
	const query = `
SELECT EXISTS(
	SELECT 1 FROM httpfuzzer_issues
	WHERE scenario_id = $1
	  AND req_method = $2
	  AND resp_statuscode = $3
	  AND server_protocol_error = $4
	  AND server_timeout = $5
	  AND server_error_text_detected = $6
	  AND server_error_text_matched = $7
);
`
	fp := fingerprintOf(f)
	start := time.Now()
	var known bool
	err := a.pool.QueryRow(ctx, query,
		fp.scenarioID, fp.method, fp.responseStatus, fp.protocolError,
		fp.timeout, fp.bodyErrorDetected, fp.bodyErrorMatched,
	).Scan(&known)
	observe("known", start)
	if err != nil {
		return false, fmt.Errorf("archive: checking known findings: %w", err)
	}
	return known, nil
}

// Add unconditionally inserts f as a new finding, regardless of
// whether its fingerprint is already present. Most callers want
// AddIfAbsent instead.
func (a *Archive) Add(ctx context.Context, f Finding) error {
	const query = `
INSERT INTO httpfuzzer_issues (
	new_issue, timestamp, test_runner_host, scenario_id, url,
	server_protocol_error, server_timeout, server_error_text_detected,
	server_error_text_matched, req_method, req_headers, req_body,
	resp_statuscode, resp_headers, resp_body, resp_history
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16);
`
	start := time.Now()
	_, err := a.pool.Exec(ctx, query,
		true, f.Timestamp, f.TestRunnerHost, f.ScenarioID, f.URL,
		f.ProtocolError, f.Timeout, f.BodyErrorDetected,
		f.BodyErrorMatched, f.Method, f.RequestHeaders, f.RequestBody,
		f.ResponseStatus, f.ResponseHeaders, f.ResponseBody, f.ResponseHistory,
	)
	observe("add", start)
	if err != nil {
		return fmt.Errorf("archive: inserting finding: %w", err)
	}
	return nil
}

// AddIfAbsent records f unless a finding with the same fingerprint is
// already archived, and reports which happened. This is the method
// the pipeline calls for every suspicious observation.
func (a *Archive) AddIfAbsent(ctx context.Context, f Finding) (added bool, err error) {
	known, err := a.Known(ctx, f)
	if err != nil {
		return false, err
	}
	if known {
		return false, nil
	}
	if err := a.Add(ctx, f); err != nil {
		if isUniqueViolation(err) {
			// Lost the race to a concurrent insert of the same
			// fingerprint; the finding is recorded either way.
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// NewCount returns the number of findings still marked new_issue,
// i.e. ones nobody has triaged yet.
func (a *Archive) NewCount(ctx context.Context) (int, error) {
	const query = `SELECT count(*) FROM httpfuzzer_issues WHERE new_issue;`
	start := time.Now()
	var n int
	err := a.pool.QueryRow(ctx, query).Scan(&n)
	observe("new_count", start)
	if err != nil {
		return 0, fmt.Errorf("archive: counting new findings: %w", err)
	}
	return n, nil
}
