// Package probe implements the HTTP probe: it sends one submission to
// a target and reifies everything about the attempt, including
// transport failures, into an Observation rather than a Go error.
package probe

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Observation is the record of one probe attempt.
type Observation struct {
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

// AuthProvider supplies an Authorization-style header value for a
// request, refreshing credentials on demand when refresh is true (an
// auth-shaped failure was just observed).
type AuthProvider interface {
	Authorize(ctx context.Context, refresh bool) (header, value string, err error)
}

// Prober sends submissions to one target. A Prober is meant to be
// used from one scenario pipeline at a time: Send mutates its
// client's CheckRedirect hook on every call, which is safe under the
// single-threaded-per-scenario contract but not if the same Prober is
// shared across concurrently running scenarios.
type Prober struct {
	Client *http.Client
	// Auth supplies credentials for each request; nil sends none.
	Auth AuthProvider
	// Limiter paces outgoing requests; nil means unpaced.
	Limiter *rate.Limiter
	// RunnerHost identifies this process in the X-Abuse header, e.g.
	// "fuzzer.example.invalid [10.0.0.5]". Callers are expected to
	// compute this once at startup with os.Hostname and a DNS/IP
	// lookup rather than per request.
	RunnerHost string
}

// NewRunnerHost builds the FQDN+IP pair the X-Abuse header carries,
// best-effort: a lookup failure degrades to the hostname alone rather
// than failing the caller.
func NewRunnerHost() string {
	host, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	addrs, err := net.LookupIP(host)
	if err != nil || len(addrs) == 0 {
		return host
	}
	return fmt.Sprintf("%s [%s]", host, addrs[0].String())
}

// insecureTransport disables TLS verification: the tool targets test
// environments and needs visibility into intentionally-broken
// backends, which includes ones presenting self-signed or expired
// certificates.
func insecureTransport(proxyURL *url.URL) *http.Transport {
	t := &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
	}
	if proxyURL != nil {
		t.Proxy = http.ProxyURL(proxyURL)
	}
	return t
}

// NewClient returns an *http.Client configured the way every probe
// needs: TLS verification disabled and redirects followed. proxyURL
// may be nil for a direct connection.
func NewClient(timeout time.Duration, proxyURL *url.URL) *http.Client {
	return &http.Client{
		Transport: insecureTransport(proxyURL),
		Timeout:   timeout,
	}
}

// Send performs one probe. content carries a pre-encoded request body;
// for GET, the caller is expected to have already appended it to url
// (the probe never adds "?" or "&" itself). valid marks a heartbeat
// request, adding the instrumentation header the target may use to
// distinguish it from an injected one.
func (p Prober) Send(ctx context.Context, scenarioID, method, targetURL, contentType string, content []byte, valid bool) Observation {
	obs := Observation{
		ScenarioID:     scenarioID,
		URL:            targetURL,
		Method:         method,
		RequestBody:    content,
		Timestamp:      time.Now().UTC(),
		TestRunnerHost: p.RunnerHost,
	}

	if p.Limiter != nil {
		if err := p.Limiter.Wait(ctx); err != nil {
			obs.ProtocolError = fmt.Sprintf("rate limiter: %v", err)
			return obs
		}
	}

	var body io.Reader
	reqURL := targetURL
	if method != http.MethodGet && method != http.MethodHead {
		body = bytes.NewReader(content)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		panic(fmt.Sprintf("probe: malformed request: %v", err))
	}

	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; httpfuzzer robustness test tool)")
	req.Header.Set("Connection", "close")
	req.Header.Set("X-Abuse", fmt.Sprintf("This is an automatically generated robustness test request from %s", p.RunnerHost))
	if valid {
		req.Header.Set("X-Valid-Case-Instrumentation", "This is a valid request that should succeed")
	}
	if p.Auth != nil {
		h, v, err := p.Auth.Authorize(ctx, false)
		if err != nil {
			obs.ProtocolError = fmt.Sprintf("auth provider: %v", err)
			return obs
		}
		if h != "" {
			req.Header.Set(h, v)
		}
	}

	obs.RequestHeaders = dumpHeaders(req.Header)

	client := p.Client
	if client == nil {
		client = NewClient(0, nil)
	}

	var history []string
	client.CheckRedirect = func(r *http.Request, via []*http.Request) error {
		history = append(history, r.URL.String())
		return nil
	}

	resp, err := client.Do(req)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			obs.Timeout = true
			return obs
		}
		obs.ProtocolError = classifyTransportError(err)
		return obs
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		obs.ProtocolError = fmt.Sprintf("reading response body: %v", err)
		return obs
	}

	obs.ResponseStatus = fmt.Sprint(resp.StatusCode)
	obs.ResponseHeaders = dumpHeaders(resp.Header)
	obs.ResponseBody = respBody
	obs.ResponseHistory = []byte(strings.Join(history, "\n"))
	return obs
}

func dumpHeaders(h http.Header) []byte {
	var buf bytes.Buffer
	for k, vs := range h {
		for _, v := range vs {
			fmt.Fprintf(&buf, "%s: %s\n", k, v)
		}
	}
	return buf.Bytes()
}

// classifyTransportError renders a transport failure as "<kind>:
// <detail>", matching the fixed "protocol_error" shape callers key
// classification and fingerprinting off of.
func classifyTransportError(err error) string {
	kind := "transport_error"
	if _, ok := err.(*net.OpError); ok {
		kind = "network_error"
	}
	return fmt.Sprintf("%s: %v", kind, err)
}
