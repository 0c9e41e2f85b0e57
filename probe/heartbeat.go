package probe

import (
	"context"
	"fmt"

	"github.com/WithSecureOpenSource/mittn"
)

// authShapedStatus is the set of response statuses that look like an
// expired or rejected credential rather than a genuine regression:
// unauthorized, forbidden, method not allowed (some gateways return
// this for an expired session token), proxy authentication required,
// and the WebDAV/IIS-specific authentication-timeout codes.
var authShapedStatus = map[string]bool{
	"401": true,
	"403": true,
	"405": true,
	"407": true,
	"419": true,
	"440": true,
}

// Heartbeat sends the unmodified submission after each injection, to
// confirm the target is still answering normally. It is silent on
// success; any failure is fatal to the run.
type Heartbeat struct {
	Prober Prober
	// Acceptable is the set of response statuses considered a
	// successful heartbeat, e.g. {"200", "201"}.
	Acceptable map[string]bool
}

// Check sends one heartbeat request. On an auth-shaped failure it
// asks the auth provider to refresh and retries once; two consecutive
// auth-shaped failures, any transport failure or timeout, or any
// other unacceptable status aborts the run. lastInjection carries the
// last injection's observation so a fatal error can report it.
func (hb Heartbeat) Check(ctx context.Context, scenarioID, method, targetURL, contentType string, content []byte, lastInjection *Observation) error {
	for attempt := 0; attempt < 2; attempt++ {
		refresh := attempt > 0
		if refresh && hb.Prober.Auth != nil {
			if _, _, err := hb.Prober.Auth.Authorize(ctx, true); err != nil {
				return hb.fatal(fmt.Sprintf("refreshing credentials: %v", err), lastInjection)
			}
		}

		obs := hb.Prober.Send(ctx, scenarioID, method, targetURL, contentType, content, true)

		switch {
		case obs.Timeout:
			return hb.fatal("heartbeat timed out", lastInjection)
		case obs.ProtocolError != "":
			return hb.fatal(fmt.Sprintf("heartbeat transport failure: %s", obs.ProtocolError), lastInjection)
		case authShapedStatus[obs.ResponseStatus]:
			if attempt == 0 {
				continue // retry once, with a credential refresh
			}
			return hb.fatal(fmt.Sprintf("heartbeat failed twice with auth-shaped status %s", obs.ResponseStatus), lastInjection)
		case !hb.Acceptable[obs.ResponseStatus]:
			return hb.fatal(fmt.Sprintf("heartbeat returned unacceptable status %s", obs.ResponseStatus), lastInjection)
		default:
			return nil // success, silent
		}
	}
	return hb.fatal("heartbeat exhausted retries", lastInjection)
}

func (hb Heartbeat) fatal(message string, lastInjection *Observation) error {
	if lastInjection != nil {
		message = fmt.Sprintf("%s (most recent injection: %s %s -> status %q, protocol_error %q)",
			message, lastInjection.Method, lastInjection.URL, lastInjection.ResponseStatus, lastInjection.ProtocolError)
	}
	return &mittn.Error{
		Op:      "probe.Heartbeat.Check",
		Kind:    mittn.ErrFatal,
		Message: message,
	}
}
