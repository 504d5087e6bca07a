package client

import (
	"context"
	"net/http"
	"time"

	"manualqa/internal"
)

// nextStep decides whether a classified failure is retried. It consumes the
// matching retry flag before returning true. A non-nil error replaces ce as
// the call's result.
func (p *Pipeline) nextStep(ctx context.Context, req *Request, state *callState, ce *internal.ClassifiedError, used internal.Bundle) (bool, error) {
	if ctx.Err() != nil {
		return false, nil
	}

	switch {
	case ce.StatusCode == http.StatusUnauthorized:
		if state.authRetried || req.Anonymous || p.creds == nil {
			return false, nil
		}
		state.authRetried = true
		internal.LogDebug("%s %s rejected the credential, refreshing (request %s)", state.method, state.path, state.requestID)
		if _, err := p.creds.Refresh(ctx, used.IdentityToken); err != nil {
			return false, err
		}
		return true, nil

	case ce.Kind == internal.KindRateLimit:
		if state.rateLimitRetried {
			return false, nil
		}
		wait := p.rateLimitWait(ce)
		if wait > p.rateLimitCeiling {
			internal.LogDebug("%s %s rate limited for %v, above the %v ceiling", state.method, state.path, wait, p.rateLimitCeiling)
			return false, nil
		}
		state.rateLimitRetried = true
		internal.LogDebug("%s %s rate limited, retrying in %v (request %s)", state.method, state.path, wait, state.requestID)
		return p.pause(ctx, wait)

	case ce.Kind == internal.KindNetwork:
		if state.networkRetried {
			return false, nil
		}
		state.networkRetried = true
		reason := "could not reach the server"
		if ce.Timeout {
			reason = "timed out"
		}
		internal.LogDebug("%s %s %s, retrying in %v (request %s)", state.method, state.path, reason, p.timeoutRetryDelay, state.requestID)
		return p.pause(ctx, p.timeoutRetryDelay)
	}

	return false, nil
}

// rateLimitWait is the larger of the server hint and the floor
func (p *Pipeline) rateLimitWait(ce *internal.ClassifiedError) time.Duration {
	wait := time.Duration(ce.RetryAfterSeconds) * time.Second
	if wait < p.rateLimitFloor {
		wait = p.rateLimitFloor
	}
	return wait
}

// pause sleeps before a retry. The caller's cancellation ends the call with
// the original failure.
func (p *Pipeline) pause(ctx context.Context, d time.Duration) (bool, error) {
	if err := p.sleep(ctx, d); err != nil {
		return false, nil
	}
	return true, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
