// Package client is the authenticated request pipeline every service facade
// goes through.
package client

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"manualqa/internal"
	"manualqa/utils"
)

const (
	// DefaultRateLimitFloor is the shortest wait before retrying a 429
	DefaultRateLimitFloor = 2 * time.Second
	// DefaultTimeoutRetryDelay is the pause before retrying a network failure
	DefaultTimeoutRetryDelay = 1 * time.Second
	// ProactiveRefreshSkew refreshes credentials this long before they expire
	ProactiveRefreshSkew = 30 * time.Second

	maxResponseBytes = 64 << 20
	userAgent        = "manualqa-client/1.0"
	tracerName       = "manualqa/client"
)

// Pipeline sends requests with credential injection, bounded retries and
// classified failures. Its configuration is fixed at construction.
type Pipeline struct {
	httpClient *http.Client
	baseURL    string
	creds      internal.CredentialSource

	timeout           time.Duration
	uploadTimeout     time.Duration
	maxBodyBytes      int64
	rateLimitFloor    time.Duration
	rateLimitCeiling  time.Duration
	timeoutRetryDelay time.Duration

	sleep  func(ctx context.Context, d time.Duration) error
	now    func() time.Time
	tracer trace.Tracer
}

// Option configures a Pipeline
type Option func(*Pipeline)

// WithCredentials makes the pipeline authenticate requests from src
func WithCredentials(src internal.CredentialSource) Option {
	return func(p *Pipeline) { p.creds = src }
}

// WithHTTPClient replaces the transport built from the configuration
func WithHTTPClient(c *http.Client) Option {
	return func(p *Pipeline) { p.httpClient = c }
}

// WithSleeper replaces the backoff delay, mainly for tests
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(p *Pipeline) { p.sleep = sleep }
}

// WithClock replaces time.Now for expiry checks and Retry-After dates
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// WithRateLimitFloor overrides DefaultRateLimitFloor
func WithRateLimitFloor(d time.Duration) Option {
	return func(p *Pipeline) { p.rateLimitFloor = d }
}

// WithTimeoutRetryDelay overrides DefaultTimeoutRetryDelay
func WithTimeoutRetryDelay(d time.Duration) Option {
	return func(p *Pipeline) { p.timeoutRetryDelay = d }
}

// New builds a pipeline from a validated configuration. Without
// WithCredentials it sends anonymous requests only.
func New(cfg *internal.Config, opts ...Option) (*Pipeline, error) {
	baseURL, err := utils.ValidateBaseURL(cfg.APIBaseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", internal.ErrInvalidConfig, err)
	}

	p := &Pipeline{
		baseURL:           baseURL,
		timeout:           cfg.Timeout(),
		uploadTimeout:     cfg.UploadTimeoutDuration(),
		maxBodyBytes:      cfg.MaxRequestBytes(),
		rateLimitFloor:    DefaultRateLimitFloor,
		rateLimitCeiling:  cfg.RateLimitCeiling(),
		timeoutRetryDelay: DefaultTimeoutRetryDelay,
		sleep:             sleepContext,
		now:               time.Now,
		tracer:            otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(p)
	}

	if p.httpClient == nil {
		p.httpClient, err = utils.NewHTTPClient(utils.TransportConfig{
			ProxyURL: cfg.ProxyURL,
			Tracing:  cfg.Trace,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", internal.ErrInvalidConfig, err)
		}
	}
	return p, nil
}

// BaseURL is the API origin requests are sent to
func (p *Pipeline) BaseURL() string {
	return p.baseURL
}

// UploadTimeout is the per-attempt timeout facades use for large bodies
func (p *Pipeline) UploadTimeout() time.Duration {
	return p.uploadTimeout
}

// MaxBodyBytes is the largest request body the pipeline will send
func (p *Pipeline) MaxBodyBytes() int64 {
	return p.maxBodyBytes
}

// Do runs one logical call. On success the response (unwrapped from the
// {"success","data"} envelope when present) is decoded into out, which may
// be nil. Failures are returned as *internal.ClassifiedError unless the
// caller's context ended.
func (p *Pipeline) Do(ctx context.Context, req *Request, out interface{}) error {
	state, err := newCallState(req)
	if err != nil {
		return err
	}
	if p.maxBodyBytes > 0 && int64(len(state.body)) > p.maxBodyBytes {
		return internal.NewPayloadTooLargeError(int64(len(state.body)), p.maxBodyBytes)
	}

	ctx, span := p.tracer.Start(ctx, state.operation, trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", state.method),
			attribute.String("url.path", state.path),
			attribute.String("manualqa.request_id", state.requestID),
		))
	defer span.End()

	err = p.run(ctx, req, state, out)

	span.SetAttributes(attribute.Int("manualqa.attempts", state.attempt))
	if err != nil {
		span.RecordError(err)
		if ce := internal.AsClassified(err); ce != nil {
			span.SetStatus(codes.Error, ce.Kind.String())
		}
	}
	return err
}

func (p *Pipeline) run(ctx context.Context, req *Request, state *callState, out interface{}) error {
	for {
		bundle, err := p.credentialFor(ctx, req, state)
		if err != nil {
			return err
		}

		state.attempt++
		outcome := p.execute(ctx, req, state, bundle)
		if outcome.failure == nil {
			return decodeResponse(outcome.body, out, state)
		}

		ce := internal.Classify(*outcome.failure, internal.FailureContext{
			Operation:  state.operation,
			Method:     state.method,
			Path:       state.path,
			Attempt:    state.attempt,
			ReceivedAt: outcome.receivedAt,
		})

		retry, err := p.nextStep(ctx, req, state, &ce, bundle)
		if err != nil {
			return err
		}
		if !retry {
			return &ce
		}
	}
}

// credentialFor returns the bundle to inject, refreshing first when it is
// about to expire. A proactive refresh uses up the call's auth retry.
func (p *Pipeline) credentialFor(ctx context.Context, req *Request, state *callState) (internal.Bundle, error) {
	if req.Anonymous || p.creds == nil {
		return internal.Bundle{}, nil
	}

	bundle, ok := p.creds.Current()
	if !ok {
		return internal.Bundle{}, internal.NewAuthRequiredError(
			fmt.Sprintf("%s %s: not signed in", state.method, state.path), nil)
	}

	if state.attempt == 0 && !state.authRetried && bundle.Expired(p.now(), ProactiveRefreshSkew) {
		state.authRetried = true
		internal.LogDebug("Credentials expire at %s, refreshing before %s %s",
			bundle.Expiry.Format(time.RFC3339), state.method, state.path)
		refreshed, err := p.creds.Refresh(ctx, bundle.IdentityToken)
		if err != nil {
			return internal.Bundle{}, err
		}
		bundle = refreshed
	}
	return bundle, nil
}
