package client

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"manualqa/internal"
)

type fakeCreds struct {
	mu         sync.Mutex
	bundle     internal.Bundle
	signedOut  bool
	next       string
	refreshErr error
	refreshes  int
}

func (f *fakeCreds) Current() (internal.Bundle, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bundle, !f.signedOut
}

func (f *fakeCreds) Refresh(ctx context.Context, stale string) (internal.Bundle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshes++
	if f.refreshErr != nil {
		return internal.Bundle{}, f.refreshErr
	}
	if f.bundle.IdentityToken == stale {
		f.bundle = internal.Bundle{IdentityToken: f.next, RefreshToken: f.bundle.RefreshToken}
	}
	return f.bundle, nil
}

func (f *fakeCreds) refreshCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refreshes
}

type sleepRecorder struct {
	mu     sync.Mutex
	sleeps []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sleeps = append(s.sleeps, d)
	return nil
}

func (s *sleepRecorder) recorded() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.sleeps...)
}

func newTestPipeline(t *testing.T, handler http.Handler, configure func(*internal.Config), opts ...Option) *Pipeline {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := internal.DefaultConfig()
	cfg.APIBaseURL = srv.URL
	if configure != nil {
		configure(cfg)
	}
	if err := cfg.ValidateConfig(); err != nil {
		t.Fatalf("ValidateConfig() error = %v", err)
	}

	p, err := New(cfg, append([]Option{WithHTTPClient(srv.Client())}, opts...)...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return p
}

func signedIn() *fakeCreds {
	return &fakeCreds{
		bundle: internal.Bundle{IdentityToken: "id-1", RefreshToken: "refresh-1"},
		next:   "id-2",
	}
}

type answer struct {
	Answer string `json:"answer"`
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	io.WriteString(w, body)
}

func TestPipeline_RefreshesOnceOnUnauthorized(t *testing.T) {
	var hits atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.Header.Get("Authorization") != "Bearer id-2" {
			writeJSON(w, http.StatusUnauthorized, `{"error":"token expired"}`)
			return
		}
		writeJSON(w, http.StatusOK, `{"success":true,"data":{"answer":"torque is 40Nm"}}`)
	})

	creds := signedIn()
	p := newTestPipeline(t, handler, nil, WithCredentials(creds))

	var out answer
	err := p.Do(context.Background(), &Request{Method: http.MethodPost, Path: "/query", Body: map[string]string{"question": "torque?"}}, &out)
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if out.Answer != "torque is 40Nm" {
		t.Errorf("answer = %q", out.Answer)
	}
	if got := creds.refreshCount(); got != 1 {
		t.Errorf("refreshes = %d, want 1", got)
	}
	if got := hits.Load(); got != 2 {
		t.Errorf("hits = %d, want 2", got)
	}
}

func TestPipeline_SecondUnauthorizedIsNotRetried(t *testing.T) {
	var hits atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		writeJSON(w, http.StatusUnauthorized, `{"error":"account disabled"}`)
	})

	creds := signedIn()
	p := newTestPipeline(t, handler, nil, WithCredentials(creds))

	err := p.Do(context.Background(), &Request{Path: "/manuals"}, nil)
	if err == nil {
		t.Fatal("Do() succeeded, want auth failure")
	}
	ce := internal.AsClassified(err)
	if ce.Kind != internal.KindAuth {
		t.Errorf("kind = %v, want auth", ce.Kind)
	}
	if !errors.Is(err, internal.ErrAuthRequired) {
		t.Errorf("error %v does not unwrap to ErrAuthRequired", err)
	}
	if got := creds.refreshCount(); got != 1 {
		t.Errorf("refreshes = %d, want 1", got)
	}
	if got := hits.Load(); got != 2 {
		t.Errorf("hits = %d, want 2", got)
	}
}

func TestPipeline_RefreshFailureIsSurfaced(t *testing.T) {
	var hits atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		writeJSON(w, http.StatusUnauthorized, `{}`)
	})

	creds := signedIn()
	creds.refreshErr = internal.NewAuthRequiredError("refresh rejected", nil)
	p := newTestPipeline(t, handler, nil, WithCredentials(creds))

	err := p.Do(context.Background(), &Request{Path: "/usage"}, nil)
	if !errors.Is(err, internal.ErrAuthRequired) {
		t.Fatalf("Do() error = %v, want ErrAuthRequired", err)
	}
	if got := hits.Load(); got != 1 {
		t.Errorf("hits = %d, want 1", got)
	}
}

func TestPipeline_RateLimit(t *testing.T) {
	tests := []struct {
		name       string
		responses  []func(w http.ResponseWriter)
		wantSleeps []time.Duration
		wantHits   int32
		wantKind   internal.ErrorKind
		wantErr    bool
	}{
		{
			name: "retry after header is honoured",
			responses: []func(w http.ResponseWriter){
				func(w http.ResponseWriter) {
					w.Header().Set("Retry-After", "5")
					writeJSON(w, http.StatusTooManyRequests, `{}`)
				},
				func(w http.ResponseWriter) { writeJSON(w, http.StatusOK, `{"answer":"ok"}`) },
			},
			wantSleeps: []time.Duration{5 * time.Second},
			wantHits:   2,
		},
		{
			name: "second 429 is surfaced",
			responses: []func(w http.ResponseWriter){
				func(w http.ResponseWriter) {
					w.Header().Set("Retry-After", "5")
					writeJSON(w, http.StatusTooManyRequests, `{}`)
				},
				func(w http.ResponseWriter) {
					w.Header().Set("Retry-After", "5")
					writeJSON(w, http.StatusTooManyRequests, `{}`)
				},
			},
			wantSleeps: []time.Duration{5 * time.Second},
			wantHits:   2,
			wantKind:   internal.KindRateLimit,
			wantErr:    true,
		},
		{
			name: "floor applies without a hint",
			responses: []func(w http.ResponseWriter){
				func(w http.ResponseWriter) { writeJSON(w, http.StatusTooManyRequests, `{}`) },
				func(w http.ResponseWriter) { writeJSON(w, http.StatusOK, `{"answer":"ok"}`) },
			},
			wantSleeps: []time.Duration{DefaultRateLimitFloor},
			wantHits:   2,
		},
		{
			name: "body hint is used",
			responses: []func(w http.ResponseWriter){
				func(w http.ResponseWriter) { writeJSON(w, http.StatusTooManyRequests, `{"retry_after":7}`) },
				func(w http.ResponseWriter) { writeJSON(w, http.StatusOK, `{"answer":"ok"}`) },
			},
			wantSleeps: []time.Duration{7 * time.Second},
			wantHits:   2,
		},
		{
			name: "wait above ceiling fails fast",
			responses: []func(w http.ResponseWriter){
				func(w http.ResponseWriter) {
					w.Header().Set("Retry-After", "120")
					writeJSON(w, http.StatusTooManyRequests, `{}`)
				},
			},
			wantHits: 1,
			wantKind: internal.KindRateLimit,
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var hits atomic.Int32
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				n := int(hits.Add(1)) - 1
				if n >= len(tt.responses) {
					n = len(tt.responses) - 1
				}
				tt.responses[n](w)
			})

			sleeper := &sleepRecorder{}
			p := newTestPipeline(t, handler, nil, WithCredentials(signedIn()), WithSleeper(sleeper.sleep))

			var out answer
			err := p.Do(context.Background(), &Request{Path: "/usage"}, &out)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Do() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if ce := internal.AsClassified(err); ce.Kind != tt.wantKind {
					t.Errorf("kind = %v, want %v", ce.Kind, tt.wantKind)
				}
			}
			if got := hits.Load(); got != tt.wantHits {
				t.Errorf("hits = %d, want %d", got, tt.wantHits)
			}

			sleeps := sleeper.recorded()
			if len(sleeps) != len(tt.wantSleeps) {
				t.Fatalf("sleeps = %v, want %v", sleeps, tt.wantSleeps)
			}
			for i := range sleeps {
				if sleeps[i] != tt.wantSleeps[i] {
					t.Errorf("sleep[%d] = %v, want %v", i, sleeps[i], tt.wantSleeps[i])
				}
			}
		})
	}
}

func TestPipeline_ZeroCeilingDisablesRateLimitRetry(t *testing.T) {
	var hits atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		writeJSON(w, http.StatusTooManyRequests, `{}`)
	})

	sleeper := &sleepRecorder{}
	p := newTestPipeline(t, handler, func(cfg *internal.Config) { cfg.RateLimitMaxWait = 0 }, WithSleeper(sleeper.sleep))

	err := p.Do(context.Background(), &Request{Path: "/usage", Anonymous: true}, nil)
	if ce := internal.AsClassified(err); ce == nil || ce.Kind != internal.KindRateLimit {
		t.Fatalf("Do() error = %v, want rate limit", err)
	}
	if hits.Load() != 1 || len(sleeper.recorded()) != 0 {
		t.Errorf("hits = %d, sleeps = %v; want a single attempt and no sleep", hits.Load(), sleeper.recorded())
	}
}

func TestPipeline_TimeoutRetry(t *testing.T) {
	tests := []struct {
		name     string
		stalls   int32
		wantHits int32
		wantErr  bool
	}{
		{name: "first attempt times out", stalls: 1, wantHits: 2},
		{name: "both attempts time out", stalls: 2, wantHits: 2, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var hits atomic.Int32
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if hits.Add(1) <= tt.stalls {
					select {
					case <-r.Context().Done():
					case <-time.After(2 * time.Second):
					}
					return
				}
				writeJSON(w, http.StatusOK, `{"answer":"ok"}`)
			})

			sleeper := &sleepRecorder{}
			p := newTestPipeline(t, handler, nil, WithSleeper(sleeper.sleep))

			var out answer
			err := p.Do(context.Background(), &Request{Path: "/query", Anonymous: true, Timeout: 50 * time.Millisecond}, &out)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Do() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				ce := internal.AsClassified(err)
				if ce.Kind != internal.KindNetwork || !ce.Timeout {
					t.Errorf("error = %+v, want network timeout", ce)
				}
			}
			if got := hits.Load(); got != tt.wantHits {
				t.Errorf("hits = %d, want %d", got, tt.wantHits)
			}
			if sleeps := sleeper.recorded(); len(sleeps) != 1 || sleeps[0] != DefaultTimeoutRetryDelay {
				t.Errorf("sleeps = %v, want [%v]", sleeps, DefaultTimeoutRetryDelay)
			}
		})
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func TestPipeline_ConnectionFailureRetry(t *testing.T) {
	tests := []struct {
		name     string
		failures int32
		wantErr  bool
	}{
		{name: "first dial refused", failures: 1},
		{name: "every dial refused", failures: 10, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var attempts atomic.Int32
			transport := roundTripFunc(func(r *http.Request) (*http.Response, error) {
				if attempts.Add(1) <= tt.failures {
					return nil, &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
				}
				return &http.Response{
					StatusCode: http.StatusOK,
					Header:     http.Header{"Content-Type": []string{"application/json"}},
					Body:       io.NopCloser(strings.NewReader(`{"answer":"ok"}`)),
					Request:    r,
				}, nil
			})

			cfg := internal.DefaultConfig()
			cfg.APIBaseURL = "http://api.manualqa.test/v1"
			if err := cfg.ValidateConfig(); err != nil {
				t.Fatal(err)
			}
			sleeper := &sleepRecorder{}
			p, err := New(cfg, WithHTTPClient(&http.Client{Transport: transport}), WithSleeper(sleeper.sleep))
			if err != nil {
				t.Fatal(err)
			}

			var out answer
			err = p.Do(context.Background(), &Request{Path: "/query", Anonymous: true}, &out)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Do() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if ce := internal.AsClassified(err); ce.Kind != internal.KindNetwork || ce.Timeout {
					t.Errorf("error = %+v, want network without timeout", ce)
				}
			} else if out.Answer != "ok" {
				t.Errorf("answer = %q", out.Answer)
			}
			if got := attempts.Load(); got != 2 {
				t.Errorf("attempts = %d, want 2", got)
			}
			if sleeps := sleeper.recorded(); len(sleeps) != 1 || sleeps[0] != DefaultTimeoutRetryDelay {
				t.Errorf("sleeps = %v, want [%v]", sleeps, DefaultTimeoutRetryDelay)
			}
		})
	}
}

func TestPipeline_ServerErrorIsNotRetried(t *testing.T) {
	var hits atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		writeJSON(w, http.StatusServiceUnavailable, `{"error":"maintenance"}`)
	})

	p := newTestPipeline(t, handler, nil, WithCredentials(signedIn()))
	err := p.Do(context.Background(), &Request{Path: "/manuals"}, nil)
	if ce := internal.AsClassified(err); ce == nil || ce.Kind != internal.KindServer {
		t.Fatalf("Do() error = %v, want server", err)
	}
	if got := hits.Load(); got != 1 {
		t.Errorf("hits = %d, want 1", got)
	}
}

func TestPipeline_RetriesReplayRequest(t *testing.T) {
	type seen struct {
		requestID string
		auth      string
		agent     string
		ctype     string
		body      string
	}
	var mu sync.Mutex
	var attempts []seen

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		attempts = append(attempts, seen{
			requestID: r.Header.Get("X-Request-ID"),
			auth:      r.Header.Get("Authorization"),
			agent:     r.Header.Get("User-Agent"),
			ctype:     r.Header.Get("Content-Type"),
			body:      string(body),
		})
		n := len(attempts)
		mu.Unlock()

		if n == 1 {
			writeJSON(w, http.StatusTooManyRequests, `{}`)
			return
		}
		writeJSON(w, http.StatusOK, `{}`)
	})

	sleeper := &sleepRecorder{}
	var wrapped atomic.Int32
	p := newTestPipeline(t, handler, nil, WithCredentials(signedIn()), WithSleeper(sleeper.sleep))

	req := &Request{
		Method: http.MethodPost,
		Path:   "/query",
		Body:   map[string]string{"question": "how do I reset the filter?"},
		WrapBody: func(r io.Reader, size int64) io.Reader {
			wrapped.Add(1)
			return r
		},
	}
	if err := p.Do(context.Background(), req, nil); err != nil {
		t.Fatalf("Do() error = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(attempts) != 2 {
		t.Fatalf("attempts = %d, want 2", len(attempts))
	}
	first, second := attempts[0], attempts[1]
	if first.requestID == "" || first.requestID != second.requestID {
		t.Errorf("request IDs = %q, %q; want one stable ID", first.requestID, second.requestID)
	}
	if first.body != second.body || !strings.Contains(first.body, "reset the filter") {
		t.Errorf("bodies differ or are wrong: %q vs %q", first.body, second.body)
	}
	if first.auth != "Bearer id-1" {
		t.Errorf("Authorization = %q", first.auth)
	}
	if first.agent != userAgent {
		t.Errorf("User-Agent = %q", first.agent)
	}
	if first.ctype != "application/json" {
		t.Errorf("Content-Type = %q", first.ctype)
	}
	if got := wrapped.Load(); got != 2 {
		t.Errorf("body wrapped %d times, want 2", got)
	}
}

func TestPipeline_PayloadTooLargeFailsBeforeIO(t *testing.T) {
	var hits atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		writeJSON(w, http.StatusOK, `{}`)
	})

	p := newTestPipeline(t, handler, func(cfg *internal.Config) { cfg.MaxRequestSize = "1K" }, WithCredentials(signedIn()))

	err := p.Do(context.Background(), &Request{
		Method: http.MethodPost,
		Path:   "/manuals",
		Body:   map[string]string{"contentBase64": strings.Repeat("A", 2048)},
	}, nil)
	if !errors.Is(err, internal.ErrPayloadTooLarge) {
		t.Fatalf("Do() error = %v, want ErrPayloadTooLarge", err)
	}
	if ce := internal.AsClassified(err); ce.Kind != internal.KindValidation {
		t.Errorf("kind = %v, want validation", ce.Kind)
	}
	if got := hits.Load(); got != 0 {
		t.Errorf("hits = %d, want 0", got)
	}
}

func TestPipeline_ResponseDecoding(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		want     string
		wantKind internal.ErrorKind
		wantErr  bool
	}{
		{name: "plain object", body: `{"answer":"plain"}`, want: "plain"},
		{name: "envelope", body: `{"success":true,"data":{"answer":"wrapped"}}`, want: "wrapped"},
		{name: "envelope without data", body: `{"success":true}`},
		{name: "empty body", body: ``},
		{name: "envelope failure", body: `{"success":false,"error":"manual is still processing"}`, wantKind: internal.KindValidation, wantErr: true},
		{name: "malformed", body: `{"answer":`, wantKind: internal.KindUnknown, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusOK, tt.body)
			})
			p := newTestPipeline(t, handler, nil)

			var out answer
			err := p.Do(context.Background(), &Request{Path: "/query", Anonymous: true}, &out)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Do() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if ce := internal.AsClassified(err); ce.Kind != tt.wantKind {
					t.Errorf("kind = %v, want %v", ce.Kind, tt.wantKind)
				}
				return
			}
			if out.Answer != tt.want {
				t.Errorf("answer = %q, want %q", out.Answer, tt.want)
			}
		})
	}
}

func TestPipeline_AnonymousRequests(t *testing.T) {
	var hits atomic.Int32
	var auth atomic.Value
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		auth.Store(r.Header.Get("Authorization"))
		writeJSON(w, http.StatusUnauthorized, `{"error":"bad password"}`)
	})

	creds := signedIn()
	p := newTestPipeline(t, handler, nil, WithCredentials(creds))

	err := p.Do(context.Background(), &Request{Method: http.MethodPost, Path: "/auth/signin", Anonymous: true, Body: map[string]string{"email": "a@b.c"}}, nil)
	if ce := internal.AsClassified(err); ce == nil || ce.Kind != internal.KindAuth {
		t.Fatalf("Do() error = %v, want auth", err)
	}
	if got := auth.Load().(string); got != "" {
		t.Errorf("Authorization = %q, want none", got)
	}
	if creds.refreshCount() != 0 || hits.Load() != 1 {
		t.Errorf("refreshes = %d, hits = %d; want 0 and 1", creds.refreshCount(), hits.Load())
	}
}

func TestPipeline_NoSessionFailsBeforeIO(t *testing.T) {
	var hits atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	})

	p := newTestPipeline(t, handler, nil, WithCredentials(&fakeCreds{signedOut: true}))
	err := p.Do(context.Background(), &Request{Path: "/usage"}, nil)
	if !errors.Is(err, internal.ErrAuthRequired) {
		t.Fatalf("Do() error = %v, want ErrAuthRequired", err)
	}
	if hits.Load() != 0 {
		t.Errorf("hits = %d, want 0", hits.Load())
	}
}

func TestPipeline_ProactiveRefresh(t *testing.T) {
	var auth atomic.Value
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth.Store(r.Header.Get("Authorization"))
		writeJSON(w, http.StatusOK, `{}`)
	})

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	creds := signedIn()
	creds.bundle.Expiry = now.Add(10 * time.Second)

	p := newTestPipeline(t, handler, nil, WithCredentials(creds), WithClock(func() time.Time { return now }))
	if err := p.Do(context.Background(), &Request{Path: "/usage"}, nil); err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if got := auth.Load().(string); got != "Bearer id-2" {
		t.Errorf("Authorization = %q, want the refreshed token", got)
	}
	if creds.refreshCount() != 1 {
		t.Errorf("refreshes = %d, want 1", creds.refreshCount())
	}
}

func TestPipeline_CancelledBackoffEndsCall(t *testing.T) {
	var hits atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		writeJSON(w, http.StatusTooManyRequests, `{}`)
	})

	p := newTestPipeline(t, handler, nil, WithSleeper(func(ctx context.Context, d time.Duration) error {
		return context.Canceled
	}))

	err := p.Do(context.Background(), &Request{Path: "/usage", Anonymous: true}, nil)
	if ce := internal.AsClassified(err); ce == nil || ce.Kind != internal.KindRateLimit {
		t.Fatalf("Do() error = %v, want rate limit", err)
	}
	if hits.Load() != 1 {
		t.Errorf("hits = %d, want 1", hits.Load())
	}
}

func TestSleepContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sleepContext(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Errorf("sleepContext() = %v, want context.Canceled", err)
	}
	if err := sleepContext(context.Background(), time.Millisecond); err != nil {
		t.Errorf("sleepContext() = %v", err)
	}
}

func TestNew_RejectsBadBaseURL(t *testing.T) {
	cfg := internal.DefaultConfig()
	cfg.APIBaseURL = "https://api.example.com/v1?x=1"
	if _, err := New(cfg); !errors.Is(err, internal.ErrInvalidConfig) {
		t.Errorf("New() error = %v, want ErrInvalidConfig", err)
	}
}

func TestRequest_Operation(t *testing.T) {
	r := &Request{Method: http.MethodGet, Path: "/usage"}
	if got := r.operation(); got != "get /usage" {
		t.Errorf("operation() = %q", got)
	}
	r.Operation = "usage.get"
	if got := r.operation(); got != "usage.get" {
		t.Errorf("operation() = %q", got)
	}
}
