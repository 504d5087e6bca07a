package internal

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"reflect"
	"strings"
	"syscall"
	"testing"
	"time"
)

var fixedTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestClassify_StatusCodes(t *testing.T) {
	fctx := FailureContext{Operation: "query.ask", Method: "POST", Path: "/query", Attempt: 1, ReceivedAt: fixedTime}

	tests := []struct {
		name       string
		raw        RawFailure
		wantKind   ErrorKind
		wantTimout bool
		wantRetry  int
		wantInUser string
	}{
		{
			name:       "unauthorized",
			raw:        RawFailure{StatusCode: 401},
			wantKind:   KindAuth,
			wantInUser: "sign in again",
		},
		{
			name:       "forbidden policy denial",
			raw:        RawFailure{StatusCode: 403, Body: []byte(`{"error":"plan does not include uploads"}`)},
			wantKind:   KindAuth,
			wantInUser: "plan does not include uploads",
		},
		{
			name:       "validation with size marker",
			raw:        RawFailure{StatusCode: 400, Body: []byte(`{"error":"file size exceeds 20MB"}`)},
			wantKind:   KindValidation,
			wantInUser: "too large",
		},
		{
			name:       "validation with nested message",
			raw:        RawFailure{StatusCode: 400, Body: []byte(`{"error":{"message":"question is required"}}`)},
			wantKind:   KindValidation,
			wantInUser: "question is required",
		},
		{
			name:       "payload too large",
			raw:        RawFailure{StatusCode: 413},
			wantKind:   KindValidation,
			wantInUser: "too large",
		},
		{
			name:       "rate limit header",
			raw:        RawFailure{StatusCode: 429, Header: http.Header{"Retry-After": []string{"5"}}},
			wantKind:   KindRateLimit,
			wantRetry:  5,
			wantInUser: "5 seconds",
		},
		{
			name:      "rate limit body hint larger than header",
			raw:       RawFailure{StatusCode: 429, Header: http.Header{"Retry-After": []string{"2"}}, Body: []byte(`{"retry_after": 7.2}`)},
			wantKind:  KindRateLimit,
			wantRetry: 8,
		},
		{
			name:      "rate limit http date",
			raw:       RawFailure{StatusCode: 429, Header: http.Header{"Retry-After": []string{fixedTime.Add(12 * time.Second).Format(http.TimeFormat)}}},
			wantKind:  KindRateLimit,
			wantRetry: 12,
		},
		{
			name:       "request timeout status",
			raw:        RawFailure{StatusCode: 408},
			wantKind:   KindNetwork,
			wantTimout: true,
		},
		{
			name:     "server error",
			raw:      RawFailure{StatusCode: 503, Body: []byte("upstream unavailable")},
			wantKind: KindServer,
		},
		{
			name:     "not found is unknown",
			raw:      RawFailure{StatusCode: 404},
			wantKind: KindUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ce := Classify(tt.raw, fctx)
			if ce.Kind != tt.wantKind {
				t.Errorf("Kind = %s, want %s", ce.Kind, tt.wantKind)
			}
			if ce.Timeout != tt.wantTimout {
				t.Errorf("Timeout = %v, want %v", ce.Timeout, tt.wantTimout)
			}
			if ce.RetryAfterSeconds != tt.wantRetry {
				t.Errorf("RetryAfterSeconds = %d, want %d", ce.RetryAfterSeconds, tt.wantRetry)
			}
			if tt.wantInUser != "" && !strings.Contains(ce.UserMessage, tt.wantInUser) {
				t.Errorf("UserMessage = %q, want it to contain %q", ce.UserMessage, tt.wantInUser)
			}
			if ce.TechnicalMessage == "" {
				t.Error("TechnicalMessage should never be empty")
			}
			if ce.StatusCode != tt.raw.StatusCode {
				t.Errorf("StatusCode = %d, want %d", ce.StatusCode, tt.raw.StatusCode)
			}
		})
	}
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o deadline reached" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassify_TransportErrors(t *testing.T) {
	fctx := FailureContext{Method: "GET", Path: "/manuals"}

	tests := []struct {
		name        string
		err         error
		wantKind    ErrorKind
		wantTimeout bool
	}{
		{"deadline exceeded", fmt.Errorf("do: %w", context.DeadlineExceeded), KindNetwork, true},
		{"net timeout", timeoutErr{}, KindNetwork, true},
		{"dns failure", &net.DNSError{Err: "no such host", Name: "api.example.com"}, KindNetwork, false},
		{"connection refused", &net.OpError{Op: "dial", Err: syscall.ECONNREFUSED}, KindNetwork, false},
		{"cancelled", context.Canceled, KindUnknown, false},
		{"opaque", errors.New("tls: bad certificate"), KindUnknown, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ce := Classify(RawFailure{Err: tt.err}, fctx)
			if ce.Kind != tt.wantKind {
				t.Errorf("Kind = %s, want %s", ce.Kind, tt.wantKind)
			}
			if ce.Timeout != tt.wantTimeout {
				t.Errorf("Timeout = %v, want %v", ce.Timeout, tt.wantTimeout)
			}
			if !errors.Is(&ce, tt.err) {
				t.Error("classified transport error should unwrap to the original error")
			}
		})
	}
}

func TestClassify_Deterministic(t *testing.T) {
	raws := []RawFailure{
		{StatusCode: 429, Header: http.Header{"Retry-After": []string{"3"}}, Body: []byte(`{"retryAfter":4}`)},
		{StatusCode: 400, Body: []byte(`{"message":"unsupported mime type"}`)},
		{StatusCode: 500},
		{Err: context.DeadlineExceeded},
	}
	fctx := FailureContext{Operation: "op", Method: "POST", Path: "/x", Attempt: 2, ReceivedAt: fixedTime}

	for _, raw := range raws {
		first := Classify(raw, fctx)
		second := Classify(raw, fctx)
		if !reflect.DeepEqual(first, second) {
			t.Errorf("Classify is not deterministic: %+v vs %+v", first, second)
		}
	}
}

func TestClassify_UnauthorizedUnwrapsToAuthRequired(t *testing.T) {
	ce := Classify(RawFailure{StatusCode: 401}, FailureContext{})
	if !errors.Is(&ce, ErrAuthRequired) {
		t.Error("401 should unwrap to ErrAuthRequired")
	}
}

func TestRetryAfterFromHeader(t *testing.T) {
	tests := []struct {
		value string
		want  int
	}{
		{"", 0},
		{"10", 10},
		{"-3", 0},
		{"soon", 0},
		{fixedTime.Add(-time.Minute).Format(http.TimeFormat), 0},
		{fixedTime.Add(90 * time.Second).Format(http.TimeFormat), 90},
	}

	for _, tt := range tests {
		h := http.Header{}
		if tt.value != "" {
			h.Set("Retry-After", tt.value)
		}
		if got := RetryAfterFromHeader(h, fixedTime); got != tt.want {
			t.Errorf("RetryAfterFromHeader(%q) = %d, want %d", tt.value, got, tt.want)
		}
	}
}

func TestClassifiedError_DetailedError(t *testing.T) {
	ce := Classify(RawFailure{StatusCode: 429, Header: http.Header{"Retry-After": []string{"60"}}},
		FailureContext{Operation: "query.ask", Method: "POST", Path: "/query"})

	result := ce.DetailedError()

	for _, want := range []string{"WARNING", "rateLimit error", "Operation: query.ask", "Status: 429", "Retry after: 60 seconds", "Suggestion:"} {
		if !strings.Contains(result, want) {
			t.Errorf("DetailedError() missing %q in %q", want, result)
		}
	}
}

func TestClassifiedError_IsRetryable(t *testing.T) {
	retryable := map[ErrorKind]bool{
		KindAuth:       false,
		KindRateLimit:  true,
		KindValidation: false,
		KindNetwork:    true,
		KindServer:     false,
		KindUnknown:    false,
	}
	for kind, want := range retryable {
		ce := &ClassifiedError{Kind: kind}
		if ce.IsRetryable() != want {
			t.Errorf("IsRetryable() for %s = %v, want %v", kind, !want, want)
		}
	}
}

func TestNewMalformedResponseError(t *testing.T) {
	ce := NewMalformedResponseError("auth.refresh", "response carried no idToken")
	if ce.Kind != KindServer || ce.IsRetryable() {
		t.Errorf("kind = %v retryable = %v, want non-retryable server", ce.Kind, ce.IsRetryable())
	}
	if ce.Operation != "auth.refresh" || !strings.Contains(ce.TechnicalMessage, "idToken") {
		t.Errorf("error = %+v", ce)
	}
	if AsClassified(ce) != ce {
		t.Error("AsClassified should return the same error")
	}
}

func TestAsClassified(t *testing.T) {
	if AsClassified(nil) != nil {
		t.Error("AsClassified(nil) should be nil")
	}

	wrapped := fmt.Errorf("ask: %w", NewPayloadTooLargeError(30, 10))
	if ce := AsClassified(wrapped); ce.Kind != KindValidation || !errors.Is(ce, ErrPayloadTooLarge) {
		t.Errorf("wrapped classified error not recovered: %+v", ce)
	}

	ve := NewValidationErrorWithValue("timeout", "must be positive", -1)
	if ce := AsClassified(ve); ce.Kind != KindValidation {
		t.Errorf("ValidationError should classify as validation, got %s", ce.Kind)
	}

	if ce := AsClassified(errors.New("boom")); ce.Kind != KindUnknown || ce.TechnicalMessage != "boom" {
		t.Errorf("plain error should classify as unknown with technical detail, got %+v", ce)
	}
}

func TestNewContractError(t *testing.T) {
	ce := NewContractError(ErrNoActiveRecording, "There is no recording to stop.")
	if !errors.Is(ce, ErrNoActiveRecording) {
		t.Error("contract error should unwrap to its sentinel")
	}
	if ce.IsRetryable() {
		t.Error("contract errors must not be retryable")
	}
}

func TestValidationError_Error(t *testing.T) {
	err := NewValidationError("api_url", "must be absolute").WithSuggestion("Use https://...")

	result := err.Error()
	if !strings.Contains(result, "validation error for api_url") {
		t.Errorf("unexpected message %q", result)
	}
	if !strings.Contains(result, "Suggestion: Use https://...") {
		t.Errorf("suggestion missing from %q", result)
	}
}
