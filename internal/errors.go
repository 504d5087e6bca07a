package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// ErrorKind is the closed taxonomy every failure is mapped into
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindAuth
	KindRateLimit
	KindValidation
	KindNetwork
	KindServer
)

// ErrorSeverity represents the severity of an error
type ErrorSeverity int

const (
	SeverityInfo ErrorSeverity = iota
	SeverityWarning
	SeverityError
	SeverityCritical
)

// Sentinel errors. ClassifiedError unwraps to one of these where it applies.
var (
	ErrAuthRequired         = errors.New("authentication required")
	ErrAlreadyRecording     = errors.New("already recording")
	ErrNoActiveRecording    = errors.New("no active recording")
	ErrPayloadTooLarge      = errors.New("request payload too large")
	ErrConstraintViolation  = errors.New("constraint violation")
	ErrCapabilityUnresolved = errors.New("capability unresolved")
	ErrInvalidConfig        = errors.New("invalid configuration")
)

// ClassifiedError is a failure mapped to the taxonomy, carrying a message
// fit for the user and one fit for logs.
type ClassifiedError struct {
	Kind              ErrorKind     `json:"kind"`
	StatusCode        int           `json:"status,omitempty"`
	UserMessage       string        `json:"user_message"`
	TechnicalMessage  string        `json:"technical_message"`
	RetryAfterSeconds int           `json:"retry_after,omitempty"`
	Timeout           bool          `json:"timeout,omitempty"`
	Severity          ErrorSeverity `json:"severity"`
	Suggestion        string        `json:"suggestion,omitempty"`
	Operation         string        `json:"operation,omitempty"`

	cause error
}

// RawFailure is what the transport handed back for a failed attempt:
// either a transport error or a non-2xx response.
type RawFailure struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Err        error
}

// FailureContext describes the call a RawFailure belongs to
type FailureContext struct {
	Operation  string
	Method     string
	Path       string
	Attempt    int
	ReceivedAt time.Time
}

// Error implements the error interface
func (e *ClassifiedError) Error() string {
	parts := []string{fmt.Sprintf("%s error", e.Kind)}
	if e.StatusCode != 0 {
		parts[0] = fmt.Sprintf("%s error (status %d)", e.Kind, e.StatusCode)
	}
	if e.TechnicalMessage != "" {
		parts = append(parts, e.TechnicalMessage)
	} else if e.UserMessage != "" {
		parts = append(parts, e.UserMessage)
	}
	return strings.Join(parts, ": ")
}

// Unwrap exposes the sentinel or transport error behind the classification
func (e *ClassifiedError) Unwrap() error {
	return e.cause
}

// DetailedError returns a multi-line description for logs
func (e *ClassifiedError) DetailedError() string {
	var parts []string

	parts = append(parts, fmt.Sprintf("[%s] %s error", e.Severity.String(), e.Kind.String()))
	if e.Operation != "" {
		parts = append(parts, fmt.Sprintf("Operation: %s", e.Operation))
	}
	if e.StatusCode != 0 {
		parts = append(parts, fmt.Sprintf("Status: %d", e.StatusCode))
	}
	if e.TechnicalMessage != "" {
		parts = append(parts, fmt.Sprintf("Detail: %s", e.TechnicalMessage))
	}
	if e.RetryAfterSeconds > 0 {
		parts = append(parts, fmt.Sprintf("Retry after: %d seconds", e.RetryAfterSeconds))
	}
	if e.Suggestion != "" {
		parts = append(parts, fmt.Sprintf("Suggestion: %s", e.Suggestion))
	}

	return strings.Join(parts, "\n")
}

// IsRetryable reports whether the pipeline may retry this failure once
func (e *ClassifiedError) IsRetryable() bool {
	switch e.Kind {
	case KindRateLimit, KindNetwork:
		return true
	default:
		return false
	}
}

// WithCause returns a copy of the error that unwraps to cause
func (e *ClassifiedError) WithCause(cause error) *ClassifiedError {
	cp := *e
	cp.cause = cause
	return &cp
}

// String returns the wire name of the kind
func (k ErrorKind) String() string {
	switch k {
	case KindAuth:
		return "auth"
	case KindRateLimit:
		return "rateLimit"
	case KindValidation:
		return "validation"
	case KindNetwork:
		return "network"
	case KindServer:
		return "server"
	default:
		return "unknown"
	}
}

// String returns the string representation of ErrorSeverity
func (es ErrorSeverity) String() string {
	switch es {
	case SeverityInfo:
		return "INFO"
	case SeverityWarning:
		return "WARNING"
	case SeverityError:
		return "ERROR"
	case SeverityCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// Classify maps a raw failure to the taxonomy. It performs no I/O and reads
// no clock: the same inputs always produce the same value.
func Classify(raw RawFailure, fctx FailureContext) ClassifiedError {
	if raw.Err != nil {
		return classifyTransport(raw.Err, fctx)
	}

	body := parseErrorBody(raw.Body)
	technical := fmt.Sprintf("%s: status %d", describeCall(fctx), raw.StatusCode)
	if body.message != "" {
		technical = fmt.Sprintf("%s: %s", technical, body.message)
	} else if snippet := bodySnippet(raw.Body); snippet != "" {
		technical = fmt.Sprintf("%s: %s", technical, snippet)
	}

	ce := ClassifiedError{
		StatusCode:       raw.StatusCode,
		TechnicalMessage: technical,
		Operation:        fctx.Operation,
	}

	switch {
	case raw.StatusCode == http.StatusUnauthorized:
		ce.Kind = KindAuth
		ce.UserMessage = "Your session has expired. Please sign in again."
		ce.cause = ErrAuthRequired
	case raw.StatusCode == http.StatusForbidden:
		ce.Kind = KindAuth
		ce.UserMessage = "You don't have permission to do that with this account."
		if body.message != "" {
			ce.UserMessage = fmt.Sprintf("Access denied: %s", body.message)
		}
	case raw.StatusCode == http.StatusRequestTimeout:
		ce.Kind = KindNetwork
		ce.Timeout = true
		ce.UserMessage = "The request timed out. Check your connection and try again."
	case raw.StatusCode == http.StatusTooManyRequests:
		ce.Kind = KindRateLimit
		wait := RetryAfterFromHeader(raw.Header, fctx.ReceivedAt)
		if body.retryAfter > wait {
			wait = body.retryAfter
		}
		ce.RetryAfterSeconds = wait
		ce.UserMessage = rateLimitMessage(wait)
	case raw.StatusCode == http.StatusBadRequest,
		raw.StatusCode == http.StatusRequestEntityTooLarge,
		raw.StatusCode == http.StatusUnprocessableEntity:
		ce.Kind = KindValidation
		ce.UserMessage = validationMessage(raw.StatusCode, body.message)
		if raw.StatusCode == http.StatusRequestEntityTooLarge {
			ce.cause = ErrPayloadTooLarge
		}
	case raw.StatusCode >= 500:
		ce.Kind = KindServer
		ce.UserMessage = "The service is having trouble right now. Please try again later."
	default:
		ce.Kind = KindUnknown
		ce.UserMessage = "Something went wrong. Please try again."
	}

	ce.Severity = defaultSeverity(ce.Kind)
	ce.Suggestion = defaultSuggestion(ce.Kind, ce.StatusCode)
	return ce
}

func classifyTransport(err error, fctx FailureContext) ClassifiedError {
	ce := ClassifiedError{
		TechnicalMessage: fmt.Sprintf("%s: %v", describeCall(fctx), err),
		Operation:        fctx.Operation,
		cause:            err,
	}

	switch {
	case errors.Is(err, context.Canceled):
		ce.Kind = KindUnknown
		ce.UserMessage = "The request was cancelled."
	case isTimeout(err):
		ce.Kind = KindNetwork
		ce.Timeout = true
		ce.UserMessage = "The request timed out. Check your connection and try again."
	case isConnectivity(err):
		ce.Kind = KindNetwork
		ce.UserMessage = "Unable to reach the server. Check your connection and try again."
	default:
		ce.Kind = KindUnknown
		ce.UserMessage = "Something went wrong. Please try again."
	}

	ce.Severity = defaultSeverity(ce.Kind)
	ce.Suggestion = defaultSuggestion(ce.Kind, 0)
	return ce
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "timeout")
}

func isConnectivity(err error) bool {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ENETUNREACH) || errors.Is(err, syscall.EHOSTUNREACH) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	markers := []string{
		"connection refused",
		"connection reset",
		"no such host",
		"network is unreachable",
		"temporary failure",
		"eof",
	}
	for _, marker := range markers {
		if strings.Contains(errStr, marker) {
			return true
		}
	}
	return false
}

type errorBody struct {
	message    string
	retryAfter int
}

// parseErrorBody reads {error|message} and {retry_after|retryAfter} from a
// JSON error body. "error" may be a string or an object with a message.
func parseErrorBody(body []byte) errorBody {
	var out errorBody
	if len(body) == 0 {
		return out
	}

	var payload struct {
		Error           json.RawMessage `json:"error"`
		Message         string          `json:"message"`
		RetryAfter      json.Number     `json:"retry_after"`
		RetryAfterCamel json.Number     `json:"retryAfter"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return out
	}

	if len(payload.Error) > 0 {
		var s string
		if err := json.Unmarshal(payload.Error, &s); err == nil {
			out.message = s
		} else {
			var nested struct {
				Message string `json:"message"`
			}
			if err := json.Unmarshal(payload.Error, &nested); err == nil {
				out.message = nested.Message
			}
		}
	}
	if out.message == "" {
		out.message = payload.Message
	}

	for _, n := range []json.Number{payload.RetryAfter, payload.RetryAfterCamel} {
		if n == "" {
			continue
		}
		if f, err := n.Float64(); err == nil && f > 0 {
			if secs := int(math.Ceil(f)); secs > out.retryAfter {
				out.retryAfter = secs
			}
		}
	}
	return out
}

// RetryAfterFromHeader parses a Retry-After header given as delta-seconds or
// an HTTP date relative to receivedAt. Unparseable values yield 0.
func RetryAfterFromHeader(header http.Header, receivedAt time.Time) int {
	if header == nil {
		return 0
	}
	value := strings.TrimSpace(header.Get("Retry-After"))
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0
		}
		return secs
	}
	if when, err := http.ParseTime(value); err == nil && !receivedAt.IsZero() {
		delta := when.Sub(receivedAt)
		if delta <= 0 {
			return 0
		}
		return int(math.Ceil(delta.Seconds()))
	}
	return 0
}

func rateLimitMessage(wait int) string {
	if wait > 0 {
		return fmt.Sprintf("Too many requests. Please wait %d seconds and try again.", wait)
	}
	return "Too many requests. Please wait a moment and try again."
}

// validationMessage names the violated constraint when the server message
// carries a recognisable marker.
func validationMessage(status int, serverMessage string) string {
	lower := strings.ToLower(serverMessage)
	switch {
	case status == http.StatusRequestEntityTooLarge,
		strings.Contains(lower, "too large"),
		strings.Contains(lower, "size"),
		strings.Contains(lower, "exceeds"):
		if serverMessage != "" {
			return fmt.Sprintf("The file or request is too large: %s", serverMessage)
		}
		return "The file or request is too large. Try a smaller file."
	case strings.Contains(lower, "mime"),
		strings.Contains(lower, "file type"),
		strings.Contains(lower, "unsupported"):
		return fmt.Sprintf("This file type isn't supported: %s", serverMessage)
	case strings.Contains(lower, "required"),
		strings.Contains(lower, "missing"),
		strings.Contains(lower, "empty"):
		return fmt.Sprintf("Some required input is missing: %s", serverMessage)
	case serverMessage != "":
		return fmt.Sprintf("The request was rejected: %s", serverMessage)
	default:
		return "The request was rejected. Check your input and try again."
	}
}

func describeCall(fctx FailureContext) string {
	call := strings.TrimSpace(fctx.Method + " " + fctx.Path)
	if call == "" {
		call = fctx.Operation
	}
	if call == "" {
		call = "request"
	}
	if fctx.Attempt > 1 {
		call = fmt.Sprintf("%s (attempt %d)", call, fctx.Attempt)
	}
	return call
}

func bodySnippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}

// defaultSuggestion returns a default suggestion based on kind and status
func defaultSuggestion(kind ErrorKind, status int) string {
	switch kind {
	case KindAuth:
		if status == http.StatusForbidden {
			return "Check that your account has access to this resource"
		}
		return "Run 'manualqa login' to sign in again"
	case KindRateLimit:
		return "Wait before retrying; your plan limits how often you can ask"
	case KindValidation:
		return "Fix the input named in the message and try again"
	case KindNetwork:
		return "Check your internet connection or proxy settings and try again"
	case KindServer:
		return "The service reported an internal error. Try again later"
	default:
		return "Run with --debug for technical details"
	}
}

// defaultSeverity returns the default severity for an error kind
func defaultSeverity(kind ErrorKind) ErrorSeverity {
	switch kind {
	case KindRateLimit, KindNetwork:
		return SeverityWarning
	default:
		return SeverityError
	}
}

// AsClassified returns err as a ClassifiedError, classifying unknown errors
// as KindUnknown and ValidationErrors as KindValidation.
func AsClassified(err error) *ClassifiedError {
	if err == nil {
		return nil
	}
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Classified()
	}
	return &ClassifiedError{
		Kind:             KindUnknown,
		UserMessage:      "Something went wrong. Please try again.",
		TechnicalMessage: err.Error(),
		Severity:         SeverityError,
		Suggestion:       defaultSuggestion(KindUnknown, 0),
		cause:            err,
	}
}

// NewAuthRequiredError is returned once re-authentication is the only way forward
func NewAuthRequiredError(technical string, cause error) *ClassifiedError {
	if cause == nil {
		cause = ErrAuthRequired
	} else {
		cause = fmt.Errorf("%w: %w", ErrAuthRequired, cause)
	}
	return &ClassifiedError{
		Kind:             KindAuth,
		UserMessage:      "Please sign in again to continue.",
		TechnicalMessage: technical,
		Severity:         SeverityError,
		Suggestion:       defaultSuggestion(KindAuth, 0),
		cause:            cause,
	}
}

// NewConstraintError reports a local validation failure naming the violated constraint
func NewConstraintError(constraint, userMessage, technical string) *ClassifiedError {
	return &ClassifiedError{
		Kind:             KindValidation,
		UserMessage:      userMessage,
		TechnicalMessage: fmt.Sprintf("%s: %s", constraint, technical),
		Severity:         SeverityError,
		Suggestion:       defaultSuggestion(KindValidation, 0),
		Operation:        constraint,
		cause:            ErrConstraintViolation,
	}
}

// NewContractError reports misuse of a stateful adapter, e.g. stopping a
// recording that was never started. Never retryable.
func NewContractError(sentinel error, userMessage string) *ClassifiedError {
	return &ClassifiedError{
		Kind:             KindValidation,
		UserMessage:      userMessage,
		TechnicalMessage: sentinel.Error(),
		Severity:         SeverityWarning,
		cause:            sentinel,
	}
}

// NewMalformedResponseError reports a 2xx response missing data the client
// cannot work without. It is a server fault and never retried.
func NewMalformedResponseError(operation, technical string) *ClassifiedError {
	return &ClassifiedError{
		Kind:             KindServer,
		UserMessage:      "The server sent an unexpected response. Please try again later.",
		TechnicalMessage: fmt.Sprintf("%s: %s", operation, technical),
		Severity:         SeverityError,
		Suggestion:       defaultSuggestion(KindServer, 0),
		Operation:        operation,
	}
}

// NewPayloadTooLargeError is raised before any I/O when a body exceeds the configured maximum
func NewPayloadTooLargeError(size, limit int64) *ClassifiedError {
	return &ClassifiedError{
		Kind:             KindValidation,
		StatusCode:       http.StatusRequestEntityTooLarge,
		UserMessage:      fmt.Sprintf("The request is too large (%s, limit %s). Try a smaller file.", FormatBytes(size), FormatBytes(limit)),
		TechnicalMessage: fmt.Sprintf("payload of %d bytes exceeds limit of %d bytes", size, limit),
		Severity:         SeverityError,
		Suggestion:       defaultSuggestion(KindValidation, http.StatusRequestEntityTooLarge),
		cause:            ErrPayloadTooLarge,
	}
}

// ValidationError represents input validation errors in flags and configuration
type ValidationError struct {
	Field      string                 `json:"field"`
	Message    string                 `json:"message"`
	Value      interface{}            `json:"value,omitempty"`
	Suggestion string                 `json:"suggestion,omitempty"`
	Context    map[string]interface{} `json:"context,omitempty"`
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	parts := []string{fmt.Sprintf("validation error for %s: %s", e.Field, e.Message)}

	if e.Suggestion != "" {
		parts = append(parts, fmt.Sprintf("Suggestion: %s", e.Suggestion))
	}

	return strings.Join(parts, " - ")
}

// DetailedError returns a detailed validation error message
func (e *ValidationError) DetailedError() string {
	var parts []string

	parts = append(parts, fmt.Sprintf("Validation Error for field '%s'", e.Field))
	parts = append(parts, fmt.Sprintf("Message: %s", e.Message))

	if e.Value != nil {
		parts = append(parts, fmt.Sprintf("Provided value: %v", e.Value))
	}

	if len(e.Context) > 0 {
		contextParts := make([]string, 0, len(e.Context))
		for k, v := range e.Context {
			contextParts = append(contextParts, fmt.Sprintf("%s=%v", k, v))
		}
		parts = append(parts, fmt.Sprintf("Context: %s", strings.Join(contextParts, ", ")))
	}

	if e.Suggestion != "" {
		parts = append(parts, fmt.Sprintf("\nSuggestion: %s", e.Suggestion))
	}

	return strings.Join(parts, "\n")
}

// Classified converts the validation error into the shared taxonomy
func (e *ValidationError) Classified() *ClassifiedError {
	return &ClassifiedError{
		Kind:             KindValidation,
		UserMessage:      fmt.Sprintf("Invalid %s: %s", e.Field, e.Message),
		TechnicalMessage: e.Error(),
		Severity:         SeverityError,
		Suggestion:       e.Suggestion,
		cause:            e,
	}
}

// NewValidationError creates a new ValidationError
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Context: make(map[string]interface{}),
	}
}

// NewValidationErrorWithValue creates a ValidationError with the invalid value
func NewValidationErrorWithValue(field, message string, value interface{}) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
		Context: make(map[string]interface{}),
	}
}

// WithSuggestion adds a suggestion to the validation error
func (e *ValidationError) WithSuggestion(suggestion string) *ValidationError {
	e.Suggestion = suggestion
	return e
}

// WithContext adds context to the validation error
func (e *ValidationError) WithContext(key string, value interface{}) *ValidationError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}
