package internal

import (
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"regexp"
	"runtime"
	"strings"
	"sync"
	"time"
)

// LogLevel represents different logging levels
type LogLevel int

const (
	LogLevelError LogLevel = iota
	LogLevelWarn
	LogLevelInfo
	LogLevelDebug
)

// String returns the string representation of the log level
func (l LogLevel) String() string {
	switch l {
	case LogLevelError:
		return "ERROR"
	case LogLevelWarn:
		return "WARN"
	case LogLevelInfo:
		return "INFO"
	case LogLevelDebug:
		return "DEBUG"
	default:
		return "UNKNOWN"
	}
}

// SecureLogger is a leveled logger that scrubs credentials from every line
type SecureLogger struct {
	mu        sync.RWMutex
	logger    *log.Logger
	level     LogLevel
	debug     bool
	quiet     bool
	redactors []Redactor
}

// Redactor defines an interface for redacting sensitive information
type Redactor interface {
	Redact(input string) string
}

// BearerRedactor hides bearer credentials and authorization header values
type BearerRedactor struct{}

var bearerPattern = regexp.MustCompile(`(?i)((?:authorization:\s*)?(?:bearer|basic)\s+|authorization:\s*)[^\s,;"]+`)

func (r *BearerRedactor) Redact(input string) string {
	return bearerPattern.ReplaceAllString(input, "${1}[REDACTED]")
}

// TokenFieldRedactor hides token and password fields in JSON bodies
type TokenFieldRedactor struct{}

var tokenFieldPattern = regexp.MustCompile(`(?i)("(?:accessToken|idToken|identityToken|refreshToken|access_token|id_token|refresh_token|password)"\s*:\s*")[^"]*(")`)

func (r *TokenFieldRedactor) Redact(input string) string {
	return tokenFieldPattern.ReplaceAllString(input, "${1}[REDACTED]${2}")
}

// URLRedactor redacts sensitive URL parameters
type URLRedactor struct{}

func (r *URLRedactor) Redact(input string) string {
	sensitiveParams := []string{
		"access_token=",
		"id_token=",
		"refresh_token=",
		"token=",
		"key=",
		"secret=",
		"password=",
	}

	result := input
	for _, param := range sensitiveParams {
		lower := strings.ToLower(result)
		index := strings.Index(lower, param)
		if index == -1 {
			continue
		}
		start := index + len(param)
		end := start
		for end < len(result) && result[end] != '&' && result[end] != ' ' && result[end] != '\n' {
			end++
		}
		if end > start {
			result = result[:start] + "[REDACTED]" + result[end:]
		}
	}
	return result
}

// NewSecureLogger creates a new secure logger
func NewSecureLogger(output io.Writer, level LogLevel, debug, quiet bool) *SecureLogger {
	return &SecureLogger{
		logger: log.New(output, "", 0), // formatting is ours
		level:  level,
		debug:  debug,
		quiet:  quiet,
		redactors: []Redactor{
			&BearerRedactor{},
			&TokenFieldRedactor{},
			&URLRedactor{},
		},
	}
}

// NewDefaultLogger creates a logger with default settings
func NewDefaultLogger(debug, quiet bool) *SecureLogger {
	level := LogLevelInfo
	if debug {
		level = LogLevelDebug
	}
	if quiet {
		level = LogLevelError
	}

	return NewSecureLogger(os.Stderr, level, debug, quiet)
}

func (sl *SecureLogger) redactSensitiveData(input string) string {
	sl.mu.RLock()
	redactors := sl.redactors
	sl.mu.RUnlock()

	result := input
	for _, redactor := range redactors {
		result = redactor.Redact(result)
	}
	return result
}

// formatMessage formats a log message with timestamp and, in debug mode, the caller
func (sl *SecureLogger) formatMessage(level LogLevel, message string, debug bool) string {
	timestamp := time.Now().Format("2006-01-02 15:04:05")

	if debug {
		for depth := 3; depth <= 6; depth++ {
			_, file, line, ok := runtime.Caller(depth)
			if ok && !strings.HasSuffix(file, "logger.go") && !strings.HasSuffix(file, "log.go") {
				parts := strings.Split(file, "/")
				filename := parts[len(parts)-1]
				return fmt.Sprintf("[%s] %s %s:%d %s", timestamp, level.String(), filename, line, message)
			}
		}
	}

	return fmt.Sprintf("[%s] %s %s", timestamp, level.String(), message)
}

func (sl *SecureLogger) shouldLog(level LogLevel) bool {
	sl.mu.RLock()
	defer sl.mu.RUnlock()
	if sl.quiet && level > LogLevelError {
		return false
	}
	return level <= sl.level
}

func (sl *SecureLogger) emit(level LogLevel, format string, args ...interface{}) {
	if !sl.shouldLog(level) {
		return
	}

	sl.mu.RLock()
	debug := sl.debug
	sl.mu.RUnlock()

	message := sl.redactSensitiveData(fmt.Sprintf(format, args...))
	sl.logger.Print(sl.formatMessage(level, message, debug))
}

// Error logs an error message
func (sl *SecureLogger) Error(format string, args ...interface{}) {
	sl.emit(LogLevelError, format, args...)
}

// Warn logs a warning message
func (sl *SecureLogger) Warn(format string, args ...interface{}) {
	sl.emit(LogLevelWarn, format, args...)
}

// Info logs an info message
func (sl *SecureLogger) Info(format string, args ...interface{}) {
	sl.emit(LogLevelInfo, format, args...)
}

// Debug logs a debug message
func (sl *SecureLogger) Debug(format string, args ...interface{}) {
	sl.emit(LogLevelDebug, format, args...)
}

// LogHTTPRequest logs an outgoing request with sensitive headers redacted
func (sl *SecureLogger) LogHTTPRequest(req *http.Request) {
	if !sl.shouldLog(LogLevelDebug) {
		return
	}

	sl.Debug("HTTP Request: %s %s Headers: %v", req.Method, req.URL.String(), sanitizeHeaders(req.Header))
}

// LogHTTPResponse logs a response with sensitive headers redacted
func (sl *SecureLogger) LogHTTPResponse(resp *http.Response, elapsed time.Duration) {
	if !sl.shouldLog(LogLevelDebug) {
		return
	}

	sl.Debug("HTTP Response: %s in %v Headers: %v", resp.Status, elapsed.Round(time.Millisecond), sanitizeHeaders(resp.Header))
}

func sanitizeHeaders(header http.Header) map[string]string {
	sanitized := make(map[string]string, len(header))
	for name, values := range header {
		if isSensitiveHeader(name) {
			sanitized[name] = "[REDACTED]"
		} else {
			sanitized[name] = strings.Join(values, ", ")
		}
	}
	return sanitized
}

func isSensitiveHeader(name string) bool {
	sensitiveHeaders := []string{
		"authorization",
		"cookie",
		"set-cookie",
		"x-auth-token",
		"x-api-key",
		"token",
	}

	lowerName := strings.ToLower(name)
	for _, sensitive := range sensitiveHeaders {
		if strings.Contains(lowerName, sensitive) {
			return true
		}
	}
	return false
}

// SetLevel sets the logging level
func (sl *SecureLogger) SetLevel(level LogLevel) {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	sl.level = level
}

// SetDebug enables or disables debug mode
func (sl *SecureLogger) SetDebug(debug bool) {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	sl.debug = debug
	if debug && sl.level < LogLevelDebug {
		sl.level = LogLevelDebug
	}
}

// SetQuiet enables or disables quiet mode
func (sl *SecureLogger) SetQuiet(quiet bool) {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	sl.quiet = quiet
	if quiet {
		sl.level = LogLevelError
	}
}

// AddRedactor adds a custom redactor
func (sl *SecureLogger) AddRedactor(redactor Redactor) {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	sl.redactors = append(sl.redactors, redactor)
}
