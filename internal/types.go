package internal

import (
	"time"
)

// Storage keys for persisted client state
const (
	KeyBundle  = "manualqa.auth.bundle"
	KeyProfile = "manualqa.auth.user"
)

// Bundle is the credential set of one authenticated session
type Bundle struct {
	AccessToken   string    `json:"accessToken"`
	IdentityToken string    `json:"identityToken"`
	RefreshToken  string    `json:"refreshToken"`
	Expiry        time.Time `json:"expiry"`
}

// IsZero reports whether the bundle holds no credentials
func (b Bundle) IsZero() bool {
	return b.IdentityToken == "" && b.AccessToken == "" && b.RefreshToken == ""
}

// Expired reports whether the bundle is past its expiry, allowing skew.
// A zero expiry never expires locally; the server decides.
func (b Bundle) Expired(now time.Time, skew time.Duration) bool {
	if b.Expiry.IsZero() {
		return false
	}
	return !now.Before(b.Expiry.Add(-skew))
}

// UserProfile is the signed-in user as reported by the backend
type UserProfile struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// Permission is the outcome of a capability permission request
type Permission int

const (
	PermissionDenied Permission = iota
	PermissionGranted
)

func (p Permission) String() string {
	if p == PermissionGranted {
		return "granted"
	}
	return "denied"
}

// RecordingOptions configures an audio capture session
type RecordingOptions struct {
	// MaxDurationSeconds stops the session automatically when > 0
	MaxDurationSeconds float64
	SampleRate         int
	Channels           int
	Format             string
}

// WithDefaults fills unset fields
func (o RecordingOptions) WithDefaults() RecordingOptions {
	if o.SampleRate <= 0 {
		o.SampleRate = 16000
	}
	if o.Channels <= 0 {
		o.Channels = 1
	}
	if o.Format == "" {
		o.Format = "wav"
	}
	return o
}

// RecordingSession is the live state of one capture
type RecordingSession struct {
	ID        string
	URI       string
	StartedAt time.Time
	Active    bool
}

// Recording is a finished capture on transient storage
type Recording struct {
	URI             string  `json:"uri"`
	DurationSeconds float64 `json:"durationSeconds"`
	SizeBytes       int64   `json:"sizeBytes"`
	Format          string  `json:"format"`
}

// FileConstraints restrict what a file selector may return
type FileConstraints struct {
	MaxSizeBytes      int64
	AllowedMIMETypes  []string
	AllowedExtensions []string
}

// FileSelection is an immutable description of a picked file. The caller
// owns the file afterwards.
type FileSelection struct {
	URI          string    `json:"uri"`
	Name         string    `json:"name"`
	SizeBytes    int64     `json:"sizeBytes"`
	MIMEType     string    `json:"mimeType"`
	LastModified time.Time `json:"lastModified"`
}

// FileInfo is the stat result of a file selector
type FileInfo struct {
	SizeBytes    int64
	LastModified time.Time
	MIMEType     string
}
