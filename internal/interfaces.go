package internal

import "context"

// CredentialStore persists small secrets. Get on an absent key returns
// ok == false and a nil error.
type CredentialStore interface {
	Set(ctx context.Context, key, value string) error
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Remove(ctx context.Context, key string) error
	Clear(ctx context.Context) error
}

// AudioCapture records one session at a time to transient storage
type AudioCapture interface {
	RequestPermission(ctx context.Context) (Permission, error)
	StartRecording(ctx context.Context, opts RecordingOptions) error
	StopRecording(ctx context.Context) (*Recording, error)
	IsRecording() bool
	ConvertToBase64(uri string) (string, error)
	Cleanup() error
}

// FileSelector picks files and reads them. SelectFile returns nil, nil when
// the user cancels; Info returns nil, nil for a missing file.
type FileSelector interface {
	SelectFile(ctx context.Context, constraints FileConstraints) (*FileSelection, error)
	ReadAsBase64(uri string) (string, error)
	ReadAsText(uri string) (string, error)
	Exists(uri string) bool
	Info(uri string) (*FileInfo, error)
}

// IdentityProvider exchanges a refresh token for a new bundle
type IdentityProvider interface {
	RefreshTokens(ctx context.Context, refreshToken string) (Bundle, error)
}

// CredentialSource is what the request pipeline needs from the session owner
type CredentialSource interface {
	Current() (Bundle, bool)
	Refresh(ctx context.Context, staleIdentityToken string) (Bundle, error)
}
