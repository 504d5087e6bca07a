package services

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"manualqa/internal"
	"manualqa/session"
)

// AuthService signs users in and out and reports who is signed in
type AuthService struct {
	identity *IdentityClient
	sessions *session.Manager
}

// NewAuthService creates an auth facade
func NewAuthService(identity *IdentityClient, sessions *session.Manager) *AuthService {
	return &AuthService{identity: identity, sessions: sessions}
}

// SignIn authenticates and establishes the session
func (s *AuthService) SignIn(ctx context.Context, email, password string) (*internal.UserProfile, error) {
	email = strings.TrimSpace(email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, internal.NewValidationErrorWithValue("email", "a valid email address is required", email).Classified()
	}
	if password == "" {
		return nil, internal.NewValidationError("password", "password is required").Classified()
	}

	bundle, profile, err := s.identity.SignIn(ctx, email, password)
	if err != nil {
		var ce *internal.ClassifiedError
		if errors.As(err, &ce) && ce.StatusCode == http.StatusUnauthorized {
			rejected := *ce
			rejected.UserMessage = "Incorrect email or password."
			rejected.Suggestion = "Check your credentials and try again"
			return nil, &rejected
		}
		return nil, err
	}

	if profile == nil {
		profile = &internal.UserProfile{Email: email}
	}
	if err := s.sessions.Establish(ctx, bundle, profile); err != nil {
		return nil, err
	}
	internal.LogInfo("Signed in as %s", profile.Email)
	return profile, nil
}

// SignOut revokes the session server side when possible and always clears
// it locally
func (s *AuthService) SignOut(ctx context.Context) error {
	bundle, ok := s.sessions.Current()
	if !ok {
		return nil
	}
	if err := s.identity.SignOut(ctx, bundle); err != nil {
		internal.LogWarn("Server sign-out failed, clearing local session anyway: %v", err)
	}
	return s.sessions.Clear(ctx)
}

// CurrentUser returns the signed-in user
func (s *AuthService) CurrentUser() (internal.UserProfile, bool) {
	if _, ok := s.sessions.Current(); !ok {
		return internal.UserProfile{}, false
	}
	return s.sessions.Profile()
}

// IsSignedIn reports whether a session is live
func (s *AuthService) IsSignedIn() bool {
	_, ok := s.sessions.Current()
	return ok
}
