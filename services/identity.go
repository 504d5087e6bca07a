// Package services holds the typed facades over the backend API: identity,
// auth, query, manuals and usage.
package services

import (
	"context"
	"net/http"
	"time"

	"manualqa/client"
	"manualqa/internal"
)

// IdentityClient calls the identity endpoints. It is built on an anonymous
// pipeline so a refresh can never trigger another refresh.
type IdentityClient struct {
	pipeline *client.Pipeline
	now      func() time.Time
}

// NewIdentityClient creates an identity client over an anonymous pipeline
func NewIdentityClient(p *client.Pipeline) *IdentityClient {
	return &IdentityClient{pipeline: p, now: time.Now}
}

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// SignIn exchanges email and password for a bundle and the user's profile
func (c *IdentityClient) SignIn(ctx context.Context, email, password string) (internal.Bundle, *internal.UserProfile, error) {
	var resp authResponse
	err := c.pipeline.Do(ctx, &client.Request{
		Operation: "auth.signin",
		Method:    http.MethodPost,
		Path:      "/auth/signin",
		Body:      signInRequest{Email: email, Password: password},
		Anonymous: true,
	}, &resp)
	if err != nil {
		return internal.Bundle{}, nil, err
	}
	if resp.IDToken == "" {
		return internal.Bundle{}, nil, internal.NewMalformedResponseError("auth.signin", "response carried no idToken")
	}
	return resp.bundle(c.now()), resp.User, nil
}

// RefreshTokens exchanges a refresh token for a new bundle. The server may
// omit a new refresh token; the caller keeps the old one then.
func (c *IdentityClient) RefreshTokens(ctx context.Context, refreshToken string) (internal.Bundle, error) {
	var resp authResponse
	err := c.pipeline.Do(ctx, &client.Request{
		Operation: "auth.refresh",
		Method:    http.MethodPost,
		Path:      "/auth/refresh",
		Body:      refreshRequest{RefreshToken: refreshToken},
		Anonymous: true,
	}, &resp)
	if err != nil {
		return internal.Bundle{}, err
	}
	if resp.IDToken == "" {
		return internal.Bundle{}, internal.NewMalformedResponseError("auth.refresh", "response carried no idToken")
	}
	return resp.bundle(c.now()), nil
}

// SignOut revokes the session server side
func (c *IdentityClient) SignOut(ctx context.Context, bundle internal.Bundle) error {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+bundle.IdentityToken)
	return c.pipeline.Do(ctx, &client.Request{
		Operation: "auth.signout",
		Method:    http.MethodPost,
		Path:      "/auth/signout",
		Body:      refreshRequest{RefreshToken: bundle.RefreshToken},
		Header:    header,
		Anonymous: true,
	}, nil)
}
