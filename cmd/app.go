package cmd

import (
	"context"
	"errors"
	"os"

	"manualqa/capability"
	"manualqa/client"
	"manualqa/internal"
	"manualqa/services"
	"manualqa/session"
)

// App is the wired client: capability bindings, the session and the facades
type App struct {
	Resolver *capability.Resolver
	Sessions *session.Manager
	Auth     *services.AuthService
	Query    *services.QueryService
	Manuals  *services.ManualsService
	Usage    *services.UsageService
}

var app *App

// newApp resolves capabilities, restores the persisted session and builds
// the facades. Resolution failures are fatal.
func newApp(ctx context.Context, cfg *internal.Config) (*App, error) {
	resolver, err := capability.NewResolver(capability.Options{
		Runtime:         cfg.Runtime,
		DataDir:         cfg.DataDir,
		KeyringService:  cfg.KeyringService,
		RecorderCommand: cfg.RecorderCommand,
		Stdin:           os.Stdin,
		Stdout:          os.Stderr,
	})
	if err != nil {
		return nil, err
	}
	for _, b := range resolver.Bindings() {
		internal.LogDebug("Capability %s bound for %s: %T", b.Family, b.Environment, b.Implementation)
	}

	anonymous, err := client.New(cfg)
	if err != nil {
		resolver.Close()
		return nil, err
	}
	identity := services.NewIdentityClient(anonymous)

	sessions := session.NewManager(resolver.CredentialStore(), identity)
	if err := sessions.Load(ctx); err != nil {
		internal.LogWarn("Could not restore the saved session: %v", err)
	}

	authed, err := client.New(cfg, client.WithCredentials(sessions))
	if err != nil {
		resolver.Close()
		return nil, err
	}

	return &App{
		Resolver: resolver,
		Sessions: sessions,
		Auth:     services.NewAuthService(identity, sessions),
		Query:    services.NewQueryService(authed, resolver.AudioCapture()),
		Manuals:  services.NewManualsService(authed, resolver.FileSelector()),
		Usage:    services.NewUsageService(authed),
	}, nil
}

// requireApp builds the process-wide App on first use
func requireApp(ctx context.Context) (*App, error) {
	if app != nil {
		return app, nil
	}
	a, err := newApp(ctx, config)
	if err != nil {
		return nil, err
	}
	app = a
	return app, nil
}

// requireSignedIn fails early with an auth error when no session exists
func requireSignedIn(ctx context.Context) (*App, error) {
	a, err := requireApp(ctx)
	if err != nil {
		return nil, err
	}
	if !a.Auth.IsSignedIn() {
		return nil, internal.NewAuthRequiredError("no saved session", nil)
	}
	return a, nil
}

func closeApp() {
	if app == nil {
		return
	}
	if err := app.Resolver.Close(); err != nil && !errors.Is(err, context.Canceled) {
		internal.LogWarn("Cleanup failed: %v", err)
	}
	app = nil
}
