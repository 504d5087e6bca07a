// Package capability binds the platform-dependent families (credential
// storage, audio capture, file selection) to implementations for the
// environment the process runs in.
package capability

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"manualqa/internal"
)

// Family names a capability family
type Family string

const (
	FamilyCredentialStore Family = "credentialStore"
	FamilyAudioCapture    Family = "audioCapture"
	FamilyFileSelector    Family = "fileSelector"
)

// Families lists every family a resolver must bind
var Families = []Family{FamilyCredentialStore, FamilyAudioCapture, FamilyFileSelector}

// Binding records which implementation serves a family
type Binding struct {
	Family         Family
	Environment    Environment
	Implementation interface{}
}

// Host supplies the integrations only an embedding app can provide
type Host struct {
	Microphone Microphone
	Picker     Picker
}

// Options configures resolution
type Options struct {
	// Runtime overrides environment detection when non-empty
	Runtime         string
	DataDir         string
	KeyringService  string
	RecorderCommand string
	Host            *Host

	// Stdin and Stdout back the terminal file prompt
	Stdin  io.Reader
	Stdout io.Writer
}

// Resolver holds the bindings made once at startup. It never re-probes.
type Resolver struct {
	env      Environment
	bindings map[Family]Binding

	store    internal.CredentialStore
	audio    internal.AudioCapture
	selector internal.FileSelector
}

// NewResolver detects the environment and binds every family. Any family
// without an implementation is a fatal error wrapping ErrCapabilityUnresolved.
func NewResolver(opts Options) (*Resolver, error) {
	env, err := DetectEnvironment(opts.Runtime)
	if err != nil {
		return nil, err
	}
	return newResolverFor(env, opts)
}

func newResolverFor(env Environment, opts Options) (*Resolver, error) {
	if opts.DataDir == "" {
		return nil, fmt.Errorf("%w: data directory is required", internal.ErrCapabilityUnresolved)
	}
	if opts.Stdin == nil {
		opts.Stdin = os.Stdin
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stderr
	}

	r := &Resolver{env: env, bindings: make(map[Family]Binding, len(Families))}

	var err error
	switch env {
	case EnvTerminal:
		err = r.bindTerminal(opts)
	case EnvMobile:
		err = r.bindMobile(opts)
	case EnvBrowser:
		err = r.bindBrowser(opts)
	default:
		err = fmt.Errorf("%w: unknown environment %q", internal.ErrCapabilityUnresolved, env)
	}
	if err != nil {
		r.Close()
		return nil, err
	}

	for _, family := range Families {
		if _, ok := r.bindings[family]; !ok {
			r.Close()
			return nil, fmt.Errorf("%w: no %s implementation for %s", internal.ErrCapabilityUnresolved, family, env)
		}
	}

	internal.LogDebug("Capabilities bound for %s runtime", env)
	return r, nil
}

func (r *Resolver) bindTerminal(opts Options) error {
	store, err := NewSQLiteStore(opts.DataDir)
	if err != nil {
		return fmt.Errorf("%w: credential store: %v", internal.ErrCapabilityUnresolved, err)
	}
	r.bind(FamilyCredentialStore, store)
	r.bind(FamilyAudioCapture, newRecorder(newCommandBackend(opts.RecorderCommand), ""))
	r.bind(FamilyFileSelector, NewPathSelector(opts.Stdin, opts.Stdout))
	return nil
}

func (r *Resolver) bindMobile(opts Options) error {
	if err := requireHost(opts.Host, EnvMobile); err != nil {
		return err
	}
	service := opts.KeyringService
	if service == "" {
		service = "manualqa"
	}
	r.bind(FamilyCredentialStore, NewKeyringStore(service))
	r.bind(FamilyAudioCapture, newRecorder(&streamBackend{mic: opts.Host.Microphone}, filepath.Join(opts.DataDir, "recordings")))
	r.bind(FamilyFileSelector, NewPickerSelector(opts.Host.Picker))
	return nil
}

func (r *Resolver) bindBrowser(opts Options) error {
	if err := requireHost(opts.Host, EnvBrowser); err != nil {
		return err
	}
	r.bind(FamilyCredentialStore, NewFileStore(filepath.Join(opts.DataDir, "localstorage.json")))
	r.bind(FamilyAudioCapture, newRecorder(&streamBackend{mic: opts.Host.Microphone}, filepath.Join(opts.DataDir, "recordings")))
	r.bind(FamilyFileSelector, NewPickerSelector(opts.Host.Picker))
	return nil
}

func requireHost(host *Host, env Environment) error {
	switch {
	case host == nil:
		return fmt.Errorf("%w: %s runtime requires host integrations", internal.ErrCapabilityUnresolved, env)
	case host.Microphone == nil:
		return fmt.Errorf("%w: %s runtime has no microphone", internal.ErrCapabilityUnresolved, env)
	case host.Picker == nil:
		return fmt.Errorf("%w: %s runtime has no file picker", internal.ErrCapabilityUnresolved, env)
	}
	return nil
}

func (r *Resolver) bind(family Family, impl interface{}) {
	r.bindings[family] = Binding{Family: family, Environment: r.env, Implementation: impl}
	switch family {
	case FamilyCredentialStore:
		r.store = impl.(internal.CredentialStore)
	case FamilyAudioCapture:
		r.audio = impl.(internal.AudioCapture)
	case FamilyFileSelector:
		r.selector = impl.(internal.FileSelector)
	}
}

// Resolve returns the implementation bound to family
func (r *Resolver) Resolve(family Family) (interface{}, error) {
	b, ok := r.bindings[family]
	if !ok {
		return nil, fmt.Errorf("%w: %s", internal.ErrCapabilityUnresolved, family)
	}
	return b.Implementation, nil
}

// Environment is the runtime detected at construction
func (r *Resolver) Environment() Environment {
	return r.env
}

// Bindings returns a copy of every binding
func (r *Resolver) Bindings() []Binding {
	out := make([]Binding, 0, len(Families))
	for _, family := range Families {
		if b, ok := r.bindings[family]; ok {
			out = append(out, b)
		}
	}
	return out
}

func (r *Resolver) CredentialStore() internal.CredentialStore { return r.store }
func (r *Resolver) AudioCapture() internal.AudioCapture       { return r.audio }
func (r *Resolver) FileSelector() internal.FileSelector       { return r.selector }

// Close ends any recording, deletes transient audio and releases stores
func (r *Resolver) Close() error {
	var errs []error
	if r.audio != nil {
		if err := r.audio.Cleanup(); err != nil {
			errs = append(errs, err)
		}
	}
	if closer, ok := r.store.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
