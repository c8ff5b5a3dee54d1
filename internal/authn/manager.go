package authn

import (
	"context"
	"errors"
	"fmt"
)

// Provider validates credentials against one backend.
type Provider interface {
	// Name identifies the provider in logs and in Authentication.Source.
	Name() string
	// Supports reports whether the provider can handle the credentials.
	// Unsupported credentials are skipped by the manager.
	Supports(creds Credentials) bool
	Authenticate(ctx context.Context, creds Credentials) (*Authentication, error)
}

// Manager authenticates credentials.
type Manager interface {
	Authenticate(ctx context.Context, creds Credentials) (*Authentication, error)
}

// ManagerFunc adapts a function to the Manager interface.
type ManagerFunc func(ctx context.Context, creds Credentials) (*Authentication, error)

func (f ManagerFunc) Authenticate(ctx context.Context, creds Credentials) (*Authentication, error) {
	return f(ctx, creds)
}

// ProviderManager tries its providers in order. The first provider that
// returns an authentication wins. A bad-credentials failure lets the next
// provider try; any other error stops the evaluation.
type ProviderManager struct {
	providers []Provider
	parent    Manager
}

// NewProviderManager creates a manager over the providers. parent may be nil;
// it is consulted when no provider produced a result.
func NewProviderManager(parent Manager, providers ...Provider) *ProviderManager {
	return &ProviderManager{providers: providers, parent: parent}
}

// Providers returns the registered providers in evaluation order.
func (m *ProviderManager) Providers() []Provider {
	return m.providers
}

func (m *ProviderManager) Authenticate(ctx context.Context, creds Credentials) (*Authentication, error) {
	var lastErr error
	for _, p := range m.providers {
		if !p.Supports(creds) {
			continue
		}
		auth, err := p.Authenticate(ctx, creds)
		if err == nil && auth == nil {
			// the provider abstained
			continue
		}
		if err == nil {
			if auth.Source == "" {
				auth.Source = p.Name()
			}
			return auth, nil
		}
		if !errors.Is(err, ErrBadCredentials) {
			return nil, err
		}
		lastErr = err
	}
	if m.parent != nil {
		auth, err := m.parent.Authenticate(ctx, creds)
		if err == nil && auth != nil {
			return auth, nil
		}
		if err != nil && (lastErr == nil || !errors.Is(err, ErrProviderNotFound)) {
			lastErr = err
		}
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("%w: %s", ErrProviderNotFound, creds.Username)
	}
	return nil, lastErr
}

// ManagerBuilder collects providers before the manager is built.
type ManagerBuilder struct {
	parent    Manager
	providers []Provider
}

// NewManagerBuilder starts a builder with the given providers.
func NewManagerBuilder(providers ...Provider) *ManagerBuilder {
	return &ManagerBuilder{providers: append([]Provider(nil), providers...)}
}

// Parent sets the manager consulted when no provider matched.
func (b *ManagerBuilder) Parent(parent Manager) *ManagerBuilder {
	b.parent = parent
	return b
}

// AuthenticationProvider appends a provider, keeping registration order.
func (b *ManagerBuilder) AuthenticationProvider(p Provider) *ManagerBuilder {
	if p != nil {
		b.providers = append(b.providers, p)
	}
	return b
}

// IsConfigured reports whether the builder can produce a working manager.
func (b *ManagerBuilder) IsConfigured() bool {
	return len(b.providers) > 0 || b.parent != nil
}

func (b *ManagerBuilder) Build() *ProviderManager {
	return NewProviderManager(b.parent, b.providers...)
}
