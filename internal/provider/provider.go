package provider

import (
	"context"
	"fmt"
	"sort"

	"github.com/sumire/stay/internal/domain"
)

// Profile is the provider-agnostic identity returned by FetchProfile.
// Email is never empty; providers that omit it get a placeholder address.
type Profile struct {
	Provider    domain.Provider
	ExternalID  string
	Email       string
	DisplayName string
	AvatarURL   string
	// EmailVerified is false when Email was synthesized.
	EmailVerified bool
}

// Adapter hides one provider's OAuth endpoints and wire formats.
// Implementations return identity facts only; they never create or link members.
type Adapter interface {
	Provider() domain.Provider
	AuthCodeURL(state string) string
	ExchangeCode(ctx context.Context, code string) (string, error)
	FetchProfile(ctx context.Context, accessToken string) (*Profile, error)
}

// Registry holds the configured adapters keyed by provider.
type Registry struct {
	adapters map[domain.Provider]Adapter
}

// NewRegistry registers the given adapters. Later duplicates replace earlier ones.
func NewRegistry(list ...Adapter) *Registry {
	m := make(map[domain.Provider]Adapter, len(list))
	for _, a := range list {
		m[a.Provider()] = a
	}
	return &Registry{adapters: m}
}

// Get returns the adapter for p or ErrUnsupportedProvider.
func (r *Registry) Get(p domain.Provider) (Adapter, error) {
	a, ok := r.adapters[p]
	if !ok {
		return nil, fmt.Errorf("%w: %s is not configured", domain.ErrUnsupportedProvider, p)
	}
	return a, nil
}

// Providers lists configured providers in name order.
func (r *Registry) Providers() []domain.Provider {
	out := make([]domain.Provider, 0, len(r.adapters))
	for p := range r.adapters {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
