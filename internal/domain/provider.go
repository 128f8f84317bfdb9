package domain

import (
	"fmt"
	"strings"
	"time"
)

// Provider represents an external identity provider.
type Provider string

const (
	ProviderGoogle Provider = "GOOGLE"
	ProviderNaver  Provider = "NAVER"
	ProviderKakao  Provider = "KAKAO"
)

var providers = []Provider{ProviderGoogle, ProviderNaver, ProviderKakao}

// ParseProvider resolves a provider from its name or key, ignoring case and surrounding space.
func ParseProvider(key string) (Provider, error) {
	k := strings.ToUpper(strings.TrimSpace(key))
	for _, p := range providers {
		if string(p) == k {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedProvider, key)
}

// Key returns the lower-case key used in URLs and placeholder emails.
func (p Provider) Key() string {
	return strings.ToLower(string(p))
}

// Supported reports whether p is one of the known providers.
func (p Provider) Supported() bool {
	_, err := ParseProvider(string(p))
	return err == nil
}

// IdentityLink binds one external identity to one member.
type IdentityLink struct {
	ID            int64      `json:"id" db:"id"`
	MemberID      int64      `json:"member_id" db:"member_id"`
	Provider      Provider   `json:"provider" db:"provider"`
	Subject       string     `json:"subject" db:"subject"`
	ProviderEmail *string    `json:"provider_email,omitempty" db:"provider_email"`
	DisplayName   *string    `json:"display_name,omitempty" db:"display_name"`
	AvatarURL     *string    `json:"avatar_url,omitempty" db:"avatar_url"`
	LastLoginAt   *time.Time `json:"last_login_at,omitempty" db:"last_login_at"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at" db:"updated_at"`
}

// WithProfile returns a copy of the link with refreshed cached profile fields.
func (l IdentityLink) WithProfile(email, displayName, avatarURL string, now time.Time) IdentityLink {
	l.ProviderEmail = strPtr(email)
	l.DisplayName = strPtr(displayName)
	l.AvatarURL = strPtr(avatarURL)
	l.LastLoginAt = &now
	l.UpdatedAt = now
	return l
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
