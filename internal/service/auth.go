package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sumire/stay/internal/domain"
	"github.com/sumire/stay/internal/metrics"
	"github.com/sumire/stay/internal/provider"
	"github.com/sumire/stay/internal/session"
	"github.com/sumire/stay/internal/signup"
)

const (
	TokenTypeBearer = "Bearer"

	defaultSignupTTL = 30 * time.Minute
)

// AuthConfig holds orchestration settings.
type AuthConfig struct {
	SignupTTL time.Duration
}

// AuthService turns authorization codes into sessions and refreshes them.
type AuthService struct {
	providers *provider.Registry
	resolver  *IdentityResolver
	members   MemberStore
	issuer    *session.Issuer
	signups   signup.Store
	signupTTL time.Duration
	now       func() time.Time
}

// NewAuthService creates a new AuthService.
func NewAuthService(
	providers *provider.Registry,
	resolver *IdentityResolver,
	members MemberStore,
	issuer *session.Issuer,
	signups signup.Store,
	cfg AuthConfig,
) *AuthService {
	ttl := cfg.SignupTTL
	if ttl <= 0 {
		ttl = defaultSignupTTL
	}
	return &AuthService{
		providers: providers,
		resolver:  resolver,
		members:   members,
		issuer:    issuer,
		signups:   signups,
		signupTTL: ttl,
		now:       time.Now,
	}
}

// TokenResponse is returned by Login, Register and Refresh.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	IsNewMember  bool   `json:"is_new_member"`
	Email        string `json:"email,omitempty"`
}

// NewMemberProfile describes a provider identity waiting for signup.
type NewMemberProfile struct {
	Email             string          `json:"email"`
	Provider          domain.Provider `json:"provider"`
	ProviderSubjectID string          `json:"provider_subject_id"`
	DisplayName       string          `json:"display_name"`
	AvatarURL         string          `json:"avatar_url,omitempty"`
	SignupTicket      string          `json:"signup_ticket"`
	ExpiresAt         time.Time       `json:"expires_at"`
}

// LoginResult carries either tokens or, when signup is required, the new member profile.
type LoginResult struct {
	Tokens    *TokenResponse    `json:"tokens,omitempty"`
	NewMember *NewMemberProfile `json:"new_member,omitempty"`
}

// AuthURL returns the provider consent page URL.
func (s *AuthService) AuthURL(providerKey, state string) (string, error) {
	p, err := domain.ParseProvider(providerKey)
	if err != nil {
		return "", err
	}
	adapter, err := s.providers.Get(p)
	if err != nil {
		return "", err
	}
	return adapter.AuthCodeURL(state), nil
}

// Login exchanges an authorization code and resolves it to a session.
func (s *AuthService) Login(ctx context.Context, providerKey, code string) (*LoginResult, error) {
	p, err := domain.ParseProvider(providerKey)
	if err != nil {
		metrics.LoginsTotal.WithLabelValues("unknown", "failure").Inc()
		return nil, err
	}
	adapter, err := s.providers.Get(p)
	if err != nil {
		return nil, s.loginFailed(ctx, p, "provider", err)
	}

	accessToken, err := adapter.ExchangeCode(ctx, code)
	if err != nil {
		return nil, s.loginFailed(ctx, p, "exchange", err)
	}

	profile, err := adapter.FetchProfile(ctx, accessToken)
	if err != nil {
		return nil, s.loginFailed(ctx, p, "profile", err)
	}

	res, err := s.resolver.Resolve(ctx, profile)
	if errors.Is(err, domain.ErrSignupRequired) {
		pending, err := s.startSignup(ctx, profile)
		if err != nil {
			return nil, s.loginFailed(ctx, p, "signup", err)
		}
		metrics.LoginsTotal.WithLabelValues(string(p), "signup_required").Inc()
		return &LoginResult{NewMember: pending}, nil
	}
	if err != nil {
		return nil, s.loginFailed(ctx, p, "resolve", err)
	}

	tokens, err := s.issueTokens(res.Member, res.IsNew)
	if err != nil {
		return nil, s.loginFailed(ctx, p, "issue", err)
	}

	metrics.LoginsTotal.WithLabelValues(string(p), "success").Inc()
	slog.InfoContext(ctx, "member logged in",
		"member_id", res.Member.ID,
		"provider", p,
		"new_member", res.IsNew,
		"linked", res.Linked,
		"reactivated", res.Reactivated,
	)
	return &LoginResult{Tokens: tokens}, nil
}

// Register completes a pending signup with the chosen nickname.
func (s *AuthService) Register(ctx context.Context, ticket, nickname string) (*TokenResponse, error) {
	pending, err := s.signups.Get(ctx, ticket)
	if err != nil {
		return nil, err
	}

	profile := &provider.Profile{
		Provider:      pending.Provider,
		ExternalID:    pending.Subject,
		Email:         pending.Email,
		DisplayName:   pending.DisplayName,
		AvatarURL:     pending.AvatarURL,
		EmailVerified: pending.EmailVerified,
	}
	m, err := s.resolver.Register(ctx, profile, nickname)
	if err != nil {
		return nil, err
	}

	if err := s.signups.Delete(ctx, ticket); err != nil {
		slog.WarnContext(ctx, "failed to drop signup ticket", "member_id", m.ID, "error", err)
	}

	tokens, err := s.issueTokens(*m, true)
	if err != nil {
		slog.ErrorContext(ctx, "issue tokens after signup", "member_id", m.ID, "error", err)
		return nil, domain.ErrInternal
	}
	slog.InfoContext(ctx, "member registered", "member_id", m.ID, "provider", pending.Provider)
	return tokens, nil
}

// Refresh mints a new access token from a refresh token.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	claims, err := s.issuer.ValidateKind(refreshToken, session.KindRefresh)
	if err != nil {
		return nil, err
	}
	id, err := claims.MemberID()
	if err != nil {
		return nil, err
	}

	m, err := s.members.FindByID(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("%w: member %d no longer exists", domain.ErrUnauthorized, id)
	}
	if err != nil {
		return nil, err
	}
	if !m.Usable() {
		return nil, fmt.Errorf("%w: member %d", domain.ErrAccountNotActive, id)
	}

	access, err := s.issuer.IssueAccess(m.ID, m.Email)
	if err != nil {
		return nil, err
	}
	return &TokenResponse{
		AccessToken: access,
		TokenType:   TokenTypeBearer,
		ExpiresIn:   int64(s.issuer.AccessValidity() / time.Second),
	}, nil
}

// Authenticate validates an access token and returns its member ID.
func (s *AuthService) Authenticate(token string) (int64, error) {
	claims, err := s.issuer.ValidateKind(token, session.KindAccess)
	if err != nil {
		return 0, err
	}
	return claims.MemberID()
}

// Logout keeps no server state. Issued tokens stay valid until they expire;
// the transport is responsible for discarding them.
func (s *AuthService) Logout(ctx context.Context, memberID int64) {
	slog.InfoContext(ctx, "member logged out", "member_id", memberID)
}

func (s *AuthService) issueTokens(m domain.Member, isNew bool) (*TokenResponse, error) {
	access, err := s.issuer.IssueAccess(m.ID, m.Email)
	if err != nil {
		return nil, err
	}
	refresh, err := s.issuer.IssueRefresh(m.ID)
	if err != nil {
		return nil, err
	}
	return &TokenResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    TokenTypeBearer,
		ExpiresIn:    int64(s.issuer.AccessValidity() / time.Second),
		IsNewMember:  isNew,
		Email:        m.Email,
	}, nil
}

func (s *AuthService) startSignup(ctx context.Context, p *provider.Profile) (*NewMemberProfile, error) {
	ticket := signup.NewTicket()
	expires := s.now().Add(s.signupTTL)

	err := s.signups.Put(ctx, ticket, signup.Pending{
		Provider:      p.Provider,
		Subject:       p.ExternalID,
		Email:         domain.NormalizeEmail(p.Email),
		DisplayName:   p.DisplayName,
		AvatarURL:     p.AvatarURL,
		EmailVerified: p.EmailVerified,
		ExpiresAt:     expires,
	})
	if err != nil {
		return nil, err
	}

	return &NewMemberProfile{
		Email:             domain.NormalizeEmail(p.Email),
		Provider:          p.Provider,
		ProviderSubjectID: p.ExternalID,
		DisplayName:       p.DisplayName,
		AvatarURL:         p.AvatarURL,
		SignupTicket:      ticket,
		ExpiresAt:         expires,
	}, nil
}

// loginFailed records the failure and hides unexpected faults behind ErrInternal.
func (s *AuthService) loginFailed(ctx context.Context, p domain.Provider, stage string, err error) error {
	metrics.LoginsTotal.WithLabelValues(string(p), "failure").Inc()

	switch {
	case errors.Is(err, domain.ErrTokenExchangeFailed),
		errors.Is(err, domain.ErrProfileFetchFailed),
		errors.Is(err, domain.ErrAccountNotActive),
		errors.Is(err, domain.ErrUnsupportedProvider):
		slog.WarnContext(ctx, "login failed", "provider", p, "stage", stage, "error", err)
		return err
	default:
		slog.ErrorContext(ctx, "login failed", "provider", p, "stage", stage, "error", err)
		return fmt.Errorf("%w: login %s", domain.ErrInternal, stage)
	}
}
