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
)

const defaultResolveAttempts = 3

// Resolution is the member an external identity maps to.
type Resolution struct {
	Member      domain.Member
	IsNew       bool
	Linked      bool
	Reactivated bool
}

// ResolverConfig controls account creation on first login.
type ResolverConfig struct {
	// AutoCreate creates a member when neither the identity nor its email is
	// known. When false, Resolve returns domain.ErrSignupRequired instead.
	AutoCreate  bool
	MaxAttempts int
}

// IdentityResolver maps normalized provider profiles to members.
type IdentityResolver struct {
	tx          Transactor
	members     MemberStore
	links       IdentityLinkStore
	autoCreate  bool
	maxAttempts int
	now         func() time.Time
}

// NewIdentityResolver creates a new IdentityResolver.
func NewIdentityResolver(tx Transactor, members MemberStore, links IdentityLinkStore, cfg ResolverConfig) *IdentityResolver {
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = defaultResolveAttempts
	}
	return &IdentityResolver{
		tx:          tx,
		members:     members,
		links:       links,
		autoCreate:  cfg.AutoCreate,
		maxAttempts: attempts,
		now:         time.Now,
	}
}

// Resolve finds the member for p by identity link, then by email, and
// otherwise creates one. Each attempt is a single transaction; a unique
// violation from a concurrent login rolls it back and the lookup is retried.
func (r *IdentityResolver) Resolve(ctx context.Context, p *provider.Profile) (Resolution, error) {
	if p == nil || p.ExternalID == "" {
		return Resolution{}, fmt.Errorf("%w: empty profile", domain.ErrProfileFetchFailed)
	}
	if err := domain.ValidateEmail(domain.NormalizeEmail(p.Email)); err != nil {
		return Resolution{}, fmt.Errorf("%w: %v", domain.ErrProfileFetchFailed, err)
	}

	var res Resolution
	var err error
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		err = r.tx.WithTx(ctx, func(ctx context.Context) error {
			var txErr error
			res, txErr = r.resolve(ctx, p)
			return txErr
		})
		if err == nil || !retryable(err) {
			break
		}
		slog.WarnContext(ctx, "identity resolve conflict, retrying",
			"provider", p.Provider,
			"attempt", attempt,
			"error", err,
		)
	}
	if err != nil {
		return Resolution{}, err
	}

	if res.IsNew {
		metrics.MembersCreatedTotal.WithLabelValues(string(p.Provider)).Inc()
	}
	return res, nil
}

func (r *IdentityResolver) resolve(ctx context.Context, p *provider.Profile) (Resolution, error) {
	now := r.now()

	link, err := r.links.FindByProviderSubject(ctx, p.Provider, p.ExternalID)
	switch {
	case err == nil:
		m, err := r.members.FindByIDForUpdate(ctx, link.MemberID)
		if err != nil {
			return Resolution{}, fmt.Errorf("load linked member %d: %w", link.MemberID, err)
		}
		admitted, reactivated, err := r.admit(ctx, *m, now)
		if err != nil {
			return Resolution{}, err
		}
		if err := r.links.UpdateProfile(ctx, link.WithProfile(p.Email, p.DisplayName, p.AvatarURL, now)); err != nil {
			return Resolution{}, err
		}
		return Resolution{Member: admitted, Reactivated: reactivated}, nil
	case !errors.Is(err, domain.ErrNotFound):
		return Resolution{}, err
	}

	m, err := r.members.FindByEmail(ctx, p.Email)
	switch {
	case err == nil:
		admitted, reactivated, err := r.admit(ctx, *m, now)
		if err != nil {
			return Resolution{}, err
		}
		if _, err := r.links.Create(ctx, newLink(admitted.ID, p, now)); err != nil {
			return Resolution{}, err
		}
		slog.InfoContext(ctx, "identity linked to existing member",
			"member_id", admitted.ID,
			"provider", p.Provider,
		)
		return Resolution{Member: admitted, Linked: true, Reactivated: reactivated}, nil
	case !errors.Is(err, domain.ErrNotFound):
		return Resolution{}, err
	}

	if !r.autoCreate {
		return Resolution{}, domain.ErrSignupRequired
	}

	created, err := r.create(ctx, p, nil, now)
	if err != nil {
		return Resolution{}, err
	}
	return Resolution{Member: *created, IsNew: true}, nil
}

// Register creates a member for p with the chosen nickname. Unlike Resolve
// it never links to an existing account.
func (r *IdentityResolver) Register(ctx context.Context, p *provider.Profile, nickname string) (*domain.Member, error) {
	if err := domain.ValidateNickname(nickname); err != nil {
		return nil, err
	}

	var created *domain.Member
	err := r.tx.WithTx(ctx, func(ctx context.Context) error {
		if _, err := r.links.FindByProviderSubject(ctx, p.Provider, p.ExternalID); err == nil {
			return domain.ErrDuplicateIdentity
		} else if !errors.Is(err, domain.ErrNotFound) {
			return err
		}

		if _, err := r.members.FindByEmail(ctx, p.Email); err == nil {
			return domain.ErrDuplicateEmail
		} else if !errors.Is(err, domain.ErrNotFound) {
			return err
		}

		taken, err := r.members.NicknameExists(ctx, nickname)
		if err != nil {
			return err
		}
		if taken {
			return domain.ErrDuplicateNickname
		}

		created, err = r.create(ctx, p, &nickname, r.now())
		return err
	})
	if err != nil {
		return nil, err
	}

	metrics.MembersCreatedTotal.WithLabelValues(string(p.Provider)).Inc()
	return created, nil
}

// admit reactivates a deleted member, rejects an unusable one and records the login.
func (r *IdentityResolver) admit(ctx context.Context, m domain.Member, now time.Time) (domain.Member, bool, error) {
	reactivated := false
	if m.Deleted() {
		next, _, err := domain.Apply(m, domain.Reactivate{}, now)
		if err != nil {
			return m, false, err
		}
		m = next
		reactivated = true
		slog.InfoContext(ctx, "deleted member reactivated on login", "member_id", m.ID)
	}
	if !m.Usable() {
		return m, false, fmt.Errorf("%w: member %d", domain.ErrAccountNotActive, m.ID)
	}

	m, _, err := domain.Apply(m, domain.RecordLogin{}, now)
	if err != nil {
		return m, false, err
	}
	if err := r.members.Update(ctx, m); err != nil {
		return m, false, err
	}
	return m, reactivated, nil
}

func (r *IdentityResolver) create(ctx context.Context, p *provider.Profile, nickname *string, now time.Time) (*domain.Member, error) {
	var avatar *string
	if p.AvatarURL != "" {
		avatar = &p.AvatarURL
	}

	m, err := domain.NewMember(p.Email, p.DisplayName, nickname, avatar, now)
	if err != nil {
		return nil, err
	}

	created, err := r.members.Create(ctx, m)
	if err != nil {
		return nil, err
	}
	if _, err := r.links.Create(ctx, newLink(created.ID, p, now)); err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "member created",
		"member_id", created.ID,
		"provider", p.Provider,
		"placeholder_email", !p.EmailVerified,
	)
	return created, nil
}

func newLink(memberID int64, p *provider.Profile, now time.Time) domain.IdentityLink {
	l := domain.IdentityLink{
		MemberID:  memberID,
		Provider:  p.Provider,
		Subject:   p.ExternalID,
		CreatedAt: now,
	}
	return l.WithProfile(p.Email, p.DisplayName, p.AvatarURL, now)
}

// retryable reports whether err is a unique violation a fresh lookup can resolve.
func retryable(err error) bool {
	return errors.Is(err, domain.ErrDuplicateIdentity) ||
		errors.Is(err, domain.ErrDuplicateEmail) ||
		errors.Is(err, domain.ErrConflict)
}
