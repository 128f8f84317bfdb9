package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/sumire/stay/internal/domain"
)

const linkColumns = `id, member_id, provider, subject, provider_email, display_name, avatar_url,
	last_login_at, created_at, updated_at`

// IdentityLinkRepository handles identity link data access operations.
type IdentityLinkRepository struct {
	db *sqlx.DB
}

// NewIdentityLinkRepository creates a new IdentityLinkRepository.
func NewIdentityLinkRepository(db *sqlx.DB) *IdentityLinkRepository {
	return &IdentityLinkRepository{db: db}
}

// FindByProviderSubject retrieves the link for an external identity.
func (r *IdentityLinkRepository) FindByProviderSubject(ctx context.Context, provider domain.Provider, subject string) (*domain.IdentityLink, error) {
	var l domain.IdentityLink
	err := sqlx.GetContext(ctx, conn(ctx, r.db), &l,
		`SELECT `+linkColumns+` FROM identity_links WHERE provider = $1 AND subject = $2`,
		provider, subject)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("find identity link %s/%s: %w", provider, subject, err)
	}
	return &l, nil
}

// ListByMember returns every link owned by a member, oldest first.
func (r *IdentityLinkRepository) ListByMember(ctx context.Context, memberID int64) ([]domain.IdentityLink, error) {
	links := []domain.IdentityLink{}
	err := sqlx.SelectContext(ctx, conn(ctx, r.db), &links,
		`SELECT `+linkColumns+` FROM identity_links WHERE member_id = $1 ORDER BY id`, memberID)
	if err != nil {
		return nil, fmt.Errorf("list identity links of member %d: %w", memberID, err)
	}
	return links, nil
}

// Create inserts a new link. A link for the same (provider, subject)
// fails with domain.ErrDuplicateIdentity.
func (r *IdentityLinkRepository) Create(ctx context.Context, l domain.IdentityLink) (*domain.IdentityLink, error) {
	var result domain.IdentityLink
	err := conn(ctx, r.db).QueryRowxContext(ctx,
		`INSERT INTO identity_links (member_id, provider, subject, provider_email, display_name,
		                             avatar_url, last_login_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING `+linkColumns,
		l.MemberID, l.Provider, l.Subject, l.ProviderEmail, l.DisplayName,
		l.AvatarURL, l.LastLoginAt, l.CreatedAt, l.UpdatedAt,
	).StructScan(&result)
	if err != nil {
		return nil, fmt.Errorf("create identity link: %w", mapWriteError(err))
	}
	return &result, nil
}

// UpdateProfile refreshes the cached profile fields. Ownership never changes.
func (r *IdentityLinkRepository) UpdateProfile(ctx context.Context, l domain.IdentityLink) error {
	_, err := conn(ctx, r.db).ExecContext(ctx,
		`UPDATE identity_links
		 SET provider_email = $2, display_name = $3, avatar_url = $4, last_login_at = $5, updated_at = $6
		 WHERE id = $1`,
		l.ID, l.ProviderEmail, l.DisplayName, l.AvatarURL, l.LastLoginAt, l.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update identity link %d: %w", l.ID, err)
	}
	return nil
}
