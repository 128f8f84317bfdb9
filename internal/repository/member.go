package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/sumire/stay/internal/domain"
)

const memberColumns = `id, email, name, nickname, profile_image_url, role, grade, reservation_count,
	points, is_active, last_login_at, last_graded_at, deleted_at, created_at, updated_at`

// MemberRepository handles member data access operations.
type MemberRepository struct {
	db *sqlx.DB
}

// NewMemberRepository creates a new MemberRepository.
func NewMemberRepository(db *sqlx.DB) *MemberRepository {
	return &MemberRepository{db: db}
}

// FindByID retrieves a member by ID.
func (r *MemberRepository) FindByID(ctx context.Context, id int64) (*domain.Member, error) {
	var m domain.Member
	err := sqlx.GetContext(ctx, conn(ctx, r.db), &m,
		`SELECT `+memberColumns+` FROM members WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("find member by id %d: %w", id, err)
	}
	return &m, nil
}

// FindByIDForUpdate retrieves a member and locks its row until the
// surrounding transaction ends.
func (r *MemberRepository) FindByIDForUpdate(ctx context.Context, id int64) (*domain.Member, error) {
	var m domain.Member
	err := sqlx.GetContext(ctx, conn(ctx, r.db), &m,
		`SELECT `+memberColumns+` FROM members WHERE id = $1 FOR UPDATE`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("lock member %d: %w", id, err)
	}
	return &m, nil
}

// FindByEmail retrieves a member by normalized email, deleted members included.
// Inside a transaction the row stays locked until it ends.
func (r *MemberRepository) FindByEmail(ctx context.Context, email string) (*domain.Member, error) {
	var m domain.Member
	err := sqlx.GetContext(ctx, conn(ctx, r.db), &m,
		`SELECT `+memberColumns+` FROM members WHERE email = $1 FOR UPDATE`, domain.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("find member by email: %w", err)
	}
	return &m, nil
}

// NicknameExists reports whether any member holds nickname.
func (r *MemberRepository) NicknameExists(ctx context.Context, nickname string) (bool, error) {
	var exists bool
	err := sqlx.GetContext(ctx, conn(ctx, r.db), &exists,
		`SELECT EXISTS (SELECT 1 FROM members WHERE nickname = $1)`, nickname)
	if err != nil {
		return false, fmt.Errorf("check nickname: %w", err)
	}
	return exists, nil
}

// Create inserts a new member and returns it with its assigned ID.
func (r *MemberRepository) Create(ctx context.Context, m domain.Member) (*domain.Member, error) {
	var result domain.Member
	err := conn(ctx, r.db).QueryRowxContext(ctx,
		`INSERT INTO members (email, name, nickname, profile_image_url, role, grade, reservation_count,
		                      points, is_active, last_login_at, last_graded_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 RETURNING `+memberColumns,
		m.Email, m.Name, m.Nickname, m.ProfileImageURL, m.Role, m.Grade, m.ReservationCount,
		m.Points, m.Active, m.LastLoginAt, m.LastGradedAt, m.CreatedAt, m.UpdatedAt,
	).StructScan(&result)
	if err != nil {
		return nil, fmt.Errorf("create member: %w", mapWriteError(err))
	}
	return &result, nil
}

// Update replaces the mutable columns of an existing member.
func (r *MemberRepository) Update(ctx context.Context, m domain.Member) error {
	res, err := conn(ctx, r.db).ExecContext(ctx,
		`UPDATE members
		 SET name = $2, nickname = $3, profile_image_url = $4, role = $5, grade = $6,
		     reservation_count = $7, points = $8, is_active = $9, last_login_at = $10,
		     last_graded_at = $11, deleted_at = $12, updated_at = $13
		 WHERE id = $1`,
		m.ID, m.Name, m.Nickname, m.ProfileImageURL, m.Role, m.Grade,
		m.ReservationCount, m.Points, m.Active, m.LastLoginAt,
		m.LastGradedAt, m.DeletedAt, m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update member %d: %w", m.ID, mapWriteError(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update member %d: %w", m.ID, err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}
