package domain

import (
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	NicknameMinLength = 2
	NicknameMaxLength = 30
	NameMaxLength     = 50
)

var (
	emailPattern    = regexp.MustCompile(`^[A-Za-z0-9+_.-]+@(.+)$`)
	nicknamePattern = regexp.MustCompile(`^[가-힣a-zA-Z0-9]+$`)
)

// Member is a durable local account. Values are never mutated in place;
// state changes go through Apply.
type Member struct {
	ID               int64      `json:"id" db:"id"`
	Email            string     `json:"email" db:"email"`
	Name             string     `json:"name" db:"name"`
	Nickname         *string    `json:"nickname,omitempty" db:"nickname"`
	ProfileImageURL  *string    `json:"profile_image_url,omitempty" db:"profile_image_url"`
	Role             Role       `json:"role" db:"role"`
	Grade            Grade      `json:"grade" db:"grade"`
	ReservationCount int        `json:"reservation_count" db:"reservation_count"`
	Points           int64      `json:"points" db:"points"`
	Active           bool       `json:"active" db:"is_active"`
	LastLoginAt      *time.Time `json:"last_login_at,omitempty" db:"last_login_at"`
	LastGradedAt     time.Time  `json:"last_graded_at" db:"last_graded_at"`
	DeletedAt        *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`
	CreatedAt        time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at" db:"updated_at"`
}

// NewMember builds a fresh CUSTOMER at grade BASIC with no points.
// An empty name falls back to the local part of the email.
func NewMember(email, name string, nickname, profileImageURL *string, now time.Time) (Member, error) {
	email = NormalizeEmail(email)
	if err := ValidateEmail(email); err != nil {
		return Member{}, err
	}

	name = strings.TrimSpace(name)
	if name == "" {
		name = email[:strings.IndexByte(email, '@')]
	}
	if utf8.RuneCountInString(name) > NameMaxLength {
		name = string([]rune(name)[:NameMaxLength])
	}

	if nickname != nil {
		if err := ValidateNickname(*nickname); err != nil {
			return Member{}, err
		}
	}

	return Member{
		Email:           email,
		Name:            name,
		Nickname:        nickname,
		ProfileImageURL: profileImageURL,
		Role:            RoleCustomer,
		Grade:           GradeBasic,
		Active:          true,
		LastLoginAt:     &now,
		LastGradedAt:    now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// Usable reports whether the member may log in.
func (m Member) Usable() bool {
	return m.Active && m.DeletedAt == nil
}

// Deleted reports whether the member is soft-deleted.
func (m Member) Deleted() bool {
	return m.DeletedAt != nil
}

// NormalizeEmail lower-cases and trims an address for matching.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func ValidateEmail(email string) error {
	if email == "" {
		return &ValidationError{Field: "email", Message: "is required"}
	}
	if !emailPattern.MatchString(email) {
		return &ValidationError{Field: "email", Message: "is not a valid address"}
	}
	return nil
}

func ValidateNickname(nickname string) error {
	n := utf8.RuneCountInString(nickname)
	if n < NicknameMinLength || n > NicknameMaxLength {
		return &ValidationError{Field: "nickname", Message: "must be between 2 and 30 characters"}
	}
	if !nicknamePattern.MatchString(nickname) {
		return &ValidationError{Field: "nickname", Message: "may contain only letters, digits and Hangul"}
	}
	return nil
}
