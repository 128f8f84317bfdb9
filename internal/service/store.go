package service

import (
	"context"

	"github.com/sumire/stay/internal/domain"
)

// Transactor runs fn atomically. Store calls made with the context passed
// to fn take part in the same transaction.
type Transactor interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// MemberStore defines the member data access interface consumed by the services.
type MemberStore interface {
	FindByID(ctx context.Context, id int64) (*domain.Member, error)
	FindByIDForUpdate(ctx context.Context, id int64) (*domain.Member, error)
	FindByEmail(ctx context.Context, email string) (*domain.Member, error)
	NicknameExists(ctx context.Context, nickname string) (bool, error)
	Create(ctx context.Context, m domain.Member) (*domain.Member, error)
	Update(ctx context.Context, m domain.Member) error
}

// IdentityLinkStore defines the identity link data access interface.
type IdentityLinkStore interface {
	FindByProviderSubject(ctx context.Context, provider domain.Provider, subject string) (*domain.IdentityLink, error)
	ListByMember(ctx context.Context, memberID int64) ([]domain.IdentityLink, error)
	Create(ctx context.Context, l domain.IdentityLink) (*domain.IdentityLink, error)
	UpdateProfile(ctx context.Context, l domain.IdentityLink) error
}
