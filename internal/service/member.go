package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sumire/stay/internal/domain"
)

// MemberService applies lifecycle and loyalty commands to stored members.
// Every command runs in a transaction holding the member's row lock, so
// commands on the same member are serialized.
type MemberService struct {
	tx      Transactor
	members MemberStore
	links   IdentityLinkStore
	now     func() time.Time
}

// NewMemberService creates a new MemberService.
func NewMemberService(tx Transactor, members MemberStore, links IdentityLinkStore) *MemberService {
	return &MemberService{tx: tx, members: members, links: links, now: time.Now}
}

// Get returns a member in any state.
func (s *MemberService) Get(ctx context.Context, id int64) (*domain.Member, error) {
	return s.members.FindByID(ctx, id)
}

// GetActive returns a member that may currently log in.
func (s *MemberService) GetActive(ctx context.Context, id int64) (*domain.Member, error) {
	m, err := s.members.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !m.Usable() {
		return nil, fmt.Errorf("%w: member %d", domain.ErrAccountNotActive, id)
	}
	return m, nil
}

// Links returns the external identities bound to a member.
func (s *MemberService) Links(ctx context.Context, id int64) ([]domain.IdentityLink, error) {
	return s.links.ListByMember(ctx, id)
}

func (s *MemberService) EarnPoints(ctx context.Context, id, amount int64) (*domain.Member, error) {
	return s.apply(ctx, id, domain.EarnPoints{Amount: amount}, true)
}

func (s *MemberService) UsePoints(ctx context.Context, id, amount int64) (*domain.Member, error) {
	return s.apply(ctx, id, domain.UsePoints{Amount: amount}, true)
}

func (s *MemberService) Deactivate(ctx context.Context, id int64) (*domain.Member, error) {
	return s.apply(ctx, id, domain.Deactivate{}, false)
}

func (s *MemberService) Activate(ctx context.Context, id int64) (*domain.Member, error) {
	return s.apply(ctx, id, domain.Activate{}, false)
}

// Delete soft-deletes a member and resets its loyalty state.
func (s *MemberService) Delete(ctx context.Context, id int64) (*domain.Member, error) {
	return s.apply(ctx, id, domain.Delete{}, false)
}

func (s *MemberService) Reactivate(ctx context.Context, id int64) (*domain.Member, error) {
	return s.apply(ctx, id, domain.Reactivate{}, false)
}

func (s *MemberService) UpgradeToBusinessOwner(ctx context.Context, id int64) (*domain.Member, error) {
	return s.apply(ctx, id, domain.UpgradeToBusinessOwner{}, true)
}

// CompleteReservation counts one finished stay and re-grades the member.
func (s *MemberService) CompleteReservation(ctx context.Context, id int64) (*domain.Member, error) {
	return s.apply(ctx, id, domain.CompleteReservation{}, true)
}

func (s *MemberService) RecalculateGrade(ctx context.Context, id int64) (*domain.Member, error) {
	return s.apply(ctx, id, domain.RecalculateGrade{}, false)
}

// ChangeNickname sets a nickname no other member holds.
func (s *MemberService) ChangeNickname(ctx context.Context, id int64, nickname string) (*domain.Member, error) {
	if err := domain.ValidateNickname(nickname); err != nil {
		return nil, err
	}

	var out domain.Member
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		m, err := s.members.FindByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !m.Usable() {
			return domain.ErrAccountNotActive
		}
		if m.Nickname == nil || *m.Nickname != nickname {
			taken, err := s.members.NicknameExists(ctx, nickname)
			if err != nil {
				return err
			}
			if taken {
				return domain.ErrDuplicateNickname
			}
		}
		out, err = s.save(ctx, *m, domain.ChangeNickname{Nickname: nickname})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("change nickname of member %d: %w", id, err)
	}
	return &out, nil
}

// IsNicknameAvailable reports whether nickname is valid and unused.
func (s *MemberService) IsNicknameAvailable(ctx context.Context, nickname string) (bool, error) {
	if err := domain.ValidateNickname(nickname); err != nil {
		return false, err
	}
	taken, err := s.members.NicknameExists(ctx, nickname)
	if err != nil {
		return false, err
	}
	return !taken, nil
}

func (s *MemberService) apply(ctx context.Context, id int64, cmd domain.Command, requireUsable bool) (*domain.Member, error) {
	var out domain.Member
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		m, err := s.members.FindByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if requireUsable && !m.Usable() {
			return domain.ErrAccountNotActive
		}
		out, err = s.save(ctx, *m, cmd)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%T on member %d: %w", cmd, id, err)
	}
	return &out, nil
}

func (s *MemberService) save(ctx context.Context, m domain.Member, cmd domain.Command) (domain.Member, error) {
	next, changed, err := domain.Apply(m, cmd, s.now())
	if err != nil {
		return m, err
	}
	if !changed {
		return next, nil
	}
	if err := s.members.Update(ctx, next); err != nil {
		return m, err
	}
	slog.InfoContext(ctx, "member updated", "member_id", m.ID, "command", fmt.Sprintf("%T", cmd))
	return next, nil
}
