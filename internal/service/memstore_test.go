package service

import (
	"context"
	"sync"

	"github.com/sumire/stay/internal/domain"
)

type memTxKey struct{}

// memStore is an in-memory store with the uniqueness rules of the real
// schema. Transactions are serialized and rolled back by snapshot.
type memStore struct {
	mu           sync.Mutex
	members      map[int64]domain.Member
	links        map[int64]domain.IdentityLink
	nextMemberID int64
	nextLinkID   int64

	// beforeLinkCreate may fail a link insert to simulate a concurrent writer.
	beforeLinkCreate func(l domain.IdentityLink) error
	// onRollback runs once after the next rollback, outside the failed transaction.
	onRollback []func()
	txCount    int
}

func newMemStore() *memStore {
	return &memStore{
		members: make(map[int64]domain.Member),
		links:   make(map[int64]domain.IdentityLink),
	}
}

type memSnapshot struct {
	members      map[int64]domain.Member
	links        map[int64]domain.IdentityLink
	nextMemberID int64
	nextLinkID   int64
}

func (s *memStore) snapshot() memSnapshot {
	snap := memSnapshot{
		members:      make(map[int64]domain.Member, len(s.members)),
		links:        make(map[int64]domain.IdentityLink, len(s.links)),
		nextMemberID: s.nextMemberID,
		nextLinkID:   s.nextLinkID,
	}
	for k, v := range s.members {
		snap.members[k] = v
	}
	for k, v := range s.links {
		snap.links[k] = v
	}
	return snap
}

func (s *memStore) restore(snap memSnapshot) {
	s.members = snap.members
	s.links = snap.links
	s.nextMemberID = snap.nextMemberID
	s.nextLinkID = snap.nextLinkID
}

func (s *memStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(memTxKey{}) != nil {
		return fn(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.txCount++

	snap := s.snapshot()
	if err := fn(context.WithValue(ctx, memTxKey{}, true)); err != nil {
		s.restore(snap)
		hooks := s.onRollback
		s.onRollback = nil
		for _, h := range hooks {
			h()
		}
		return err
	}
	return nil
}

func (s *memStore) lock(ctx context.Context) func() {
	if ctx.Value(memTxKey{}) != nil {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

// insertMember and insertLink assume the caller holds the lock or a transaction.
func (s *memStore) insertMember(m domain.Member) (domain.Member, error) {
	for _, existing := range s.members {
		if existing.Email == m.Email {
			return domain.Member{}, domain.ErrDuplicateEmail
		}
		if m.Nickname != nil && existing.Nickname != nil && *existing.Nickname == *m.Nickname {
			return domain.Member{}, domain.ErrDuplicateNickname
		}
	}
	s.nextMemberID++
	m.ID = s.nextMemberID
	s.members[m.ID] = m
	return m, nil
}

func (s *memStore) insertLink(l domain.IdentityLink) (domain.IdentityLink, error) {
	for _, existing := range s.links {
		if existing.Provider == l.Provider && existing.Subject == l.Subject {
			return domain.IdentityLink{}, domain.ErrDuplicateIdentity
		}
	}
	if _, ok := s.members[l.MemberID]; !ok {
		return domain.IdentityLink{}, domain.ErrNotFound
	}
	s.nextLinkID++
	l.ID = s.nextLinkID
	s.links[l.ID] = l
	return l, nil
}

func (s *memStore) memberCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.members)
}

func (s *memStore) linkCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.links)
}

type memMembers struct{ *memStore }

func (s memMembers) FindByID(ctx context.Context, id int64) (*domain.Member, error) {
	defer s.lock(ctx)()
	m, ok := s.members[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &m, nil
}

func (s memMembers) FindByIDForUpdate(ctx context.Context, id int64) (*domain.Member, error) {
	return s.FindByID(ctx, id)
}

func (s memMembers) FindByEmail(ctx context.Context, email string) (*domain.Member, error) {
	defer s.lock(ctx)()
	email = domain.NormalizeEmail(email)
	for _, m := range s.members {
		if m.Email == email {
			return &m, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s memMembers) NicknameExists(ctx context.Context, nickname string) (bool, error) {
	defer s.lock(ctx)()
	for _, m := range s.members {
		if m.Nickname != nil && *m.Nickname == nickname {
			return true, nil
		}
	}
	return false, nil
}

func (s memMembers) Create(ctx context.Context, m domain.Member) (*domain.Member, error) {
	defer s.lock(ctx)()
	created, err := s.insertMember(m)
	if err != nil {
		return nil, err
	}
	return &created, nil
}

func (s memMembers) Update(ctx context.Context, m domain.Member) error {
	defer s.lock(ctx)()
	if _, ok := s.members[m.ID]; !ok {
		return domain.ErrNotFound
	}
	if m.Points < 0 {
		panic("points went negative")
	}
	if m.DeletedAt != nil && m.Active {
		panic("deleted member marked active")
	}
	for id, existing := range s.members {
		if id != m.ID && m.Nickname != nil && existing.Nickname != nil && *existing.Nickname == *m.Nickname {
			return domain.ErrDuplicateNickname
		}
	}
	s.members[m.ID] = m
	return nil
}

type memLinks struct{ *memStore }

func (s memLinks) FindByProviderSubject(ctx context.Context, provider domain.Provider, subject string) (*domain.IdentityLink, error) {
	defer s.lock(ctx)()
	for _, l := range s.links {
		if l.Provider == provider && l.Subject == subject {
			return &l, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s memLinks) ListByMember(ctx context.Context, memberID int64) ([]domain.IdentityLink, error) {
	defer s.lock(ctx)()
	out := []domain.IdentityLink{}
	for id := int64(1); id <= s.nextLinkID; id++ {
		if l, ok := s.links[id]; ok && l.MemberID == memberID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (s memLinks) Create(ctx context.Context, l domain.IdentityLink) (*domain.IdentityLink, error) {
	defer s.lock(ctx)()
	if s.beforeLinkCreate != nil {
		if err := s.beforeLinkCreate(l); err != nil {
			return nil, err
		}
	}
	created, err := s.insertLink(l)
	if err != nil {
		return nil, err
	}
	return &created, nil
}

func (s memLinks) UpdateProfile(ctx context.Context, l domain.IdentityLink) error {
	defer s.lock(ctx)()
	existing, ok := s.links[l.ID]
	if !ok {
		return domain.ErrNotFound
	}
	existing.ProviderEmail = l.ProviderEmail
	existing.DisplayName = l.DisplayName
	existing.AvatarURL = l.AvatarURL
	existing.LastLoginAt = l.LastLoginAt
	existing.UpdatedAt = l.UpdatedAt
	s.links[l.ID] = existing
	return nil
}
