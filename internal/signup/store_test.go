package signup

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sumire/stay/internal/domain"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	ticket := NewTicket()
	assert.Len(t, ticket, 36)

	p := Pending{
		Provider:  domain.ProviderKakao,
		Subject:   "99",
		Email:     "kakao_99@kakao.invalid",
		ExpiresAt: time.Now().Add(time.Minute),
	}
	require.NoError(t, s.Put(ctx, ticket, p))

	got, err := s.Get(ctx, ticket)
	require.NoError(t, err)
	assert.Equal(t, p, *got)

	require.NoError(t, s.Delete(ctx, ticket))
	_, err = s.Get(ctx, ticket)
	assert.ErrorIs(t, err, domain.ErrSignupExpired)
}

func TestMemoryStore_Expiry(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	base := time.Now()
	s.now = func() time.Time { return base }

	require.NoError(t, s.Put(ctx, "t1", Pending{ExpiresAt: base.Add(time.Minute)}))
	assert.Error(t, s.Put(ctx, "t2", Pending{ExpiresAt: base}))

	s.now = func() time.Time { return base.Add(2 * time.Minute) }
	_, err := s.Get(ctx, "t1")
	assert.ErrorIs(t, err, domain.ErrSignupExpired)
}
