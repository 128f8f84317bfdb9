package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sumire/stay/internal/domain"
)

func newTestMemberService(t *testing.T) (*MemberService, *memStore, domain.Member) {
	t.Helper()
	store := newMemStore()
	svc := NewMemberService(store, memMembers{store}, memLinks{store})
	svc.now = func() time.Time { return testNow }

	m, err := domain.NewMember("guest@example.com", "Guest", nil, nil, testNow)
	require.NoError(t, err)
	created, err := memMembers{store}.Create(context.Background(), m)
	require.NoError(t, err)
	return svc, store, *created
}

func TestMemberService_Points(t *testing.T) {
	svc, _, m := newTestMemberService(t)
	ctx := context.Background()

	got, err := svc.EarnPoints(ctx, m.ID, 1000)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), got.Points)

	got, err = svc.UsePoints(ctx, m.ID, 300)
	require.NoError(t, err)
	assert.Equal(t, int64(700), got.Points)

	got, err = svc.UsePoints(ctx, m.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(700), got.Points)

	_, err = svc.UsePoints(ctx, m.ID, 701)
	var insufficient *domain.InsufficientPointsError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, int64(700), insufficient.Balance)
	assert.Equal(t, int64(701), insufficient.Requested)
	assert.ErrorIs(t, err, domain.ErrInsufficientPoints)

	_, err = svc.EarnPoints(ctx, m.ID, -1)
	assert.ErrorIs(t, err, domain.ErrInvalidPointAmount)

	stored, err := svc.Get(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(700), stored.Points)
}

func TestMemberService_ConcurrentPointsNeverNegative(t *testing.T) {
	svc, _, m := newTestMemberService(t)
	ctx := context.Background()

	_, err := svc.EarnPoints(ctx, m.ID, 100)
	require.NoError(t, err)

	const workers = 40
	var (
		wg   sync.WaitGroup
		used atomic.Int64
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				_, err := svc.EarnPoints(ctx, m.ID, 10)
				assert.NoError(t, err)
				return
			}
			if _, err := svc.UsePoints(ctx, m.ID, 30); err == nil {
				used.Add(30)
			} else {
				assert.ErrorIs(t, err, domain.ErrInsufficientPoints)
			}
		}(i)
	}
	wg.Wait()

	stored, err := svc.Get(ctx, m.ID)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, stored.Points, int64(0))
	assert.Equal(t, int64(100+10*workers/2)-used.Load(), stored.Points)
}

func TestMemberService_PointsRequireUsableMember(t *testing.T) {
	svc, _, m := newTestMemberService(t)
	ctx := context.Background()

	_, err := svc.Deactivate(ctx, m.ID)
	require.NoError(t, err)

	_, err = svc.EarnPoints(ctx, m.ID, 10)
	assert.ErrorIs(t, err, domain.ErrAccountNotActive)

	_, err = svc.GetActive(ctx, m.ID)
	assert.ErrorIs(t, err, domain.ErrAccountNotActive)

	got, err := svc.Activate(ctx, m.ID)
	require.NoError(t, err)
	assert.True(t, got.Usable())
}

func TestMemberService_DeleteAndReactivate(t *testing.T) {
	svc, _, m := newTestMemberService(t)
	ctx := context.Background()

	for i := 0; i < 7; i++ {
		_, err := svc.CompleteReservation(ctx, m.ID)
		require.NoError(t, err)
	}
	got, err := svc.EarnPoints(ctx, m.ID, 5000)
	require.NoError(t, err)
	assert.Equal(t, domain.GradeElitePlus, got.Grade)

	got, err = svc.Delete(ctx, m.ID)
	require.NoError(t, err)
	assert.True(t, got.Deleted())
	assert.False(t, got.Active)
	assert.Zero(t, got.Points)
	assert.Equal(t, domain.GradeBasic, got.Grade)

	_, err = svc.Activate(ctx, m.ID)
	assert.ErrorIs(t, err, domain.ErrMemberDeleted)

	got, err = svc.RecalculateGrade(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.GradeBasic, got.Grade)

	got, err = svc.Reactivate(ctx, m.ID)
	require.NoError(t, err)
	assert.True(t, got.Usable())
	assert.Zero(t, got.Points)

	_, err = svc.Reactivate(ctx, m.ID)
	assert.ErrorIs(t, err, domain.ErrMemberNotDeleted)
}

func TestMemberService_UpgradeToBusinessOwner(t *testing.T) {
	svc, _, m := newTestMemberService(t)
	ctx := context.Background()

	got, err := svc.UpgradeToBusinessOwner(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleBusinessOwner, got.Role)

	_, err = svc.UpgradeToBusinessOwner(ctx, m.ID)
	assert.ErrorIs(t, err, domain.ErrAlreadyBusinessOwner)
}

func TestMemberService_UnknownMember(t *testing.T) {
	svc, _, _ := newTestMemberService(t)

	_, err := svc.EarnPoints(context.Background(), 404, 10)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMemberService_ChangeNickname(t *testing.T) {
	svc, store, m := newTestMemberService(t)
	ctx := context.Background()

	other, err := domain.NewMember("other@example.com", "Other", nil, nil, testNow)
	require.NoError(t, err)
	taken := "여행자"
	other.Nickname = &taken
	_, err = memMembers{store}.Create(ctx, other)
	require.NoError(t, err)

	ok, err := svc.IsNicknameAvailable(ctx, "여행자")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = svc.ChangeNickname(ctx, m.ID, "여행자")
	assert.ErrorIs(t, err, domain.ErrDuplicateNickname)

	got, err := svc.ChangeNickname(ctx, m.ID, "Traveler7")
	require.NoError(t, err)
	require.NotNil(t, got.Nickname)
	assert.Equal(t, "Traveler7", *got.Nickname)

	// Setting the current nickname again is accepted.
	_, err = svc.ChangeNickname(ctx, m.ID, "Traveler7")
	require.NoError(t, err)

	_, err = svc.ChangeNickname(ctx, m.ID, "x")
	var verr *domain.ValidationError
	assert.ErrorAs(t, err, &verr)

	_, err = svc.IsNicknameAvailable(ctx, "has space")
	assert.ErrorAs(t, err, &verr)
}

func TestMemberService_Links(t *testing.T) {
	store := newMemStore()
	r := newTestResolver(store, true)
	svc := NewMemberService(store, memMembers{store}, memLinks{store})
	ctx := context.Background()

	res, err := r.Resolve(ctx, googleProfile("g-1", "a@example.com"))
	require.NoError(t, err)

	links, err := svc.Links(ctx, res.Member.ID)
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, "g-1", links[0].Subject)
}
