package domain

import (
	"fmt"
	"time"
)

// Command is a state transition on a Member. The set is closed.
type Command interface {
	apply(m Member, now time.Time) (Member, bool, error)
}

// Apply runs cmd against m and returns the next value. changed is false
// when the command had nothing to do, in which case next equals m.
func Apply(m Member, cmd Command, now time.Time) (next Member, changed bool, err error) {
	next, changed, err = cmd.apply(m, now)
	if err != nil {
		return m, false, err
	}
	if changed {
		next.UpdatedAt = now
	}
	return next, changed, nil
}

type (
	Deactivate             struct{}
	Activate               struct{}
	Delete                 struct{}
	Reactivate             struct{}
	UpgradeToBusinessOwner struct{}
	RecalculateGrade       struct{}
	CompleteReservation    struct{}
	RecordLogin            struct{}
	EarnPoints             struct{ Amount int64 }
	UsePoints              struct{ Amount int64 }
	ChangeNickname         struct{ Nickname string }
)

func (Deactivate) apply(m Member, _ time.Time) (Member, bool, error) {
	if !m.Active {
		return m, false, nil
	}
	m.Active = false
	return m, true, nil
}

func (Activate) apply(m Member, _ time.Time) (Member, bool, error) {
	if m.Deleted() {
		return m, false, ErrMemberDeleted
	}
	if m.Active {
		return m, false, nil
	}
	m.Active = true
	return m, true, nil
}

// Delete soft-deletes the member. Loyalty state does not survive deletion.
func (Delete) apply(m Member, now time.Time) (Member, bool, error) {
	if m.Deleted() {
		return m, false, nil
	}
	m.DeletedAt = &now
	m.Active = false
	m.Points = 0
	m.ReservationCount = 0
	m.Grade = GradeBasic
	m.LastGradedAt = now
	return m, true, nil
}

// Reactivate restores a deleted member. Points and grade stay at their reset values.
func (Reactivate) apply(m Member, _ time.Time) (Member, bool, error) {
	if !m.Deleted() {
		return m, false, ErrMemberNotDeleted
	}
	m.DeletedAt = nil
	m.Active = true
	return m, true, nil
}

func (UpgradeToBusinessOwner) apply(m Member, _ time.Time) (Member, bool, error) {
	if m.Role.IsBusinessOwnerOrHigher() {
		return m, false, ErrAlreadyBusinessOwner
	}
	m.Role = RoleBusinessOwner
	return m, true, nil
}

func (RecalculateGrade) apply(m Member, now time.Time) (Member, bool, error) {
	g := GradeFor(m.ReservationCount)
	if g == m.Grade {
		return m, false, nil
	}
	m.Grade = g
	m.LastGradedAt = now
	return m, true, nil
}

func (CompleteReservation) apply(m Member, now time.Time) (Member, bool, error) {
	m.ReservationCount++
	m, _, _ = RecalculateGrade{}.apply(m, now)
	return m, true, nil
}

func (RecordLogin) apply(m Member, now time.Time) (Member, bool, error) {
	m.LastLoginAt = &now
	return m, true, nil
}

func (c EarnPoints) apply(m Member, _ time.Time) (Member, bool, error) {
	if c.Amount < 0 {
		return m, false, fmt.Errorf("%w: %d", ErrInvalidPointAmount, c.Amount)
	}
	if c.Amount == 0 {
		return m, false, nil
	}
	m.Points += c.Amount
	return m, true, nil
}

func (c UsePoints) apply(m Member, _ time.Time) (Member, bool, error) {
	if c.Amount < 0 {
		return m, false, fmt.Errorf("%w: %d", ErrInvalidPointAmount, c.Amount)
	}
	if c.Amount > m.Points {
		return m, false, &InsufficientPointsError{Balance: m.Points, Requested: c.Amount}
	}
	if c.Amount == 0 {
		return m, false, nil
	}
	m.Points -= c.Amount
	return m, true, nil
}

func (c ChangeNickname) apply(m Member, _ time.Time) (Member, bool, error) {
	if err := ValidateNickname(c.Nickname); err != nil {
		return m, false, err
	}
	if m.Nickname != nil && *m.Nickname == c.Nickname {
		return m, false, nil
	}
	nickname := c.Nickname
	m.Nickname = &nickname
	return m, true, nil
}
