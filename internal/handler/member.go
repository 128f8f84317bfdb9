package handler

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/sumire/stay/internal/domain"
)

// MemberUseCase is the member self-service surface.
type MemberUseCase interface {
	GetActive(ctx context.Context, id int64) (*domain.Member, error)
	Links(ctx context.Context, id int64) ([]domain.IdentityLink, error)
	ChangeNickname(ctx context.Context, id int64, nickname string) (*domain.Member, error)
	IsNicknameAvailable(ctx context.Context, nickname string) (bool, error)
	UsePoints(ctx context.Context, id, amount int64) (*domain.Member, error)
	Delete(ctx context.Context, id int64) (*domain.Member, error)
}

// MemberHandler handles the authenticated member's own account.
type MemberHandler struct {
	members MemberUseCase
}

// NewMemberHandler creates a new MemberHandler.
func NewMemberHandler(members MemberUseCase) *MemberHandler {
	return &MemberHandler{members: members}
}

type gradeView struct {
	Code                       domain.Grade `json:"code"`
	Name                       string       `json:"name"`
	DiscountRate               float64      `json:"discount_rate"`
	MaxReviewPoints            int64        `json:"max_review_points"`
	NextGrade                  domain.Grade `json:"next_grade"`
	ReservationsUntilNextGrade int          `json:"reservations_until_next_grade"`
}

type linkView struct {
	Provider    domain.Provider `json:"provider"`
	Email       *string         `json:"email,omitempty"`
	LastLoginAt *time.Time      `json:"last_login_at,omitempty"`
}

type memberView struct {
	ID               int64       `json:"id"`
	Email            string      `json:"email"`
	Name             string      `json:"name"`
	Nickname         *string     `json:"nickname,omitempty"`
	ProfileImageURL  *string     `json:"profile_image_url,omitempty"`
	Role             domain.Role `json:"role"`
	Grade            gradeView   `json:"grade"`
	Points           int64       `json:"points"`
	ReservationCount int         `json:"reservation_count"`
	LastLoginAt      *time.Time  `json:"last_login_at,omitempty"`
	CreatedAt        time.Time   `json:"created_at"`
	Links            []linkView  `json:"links,omitempty"`
}

func newMemberView(m *domain.Member, links []domain.IdentityLink) memberView {
	v := memberView{
		ID:              m.ID,
		Email:           m.Email,
		Name:            m.Name,
		Nickname:        m.Nickname,
		ProfileImageURL: m.ProfileImageURL,
		Role:            m.Role,
		Grade: gradeView{
			Code:                       m.Grade,
			Name:                       domain.DisplayName(m.Grade),
			DiscountRate:               domain.DiscountRate(m.Grade),
			MaxReviewPoints:            domain.MaxReviewPoints(m.Grade),
			NextGrade:                  domain.NextGrade(m.Grade),
			ReservationsUntilNextGrade: domain.ReservationsUntilNextGrade(m.ReservationCount),
		},
		Points:           m.Points,
		ReservationCount: m.ReservationCount,
		LastLoginAt:      m.LastLoginAt,
		CreatedAt:        m.CreatedAt,
	}
	for _, l := range links {
		v.Links = append(v.Links, linkView{
			Provider:    l.Provider,
			Email:       l.ProviderEmail,
			LastLoginAt: l.LastLoginAt,
		})
	}
	return v
}

type nicknameRequest struct {
	Nickname string `json:"nickname" validate:"required,nickname"`
}

type usePointsRequest struct {
	Amount int64 `json:"amount" validate:"gte=0"`
}

// Get returns the member with grade benefits and linked providers.
func (h *MemberHandler) Get(c echo.Context) error {
	memberID, ok := GetMemberID(c)
	if !ok {
		return domain.ErrUnauthorized
	}
	ctx := c.Request().Context()

	m, err := h.members.GetActive(ctx, memberID)
	if err != nil {
		return err
	}
	links, err := h.members.Links(ctx, memberID)
	if err != nil {
		return err
	}
	return JSON(c, http.StatusOK, newMemberView(m, links))
}

// ChangeNickname sets a new unique nickname.
func (h *MemberHandler) ChangeNickname(c echo.Context) error {
	memberID, ok := GetMemberID(c)
	if !ok {
		return domain.ErrUnauthorized
	}

	var req nicknameRequest
	if err := c.Bind(&req); err != nil {
		return fmt.Errorf("%w: invalid request body", domain.ErrInvalidInput)
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	m, err := h.members.ChangeNickname(c.Request().Context(), memberID, req.Nickname)
	if err != nil {
		return err
	}
	return JSON(c, http.StatusOK, newMemberView(m, nil))
}

// NicknameAvailability reports whether ?nickname= may be claimed.
func (h *MemberHandler) NicknameAvailability(c echo.Context) error {
	nickname := c.QueryParam("nickname")
	if nickname == "" {
		return fmt.Errorf("%w: nickname is required", domain.ErrInvalidInput)
	}

	ok, err := h.members.IsNicknameAvailable(c.Request().Context(), nickname)
	if err != nil {
		return err
	}
	return JSON(c, http.StatusOK, map[string]any{
		"nickname":  nickname,
		"available": ok,
	})
}

// UsePoints deducts points from the member's balance.
func (h *MemberHandler) UsePoints(c echo.Context) error {
	memberID, ok := GetMemberID(c)
	if !ok {
		return domain.ErrUnauthorized
	}

	var req usePointsRequest
	if err := c.Bind(&req); err != nil {
		return fmt.Errorf("%w: invalid request body", domain.ErrInvalidInput)
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	m, err := h.members.UsePoints(c.Request().Context(), memberID, req.Amount)
	if err != nil {
		return err
	}
	return JSON(c, http.StatusOK, map[string]int64{"points": m.Points})
}

// Discount quotes the grade discount for ?price=.
func (h *MemberHandler) Discount(c echo.Context) error {
	memberID, ok := GetMemberID(c)
	if !ok {
		return domain.ErrUnauthorized
	}

	price, err := strconv.ParseInt(c.QueryParam("price"), 10, 64)
	if err != nil {
		return fmt.Errorf("%w: price must be an integer", domain.ErrInvalidInput)
	}

	m, err := h.members.GetActive(c.Request().Context(), memberID)
	if err != nil {
		return err
	}
	discount, err := domain.CalculateDiscount(m.Grade, price)
	if err != nil {
		return err
	}
	final, err := domain.FinalPrice(m.Grade, price)
	if err != nil {
		return err
	}
	return JSON(c, http.StatusOK, map[string]any{
		"grade":       m.Grade,
		"price":       price,
		"discount":    discount,
		"final_price": final,
	})
}

// Delete withdraws the member. Points and grade are forfeited.
func (h *MemberHandler) Delete(c echo.Context) error {
	memberID, ok := GetMemberID(c)
	if !ok {
		return domain.ErrUnauthorized
	}

	if _, err := h.members.Delete(c.Request().Context(), memberID); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
