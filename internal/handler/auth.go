package handler

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/sumire/stay/internal/domain"
	"github.com/sumire/stay/internal/service"
)

const (
	stateCookie        = "oauth_state"
	accessTokenCookie  = "access_token"
	refreshTokenCookie = "refresh_token"

	stateMaxAge = 600
)

// AuthUseCase is the login flow the handlers drive.
type AuthUseCase interface {
	TokenAuthenticator
	AuthURL(providerKey, state string) (string, error)
	Login(ctx context.Context, providerKey, code string) (*service.LoginResult, error)
	Register(ctx context.Context, ticket, nickname string) (*service.TokenResponse, error)
	Refresh(ctx context.Context, refreshToken string) (*service.TokenResponse, error)
	Logout(ctx context.Context, memberID int64)
}

// CookieConfig controls the token cookies set on login.
type CookieConfig struct {
	Secure          bool
	AccessLifetime  time.Duration
	RefreshLifetime time.Duration
}

// AuthHandler handles authentication endpoints.
type AuthHandler struct {
	auth    AuthUseCase
	members MemberUseCase
	cookies CookieConfig
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(auth AuthUseCase, members MemberUseCase, cookies CookieConfig) *AuthHandler {
	return &AuthHandler{auth: auth, members: members, cookies: cookies}
}

type loginRequest struct {
	Provider string `json:"provider" validate:"required"`
	Code     string `json:"code" validate:"required"`
}

type signupRequest struct {
	SignupTicket string `json:"signup_ticket" validate:"required"`
	Nickname     string `json:"nickname" validate:"required,nickname"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Redirect sends the browser to the provider's consent page.
func (h *AuthHandler) Redirect(c echo.Context) error {
	state, err := generateState()
	if err != nil {
		return fmt.Errorf("generate oauth state: %w", err)
	}

	url, err := h.auth.AuthURL(c.Param("provider"), state)
	if err != nil {
		return err
	}

	c.SetCookie(&http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.cookies.Secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   stateMaxAge,
	})
	return c.Redirect(http.StatusTemporaryRedirect, url)
}

// Callback handles the provider redirect after consent.
func (h *AuthHandler) Callback(c echo.Context) error {
	if err := validateOAuthState(c); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	h.clearCookie(c, stateCookie)

	code := c.QueryParam("code")
	if code == "" {
		return fmt.Errorf("%w: missing code parameter", domain.ErrInvalidInput)
	}

	return h.login(c, c.Param("provider"), code)
}

// Login exchanges an authorization code obtained by the client.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return fmt.Errorf("%w: invalid request body", domain.ErrInvalidInput)
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	return h.login(c, req.Provider, req.Code)
}

func (h *AuthHandler) login(c echo.Context, providerKey, code string) error {
	res, err := h.auth.Login(c.Request().Context(), providerKey, code)
	if err != nil {
		return err
	}
	if res.Tokens != nil {
		h.setTokenCookies(c, res.Tokens)
	}
	return JSON(c, http.StatusOK, res)
}

// Signup completes a pending signup with the chosen nickname.
func (h *AuthHandler) Signup(c echo.Context) error {
	var req signupRequest
	if err := c.Bind(&req); err != nil {
		return fmt.Errorf("%w: invalid request body", domain.ErrInvalidInput)
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	tokens, err := h.auth.Register(c.Request().Context(), req.SignupTicket, req.Nickname)
	if err != nil {
		return err
	}
	h.setTokenCookies(c, tokens)
	return JSON(c, http.StatusCreated, tokens)
}

// Refresh issues a new access token from a refresh token in the body or cookie.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshRequest
	if err := c.Bind(&req); err != nil {
		return fmt.Errorf("%w: invalid request body", domain.ErrInvalidInput)
	}
	if req.RefreshToken == "" {
		if cookie, err := c.Cookie(refreshTokenCookie); err == nil {
			req.RefreshToken = cookie.Value
		}
	}
	if req.RefreshToken == "" {
		return fmt.Errorf("%w: refresh_token is required", domain.ErrInvalidInput)
	}

	tokens, err := h.auth.Refresh(c.Request().Context(), req.RefreshToken)
	if err != nil {
		return err
	}
	h.setTokenCookies(c, tokens)
	return JSON(c, http.StatusOK, tokens)
}

// Logout clears the token cookies. Issued tokens remain valid until expiry.
func (h *AuthHandler) Logout(c echo.Context) error {
	if token, err := bearerToken(c); err == nil {
		if memberID, err := h.auth.Authenticate(token); err == nil {
			h.auth.Logout(c.Request().Context(), memberID)
		}
	}
	h.clearCookie(c, accessTokenCookie)
	h.clearCookie(c, refreshTokenCookie)
	return c.NoContent(http.StatusNoContent)
}

// Me returns the currently authenticated member.
func (h *AuthHandler) Me(c echo.Context) error {
	memberID, ok := GetMemberID(c)
	if !ok {
		return domain.ErrUnauthorized
	}

	m, err := h.members.GetActive(c.Request().Context(), memberID)
	if err != nil {
		return err
	}
	return JSON(c, http.StatusOK, newMemberView(m, nil))
}

func (h *AuthHandler) setTokenCookies(c echo.Context, tokens *service.TokenResponse) {
	c.SetCookie(h.tokenCookie(accessTokenCookie, tokens.AccessToken, h.cookies.AccessLifetime))
	if tokens.RefreshToken != "" {
		c.SetCookie(h.tokenCookie(refreshTokenCookie, tokens.RefreshToken, h.cookies.RefreshLifetime))
	}
}

func (h *AuthHandler) tokenCookie(name, value string, lifetime time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.cookies.Secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(lifetime / time.Second),
	}
}

func (h *AuthHandler) clearCookie(c echo.Context, name string) {
	c.SetCookie(&http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   h.cookies.Secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}

func generateState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func validateOAuthState(c echo.Context) error {
	cookie, err := c.Cookie(stateCookie)
	if err != nil {
		return fmt.Errorf("missing %s cookie", stateCookie)
	}

	queryState := c.QueryParam("state")
	if queryState == "" || queryState != cookie.Value {
		return fmt.Errorf("state mismatch")
	}

	return nil
}
