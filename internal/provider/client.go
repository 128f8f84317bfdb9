package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/oauth2"

	"github.com/sumire/stay/internal/domain"
	"github.com/sumire/stay/internal/metrics"
)

const (
	// MaxTimeout bounds every outbound provider call.
	MaxTimeout = 10 * time.Second

	maxProfileBytes = 1 << 20
)

// Config describes one provider's client registration and endpoints.
type Config struct {
	Provider     domain.Provider
	ClientID     string
	ClientSecret string
	RedirectURI  string
	AuthURL      string
	TokenURL     string
	UserInfoURL  string
	Scopes       []string
	Timeout      time.Duration
	// MaxRetries is the number of extra attempts on transient failures.
	MaxRetries uint64
}

// Client implements Adapter over OAuth2 authorization-code exchange and a
// bearer-authenticated user-info endpoint.
type Client struct {
	provider    domain.Provider
	oauth       *oauth2.Config
	userInfoURL string
	http        *http.Client
	normalize   func([]byte) (*Profile, error)
	maxRetries  uint64
	newBackOff  func() backoff.BackOff
}

// NewClient builds an adapter for cfg.Provider.
func NewClient(cfg Config) (*Client, error) {
	var normalize func([]byte) (*Profile, error)
	switch cfg.Provider {
	case domain.ProviderGoogle:
		normalize = normalizeGoogle
	case domain.ProviderNaver:
		normalize = normalizeNaver
	case domain.ProviderKakao:
		normalize = normalizeKakao
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrUnsupportedProvider, cfg.Provider)
	}

	if cfg.ClientID == "" || cfg.TokenURL == "" || cfg.UserInfoURL == "" {
		return nil, fmt.Errorf("%s: client id, token url and user-info url are required", cfg.Provider)
	}

	timeout := cfg.Timeout
	if timeout <= 0 || timeout > MaxTimeout {
		timeout = MaxTimeout
	}

	return &Client{
		provider: cfg.Provider,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		userInfoURL: cfg.UserInfoURL,
		http:        &http.Client{Timeout: timeout},
		normalize:   normalize,
		maxRetries:  cfg.MaxRetries,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 200 * time.Millisecond
			b.MaxElapsedTime = timeout
			return b
		},
	}, nil
}

func (c *Client) Provider() domain.Provider {
	return c.provider
}

// AuthCodeURL returns the consent page URL carrying state.
func (c *Client) AuthCodeURL(state string) string {
	return c.oauth.AuthCodeURL(state)
}

// ExchangeCode trades an authorization code for the provider's access token.
func (c *Client) ExchangeCode(ctx context.Context, code string) (string, error) {
	if code == "" {
		return "", fmt.Errorf("%w: %s: empty authorization code", domain.ErrTokenExchangeFailed, c.provider)
	}

	slog.DebugContext(ctx, "exchanging authorization code",
		"provider", c.provider,
		"client_id", c.oauth.ClientID,
		"client_secret", redact(c.oauth.ClientSecret),
		"code", redact(code),
	)

	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.http)

	var accessToken string
	err := c.retry(ctx, "exchange", func() error {
		tok, err := c.oauth.Exchange(ctx, code)
		if err != nil {
			return err
		}
		accessToken = tok.AccessToken
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %s: %s", domain.ErrTokenExchangeFailed, c.provider, describe(err))
	}
	if accessToken == "" {
		return "", fmt.Errorf("%w: %s: empty access token", domain.ErrTokenExchangeFailed, c.provider)
	}
	return accessToken, nil
}

// FetchProfile loads and normalizes the user's profile.
func (c *Client) FetchProfile(ctx context.Context, accessToken string) (*Profile, error) {
	var body []byte
	err := c.retry(ctx, "profile", func() error {
		b, err := c.getUserInfo(ctx, accessToken)
		if err != nil {
			return err
		}
		body = b
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %s", domain.ErrProfileFetchFailed, c.provider, describe(err))
	}
	return c.normalize(body)
}

func (c *Client) getUserInfo(ctx context.Context, accessToken string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.userInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxProfileBytes))
		return nil, &statusError{code: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxProfileBytes))
	if err != nil {
		return nil, fmt.Errorf("read user info: %w", err)
	}
	return body, nil
}

func (c *Client) retry(ctx context.Context, op string, fn func() error) error {
	start := time.Now()
	b := backoff.WithContext(backoff.WithMaxRetries(c.newBackOff(), c.maxRetries), ctx)

	err := backoff.RetryNotify(func() error {
		err := fn()
		if err != nil && (ctx.Err() != nil || !transient(err)) {
			return backoff.Permanent(err)
		}
		return err
	}, b, func(err error, wait time.Duration) {
		slog.WarnContext(ctx, "provider call failed, retrying",
			"provider", c.provider,
			"operation", op,
			"wait", wait,
			"error", describe(err),
		)
	})

	result := "success"
	if err != nil {
		result = "error"
	}
	metrics.ProviderRequestDurationSeconds.
		WithLabelValues(string(c.provider), op, result).
		Observe(time.Since(start).Seconds())
	return err
}

type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return "unexpected status " + strconv.Itoa(e.code)
}

func retryableStatus(code int) bool {
	return code >= http.StatusInternalServerError || code == http.StatusTooManyRequests
}

// transient reports whether err is worth another attempt: transport
// failures, 5xx and 429. Provider rejections (4xx) are final.
func transient(err error) bool {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		return re.Response != nil && retryableStatus(re.Response.StatusCode)
	}
	var se *statusError
	if errors.As(err, &se) {
		return retryableStatus(se.code)
	}
	var ue *url.Error
	return errors.As(err, &ue)
}

// describe renders err without provider response bodies or request URLs.
func describe(err error) string {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		msg := "provider rejected request"
		if re.Response != nil {
			msg += ": status " + strconv.Itoa(re.Response.StatusCode)
		}
		if re.ErrorCode != "" {
			msg += ": " + re.ErrorCode
		}
		return msg
	}
	var ue *url.Error
	if errors.As(err, &ue) {
		if ue.Timeout() {
			return ue.Op + ": timeout"
		}
		return ue.Op + ": " + ue.Err.Error()
	}
	return err.Error()
}

// redact keeps a short prefix of a secret for correlating log lines.
func redact(s string) string {
	if len(s) <= 4 {
		return "****"
	}
	return s[:4] + "...(" + strconv.Itoa(len(s)) + ")"
}
