package provider

import (
	"encoding/json"
	"fmt"

	"github.com/sumire/stay/internal/domain"
)

type googleUserInfo struct {
	ID      string `json:"id"`
	Sub     string `json:"sub"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

func normalizeGoogle(body []byte) (*Profile, error) {
	var info googleUserInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("%w: google: decode user info: %v", domain.ErrProfileFetchFailed, err)
	}
	// The OpenID Connect endpoint names the subject "sub".
	if info.ID == "" {
		info.ID = info.Sub
	}
	if info.ID == "" {
		return nil, fmt.Errorf("%w: google: missing id", domain.ErrProfileFetchFailed)
	}
	if info.Email == "" {
		return nil, fmt.Errorf("%w: google: missing email", domain.ErrProfileFetchFailed)
	}

	return &Profile{
		Provider:      domain.ProviderGoogle,
		ExternalID:    info.ID,
		Email:         info.Email,
		DisplayName:   info.Name,
		AvatarURL:     info.Picture,
		EmailVerified: true,
	}, nil
}
