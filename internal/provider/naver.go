package provider

import (
	"encoding/json"
	"fmt"

	"github.com/sumire/stay/internal/domain"
)

const naverResultOK = "00"

// naverEnvelope wraps every Naver profile response.
type naverEnvelope struct {
	ResultCode string        `json:"resultcode"`
	Message    string        `json:"message"`
	Response   *naverProfile `json:"response"`
}

type naverProfile struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	Name         string `json:"name"`
	Nickname     string `json:"nickname"`
	ProfileImage string `json:"profile_image"`
}

func normalizeNaver(body []byte) (*Profile, error) {
	var env naverEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: naver: decode user info: %v", domain.ErrProfileFetchFailed, err)
	}
	if env.ResultCode != "" && env.ResultCode != naverResultOK {
		return nil, fmt.Errorf("%w: naver: resultcode %s", domain.ErrProfileFetchFailed, env.ResultCode)
	}
	if env.Response == nil {
		return nil, fmt.Errorf("%w: naver: envelope without response", domain.ErrProfileFetchFailed)
	}

	p := env.Response
	if p.ID == "" {
		return nil, fmt.Errorf("%w: naver: missing id", domain.ErrProfileFetchFailed)
	}
	if p.Email == "" {
		return nil, fmt.Errorf("%w: naver: missing email", domain.ErrProfileFetchFailed)
	}

	name := p.Name
	if name == "" {
		name = p.Nickname
	}

	return &Profile{
		Provider:      domain.ProviderNaver,
		ExternalID:    p.ID,
		Email:         p.Email,
		DisplayName:   name,
		AvatarURL:     p.ProfileImage,
		EmailVerified: true,
	}, nil
}
