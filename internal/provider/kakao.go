package provider

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/sumire/stay/internal/domain"
)

type kakaoUser struct {
	ID      int64         `json:"id"`
	Account *kakaoAccount `json:"kakao_account"`
}

type kakaoAccount struct {
	Email   string        `json:"email"`
	Profile *kakaoProfile `json:"profile"`
}

type kakaoProfile struct {
	Nickname        string `json:"nickname"`
	ProfileImageURL string `json:"profile_image_url"`
}

func normalizeKakao(body []byte) (*Profile, error) {
	var u kakaoUser
	if err := json.Unmarshal(body, &u); err != nil {
		return nil, fmt.Errorf("%w: kakao: decode user info: %v", domain.ErrProfileFetchFailed, err)
	}
	if u.ID == 0 {
		return nil, fmt.Errorf("%w: kakao: missing id", domain.ErrProfileFetchFailed)
	}

	p := &Profile{
		Provider:   domain.ProviderKakao,
		ExternalID: strconv.FormatInt(u.ID, 10),
	}
	if u.Account != nil {
		p.Email = u.Account.Email
		if u.Account.Profile != nil {
			p.DisplayName = u.Account.Profile.Nickname
			p.AvatarURL = u.Account.Profile.ProfileImageURL
		}
	}

	if p.Email == "" {
		p.Email = PlaceholderEmail(domain.ProviderKakao, p.ExternalID)
	} else {
		p.EmailVerified = true
	}
	return p, nil
}

// PlaceholderEmail is the deterministic address used when a provider shares no email.
func PlaceholderEmail(p domain.Provider, externalID string) string {
	return fmt.Sprintf("%s_%s@%s.invalid", p.Key(), externalID, p.Key())
}
