package entity

import (
	"time"

	"github.com/oksasatya/pong-user-directory/internal/domain"
	"github.com/oksasatya/pong-user-directory/pkg/validation"
)

const tfaMismatch = "must be set exactly when tfa_enabled is true"

// User is the aggregate root for the user directory.
//
// Channels and BlockedUsers are only materialized when the read asked for
// them; Loaded records which ones were.
type User struct {
	ID         int64
	Login      string
	Nickname   string
	AvatarURL  *string
	TFAEnabled bool
	TFASecret  *string
	CreatedAt  time.Time
	UpdatedAt  time.Time

	Channels     []Channel
	BlockedUsers []BlockedUser
	Loaded       Relation
}

// CheckTFA enforces that a secret is stored exactly when TFA is enabled.
func (u *User) CheckTFA() error {
	if u.TFAEnabled != (u.TFASecret != nil) {
		return domain.NewValidationError("tfa_secret", tfaMismatch)
	}
	return nil
}

// Apply merges the fields present in p into u.
func (u *User) Apply(p UserPatch) {
	if v, ok := p.Nickname.Get(); ok {
		u.Nickname = v
	}
	if v, ok := p.AvatarURL.Get(); ok {
		u.AvatarURL = cloneString(v)
	}
	if v, ok := p.TFAEnabled.Get(); ok {
		u.TFAEnabled = v
	}
	if v, ok := p.TFASecret.Get(); ok {
		u.TFASecret = cloneString(v)
	}
}

// NewUser carries the fields accepted when a user is first stored.
type NewUser struct {
	Login      string  `json:"login" validate:"required,notblank,max=64"`
	Nickname   string  `json:"nickname" validate:"required,nickname"`
	AvatarURL  *string `json:"avatar_url" validate:"omitempty,max=2048"`
	TFAEnabled bool    `json:"tfa_enabled"`
	TFASecret  *string `json:"tfa_secret" validate:"omitempty,notblank,max=256"`
}

// Validate reports missing or malformed fields without touching storage.
func (n NewUser) Validate() error {
	if details := validation.Struct(n); details != nil {
		return &domain.ValidationError{Fields: details}
	}
	if n.TFAEnabled != (n.TFASecret != nil) {
		return domain.NewValidationError("tfa_secret", tfaMismatch)
	}
	return nil
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
