package entity

import (
	"github.com/oksasatya/pong-user-directory/internal/domain"
	"github.com/oksasatya/pong-user-directory/pkg/opt"
	"github.com/oksasatya/pong-user-directory/pkg/validation"
)

// UserPatch is a partial update. Absent fields are left untouched;
// Some(nil) on a pointer field clears the stored value.
type UserPatch struct {
	Nickname   opt.Value[string]  `json:"nickname"`
	AvatarURL  opt.Value[*string] `json:"avatar_url"`
	TFAEnabled opt.Value[bool]    `json:"tfa_enabled"`
	TFASecret  opt.Value[*string] `json:"tfa_secret"`
}

// DisableTFA turns TFA off and clears the secret in the same patch.
func (p UserPatch) DisableTFA() UserPatch {
	p.TFAEnabled = opt.Some(false)
	p.TFASecret = opt.Some[*string](nil)
	return p
}

// EnableTFA turns TFA on with the given secret.
func (p UserPatch) EnableTFA(secret string) UserPatch {
	p.TFAEnabled = opt.Some(true)
	p.TFASecret = opt.Some(&secret)
	return p
}

func (p UserPatch) IsEmpty() bool {
	return !p.Nickname.IsSet() && !p.AvatarURL.IsSet() && !p.TFAEnabled.IsSet() && !p.TFASecret.IsSet()
}

// Validate checks the fields the patch sets. The TFA pairing can only be
// decided here when both TFA fields are present; otherwise it is checked
// against the merged record.
func (p UserPatch) Validate() error {
	fields := map[string]string{}
	if v, ok := p.Nickname.Get(); ok {
		if msg := validation.Var(v, "required,nickname"); msg != "" {
			fields["nickname"] = msg
		}
	}
	if v, ok := p.AvatarURL.Get(); ok && v != nil {
		if msg := validation.Var(*v, "max=2048"); msg != "" {
			fields["avatar_url"] = msg
		}
	}
	if v, ok := p.TFASecret.Get(); ok && v != nil {
		if msg := validation.Var(*v, "required,notblank,max=256"); msg != "" {
			fields["tfa_secret"] = msg
		}
	}
	if len(fields) > 0 {
		return &domain.ValidationError{Fields: fields}
	}

	enabled, enabledSet := p.TFAEnabled.Get()
	secret, secretSet := p.TFASecret.Get()
	if enabledSet && secretSet && enabled != (secret != nil) {
		return domain.NewValidationError("tfa_secret", tfaMismatch)
	}
	return nil
}
