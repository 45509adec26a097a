package handlers

import (
	"time"

	"github.com/oksasatya/pong-user-directory/internal/domain/entity"
)

// userResponse is the public view of a user. The TFA secret is never
// rendered. Relations are present only when they were requested.
type userResponse struct {
	ID           int64                  `json:"id"`
	Login        string                 `json:"login"`
	Nickname     string                 `json:"nickname"`
	AvatarURL    *string                `json:"avatar_url"`
	TFAEnabled   bool                   `json:"tfa_enabled"`
	CreatedAt    time.Time              `json:"created_at"`
	UpdatedAt    time.Time              `json:"updated_at"`
	Channels     *[]channelResponse     `json:"channels,omitempty"`
	BlockedUsers *[]blockedUserResponse `json:"blocked_users,omitempty"`
}

type channelResponse struct {
	ID       int64     `json:"id"`
	Name     string    `json:"name"`
	OwnerID  int64     `json:"owner_id"`
	JoinedAt time.Time `json:"joined_at"`
}

type blockedUserResponse struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Nickname  string    `json:"nickname"`
	CreatedAt time.Time `json:"created_at"`
}

func toUserResponse(u *entity.User) userResponse {
	out := userResponse{
		ID:         u.ID,
		Login:      u.Login,
		Nickname:   u.Nickname,
		AvatarURL:  u.AvatarURL,
		TFAEnabled: u.TFAEnabled,
		CreatedAt:  u.CreatedAt,
		UpdatedAt:  u.UpdatedAt,
	}
	if u.Loaded.Has(entity.WithChannels) {
		chs := make([]channelResponse, 0, len(u.Channels))
		for _, c := range u.Channels {
			chs = append(chs, channelResponse{ID: c.ID, Name: c.Name, OwnerID: c.OwnerID, JoinedAt: c.JoinedAt})
		}
		out.Channels = &chs
	}
	if u.Loaded.Has(entity.WithBlockedUsers) {
		bl := make([]blockedUserResponse, 0, len(u.BlockedUsers))
		for _, b := range u.BlockedUsers {
			bl = append(bl, blockedUserResponse{ID: b.ID, UserID: b.BlockedUserID, Nickname: b.BlockedNickname, CreatedAt: b.CreatedAt})
		}
		out.BlockedUsers = &bl
	}
	return out
}
