package entity

import "time"

// Channel is a chat room a user belongs to. It is owned by the chat
// subsystem; the directory only reads it.
type Channel struct {
	ID        int64
	Name      string
	OwnerID   int64
	CreatedAt time.Time
	// JoinedAt is set when the channel is read through a membership.
	JoinedAt time.Time
}

// BlockedUser records that BlockingUserID has blocked BlockedUserID.
type BlockedUser struct {
	ID              int64
	BlockingUserID  int64
	BlockedUserID   int64
	BlockedNickname string
	CreatedAt       time.Time
}
