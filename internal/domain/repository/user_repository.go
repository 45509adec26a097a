package repository

import (
	"context"

	"github.com/oksasatya/pong-user-directory/internal/domain/entity"
)

// UserRepository is the sole point of access to persisted users.
//
// Errors are drawn from the domain taxonomy: *domain.ValidationError,
// *domain.ConflictError, *domain.NotFoundError and
// *domain.StorageUnavailableError.
type UserRepository interface {
	// Save stores a new user and returns it with its assigned id.
	Save(ctx context.Context, u entity.NewUser) (*entity.User, error)

	// Update applies the fields present in p to the user with the given id
	// and returns the merged record.
	Update(ctx context.Context, id int64, p entity.UserPatch) (*entity.User, error)

	// FindByNickname returns the user with the given nickname, with the
	// requested relations materialized as non-nil slices.
	FindByNickname(ctx context.Context, nickname string, with entity.Relation) (*entity.User, error)
}

// RelationWriter creates the channel and block records that user lookups
// expand. These belong to the chat subsystem; the directory exposes the
// contract for seeding and tests.
type RelationWriter interface {
	CreateChannel(ctx context.Context, name string, ownerID int64) (*entity.Channel, error)
	AddMember(ctx context.Context, channelID, userID int64) error
	BlockUser(ctx context.Context, blockingUserID, blockedUserID int64) (*entity.BlockedUser, error)
}

func FindByNickname(ctx context.Context, r UserRepository, nickname string) (*entity.User, error) {
	return r.FindByNickname(ctx, nickname, 0)
}

func FindByNicknameWithChannels(ctx context.Context, r UserRepository, nickname string) (*entity.User, error) {
	return r.FindByNickname(ctx, nickname, entity.WithChannels)
}

func FindByNicknameWithChannelsAndBlockedUsers(ctx context.Context, r UserRepository, nickname string) (*entity.User, error) {
	return r.FindByNickname(ctx, nickname, entity.WithChannels|entity.WithBlockedUsers)
}
