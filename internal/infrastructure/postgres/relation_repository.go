package postgres

import (
	"context"
	"strings"

	"github.com/oksasatya/pong-user-directory/internal/domain"
	"github.com/oksasatya/pong-user-directory/internal/domain/entity"
	"github.com/oksasatya/pong-user-directory/internal/domain/repository"
)

// RelationRepository writes the channel and block rows that user lookups read.
type RelationRepository struct {
	db DB
}

func NewRelationRepository(db DB) *RelationRepository {
	return &RelationRepository{db: db}
}

func (r *RelationRepository) CreateChannel(ctx context.Context, name string, ownerID int64) (*entity.Channel, error) {
	if strings.TrimSpace(name) == "" {
		return nil, domain.NewValidationError("name", "is required")
	}
	ch := &entity.Channel{}
	err := r.db.QueryRow(ctx, `
		INSERT INTO channels (name, owner_id)
		VALUES ($1, $2)
		RETURNING id, name, owner_id, created_at
	`, name, ownerID).Scan(&ch.ID, &ch.Name, &ch.OwnerID, &ch.CreatedAt)
	if err != nil {
		return nil, translate("create channel", err)
	}
	return ch, nil
}

// AddMember is idempotent: joining a channel twice keeps the first joined_at.
func (r *RelationRepository) AddMember(ctx context.Context, channelID, userID int64) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO channel_members (channel_id, user_id)
		VALUES ($1, $2)
		ON CONFLICT (channel_id, user_id) DO NOTHING
	`, channelID, userID)
	return translate("add channel member", err)
}

func (r *RelationRepository) BlockUser(ctx context.Context, blockingUserID, blockedUserID int64) (*entity.BlockedUser, error) {
	if blockingUserID == blockedUserID {
		return nil, domain.NewValidationError("blocked_user_id", "must differ from blocking_user_id")
	}
	b := &entity.BlockedUser{}
	err := r.db.QueryRow(ctx, `
		WITH b AS (
			INSERT INTO blocked_users (blocking_user_id, blocked_user_id)
			VALUES ($1, $2)
			RETURNING id, blocking_user_id, blocked_user_id, created_at
		)
		SELECT b.id, b.blocking_user_id, b.blocked_user_id, u.nickname, b.created_at
		FROM b
		JOIN users u ON u.id = b.blocked_user_id
	`, blockingUserID, blockedUserID).Scan(&b.ID, &b.BlockingUserID, &b.BlockedUserID, &b.BlockedNickname, &b.CreatedAt)
	if err != nil {
		return nil, translate("block user", err)
	}
	return b, nil
}

var _ repository.RelationWriter = (*RelationRepository)(nil)
