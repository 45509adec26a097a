package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/oksasatya/pong-user-directory/internal/domain"
	"github.com/oksasatya/pong-user-directory/internal/domain/entity"
	"github.com/oksasatya/pong-user-directory/internal/domain/repository"
)

const userColumns = `id, login, nickname, avatar_url, tfa_enabled, tfa_secret, created_at, updated_at`

// Relation sub-selects are correlated on users.id so the user row and its
// relations come from the same statement snapshot.
const (
	channelsSubquery = `(
		SELECT COALESCE(json_agg(json_build_object(
			'id', c.id, 'name', c.name, 'owner_id', c.owner_id,
			'created_at', c.created_at, 'joined_at', cm.joined_at) ORDER BY c.id), '[]'::json)
		FROM channel_members cm
		JOIN channels c ON c.id = cm.channel_id
		WHERE cm.user_id = users.id) AS channels`

	blockedUsersSubquery = `(
		SELECT COALESCE(json_agg(json_build_object(
			'id', b.id, 'blocking_user_id', b.blocking_user_id, 'blocked_user_id', b.blocked_user_id,
			'blocked_nickname', t.nickname, 'created_at', b.created_at) ORDER BY b.id), '[]'::json)
		FROM blocked_users b
		JOIN users t ON t.id = b.blocked_user_id
		WHERE b.blocking_user_id = users.id) AS blocked_users`
)

// SecretSealer protects tfa_secret at rest.
type SecretSealer interface {
	Seal(plain string) (string, error)
	Open(sealed string) (string, error)
}

type Option func(*UserRepository)

func WithSecretSealer(s SecretSealer) Option {
	return func(r *UserRepository) { r.sealer = s }
}

type UserRepository struct {
	db     DB
	sealer SecretSealer
}

func NewUserRepository(db DB, opts ...Option) *UserRepository {
	r := &UserRepository{db: db}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *UserRepository) Save(ctx context.Context, in entity.NewUser) (*entity.User, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	secret, err := r.seal(in.TFASecret)
	if err != nil {
		return nil, fmt.Errorf("save user: %w", err)
	}

	row := r.db.QueryRow(ctx, `
		INSERT INTO users (login, nickname, avatar_url, tfa_enabled, tfa_secret)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+userColumns,
		in.Login, in.Nickname, in.AvatarURL, in.TFAEnabled, secret)

	u, err := r.scanUser(row, 0)
	if err != nil {
		return nil, translate("save user", err)
	}
	return u, nil
}

func (r *UserRepository) Update(ctx context.Context, id int64, p entity.UserPatch) (*entity.User, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if p.IsEmpty() {
		return r.findOne(ctx, "id", id, 0)
	}

	sets := make([]string, 0, 5)
	args := make([]any, 0, 5)
	set := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if v, ok := p.Nickname.Get(); ok {
		set("nickname", v)
	}
	if v, ok := p.AvatarURL.Get(); ok {
		set("avatar_url", v)
	}
	if v, ok := p.TFAEnabled.Get(); ok {
		set("tfa_enabled", v)
	}
	if v, ok := p.TFASecret.Get(); ok {
		sealed, err := r.seal(v)
		if err != nil {
			return nil, fmt.Errorf("update user: %w", err)
		}
		set("tfa_secret", sealed)
	}
	args = append(args, id)

	q := fmt.Sprintf(`UPDATE users SET %s, updated_at = now() WHERE id = $%d RETURNING %s`,
		strings.Join(sets, ", "), len(args), userColumns)

	u, err := r.scanUser(r.db.QueryRow(ctx, q, args...), 0)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &domain.NotFoundError{Entity: "user", Key: "id", Value: id}
	}
	if err != nil {
		return nil, translate("update user", err)
	}
	return u, nil
}

func (r *UserRepository) FindByNickname(ctx context.Context, nickname string, with entity.Relation) (*entity.User, error) {
	return r.findOne(ctx, "nickname", nickname, with)
}

// findOne selects a user by a unique column. col is never user input.
func (r *UserRepository) findOne(ctx context.Context, col string, value any, with entity.Relation) (*entity.User, error) {
	cols := []string{userColumns}
	if with.Has(entity.WithChannels) {
		cols = append(cols, channelsSubquery)
	}
	if with.Has(entity.WithBlockedUsers) {
		cols = append(cols, blockedUsersSubquery)
	}
	q := `SELECT ` + strings.Join(cols, ", ") + ` FROM users WHERE ` + col + ` = $1`

	u, err := r.scanUser(r.db.QueryRow(ctx, q, value), with)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &domain.NotFoundError{Entity: "user", Key: col, Value: value}
	}
	if err != nil {
		return nil, translate("find user by "+col, err)
	}
	return u, nil
}

type channelRow struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	OwnerID   int64     `json:"owner_id"`
	CreatedAt time.Time `json:"created_at"`
	JoinedAt  time.Time `json:"joined_at"`
}

type blockedUserRow struct {
	ID              int64     `json:"id"`
	BlockingUserID  int64     `json:"blocking_user_id"`
	BlockedUserID   int64     `json:"blocked_user_id"`
	BlockedNickname string    `json:"blocked_nickname"`
	CreatedAt       time.Time `json:"created_at"`
}

func (r *UserRepository) scanUser(row pgx.Row, with entity.Relation) (*entity.User, error) {
	u := &entity.User{}
	var channelsRaw, blockedRaw []byte
	dest := []any{&u.ID, &u.Login, &u.Nickname, &u.AvatarURL, &u.TFAEnabled, &u.TFASecret, &u.CreatedAt, &u.UpdatedAt}
	if with.Has(entity.WithChannels) {
		dest = append(dest, &channelsRaw)
	}
	if with.Has(entity.WithBlockedUsers) {
		dest = append(dest, &blockedRaw)
	}
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	if u.TFASecret != nil && r.sealer != nil {
		plain, err := r.sealer.Open(*u.TFASecret)
		if err != nil {
			return nil, fmt.Errorf("open tfa secret: %w", err)
		}
		u.TFASecret = &plain
	}

	if with.Has(entity.WithChannels) {
		var rows []channelRow
		if err := json.Unmarshal(channelsRaw, &rows); err != nil {
			return nil, fmt.Errorf("decode channels: %w", err)
		}
		u.Channels = make([]entity.Channel, 0, len(rows))
		for _, c := range rows {
			u.Channels = append(u.Channels, entity.Channel(c))
		}
		u.Loaded |= entity.WithChannels
	}
	if with.Has(entity.WithBlockedUsers) {
		var rows []blockedUserRow
		if err := json.Unmarshal(blockedRaw, &rows); err != nil {
			return nil, fmt.Errorf("decode blocked users: %w", err)
		}
		u.BlockedUsers = make([]entity.BlockedUser, 0, len(rows))
		for _, b := range rows {
			u.BlockedUsers = append(u.BlockedUsers, entity.BlockedUser(b))
		}
		u.Loaded |= entity.WithBlockedUsers
	}
	return u, nil
}

func (r *UserRepository) seal(secret *string) (*string, error) {
	if secret == nil || r.sealer == nil {
		return secret, nil
	}
	sealed, err := r.sealer.Seal(*secret)
	if err != nil {
		return nil, fmt.Errorf("seal tfa secret: %w", err)
	}
	return &sealed, nil
}

var _ repository.UserRepository = (*UserRepository)(nil)
