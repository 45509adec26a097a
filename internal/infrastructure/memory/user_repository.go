// Package memory is an in-process user store with the same semantics as the
// postgres repository. It backs unit tests and local runs without a database.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oksasatya/pong-user-directory/internal/domain"
	"github.com/oksasatya/pong-user-directory/internal/domain/entity"
	"github.com/oksasatya/pong-user-directory/internal/domain/repository"
)

type Store struct {
	mu sync.RWMutex

	users      map[int64]*entity.User
	byLogin    map[string]int64
	byNickname map[string]int64

	channels      map[int64]*entity.Channel
	channelByName map[string]int64
	// members maps user id -> channel id -> joined at.
	members map[int64]map[int64]time.Time
	blocks  []entity.BlockedUser

	nextUserID, nextChannelID, nextBlockID int64

	now func() time.Time
}

func NewStore() *Store {
	return &Store{
		users:         map[int64]*entity.User{},
		byLogin:       map[string]int64{},
		byNickname:    map[string]int64{},
		channels:      map[int64]*entity.Channel{},
		channelByName: map[string]int64{},
		members:       map[int64]map[int64]time.Time{},
		now:           func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) Save(ctx context.Context, in entity.NewUser) (*entity.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byLogin[in.Login]; ok {
		return nil, &domain.ConflictError{Entity: "user", Field: "login", Value: in.Login}
	}
	if _, ok := s.byNickname[in.Nickname]; ok {
		return nil, &domain.ConflictError{Entity: "user", Field: "nickname", Value: in.Nickname}
	}

	s.nextUserID++
	now := s.now()
	u := &entity.User{
		ID:         s.nextUserID,
		Login:      in.Login,
		Nickname:   in.Nickname,
		AvatarURL:  cloneString(in.AvatarURL),
		TFAEnabled: in.TFAEnabled,
		TFASecret:  cloneString(in.TFASecret),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	s.users[u.ID] = u
	s.byLogin[u.Login] = u.ID
	s.byNickname[u.Nickname] = u.ID
	return cloneUser(u), nil
}

func (s *Store) Update(ctx context.Context, id int64, p entity.UserPatch) (*entity.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.users[id]
	if !ok {
		return nil, &domain.NotFoundError{Entity: "user", Key: "id", Value: id}
	}
	if p.IsEmpty() {
		return cloneUser(cur), nil
	}

	next := cloneUser(cur)
	next.Apply(p)
	if err := next.CheckTFA(); err != nil {
		return nil, err
	}
	if next.Nickname != cur.Nickname {
		if owner, taken := s.byNickname[next.Nickname]; taken && owner != id {
			return nil, &domain.ConflictError{Entity: "user", Field: "nickname", Value: next.Nickname}
		}
		delete(s.byNickname, cur.Nickname)
		s.byNickname[next.Nickname] = id
	}
	next.UpdatedAt = s.now()
	s.users[id] = next
	return cloneUser(next), nil
}

func (s *Store) FindByNickname(ctx context.Context, nickname string, with entity.Relation) (*entity.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byNickname[nickname]
	if !ok {
		return nil, &domain.NotFoundError{Entity: "user", Key: "nickname", Value: nickname}
	}
	u := cloneUser(s.users[id])

	if with.Has(entity.WithChannels) {
		u.Channels = s.channelsOf(id)
		u.Loaded |= entity.WithChannels
	}
	if with.Has(entity.WithBlockedUsers) {
		u.BlockedUsers = s.blocksOf(id)
		u.Loaded |= entity.WithBlockedUsers
	}
	return u, nil
}

func (s *Store) channelsOf(userID int64) []entity.Channel {
	out := make([]entity.Channel, 0, len(s.members[userID]))
	for chID, joined := range s.members[userID] {
		ch := *s.channels[chID]
		ch.JoinedAt = joined
		out = append(out, ch)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) blocksOf(userID int64) []entity.BlockedUser {
	out := make([]entity.BlockedUser, 0)
	for _, b := range s.blocks {
		if b.BlockingUserID != userID {
			continue
		}
		if target, ok := s.users[b.BlockedUserID]; ok {
			b.BlockedNickname = target.Nickname
		}
		out = append(out, b)
	}
	return out
}

func (s *Store) CreateChannel(ctx context.Context, name string, ownerID int64) (*entity.Channel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(name) == "" {
		return nil, domain.NewValidationError("name", "is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[ownerID]; !ok {
		return nil, &domain.NotFoundError{Entity: "user", Key: "id", Value: ownerID}
	}
	if _, ok := s.channelByName[name]; ok {
		return nil, &domain.ConflictError{Entity: "channel", Field: "name", Value: name}
	}
	s.nextChannelID++
	ch := &entity.Channel{ID: s.nextChannelID, Name: name, OwnerID: ownerID, CreatedAt: s.now()}
	s.channels[ch.ID] = ch
	s.channelByName[name] = ch.ID
	out := *ch
	return &out, nil
}

func (s *Store) AddMember(ctx context.Context, channelID, userID int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.channels[channelID]; !ok {
		return &domain.NotFoundError{Entity: "channel", Key: "id", Value: channelID}
	}
	if _, ok := s.users[userID]; !ok {
		return &domain.NotFoundError{Entity: "user", Key: "id", Value: userID}
	}
	m, ok := s.members[userID]
	if !ok {
		m = map[int64]time.Time{}
		s.members[userID] = m
	}
	if _, joined := m[channelID]; !joined {
		m[channelID] = s.now()
	}
	return nil
}

func (s *Store) BlockUser(ctx context.Context, blockingUserID, blockedUserID int64) (*entity.BlockedUser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if blockingUserID == blockedUserID {
		return nil, domain.NewValidationError("blocked_user_id", "must differ from blocking_user_id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[blockingUserID]; !ok {
		return nil, &domain.NotFoundError{Entity: "user", Key: "id", Value: blockingUserID}
	}
	target, ok := s.users[blockedUserID]
	if !ok {
		return nil, &domain.NotFoundError{Entity: "user", Key: "id", Value: blockedUserID}
	}
	for _, b := range s.blocks {
		if b.BlockingUserID == blockingUserID && b.BlockedUserID == blockedUserID {
			return nil, &domain.ConflictError{Entity: "blocked user", Field: "pair"}
		}
	}
	s.nextBlockID++
	b := entity.BlockedUser{
		ID:             s.nextBlockID,
		BlockingUserID: blockingUserID,
		BlockedUserID:  blockedUserID,
		CreatedAt:      s.now(),
	}
	s.blocks = append(s.blocks, b)
	b.BlockedNickname = target.Nickname
	return &b, nil
}

// Ping always succeeds; it lets the store stand in for a pool in health checks.
func (s *Store) Ping(ctx context.Context) error { return ctx.Err() }

func cloneUser(u *entity.User) *entity.User {
	c := *u
	c.AvatarURL = cloneString(u.AvatarURL)
	c.TFASecret = cloneString(u.TFASecret)
	c.Channels = nil
	c.BlockedUsers = nil
	c.Loaded = 0
	return &c
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

var (
	_ repository.UserRepository = (*Store)(nil)
	_ repository.RelationWriter = (*Store)(nil)
)
