package application

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/pong-user-directory/internal/domain/entity"
	repo "github.com/oksasatya/pong-user-directory/internal/domain/repository"
	"github.com/oksasatya/pong-user-directory/internal/infrastructure/search"
	"github.com/oksasatya/pong-user-directory/pkg/helpers"
)

const (
	EventUserCreated = "user.created"
	EventUserUpdated = "user.updated"

	sideEffectTimeout = 3 * time.Second
)

// Publisher sends a JSON message to the user events queue.
type Publisher interface {
	PublishJSON(ctx context.Context, body any) error
}

// Index is the search side of the directory.
type Index interface {
	IndexUser(ctx context.Context, doc search.UserDocument) error
	Search(ctx context.Context, q string, size int) ([]search.UserDocument, error)
}

// UserEvent is published after every successful write.
type UserEvent struct {
	Type       string              `json:"type"`
	User       search.UserDocument `json:"user"`
	OccurredAt time.Time           `json:"occurred_at"`
}

type Service struct {
	Repo      repo.UserRepository
	Publisher Publisher
	Index     Index
	Redis     redis.Cmdable
	Logger    *logrus.Logger

	SearchCacheTTL time.Duration
}

// NewService wires the directory use cases. publisher, index and rdb may be
// nil; writes then skip the corresponding side effect.
func NewService(repo repo.UserRepository, publisher Publisher, index Index, rdb redis.Cmdable, logger *logrus.Logger) *Service {
	if logger == nil {
		logger = helpers.NewNopLogger()
	}
	return &Service{
		Repo:           repo,
		Publisher:      publisher,
		Index:          index,
		Redis:          rdb,
		Logger:         logger,
		SearchCacheTTL: 30 * time.Second,
	}
}

func (s *Service) Register(ctx context.Context, in entity.NewUser) (*entity.User, error) {
	u, err := s.Repo.Save(ctx, in)
	if err != nil {
		return nil, err
	}
	s.Logger.WithFields(logrus.Fields{"user_id": u.ID, "nickname": u.Nickname}).Info("user registered")
	s.emit(ctx, EventUserCreated, u)
	return u, nil
}

func (s *Service) UpdateProfile(ctx context.Context, id int64, p entity.UserPatch) (*entity.User, error) {
	u, err := s.Repo.Update(ctx, id, p)
	if err != nil {
		return nil, err
	}
	if !p.IsEmpty() {
		s.emit(ctx, EventUserUpdated, u)
	}
	return u, nil
}

func (s *Service) Profile(ctx context.Context, nickname string, with entity.Relation) (*entity.User, error) {
	return s.Repo.FindByNickname(ctx, nickname, with)
}

// SearchUsers queries the search index. Results are cached in Redis for
// SearchCacheTTL when a client is configured.
func (s *Service) SearchUsers(ctx context.Context, q string, size int) ([]search.UserDocument, error) {
	q = strings.TrimSpace(q)
	if s.Index == nil || q == "" {
		return []search.UserDocument{}, nil
	}

	size = search.ClampSize(size)
	key := searchCacheKey(q, size)
	if s.Redis != nil {
		var cached []search.UserDocument
		hit, err := helpers.RedisGetJSON(ctx, s.Redis, key, &cached)
		if err != nil {
			s.Logger.WithError(err).WithField("key", key).Warn("search cache read failed")
		} else if hit {
			return cached, nil
		}
	}

	docs, err := s.Index.Search(ctx, q, size)
	if err != nil {
		return nil, err
	}
	if s.Redis != nil && s.SearchCacheTTL > 0 {
		if err := helpers.RedisSetJSON(ctx, s.Redis, key, docs, s.SearchCacheTTL); err != nil {
			s.Logger.WithError(err).WithField("key", key).Warn("search cache write failed")
		}
	}
	return docs, nil
}

// searchCacheKey expects an already clamped size.
func searchCacheKey(q string, size int) string {
	return fmt.Sprintf("users:search:%d:%s", size, strings.ToLower(q))
}

// HandleEvent applies a user event to the search index. It is the consumer
// side of the events published by Register and UpdateProfile.
func (s *Service) HandleEvent(ctx context.Context, ev UserEvent) error {
	switch ev.Type {
	case EventUserCreated, EventUserUpdated:
	default:
		return fmt.Errorf("unknown user event type %q", ev.Type)
	}
	if s.Index == nil {
		return nil
	}
	return s.Index.IndexUser(ctx, ev.User)
}

// emit publishes ev when a publisher is configured and otherwise indexes
// directly. Failures are logged; the write has already committed.
func (s *Service) emit(ctx context.Context, typ string, u *entity.User) {
	ev := UserEvent{Type: typ, User: search.DocumentFor(u), OccurredAt: time.Now().UTC()}
	c, cancel := context.WithTimeout(context.WithoutCancel(ctx), sideEffectTimeout)
	defer cancel()

	log := s.Logger.WithFields(logrus.Fields{"user_id": u.ID, "event": typ})
	switch {
	case s.Publisher != nil:
		if err := s.Publisher.PublishJSON(c, ev); err != nil {
			log.WithError(err).Warn("publish user event failed")
		}
	case s.Index != nil:
		if err := s.Index.IndexUser(c, ev.User); err != nil {
			log.WithError(err).Warn("es index failed")
		}
	}
}
