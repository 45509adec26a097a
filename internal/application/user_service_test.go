package application

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oksasatya/pong-user-directory/internal/domain"
	"github.com/oksasatya/pong-user-directory/internal/domain/entity"
	"github.com/oksasatya/pong-user-directory/internal/infrastructure/memory"
	"github.com/oksasatya/pong-user-directory/internal/infrastructure/search"
	"github.com/oksasatya/pong-user-directory/pkg/opt"
)

type fakePublisher struct {
	mu     sync.Mutex
	events []UserEvent
	err    error
}

func (p *fakePublisher) PublishJSON(_ context.Context, body any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, body.(UserEvent))
	return nil
}

type fakeIndex struct {
	indexed []search.UserDocument
	hits    []search.UserDocument
	queries []string
	sizes   []int
	err     error
}

func (x *fakeIndex) IndexUser(_ context.Context, doc search.UserDocument) error {
	if x.err != nil {
		return x.err
	}
	x.indexed = append(x.indexed, doc)
	return nil
}

func (x *fakeIndex) Search(_ context.Context, q string, size int) ([]search.UserDocument, error) {
	x.queries = append(x.queries, q)
	x.sizes = append(x.sizes, size)
	return x.hits, x.err
}

func strPtr(s string) *string { return &s }

func TestService_RegisterPublishesEvent(t *testing.T) {
	pub := &fakePublisher{}
	idx := &fakeIndex{}
	svc := NewService(memory.NewStore(), pub, idx, nil, nil)

	u, err := svc.Register(context.Background(), entity.NewUser{Login: "marvin", Nickname: "mmarvin", AvatarURL: strPtr("http://")})
	require.NoError(t, err)

	require.Len(t, pub.events, 1)
	assert.Equal(t, EventUserCreated, pub.events[0].Type)
	assert.Equal(t, u.ID, pub.events[0].User.ID)
	assert.Empty(t, idx.indexed, "publisher takes precedence over direct indexing")
}

func TestService_RegisterIndexesWithoutPublisher(t *testing.T) {
	idx := &fakeIndex{}
	svc := NewService(memory.NewStore(), nil, idx, nil, nil)

	_, err := svc.Register(context.Background(), entity.NewUser{Login: "marvin", Nickname: "mmarvin"})
	require.NoError(t, err)
	require.Len(t, idx.indexed, 1)
	assert.Equal(t, "mmarvin", idx.indexed[0].Nickname)
}

func TestService_SideEffectFailureDoesNotFailWrite(t *testing.T) {
	pub := &fakePublisher{err: errors.New("channel closed")}
	svc := NewService(memory.NewStore(), pub, nil, nil, nil)

	u, err := svc.Register(context.Background(), entity.NewUser{Login: "marvin", Nickname: "mmarvin"})
	require.NoError(t, err)
	assert.NotZero(t, u.ID)
}

func TestService_RegisterErrorsPassThrough(t *testing.T) {
	pub := &fakePublisher{}
	svc := NewService(memory.NewStore(), pub, nil, nil, nil)
	ctx := context.Background()

	_, err := svc.Register(ctx, entity.NewUser{Login: "marvin"})
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)

	_, err = svc.Register(ctx, entity.NewUser{Login: "marvin", Nickname: "mmarvin"})
	require.NoError(t, err)
	_, err = svc.Register(ctx, entity.NewUser{Login: "zaphod", Nickname: "mmarvin"})
	assert.ErrorIs(t, err, domain.ErrConflict)
	assert.Len(t, pub.events, 1)
}

func TestService_UpdateProfile(t *testing.T) {
	pub := &fakePublisher{}
	svc := NewService(memory.NewStore(), pub, nil, nil, nil)
	ctx := context.Background()

	u, err := svc.Register(ctx, entity.NewUser{Login: "Zaphod", Nickname: "mmarvinho", AvatarURL: strPtr("http://")})
	require.NoError(t, err)

	updated, err := svc.UpdateProfile(ctx, u.ID, entity.UserPatch{Nickname: opt.Some("mmarvin2"), AvatarURL: opt.Some(strPtr("http://42.fr"))})
	require.NoError(t, err)
	assert.Equal(t, "mmarvin2", updated.Nickname)
	assert.Equal(t, "Zaphod", updated.Login)

	_, err = svc.UpdateProfile(ctx, u.ID, entity.UserPatch{})
	require.NoError(t, err)

	require.Len(t, pub.events, 2, "empty patch emits nothing")
	assert.Equal(t, EventUserUpdated, pub.events[1].Type)
	assert.Equal(t, "mmarvin2", pub.events[1].User.Nickname)

	_, err = svc.UpdateProfile(ctx, 999, entity.UserPatch{Nickname: opt.Some("ghost")})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestService_Profile(t *testing.T) {
	store := memory.NewStore()
	svc := NewService(store, nil, nil, nil, nil)
	ctx := context.Background()

	m, err := svc.Register(ctx, entity.NewUser{Login: "marvin", Nickname: "mmarvin"})
	require.NoError(t, err)
	ch, err := store.CreateChannel(ctx, "general", m.ID)
	require.NoError(t, err)
	require.NoError(t, store.AddMember(ctx, ch.ID, m.ID))

	u, err := svc.Profile(ctx, "mmarvin", entity.WithChannels)
	require.NoError(t, err)
	require.Len(t, u.Channels, 1)
	assert.Nil(t, u.BlockedUsers)

	_, err = svc.Profile(ctx, "nobody", 0)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestService_SearchUsers(t *testing.T) {
	idx := &fakeIndex{hits: []search.UserDocument{{ID: 1, Nickname: "mmarvin"}}}
	svc := NewService(memory.NewStore(), nil, idx, nil, nil)

	docs, err := svc.SearchUsers(context.Background(), "  marvin ", 5)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, []string{"marvin"}, idx.queries)

	docs, err = svc.SearchUsers(context.Background(), "   ", 5)
	require.NoError(t, err)
	assert.Empty(t, docs)
	assert.Len(t, idx.queries, 1)

	idx.err = errors.New("es down")
	_, err = svc.SearchUsers(context.Background(), "marvin", 5)
	assert.Error(t, err)
}

func TestService_SearchUsersClampsSize(t *testing.T) {
	idx := &fakeIndex{}
	svc := NewService(memory.NewStore(), nil, idx, nil, nil)

	for _, size := range []int{500, 50, 0} {
		_, err := svc.SearchUsers(context.Background(), "marvin", size)
		require.NoError(t, err)
	}
	assert.Equal(t, []int{search.MaxSize, search.MaxSize, search.DefaultSize}, idx.sizes)
}

func TestSearchCacheKey(t *testing.T) {
	assert.Equal(t, searchCacheKey("Marvin", search.ClampSize(500)), searchCacheKey("marvin", search.ClampSize(50)))
	assert.Equal(t, "users:search:10:marvin", searchCacheKey("marvin", search.ClampSize(-3)))
	assert.NotEqual(t, searchCacheKey("marvin", 5), searchCacheKey("marvin", 6))
}

func TestService_SearchUsersWithoutIndex(t *testing.T) {
	svc := NewService(memory.NewStore(), nil, nil, nil, nil)
	docs, err := svc.SearchUsers(context.Background(), "marvin", 5)
	require.NoError(t, err)
	assert.NotNil(t, docs)
	assert.Empty(t, docs)
}

func TestService_HandleEvent(t *testing.T) {
	idx := &fakeIndex{}
	svc := NewService(nil, nil, idx, nil, nil)
	ctx := context.Background()

	require.NoError(t, svc.HandleEvent(ctx, UserEvent{Type: EventUserUpdated, User: search.UserDocument{ID: 7, Nickname: "zbeeblebrox"}}))
	require.Len(t, idx.indexed, 1)
	assert.Equal(t, int64(7), idx.indexed[0].ID)

	assert.Error(t, svc.HandleEvent(ctx, UserEvent{Type: "user.deleted"}))
}
