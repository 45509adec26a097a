package metrics

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oksasatya/pong-user-directory/internal/domain"
	"github.com/oksasatya/pong-user-directory/internal/domain/entity"
	"github.com/oksasatya/pong-user-directory/internal/domain/repository"
	"github.com/oksasatya/pong-user-directory/internal/infrastructure/memory"
	"github.com/oksasatya/pong-user-directory/pkg/opt"
)

func TestUserRepository_CountsOutcomes(t *testing.T) {
	c := NewCollectors()
	repo := NewUserRepository(memory.NewStore(), c)
	ctx := context.Background()

	u, err := repo.Save(ctx, entity.NewUser{Login: "marvin", Nickname: "mmarvin"})
	require.NoError(t, err)
	_, err = repo.Save(ctx, entity.NewUser{Login: "marvin", Nickname: "other"})
	require.ErrorIs(t, err, domain.ErrConflict)
	_, err = repo.Save(ctx, entity.NewUser{})
	require.ErrorIs(t, err, domain.ErrValidation)
	_, err = repo.Update(ctx, u.ID+1, entity.UserPatch{Nickname: opt.Some("x")})
	require.ErrorIs(t, err, domain.ErrNotFound)
	_, err = repository.FindByNicknameWithChannelsAndBlockedUsers(ctx, repo, "mmarvin")
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.Total.WithLabelValues("save", OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Total.WithLabelValues("save", OutcomeConflict)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Total.WithLabelValues("save", OutcomeValidation)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Total.WithLabelValues("update", OutcomeNotFound)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Total.WithLabelValues("find_by_nickname_with_channels_and_blocked_users", OutcomeOK)))
	assert.Equal(t, 3, testutil.CollectAndCount(c.Duration))
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, OutcomeOK, Outcome(nil))
	assert.Equal(t, OutcomeUnavailable, Outcome(&domain.StorageUnavailableError{Op: "ping", Err: errors.New("refused")}))
	assert.Equal(t, OutcomeNotFound, Outcome(fmt.Errorf("wrapped: %w", &domain.NotFoundError{Entity: "user", Key: "id", Value: 1})))
	assert.Equal(t, OutcomeError, Outcome(errors.New("syntax error")))
}

func TestCollectors_RegisterTwice(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollectors()
	require.NoError(t, c.Register(reg))
	assert.NoError(t, c.Register(reg))
}
