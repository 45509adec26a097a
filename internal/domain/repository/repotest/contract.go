// Package repotest holds the behavioural contract every
// repository.UserRepository implementation must satisfy.
package repotest

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oksasatya/pong-user-directory/internal/domain"
	"github.com/oksasatya/pong-user-directory/internal/domain/entity"
	"github.com/oksasatya/pong-user-directory/internal/domain/repository"
	"github.com/oksasatya/pong-user-directory/pkg/opt"
)

// Harness is a fresh, empty store for one test.
type Harness struct {
	Users     repository.UserRepository
	Relations repository.RelationWriter
}

// Run executes the contract. newHarness is called once per subtest and must
// return an empty store.
func Run(t *testing.T, newHarness func(t *testing.T) Harness) {
	t.Helper()
	tests := []struct {
		name string
		fn   func(t *testing.T, h Harness)
	}{
		{"Save_PopulatesFields", testSavePopulatesFields},
		{"Save_DuplicateNickname", testSaveDuplicateNickname},
		{"Save_DuplicateLogin", testSaveDuplicateLogin},
		{"Save_MissingFields", testSaveMissingFields},
		{"Save_TFAMismatch", testSaveTFAMismatch},
		{"Save_IDsAreNotReused", testSaveIDsAreNotReused},
		{"Update_MergesPatch", testUpdateMergesPatch},
		{"Update_EnableTFA", testUpdateEnableTFA},
		{"Update_DisableTFA", testUpdateDisableTFA},
		{"Update_ClearAvatar", testUpdateClearAvatar},
		{"Update_EmptyPatch", testUpdateEmptyPatch},
		{"Update_UnknownID", testUpdateUnknownID},
		{"Update_NicknameConflict", testUpdateNicknameConflict},
		{"Update_InvalidPatch", testUpdateInvalidPatch},
		{"Update_Idempotent", testUpdateIdempotent},
		{"FindByNickname_Hit", testFindByNicknameHit},
		{"FindByNickname_Miss", testFindByNicknameMiss},
		{"FindByNickname_BareLeavesRelationsUnloaded", testFindBareLeavesRelationsUnloaded},
		{"FindByNicknameWithChannels_Empty", testFindWithChannelsEmpty},
		{"FindByNicknameWithChannels_Memberships", testFindWithChannelsMemberships},
		{"FindByNicknameWithChannelsAndBlockedUsers", testFindWithChannelsAndBlockedUsers},
		{"FindByNicknameWithChannelsAndBlockedUsers_Miss", testFindWithRelationsMiss},
		{"Relations_Errors", testRelationsErrors},
		{"Concurrent_SaveSameNickname", testConcurrentSaveSameNickname},
		{"Concurrent_UpdateWholePatch", testConcurrentUpdateWholePatch},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tc.fn(t, newHarness(t))
		})
	}
}

func strPtr(s string) *string { return &s }

func mustSave(t *testing.T, h Harness, login, nickname string) *entity.User {
	t.Helper()
	u, err := h.Users.Save(context.Background(), entity.NewUser{Login: login, Nickname: nickname, AvatarURL: strPtr("http://")})
	require.NoError(t, err)
	return u
}

func testSavePopulatesFields(t *testing.T, h Harness) {
	u, err := h.Users.Save(context.Background(), entity.NewUser{
		Login:     "marvin",
		Nickname:  "mmarvin",
		AvatarURL: strPtr("http://"),
	})
	require.NoError(t, err)

	assert.NotZero(t, u.ID)
	assert.Equal(t, "marvin", u.Login)
	assert.Equal(t, "mmarvin", u.Nickname)
	require.NotNil(t, u.AvatarURL)
	assert.Equal(t, "http://", *u.AvatarURL)
	assert.False(t, u.TFAEnabled)
	assert.Nil(t, u.TFASecret)
	assert.False(t, u.CreatedAt.IsZero())
}

func testSaveDuplicateNickname(t *testing.T, h Harness) {
	ctx := context.Background()
	first := mustSave(t, h, "marvin", "mmarvin")

	_, err := h.Users.Save(ctx, entity.NewUser{Login: "zaphod", Nickname: "mmarvin"})
	require.ErrorIs(t, err, domain.ErrConflict)
	var cerr *domain.ConflictError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "nickname", cerr.Field)

	got, err := repository.FindByNickname(ctx, h.Users, "mmarvin")
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)
	assert.Equal(t, "marvin", got.Login)
}

func testSaveDuplicateLogin(t *testing.T, h Harness) {
	mustSave(t, h, "marvin", "mmarvin")

	_, err := h.Users.Save(context.Background(), entity.NewUser{Login: "marvin", Nickname: "other"})
	var cerr *domain.ConflictError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "login", cerr.Field)

	_, err = repository.FindByNickname(context.Background(), h.Users, "other")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func testSaveMissingFields(t *testing.T, h Harness) {
	ctx := context.Background()
	for _, in := range []entity.NewUser{
		{Nickname: "mmarvin"},
		{Login: "marvin"},
		{Login: "marvin", Nickname: ""},
		{Login: " ", Nickname: "mmarvin"},
	} {
		_, err := h.Users.Save(ctx, in)
		assert.ErrorIs(t, err, domain.ErrValidation, "input %+v", in)
	}
	_, err := repository.FindByNickname(ctx, h.Users, "mmarvin")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func testSaveTFAMismatch(t *testing.T, h Harness) {
	_, err := h.Users.Save(context.Background(), entity.NewUser{Login: "marvin", Nickname: "mmarvin", TFASecret: strPtr("secret")})
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "tfa_secret")
}

func testSaveIDsAreNotReused(t *testing.T, h Harness) {
	a := mustSave(t, h, "marvin", "mmarvin")
	_, err := h.Users.Save(context.Background(), entity.NewUser{Login: "marvin", Nickname: "dup"})
	require.ErrorIs(t, err, domain.ErrConflict)
	b := mustSave(t, h, "zaphod", "zbeeblebrox")
	assert.NotEqual(t, a.ID, b.ID)
}

func testUpdateMergesPatch(t *testing.T, h Harness) {
	u := mustSave(t, h, "Zaphod", "mmarvinho")

	updated, err := h.Users.Update(context.Background(), u.ID, entity.UserPatch{
		Nickname:  opt.Some("mmarvin2"),
		AvatarURL: opt.Some(strPtr("http://42.fr")),
	})
	require.NoError(t, err)

	assert.Equal(t, u.ID, updated.ID)
	assert.Equal(t, "Zaphod", updated.Login)
	assert.Equal(t, "mmarvin2", updated.Nickname)
	require.NotNil(t, updated.AvatarURL)
	assert.Equal(t, "http://42.fr", *updated.AvatarURL)
	assert.False(t, updated.TFAEnabled)
	assert.Nil(t, updated.TFASecret)

	got, err := repository.FindByNickname(context.Background(), h.Users, "mmarvin2")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	_, err = repository.FindByNickname(context.Background(), h.Users, "mmarvinho")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func testUpdateEnableTFA(t *testing.T, h Harness) {
	u := mustSave(t, h, "Zaphod", "mmarvinho")

	updated, err := h.Users.Update(context.Background(), u.ID, entity.UserPatch{}.EnableTFA("secret"))
	require.NoError(t, err)

	assert.Equal(t, "Zaphod", updated.Login)
	assert.Equal(t, "mmarvinho", updated.Nickname)
	require.NotNil(t, updated.AvatarURL)
	assert.Equal(t, "http://", *updated.AvatarURL)
	assert.True(t, updated.TFAEnabled)
	require.NotNil(t, updated.TFASecret)
	assert.Equal(t, "secret", *updated.TFASecret)

	got, err := repository.FindByNickname(context.Background(), h.Users, "mmarvinho")
	require.NoError(t, err)
	require.NotNil(t, got.TFASecret)
	assert.Equal(t, "secret", *got.TFASecret)
}

func testUpdateDisableTFA(t *testing.T, h Harness) {
	ctx := context.Background()
	u := mustSave(t, h, "Zaphod", "mmarvinho")
	_, err := h.Users.Update(ctx, u.ID, entity.UserPatch{}.EnableTFA("secret"))
	require.NoError(t, err)

	// Turning TFA off while leaving the secret behind breaks the pairing.
	_, err = h.Users.Update(ctx, u.ID, entity.UserPatch{TFAEnabled: opt.Some(false)})
	require.ErrorIs(t, err, domain.ErrValidation)

	got, err := repository.FindByNickname(ctx, h.Users, "mmarvinho")
	require.NoError(t, err)
	assert.True(t, got.TFAEnabled, "rejected patch must not be partially applied")

	updated, err := h.Users.Update(ctx, u.ID, entity.UserPatch{}.DisableTFA())
	require.NoError(t, err)
	assert.False(t, updated.TFAEnabled)
	assert.Nil(t, updated.TFASecret)
}

func testUpdateClearAvatar(t *testing.T, h Harness) {
	u := mustSave(t, h, "marvin", "mmarvin")
	updated, err := h.Users.Update(context.Background(), u.ID, entity.UserPatch{AvatarURL: opt.Some[*string](nil)})
	require.NoError(t, err)
	assert.Nil(t, updated.AvatarURL)
	assert.Equal(t, "mmarvin", updated.Nickname)
}

func testUpdateEmptyPatch(t *testing.T, h Harness) {
	u := mustSave(t, h, "marvin", "mmarvin")
	updated, err := h.Users.Update(context.Background(), u.ID, entity.UserPatch{})
	require.NoError(t, err)
	assert.Equal(t, u.ID, updated.ID)
	assert.Equal(t, u.Login, updated.Login)
	assert.Equal(t, u.Nickname, updated.Nickname)
	assert.Equal(t, u.AvatarURL, updated.AvatarURL)

	_, err = h.Users.Update(context.Background(), u.ID+1000, entity.UserPatch{})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func testUpdateUnknownID(t *testing.T, h Harness) {
	_, err := h.Users.Update(context.Background(), 987654, entity.UserPatch{Nickname: opt.Some("ghost")})
	var nf *domain.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "user", nf.Entity)
	assert.Equal(t, "id", nf.Key)
}

func testUpdateNicknameConflict(t *testing.T, h Harness) {
	ctx := context.Background()
	mustSave(t, h, "marvin", "mmarvin")
	z := mustSave(t, h, "zaphod", "zbeeblebrox")

	_, err := h.Users.Update(ctx, z.ID, entity.UserPatch{Nickname: opt.Some("mmarvin"), AvatarURL: opt.Some(strPtr("http://new"))})
	var cerr *domain.ConflictError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "nickname", cerr.Field)

	got, err := repository.FindByNickname(ctx, h.Users, "zbeeblebrox")
	require.NoError(t, err)
	require.NotNil(t, got.AvatarURL)
	assert.Equal(t, "http://", *got.AvatarURL, "conflicting patch must not be partially applied")
}

func testUpdateInvalidPatch(t *testing.T, h Harness) {
	u := mustSave(t, h, "marvin", "mmarvin")
	_, err := h.Users.Update(context.Background(), u.ID, entity.UserPatch{Nickname: opt.Some("")})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func testUpdateIdempotent(t *testing.T, h Harness) {
	ctx := context.Background()
	u := mustSave(t, h, "Zaphod", "mmarvinho")
	patch := entity.UserPatch{Nickname: opt.Some("mmarvin2"), AvatarURL: opt.Some(strPtr("http://42.fr"))}

	once, err := h.Users.Update(ctx, u.ID, patch)
	require.NoError(t, err)
	twice, err := h.Users.Update(ctx, u.ID, patch)
	require.NoError(t, err)

	assert.Equal(t, once.ID, twice.ID)
	assert.Equal(t, once.Login, twice.Login)
	assert.Equal(t, once.Nickname, twice.Nickname)
	assert.Equal(t, once.AvatarURL, twice.AvatarURL)
	assert.Equal(t, once.TFAEnabled, twice.TFAEnabled)
	assert.Equal(t, once.TFASecret, twice.TFASecret)
}

func testFindByNicknameHit(t *testing.T, h Harness) {
	saved := mustSave(t, h, "marvin", "mmarvin")
	mustSave(t, h, "zaphod", "zbeeblebrox")

	u, err := repository.FindByNickname(context.Background(), h.Users, "mmarvin")
	require.NoError(t, err)
	assert.Equal(t, saved.ID, u.ID)
	assert.Equal(t, "marvin", u.Login)
	assert.Equal(t, "mmarvin", u.Nickname)
	require.NotNil(t, u.AvatarURL)
	assert.Equal(t, "http://", *u.AvatarURL)
}

func testFindByNicknameMiss(t *testing.T, h Harness) {
	u, err := repository.FindByNickname(context.Background(), h.Users, "nobody")
	assert.Nil(t, u)
	var nf *domain.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "nickname", nf.Key)
	assert.Equal(t, "nobody", nf.Value)
}

func testFindBareLeavesRelationsUnloaded(t *testing.T, h Harness) {
	mustSave(t, h, "marvin", "mmarvin")
	u, err := repository.FindByNickname(context.Background(), h.Users, "mmarvin")
	require.NoError(t, err)
	assert.Nil(t, u.Channels)
	assert.Nil(t, u.BlockedUsers)
	assert.Equal(t, entity.Relation(0), u.Loaded)
}

func testFindWithChannelsEmpty(t *testing.T, h Harness) {
	mustSave(t, h, "marvin", "mmarvin")

	u, err := repository.FindByNicknameWithChannels(context.Background(), h.Users, "mmarvin")
	require.NoError(t, err)
	require.NotNil(t, u.Channels)
	assert.Empty(t, u.Channels)
	assert.True(t, u.Loaded.Has(entity.WithChannels))
	assert.Nil(t, u.BlockedUsers)
	assert.False(t, u.Loaded.Has(entity.WithBlockedUsers))
}

func testFindWithChannelsMemberships(t *testing.T, h Harness) {
	ctx := context.Background()
	m := mustSave(t, h, "marvin", "mmarvin")
	z := mustSave(t, h, "zaphod", "zbeeblebrox")

	general, err := h.Relations.CreateChannel(ctx, "general", z.ID)
	require.NoError(t, err)
	pong, err := h.Relations.CreateChannel(ctx, "pong", z.ID)
	require.NoError(t, err)
	_, err = h.Relations.CreateChannel(ctx, "random", z.ID)
	require.NoError(t, err)

	require.NoError(t, h.Relations.AddMember(ctx, general.ID, m.ID))
	require.NoError(t, h.Relations.AddMember(ctx, pong.ID, m.ID))
	require.NoError(t, h.Relations.AddMember(ctx, pong.ID, m.ID), "re-joining is a no-op")
	require.NoError(t, h.Relations.AddMember(ctx, general.ID, z.ID))

	u, err := repository.FindByNicknameWithChannels(ctx, h.Users, "mmarvin")
	require.NoError(t, err)
	require.Len(t, u.Channels, 2)
	assert.Equal(t, general.ID, u.Channels[0].ID)
	assert.Equal(t, "general", u.Channels[0].Name)
	assert.Equal(t, z.ID, u.Channels[0].OwnerID)
	assert.False(t, u.Channels[0].JoinedAt.IsZero())
	assert.Equal(t, pong.ID, u.Channels[1].ID)
}

func testFindWithChannelsAndBlockedUsers(t *testing.T, h Harness) {
	ctx := context.Background()
	m := mustSave(t, h, "marvin", "mmarvin")
	z := mustSave(t, h, "zaphod", "zbeeblebrox")
	tr := mustSave(t, h, "trillian", "tmcmillan")

	u, err := repository.FindByNicknameWithChannelsAndBlockedUsers(ctx, h.Users, "mmarvin")
	require.NoError(t, err)
	require.NotNil(t, u.Channels)
	require.NotNil(t, u.BlockedUsers)
	assert.Empty(t, u.Channels)
	assert.Empty(t, u.BlockedUsers)

	ch, err := h.Relations.CreateChannel(ctx, "general", m.ID)
	require.NoError(t, err)
	require.NoError(t, h.Relations.AddMember(ctx, ch.ID, m.ID))
	b1, err := h.Relations.BlockUser(ctx, m.ID, z.ID)
	require.NoError(t, err)
	_, err = h.Relations.BlockUser(ctx, m.ID, tr.ID)
	require.NoError(t, err)
	// Blocks owned by someone else are not part of marvin's list.
	_, err = h.Relations.BlockUser(ctx, z.ID, m.ID)
	require.NoError(t, err)

	u, err = repository.FindByNicknameWithChannelsAndBlockedUsers(ctx, h.Users, "mmarvin")
	require.NoError(t, err)
	assert.Equal(t, entity.WithChannels|entity.WithBlockedUsers, u.Loaded)
	require.Len(t, u.Channels, 1)
	assert.Equal(t, "general", u.Channels[0].Name)
	require.Len(t, u.BlockedUsers, 2)
	assert.Equal(t, b1.ID, u.BlockedUsers[0].ID)
	assert.Equal(t, m.ID, u.BlockedUsers[0].BlockingUserID)
	assert.Equal(t, z.ID, u.BlockedUsers[0].BlockedUserID)
	assert.Equal(t, "zbeeblebrox", u.BlockedUsers[0].BlockedNickname)
	assert.Equal(t, "tmcmillan", u.BlockedUsers[1].BlockedNickname)

	onlyBlocked, err := h.Users.FindByNickname(ctx, "mmarvin", entity.WithBlockedUsers)
	require.NoError(t, err)
	assert.Nil(t, onlyBlocked.Channels)
	assert.Len(t, onlyBlocked.BlockedUsers, 2)
}

func testFindWithRelationsMiss(t *testing.T, h Harness) {
	_, err := repository.FindByNicknameWithChannelsAndBlockedUsers(context.Background(), h.Users, "nobody")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = repository.FindByNicknameWithChannels(context.Background(), h.Users, "nobody")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func testRelationsErrors(t *testing.T, h Harness) {
	ctx := context.Background()
	m := mustSave(t, h, "marvin", "mmarvin")
	z := mustSave(t, h, "zaphod", "zbeeblebrox")

	_, err := h.Relations.CreateChannel(ctx, "general", 987654)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	ch, err := h.Relations.CreateChannel(ctx, "general", m.ID)
	require.NoError(t, err)
	_, err = h.Relations.CreateChannel(ctx, "general", z.ID)
	assert.ErrorIs(t, err, domain.ErrConflict)

	assert.ErrorIs(t, h.Relations.AddMember(ctx, ch.ID, 987654), domain.ErrNotFound)
	assert.ErrorIs(t, h.Relations.AddMember(ctx, 987654, m.ID), domain.ErrNotFound)

	_, err = h.Relations.BlockUser(ctx, m.ID, m.ID)
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = h.Relations.BlockUser(ctx, m.ID, 987654)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = h.Relations.BlockUser(ctx, m.ID, z.ID)
	require.NoError(t, err)
	_, err = h.Relations.BlockUser(ctx, m.ID, z.ID)
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func testConcurrentSaveSameNickname(t *testing.T, h Harness) {
	const workers = 8
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, workers)
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = h.Users.Save(ctx, entity.NewUser{Login: fmt.Sprintf("login-%d", i), Nickname: "race"})
		}(i)
	}
	close(start)
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, domain.ErrConflict)
	}
	assert.Equal(t, 1, succeeded)
}

func testConcurrentUpdateWholePatch(t *testing.T, h Harness) {
	ctx := context.Background()
	u := mustSave(t, h, "marvin", "mmarvin")

	patches := []entity.UserPatch{
		{Nickname: opt.Some("left"), AvatarURL: opt.Some(strPtr("http://left"))},
		{Nickname: opt.Some("right"), AvatarURL: opt.Some(strPtr("http://right"))},
	}
	for round := 0; round < 10; round++ {
		var wg sync.WaitGroup
		errs := make([]error, len(patches))
		for i, p := range patches {
			wg.Add(1)
			go func(i int, p entity.UserPatch) {
				defer wg.Done()
				_, errs[i] = h.Users.Update(ctx, u.ID, p)
			}(i, p)
		}
		wg.Wait()
		for _, err := range errs {
			require.NoError(t, err)
		}

		var got *entity.User
		for _, nick := range []string{"left", "right"} {
			if found, err := repository.FindByNickname(ctx, h.Users, nick); err == nil {
				got = found
			}
		}
		require.NotNil(t, got)
		require.NotNil(t, got.AvatarURL)
		assert.Equal(t, "http://"+got.Nickname, *got.AvatarURL, "fields from different patches interleaved")
	}
}
