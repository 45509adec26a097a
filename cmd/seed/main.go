package main

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/pong-user-directory/config"
	"github.com/oksasatya/pong-user-directory/internal/domain"
	"github.com/oksasatya/pong-user-directory/internal/domain/entity"
	"github.com/oksasatya/pong-user-directory/internal/domain/repository"
	pginfra "github.com/oksasatya/pong-user-directory/internal/infrastructure/postgres"
	"github.com/oksasatya/pong-user-directory/pkg/helpers"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	logger := helpers.NewLogger(cfg.AppName+"-seed", cfg.Env)
	ctx := context.Background()

	if err := pginfra.Migrate(cfg.PostgresDSN(), logger); err != nil {
		log.Fatalf("migration failed: %v", err)
	}
	pool, err := pginfra.NewPool(ctx, cfg.PostgresDSN(), 4, 1, cfg.DBMaxConnLife)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer pool.Close()

	var opts []pginfra.Option
	if cfg.TFASecretKey != "" {
		box, err := helpers.NewSecretBox(cfg.TFASecretKey)
		if err != nil {
			log.Fatalf("invalid TFA_SECRET_KEY: %v", err)
		}
		opts = append(opts, pginfra.WithSecretSealer(box))
	}
	users := pginfra.NewUserRepository(pool, opts...)
	relations := pginfra.NewRelationRepository(pool)

	avatar := "http://"
	marvin := ensureUser(ctx, users, entity.NewUser{Login: "marvin", Nickname: "mmarvin", AvatarURL: &avatar})
	zaphod := ensureUser(ctx, users, entity.NewUser{Login: "zaphod", Nickname: "zbeeblebrox"})
	trillian := ensureUser(ctx, users, entity.NewUser{Login: "trillian", Nickname: "tmcmillan"})

	general, err := relations.CreateChannel(ctx, "general", zaphod.ID)
	switch {
	case errors.Is(err, domain.ErrConflict):
		helpers.LogInfo(logger, "channel already exists; skipping memberships", logrus.Fields{"channel": "general"})
	case err != nil:
		log.Fatalf("failed to seed channel: %v", err)
	default:
		for _, u := range []*entity.User{marvin, zaphod, trillian} {
			if err := relations.AddMember(ctx, general.ID, u.ID); err != nil {
				log.Fatalf("failed to add %s to general: %v", u.Nickname, err)
			}
		}
	}

	if _, err := relations.BlockUser(ctx, marvin.ID, zaphod.ID); err != nil && !errors.Is(err, domain.ErrConflict) {
		log.Fatalf("failed to seed block: %v", err)
	}

	got, err := repository.FindByNicknameWithChannelsAndBlockedUsers(ctx, users, marvin.Nickname)
	if err != nil {
		log.Fatalf("failed to read back seed: %v", err)
	}
	fmt.Printf("seeded user: id=%d nickname=%s channels=%d blocked=%d\n", got.ID, got.Nickname, len(got.Channels), len(got.BlockedUsers))
}

// ensureUser saves u or returns the existing record when its nickname is taken.
func ensureUser(ctx context.Context, users repository.UserRepository, u entity.NewUser) *entity.User {
	saved, err := users.Save(ctx, u)
	if err == nil {
		return saved
	}
	if !errors.Is(err, domain.ErrConflict) {
		log.Fatalf("failed to seed %s: %v", u.Login, err)
	}
	existing, err := repository.FindByNickname(ctx, users, u.Nickname)
	if err != nil {
		log.Fatalf("failed to load %s: %v", u.Nickname, err)
	}
	return existing
}
