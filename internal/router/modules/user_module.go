package modules

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	handlers "github.com/oksasatya/pong-user-directory/internal/interface/http"
	"github.com/oksasatya/pong-user-directory/internal/interface/middleware"
)

// UserModule wires the user directory routes:
// POST /users, PATCH /users/:id, GET /users/:nickname, GET /users?q=
type UserModule struct {
	Handler *handlers.UserHandler
	Redis   *redis.Client
	// PerMinute is the per-IP request budget; 0 disables limiting.
	PerMinute int
}

func NewUserModule(h *handlers.UserHandler, rdb *redis.Client, perMinute int) *UserModule {
	return &UserModule{Handler: h, Redis: rdb, PerMinute: perMinute}
}

func (m *UserModule) Register(rg *gin.RouterGroup) {
	writeBudget := m.PerMinute / 4
	if m.PerMinute > 0 && writeBudget == 0 {
		writeBudget = 1
	}
	reads := middleware.RateLimit(m.Redis, m.PerMinute, time.Minute, middleware.KeyByIP(), middleware.AllowPrivateIP())
	// Writes get a tighter bucket per route.
	writes := middleware.RateLimit(m.Redis, writeBudget, time.Minute, middleware.KeyByIPAndPath(), middleware.AllowPrivateIP())

	users := rg.Group("/users", reads)
	{
		users.POST("", writes, m.Handler.Create)
		users.GET("", m.Handler.Search)
		users.GET("/:nickname", m.Handler.Get)
		users.PATCH("/:id", writes, m.Handler.Update)
	}
}
