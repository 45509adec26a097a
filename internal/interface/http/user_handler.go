package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/pong-user-directory/internal/application"
	"github.com/oksasatya/pong-user-directory/internal/domain"
	"github.com/oksasatya/pong-user-directory/internal/domain/entity"
	"github.com/oksasatya/pong-user-directory/internal/infrastructure/search"
	"github.com/oksasatya/pong-user-directory/pkg/response"
	"github.com/oksasatya/pong-user-directory/pkg/validation"
)

type UserHandler struct {
	Svc    *application.Service
	Logger *logrus.Logger
}

func NewUserHandler(svc *application.Service, logger *logrus.Logger) *UserHandler {
	return &UserHandler{Svc: svc, Logger: logger}
}

// Create handles POST /users.
func (h *UserHandler) Create(c *gin.Context) {
	var req entity.NewUser
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error[any](c, http.StatusBadRequest, "invalid payload", validation.ToDetails(err))
		return
	}
	u, err := h.Svc.Register(c.Request.Context(), req)
	if err != nil {
		writeError(c, h.Logger, err)
		return
	}
	response.Success(c, http.StatusCreated, toUserResponse(u), "user created", nil)
}

// Update handles PATCH /users/:id. Keys absent from the body are left
// untouched; null clears avatar_url and tfa_secret.
func (h *UserHandler) Update(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(c, h.Logger, domain.NewValidationError("id", "must be a positive integer"))
		return
	}
	var patch entity.UserPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		response.Error[any](c, http.StatusBadRequest, "invalid payload", validation.ToDetails(err))
		return
	}
	u, err := h.Svc.UpdateProfile(c.Request.Context(), id, patch)
	if err != nil {
		writeError(c, h.Logger, err)
		return
	}
	response.Success(c, http.StatusOK, toUserResponse(u), "user updated", nil)
}

// Get handles GET /users/:nickname?include=channels,blocked_users.
func (h *UserHandler) Get(c *gin.Context) {
	var names []string
	for _, v := range c.QueryArray("include") {
		names = append(names, strings.Split(v, ",")...)
	}
	with, unknown := entity.ParseRelations(names)
	if len(unknown) > 0 {
		writeError(c, h.Logger, domain.NewValidationError("include", "unknown relation "+strings.Join(unknown, ", ")))
		return
	}
	u, err := h.Svc.Profile(c.Request.Context(), c.Param("nickname"), with)
	if err != nil {
		writeError(c, h.Logger, err)
		return
	}
	response.Success(c, http.StatusOK, toUserResponse(u), "", nil)
}

// Search handles GET /users?q=&size=.
func (h *UserHandler) Search(c *gin.Context) {
	q := strings.TrimSpace(c.Query("q"))
	if q == "" {
		writeError(c, h.Logger, domain.NewValidationError("q", "is required"))
		return
	}
	size := search.DefaultSize
	if raw := c.Query("size"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(c, h.Logger, domain.NewValidationError("size", "must be a positive integer"))
			return
		}
		size = n
	}
	docs, err := h.Svc.SearchUsers(c.Request.Context(), q, size)
	if err != nil {
		h.Logger.WithError(err).WithField("q", q).Warn("user search failed")
		response.Error[any](c, http.StatusBadGateway, "search unavailable", nil)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"users": docs}, "", gin.H{"count": len(docs)})
}
