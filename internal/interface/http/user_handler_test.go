package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oksasatya/pong-user-directory/internal/application"
	"github.com/oksasatya/pong-user-directory/internal/domain"
	"github.com/oksasatya/pong-user-directory/internal/domain/entity"
	"github.com/oksasatya/pong-user-directory/internal/domain/repository"
	"github.com/oksasatya/pong-user-directory/internal/infrastructure/memory"
	"github.com/oksasatya/pong-user-directory/internal/infrastructure/search"
	"github.com/oksasatya/pong-user-directory/pkg/helpers"
)

func init() { gin.SetMode(gin.TestMode) }

type envelope struct {
	Status  int             `json:"status"`
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   json.RawMessage `json:"error"`
}

type fakeIndex struct {
	hits []search.UserDocument
	err  error
}

func (x *fakeIndex) IndexUser(context.Context, search.UserDocument) error { return nil }

func (x *fakeIndex) Search(context.Context, string, int) ([]search.UserDocument, error) {
	return x.hits, x.err
}

// stubRepo fails every call with err.
type stubRepo struct{ err error }

func (s stubRepo) Save(context.Context, entity.NewUser) (*entity.User, error) { return nil, s.err }

func (s stubRepo) Update(context.Context, int64, entity.UserPatch) (*entity.User, error) {
	return nil, s.err
}

func (s stubRepo) FindByNickname(context.Context, string, entity.Relation) (*entity.User, error) {
	return nil, s.err
}

func newEngine(repo repository.UserRepository, idx application.Index) *gin.Engine {
	svc := application.NewService(repo, nil, idx, nil, helpers.NewNopLogger())
	h := NewUserHandler(svc, helpers.NewNopLogger())
	r := gin.New()
	api := r.Group("/api")
	api.POST("/users", h.Create)
	api.GET("/users", h.Search)
	api.GET("/users/:nickname", h.Get)
	api.PATCH("/users/:id", h.Update)
	return r
}

func do(t *testing.T, r *gin.Engine, method, path, body string) (int, envelope) {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w.Code, env
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}

func TestUserHandler_CreateAndGet(t *testing.T) {
	r := newEngine(memory.NewStore(), nil)

	code, env := do(t, r, http.MethodPost, "/api/users", `{"login":"marvin","nickname":"mmarvin","avatar_url":"http://"}`)
	require.Equal(t, http.StatusCreated, code)
	created := decode[map[string]any](t, env.Data)
	assert.Equal(t, "mmarvin", created["nickname"])
	assert.Equal(t, "http://", created["avatar_url"])
	assert.NotContains(t, created, "tfa_secret")
	assert.NotContains(t, created, "channels")

	code, env = do(t, r, http.MethodGet, "/api/users/mmarvin?include=channels,blocked_users", "")
	require.Equal(t, http.StatusOK, code)
	got := decode[map[string]any](t, env.Data)
	assert.Equal(t, []any{}, got["channels"])
	assert.Equal(t, []any{}, got["blocked_users"])

	code, env = do(t, r, http.MethodGet, "/api/users/mmarvin?include=channels", "")
	require.Equal(t, http.StatusOK, code)
	got = decode[map[string]any](t, env.Data)
	assert.Contains(t, got, "channels")
	assert.NotContains(t, got, "blocked_users")
}

func TestUserHandler_CreateErrors(t *testing.T) {
	r := newEngine(memory.NewStore(), nil)

	code, env := do(t, r, http.MethodPost, "/api/users", `{"login":"marvin"}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, map[string]string{"nickname": "is required"}, decode[map[string]string](t, env.Error))

	code, _ = do(t, r, http.MethodPost, "/api/users", `{"login":`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, env = do(t, r, http.MethodPost, "/api/users", `{"login":42,"nickname":"x"}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, decode[map[string]string](t, env.Error), "login")

	code, _ = do(t, r, http.MethodPost, "/api/users", `{"login":"marvin","nickname":"mmarvin"}`)
	require.Equal(t, http.StatusCreated, code)
	code, env = do(t, r, http.MethodPost, "/api/users", `{"login":"zaphod","nickname":"mmarvin"}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, map[string]string{"nickname": "already exists"}, decode[map[string]string](t, env.Error))
}

func TestUserHandler_Update(t *testing.T) {
	store := memory.NewStore()
	r := newEngine(store, nil)
	avatar := "http://"
	u, err := store.Save(context.Background(), entity.NewUser{Login: "Zaphod", Nickname: "mmarvinho", AvatarURL: &avatar})
	require.NoError(t, err)
	path := "/api/users/" + strconv.FormatInt(u.ID, 10)

	code, env := do(t, r, http.MethodPatch, path, `{"nickname":"mmarvin2","avatar_url":"http://42.fr"}`)
	require.Equal(t, http.StatusOK, code)
	got := decode[map[string]any](t, env.Data)
	assert.Equal(t, "Zaphod", got["login"])
	assert.Equal(t, "mmarvin2", got["nickname"])
	assert.Equal(t, "http://42.fr", got["avatar_url"])

	code, env = do(t, r, http.MethodPatch, path, `{"tfa_enabled":true,"tfa_secret":"secret"}`)
	require.Equal(t, http.StatusOK, code)
	got = decode[map[string]any](t, env.Data)
	assert.Equal(t, true, got["tfa_enabled"])
	assert.Equal(t, "mmarvin2", got["nickname"])
	assert.NotContains(t, got, "tfa_secret")

	code, env = do(t, r, http.MethodPatch, path, `{"avatar_url":null}`)
	require.Equal(t, http.StatusOK, code)
	assert.Nil(t, decode[map[string]any](t, env.Data)["avatar_url"])

	code, _ = do(t, r, http.MethodPatch, path, `{"tfa_enabled":false}`)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestUserHandler_UpdateErrors(t *testing.T) {
	r := newEngine(memory.NewStore(), nil)

	code, env := do(t, r, http.MethodPatch, "/api/users/abc", `{"nickname":"x"}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, decode[map[string]string](t, env.Error), "id")

	code, _ = do(t, r, http.MethodPatch, "/api/users/42", `{"nickname":"x"}`)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = do(t, r, http.MethodPatch, "/api/users/42", `{"nickname":true}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, env = do(t, r, http.MethodPatch, "/api/users/42", `{"tfa_enabled":null}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, map[string]string{"tfa_enabled": "must be a bool"}, decode[map[string]string](t, env.Error))

	code, env = do(t, r, http.MethodPatch, "/api/users/42", `{"nickname":null}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, decode[map[string]string](t, env.Error), "nickname")
}

func TestUserHandler_GetErrors(t *testing.T) {
	r := newEngine(memory.NewStore(), nil)

	code, env := do(t, r, http.MethodGet, "/api/users/nobody", "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "user with nickname nobody not found", env.Message)

	code, env = do(t, r, http.MethodGet, "/api/users/nobody?include=friends", "")
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, decode[map[string]string](t, env.Error), "include")
}

func TestUserHandler_StorageFailures(t *testing.T) {
	unavailable := newEngine(stubRepo{err: &domain.StorageUnavailableError{Op: "find user by nickname", Err: errors.New("connection refused")}}, nil)
	code, env := do(t, unavailable, http.MethodGet, "/api/users/mmarvin", "")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.False(t, env.Success)

	broken := newEngine(stubRepo{err: errors.New("find user by nickname: syntax error")}, nil)
	code, env = do(t, broken, http.MethodGet, "/api/users/mmarvin", "")
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, "internal server error", env.Message)
}

func TestUserHandler_Search(t *testing.T) {
	idx := &fakeIndex{hits: []search.UserDocument{{ID: 1, Login: "marvin", Nickname: "mmarvin"}}}
	r := newEngine(memory.NewStore(), idx)

	code, env := do(t, r, http.MethodGet, "/api/users?q=marvin&size=5", "")
	require.Equal(t, http.StatusOK, code)
	data := decode[map[string][]search.UserDocument](t, env.Data)
	require.Len(t, data["users"], 1)
	assert.Equal(t, "mmarvin", data["users"][0].Nickname)

	code, _ = do(t, r, http.MethodGet, "/api/users", "")
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = do(t, r, http.MethodGet, "/api/users?q=marvin&size=-1", "")
	assert.Equal(t, http.StatusBadRequest, code)

	idx.err = errors.New("es down")
	code, _ = do(t, r, http.MethodGet, "/api/users?q=marvin", "")
	assert.Equal(t, http.StatusBadGateway, code)
}

func TestHealthHandler(t *testing.T) {
	r := gin.New()
	r.GET("/ok", NewHealthHandler(memory.NewStore()).Health)
	r.GET("/down", NewHealthHandler(pingerFunc(func(context.Context) error { return errors.New("refused") })).Health)

	code, env := do(t, r, http.MethodGet, "/ok", "")
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, env.Success)

	code, _ = do(t, r, http.MethodGet, "/down", "")
	assert.Equal(t, http.StatusServiceUnavailable, code)
}

type pingerFunc func(context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }
