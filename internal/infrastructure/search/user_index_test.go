package search

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oksasatya/pong-user-directory/internal/domain/entity"
	"github.com/oksasatya/pong-user-directory/pkg/helpers"
)

type recorded struct {
	method string
	path   string
	body   map[string]any
}

func newTestIndex(t *testing.T, status int, reply string) (*UserIndex, *[]recorded) {
	t.Helper()
	var calls []recorded
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		rec := recorded{method: r.Method, path: r.URL.Path}
		_ = json.Unmarshal(raw, &rec.body)
		calls = append(calls, rec)

		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, reply)
	}))
	t.Cleanup(srv.Close)

	es, err := helpers.NewESClient([]string{srv.URL}, "", "")
	require.NoError(t, err)
	return NewUserIndex(es, "users"), &calls
}

func TestDocumentFor_OmitsTFA(t *testing.T) {
	secret := "secret"
	doc := DocumentFor(&entity.User{ID: 3, Login: "marvin", Nickname: "mmarvin", TFAEnabled: true, TFASecret: &secret})
	b, err := json.Marshal(doc)
	require.NoError(t, err)
	assert.NotContains(t, string(b), "tfa")
	assert.NotContains(t, string(b), "secret")
}

func TestUserIndex_IndexUser(t *testing.T) {
	idx, calls := newTestIndex(t, http.StatusCreated, `{"result":"created"}`)
	avatar := "http://42.fr"
	err := idx.IndexUser(t.Context(), UserDocument{ID: 42, Login: "marvin", Nickname: "mmarvin", AvatarURL: &avatar, CreatedAt: time.Now()})
	require.NoError(t, err)

	require.Len(t, *calls, 1)
	c := (*calls)[0]
	assert.Equal(t, http.MethodPut, c.method)
	assert.Equal(t, "/users/_doc/42", c.path)
	assert.Equal(t, "mmarvin", c.body["nickname"])
	assert.Equal(t, "http://42.fr", c.body["avatar_url"])
}

func TestUserIndex_IndexUserErrorStatus(t *testing.T) {
	idx, _ := newTestIndex(t, http.StatusBadRequest, `{"error":"mapper_parsing_exception"}`)
	err := idx.IndexUser(t.Context(), UserDocument{ID: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mapper_parsing_exception")
}

func TestUserIndex_Search(t *testing.T) {
	reply := `{"hits":{"hits":[
		{"_id":"1","_source":{"id":1,"login":"marvin","nickname":"mmarvin"}},
		{"_id":"2","_source":{"id":2,"login":"zaphod","nickname":"mmarvin2"}}]}}`
	idx, calls := newTestIndex(t, http.StatusOK, reply)

	docs, err := idx.Search(t.Context(), "mmarvin", 500)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, int64(1), docs[0].ID)
	assert.Equal(t, "mmarvin2", docs[1].Nickname)

	require.Len(t, *calls, 1)
	assert.Equal(t, "/users/_search", (*calls)[0].path)
	assert.Equal(t, float64(MaxSize), (*calls)[0].body["size"])
	mm := (*calls)[0].body["query"].(map[string]any)["multi_match"].(map[string]any)
	assert.Equal(t, "mmarvin", mm["query"])
}

func TestUserIndex_SearchDefaultsSize(t *testing.T) {
	idx, calls := newTestIndex(t, http.StatusOK, `{"hits":{"hits":[]}}`)
	docs, err := idx.Search(t.Context(), "nobody", 0)
	require.NoError(t, err)
	assert.NotNil(t, docs)
	assert.Empty(t, docs)
	assert.Equal(t, float64(DefaultSize), (*calls)[0].body["size"])
}

func TestClampSize(t *testing.T) {
	assert.Equal(t, DefaultSize, ClampSize(0))
	assert.Equal(t, DefaultSize, ClampSize(-1))
	assert.Equal(t, 1, ClampSize(1))
	assert.Equal(t, MaxSize, ClampSize(MaxSize))
	assert.Equal(t, MaxSize, ClampSize(MaxSize+1))
}
