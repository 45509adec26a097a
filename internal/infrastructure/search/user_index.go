// Package search keeps an Elasticsearch index of public user profiles.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/oksasatya/pong-user-directory/internal/domain/entity"
)

const (
	DefaultSize = 10
	MaxSize     = 50

	requestTimeout = 3 * time.Second
)

// UserDocument is the indexed projection of a user. TFA fields are never
// indexed.
type UserDocument struct {
	ID        int64     `json:"id"`
	Login     string    `json:"login"`
	Nickname  string    `json:"nickname"`
	AvatarURL *string   `json:"avatar_url"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func DocumentFor(u *entity.User) UserDocument {
	return UserDocument{
		ID:        u.ID,
		Login:     u.Login,
		Nickname:  u.Nickname,
		AvatarURL: u.AvatarURL,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

type UserIndex struct {
	es    *elasticsearch.Client
	index string
}

func NewUserIndex(es *elasticsearch.Client, index string) *UserIndex {
	return &UserIndex{es: es, index: index}
}

// IndexUser upserts doc under its user id.
func (x *UserIndex) IndexUser(ctx context.Context, doc UserDocument) error {
	b, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	req := esapi.IndexRequest{
		Index:      x.index,
		DocumentID: strconv.FormatInt(doc.ID, 10),
		Body:       bytes.NewReader(b),
		Refresh:    "false",
	}
	c, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	res, err := req.Do(c, x.es)
	if err != nil {
		return fmt.Errorf("es index: %w", err)
	}
	defer func() { _ = res.Body.Close() }()
	if res.IsError() {
		return responseError("es index", res)
	}
	return nil
}

// ClampSize maps a requested page size into [1, MaxSize]; non-positive
// sizes become DefaultSize.
func ClampSize(size int) int {
	if size <= 0 {
		return DefaultSize
	}
	if size > MaxSize {
		return MaxSize
	}
	return size
}

// Search runs a multi_match over nickname and login with ClampSize(size) hits.
func (x *UserIndex) Search(ctx context.Context, q string, size int) ([]UserDocument, error) {
	size = ClampSize(size)
	query := map[string]any{
		"query": map[string]any{
			"multi_match": map[string]any{
				"query":  q,
				"fields": []string{"nickname^2", "login"},
			},
		},
		"size": size,
	}
	b, err := json.Marshal(query)
	if err != nil {
		return nil, err
	}

	c, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	res, err := x.es.Search(
		x.es.Search.WithContext(c),
		x.es.Search.WithIndex(x.index),
		x.es.Search.WithBody(bytes.NewReader(b)),
	)
	if err != nil {
		return nil, fmt.Errorf("es search: %w", err)
	}
	defer func() { _ = res.Body.Close() }()
	if res.IsError() {
		return nil, responseError("es search", res)
	}

	var parsed struct {
		Hits struct {
			Hits []struct {
				Source UserDocument `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("es search: decode: %w", err)
	}

	out := make([]UserDocument, 0, len(parsed.Hits.Hits))
	for _, h := range parsed.Hits.Hits {
		out = append(out, h.Source)
	}
	return out, nil
}

func responseError(op string, res *esapi.Response) error {
	body, _ := io.ReadAll(io.LimitReader(res.Body, 512))
	return fmt.Errorf("%s: %s: %s", op, res.Status(), bytes.TrimSpace(body))
}
