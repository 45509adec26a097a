package opt

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type patchBody struct {
	Nickname  Value[string]  `json:"nickname"`
	AvatarURL Value[*string] `json:"avatar_url"`
	Enabled   Value[bool]    `json:"enabled"`
}

func TestValue_ZeroIsAbsent(t *testing.T) {
	var v Value[int]
	_, ok := v.Get()
	assert.False(t, ok)
	assert.False(t, v.IsSet())
}

func TestValue_SomeHoldsZeroValue(t *testing.T) {
	v := Some(false)
	got, ok := v.Get()
	assert.True(t, ok)
	assert.False(t, got)
}

func TestValue_UnmarshalDistinguishesAbsentFromNull(t *testing.T) {
	var body patchBody
	require.NoError(t, json.Unmarshal([]byte(`{"avatar_url": null, "enabled": false}`), &body))

	assert.False(t, body.Nickname.IsSet())

	avatar, ok := body.AvatarURL.Get()
	assert.True(t, ok)
	assert.Nil(t, avatar)

	enabled, ok := body.Enabled.Get()
	assert.True(t, ok)
	assert.False(t, enabled)
}

func TestValue_UnmarshalValue(t *testing.T) {
	var body patchBody
	require.NoError(t, json.Unmarshal([]byte(`{"nickname": "mmarvin2", "avatar_url": "http://42.fr"}`), &body))

	nick, ok := body.Nickname.Get()
	require.True(t, ok)
	assert.Equal(t, "mmarvin2", nick)

	avatar, ok := body.AvatarURL.Get()
	require.True(t, ok)
	require.NotNil(t, avatar)
	assert.Equal(t, "http://42.fr", *avatar)
}

func TestValue_UnmarshalTypeMismatch(t *testing.T) {
	var body patchBody
	err := json.Unmarshal([]byte(`{"enabled": "yes"}`), &body)
	assert.Error(t, err)
}

func TestValue_UnmarshalRejectsNullForValueTypes(t *testing.T) {
	for _, payload := range []string{`{"enabled": null}`, `{"nickname": null}`} {
		var body patchBody
		err := json.Unmarshal([]byte(payload), &body)
		var ute *json.UnmarshalTypeError
		require.ErrorAs(t, err, &ute, payload)
		assert.Equal(t, "null", ute.Value)
		assert.False(t, body.Enabled.IsSet())
		assert.False(t, body.Nickname.IsSet())
	}

	var body patchBody
	err := json.Unmarshal([]byte(`{"enabled": null}`), &body)
	var ute *json.UnmarshalTypeError
	require.ErrorAs(t, err, &ute)
	assert.Equal(t, "enabled", ute.Field)
}

func TestValue_Marshal(t *testing.T) {
	b, err := json.Marshal(patchBody{Nickname: Some("zaphod")})
	require.NoError(t, err)
	assert.JSONEq(t, `{"nickname":"zaphod","avatar_url":null,"enabled":null}`, string(b))
}
