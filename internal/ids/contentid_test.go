package ids

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashDeterministicAndContentAddressed(t *testing.T) {
	a := Hash([]byte("hello"))
	b := Hash([]byte("hello"))
	c := Hash([]byte("hello!"))
	require.Equal(t, a, b)
	require.NotEqual(t, a, c)
}

func TestStringParseRoundTrip(t *testing.T) {
	id := Hash([]byte("round trip"))
	parsed, err := Parse(id.String())
	require.NoError(t, err)
	require.Equal(t, id, parsed)
}

func TestParseRejectsBadInput(t *testing.T) {
	_, err := Parse("not-hex")
	require.Error(t, err)

	_, err = Parse("ab")
	require.Error(t, err)
}

func TestJSONRoundTrip(t *testing.T) {
	type wrapper struct {
		ID ContentId `json:"id"`
	}
	w := wrapper{ID: Hash([]byte("wrapped"))}
	raw, err := json.Marshal(w)
	require.NoError(t, err)

	var out wrapper
	require.NoError(t, json.Unmarshal(raw, &out))
	require.Equal(t, w.ID, out.ID)
}

func TestIsZero(t *testing.T) {
	var zero ContentId
	require.True(t, zero.IsZero())
	require.False(t, Hash([]byte("x")).IsZero())
}
