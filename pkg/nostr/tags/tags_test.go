package tags

import (
	"testing"

	"github.com/Hubmakerlabs/nopu/pkg/nostr/tag"
	"github.com/stretchr/testify/assert"
)

func TestLookups(t *testing.T) {
	ts := T{
		tag.New("t", "nostr"),
		tag.New("e", "abcd", "wss://relay"),
		tag.New("t", "golang"),
		tag.New("p"),
	}
	assert.Equal(t, tag.New("t", "nostr"), ts.GetFirst("t"))
	assert.Len(t, ts.GetAll("t"), 2)
	assert.Len(t, ts.GetAll("e", "ab"), 1)
	assert.Nil(t, ts.GetFirst("x"))
	assert.True(t, ts.ContainsAny("t", []string{"golang"}))
	assert.False(t, ts.ContainsAny("p", []string{""}))
	assert.False(t, ts.ContainsAny("e", []string{"ab"}))
}

func TestMarshal(t *testing.T) {
	assert.Equal(t, "[]", T(nil).String())
	ts := T{tag.New("t", "a\"b"), tag.New("p", "x")}
	assert.Equal(t, `[["t","a\"b"],["p","x"]]`, ts.String())
	c := ts.Clone()
	c[0][1] = "changed"
	assert.Equal(t, "a\"b", ts[0][1])
}
