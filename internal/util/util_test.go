package util

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExpandEnvUniversal(t *testing.T) {
	t.Setenv("CHAIN_HOST", "api.test")
	t.Setenv("CHAIN_TOKEN", "tok-1")

	assert.Equal(t, "https://api.test/v1", ExpandEnvUniversal("https://$CHAIN_HOST/v1"))
	assert.Equal(t, "https://api.test/v1", ExpandEnvUniversal("https://${CHAIN_HOST}/v1"))
	assert.Equal(t, "Bearer tok-1", ExpandEnvUniversal("Bearer %CHAIN_TOKEN%"))
	assert.Equal(t, "", ExpandEnvUniversal("$CHAIN_UNDEFINED_VAR"), "undefined expands to empty")
	assert.Equal(t, "", ExpandEnvUniversal("%CHAIN_UNDEFINED_VAR%"))
	assert.Equal(t, "no variables here", ExpandEnvUniversal("no variables here"))
}

func TestSnippet(t *testing.T) {
	assert.Equal(t, "short", Snippet([]byte("short")))

	long := strings.Repeat("x", 300)
	got := Snippet([]byte(long))
	assert.True(t, strings.HasSuffix(got, "..."))
	assert.Len(t, got, 203)

	multibyte := strings.Repeat("é", 250)
	got = Snippet([]byte(multibyte))
	assert.True(t, strings.HasSuffix(got, "..."))
	assert.Equal(t, 200, len([]rune(strings.TrimSuffix(got, "..."))))
}

func TestLooksLikeJSON(t *testing.T) {
	assert.True(t, LooksLikeJSON(`{"a":1}`))
	assert.True(t, LooksLikeJSON("  [1,2,3]  "))
	assert.False(t, LooksLikeJSON("plain text"))
	assert.False(t, LooksLikeJSON("{unterminated"))
	assert.False(t, LooksLikeJSON(""))
}
