package redis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasPattern(t *testing.T) {
	assert.True(t, hasPattern("ch:*"))
	assert.True(t, hasPattern("ch:bond_tick?"))
	assert.False(t, hasPattern("ch:market_snapshot"))
}

func TestKeyPrefix(t *testing.T) {
	c := &Client{prefix: "neonvault:"}
	assert.Equal(t, "neonvault:markets", c.Key("markets"))
	assert.Equal(t, "markets", (&Client{}).Key("markets"))
}

func TestSlidingWindowScriptEmbedded(t *testing.T) {
	assert.Contains(t, slidingWindowLua, "ZREMRANGEBYSCORE")
	assert.Contains(t, slidingWindowLua, "return {1, count + 1}")
}

func TestPayloadOf(t *testing.T) {
	b, ok := payloadOf(map[string]any{"payload": `{"event":"stake"}`})
	assert.True(t, ok)
	assert.Equal(t, `{"event":"stake"}`, string(b))

	b, ok = payloadOf(map[string]any{"payload": []byte("x")})
	assert.True(t, ok)
	assert.Equal(t, "x", string(b))

	_, ok = payloadOf(map[string]any{"other": "x"})
	assert.False(t, ok)
}

func TestClientOptions(t *testing.T) {
	opts, err := ClientConfig{Addr: "localhost:6379", DB: 2, PoolSize: 7, TLSEnabled: true}.options()
	require.NoError(t, err)
	assert.Equal(t, "localhost:6379", opts.Addr)
	assert.Equal(t, 2, opts.DB)
	assert.Equal(t, 7, opts.PoolSize)
	assert.NotNil(t, opts.TLSConfig)
	assert.Equal(t, "neonvault", opts.ClientName)

	opts, err = ClientConfig{Addr: "redis://:pw@cache.internal:6380/3", DB: 9}.options()
	require.NoError(t, err)
	assert.Equal(t, "cache.internal:6380", opts.Addr)
	assert.Equal(t, "pw", opts.Password)
	assert.Equal(t, 3, opts.DB)

	_, err = ClientConfig{Addr: "redis://host:notaport/x"}.options()
	assert.Error(t, err)
}
