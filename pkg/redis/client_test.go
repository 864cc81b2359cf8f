package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/marketplace-backend/pkg/config"
)

type memoryCommands struct {
	values map[string]string
	err    error
}

func newMemoryCommands() *memoryCommands {
	return &memoryCommands{values: map[string]string{}}
}

func (m *memoryCommands) Ping(ctx context.Context) *redis.StatusCmd {
	cmd := redis.NewStatusCmd(ctx)
	if m.err != nil {
		cmd.SetErr(m.err)
		return cmd
	}
	cmd.SetVal("PONG")
	return cmd
}

func (m *memoryCommands) Get(ctx context.Context, key string) *redis.StringCmd {
	cmd := redis.NewStringCmd(ctx)
	switch value, ok := m.values[key]; {
	case m.err != nil:
		cmd.SetErr(m.err)
	case !ok:
		cmd.SetErr(redis.Nil)
	default:
		cmd.SetVal(value)
	}
	return cmd
}

func (m *memoryCommands) Set(ctx context.Context, key string, value any, _ time.Duration) *redis.StatusCmd {
	cmd := redis.NewStatusCmd(ctx)
	if m.err != nil {
		cmd.SetErr(m.err)
		return cmd
	}
	m.values[key] = value.(string)
	cmd.SetVal("OK")
	return cmd
}

func (m *memoryCommands) SetNX(ctx context.Context, key string, value any, _ time.Duration) *redis.BoolCmd {
	cmd := redis.NewBoolCmd(ctx)
	if m.err != nil {
		cmd.SetErr(m.err)
		return cmd
	}
	if _, taken := m.values[key]; taken {
		cmd.SetVal(false)
		return cmd
	}
	m.values[key] = value.(string)
	cmd.SetVal(true)
	return cmd
}

func (m *memoryCommands) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx)
	var removed int64
	for _, key := range keys {
		if _, ok := m.values[key]; ok {
			delete(m.values, key)
			removed++
		}
	}
	cmd.SetVal(removed)
	return cmd
}

func TestClaimIsExclusiveUntilReleased(t *testing.T) {
	ctx := context.Background()
	c := &Client{cmd: newMemoryCommands()}
	key := c.Key("stripe-webhook", "evt_1")

	won, err := c.Claim(ctx, key, "first", time.Minute)
	require.NoError(t, err)
	assert.True(t, won)

	won, err = c.Claim(ctx, key, "second", time.Minute)
	require.NoError(t, err)
	assert.False(t, won)

	value, found, err := c.Lookup(ctx, key)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "first", value)

	require.NoError(t, c.Release(ctx, key))
	_, found, err = c.Lookup(ctx, key)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestSaveOverwritesClaim(t *testing.T) {
	ctx := context.Background()
	c := &Client{cmd: newMemoryCommands()}
	key := c.Key("http", "req-1")

	won, err := c.Claim(ctx, key, "placeholder", time.Minute)
	require.NoError(t, err)
	require.True(t, won)

	require.NoError(t, c.Save(ctx, key, "final", time.Hour))
	value, found, err := c.Lookup(ctx, key)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "final", value)

	assert.ErrorIs(t, (*Client)(nil).Save(ctx, key, "x", time.Second), errNotConnected)
}

func TestLookupSurfacesTransportErrors(t *testing.T) {
	cmds := newMemoryCommands()
	cmds.err = errors.New("connection reset")
	c := &Client{cmd: cmds}

	_, found, err := c.Lookup(context.Background(), "mk:x")
	require.Error(t, err)
	assert.False(t, found)
	assert.Error(t, c.Ping(context.Background()))
}

func TestDisconnectedClient(t *testing.T) {
	ctx := context.Background()
	var c *Client

	assert.ErrorIs(t, c.Ping(ctx), errNotConnected)
	_, err := c.Claim(ctx, "k", "v", time.Second)
	assert.ErrorIs(t, err, errNotConnected)
	_, _, err = (&Client{}).Lookup(ctx, "k")
	assert.ErrorIs(t, err, errNotConnected)
	assert.NoError(t, c.Close())
}

func TestKey(t *testing.T) {
	assert.Equal(t, "mk", Key())
	assert.Equal(t, "mk:idempotency:scope:id", (&Client{}).Key("scope", "id"))
	assert.Equal(t, "mk:orders:42", Key(" orders ", "", "42"))
}

func TestOptions(t *testing.T) {
	t.Run("url wins and config fills gaps", func(t *testing.T) {
		opts, err := options(config.RedisConfig{
			URL:          "redis://:secret@cache:6380/2",
			Address:      "ignored:6379",
			PoolSize:     7,
			MinIdleConns: 3,
			DialTimeout:  2 * time.Second,
		})
		require.NoError(t, err)
		assert.Equal(t, "cache:6380", opts.Addr)
		assert.Equal(t, "secret", opts.Password)
		assert.Equal(t, 2, opts.DB)
		assert.Equal(t, 7, opts.PoolSize)
		assert.Equal(t, 3, opts.MinIdleConns)
		assert.Equal(t, 2*time.Second, opts.DialTimeout)
	})

	t.Run("address form", func(t *testing.T) {
		opts, err := options(config.RedisConfig{Address: "localhost:6379", DB: 4, ReadTimeout: time.Second})
		require.NoError(t, err)
		assert.Equal(t, "localhost:6379", opts.Addr)
		assert.Equal(t, 4, opts.DB)
		assert.Equal(t, time.Second, opts.ReadTimeout)
	})

	t.Run("nothing to dial", func(t *testing.T) {
		_, err := options(config.RedisConfig{})
		assert.Error(t, err)
	})

	t.Run("bad url", func(t *testing.T) {
		_, err := options(config.RedisConfig{URL: "http://nope"})
		assert.Error(t, err)
	})
}
