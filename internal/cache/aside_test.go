package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type profile struct {
	ID   uint   `json:"id"`
	Name string `json:"name"`
}

func newAside(t *testing.T) (*miniredis.Miniredis, *Aside) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, NewAside(rdb)
}

func TestAsideFetch_LoadsOnceThenServesFromCache(t *testing.T) {
	mr, aside := newAside(t)
	ctx := context.Background()
	loads := 0
	load := func(dest *profile) func() error {
		return func() error {
			loads++
			*dest = profile{ID: 4, Name: "Ada"}
			return nil
		}
	}

	var first profile
	require.NoError(t, aside.Fetch(ctx, ProfileKey(4), &first, time.Minute, load(&first)))
	var second profile
	require.NoError(t, aside.Fetch(ctx, ProfileKey(4), &second, time.Minute, load(&second)))

	assert.Equal(t, 1, loads)
	assert.Equal(t, "Ada", second.Name)
	assert.True(t, mr.Exists("profile:4"))

	aside.InvalidateUser(ctx, 4)
	assert.False(t, mr.Exists("profile:4"))
}

func TestAsideFetch_LoaderErrorIsReturned(t *testing.T) {
	_, aside := newAside(t)
	boom := errors.New("boom")

	var p profile
	err := aside.Fetch(context.Background(), ProfileKey(1), &p, time.Minute, func() error { return boom })
	assert.ErrorIs(t, err, boom)
}

func TestAsideFetch_NilClientPassesThrough(t *testing.T) {
	var aside *Aside
	called := false
	var p profile
	err := aside.Fetch(context.Background(), ProfileKey(1), &p, time.Minute, func() error {
		called = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, called)
}

func TestNewClient_PingsServer(t *testing.T) {
	mr := miniredis.RunT(t)

	rdb, err := NewClient(context.Background(), mr.Addr())
	require.NoError(t, err)
	defer rdb.Close()

	mr.Close()
	_, err = NewClient(context.Background(), mr.Addr())
	assert.Error(t, err)
}
