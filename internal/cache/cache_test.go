/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type geoEntry struct {
	CountryCode string
	City        string
}

func newTestCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCache(client), mr
}

func TestSetAndGet(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	err := c.Set(ctx, "geo:8.8.8.8", geoEntry{CountryCode: "US", City: "Mountain View"}, 10*time.Minute)
	require.NoError(t, err)
	assert.True(t, mr.Exists("geo:8.8.8.8"))

	var got geoEntry
	found, err := c.Get(ctx, "geo:8.8.8.8", &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "US", got.CountryCode)
	assert.Equal(t, "Mountain View", got.City)
}

func TestGet_Miss(t *testing.T) {
	c, _ := newTestCache(t)

	var got geoEntry
	found, err := c.Get(context.Background(), "geo:missing", &got)
	assert.NoError(t, err)
	assert.False(t, found)
	assert.Empty(t, got.CountryCode)
}

func TestDelete(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "geo:1.1.1.1", geoEntry{CountryCode: "AU"}, time.Minute))
	require.NoError(t, c.Delete(ctx, "geo:1.1.1.1"))

	var got geoEntry
	found, err := c.Get(ctx, "geo:1.1.1.1", &got)
	assert.NoError(t, err)
	assert.False(t, found)
}

func TestGet_RedisDown(t *testing.T) {
	c, mr := newTestCache(t)
	mr.Close()

	var got geoEntry
	found, err := c.Get(context.Background(), "geo:never-set", &got)
	assert.Error(t, err)
	assert.False(t, found)
}
