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
	"time"

	"github.com/go-redis/cache/v9"
	"github.com/redis/go-redis/v9"
)

// ErrCacheMiss is returned by Get when the key is not cached.
var ErrCacheMiss = cache.ErrCacheMiss

// Cache interface provides the basic operations for a cache system.
type Cache interface {
	// Set stores a value under key. ttl bounds the Redis copy; the local copy
	// follows the TTL the cache was built with.
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error

	// Get decodes the cached value for key into data, or returns ErrCacheMiss.
	Get(ctx context.Context, key string, data interface{}) error

	// Delete removes key from every layer.
	Delete(ctx context.Context, key string) error
}

// MemoCache implements Cache with an in-process TinyLFU layer in front of
// an optional Redis layer shared between agent processes.
type MemoCache struct {
	cache *cache.Cache
}

// NewCache builds a memo cache holding up to size local entries for
// localTTL. A nil client yields a local-only cache.
func NewCache(client redis.UniversalClient, size int, localTTL time.Duration) Cache {
	opts := &cache.Options{
		LocalCache: cache.NewTinyLFU(size, localTTL),
	}
	if client != nil {
		opts.Redis = client
	}
	return &MemoCache{cache: cache.New(opts)}
}

func (m *MemoCache) Set(ctx context.Context, key string, data interface{}, ttl time.Duration) error {
	return m.cache.Set(&cache.Item{
		Ctx:   ctx,
		Key:   key,
		Value: data,
		TTL:   ttl,
	})
}

func (m *MemoCache) Get(ctx context.Context, key string, data interface{}) error {
	return m.cache.Get(ctx, key, data)
}

func (m *MemoCache) Delete(ctx context.Context, key string) error {
	err := m.cache.Delete(ctx, key)
	if err == ErrCacheMiss {
		return nil
	}
	return err
}
