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

package redis_db

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis wraps the client shared by the memo cache, the sync lock and the
// webhook queue.
type Redis struct {
	dns    string
	client redis.UniversalClient
}

// ParseRedisURL turns a configured Redis address into client options. Bare
// host:port values are used as-is; anything else goes through redis.ParseURL.
func ParseRedisURL(rawURL string, skipTLSVerify bool) (*redis.Options, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return nil, errors.New("redis address cannot be empty")
	}

	if strings.Count(rawURL, ":") == 1 && !strings.Contains(rawURL, "@") && !strings.Contains(rawURL, "//") {
		return &redis.Options{Addr: rawURL}, nil
	}

	if !strings.Contains(rawURL, "://") {
		rawURL = "redis://" + rawURL
	}

	// redis://password@host has no user separator; ParseURL would read it
	// as a username.
	if strings.HasPrefix(rawURL, "redis://") && strings.Contains(rawURL, "@") {
		parts := strings.SplitN(strings.TrimPrefix(rawURL, "redis://"), "@", 2)
		if !strings.Contains(parts[0], ":") {
			rawURL = fmt.Sprintf("redis://:%s@%s", parts[0], parts[1])
		}
	}

	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, err
	}

	if opts.TLSConfig != nil && skipTLSVerify {
		opts.TLSConfig = &tls.Config{
			MinVersion:         tls.VersionTLS12,
			InsecureSkipVerify: true,
		}
	}
	return opts, nil
}

// NewRedisClient connects to dns and verifies the connection with a ping.
func NewRedisClient(dns string, skipTLSVerify bool) (*Redis, error) {
	opts, err := ParseRedisURL(dns, skipTLSVerify)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	if _, err = client.Ping(ctx).Result(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return &Redis{dns: dns, client: client}, nil
}

// Client returns the Redis universal client.
func (r *Redis) Client() redis.UniversalClient {
	return r.client
}

// Options returns the parsed connection options, used to point asynq at
// the same server.
func (r *Redis) Options() *redis.Options {
	if c, ok := r.client.(*redis.Client); ok {
		return c.Options()
	}
	return nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}
