package cache

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	clientOnce sync.Once
	client     *redis.Client
	clientErr  error
)

// Client returns a singleton Redis connection used for embedding caching.
//
// REDIS_URL takes precedence when set (redis:// or rediss:// form);
// otherwise the connection is assembled from REDIS_ADDR (default
// localhost:6379), REDIS_PASSWORD and REDIS_DB. The connection is probed
// once with a short ping so callers can treat a missing Redis as a
// disabled cache rather than a hard failure.
func Client() (*redis.Client, error) {
	clientOnce.Do(func() {
		opts, err := optionsFromEnv()
		if err != nil {
			clientErr = err
			return
		}

		candidate := redis.NewClient(opts)

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		if err := candidate.Ping(ctx).Err(); err != nil {
			clientErr = fmt.Errorf("cache: ping redis %s failed: %w", opts.Addr, err)
			_ = candidate.Close()
			return
		}

		client = candidate
	})

	return client, clientErr
}

func optionsFromEnv() (*redis.Options, error) {
	if rawURL := strings.TrimSpace(os.Getenv("REDIS_URL")); rawURL != "" {
		opts, err := redis.ParseURL(rawURL)
		if err != nil {
			return nil, fmt.Errorf("cache: invalid REDIS_URL: %w", err)
		}
		return opts, nil
	}

	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" {
		addr = "localhost:6379"
	}
	db := 0
	if rawDB := strings.TrimSpace(os.Getenv("REDIS_DB")); rawDB != "" {
		parsed, err := strconv.Atoi(rawDB)
		if err != nil {
			return nil, fmt.Errorf("cache: invalid REDIS_DB %q: %w", rawDB, err)
		}
		db = parsed
	}

	return &redis.Options{
		Addr:     addr,
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       db,
	}, nil
}

// Enabled reports whether a usable Redis connection is available.
func Enabled() bool {
	c, err := Client()
	return err == nil && c != nil
}

// Close releases the shared connection. Mainly useful in tests.
func Close() error {
	if client == nil {
		return nil
	}
	return client.Close()
}
