// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package cache

import (
	"fmt"
	"log/slog"
	"net/url"
	"time"
)

// Backend names a cache implementation.
type Backend string

// Cache backends.
const (
	BackendMemory Backend = "memory"
	BackendRedis  Backend = "redis"
)

// Config selects and configures a cache backend.
type Config struct {
	// RedisURL selects the Redis backend when set.
	RedisURL string

	// Prefix is the Redis key prefix.
	Prefix string

	DefaultTTL time.Duration

	// MaxSize bounds the number of memory cache entries (0 = unlimited).
	MaxSize int

	CleanupInterval time.Duration

	// FallbackToMemory makes New return a memory cache when Redis cannot be
	// reached instead of failing.
	FallbackToMemory bool
}

// Result is a created cache and how it came to be.
type Result struct {
	Cache      Cache
	Backend    Backend
	IsFallback bool
}

// New creates the cache described by cfg.
func New(cfg Config) (*Result, error) {
	if cfg.RedisURL == "" {
		return &Result{Cache: newMemory(cfg), Backend: BackendMemory}, nil
	}

	rc, err := NewRedisCacheFromURL(cfg.RedisURL, cfg.Prefix, cfg.DefaultTTL)
	if err == nil {
		slog.Info("using redis cache", "url", SanitizeRedisURL(cfg.RedisURL), "prefix", cfg.Prefix)
		return &Result{Cache: rc, Backend: BackendRedis}, nil
	}
	if !cfg.FallbackToMemory {
		return nil, fmt.Errorf("connecting to redis at %s: %w", SanitizeRedisURL(cfg.RedisURL), err)
	}

	slog.Warn("redis unavailable, falling back to memory cache",
		"url", SanitizeRedisURL(cfg.RedisURL), "error", err)
	return &Result{Cache: newMemory(cfg), Backend: BackendMemory, IsFallback: true}, nil
}

func newMemory(cfg Config) *MemoryCache {
	return NewMemoryCache(MemoryCacheOptions{
		DefaultTTL:      cfg.DefaultTTL,
		MaxSize:         cfg.MaxSize,
		CleanupInterval: cfg.CleanupInterval,
	})
}

// SanitizeRedisURL masks the password of a Redis URL for logging.
func SanitizeRedisURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "[invalid URL]"
	}
	if u.User == nil {
		return u.String()
	}
	if _, hasPassword := u.User.Password(); hasPassword {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}
