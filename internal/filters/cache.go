package filters

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"

	"github.com/flyxxxxx/prototype-sub001/internal/advisor"
	"github.com/flyxxxxx/prototype-sub001/internal/index"
)

// Backend stores encoded operation results.
type Backend interface {
	// Get returns the value stored under key and whether it was found.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value under key. A zero ttl never expires.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// MemoryBackend is an in-process Backend holding at most size entries, the
// least recently used evicted first. Entries expire after the TTL the backend
// was created with; the ttl passed to Set is ignored.
//
// Thread-safety: safe for concurrent use.
type MemoryBackend struct {
	lru *expirable.LRU[string, []byte]
}

// NewMemoryBackend creates an empty in-process backend. A zero ttl never
// expires entries.
func NewMemoryBackend(size int, ttl time.Duration) *MemoryBackend {
	return &MemoryBackend{lru: expirable.NewLRU[string, []byte](size, nil, ttl)}
}

func (m *MemoryBackend) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := m.lru.Get(key)
	return v, ok, nil
}

func (m *MemoryBackend) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.lru.Add(key, value)
	return nil
}

// Len returns the number of entries held, expired ones included until purged.
func (m *MemoryBackend) Len() int {
	return m.lru.Len()
}

// RedisBackend stores results in Redis.
type RedisBackend struct {
	client *redis.Client
}

// NewRedisBackend wraps an existing client.
func NewRedisBackend(client *redis.Client) *RedisBackend {
	return &RedisBackend{client: client}
}

func (r *RedisBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := r.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return val, true, nil
}

func (r *RedisBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

const defaultCacheSize = 1024

type cacheOptions struct {
	// TTL bounds the lifetime of an entry; zero keeps entries forever.
	TTL time.Duration `mapstructure:"ttl"`

	// Prefix namespaces the keys. Defaults to "prototype:cache:".
	Prefix string `mapstructure:"prefix"`

	// Backend is "memory" (default) or "redis".
	Backend string `mapstructure:"backend"`

	// Size bounds the entries of the memory backend. Defaults to 1024.
	Size int `mapstructure:"size"`
}

// buildCache memoizes successful results keyed by operation and arguments.
//
// Only operations with a concrete result type are cached, since entries are
// JSON-decoded back into that type. Backend failures are logged and the
// invocation proceeds uncached.
func buildCache(name string, options map[string]any, deps Deps) (matcher, error) {
	opts := cacheOptions{Prefix: "prototype:cache:", Backend: "memory", Size: defaultCacheSize}
	if err := decode(options, &opts); err != nil {
		return nil, err
	}
	if opts.Size < 1 {
		return nil, fmt.Errorf("cache size must be positive, got %d", opts.Size)
	}

	var backend Backend
	switch opts.Backend {
	case "memory":
		backend = NewMemoryBackend(opts.Size, opts.TTL)
	case "redis":
		if deps.Redis == nil {
			return nil, fmt.Errorf("backend redis requires a redis client")
		}
		backend = NewRedisBackend(deps.Redis)
	default:
		return nil, fmt.Errorf("unknown cache backend %q", opts.Backend)
	}
	return cacheMatcher(name, backend, opts, deps), nil
}

func cacheMatcher(name string, backend Backend, opts cacheOptions, deps Deps) matcher {
	logger := deps.logger()
	return func(op *index.OperationDescriptor) (advisor.Filter, bool) {
		if op.Result == nil || op.Result.Kind() == reflect.Interface {
			return nil, false
		}
		return advisor.FilterFunc(func(ctx context.Context, inv *advisor.Invocation, next advisor.Next) (any, error) {
			key, err := cacheKey(opts.Prefix, inv)
			if err != nil {
				logger.Debug("uncacheable arguments", "advisor", name, "operation", inv.Key(), "error", err)
				return next(ctx)
			}

			data, ok, err := backend.Get(ctx, key)
			if err != nil {
				logger.Warn("cache read failed", "advisor", name, "key", key, "error", err)
			}
			if ok {
				ptr := reflect.New(op.Result)
				if err := json.Unmarshal(data, ptr.Interface()); err == nil {
					return ptr.Elem().Interface(), nil
				}
			}

			v, err := next(ctx)
			if err != nil {
				return v, err
			}
			if data, merr := json.Marshal(v); merr == nil {
				if err := backend.Set(ctx, key, data, opts.TTL); err != nil {
					logger.Warn("cache write failed", "advisor", name, "key", key, "error", err)
				}
			}
			return v, nil
		}), true
	}
}

// cacheKey is prefix + "Class.Method:" + the SHA-256 of the JSON arguments.
func cacheKey(prefix string, inv *advisor.Invocation) (string, error) {
	args, err := json.Marshal(inv.Args)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(args)
	return prefix + inv.Key() + ":" + hex.EncodeToString(sum[:]), nil
}
