package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	goredis "github.com/redis/go-redis/v9"

	"github.com/pithecene-io/coalesce/types"
)

// DefaultPrefix namespaces redis keys when none is configured.
const DefaultPrefix = "coalesce"

// RedisConfig configures a redis-backed store.
type RedisConfig struct {
	// URL is the redis connection URL (required).
	// Format: redis://[:password@]host:port[/db]
	URL string
	// Prefix namespaces all keys (default: coalesce).
	Prefix string
}

// Redis is the persistent backend: one hash per field family (parent,
// child, sibling) per shard, with the shard-local id as the hash field.
// The allocator high-water mark is persisted alongside, so a shard can
// reopen its store and continue allocating.
//
// The shard worker is the only caller, so reads of the in-memory length
// counter need no synchronization. Backend errors are fatal to the owning
// shard and panic; the worker cannot keep running over a store it can no
// longer read.
type Redis struct {
	client  *goredis.Client
	parent  string
	child   string
	sibling string
	lenKey  string
	len     uint64
}

// NewRedis opens a redis-backed store for shard. Returns an error if the
// URL is empty or invalid, or the persisted allocator state is unreadable.
func NewRedis(cfg RedisConfig, shard uint16) (*Redis, error) {
	if cfg.URL == "" {
		return nil, errors.New("redis storage requires a URL")
	}

	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("redis storage: invalid URL: %w", err)
	}

	if cfg.Prefix == "" {
		cfg.Prefix = DefaultPrefix
	}

	s := &Redis{
		client:  goredis.NewClient(opts),
		parent:  fmt.Sprintf("%s:%d:parent", cfg.Prefix, shard),
		child:   fmt.Sprintf("%s:%d:child", cfg.Prefix, shard),
		sibling: fmt.Sprintf("%s:%d:sibling", cfg.Prefix, shard),
		lenKey:  fmt.Sprintf("%s:%d:len", cfg.Prefix, shard),
	}

	raw, err := s.client.Get(context.Background(), s.lenKey).Result()
	switch {
	case errors.Is(err, goredis.Nil):
		s.len = 0
	case err != nil:
		return nil, fmt.Errorf("redis storage: read allocator state: %w", err)
	default:
		n, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("redis storage: corrupt allocator state %q: %w", raw, err)
		}
		s.len = n
	}

	return s, nil
}

// Close releases the client connection.
func (s *Redis) Close() error {
	return s.client.Close()
}

func field(key types.Key) string {
	return strconv.FormatUint(key.LocalID(), 10)
}

func (s *Redis) set(hash string, key, value types.Key) {
	if err := s.client.HSet(context.Background(), hash, field(key), uint64(value)).Err(); err != nil {
		panic(fmt.Sprintf("storage: redis write %s[%v]: %v", hash, key, err))
	}
}

func (s *Redis) get(hash string, key types.Key) (types.Key, bool) {
	raw, err := s.client.HGet(context.Background(), hash, field(key)).Result()
	if err != nil {
		panic(fmt.Sprintf("storage: redis read %s[%v]: %v", hash, key, err))
	}
	n, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		panic(fmt.Sprintf("storage: corrupt value %q at %s[%v]: %v", raw, hash, key, err))
	}
	stored := types.Key(n)
	if stored == key {
		return 0, false
	}
	return stored, true
}

func (s *Redis) AddNode(shard uint16) types.Key {
	key := types.NewKey(shard, s.len)
	ctx := context.Background()
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, s.parent, field(key), uint64(key))
	pipe.HSet(ctx, s.child, field(key), uint64(key))
	pipe.HSet(ctx, s.sibling, field(key), uint64(key))
	pipe.Set(ctx, s.lenKey, s.len+1, 0)
	if _, err := pipe.Exec(ctx); err != nil {
		panic(fmt.Sprintf("storage: redis allocate %v: %v", key, err))
	}
	s.len++
	return key
}

func (s *Redis) SetParent(key, value types.Key) {
	s.set(s.parent, key, value)
}

func (s *Redis) SetSibling(key, value types.Key) {
	s.set(s.sibling, key, value)
}

func (s *Redis) SwapChild(key, value types.Key) types.Key {
	old, ok := s.get(s.child, key)
	if !ok {
		old = key
	}
	s.set(s.child, key, value)
	return old
}

func (s *Redis) GetParent(key types.Key) (types.Key, bool) {
	return s.get(s.parent, key)
}

func (s *Redis) GetSibling(key types.Key) (types.Key, bool) {
	return s.get(s.sibling, key)
}

func (s *Redis) GetChild(key types.Key) (types.Key, bool) {
	return s.get(s.child, key)
}

func (s *Redis) Len() uint64 {
	return s.len
}

var _ Storage = (*Redis)(nil)
