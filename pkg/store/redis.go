package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/NicolasHaas/gohall/pkg/model"
)

const (
	redisKeyPrefix   = "gohall:user:"
	redisOpTimeout   = 5 * time.Second
	fieldPassword    = "password_hash"
	fieldOnlineTime  = "online_time"
	fieldCreatedAt   = "created_at"
	redisScanBatches = 100
)

// RedisStore keeps one hash per user under gohall:user:<username>.
type RedisStore struct {
	client *redis.Client
}

// NewRedis connects to the Redis server named by a redis:// URL.
func NewRedis(url string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("store: parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("store: ping redis: %w", err)
	}
	return &RedisStore{client: client}, nil
}

// Close closes the Redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func userKey(username string) string {
	return redisKeyPrefix + username
}

// CreateUser registers a new user. HSETNX on the password field makes the
// name claim atomic.
func (s *RedisStore) CreateUser(username, password string) error {
	hash, err := hashNewUser(username, password)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	key := userKey(username)
	created, err := s.client.HSetNX(ctx, key, fieldPassword, hash).Result()
	if err != nil {
		return fmt.Errorf("store: create user: %w", err)
	}
	if !created {
		return ErrUserExists
	}
	if err := s.client.HSet(ctx, key, fieldOnlineTime, 0, fieldCreatedAt, formatDBTime(time.Now())).Err(); err != nil {
		return fmt.Errorf("store: create user: %w", err)
	}
	return nil
}

// Authenticate checks a username/password pair.
func (s *RedisStore) Authenticate(username, password string) error {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	hash, err := s.client.HGet(ctx, userKey(username), fieldPassword).Result()
	if errors.Is(err, redis.Nil) {
		return ErrUserNotFound
	}
	if err != nil {
		return fmt.Errorf("store: authenticate: %w", err)
	}
	return checkPassword(password, hash)
}

// AddOnlineTime adds seconds to a user's cumulative online time.
func (s *RedisStore) AddOnlineTime(username string, seconds int64) error {
	if seconds < 0 {
		return fmt.Errorf("store: add online time: negative duration %d", seconds)
	}
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	key := userKey(username)
	n, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("store: add online time: %w", err)
	}
	if n == 0 {
		return ErrUserNotFound
	}
	if err := s.client.HIncrBy(ctx, key, fieldOnlineTime, seconds).Err(); err != nil {
		return fmt.Errorf("store: add online time: %w", err)
	}
	return nil
}

// OnlineTime returns the cumulative online seconds of a user.
func (s *RedisStore) OnlineTime(username string) (int64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	seconds, err := s.client.HGet(ctx, userKey(username), fieldOnlineTime).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, ErrUserNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("store: online time: %w", err)
	}
	return seconds, nil
}

// ListUsers scans all user hashes and returns them ordered by username.
func (s *RedisStore) ListUsers() ([]model.User, error) {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	var users []model.User
	iter := s.client.Scan(ctx, 0, redisKeyPrefix+"*", redisScanBatches).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		fields, err := s.client.HGetAll(ctx, key).Result()
		if err != nil {
			return nil, fmt.Errorf("store: list users: %w", err)
		}
		u, err := userFromHash(strings.TrimPrefix(key, redisKeyPrefix), fields)
		if err != nil {
			return nil, fmt.Errorf("store: list users: %w", err)
		}
		users = append(users, u)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("store: list users: %w", err)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	return users, nil
}

func userFromHash(username string, fields map[string]string) (model.User, error) {
	u := model.User{Username: username, PasswordHash: fields[fieldPassword]}
	if v := fields[fieldOnlineTime]; v != "" {
		if _, err := fmt.Sscan(v, &u.OnlineTime); err != nil {
			return model.User{}, fmt.Errorf("online_time %q: %w", v, err)
		}
	}
	if v := fields[fieldCreatedAt]; v != "" {
		t, err := parseDBTime(v)
		if err != nil {
			return model.User{}, err
		}
		u.CreatedAt = t
	}
	return u, nil
}
