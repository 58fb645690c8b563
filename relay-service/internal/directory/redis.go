package directory

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/weiawesome/wes-io-live/peer-relay/relay-service/internal/domain"
)

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Address   string        `mapstructure:"address"`
	Password  string        `mapstructure:"password"`
	DB        int           `mapstructure:"db"`
	KeyPrefix string        `mapstructure:"key_prefix"`
	Retention time.Duration `mapstructure:"-"` // records unseen this long are pruned
}

// Redis key patterns:
// {prefix}:user:{id}            HASH   - id, username, display_name, last_seen (unix ms)
// {prefix}:users:last_seen      ZSET   - member id, score last_seen (unix ms)

// RedisDirectory stores presence in Redis so several relay instances can
// share one view of who was active recently.
type RedisDirectory struct {
	client    *redis.Client
	prefix    string
	retention time.Duration
	now       func() time.Time
}

// NewRedisDirectory connects to Redis and verifies the connection.
func NewRedisDirectory(cfg RedisConfig, opts ...Option) (*RedisDirectory, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return newRedisDirectory(client, cfg, opts...), nil
}

func newRedisDirectory(client *redis.Client, cfg RedisConfig, opts ...Option) *RedisDirectory {
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "relay"
	}
	retention := cfg.Retention
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	o := buildOptions(opts)
	return &RedisDirectory{
		client:    client,
		prefix:    prefix,
		retention: retention,
		now:       o.now,
	}
}

func (d *RedisDirectory) userKey(id string) string {
	return fmt.Sprintf("%s:user:%s", d.prefix, id)
}

func (d *RedisDirectory) lastSeenKey() string {
	return d.prefix + ":users:last_seen"
}

func (d *RedisDirectory) Upsert(ctx context.Context, id, displayName string) (*domain.UserRecord, error) {
	if id == "" {
		return nil, ErrInvalidUser
	}

	now := d.now()
	rec := &domain.UserRecord{
		ID:          id,
		Username:    domain.UsernameFrom(displayName),
		DisplayName: displayName,
		LastSeenAt:  now,
	}
	score := float64(now.UnixMilli())
	cutoff := strconv.FormatInt(now.Add(-d.retention).UnixMilli(), 10)

	pipe := d.client.TxPipeline()
	pipe.HSet(ctx, d.userKey(id), map[string]interface{}{
		"id":           rec.ID,
		"username":     rec.Username,
		"display_name": rec.DisplayName,
		"last_seen":    strconv.FormatInt(now.UnixMilli(), 10),
	})
	pipe.Expire(ctx, d.userKey(id), d.retention)
	pipe.ZAdd(ctx, d.lastSeenKey(), redis.Z{Score: score, Member: id})
	pipe.ZRemRangeByScore(ctx, d.lastSeenKey(), "-inf", "("+cutoff)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to upsert user %s: %w", id, err)
	}
	return rec, nil
}

func (d *RedisDirectory) Get(ctx context.Context, id string) (*domain.UserRecord, error) {
	fields, err := d.client.HGetAll(ctx, d.userKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get user %s: %w", id, err)
	}
	rec, ok := recordFromHash(fields)
	if !ok {
		return nil, ErrUserNotFound
	}
	return rec, nil
}

// ActiveSince returns matching records, most recently seen first.
func (d *RedisDirectory) ActiveSince(ctx context.Context, window time.Duration) ([]*domain.UserRecord, error) {
	min := strconv.FormatInt(d.now().Add(-window).UnixMilli(), 10)

	ids, err := d.client.ZRevRangeByScore(ctx, d.lastSeenKey(), &redis.ZRangeBy{
		Min: min,
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to query active users: %w", err)
	}
	if len(ids) == 0 {
		return []*domain.UserRecord{}, nil
	}

	pipe := d.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, d.userKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to load active users: %w", err)
	}

	out := make([]*domain.UserRecord, 0, len(ids))
	for _, cmd := range cmds {
		// A hash can expire before its zset entry is pruned.
		if rec, ok := recordFromHash(cmd.Val()); ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

// Prune removes index entries last seen before the given time. The user
// hashes expire on their own.
func (d *RedisDirectory) Prune(ctx context.Context, before time.Time) (int64, error) {
	max := "(" + strconv.FormatInt(before.UnixMilli(), 10)
	return d.client.ZRemRangeByScore(ctx, d.lastSeenKey(), "-inf", max).Result()
}

func (d *RedisDirectory) Close() error {
	return d.client.Close()
}

func recordFromHash(fields map[string]string) (*domain.UserRecord, bool) {
	id := fields["id"]
	if id == "" {
		return nil, false
	}
	rec := &domain.UserRecord{
		ID:          id,
		Username:    fields["username"],
		DisplayName: fields["display_name"],
	}
	if ms, err := strconv.ParseInt(fields["last_seen"], 10, 64); err == nil {
		rec.LastSeenAt = time.UnixMilli(ms)
	}
	return rec, true
}
