package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dkeye/Inkroom/internal/config"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const redisPrefix = "inkroom:"

// Redis stores each drawing as one JSON value plus a per-user id set.
type Redis struct {
	client *redis.Client
	now    func() time.Time
}

func NewRedis(ctx context.Context, cfg config.Redis) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	log.Info().Str("module", "store.redis").Str("addr", cfg.Addr).Int("db", cfg.DB).Msg("connected")
	return NewRedisWithClient(client), nil
}

func NewRedisWithClient(client *redis.Client) *Redis {
	return &Redis{client: client, now: time.Now}
}

func drawingKey(id string) string { return redisPrefix + "drawing:" + id }

func userKey(userID string) string { return redisPrefix + "user:" + userID + ":drawings" }

func (s *Redis) Save(ctx context.Context, d Drawing) (string, error) {
	if err := prepare(&d, s.now()); err != nil {
		return "", err
	}
	if d.ID == "" {
		d.ID = uuid.NewString()
	} else {
		n, err := s.client.Exists(ctx, drawingKey(d.ID)).Result()
		if err != nil {
			return "", fmt.Errorf("redis exists: %w", err)
		}
		if n == 0 {
			return "", ErrNotFound
		}
	}
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, drawingKey(d.ID), d, 0)
		pipe.SAdd(ctx, userKey(d.UserID), d.ID)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("redis save %s: %w", d.ID, err)
	}
	return d.ID, nil
}

func (s *Redis) Get(ctx context.Context, id string) (Drawing, error) {
	var d Drawing
	data, err := s.client.Get(ctx, drawingKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Drawing{}, ErrNotFound
	}
	if err != nil {
		return Drawing{}, fmt.Errorf("redis get %s: %w", id, err)
	}
	if err := d.UnmarshalBinary(data); err != nil {
		return Drawing{}, fmt.Errorf("decode drawing %s: %w", id, err)
	}
	return d, nil
}

func (s *Redis) Load(ctx context.Context, id string) ([]byte, error) {
	d, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return d.Image, nil
}

func (s *Redis) List(ctx context.Context, userID string) ([]DrawingInfo, error) {
	ids, err := s.client.SMembers(ctx, userKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list %s: %w", userID, err)
	}
	out := make([]DrawingInfo, 0, len(ids))
	for _, id := range ids {
		d, err := s.Get(ctx, id)
		if errors.Is(err, ErrNotFound) {
			// Set entry outlived its value; drop it.
			s.client.SRem(ctx, userKey(userID), id)
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, d.Info())
	}
	sortInfos(out)
	return out, nil
}

func (s *Redis) Delete(ctx context.Context, id string) error {
	d, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, drawingKey(id))
		pipe.SRem(ctx, userKey(d.UserID), id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis delete %s: %w", id, err)
	}
	return nil
}

func (s *Redis) Close() error {
	return s.client.Close()
}
