package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store persists carts between requests.
type Store interface {
	Load(ctx context.Context, id string) (*Cart, error)
	Save(ctx context.Context, c *Cart) error
	Delete(ctx context.Context, id string) error
}

// RedisStore keeps carts as JSON documents with a sliding expiry.
type RedisStore struct {
	R      *redis.Client
	Prefix string
	TTL    time.Duration
}

func (s RedisStore) ttl() time.Duration {
	if s.TTL <= 0 {
		return 12 * time.Hour
	}
	return s.TTL
}

func (s RedisStore) key(id string) string {
	prefix := s.Prefix
	if prefix == "" {
		prefix = "cart:"
	}
	return prefix + id
}

// Load fetches a cart and extends its expiry.
func (s RedisStore) Load(ctx context.Context, id string) (*Cart, error) {
	if s.R == nil {
		return nil, errors.New("cart store not configured")
	}
	raw, err := s.R.Get(ctx, s.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load cart %s: %w", id, err)
	}
	var c Cart
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("decode cart %s: %w", id, err)
	}
	_ = s.R.Expire(ctx, s.key(id), s.ttl()).Err()
	return &c, nil
}

// Save writes the cart and resets its expiry.
func (s RedisStore) Save(ctx context.Context, c *Cart) error {
	if s.R == nil {
		return errors.New("cart store not configured")
	}
	raw, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode cart %s: %w", c.ID, err)
	}
	if err := s.R.Set(ctx, s.key(c.ID), raw, s.ttl()).Err(); err != nil {
		return fmt.Errorf("save cart %s: %w", c.ID, err)
	}
	return nil
}

// Delete removes the cart.
func (s RedisStore) Delete(ctx context.Context, id string) error {
	if s.R == nil {
		return errors.New("cart store not configured")
	}
	return s.R.Del(ctx, s.key(id)).Err()
}
