package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/baechuer/medimg-identity/internal/domain"
)

// VerificationStore keeps pending second-factor sessions under vs:<token>.
type VerificationStore struct {
	rdb    *goredis.Client
	prefix string
}

func NewVerificationStore(c *Client) *VerificationStore {
	var rdb *goredis.Client
	if c != nil {
		rdb = c.rdb
	}
	return &VerificationStore{
		rdb:    rdb,
		prefix: "vs:",
	}
}

var errNotConfigured = errors.New("redis verification store not configured")

func (s *VerificationStore) Save(ctx context.Context, vs domain.VerificationSession, ttl time.Duration) error {
	token := strings.TrimSpace(vs.Token)
	if token == "" {
		return domain.ErrMissingField("token")
	}
	if ttl <= 0 {
		return domain.ErrMissingField("ttl")
	}
	if s.rdb == nil {
		return errNotConfigured
	}

	if vs.CreatedAt.IsZero() {
		vs.CreatedAt = time.Now().UTC()
	}
	vs.ExpiresAt = vs.CreatedAt.Add(ttl)

	b, err := json.Marshal(vs)
	if err != nil {
		return fmt.Errorf("verification save: %w", err)
	}
	if err := s.rdb.Set(ctx, s.key(token), b, ttl).Err(); err != nil {
		return domain.ErrRedisUnavailable(err)
	}
	return nil
}

func (s *VerificationStore) Peek(ctx context.Context, token string) (domain.VerificationSession, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.VerificationSession{}, domain.ErrMissingField("token")
	}
	if s.rdb == nil {
		return domain.VerificationSession{}, errNotConfigured
	}

	raw, err := s.rdb.Get(ctx, s.key(token)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return domain.VerificationSession{}, domain.ErrVerificationExpired()
		}
		return domain.VerificationSession{}, domain.ErrRedisUnavailable(err)
	}

	var vs domain.VerificationSession
	if err := json.Unmarshal(raw, &vs); err != nil {
		// corrupt entry: treat as gone
		_ = s.rdb.Del(ctx, s.key(token)).Err()
		return domain.VerificationSession{}, domain.ErrVerificationExpired()
	}
	vs.Token = token
	return vs, nil
}

func (s *VerificationStore) Delete(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.ErrMissingField("token")
	}
	if s.rdb == nil {
		return errNotConfigured
	}
	if err := s.rdb.Del(ctx, s.key(token)).Err(); err != nil {
		return domain.ErrRedisUnavailable(err)
	}
	return nil
}

func (s *VerificationStore) key(token string) string {
	return s.prefix + token
}
