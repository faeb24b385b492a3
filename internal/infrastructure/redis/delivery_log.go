package redis

import (
	"context"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/baechuer/medimg-identity/internal/domain"
)

// DeliveryLog is the dedupe fence for webhook deliveries (whd:<delivery id>).
type DeliveryLog struct {
	rdb    *goredis.Client
	prefix string
}

func NewDeliveryLog(c *Client) *DeliveryLog {
	var rdb *goredis.Client
	if c != nil {
		rdb = c.rdb
	}
	return &DeliveryLog{rdb: rdb, prefix: "whd:"}
}

func (l *DeliveryLog) Seen(ctx context.Context, id string) (bool, error) {
	id = strings.TrimSpace(id)
	if id == "" || l.rdb == nil {
		return false, nil
	}
	n, err := l.rdb.Exists(ctx, l.prefix+id).Result()
	if err != nil {
		return false, domain.ErrRedisUnavailable(err)
	}
	return n > 0, nil
}

func (l *DeliveryLog) Mark(ctx context.Context, id string, ttl time.Duration) error {
	id = strings.TrimSpace(id)
	if id == "" || l.rdb == nil {
		return nil
	}
	if err := l.rdb.SetNX(ctx, l.prefix+id, time.Now().UTC().Format(time.RFC3339), ttl).Err(); err != nil {
		return domain.ErrRedisUnavailable(err)
	}
	return nil
}
