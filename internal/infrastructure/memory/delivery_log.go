package memory

import (
	"context"
	"sync"
	"time"
)

// DeliveryLog remembers processed webhook delivery ids until their ttl passes.
type DeliveryLog struct {
	mu   sync.Mutex
	seen map[string]time.Time // id -> expiry
	now  func() time.Time
}

func NewDeliveryLog() *DeliveryLog {
	return &DeliveryLog{
		seen: make(map[string]time.Time),
		now:  time.Now,
	}
}

func (l *DeliveryLog) Seen(ctx context.Context, id string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	exp, ok := l.seen[id]
	if !ok {
		return false, nil
	}
	if !l.now().Before(exp) {
		delete(l.seen, id)
		return false, nil
	}
	return true, nil
}

func (l *DeliveryLog) Mark(ctx context.Context, id string, ttl time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seen[id] = l.now().Add(ttl)
	return nil
}
