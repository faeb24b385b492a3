package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/baechuer/medimg-identity/internal/domain"
)

type VerificationStore struct {
	mu   sync.Mutex
	data map[string]domain.VerificationSession
	now  func() time.Time
}

func NewVerificationStore() *VerificationStore {
	return &VerificationStore{
		data: make(map[string]domain.VerificationSession),
		now:  time.Now,
	}
}

func (s *VerificationStore) Save(ctx context.Context, vs domain.VerificationSession, ttl time.Duration) error {
	if strings.TrimSpace(vs.Token) == "" {
		return domain.ErrMissingField("token")
	}
	if ttl <= 0 {
		return domain.ErrMissingField("ttl")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	vs.ExpiresAt = s.now().Add(ttl)
	s.data[vs.Token] = vs
	return nil
}

func (s *VerificationStore) Peek(ctx context.Context, token string) (domain.VerificationSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	vs, ok := s.data[token]
	if !ok {
		return domain.VerificationSession{}, domain.ErrVerificationExpired()
	}
	if !s.now().Before(vs.ExpiresAt) {
		delete(s.data, token)
		return domain.VerificationSession{}, domain.ErrVerificationExpired()
	}
	return vs, nil
}

func (s *VerificationStore) Delete(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, token)
	return nil
}
