package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/baechuer/medimg-identity/internal/domain"
)

// UserRepo is the in-process twin of postgres.UserRepo, keyed by subject id.
type UserRepo struct {
	mu        sync.RWMutex
	bySubject map[string]domain.User
	now       func() time.Time
}

func NewUserRepo() *UserRepo {
	return &UserRepo{
		bySubject: make(map[string]domain.User),
		now:       time.Now,
	}
}

func (r *UserRepo) GetBySubject(ctx context.Context, clerkID string) (domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.bySubject[strings.TrimSpace(clerkID)]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound()
	}
	return u, nil
}

func (r *UserRepo) Upsert(ctx context.Context, in domain.UserUpsert) (domain.User, error) {
	in.ClerkID = strings.TrimSpace(in.ClerkID)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if in.ClerkID == "" {
		return domain.User{}, domain.ErrMissingField("subject_id")
	}
	if in.Email == "" {
		return domain.User{}, domain.ErrMissingField("email")
	}
	if !domain.IsValidRole(string(in.Role)) {
		return domain.User{}, domain.ErrInvalidRole(string(in.Role))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now().UTC()
	u, exists := r.bySubject[in.ClerkID]
	if !exists {
		u = domain.User{
			ID:        uuid.NewString(),
			ClerkID:   in.ClerkID,
			IsActive:  true,
			CreatedAt: now,
		}
	}

	u.Email = in.Email
	if fn := strings.TrimSpace(in.FirstName); fn != "" {
		u.FirstName = fn
	}
	if ln := strings.TrimSpace(in.LastName); ln != "" {
		u.LastName = ln
	}
	u.Role = in.Role
	if in.Role != domain.RoleProvider {
		u.Specialty = ""
	} else if s := strings.TrimSpace(in.Specialty); s != "" {
		u.Specialty = s
	}
	if in.TouchLogin {
		t := now
		u.LastLoginAt = &t
	}
	u.UpdatedAt = now

	r.bySubject[in.ClerkID] = u
	return u, nil
}

func (r *UserRepo) Update(ctx context.Context, clerkID string, p domain.UserPatch) (domain.User, error) {
	if p.Role != nil && !domain.IsValidRole(string(*p.Role)) {
		return domain.User{}, domain.ErrInvalidRole(string(*p.Role))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	clerkID = strings.TrimSpace(clerkID)
	u, ok := r.bySubject[clerkID]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound()
	}
	if p.Email != nil {
		e := strings.ToLower(strings.TrimSpace(*p.Email))
		p.Email = &e
	}
	u = p.Apply(u)
	u.UpdatedAt = r.now().UTC()
	r.bySubject[clerkID] = u
	return u, nil
}

func (r *UserRepo) DeleteBySubject(ctx context.Context, clerkID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	clerkID = strings.TrimSpace(clerkID)
	if _, ok := r.bySubject[clerkID]; !ok {
		return 0, nil
	}
	delete(r.bySubject, clerkID)
	return 1, nil
}

func (r *UserRepo) List(ctx context.Context, limit, offset int) ([]domain.User, error) {
	r.mu.RLock()
	all := make([]domain.User, 0, len(r.bySubject))
	for _, u := range r.bySubject {
		all = append(all, u)
	}
	r.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID < all[j].ID
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	if offset >= len(all) {
		return []domain.User{}, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

// Count is used by tests to assert the one-row-per-subject invariant.
func (r *UserRepo) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.bySubject)
}
