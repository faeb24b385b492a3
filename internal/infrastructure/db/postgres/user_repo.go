package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/baechuer/medimg-identity/internal/domain"
)

type UserRepo struct {
	db *sql.DB
}

func NewUserRepo(db *sql.DB) *UserRepo {
	return &UserRepo{db: db}
}

// ---------- helpers ----------

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func toDomainUser(ur userRow) domain.User {
	u := domain.User{
		ID:        ur.ID,
		ClerkID:   ur.ClerkID,
		Email:     ur.Email,
		FirstName: ur.FirstName,
		LastName:  ur.LastName,
		Role:      domain.Role(ur.Role),
		IsActive:  ur.IsActive,
		CreatedAt: ur.CreatedAt,
		UpdatedAt: ur.UpdatedAt,
	}
	if ur.Specialty.Valid {
		u.Specialty = ur.Specialty.String
	}
	if ur.LastLoginAt.Valid {
		t := ur.LastLoginAt.Time
		u.LastLoginAt = &t
	}
	return u
}

func nullIfEmpty(s string) sql.NullString {
	s = strings.TrimSpace(s)
	return sql.NullString{String: s, Valid: s != ""}
}

// ---------- reconcile.UserRepo ----------

func (r *UserRepo) GetBySubject(ctx context.Context, clerkID string) (domain.User, error) {
	clerkID = strings.TrimSpace(clerkID)
	if clerkID == "" {
		return domain.User{}, domain.ErrMissingField("subject_id")
	}

	q := `SELECT ` + userColumns + ` FROM users WHERE clerk_id = $1 LIMIT 1;`
	ur, err := scanUserRow(r.db.QueryRowContext(ctx, q, clerkID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.User{}, domain.ErrUserNotFound()
		}
		return domain.User{}, domain.ErrDBUnavailable(err)
	}
	return toDomainUser(ur), nil
}

// Upsert creates or refreshes the record for in.ClerkID. It is the only
// write path that can create a row, so replays converge on a single row.
// An existing row keeps its id and is_active flag.
func (r *UserRepo) Upsert(ctx context.Context, in domain.UserUpsert) (domain.User, error) {
	in.ClerkID = strings.TrimSpace(in.ClerkID)
	in.Email = normalizeEmail(in.Email)
	if in.ClerkID == "" {
		return domain.User{}, domain.ErrMissingField("subject_id")
	}
	if in.Email == "" {
		return domain.User{}, domain.ErrMissingField("email")
	}
	if !domain.IsValidRole(string(in.Role)) {
		return domain.User{}, domain.ErrInvalidRole(string(in.Role))
	}
	specialty := ""
	if in.Role == domain.RoleProvider {
		specialty = in.Specialty
	}

	q := `
INSERT INTO users (id, clerk_id, email, first_name, last_name, role, specialty, is_active, last_login_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, TRUE, CASE WHEN $8::boolean THEN now() ELSE NULL END)
ON CONFLICT (clerk_id) DO UPDATE SET
	email = EXCLUDED.email,
	first_name = CASE WHEN EXCLUDED.first_name <> '' THEN EXCLUDED.first_name ELSE users.first_name END,
	last_name = CASE WHEN EXCLUDED.last_name <> '' THEN EXCLUDED.last_name ELSE users.last_name END,
	role = EXCLUDED.role,
	specialty = CASE WHEN EXCLUDED.role = 'PROVIDER' THEN COALESCE(EXCLUDED.specialty, users.specialty) ELSE NULL END,
	last_login_at = COALESCE(EXCLUDED.last_login_at, users.last_login_at),
	updated_at = now()
RETURNING ` + userColumns + `;`

	ur, err := scanUserRow(r.db.QueryRowContext(ctx, q,
		uuid.NewString(),
		in.ClerkID,
		in.Email,
		strings.TrimSpace(in.FirstName),
		strings.TrimSpace(in.LastName),
		string(in.Role),
		nullIfEmpty(specialty),
		in.TouchLogin,
	))
	if err != nil {
		return domain.User{}, domain.ErrDBUnavailable(err)
	}
	return toDomainUser(ur), nil
}

// Update applies a partial patch. It never creates a row.
func (r *UserRepo) Update(ctx context.Context, clerkID string, p domain.UserPatch) (domain.User, error) {
	clerkID = strings.TrimSpace(clerkID)
	if clerkID == "" {
		return domain.User{}, domain.ErrMissingField("subject_id")
	}
	if p.Empty() {
		return r.GetBySubject(ctx, clerkID)
	}

	var (
		sets []string
		args []any
	)
	add := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}

	if p.Email != nil {
		add("email", normalizeEmail(*p.Email))
	}
	if p.FirstName != nil {
		add("first_name", strings.TrimSpace(*p.FirstName))
	}
	if p.LastName != nil {
		add("last_name", strings.TrimSpace(*p.LastName))
	}
	if p.Role != nil {
		if !domain.IsValidRole(string(*p.Role)) {
			return domain.User{}, domain.ErrInvalidRole(string(*p.Role))
		}
		add("role", string(*p.Role))
		if *p.Role != domain.RoleProvider {
			sets = append(sets, "specialty = NULL")
		}
	}
	if p.Specialty != nil && (p.Role == nil || *p.Role == domain.RoleProvider) {
		add("specialty", nullIfEmpty(*p.Specialty))
	}
	if p.IsActive != nil {
		add("is_active", *p.IsActive)
	}
	sets = append(sets, "updated_at = now()")
	args = append(args, clerkID)

	q := fmt.Sprintf(`UPDATE users SET %s WHERE clerk_id = $%d RETURNING %s;`,
		strings.Join(sets, ", "), len(args), userColumns)

	ur, err := scanUserRow(r.db.QueryRowContext(ctx, q, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.User{}, domain.ErrUserNotFound()
		}
		return domain.User{}, domain.ErrDBUnavailable(err)
	}
	return toDomainUser(ur), nil
}

// DeleteBySubject removes every row for the subject and reports how many went.
func (r *UserRepo) DeleteBySubject(ctx context.Context, clerkID string) (int64, error) {
	clerkID = strings.TrimSpace(clerkID)
	if clerkID == "" {
		return 0, domain.ErrMissingField("subject_id")
	}

	res, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE clerk_id = $1;`, clerkID)
	if err != nil {
		return 0, domain.ErrDBUnavailable(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, domain.ErrDBUnavailable(err)
	}
	return n, nil
}

func (r *UserRepo) List(ctx context.Context, limit, offset int) ([]domain.User, error) {
	q := `SELECT ` + userColumns + ` FROM users ORDER BY created_at DESC, id LIMIT $1 OFFSET $2;`
	rows, err := r.db.QueryContext(ctx, q, limit, offset)
	if err != nil {
		return nil, domain.ErrDBUnavailable(err)
	}
	defer rows.Close()

	out := make([]domain.User, 0, limit)
	for rows.Next() {
		ur, err := scanUserRow(rows)
		if err != nil {
			return nil, domain.ErrDBUnavailable(err)
		}
		out = append(out, toDomainUser(ur))
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrDBUnavailable(err)
	}
	return out, nil
}
