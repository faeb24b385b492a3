package postgres

import (
	"database/sql"
	"time"
)

type userRow struct {
	ID          string
	ClerkID     string
	Email       string
	FirstName   string
	LastName    string
	Role        string
	Specialty   sql.NullString
	IsActive    bool
	LastLoginAt sql.NullTime
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

const userColumns = `id, clerk_id, email, first_name, last_name, role, specialty, is_active, last_login_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUserRow(row rowScanner) (userRow, error) {
	var ur userRow
	err := row.Scan(
		&ur.ID,
		&ur.ClerkID,
		&ur.Email,
		&ur.FirstName,
		&ur.LastName,
		&ur.Role,
		&ur.Specialty,
		&ur.IsActive,
		&ur.LastLoginAt,
		&ur.CreatedAt,
		&ur.UpdatedAt,
	)
	return ur, err
}
