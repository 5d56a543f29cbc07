package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/LeventeLantos/future-messaging/internal/model"
)

type PostgresProfileRepo struct {
	db *sql.DB
}

func NewPostgresProfileRepo(db *sql.DB) *PostgresProfileRepo {
	return &PostgresProfileRepo{db: db}
}

func (r *PostgresProfileRepo) GetByOwnerID(ctx context.Context, ownerID string) (*model.Profile, error) {
	var p model.Profile
	var email sql.NullString

	err := r.db.QueryRowContext(ctx, `
		SELECT owner_id, display_name, email
		FROM profiles
		WHERE owner_id = $1
	`, ownerID).Scan(&p.OwnerID, &p.DisplayName, &email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("owner %s: %w", ownerID, ErrProfileNotFound)
	}
	if err != nil {
		return nil, err
	}

	if email.Valid {
		p.Email = email.String
	}
	return &p, nil
}
