package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/service-order-api/internal/models"
)

// UserRepository reads the user directory owned by the identity service.
type UserRepository struct {
	db sqlx.QueryerContext
}

// NewUserRepository creates a new instance of UserRepository.
func NewUserRepository(db sqlx.QueryerContext) *UserRepository {
	return &UserRepository{db: db}
}

// FindContact returns delivery details for a user.
func (r *UserRepository) FindContact(ctx context.Context, id string) (*models.UserContact, error) {
	const query = `SELECT id, email, full_name, active FROM users WHERE id = $1 LIMIT 1`
	var contact models.UserContact
	if err := sqlx.GetContext(ctx, r.db, &contact, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find user contact: %w", err)
	}
	return &contact, nil
}
