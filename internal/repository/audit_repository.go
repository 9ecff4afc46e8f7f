package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/service-order-api/internal/models"
)

// AuditRepository appends audit logs.
type AuditRepository struct {
	db sqlx.ExtContext
}

// NewAuditRepository constructs the repository.
func NewAuditRepository(db sqlx.ExtContext) *AuditRepository {
	return &AuditRepository{db: db}
}

// CreateAuditLog stores an audit log entry.
func (r *AuditRepository) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO audit_logs (id, user_id, action, resource, resource_id, order_number, old_values, new_values, request_id, created_at) VALUES (:id, :user_id, :action, :resource, :resource_id, :order_number, :old_values, :new_values, :request_id, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.db, query, log); err != nil {
		return fmt.Errorf("create audit log: %w", err)
	}
	return nil
}
