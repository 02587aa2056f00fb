package sqldb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/upb/yapi/models"
	"github.com/upb/yapi/repositories"
	"go.uber.org/zap"
)

const auditColumns = `id, user_id, action, resource_type, resource_id, details,
		       ip_address, user_agent, request_id, timestamp, status_code, error_message`

// AuditRepository implements the repositories.AuditRepository interface
type AuditRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *DB, logger *zap.Logger) repositories.AuditRepository {
	return &AuditRepository{
		db:     db,
		logger: logger,
	}
}

// detailsParam binds JSON details as text so both JSONB and TEXT columns accept it
func detailsParam(details json.RawMessage) interface{} {
	if len(details) == 0 {
		return nil
	}
	return string(details)
}

func scanAuditLog(row rowScanner) (*models.AuditLog, error) {
	log := &models.AuditLog{}
	var details sql.NullString
	err := row.Scan(
		&log.ID,
		&log.UserID,
		&log.Action,
		&log.ResourceType,
		&log.ResourceID,
		&details,
		&log.IPAddress,
		&log.UserAgent,
		&log.RequestID,
		&log.Timestamp,
		&log.StatusCode,
		&log.ErrorMessage,
	)
	if err != nil {
		return nil, err
	}
	if details.Valid {
		log.Details = json.RawMessage(details.String)
	}
	log.Timestamp = log.Timestamp.UTC()
	return log, nil
}

// Insert inserts a new audit log entry
func (r *AuditRepository) Insert(ctx context.Context, log *models.AuditLog) error {
	query := `
		INSERT INTO audit_logs (
			id, user_id, action, resource_type, resource_id, details,
			ip_address, user_agent, request_id, timestamp, status_code, error_message
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12
		)
	`

	executor := GetExecutor(ctx, r.db)
	_, err := executor.ExecContext(ctx, query,
		log.ID,
		log.UserID,
		string(log.Action),
		log.ResourceType,
		log.ResourceID,
		detailsParam(log.Details),
		log.IPAddress,
		log.UserAgent,
		log.RequestID,
		log.Timestamp,
		log.StatusCode,
		log.ErrorMessage,
	)
	if err != nil {
		return wrap("insert audit log", err)
	}

	r.logger.Debug("audit log inserted", zap.String("id", log.ID.String()), zap.String("action", string(log.Action)))
	return nil
}

// GetByID retrieves an audit log by ID
func (r *AuditRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.AuditLog, error) {
	query := `SELECT ` + auditColumns + ` FROM audit_logs WHERE id = $1`

	executor := GetExecutor(ctx, r.db)
	log, err := scanAuditLog(executor.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound("audit log", id)
		}
		return nil, wrap("get audit log", err)
	}
	return log, nil
}

// List retrieves audit logs, newest first
func (r *AuditRepository) List(ctx context.Context, limit, offset int) ([]*models.AuditLog, error) {
	query := `
		SELECT ` + auditColumns + `
		FROM audit_logs
		ORDER BY timestamp DESC
		LIMIT $1 OFFSET $2
	`

	return r.queryAuditLogs(ctx, query, limit, offset)
}

// ListByUser retrieves audit logs of an acting user
func (r *AuditRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.AuditLog, error) {
	query := `
		SELECT ` + auditColumns + `
		FROM audit_logs
		WHERE user_id = $1
		ORDER BY timestamp DESC
		LIMIT $2 OFFSET $3
	`

	return r.queryAuditLogs(ctx, query, userID, limit, offset)
}

// queryAuditLogs is a helper method to query multiple audit logs
func (r *AuditRepository) queryAuditLogs(ctx context.Context, query string, args ...interface{}) ([]*models.AuditLog, error) {
	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrap("query audit logs", err)
	}
	defer rows.Close()

	logs := []*models.AuditLog{}
	for rows.Next() {
		log, err := scanAuditLog(rows)
		if err != nil {
			return nil, wrap("scan audit log", err)
		}
		logs = append(logs, log)
	}

	if err := rows.Err(); err != nil {
		return nil, wrap("iterate audit log rows", err)
	}

	return logs, nil
}
