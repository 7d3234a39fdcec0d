package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"merchant-admin/internal/models"

	"github.com/rs/zerolog"
)

type AuditService struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewAuditService(db *sql.DB, logger zerolog.Logger) *AuditService {
	return &AuditService{
		db:     db,
		logger: logger,
	}
}

// recordInTx writes an audit row as part of tx. A failed write is logged
// and does not abort the surrounding change.
func (s *AuditService) recordInTx(ctx context.Context, tx *sql.Tx, merchantID string, action models.AuditAction, details interface{}) {
	payload := "{}"
	if details != nil {
		b, err := json.Marshal(details)
		if err != nil {
			s.logger.Warn().Err(err).Msg("Failed to encode audit details")
		} else {
			payload = string(b)
		}
	}

	_, err := tx.ExecContext(ctx,
		"INSERT INTO audit_logs (entity_type, entity_id, action, details) VALUES (?, ?, ?, ?)",
		models.EntityMerchant, merchantID, string(action), payload,
	)
	if err != nil {
		s.logger.Warn().Err(err).Str("merchant_id", merchantID).Msg("Failed to record audit log (non-critical)")
	}
}

func (s *AuditService) ListForMerchant(ctx context.Context, merchantID string, limit, offset int) ([]*models.AuditLog, error) {
	query := `
		SELECT id, entity_type, entity_id, action, details, created_at
		FROM audit_logs
		WHERE entity_type = ? AND entity_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, models.EntityMerchant, merchantID, limit, offset)
	if err != nil {
		s.logger.Error().Err(err).Str("merchant_id", merchantID).Msg("Error fetching audit logs")
		return nil, fmt.Errorf("database error: %w", err)
	}
	defer rows.Close()

	logs := []*models.AuditLog{}
	for rows.Next() {
		var l models.AuditLog
		var details sql.NullString
		if err := rows.Scan(&l.ID, &l.EntityType, &l.EntityID, &l.Action, &details, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("error scanning audit log: %w", err)
		}
		l.Details = details.String
		logs = append(logs, &l)
	}

	return logs, rows.Err()
}
