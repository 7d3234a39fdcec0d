package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"merchant-admin/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var ErrMerchantNotFound = errors.New("merchant not found")

const merchantColumns = "id, firstname, lastname, email, phone, avatar_url, has_premium, created_at, updated_at"

type MerchantService struct {
	db     *sql.DB
	logger zerolog.Logger
	audit  *AuditService
}

func NewMerchantService(db *sql.DB, logger zerolog.Logger, audit *AuditService) *MerchantService {
	return &MerchantService{
		db:     db,
		logger: logger,
		audit:  audit,
	}
}

func (s *MerchantService) CreateMerchant(ctx context.Context, req *models.CreateMerchantRequest) (*models.Merchant, error) {
	if err := models.Validate(req); err != nil {
		return nil, err
	}

	id := uuid.NewString()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		s.logger.Error().Err(err).Msg("Error starting create merchant transaction")
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		"INSERT INTO merchants (id, firstname, lastname, email, phone, avatar_url, has_premium) VALUES (?, ?, ?, ?, ?, ?, ?)",
		id, req.Firstname, req.Lastname, req.Email, req.Phone, req.AvatarURL, req.HasPremium,
	)
	if err != nil {
		s.logger.Error().Err(err).Msg("Error creating merchant")
		return nil, fmt.Errorf("failed to create merchant: %w", err)
	}

	s.audit.recordInTx(ctx, tx, id, models.AuditActionCreate, req)

	if err = tx.Commit(); err != nil {
		s.logger.Error().Err(err).Msg("Error committing create merchant")
		return nil, fmt.Errorf("failed to commit merchant: %w", err)
	}

	s.logger.Info().Str("merchant_id", id).Str("email", req.Email).Msg("Merchant created")
	return s.GetMerchantByID(ctx, id)
}

func (s *MerchantService) GetMerchantByID(ctx context.Context, id string) (*models.Merchant, error) {
	var m models.Merchant
	err := s.db.QueryRowContext(ctx,
		"SELECT "+merchantColumns+" FROM merchants WHERE id = ?",
		id,
	).Scan(
		&m.ID, &m.Firstname, &m.Lastname, &m.Email, &m.Phone, &m.AvatarURL, &m.HasPremium, &m.CreatedAt, &m.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, ErrMerchantNotFound
	}
	if err != nil {
		s.logger.Error().Err(err).Str("merchant_id", id).Msg("Error fetching merchant")
		return nil, fmt.Errorf("database error: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, car_title, amount, created_at FROM bids WHERE merchant_id = ? ORDER BY position",
		id,
	)
	if err != nil {
		s.logger.Error().Err(err).Str("merchant_id", id).Msg("Error fetching bids")
		return nil, fmt.Errorf("database error: %w", err)
	}
	defer rows.Close()

	m.Bids = []models.Bid{}
	for rows.Next() {
		var b models.Bid
		if err := rows.Scan(&b.ID, &b.CarTitle, &b.Amount, &b.Created); err != nil {
			return nil, fmt.Errorf("error scanning bid: %w", err)
		}
		m.Bids = append(m.Bids, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error reading bids: %w", err)
	}

	return &m, nil
}

// ListMerchants returns one page of merchants, newest first. page is 0-based.
func (s *MerchantService) ListMerchants(ctx context.Context, page, size int) (*models.MerchantPage, error) {
	if page < 0 {
		page = 0
	}
	if size <= 0 {
		size = 20
	}

	result := &models.MerchantPage{Page: page, Size: size, Merchants: []*models.Merchant{}}

	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM merchants").Scan(&result.Total); err != nil {
		s.logger.Error().Err(err).Msg("Error counting merchants")
		return nil, fmt.Errorf("database error: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+merchantColumns+" FROM merchants ORDER BY created_at DESC, id LIMIT ? OFFSET ?",
		size, page*size,
	)
	if err != nil {
		s.logger.Error().Err(err).Int("page", page).Msg("Error listing merchants")
		return nil, fmt.Errorf("database error: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]*models.Merchant)
	for rows.Next() {
		var m models.Merchant
		err := rows.Scan(
			&m.ID, &m.Firstname, &m.Lastname, &m.Email, &m.Phone, &m.AvatarURL, &m.HasPremium, &m.CreatedAt, &m.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("error scanning merchant: %w", err)
		}
		m.Bids = []models.Bid{}
		result.Merchants = append(result.Merchants, &m)
		byID[m.ID] = &m
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error reading merchants: %w", err)
	}

	if len(result.Merchants) == 0 {
		return result, nil
	}

	placeholders := make([]string, 0, len(result.Merchants))
	args := make([]interface{}, 0, len(result.Merchants))
	for _, m := range result.Merchants {
		placeholders = append(placeholders, "?")
		args = append(args, m.ID)
	}

	bidRows, err := s.db.QueryContext(ctx,
		"SELECT merchant_id, id, car_title, amount, created_at FROM bids WHERE merchant_id IN ("+strings.Join(placeholders, ", ")+") ORDER BY merchant_id, position",
		args...,
	)
	if err != nil {
		s.logger.Error().Err(err).Msg("Error listing bids")
		return nil, fmt.Errorf("database error: %w", err)
	}
	defer bidRows.Close()

	for bidRows.Next() {
		var merchantID string
		var b models.Bid
		if err := bidRows.Scan(&merchantID, &b.ID, &b.CarTitle, &b.Amount, &b.Created); err != nil {
			return nil, fmt.Errorf("error scanning bid: %w", err)
		}
		if m, ok := byID[merchantID]; ok {
			m.Bids = append(m.Bids, b)
		}
	}

	return result, bidRows.Err()
}

// UpdateMerchant merges patch into the stored merchant and returns the
// merchant as persisted.
func (s *MerchantService) UpdateMerchant(ctx context.Context, id string, patch models.MerchantPatch) (*models.Merchant, error) {
	if patch.IsEmpty() {
		return s.GetMerchantByID(ctx, id)
	}
	if err := models.Validate(patch); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		s.logger.Error().Err(err).Msg("Error starting update merchant transaction")
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	var existing string
	err = tx.QueryRowContext(ctx, "SELECT id FROM merchants WHERE id = ? FOR UPDATE", id).Scan(&existing)
	if err == sql.ErrNoRows {
		return nil, ErrMerchantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock merchant: %w", err)
	}

	sets, args := patchAssignments(patch)
	args = append(args, id)
	_, err = tx.ExecContext(ctx,
		"UPDATE merchants SET "+strings.Join(sets, ", ")+" WHERE id = ?",
		args...,
	)
	if err != nil {
		s.logger.Error().Err(err).Str("merchant_id", id).Msg("Error updating merchant")
		return nil, fmt.Errorf("failed to update merchant: %w", err)
	}

	if patch.Bids != nil {
		if err := replaceBids(ctx, tx, id, patch.Bids); err != nil {
			s.logger.Error().Err(err).Str("merchant_id", id).Msg("Error replacing bids")
			return nil, err
		}
	}

	s.audit.recordInTx(ctx, tx, id, models.AuditActionUpdate, patch)

	if err = tx.Commit(); err != nil {
		s.logger.Error().Err(err).Msg("Error committing merchant update")
		return nil, fmt.Errorf("failed to commit merchant update: %w", err)
	}

	s.logger.Info().
		Str("merchant_id", id).
		Strs("fields", patch.Fields()).
		Msg("Merchant updated")

	return s.GetMerchantByID(ctx, id)
}

func (s *MerchantService) DeleteMerchant(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		s.logger.Error().Err(err).Msg("Error starting delete merchant transaction")
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, "DELETE FROM merchants WHERE id = ?", id)
	if err != nil {
		s.logger.Error().Err(err).Str("merchant_id", id).Msg("Error deleting merchant")
		return fmt.Errorf("failed to delete merchant: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return ErrMerchantNotFound
	}

	s.audit.recordInTx(ctx, tx, id, models.AuditActionDelete, nil)

	if err = tx.Commit(); err != nil {
		s.logger.Error().Err(err).Msg("Error committing merchant delete")
		return fmt.Errorf("failed to commit merchant delete: %w", err)
	}

	s.logger.Info().Str("merchant_id", id).Msg("Merchant deleted")
	return nil
}

func patchAssignments(p models.MerchantPatch) ([]string, []interface{}) {
	var sets []string
	var args []interface{}

	add := func(column string, value interface{}) {
		sets = append(sets, column+" = ?")
		args = append(args, value)
	}

	if p.Firstname != nil {
		add("firstname", *p.Firstname)
	}
	if p.Lastname != nil {
		add("lastname", *p.Lastname)
	}
	if p.Email != nil {
		add("email", *p.Email)
	}
	if p.Phone != nil {
		add("phone", *p.Phone)
	}
	if p.AvatarURL != nil {
		add("avatar_url", *p.AvatarURL)
	}
	if p.HasPremium != nil {
		add("has_premium", *p.HasPremium)
	}

	sets = append(sets, "updated_at = CURRENT_TIMESTAMP")
	return sets, args
}

func replaceBids(ctx context.Context, tx *sql.Tx, merchantID string, bids []models.Bid) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM bids WHERE merchant_id = ?", merchantID); err != nil {
		return fmt.Errorf("failed to clear bids: %w", err)
	}

	for i, b := range bids {
		created := b.Created
		if created.IsZero() {
			created = time.Now().UTC()
		}
		_, err := tx.ExecContext(ctx,
			"INSERT INTO bids (id, merchant_id, position, car_title, amount, created_at) VALUES (?, ?, ?, ?, ?, ?)",
			b.ID, merchantID, i, b.CarTitle, b.Amount, created,
		)
		if err != nil {
			return fmt.Errorf("failed to insert bid %s: %w", b.ID, err)
		}
	}
	return nil
}
