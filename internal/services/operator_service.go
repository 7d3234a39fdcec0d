package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"merchant-admin/internal/models"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrOperatorNotFound   = errors.New("operator not found")
	ErrOperatorExists     = errors.New("operator with this email or username already exists")
	ErrInvalidCredentials = errors.New("invalid email or password")
)

type OperatorService struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewOperatorService(db *sql.DB, logger zerolog.Logger) *OperatorService {
	return &OperatorService{
		db:     db,
		logger: logger,
	}
}

func (s *OperatorService) Register(ctx context.Context, req *models.RegisterRequest) (*models.Operator, error) {
	if err := models.Validate(req); err != nil {
		return nil, err
	}

	if req.Role != string(models.RoleAdmin) && req.Role != string(models.RoleViewer) {
		req.Role = string(models.RoleViewer)
	}

	var existingID int
	err := s.db.QueryRowContext(ctx, "SELECT id FROM operators WHERE email = ? OR username = ?", req.Email, req.Username).Scan(&existingID)
	if err == nil {
		return nil, ErrOperatorExists
	} else if err != sql.ErrNoRows {
		s.logger.Error().Err(err).Msg("Error checking existing operator")
		return nil, fmt.Errorf("database error: %w", err)
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		s.logger.Error().Err(err).Msg("Error hashing password")
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	result, err := s.db.ExecContext(ctx,
		"INSERT INTO operators (username, email, password_hash, role) VALUES (?, ?, ?, ?)",
		req.Username, req.Email, string(hashedPassword), req.Role,
	)
	if err != nil {
		s.logger.Error().Err(err).Msg("Error creating operator")
		return nil, fmt.Errorf("failed to create operator: %w", err)
	}

	operatorID, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get operator ID: %w", err)
	}

	op, err := s.GetOperatorByID(ctx, int(operatorID))
	if err != nil {
		return nil, err
	}

	s.logger.Info().Int("operator_id", op.ID).Str("email", op.Email).Str("role", op.Role).Msg("Operator registered")
	return op, nil
}

func (s *OperatorService) Authenticate(ctx context.Context, req *models.LoginRequest) (*models.Operator, error) {
	if req.Email == "" || req.Password == "" {
		return nil, ErrInvalidCredentials
	}

	var op models.Operator
	err := s.db.QueryRowContext(ctx,
		"SELECT id, username, email, password_hash, role, created_at, updated_at FROM operators WHERE email = ?",
		req.Email,
	).Scan(&op.ID, &op.Username, &op.Email, &op.PasswordHash, &op.Role, &op.CreatedAt, &op.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		s.logger.Error().Err(err).Msg("Error querying operator")
		return nil, fmt.Errorf("database error: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(op.PasswordHash), []byte(req.Password)); err != nil {
		s.logger.Warn().Str("email", req.Email).Msg("Failed authentication attempt")
		return nil, ErrInvalidCredentials
	}

	op.PasswordHash = ""
	s.logger.Info().Int("operator_id", op.ID).Msg("Operator authenticated")
	return &op, nil
}

func (s *OperatorService) GetOperatorByID(ctx context.Context, id int) (*models.Operator, error) {
	var op models.Operator
	err := s.db.QueryRowContext(ctx,
		"SELECT id, username, email, role, created_at, updated_at FROM operators WHERE id = ?",
		id,
	).Scan(&op.ID, &op.Username, &op.Email, &op.Role, &op.CreatedAt, &op.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, ErrOperatorNotFound
	}
	if err != nil {
		s.logger.Error().Err(err).Int("operator_id", id).Msg("Error fetching operator")
		return nil, fmt.Errorf("database error: %w", err)
	}

	return &op, nil
}
