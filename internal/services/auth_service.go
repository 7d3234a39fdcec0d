package services

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
)

const defaultSecret = "default-secret-key-change-in-production"

type AuthService struct {
	secretKey []byte
	ttl       time.Duration
	logger    zerolog.Logger
}

type Claims struct {
	OperatorID int    `json:"operator_id"`
	Email      string `json:"email"`
	Role       string `json:"role"`
	jwt.RegisteredClaims
}

func NewAuthService(secret string, logger zerolog.Logger) *AuthService {
	if secret == "" {
		secret = defaultSecret
		logger.Warn().Msg("JWT_SECRET not set, using default key")
	}

	return &AuthService{
		secretKey: []byte(secret),
		ttl:       24 * time.Hour,
		logger:    logger,
	}
}

// TTL is how long issued tokens stay valid.
func (s *AuthService) TTL() time.Duration { return s.ttl }

func (s *AuthService) GenerateToken(operatorID int, email, role string) (string, error) {
	now := time.Now()

	claims := &Claims{
		OperatorID: operatorID,
		Email:      email,
		Role:       role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.secretKey)
	if err != nil {
		s.logger.Error().Err(err).Msg("Error generating token")
		return "", err
	}

	return tokenString, nil
}

func (s *AuthService) ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return s.secretKey, nil
	})

	if err != nil {
		return nil, err
	}

	if !token.Valid {
		return nil, errors.New("invalid token")
	}

	return claims, nil
}
