package db

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog"
)

func InitDB(dbURL string, logger zerolog.Logger) (*sql.DB, error) {
	db, err := sql.Open("mysql", dbURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database is not responding: %w", err)
	}

	logger.Info().Msg("Connected to database")
	return db, nil
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS operators (
		id INT AUTO_INCREMENT PRIMARY KEY,
		username VARCHAR(100) NOT NULL UNIQUE,
		email VARCHAR(255) NOT NULL UNIQUE,
		password_hash VARCHAR(255) NOT NULL,
		role VARCHAR(50) NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
	);`,
	`CREATE TABLE IF NOT EXISTS merchants (
		id VARCHAR(64) PRIMARY KEY,
		firstname VARCHAR(100) NOT NULL DEFAULT '',
		lastname VARCHAR(100) NOT NULL DEFAULT '',
		email VARCHAR(255) NOT NULL DEFAULT '',
		phone VARCHAR(32) NOT NULL DEFAULT '',
		avatar_url VARCHAR(1024) NOT NULL DEFAULT '',
		has_premium BOOLEAN NOT NULL DEFAULT FALSE,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
		INDEX idx_created_at (created_at)
	);`,
	`CREATE TABLE IF NOT EXISTS bids (
		id VARCHAR(64) NOT NULL,
		merchant_id VARCHAR(64) NOT NULL,
		position INT NOT NULL,
		car_title VARCHAR(200) NOT NULL DEFAULT '',
		amount DECIMAL(20,2) NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (merchant_id, id),
		INDEX idx_merchant_position (merchant_id, position),
		FOREIGN KEY (merchant_id) REFERENCES merchants(id) ON DELETE CASCADE
	);`,
	`CREATE TABLE IF NOT EXISTS audit_logs (
		id INT AUTO_INCREMENT PRIMARY KEY,
		entity_type VARCHAR(50),
		entity_id VARCHAR(64),
		action VARCHAR(50),
		details TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		INDEX idx_entity (entity_type, entity_id)
	);`,
}

func RunMigrations(db *sql.DB, logger zerolog.Logger) error {
	for i, q := range migrations {
		if _, err := db.Exec(q); err != nil {
			return fmt.Errorf("migration %d failed: %w", i, err)
		}
	}
	logger.Info().Int("count", len(migrations)).Msg("Migrations applied")
	return nil
}
