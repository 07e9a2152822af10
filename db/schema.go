package db

import (
	"context"
	"strings"

	"github.com/jmoiron/sqlx"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS users (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    username TEXT NOT NULL UNIQUE,
    email TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    created_at DATETIME NOT NULL
);
CREATE TABLE IF NOT EXISTS prediction_history (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id INTEGER NOT NULL REFERENCES users(id),
    prediction TEXT NOT NULL,
    confidence_benign REAL NOT NULL,
    confidence_malicious REAL NOT NULL,
    input_data TEXT NOT NULL,
    notes TEXT,
    created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_history_user_created ON prediction_history(user_id, created_at);
CREATE TABLE IF NOT EXISTS training_log (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    model_name TEXT NOT NULL,
    accuracy REAL NOT NULL,
    precision_malignant REAL NOT NULL,
    recall_malignant REAL NOT NULL,
    f1_malignant REAL NOT NULL,
    data_points INTEGER NOT NULL,
    trained_at DATETIME NOT NULL
);
`

const postgresSchema = `
CREATE TABLE IF NOT EXISTS users (
    id BIGSERIAL PRIMARY KEY,
    username TEXT NOT NULL UNIQUE,
    email TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS prediction_history (
    id BIGSERIAL PRIMARY KEY,
    user_id BIGINT NOT NULL REFERENCES users(id),
    prediction TEXT NOT NULL,
    confidence_benign DOUBLE PRECISION NOT NULL,
    confidence_malicious DOUBLE PRECISION NOT NULL,
    input_data TEXT NOT NULL,
    notes TEXT,
    created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_history_user_created ON prediction_history(user_id, created_at);
CREATE TABLE IF NOT EXISTS training_log (
    id BIGSERIAL PRIMARY KEY,
    model_name TEXT NOT NULL,
    accuracy DOUBLE PRECISION NOT NULL,
    precision_malignant DOUBLE PRECISION NOT NULL,
    recall_malignant DOUBLE PRECISION NOT NULL,
    f1_malignant DOUBLE PRECISION NOT NULL,
    data_points INTEGER NOT NULL,
    trained_at TIMESTAMPTZ NOT NULL
);
`

func createSchema(ctx context.Context, db *sqlx.DB, driver string) error {
	schema := sqliteSchema
	if driver == DriverPostgres {
		schema = postgresSchema
	}
	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
