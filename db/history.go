package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"cancersense/apperr"
	"cancersense/ml"
)

// HistoryRecord is one saved prediction. InputData keeps the measurements
// as stored so a malformed row can still be listed.
type HistoryRecord struct {
	ID                  int64          `db:"id"`
	UserID              int64          `db:"user_id"`
	Prediction          string         `db:"prediction"`
	ConfidenceBenign    float64        `db:"confidence_benign"`
	ConfidenceMalignant float64        `db:"confidence_malicious"`
	InputData           string         `db:"input_data"`
	Notes               sql.NullString `db:"notes"`
	CreatedAt           time.Time      `db:"created_at"`
}

// Measurements decodes InputData.
func (r HistoryRecord) Measurements() (ml.Measurements, error) {
	var m ml.Measurements
	if err := json.Unmarshal([]byte(r.InputData), &m); err != nil {
		return nil, fmt.Errorf("record %d: decode input data: %w", r.ID, err)
	}
	return m, nil
}

func (r HistoryRecord) Note() string {
	return r.Notes.String
}

func (r HistoryRecord) IsMalignant() bool {
	return r.Prediction == string(ml.LabelMalignant)
}

const historyColumns = `id, user_id, prediction, confidence_benign, confidence_malicious, input_data, notes, created_at`

// SavePrediction appends a history record in a single insert.
func (s *Store) SavePrediction(ctx context.Context, userID int64, prediction ml.Prediction, measurements ml.Measurements, note string) (*HistoryRecord, error) {
	if !prediction.Label.Valid() {
		return nil, apperr.Validationf("invalid diagnosis label %q", prediction.Label)
	}
	if err := measurements.Validate(); err != nil {
		return nil, err
	}
	payload, err := json.Marshal(measurements)
	if err != nil {
		return nil, apperr.Validation("measurements cannot be encoded")
	}

	db, err := s.ensureConnected(ctx)
	if err != nil {
		return nil, err
	}

	record := &HistoryRecord{
		UserID:              userID,
		Prediction:          string(prediction.Label),
		ConfidenceBenign:    prediction.ProbBenign,
		ConfidenceMalignant: prediction.ProbMalignant,
		InputData:           string(payload),
		Notes:               sql.NullString{String: note, Valid: note != ""},
		CreatedAt:           s.now(),
	}
	err = db.QueryRowxContext(ctx, db.Rebind(`
		INSERT INTO prediction_history
		    (user_id, prediction, confidence_benign, confidence_malicious, input_data, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?) RETURNING id`),
		record.UserID, record.Prediction, record.ConfidenceBenign, record.ConfidenceMalignant,
		record.InputData, record.Notes, record.CreatedAt).Scan(&record.ID)
	if err != nil {
		s.logger.Error("save prediction failed", zap.Int64("user_id", userID), zap.Error(err))
		return nil, apperr.Storage("Error saving prediction", err)
	}
	s.logger.Info("prediction saved",
		zap.Int64("user_id", userID),
		zap.Int64("record_id", record.ID),
		zap.String("diagnosis", record.Prediction))
	return record, nil
}

// History returns the user's records newest first. No records is an empty
// slice, not an error.
func (s *Store) History(ctx context.Context, userID int64) ([]HistoryRecord, error) {
	return s.queryHistory(ctx, `SELECT `+historyColumns+` FROM prediction_history
		WHERE user_id = ? ORDER BY created_at DESC, id DESC`, userID)
}

// HistoryBetween filters History to records created on dates from through
// to, both inclusive. A zero bound is open.
func (s *Store) HistoryBetween(ctx context.Context, userID int64, from, to time.Time) ([]HistoryRecord, error) {
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		return nil, apperr.Validation("end date is before start date")
	}
	query := `SELECT ` + historyColumns + ` FROM prediction_history WHERE user_id = ?`
	args := []interface{}{userID}
	if !from.IsZero() {
		query += ` AND created_at >= ?`
		args = append(args, startOfDay(from))
	}
	if !to.IsZero() {
		query += ` AND created_at < ?`
		args = append(args, startOfDay(to).AddDate(0, 0, 1))
	}
	query += ` ORDER BY created_at DESC, id DESC`
	return s.queryHistory(ctx, query, args...)
}

// HistoryRecord returns one record owned by userID.
func (s *Store) HistoryRecord(ctx context.Context, userID, id int64) (*HistoryRecord, error) {
	db, err := s.ensureConnected(ctx)
	if err != nil {
		return nil, err
	}
	var record HistoryRecord
	err = db.GetContext(ctx, &record, db.Rebind(
		`SELECT `+historyColumns+` FROM prediction_history WHERE id = ? AND user_id = ?`), id, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("history record")
	}
	if err != nil {
		s.logger.Error("load history record failed", zap.Int64("record_id", id), zap.Error(err))
		return nil, apperr.Storage("Error loading history", err)
	}
	record.CreatedAt = record.CreatedAt.UTC()
	return &record, nil
}

func (s *Store) queryHistory(ctx context.Context, query string, args ...interface{}) ([]HistoryRecord, error) {
	db, err := s.ensureConnected(ctx)
	if err != nil {
		return nil, err
	}
	records := []HistoryRecord{}
	if err := db.SelectContext(ctx, &records, db.Rebind(query), args...); err != nil {
		s.logger.Error("load history failed", zap.Error(err))
		return nil, apperr.Storage("Error loading history", err)
	}
	for i := range records {
		records[i].CreatedAt = records[i].CreatedAt.UTC()
	}
	return records, nil
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
