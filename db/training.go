package db

import (
	"context"
	"time"

	"go.uber.org/zap"

	"cancersense/apperr"
)

// TrainingEntry is one row of the training audit log.
type TrainingEntry struct {
	ID         int64     `db:"id" json:"id"`
	ModelName  string    `db:"model_name" json:"model_name"`
	Accuracy   float64   `db:"accuracy" json:"accuracy"`
	Precision  float64   `db:"precision_malignant" json:"precision"`
	Recall     float64   `db:"recall_malignant" json:"recall"`
	F1         float64   `db:"f1_malignant" json:"f1"`
	DataPoints int       `db:"data_points" json:"data_points"`
	TrainedAt  time.Time `db:"trained_at" json:"trained_at"`
}

func (s *Store) LogTraining(ctx context.Context, entry TrainingEntry) (int64, error) {
	db, err := s.ensureConnected(ctx)
	if err != nil {
		return 0, err
	}
	if entry.TrainedAt.IsZero() {
		entry.TrainedAt = s.now()
	}
	var id int64
	err = db.QueryRowxContext(ctx, db.Rebind(`
		INSERT INTO training_log
		    (model_name, accuracy, precision_malignant, recall_malignant, f1_malignant, data_points, trained_at)
		VALUES (?, ?, ?, ?, ?, ?, ?) RETURNING id`),
		entry.ModelName, entry.Accuracy, entry.Precision, entry.Recall, entry.F1,
		entry.DataPoints, entry.TrainedAt.UTC()).Scan(&id)
	if err != nil {
		s.logger.Error("log training failed", zap.Error(err))
		return 0, apperr.Storage("failed to record training run", err)
	}
	return id, nil
}

// TrainingLog returns every training run, newest first.
func (s *Store) TrainingLog(ctx context.Context) ([]TrainingEntry, error) {
	db, err := s.ensureConnected(ctx)
	if err != nil {
		return nil, err
	}
	entries := []TrainingEntry{}
	err = db.SelectContext(ctx, &entries, `SELECT id, model_name, accuracy, precision_malignant,
		recall_malignant, f1_malignant, data_points, trained_at
		FROM training_log ORDER BY trained_at DESC, id DESC`)
	if err != nil {
		return nil, apperr.Storage("failed to load training log", err)
	}
	return entries, nil
}
