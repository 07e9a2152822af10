package db

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cancersense/apperr"
	"cancersense/ml"
)

func TestSavePredictionRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	userID := registerUser(t, store, "alice")

	prediction := ml.Prediction{Label: ml.LabelMalignant, ProbBenign: 0.1234567, ProbMalignant: 0.8765433}
	measurements := sampleMeasurements(10)
	saved, err := store.SavePrediction(ctx, userID, prediction, measurements, "follow up in 2 weeks")
	require.NoError(t, err)
	assert.NotZero(t, saved.ID)

	history, err := store.History(ctx, userID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	got := history[0]
	assert.Equal(t, saved.ID, got.ID)
	assert.Equal(t, "Malignant", got.Prediction)
	assert.InDelta(t, prediction.ProbBenign, got.ConfidenceBenign, 1e-6)
	assert.InDelta(t, prediction.ProbMalignant, got.ConfidenceMalignant, 1e-6)
	assert.Equal(t, "follow up in 2 weeks", got.Note())
	assert.True(t, got.IsMalignant())

	decoded, err := got.Measurements()
	require.NoError(t, err)
	for name, value := range measurements {
		assert.InDelta(t, value, decoded[name], 1e-6, name)
	}
}

func TestSavePredictionWithoutNote(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	userID := registerUser(t, store, "alice")

	_, err := store.SavePrediction(ctx, userID, ml.Prediction{Label: ml.LabelBenign, ProbBenign: 0.9, ProbMalignant: 0.1}, sampleMeasurements(1), "")
	require.NoError(t, err)

	history, err := store.History(ctx, userID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.False(t, history[0].Notes.Valid)
	assert.Equal(t, "", history[0].Note())
}

func TestSavePredictionRejectsBadInput(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.SavePrediction(ctx, 1, ml.Prediction{Label: "Unsure"}, sampleMeasurements(1), "")
	assert.True(t, apperr.Is(err, apperr.CodeValidation))

	incomplete := sampleMeasurements(1)
	delete(incomplete, "radius_mean")
	_, err = store.SavePrediction(ctx, 1, ml.Prediction{Label: ml.LabelBenign, ProbBenign: 1}, incomplete, "")
	assert.True(t, apperr.Is(err, apperr.CodeValidation))
}

func TestHistoryEmptyIsNotError(t *testing.T) {
	store := newTestStore(t)
	history, err := store.History(context.Background(), 42)
	require.NoError(t, err)
	assert.NotNil(t, history)
	assert.Empty(t, history)
}

func TestHistoryOrderingAndOwnership(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	alice := registerUser(t, store, "alice")
	bob := registerUser(t, store, "bob")

	store.now = fixedClock(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))
	benign := ml.Prediction{Label: ml.LabelBenign, ProbBenign: 0.8, ProbMalignant: 0.2}
	var ids []int64
	for i := 0; i < 3; i++ {
		rec, err := store.SavePrediction(ctx, alice, benign, sampleMeasurements(float64(i)), "")
		require.NoError(t, err)
		ids = append(ids, rec.ID)
	}
	bobRecord, err := store.SavePrediction(ctx, bob, benign, sampleMeasurements(5), "")
	require.NoError(t, err)

	history, err := store.History(ctx, alice)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, ids[2], history[0].ID)
	assert.Equal(t, ids[0], history[2].ID)
	assert.True(t, history[0].CreatedAt.After(history[1].CreatedAt))

	_, err = store.HistoryRecord(ctx, alice, bobRecord.ID)
	assert.True(t, apperr.Is(err, apperr.CodeNotFound))

	rec, err := store.HistoryRecord(ctx, bob, bobRecord.ID)
	require.NoError(t, err)
	assert.Equal(t, bob, rec.UserID)
}

func TestHistorySameTimestampOrderedByID(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	userID := registerUser(t, store, "alice")

	at := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return at }
	benign := ml.Prediction{Label: ml.LabelBenign, ProbBenign: 0.7, ProbMalignant: 0.3}
	first, err := store.SavePrediction(ctx, userID, benign, sampleMeasurements(1), "")
	require.NoError(t, err)
	second, err := store.SavePrediction(ctx, userID, benign, sampleMeasurements(2), "")
	require.NoError(t, err)

	history, err := store.History(ctx, userID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, second.ID, history[0].ID)
	assert.Equal(t, first.ID, history[1].ID)
}

func TestHistoryBetweenIsInclusive(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	userID := registerUser(t, store, "alice")
	benign := ml.Prediction{Label: ml.LabelBenign, ProbBenign: 0.6, ProbMalignant: 0.4}

	days := []time.Time{
		time.Date(2024, 1, 1, 23, 59, 0, 0, time.UTC),
		time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 3, 23, 59, 59, 0, time.UTC),
		time.Date(2024, 1, 4, 0, 0, 0, 0, time.UTC),
	}
	for i, day := range days {
		day := day
		store.now = func() time.Time { return day }
		_, err := store.SavePrediction(ctx, userID, benign, sampleMeasurements(float64(i)), "")
		require.NoError(t, err)
	}

	from := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)
	records, err := store.HistoryBetween(ctx, userID, from, to)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.True(t, records[0].CreatedAt.Equal(days[2]))
	assert.True(t, records[1].CreatedAt.Equal(days[1]))

	open, err := store.HistoryBetween(ctx, userID, time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Len(t, open, 4)

	_, err = store.HistoryBetween(ctx, userID, to, from)
	assert.True(t, apperr.Is(err, apperr.CodeValidation))
}
