package http

import (
	"net/http"
	"time"

	"cancersense/apperr"
	"cancersense/db"
	"cancersense/ml"
	"cancersense/report"
)

const dateLayout = "2006-01-02"

// recentCount is the number of records shown on the dashboard.
const recentCount = 5

type predictRequest struct {
	Measurements ml.Measurements `json:"measurements"`
	Note         string          `json:"note"`
}

type predictResponse struct {
	Prediction ml.Prediction `json:"prediction"`
	Radar      ml.RadarChart `json:"radar"`
	Model      string        `json:"model"`
}

// historyView is the JSON form of a history record.
type historyView struct {
	ID                  int64           `json:"id"`
	Prediction          string          `json:"prediction"`
	ConfidenceBenign    float64         `json:"confidence_benign"`
	ConfidenceMalignant float64         `json:"confidence_malignant"`
	Notes               string          `json:"notes,omitempty"`
	CreatedAt           time.Time       `json:"created_at"`
	Measurements        ml.Measurements `json:"measurements,omitempty"`
}

func newHistoryView(record db.HistoryRecord) historyView {
	view := historyView{
		ID:                  record.ID,
		Prediction:          record.Prediction,
		ConfidenceBenign:    record.ConfidenceBenign,
		ConfidenceMalignant: record.ConfidenceMalignant,
		Notes:               record.Note(),
		CreatedAt:           record.CreatedAt,
	}
	// a malformed row is still listed, without its measurements
	if m, err := record.Measurements(); err == nil {
		view.Measurements = m
	}
	return view
}

func newHistoryViews(records []db.HistoryRecord) []historyView {
	views := make([]historyView, len(records))
	for i, record := range records {
		views[i] = newHistoryView(record)
	}
	return views
}

func mustSession(r *http.Request) Session {
	s, ok := SessionFrom(r.Context())
	if !ok {
		// routes using this are mounted behind AuthMiddleware
		panic("http: session missing from request context")
	}
	return s
}

func (a *API) predict(m ml.Measurements) (predictResponse, error) {
	prediction, err := a.predictor.Predict(m)
	if err != nil {
		return predictResponse{}, err
	}
	radar, err := a.predictor.Radar(m)
	if err != nil {
		return predictResponse{}, err
	}
	return predictResponse{Prediction: prediction, Radar: radar, Model: a.predictor.ModelName()}, nil
}

func (a *API) handlePredict(w http.ResponseWriter, r *http.Request) {
	var req predictRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, a.logger, err)
		return
	}
	resp, err := a.predict(req.Measurements)
	if err != nil {
		respondError(w, r, a.logger, err)
		return
	}
	a.metrics.RecordPrediction(string(resp.Prediction.Label), false)
	respondJSON(w, http.StatusOK, resp)
}

func (a *API) handleSavePrediction(w http.ResponseWriter, r *http.Request) {
	session := mustSession(r)
	var req predictRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, a.logger, err)
		return
	}
	resp, err := a.predict(req.Measurements)
	if err != nil {
		respondError(w, r, a.logger, err)
		return
	}
	record, err := a.store.SavePrediction(r.Context(), session.UserID, resp.Prediction, req.Measurements, req.Note)
	if err != nil {
		respondError(w, r, a.logger, err)
		return
	}
	a.metrics.RecordPrediction(string(resp.Prediction.Label), true)
	respondJSON(w, http.StatusCreated, struct {
		predictResponse
		Record historyView `json:"record"`
	}{resp, newHistoryView(*record)})
}

// parseRange reads the optional from/to query dates.
func parseRange(r *http.Request) (from, to time.Time, err error) {
	query := r.URL.Query()
	if v := query.Get("from"); v != "" {
		if from, err = time.Parse(dateLayout, v); err != nil {
			return from, to, apperr.Validationf("invalid from date %q, want YYYY-MM-DD", v)
		}
	}
	if v := query.Get("to"); v != "" {
		if to, err = time.Parse(dateLayout, v); err != nil {
			return from, to, apperr.Validationf("invalid to date %q, want YYYY-MM-DD", v)
		}
	}
	return from, to, nil
}

func (a *API) history(r *http.Request, userID int64) ([]db.HistoryRecord, error) {
	from, to, err := parseRange(r)
	if err != nil {
		return nil, err
	}
	if from.IsZero() && to.IsZero() {
		return a.store.History(r.Context(), userID)
	}
	return a.store.HistoryBetween(r.Context(), userID, from, to)
}

func (a *API) handleHistory(w http.ResponseWriter, r *http.Request) {
	session := mustSession(r)
	records, err := a.history(r, session.UserID)
	if err != nil {
		respondError(w, r, a.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"count":   len(records),
		"records": newHistoryViews(records),
	})
}

type dashboardResponse struct {
	report.Summary
	Recent []historyView `json:"recent"`
}

func (a *API) handleDashboard(w http.ResponseWriter, r *http.Request) {
	session := mustSession(r)
	records, err := a.store.History(r.Context(), session.UserID)
	if err != nil {
		respondError(w, r, a.logger, err)
		return
	}
	summary := report.Summarize(records, recentCount)
	respondJSON(w, http.StatusOK, dashboardResponse{
		Summary: summary,
		Recent:  newHistoryViews(summary.Recent),
	})
}
