package http

import (
	"net/http"
	"strings"

	"cancersense/apperr"
	"cancersense/db"
	"cancersense/ml"
)

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{"status": "ok", "model": a.predictor.ModelName()}
	if err := a.store.Ping(r.Context()); err != nil {
		a.logger.Sugar().Warnw("health check: database unavailable", "error", err)
		status["status"] = "degraded"
		status["database"] = apperr.Message(err)
		respondJSON(w, http.StatusServiceUnavailable, status)
		return
	}
	respondJSON(w, http.StatusOK, status)
}

func (a *API) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(a.metrics.ExportPrometheus()))
}

func (a *API) handleFeatures(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"features":    a.predictor.FeatureSpecs(),
		"key_metrics": ml.KeyMetrics,
	})
}

type modelResponse struct {
	Name      string             `json:"name"`
	Reference *ml.Prediction     `json:"reference,omitempty"`
	Trainings []db.TrainingEntry `json:"trainings"`
}

func (a *API) handleModel(w http.ResponseWriter, r *http.Request) {
	resp := modelResponse{Name: a.predictor.ModelName()}
	if ref, ok := a.predictor.Reference(); ok {
		resp.Reference = &ref
	}
	trainings, err := a.store.TrainingLog(r.Context())
	if err != nil {
		respondError(w, r, a.logger, err)
		return
	}
	resp.Trainings = trainings
	respondJSON(w, http.StatusOK, resp)
}

type registerRequest struct {
	Username        string `json:"username"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, a.logger, err)
		return
	}
	if strings.TrimSpace(req.Username) == "" || req.Email == "" || req.Password == "" || req.ConfirmPassword == "" {
		respondError(w, r, a.logger, apperr.Validation("Please fill in all fields"))
		return
	}
	if req.Password != req.ConfirmPassword {
		respondError(w, r, a.logger, apperr.Validation("Passwords do not match"))
		return
	}
	if err := a.store.Register(r.Context(), req.Username, req.Email, req.Password); err != nil {
		a.metrics.RecordAuth("register", false)
		respondError(w, r, a.logger, err)
		return
	}
	a.metrics.RecordAuth("register", true)
	respondJSON(w, http.StatusCreated, apperr.ToResult(nil, "Registration successful"))
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	apperr.Result
	Token    string `json:"token"`
	Username string `json:"username"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, a.logger, err)
		return
	}
	user, err := a.store.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		a.metrics.RecordAuth("login", false)
		respondError(w, r, a.logger, err)
		return
	}
	a.metrics.RecordAuth("login", true)
	token, err := a.sessions.Issue(user.Username)
	if err != nil {
		respondError(w, r, a.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, loginResponse{
		Result:   apperr.ToResult(nil, "Login successful"),
		Token:    token,
		Username: user.Username,
	})
}
