package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"cancersense/apperr"
	"cancersense/db"
	"cancersense/ml"
	"cancersense/report"
)

const testPassword = "Passw0rdOK"

// fakePredictor labels a sample Malignant when radius_mean exceeds 15.
type fakePredictor struct {
	bounds ml.DisplayBounds
}

func newFakePredictor(t *testing.T) *fakePredictor {
	t.Helper()
	mins := make([]float64, ml.FeatureCount())
	maxs := make([]float64, ml.FeatureCount())
	for i := range maxs {
		maxs[i] = 100
	}
	bounds, err := ml.NewDisplayBounds(mins, maxs)
	require.NoError(t, err)
	return &fakePredictor{bounds: bounds}
}

func (p *fakePredictor) Predict(m ml.Measurements) (ml.Prediction, error) {
	if err := m.Validate(); err != nil {
		return ml.Prediction{}, err
	}
	if m["radius_mean"] > 15 {
		return ml.NewPrediction([]float64{0.1, 0.9})
	}
	return ml.NewPrediction([]float64{0.8, 0.2})
}

func (p *fakePredictor) Radar(m ml.Measurements) (ml.RadarChart, error) {
	return p.bounds.Radar(m)
}

func (p *fakePredictor) FeatureSpecs() []ml.FeatureSpec {
	specs := make([]ml.FeatureSpec, 0, ml.FeatureCount())
	for _, name := range ml.FeatureNames() {
		specs = append(specs, ml.FeatureSpec{Key: name, Label: ml.FeatureLabel(name), Max: 100, Default: 10})
	}
	return specs
}

func (p *fakePredictor) ModelName() string { return "Fake" }

func (p *fakePredictor) Reference() (ml.Prediction, bool) { return ml.Prediction{}, false }

type testEnv struct {
	handler  http.Handler
	store    *db.Store
	sessions *SessionManager
	api      *API
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store, err := db.Open(db.Options{
		Driver:     db.DriverSQLite,
		DSN:        filepath.Join(t.TempDir(), "http.db"),
		BcryptCost: bcrypt.MinCost,
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	sessions, err := NewSessionManager("test-secret", time.Hour, "cancersense-test")
	require.NoError(t, err)

	api := NewAPI(newFakePredictor(t), store, sessions, report.NewRenderer(""), nil)
	api.now = func() time.Time { return time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC) }
	server := NewServer(DefaultServerConfig(), api, nil)
	return &testEnv{handler: server.Handler(), store: store, sessions: sessions, api: api}
}

func (e *testEnv) do(t *testing.T, method, target, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var payload bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&payload).Encode(body))
	}
	req := httptest.NewRequest(method, target, &payload)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	return rr
}

func (e *testEnv) login(t *testing.T, username string) string {
	t.Helper()
	rr := e.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"username":         username,
		"email":            username + "@example.com",
		"password":         testPassword,
		"confirm_password": testPassword,
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	rr = e.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"username": username,
		"password": testPassword,
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var resp struct {
		Success bool   `json:"success"`
		Token   string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.True(t, resp.Success)
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

func measurements(radius float64) ml.Measurements {
	m := make(ml.Measurements, ml.FeatureCount())
	for i, name := range ml.FeatureNames() {
		m[name] = 1 + float64(i)*0.5
	}
	m["radius_mean"] = radius
	return m
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), v), rr.Body.String())
}

func TestHealthHandler(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodGet, "/api/health", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var body map[string]string
	decode(t, rr, &body)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "Fake", body["model"])
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
}

func TestFeaturesHandler(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodGet, "/api/features", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var body struct {
		Features   []ml.FeatureSpec `json:"features"`
		KeyMetrics []string         `json:"key_metrics"`
	}
	decode(t, rr, &body)
	assert.Len(t, body.Features, ml.FeatureCount())
	assert.Equal(t, "radius_mean", body.Features[0].Key)
	assert.Equal(t, ml.KeyMetrics, body.KeyMetrics)
}

func TestModelHandler(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodGet, "/api/model", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var body modelResponse
	decode(t, rr, &body)
	assert.Equal(t, "Fake", body.Name)
	assert.Nil(t, body.Reference)
	assert.Empty(t, body.Trainings)
}

func TestRegisterValidation(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		body map[string]string
		code int
		msg  string
	}{
		{
			name: "missing fields",
			body: map[string]string{"username": "alice"},
			code: http.StatusBadRequest,
			msg:  "Please fill in all fields",
		},
		{
			name: "password mismatch",
			body: map[string]string{"username": "alice", "email": "alice@example.com", "password": testPassword, "confirm_password": testPassword + "x"},
			code: http.StatusBadRequest,
			msg:  "Passwords do not match",
		},
		{
			name: "weak password",
			body: map[string]string{"username": "alice", "email": "alice@example.com", "password": "short", "confirm_password": "short"},
			code: http.StatusBadRequest,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do(t, http.MethodPost, "/api/auth/register", "", tt.body)
			assert.Equal(t, tt.code, rr.Code)
			var body errorResponse
			decode(t, rr, &body)
			assert.False(t, body.Success)
			if tt.msg != "" {
				assert.Equal(t, tt.msg, body.Message)
			}
		})
	}
}

func TestRegisterDuplicateAndLogin(t *testing.T) {
	env := newTestEnv(t)
	env.login(t, "alice")

	rr := env.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"username":         "alice",
		"email":            "other@example.com",
		"password":         testPassword,
		"confirm_password": testPassword,
	})
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = env.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"username": "alice",
		"password": "Wr0ngPassword",
	})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	var body errorResponse
	decode(t, rr, &body)
	assert.Equal(t, "Invalid username or password", body.Message)
}

func TestLoginRejectsUnknownFields(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"user": "alice"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	env := newTestEnv(t)

	for _, target := range []string{"/api/history", "/api/dashboard", "/api/report", "/api/history/export", "/api/history/1/report"} {
		rr := env.do(t, http.MethodGet, target, "", nil)
		assert.Equal(t, http.StatusUnauthorized, rr.Code, target)
	}

	rr := env.do(t, http.MethodPost, "/api/predict", "not-a-token", map[string]interface{}{"measurements": measurements(10)})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestExpiredTokenRejected(t *testing.T) {
	env := newTestEnv(t)
	env.login(t, "alice")

	env.sessions.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	token, err := env.sessions.Issue("alice")
	require.NoError(t, err)
	env.sessions.now = time.Now

	rr := env.do(t, http.MethodGet, "/api/history", token, nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	var body errorResponse
	decode(t, rr, &body)
	assert.Contains(t, body.Message, "expired")
}

func TestTokenForUnknownUserRejected(t *testing.T) {
	env := newTestEnv(t)

	token, err := env.sessions.Issue("ghost")
	require.NoError(t, err)
	rr := env.do(t, http.MethodGet, "/api/history", token, nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestPredictHandler(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t, "alice")

	rr := env.do(t, http.MethodPost, "/api/predict", token, map[string]interface{}{"measurements": measurements(20)})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var body predictResponse
	decode(t, rr, &body)
	assert.Equal(t, ml.LabelMalignant, body.Prediction.Label)
	assert.InDelta(t, 0.9, body.Prediction.ProbMalignant, 1e-12)
	assert.Equal(t, "Fake", body.Model)
	require.Len(t, body.Radar.Series, 3)
	assert.InDelta(t, 0.2, body.Radar.Series[0].Values[0], 1e-12)

	// predicting does not persist
	rr = env.do(t, http.MethodGet, "/api/history", token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var history struct {
		Count int `json:"count"`
	}
	decode(t, rr, &history)
	assert.Zero(t, history.Count)
}

func TestPredictRejectsIncompleteMeasurements(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t, "alice")

	m := measurements(10)
	delete(m, "area_worst")
	rr := env.do(t, http.MethodPost, "/api/predict", token, map[string]interface{}{"measurements": m})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	var body errorResponse
	decode(t, rr, &body)
	assert.Contains(t, body.Message, "area_worst")
}

func TestPredictRejectsNullMeasurement(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t, "alice")

	m := map[string]interface{}{}
	for name, value := range measurements(10) {
		m[name] = value
	}
	m["radius_mean"] = nil
	for _, path := range []string{"/api/predict", "/api/history"} {
		rr := env.do(t, http.MethodPost, path, token, map[string]interface{}{"measurements": m})
		assert.Equal(t, http.StatusBadRequest, rr.Code, path)
		var body errorResponse
		decode(t, rr, &body)
		assert.Equal(t, apperr.CodeValidation, body.Code)
		assert.Contains(t, body.Message, "radius_mean")
	}

	rr := env.do(t, http.MethodGet, "/api/history", token, nil)
	var history struct {
		Count int `json:"count"`
	}
	decode(t, rr, &history)
	assert.Zero(t, history.Count)
}

func TestSaveHistoryAndDashboard(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t, "alice")
	other := env.login(t, "bob")

	for _, radius := range []float64{10, 20, 30} {
		rr := env.do(t, http.MethodPost, "/api/history", token, map[string]interface{}{
			"measurements": measurements(radius),
			"note":         "follow up",
		})
		require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	}

	rr := env.do(t, http.MethodGet, "/api/history", token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var history struct {
		Count   int           `json:"count"`
		Records []historyView `json:"records"`
	}
	decode(t, rr, &history)
	require.Equal(t, 3, history.Count)
	assert.Equal(t, "Malignant", history.Records[0].Prediction)
	assert.Equal(t, "follow up", history.Records[0].Notes)
	assert.InDelta(t, 30, history.Records[0].Measurements["radius_mean"], 1e-9)
	assert.Greater(t, history.Records[0].ID, history.Records[2].ID)

	rr = env.do(t, http.MethodGet, "/api/dashboard", token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var dashboard struct {
		Total          int           `json:"total"`
		Malignant      int           `json:"malignant"`
		Benign         int           `json:"benign"`
		MalignancyRate float64       `json:"malignancy_rate"`
		Recent         []historyView `json:"recent"`
	}
	decode(t, rr, &dashboard)
	assert.Equal(t, 3, dashboard.Total)
	assert.Equal(t, 2, dashboard.Malignant)
	assert.Equal(t, 1, dashboard.Benign)
	assert.InDelta(t, 66.666, dashboard.MalignancyRate, 1e-2)
	assert.Len(t, dashboard.Recent, 3)

	rr = env.do(t, http.MethodGet, "/api/history", other, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	decode(t, rr, &history)
	assert.Zero(t, history.Count)
	assert.NotNil(t, history.Records)
}

func TestHistoryDateFilter(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t, "alice")

	rr := env.do(t, http.MethodPost, "/api/history", token, map[string]interface{}{"measurements": measurements(10)})
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = env.do(t, http.MethodGet, "/api/history?from=yesterday", token, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = env.do(t, http.MethodGet, "/api/history?from=2001-01-01&to=2001-12-31", token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var history struct {
		Count int `json:"count"`
	}
	decode(t, rr, &history)
	assert.Zero(t, history.Count)

	today := time.Now().UTC().Format(dateLayout)
	rr = env.do(t, http.MethodGet, "/api/history?from="+today+"&to="+today, token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	decode(t, rr, &history)
	assert.Equal(t, 1, history.Count)

	rr = env.do(t, http.MethodGet, "/api/history?from=2030-01-02&to=2030-01-01", token, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestReports(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t, "alice")

	rr := env.do(t, http.MethodGet, "/api/report", token, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code, "empty history has no report")

	rr = env.do(t, http.MethodPost, "/api/history", token, map[string]interface{}{"measurements": measurements(25), "note": "biopsy"})
	require.Equal(t, http.StatusCreated, rr.Code)
	var saved struct {
		Record historyView `json:"record"`
	}
	decode(t, rr, &saved)
	require.NotZero(t, saved.Record.ID)

	rr = env.do(t, http.MethodGet, "/api/report", token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, contentTypePDF, rr.Header().Get("Content-Type"))
	assert.Contains(t, rr.Header().Get("Content-Disposition"), "medical_report_history_20260304_050607.pdf")
	assert.True(t, bytes.HasPrefix(rr.Body.Bytes(), []byte("%PDF")))

	target := "/api/history/" + strconv.FormatInt(saved.Record.ID, 10) + "/report"
	rr = env.do(t, http.MethodGet, target, token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Disposition"), "medical_report_"+strconv.FormatInt(saved.Record.ID, 10)+"_20260304_050607.pdf")
	assert.True(t, bytes.HasPrefix(rr.Body.Bytes(), []byte("%PDF")))

	other := env.login(t, "bob")
	rr = env.do(t, http.MethodGet, target, other, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = env.do(t, http.MethodGet, "/api/history/abc/report", token, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestExportHandler(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t, "alice")

	rr := env.do(t, http.MethodPost, "/api/history", token, map[string]interface{}{"measurements": measurements(12)})
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = env.do(t, http.MethodGet, "/api/history/export", token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, contentTypeXLSX, rr.Header().Get("Content-Type"))
	assert.Contains(t, rr.Header().Get("Content-Disposition"), "prediction_history_20260304_050607.xlsx")
	// xlsx files are zip archives
	assert.True(t, bytes.HasPrefix(rr.Body.Bytes(), []byte("PK")))
}

func TestRecoveryMiddleware(t *testing.T) {
	handler := RecoveryMiddleware(zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.True(t, strings.Contains(rr.Body.String(), "internal server error"))
}

func TestCORSPreflight(t *testing.T) {
	handler := CORSMiddleware([]string{"https://clinic.example"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("preflight reached handler")
	}))
	req := httptest.NewRequest(http.MethodOptions, "/api/predict", nil)
	req.Header.Set("Origin", "https://clinic.example")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "https://clinic.example", rr.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/api/predict", nil)
	req.Header.Set("Origin", "https://evil.example")
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestLoggerMiddlewareKeepsRequestID(t *testing.T) {
	var seen string
	handler := LoggerMiddleware(zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "req-1")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, "req-1", seen)
	assert.Equal(t, "req-1", rr.Header().Get("X-Request-ID"))
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t, "alice")

	rr := env.do(t, http.MethodPost, "/api/predict", token, map[string]interface{}{"measurements": measurements(20)})
	require.Equal(t, http.StatusOK, rr.Code)
	rr = env.do(t, http.MethodGet, "/api/history/42/report", token, nil)
	require.Equal(t, http.StatusNotFound, rr.Code)

	rr = env.do(t, http.MethodGet, "/api/metrics", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, `cancersense_predictions_total{diagnosis="Malignant",saved="false"} 1`)
	assert.Contains(t, body, `cancersense_auth_attempts_total{action="login",outcome="success"} 1`)
	assert.Contains(t, body, `route="/api/history/{id}/report",status="404"`)
}

func TestRespondErrorHidesStorageCause(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/history", nil)
	rr := httptest.NewRecorder()
	respondError(rr, req, zap.NewNop(), apperr.Storage("Error retrieving history", errors.New("open /var/lib/app.db: permission denied")))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	var body errorResponse
	decode(t, rr, &body)
	assert.Equal(t, apperr.CodeStorage, body.Code)
	assert.Equal(t, "Error retrieving history", body.Message)
	assert.NotContains(t, rr.Body.String(), "permission denied")
}
