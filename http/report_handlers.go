package http

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"cancersense/apperr"
	"cancersense/report"
)

const (
	contentTypePDF  = "application/pdf"
	contentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

func (a *API) handleBatchReport(w http.ResponseWriter, r *http.Request) {
	session := mustSession(r)
	records, err := a.history(r, session.UserID)
	if err != nil {
		respondError(w, r, a.logger, err)
		return
	}
	now := a.now()
	payload, err := a.renderer.RenderBatch(records, session.Username, now)
	if err != nil {
		respondError(w, r, a.logger, err)
		return
	}
	a.metrics.RecordReport("batch")
	respondFile(w, contentTypePDF, report.BatchFilename(now), payload)
}

func (a *API) handleSingleReport(w http.ResponseWriter, r *http.Request) {
	session := mustSession(r)
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		respondError(w, r, a.logger, apperr.Validation("invalid record id"))
		return
	}
	record, err := a.store.HistoryRecord(r.Context(), session.UserID, id)
	if err != nil {
		respondError(w, r, a.logger, err)
		return
	}
	now := a.now()
	payload, err := a.renderer.RenderSingle(*record, session.Username, now)
	if err != nil {
		respondError(w, r, a.logger, err)
		return
	}
	a.metrics.RecordReport("single")
	respondFile(w, contentTypePDF, report.Filename(record.ID, now), payload)
}

func (a *API) handleExport(w http.ResponseWriter, r *http.Request) {
	session := mustSession(r)
	records, err := a.history(r, session.UserID)
	if err != nil {
		respondError(w, r, a.logger, err)
		return
	}
	payload, err := report.ExportXLSX(records)
	if err != nil {
		respondError(w, r, a.logger, err)
		return
	}
	a.metrics.RecordReport("xlsx")
	respondFile(w, contentTypeXLSX, report.ExportFilename(a.now()), payload)
}
