package report

import (
	"time"

	"github.com/montanaflynn/stats"

	"cancersense/db"
)

// Summary aggregates a user's history for the dashboard and report front
// page. MalignancyRate is a percentage.
type Summary struct {
	Total                     int                `json:"total"`
	Malignant                 int                `json:"malignant"`
	Benign                    int                `json:"benign"`
	MalignancyRate            float64            `json:"malignancy_rate"`
	MeanMalignantConfidence   float64            `json:"mean_malignant_confidence"`
	MedianMalignantConfidence float64            `json:"median_malignant_confidence"`
	From                      time.Time          `json:"from"`
	To                        time.Time          `json:"to"`
	Recent                    []db.HistoryRecord `json:"-"`
}

// Summarize computes totals over records, which must be newest first.
// Recent holds at most recent records.
func Summarize(records []db.HistoryRecord, recent int) Summary {
	summary := Summary{Total: len(records)}
	if len(records) == 0 {
		summary.Recent = []db.HistoryRecord{}
		return summary
	}

	var malignantConfidence stats.Float64Data
	summary.From = records[0].CreatedAt
	summary.To = records[0].CreatedAt
	for _, record := range records {
		if record.IsMalignant() {
			summary.Malignant++
			malignantConfidence = append(malignantConfidence, record.ConfidenceMalignant)
		} else {
			summary.Benign++
		}
		if record.CreatedAt.Before(summary.From) {
			summary.From = record.CreatedAt
		}
		if record.CreatedAt.After(summary.To) {
			summary.To = record.CreatedAt
		}
	}
	summary.MalignancyRate = float64(summary.Malignant) / float64(summary.Total) * 100
	if len(malignantConfidence) > 0 {
		// both only fail on empty input
		summary.MeanMalignantConfidence, _ = malignantConfidence.Mean()
		summary.MedianMalignantConfidence, _ = malignantConfidence.Median()
	}

	if recent > len(records) {
		recent = len(records)
	}
	if recent < 0 {
		recent = 0
	}
	summary.Recent = records[:recent]
	return summary
}
