package report

import (
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"cancersense/apperr"
	"cancersense/db"
	"cancersense/ml"
)

const historySheet = "History"

// ExportFilename is the download name of the spreadsheet export.
func ExportFilename(now time.Time) string {
	return fmt.Sprintf("prediction_history_%s.xlsx", now.Format("20060102_150405"))
}

// ExportXLSX writes one row per record with every measurement as a column.
// Measurement cells stay empty for records whose input data is malformed.
func ExportXLSX(records []db.HistoryRecord) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), historySheet); err != nil {
		return nil, apperr.Wrap(err, "failed to prepare export")
	}

	header := []interface{}{"ID", "Date", "Diagnosis", "Confidence (Benign)", "Confidence (Malignant)", "Notes"}
	for _, name := range ml.FeatureNames() {
		header = append(header, ml.FeatureLabel(name))
	}
	if err := f.SetSheetRow(historySheet, "A1", &header); err != nil {
		return nil, apperr.Wrap(err, "failed to write export header")
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, apperr.Wrap(err, "failed to create header style")
	}
	lastColumn, err := excelize.ColumnNumberToName(len(header))
	if err != nil {
		return nil, apperr.Wrap(err, "failed to size export")
	}
	if err := f.SetCellStyle(historySheet, "A1", lastColumn+"1", bold); err != nil {
		return nil, apperr.Wrap(err, "failed to style export header")
	}

	for i, record := range records {
		row := []interface{}{
			record.ID,
			record.CreatedAt.Format("2006-01-02 15:04:05"),
			record.Prediction,
			record.ConfidenceBenign,
			record.ConfidenceMalignant,
			record.Note(),
		}
		if measurements, err := record.Measurements(); err == nil {
			for _, name := range ml.FeatureNames() {
				if value, ok := measurements[name]; ok {
					row = append(row, value)
				} else {
					row = append(row, nil)
				}
			}
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, apperr.Wrapf(err, "failed to address export row %d", i+1)
		}
		if err := f.SetSheetRow(historySheet, cell, &row); err != nil {
			return nil, apperr.Wrapf(err, "failed to write export row %d", i+1)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, apperr.Wrap(err, "failed to encode export")
	}
	return buf.Bytes(), nil
}
