package pipeline

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"cancersense/ml"
)

const (
	idColumn        = "id"
	diagnosisColumn = "diagnosis"
)

// Record is one raw dataset row. Values follow ml.FeatureNames order and
// hold NaN where a cell could not be parsed.
type Record struct {
	Line      int       `json:"line"`
	ID        string    `json:"id"`
	Diagnosis string    `json:"diagnosis"`
	Values    []float64 `json:"values"`
}

// Label maps the diagnosis code to the class index. Call after cleaning.
func (r *Record) Label() int {
	if r.Diagnosis == "M" {
		return ml.ClassMalignant
	}
	return ml.ClassBenign
}

// Dataset is the cleaned training set.
type Dataset struct {
	IDs      []string
	Features [][]float64
	Labels   []int
	Stats    CleaningStats
	Issues   []QualityIssue
}

// Counts returns the number of benign and malignant samples.
func (d *Dataset) Counts() (benign, malignant int) {
	for _, label := range d.Labels {
		if label == ml.ClassMalignant {
			malignant++
		} else {
			benign++
		}
	}
	return benign, malignant
}

// LoadDataset reads a CSV or XLSX file with the Wisconsin diagnostic
// layout and cleans it.
func LoadDataset(path string, cleaner *DataCleaner, logger *zap.Logger) (*Dataset, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	rows, err := readRows(path)
	if err != nil {
		return nil, err
	}
	records, err := ParseRecords(rows)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	if cleaner == nil {
		cleaner = NewDataCleaner(logger)
	}
	cleaned, issues := cleaner.Clean(records)
	stats := cleaner.GetStats()
	logger.Info("dataset loaded",
		zap.String("path", path),
		zap.Int64("rows", stats.TotalProcessed),
		zap.Int64("passed", stats.Passed),
		zap.Int64("rejected", stats.Rejected),
		zap.Int64("corrected", stats.Corrected))
	if len(cleaned) == 0 {
		return nil, errors.New("no usable rows in dataset")
	}

	ds := &Dataset{Stats: stats, Issues: issues}
	for _, record := range cleaned {
		ds.IDs = append(ds.IDs, record.ID)
		ds.Features = append(ds.Features, record.Values)
		ds.Labels = append(ds.Labels, record.Label())
	}
	return ds, nil
}

func readRows(path string) ([][]string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		return readExcelRows(path)
	default:
		return readCSVRows(path)
	}
}

func readCSVRows(path string) ([][]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset: %w", err)
	}
	defer file.Close()
	return ReadCSV(file)
}

// ReadCSV reads every row of r. Rows may have differing lengths.
func ReadCSV(r io.Reader) ([][]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV: %w", err)
	}
	return rows, nil
}

func readExcelRows(path string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", sheets[0], err)
	}
	return rows, nil
}

// ParseRecords maps rows onto Records by header name. Columns other than
// id, diagnosis and the 30 features (such as a trailing unnamed column) are
// ignored.
func ParseRecords(rows [][]string) ([]*Record, error) {
	if len(rows) < 2 {
		return nil, errors.New("dataset must have a header row and at least one data row")
	}
	index := make(map[string]int, len(rows[0]))
	for i, header := range rows[0] {
		index[strings.TrimSpace(header)] = i
	}
	diagIdx, ok := index[diagnosisColumn]
	if !ok {
		return nil, errors.New("missing diagnosis column")
	}
	names := ml.FeatureNames()
	featureIdx := make([]int, len(names))
	var missing []string
	for i, name := range names {
		idx, ok := index[name]
		if !ok {
			missing = append(missing, name)
			continue
		}
		featureIdx[i] = idx
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing feature columns: %s", strings.Join(missing, ", "))
	}
	idIdx, hasID := index[idColumn]

	records := make([]*Record, 0, len(rows)-1)
	for n, row := range rows[1:] {
		if isBlank(row) {
			continue
		}
		record := &Record{
			Line:      n + 2,
			Diagnosis: cell(row, diagIdx),
			Values:    make([]float64, len(names)),
		}
		if hasID {
			record.ID = cell(row, idIdx)
		}
		for i, idx := range featureIdx {
			value, err := strconv.ParseFloat(cell(row, idx), 64)
			if err != nil {
				value = math.NaN()
			}
			record.Values[i] = value
		}
		records = append(records, record)
	}
	return records, nil
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func isBlank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
