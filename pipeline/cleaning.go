package pipeline

import (
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"cancersense/ml"
)

// CleaningRule checks or corrects one record. A non-nil error rejects the
// record; a returned record replaces it.
type CleaningRule interface {
	Apply(*Record) (*Record, error)
	Name() string
}

// QualityIssue describes a rejected record.
type QualityIssue struct {
	Rule      string    `json:"rule"`
	Severity  string    `json:"severity"` // low, medium, high
	Message   string    `json:"message"`
	Line      int       `json:"line"`
	RecordID  string    `json:"record_id"`
	Timestamp time.Time `json:"timestamp"`
}

type DataCleaner struct {
	logger *zap.Logger
	rules  []CleaningRule

	issues     []QualityIssue
	issuesLock sync.RWMutex

	stats     CleaningStats
	statsLock sync.RWMutex
}

type CleaningStats struct {
	TotalProcessed int64            `json:"total_processed"`
	Passed         int64            `json:"passed"`
	Rejected       int64            `json:"rejected"`
	Corrected      int64            `json:"corrected"`
	Issues         map[string]int64 `json:"issues"`
	LastClean      time.Time        `json:"last_clean"`
}

// NewDataCleaner returns a cleaner with the default rules.
func NewDataCleaner(logger *zap.Logger) *DataCleaner {
	if logger == nil {
		logger = zap.NewNop()
	}
	cleaner := &DataCleaner{
		logger: logger,
		stats:  CleaningStats{Issues: make(map[string]int64)},
	}
	cleaner.AddRule(NewDiagnosisRule())
	cleaner.AddRule(NewCompletenessRule())
	cleaner.AddRule(NewDuplicateDetectionRule())
	return cleaner
}

func (dc *DataCleaner) AddRule(rule CleaningRule) {
	dc.rules = append(dc.rules, rule)
	dc.logger.Debug("added cleaning rule", zap.String("rule", rule.Name()))
}

// Clean runs every rule over every record and returns the survivors in
// input order.
func (dc *DataCleaner) Clean(records []*Record) ([]*Record, []QualityIssue) {
	var cleaned []*Record
	var issues []QualityIssue

	dc.statsLock.Lock()
	defer dc.statsLock.Unlock()

	for _, record := range records {
		dc.stats.TotalProcessed++

		original := *record
		var recordIssues []QualityIssue
		for _, rule := range dc.rules {
			next, err := rule.Apply(record)
			if err != nil {
				recordIssues = append(recordIssues, QualityIssue{
					Rule:      rule.Name(),
					Severity:  "high",
					Message:   err.Error(),
					Line:      record.Line,
					RecordID:  record.ID,
					Timestamp: time.Now(),
				})
				dc.stats.Issues[rule.Name()]++
				continue
			}
			if next != nil {
				record = next
			}
		}

		if len(recordIssues) > 0 {
			dc.stats.Rejected++
			issues = append(issues, recordIssues...)
			for _, issue := range recordIssues {
				dc.logger.Warn("record rejected",
					zap.Int("line", issue.Line),
					zap.String("rule", issue.Rule),
					zap.String("reason", issue.Message))
			}
			continue
		}
		if !sameRecord(&original, record) {
			dc.stats.Corrected++
		}
		dc.stats.Passed++
		cleaned = append(cleaned, record)
	}
	dc.stats.LastClean = time.Now()

	dc.issuesLock.Lock()
	dc.issues = append(dc.issues, issues...)
	dc.issuesLock.Unlock()
	return cleaned, issues
}

func sameRecord(a, b *Record) bool {
	if a.ID != b.ID || a.Diagnosis != b.Diagnosis || len(a.Values) != len(b.Values) {
		return false
	}
	for i := range a.Values {
		if a.Values[i] != b.Values[i] && !(math.IsNaN(a.Values[i]) && math.IsNaN(b.Values[i])) {
			return false
		}
	}
	return true
}

func (dc *DataCleaner) GetStats() CleaningStats {
	dc.statsLock.RLock()
	defer dc.statsLock.RUnlock()

	stats := dc.stats
	stats.Issues = make(map[string]int64, len(dc.stats.Issues))
	for k, v := range dc.stats.Issues {
		stats.Issues[k] = v
	}
	return stats
}

// GetIssues returns the most recent limit issues, or all when limit <= 0.
func (dc *DataCleaner) GetIssues(limit int) []QualityIssue {
	dc.issuesLock.RLock()
	defer dc.issuesLock.RUnlock()

	if limit <= 0 || limit > len(dc.issues) {
		limit = len(dc.issues)
	}
	issues := make([]QualityIssue, limit)
	copy(issues, dc.issues[len(dc.issues)-limit:])
	return issues
}

// DiagnosisRule accepts M or B, normalizing case and whitespace.
type DiagnosisRule struct{}

func NewDiagnosisRule() *DiagnosisRule {
	return &DiagnosisRule{}
}

func (r *DiagnosisRule) Name() string {
	return "diagnosis_validation"
}

func (r *DiagnosisRule) Apply(record *Record) (*Record, error) {
	code := strings.ToUpper(strings.TrimSpace(record.Diagnosis))
	if code != "M" && code != "B" {
		return nil, fmt.Errorf("diagnosis %q is not M or B", record.Diagnosis)
	}
	if code == record.Diagnosis {
		return record, nil
	}
	corrected := *record
	corrected.Diagnosis = code
	return &corrected, nil
}

// CompletenessRule requires every feature to be present, finite and
// non-negative.
type CompletenessRule struct{}

func NewCompletenessRule() *CompletenessRule {
	return &CompletenessRule{}
}

func (r *CompletenessRule) Name() string {
	return "completeness_validation"
}

func (r *CompletenessRule) Apply(record *Record) (*Record, error) {
	names := ml.FeatureNames()
	if len(record.Values) != len(names) {
		return nil, fmt.Errorf("expected %d values, got %d", len(names), len(record.Values))
	}
	var bad []string
	for i, v := range record.Values {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			bad = append(bad, names[i])
		}
	}
	if len(bad) > 0 {
		return nil, fmt.Errorf("invalid values for %s", strings.Join(bad, ", "))
	}
	return record, nil
}

// DuplicateDetectionRule rejects repeated sample ids. Records without an id
// are never treated as duplicates.
type DuplicateDetectionRule struct {
	seen map[string]int
	mu   sync.Mutex
}

func NewDuplicateDetectionRule() *DuplicateDetectionRule {
	return &DuplicateDetectionRule{seen: make(map[string]int)}
}

func (r *DuplicateDetectionRule) Name() string {
	return "duplicate_detection"
}

func (r *DuplicateDetectionRule) Apply(record *Record) (*Record, error) {
	if record.ID == "" {
		return record, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if line, exists := r.seen[record.ID]; exists {
		return nil, fmt.Errorf("duplicate sample %s (first seen on line %d)", record.ID, line)
	}
	r.seen[record.ID] = record.Line
	return record, nil
}
