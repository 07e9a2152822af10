// Package report renders prediction history into PDF reports, XLSX exports
// and dashboard summaries.
package report

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"cancersense/apperr"
	"cancersense/db"
	"cancersense/ml"
)

const DefaultTitle = "CancerSense AI - Medical Analysis Report"

const reviewNotice = "This report is generated by CancerSense AI and should be reviewed by a medical professional."

const disclaimer = `This report is generated by CancerSense AI, an artificial intelligence-based diagnostic support tool. The predictions and analyses contained in this report should be used as supporting information only and not as a sole basis for diagnosis.

Key Points:
1. All predictions should be verified by qualified medical professionals
2. This tool is designed to assist, not replace, professional medical judgment
3. Additional clinical correlation and testing may be necessary
4. Patient history and other clinical factors should be considered

For medical professionals use only.`

var malignantRecommendations = []string{
	"1. Immediate Consultation: Schedule urgent oncologist consultation",
	"2. Further Testing: Tissue biopsy, mammogram/ultrasound, consider MRI",
	"3. Treatment Planning: Begin preliminary planning pending confirmation",
	"4. Support Services: Connect with cancer support services",
	"5. Follow-up: Schedule within 1 week",
}

var benignRecommendations = []string{
	"1. Regular Monitoring: Continue routine screening",
	"2. Follow-up: Mammogram in 12 months, clinical examination every 6-12 months",
	"3. Risk Management: Maintain healthy lifestyle, regular self-examination",
	"4. Documentation: Keep records of all screenings",
}

var patientInstructions = []string{
	"1. Keep this report for medical records",
	"2. Share with primary healthcare provider",
	"3. Follow recommended follow-up schedule",
	"4. Report any new/changing symptoms immediately",
	"5. Maintain healthy lifestyle (exercise, diet, sleep, stress management)",
}

var titleCaser = cases.Title(language.English)

// Renderer produces PDF documents. The output depends only on its inputs,
// including the generation time.
type Renderer struct {
	Title string
}

func NewRenderer(title string) *Renderer {
	if strings.TrimSpace(title) == "" {
		title = DefaultTitle
	}
	return &Renderer{Title: title}
}

// Filename is the download name of a single record report.
func Filename(id int64, now time.Time) string {
	return fmt.Sprintf("medical_report_%d_%s.pdf", id, now.Format("20060102_150405"))
}

// BatchFilename is the download name of a history report.
func BatchFilename(now time.Time) string {
	return fmt.Sprintf("medical_report_history_%s.pdf", now.Format("20060102_150405"))
}

// MetricName turns a feature key into a display name, e.g.
// "radius_mean" -> "Radius Mean".
func MetricName(key string) string {
	return titleCaser.String(strings.ReplaceAll(key, "_", " "))
}

type document struct {
	pdf *fpdf.Fpdf
	tr  func(string) string
}

func (r *Renderer) newDocument(now time.Time, headerSize float64, footer func(*document)) *document {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetCreationDate(now)
	pdf.SetModificationDate(now)
	pdf.SetCatalogSort(true)
	pdf.SetTitle(r.Title, true)
	doc := &document{pdf: pdf, tr: pdf.UnicodeTranslatorFromDescriptor("")}

	generated := "Generated: " + now.Format("2006-01-02 15:04:05")
	pdf.SetHeaderFunc(func() {
		pdf.SetFont("Arial", "B", headerSize)
		pdf.CellFormat(0, 10, doc.tr(r.Title), "", 1, "C", false, 0, "")
		pdf.SetFont("Arial", "", 10)
		pdf.CellFormat(0, 5, generated, "", 1, "C", false, 0, "")
		y := pdf.GetY() + 2
		pdf.Line(10, y, 200, y)
		pdf.Ln(8)
	})
	pdf.SetFooterFunc(func() { footer(doc) })
	return doc
}

func (d *document) chapterTitle(title string) {
	d.pdf.SetFont("Arial", "B", 12)
	d.pdf.SetFillColor(200, 220, 255)
	d.pdf.CellFormat(0, 6, d.tr(title), "", 1, "L", true, 0, "")
	d.pdf.Ln(4)
}

func (d *document) chapterBody(body string) {
	d.pdf.SetFont("Arial", "", 10)
	d.pdf.MultiCell(0, 5, d.tr(body), "", "L", false)
	d.pdf.Ln(-1)
}

func (d *document) line(h float64, text string) {
	d.pdf.CellFormat(0, h, d.tr(text), "", 1, "L", false, 0, "")
}

func (d *document) diagnosis(label string) {
	if label == string(ml.LabelMalignant) {
		d.pdf.SetTextColor(255, 0, 0)
	} else {
		d.pdf.SetTextColor(0, 100, 0)
	}
	d.line(6, "Diagnosis: "+label)
	d.pdf.SetTextColor(0, 0, 0)
}

// keyMeasurements prints the key metrics of record. Records whose stored
// measurements cannot be decoded are skipped without error.
func (d *document) keyMeasurements(record db.HistoryRecord, heading string, h float64) {
	measurements, err := record.Measurements()
	if err != nil {
		return
	}
	if heading != "" {
		d.line(6, heading)
	}
	for _, metric := range ml.KeyMetrics {
		if value, ok := measurements[metric]; ok {
			d.line(h, fmt.Sprintf("%s: %.3f", MetricName(metric), value))
		}
	}
}

func (d *document) bytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := d.pdf.Output(&buf); err != nil {
		return nil, apperr.Wrap(err, "failed to render report")
	}
	return buf.Bytes(), nil
}

func percent(p float64) string {
	return fmt.Sprintf("%.1f%%", p*100)
}

// RenderBatch renders a history report for records. An empty batch is a
// validation error.
func (r *Renderer) RenderBatch(records []db.HistoryRecord, author string, now time.Time) ([]byte, error) {
	if len(records) == 0 {
		return nil, apperr.Validation("No predictions to include in the report")
	}
	summary := Summarize(records, 0)

	doc := r.newDocument(now, 15, func(d *document) {
		d.pdf.SetY(-15)
		d.pdf.SetFont("Arial", "I", 8)
		d.pdf.CellFormat(0, 10, reviewNotice, "", 0, "C", false, 0, "")
		d.pdf.SetY(-10)
		d.pdf.CellFormat(0, 10, fmt.Sprintf("Page %d/{nb}", d.pdf.PageNo()), "", 0, "C", false, 0, "")
	})
	pdf := doc.pdf
	pdf.AliasNbPages("")
	pdf.AddPage()

	doc.chapterTitle("Report Summary")
	doc.chapterBody(fmt.Sprintf("Healthcare Provider: %s\nTotal Predictions: %d\nPeriod: %s to %s",
		author, summary.Total, summary.From.Format("2006-01-02"), summary.To.Format("2006-01-02")))

	doc.chapterTitle("Analysis Statistics")
	stats := fmt.Sprintf("Total Malignant Predictions: %d\nTotal Benign Predictions: %d\nMalignancy Rate: %.1f%%",
		summary.Malignant, summary.Benign, summary.MalignancyRate)
	if summary.Malignant > 0 {
		stats += fmt.Sprintf("\nAverage Malignant Confidence: %s", percent(summary.MeanMalignantConfidence))
	}
	doc.chapterBody(stats)

	pdf.AddPage()
	doc.chapterTitle("Detailed Prediction History")
	for _, record := range records {
		if pdf.GetY() > 220 {
			pdf.AddPage()
		}
		pdf.SetDrawColor(100, 100, 100)
		pdf.Rect(10, pdf.GetY(), 190, 60, "D")

		pdf.SetFont("Arial", "B", 11)
		pdf.SetFillColor(240, 240, 240)
		pdf.CellFormat(0, 8, fmt.Sprintf("Analysis #%d - %s", record.ID, record.CreatedAt.Format("2006-01-02 15:04")),
			"", 1, "L", true, 0, "")

		pdf.SetFont("Arial", "", 10)
		doc.diagnosis(record.Prediction)
		doc.line(6, "Confidence Scores:")
		pdf.CellFormat(90, 6, "Benign: "+percent(record.ConfidenceBenign), "", 0, "L", false, 0, "")
		pdf.CellFormat(90, 6, "Malignant: "+percent(record.ConfidenceMalignant), "", 1, "L", false, 0, "")
		if note := record.Note(); note != "" {
			doc.line(6, "Clinical Notes: "+note)
		}
		doc.keyMeasurements(record, "Key Measurements:", 4)
		pdf.Ln(15)
	}

	pdf.AddPage()
	doc.chapterTitle("Important Notice")
	doc.chapterBody(disclaimer)
	return doc.bytes()
}

// RenderSingle renders the report for one record, including clinical
// recommendations for its diagnosis.
func (r *Renderer) RenderSingle(record db.HistoryRecord, author string, now time.Time) ([]byte, error) {
	doc := r.newDocument(now, 14, func(d *document) {
		d.pdf.SetY(-12)
		d.pdf.SetFont("Arial", "I", 8)
		d.pdf.CellFormat(0, 5, reviewNotice, "", 1, "C", false, 0, "")
	})
	pdf := doc.pdf
	pdf.SetLeftMargin(15)
	pdf.AddPage()

	section := func(title string) {
		pdf.SetFont("Arial", "B", 11)
		doc.line(6, title)
		pdf.SetFont("Arial", "", 10)
	}

	section("Analysis Details")
	doc.line(5, fmt.Sprintf("ID: #%d | Date: %s", record.ID, record.CreatedAt.Format("2006-01-02 15:04")))
	doc.line(5, "Provider: "+author)
	if note := record.Note(); note != "" {
		doc.line(5, "Clinical Notes: "+note)
	}
	pdf.Ln(2)

	pdf.SetFont("Arial", "B", 11)
	doc.diagnosis(record.Prediction)
	pdf.SetFont("Arial", "", 10)
	doc.line(5, "Confidence (Benign): "+percent(record.ConfidenceBenign))
	doc.line(5, "Confidence (Malignant): "+percent(record.ConfidenceMalignant))
	pdf.Ln(2)

	section("Key Measurements")
	doc.keyMeasurements(record, "", 5)
	pdf.Ln(2)

	section("Clinical Recommendations")
	recommendations := benignRecommendations
	if record.IsMalignant() {
		recommendations = malignantRecommendations
	}
	for _, rec := range recommendations {
		doc.line(5, rec)
	}
	pdf.Ln(2)

	section("Patient Instructions")
	for _, inst := range patientInstructions {
		doc.line(5, inst)
	}
	return doc.bytes()
}
