// Package export renders bulk job results in downloadable formats.
package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kiranshivaraju/fineprint/pkg/models"
)

// ErrUnsupportedFormat is returned for any format other than json, csv, pdf or xlsx.
var ErrUnsupportedFormat = errors.New("unsupported export format")

// Format is an export file format.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
	FormatPDF  Format = "pdf"
	FormatXLSX Format = "xlsx"
)

// ContentType returns the MIME type served for f.
func (f Format) ContentType() string {
	switch f {
	case FormatJSON:
		return "application/json"
	case FormatCSV:
		return "text/csv"
	case FormatPDF:
		// The pdf format is a plain-text report.
		return "text/plain; charset=utf-8"
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "application/octet-stream"
	}
}

// Render encodes job in the requested format.
func Render(job *models.Job, format Format) ([]byte, error) {
	switch format {
	case FormatJSON:
		return JSON(job)
	case FormatCSV:
		return CSV(job)
	case FormatPDF:
		return PDF(job), nil
	case FormatXLSX:
		return XLSX(job)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

// JSON dumps the whole job.
func JSON(job *models.Job) ([]byte, error) {
	return json.MarshalIndent(job, "", "  ")
}

var csvHeader = []string{"URL", "Title", "Document Type", "Status", "Risk Score", "Findings", "Error", "Processed At"}

// row flattens one outcome into the shared column layout.
func row(o models.AnalysisOutcome) []string {
	doc := o.Doc()
	switch v := o.(type) {
	case models.CompletedOutcome:
		return []string{doc.URL, doc.Title, doc.Detection.DocumentType, string(models.OutcomeCompleted),
			strconv.Itoa(v.RiskScore), strconv.Itoa(len(v.Findings)), "", v.ProcessedAt.UTC().Format(time.RFC3339)}
	case models.FailedOutcome:
		return []string{doc.URL, doc.Title, doc.Detection.DocumentType, string(models.OutcomeFailed),
			"", "0", v.Error, v.ProcessedAt.UTC().Format(time.RFC3339)}
	default:
		return []string{doc.URL, doc.Title, doc.Detection.DocumentType, string(o.Status()), "", "", "", ""}
	}
}

// CSV writes one row per result. Quoting follows RFC 4180 as encoding/csv
// applies it: a field is quoted only when it needs to be.
func CSV(job *models.Job) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(csvHeader); err != nil {
		return nil, err
	}
	for _, o := range job.Results {
		if err := w.Write(row(o)); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// PDF returns a plain-text report. It is not a rendered PDF document.
func PDF(job *models.Job) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "Fine Print Bulk Analysis Report\n")
	fmt.Fprintf(&b, "Job: %s\n", job.ID)
	if job.Name != "" {
		fmt.Fprintf(&b, "Name: %s\n", job.Name)
	}
	fmt.Fprintf(&b, "Status: %s\n", job.Status)
	fmt.Fprintf(&b, "Documents: %d\n", len(job.Documents))
	if s := job.Summary; s != nil {
		fmt.Fprintf(&b, "Successful: %d\nFailed: %d\nHigh risk documents: %d\nAverage risk score: %.1f\n",
			s.Successful, s.Failed, s.HighRiskDocuments, s.AverageRiskScore)
	}
	b.WriteString("\n")
	for i, o := range job.Results {
		switch v := o.(type) {
		case models.CompletedOutcome:
			fmt.Fprintf(&b, "%d. %s (%s) risk %d, %d findings\n", i+1, v.Document.Title, v.Document.URL, v.RiskScore, len(v.Findings))
		case models.FailedOutcome:
			fmt.Fprintf(&b, "%d. %s (%s) failed: %s\n", i+1, v.Document.Title, v.Document.URL, v.Error)
		}
	}
	return []byte(b.String())
}
