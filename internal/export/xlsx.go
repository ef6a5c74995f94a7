package export

import (
	"bytes"
	"fmt"

	"github.com/kiranshivaraju/fineprint/pkg/models"
	"github.com/xuri/excelize/v2"
)

const (
	resultsSheet  = "Results"
	findingsSheet = "Findings"
)

// XLSX builds a workbook with a results sheet matching the CSV layout and a
// findings sheet with one row per finding.
func XLSX(job *models.Job) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", resultsSheet); err != nil {
		return nil, err
	}
	if err := writeRow(f, resultsSheet, 1, csvHeader); err != nil {
		return nil, err
	}
	for i, o := range job.Results {
		if err := writeRow(f, resultsSheet, i+2, row(o)); err != nil {
			return nil, err
		}
	}

	if _, err := f.NewSheet(findingsSheet); err != nil {
		return nil, err
	}
	header := []string{"URL", "Category", "Severity", "Title", "Confidence", "Excerpt", "Recommendation"}
	if err := writeRow(f, findingsSheet, 1, header); err != nil {
		return nil, err
	}
	line := 2
	for _, o := range job.Results {
		c, ok := o.(models.CompletedOutcome)
		if !ok {
			continue
		}
		for _, fd := range c.Findings {
			vals := []string{c.Document.URL, fd.Category, fd.Severity, fd.Title,
				fmt.Sprintf("%.2f", fd.ConfidenceScore), fd.TextExcerpt, fd.Recommendation}
			if err := writeRow(f, findingsSheet, line, vals); err != nil {
				return nil, err
			}
			line++
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("writing workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func writeRow(f *excelize.File, sheet string, rowNum int, values []string) error {
	for i, v := range values {
		cell, err := excelize.CoordinatesToCellName(i+1, rowNum)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, v); err != nil {
			return err
		}
	}
	return nil
}
