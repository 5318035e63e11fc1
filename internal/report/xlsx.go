// Package report renders quiz analysis tables.
package report

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"quizzr-service/internal/domain"
)

const sheet = "Analysis"

var header = []any{"Student ID", "Name", "Marks", "Total", "Completed In (s)", "Submitted At"}

// XLSXWriter writes one row per Response Record. Unsubmitted attempts have
// empty marks and timing cells.
type XLSXWriter struct{}

func NewXLSXWriter() XLSXWriter {
	return XLSXWriter{}
}

func (XLSXWriter) WriteAnalysis(w io.Writer, quiz domain.Quiz, responses []domain.Response) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	total := quiz.TotalMarks()
	for i, r := range responses {
		row := []any{r.StudentID, r.Name, "", total, "", ""}
		if r.Marks != nil {
			row[2] = *r.Marks
		}
		if r.CompletedIn != nil {
			row[4] = *r.CompletedIn
		}
		if r.SubmittedAt != nil {
			row[5] = r.SubmittedAt.UTC().Format(time.RFC3339)
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	return f.Write(w)
}
