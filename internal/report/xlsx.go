// Package report exports pipeline progress as an XLSX workbook, one sheet
// per paper, one row per ledger entry.
package report

import (
	"fmt"
	"sort"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/studylab/paperextract/internal/paper"
)

var header = []string{"Question", "Status", "Reason", "Retries", "Updated"}

// WriteProgress writes a progress workbook for the given papers to path.
// Ledger rows follow the paper's question-number order; entries for numbers
// no longer on the paper are appended alphabetically.
func WriteProgress(path string, papers []*paper.ExamPaper) error {
	if len(papers) == 0 {
		return fmt.Errorf("no papers to report")
	}

	f := excelize.NewFile()
	defer f.Close()

	used := make(map[string]bool, len(papers))
	for i, p := range papers {
		name := sheetName(p, i, used)
		if i == 0 {
			if err := f.SetSheetName("Sheet1", name); err != nil {
				return fmt.Errorf("rename sheet: %w", err)
			}
		} else {
			if _, err := f.NewSheet(name); err != nil {
				return fmt.Errorf("add sheet %s: %w", name, err)
			}
		}
		if err := writeSheet(f, name, p); err != nil {
			return err
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save report: %w", err)
	}
	return nil
}

func writeSheet(f *excelize.File, name string, p *paper.ExamPaper) error {
	for col, title := range header {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return fmt.Errorf("header cell: %w", err)
		}
		if err := f.SetCellValue(name, cell, title); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
	}

	row := 2
	for _, number := range ledgerOrder(p) {
		rec := p.QuestionProgress[number]
		values := []any{number, string(rec.Status), rec.Reason, rec.RetryCount, formatTime(rec.UpdatedAt)}
		for col, v := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, row)
			if err != nil {
				return fmt.Errorf("cell name: %w", err)
			}
			if err := f.SetCellValue(name, cell, v); err != nil {
				return fmt.Errorf("write row %d: %w", row, err)
			}
		}
		row++
	}
	return nil
}

// ledgerOrder lists the ledger keys in the paper's question-number order,
// then any orphaned keys sorted.
func ledgerOrder(p *paper.ExamPaper) []string {
	seen := make(map[string]bool, len(p.QuestionProgress))
	var ordered []string
	for _, number := range p.QuestionNumbers {
		if _, ok := p.QuestionProgress[number]; ok && !seen[number] {
			ordered = append(ordered, number)
			seen[number] = true
		}
	}
	var extra []string
	for number := range p.QuestionProgress {
		if !seen[number] {
			extra = append(extra, number)
		}
	}
	sort.Strings(extra)
	return append(ordered, extra...)
}

// sheetName builds a name under Excel's 31-character sheet limit. Papers
// sharing subject, year, and ID prefix would otherwise map to the same
// name, which NewSheet rejects, so repeats get the paper index appended.
func sheetName(p *paper.ExamPaper, i int, used map[string]bool) string {
	id := p.ID
	if len(id) > 8 {
		id = id[:8]
	}
	name := fmt.Sprintf("%s %d %s", p.Subject, p.Year, id)
	if len(name) > 31 {
		name = name[:31]
	}
	if name == "" {
		name = fmt.Sprintf("Paper %d", i+1)
	}
	if used[name] {
		suffix := fmt.Sprintf(" %d", i+1)
		if len(name)+len(suffix) > 31 {
			name = name[:31-len(suffix)]
		}
		name += suffix
	}
	used[name] = true
	return name
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
