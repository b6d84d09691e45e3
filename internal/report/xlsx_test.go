package report_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/studylab/paperextract/internal/paper"
	"github.com/studylab/paperextract/internal/report"
)

func TestWriteProgress(t *testing.T) {
	updated := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	p := &paper.ExamPaper{
		ID:              "3f8a6c2e-0000-0000-0000-000000000000",
		Subject:         "Mathematics",
		Grade:           12,
		Year:            2023,
		Term:            "1",
		QuestionNumbers: []string{"1", "1.1", "1.2"},
		QuestionProgress: map[string]paper.ProgressRecord{
			"1.1": {Status: paper.ProgressDone, UpdatedAt: updated},
			"1.2": {Status: paper.ProgressFailed, Reason: "Max retries reached: model unavailable", RetryCount: 1, UpdatedAt: updated},
		},
	}

	path := filepath.Join(t.TempDir(), "progress.xlsx")
	if err := report.WriteProgress(path, []*paper.ExamPaper{p}); err != nil {
		t.Fatalf("WriteProgress() error = %v", err)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("reopen workbook: %v", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) != 1 {
		t.Fatalf("workbook has %d sheets, want 1: %v", len(sheets), sheets)
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		t.Fatalf("read rows: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("sheet has %d rows, want header + 2 entries", len(rows))
	}
	if rows[0][0] != "Question" || rows[0][1] != "Status" {
		t.Errorf("header = %v", rows[0])
	}
	if rows[1][0] != "1.1" || rows[1][1] != "Done" {
		t.Errorf("row 1 = %v, want ledger order to follow question numbers", rows[1])
	}
	if rows[2][0] != "1.2" || rows[2][1] != "Failed" {
		t.Errorf("row 2 = %v", rows[2])
	}
	if rows[2][2] != "Max retries reached: model unavailable" {
		t.Errorf("failure reason = %q", rows[2][2])
	}
}

func TestWriteProgress_MultiplePapers(t *testing.T) {
	a := &paper.ExamPaper{ID: "aaaa1111", Subject: "Mathematics", Year: 2023}
	b := &paper.ExamPaper{ID: "bbbb2222", Subject: "Physical Sciences", Year: 2024}

	path := filepath.Join(t.TempDir(), "progress.xlsx")
	if err := report.WriteProgress(path, []*paper.ExamPaper{a, b}); err != nil {
		t.Fatalf("WriteProgress() error = %v", err)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("reopen workbook: %v", err)
	}
	defer f.Close()

	if n := len(f.GetSheetList()); n != 2 {
		t.Errorf("workbook has %d sheets, want 2", n)
	}
}

func TestWriteProgress_DuplicateSheetNames(t *testing.T) {
	a := &paper.ExamPaper{ID: "3f8a6c2e-1111", Subject: "Mathematics", Year: 2023}
	b := &paper.ExamPaper{ID: "3f8a6c2e-2222", Subject: "Mathematics", Year: 2023}

	path := filepath.Join(t.TempDir(), "progress.xlsx")
	if err := report.WriteProgress(path, []*paper.ExamPaper{a, b}); err != nil {
		t.Fatalf("WriteProgress() error = %v", err)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("reopen workbook: %v", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) != 2 {
		t.Fatalf("workbook has %d sheets, want 2: %v", len(sheets), sheets)
	}
	if sheets[0] == sheets[1] {
		t.Errorf("sheet names collide: %q", sheets[0])
	}
}

func TestWriteProgress_NoPapers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "progress.xlsx")
	if err := report.WriteProgress(path, nil); err == nil {
		t.Error("WriteProgress() with no papers succeeded, want error")
	}
}
