package paper_test

import (
	"context"
	"errors"
	"testing"

	"github.com/studylab/paperextract/internal/paper"
)

func TestMemoryStore_ListPendingSubjectFilter(t *testing.T) {
	store := paper.NewMemoryStore()
	store.AddPaper(&paper.ExamPaper{ID: "a", Subject: "Mathematics", Status: paper.StatusPending})
	store.AddPaper(&paper.ExamPaper{ID: "b", Subject: "Physical Sciences", Status: paper.StatusPending})
	store.AddPaper(&paper.ExamPaper{ID: "c", Subject: "Mathematical Literacy", Status: paper.StatusDone})

	tests := []struct {
		name   string
		filter string
		want   []string
	}{
		{"empty filter matches all pending", "", []string{"a", "b"}},
		{"case-insensitive substring", "mathematics", []string{"a"}},
		{"partial match", "science", []string{"b"}},
		{"done papers excluded", "literacy", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			papers, err := store.ListPending(context.Background(), tt.filter)
			if err != nil {
				t.Fatalf("ListPending() error = %v", err)
			}
			var ids []string
			for _, p := range papers {
				ids = append(ids, p.ID)
			}
			if len(ids) != len(tt.want) {
				t.Fatalf("ListPending(%q) = %v, want %v", tt.filter, ids, tt.want)
			}
			for i := range tt.want {
				if ids[i] != tt.want[i] {
					t.Errorf("ListPending(%q)[%d] = %q, want %q", tt.filter, i, ids[i], tt.want[i])
				}
			}
		})
	}
}

func TestMemoryStore_CountInProgress(t *testing.T) {
	store := paper.NewMemoryStore()
	store.AddPaper(&paper.ExamPaper{ID: "a", Status: paper.StatusPending})

	n, err := store.CountInProgress(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("CountInProgress() = %d, want 0", n)
	}

	if err := store.SetPaperStatus(context.Background(), "a", paper.StatusInProgress); err != nil {
		t.Fatal(err)
	}
	n, err = store.CountInProgress(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("CountInProgress() = %d, want 1", n)
	}
}

func TestMemoryStore_SaveProgressOverwrites(t *testing.T) {
	store := paper.NewMemoryStore()
	store.AddPaper(&paper.ExamPaper{ID: "a", Status: paper.StatusPending})

	ctx := context.Background()
	if err := store.SaveProgress(ctx, "a", "1.1", paper.ProgressRecord{Status: paper.ProgressRetrying, RetryCount: 1}); err != nil {
		t.Fatal(err)
	}
	if err := store.SaveProgress(ctx, "a", "1.1", paper.ProgressRecord{Status: paper.ProgressDone, RetryCount: 1}); err != nil {
		t.Fatal(err)
	}

	p, err := store.GetPaper(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}
	rec := p.QuestionProgress["1.1"]
	if rec.Status != paper.ProgressDone {
		t.Errorf("ledger status = %q, want Done after overwrite", rec.Status)
	}
	if rec.UpdatedAt.IsZero() {
		t.Error("UpdatedAt not stamped")
	}
}

func TestMemoryStore_NotFound(t *testing.T) {
	store := paper.NewMemoryStore()

	if _, err := store.GetPaper(context.Background(), "missing"); !errors.Is(err, paper.ErrNotFound) {
		t.Errorf("GetPaper() error = %v, want ErrNotFound", err)
	}
	if err := store.SetPaperStatus(context.Background(), "missing", paper.StatusDone); !errors.Is(err, paper.ErrNotFound) {
		t.Errorf("SetPaperStatus() error = %v, want ErrNotFound", err)
	}
	if _, err := store.FindSubject(context.Background(), "Mathematics", 12); !errors.Is(err, paper.ErrNotFound) {
		t.Errorf("FindSubject() error = %v, want ErrNotFound", err)
	}
}

func TestMemoryStore_FindSubjectCaseInsensitive(t *testing.T) {
	store := paper.NewMemoryStore()
	store.AddSubject(paper.Subject{ID: "sub-1", Name: "Mathematics", Grade: 12})

	sub, err := store.FindSubject(context.Background(), "mathematics", 12)
	if err != nil {
		t.Fatalf("FindSubject() error = %v", err)
	}
	if sub.ID != "sub-1" {
		t.Errorf("FindSubject() = %+v, want sub-1", sub)
	}

	if _, err := store.FindSubject(context.Background(), "Mathematics", 11); !errors.Is(err, paper.ErrNotFound) {
		t.Errorf("FindSubject() wrong grade error = %v, want ErrNotFound", err)
	}
}

func TestMemoryStore_QuestionExists(t *testing.T) {
	store := paper.NewMemoryStore()
	ctx := context.Background()

	q := &paper.Question{Text: "What is 2+2?", SubjectID: "sub-1", Year: 2023, Term: "1"}
	if err := store.InsertQuestion(ctx, q); err != nil {
		t.Fatal(err)
	}

	exists, err := store.QuestionExists(ctx, "sub-1", "What is 2+2?", 2023, "1")
	if err != nil {
		t.Fatal(err)
	}
	if !exists {
		t.Error("QuestionExists() = false for an inserted question")
	}

	exists, err = store.QuestionExists(ctx, "sub-1", "What is 2+2?", 2024, "1")
	if err != nil {
		t.Fatal(err)
	}
	if exists {
		t.Error("QuestionExists() = true for a different year")
	}
}

func TestBroadcastSink_FanOut(t *testing.T) {
	sink := paper.NewBroadcastSink()
	ch, cancel := sink.Subscribe()
	defer cancel()

	if err := sink.Publish(paper.Event{PaperID: "a", EventType: "paper_claimed"}); err != nil {
		t.Fatal(err)
	}

	select {
	case ev := <-ch:
		if ev.EventType != "paper_claimed" {
			t.Errorf("event type = %q", ev.EventType)
		}
	default:
		t.Fatal("no event delivered to subscriber")
	}
}

func TestBroadcastSink_CancelIsIdempotent(t *testing.T) {
	sink := paper.NewBroadcastSink()
	_, cancel := sink.Subscribe()
	cancel()
	cancel()

	if err := sink.Publish(paper.Event{EventType: "paper_done"}); err != nil {
		t.Fatalf("Publish() after cancel error = %v", err)
	}
}
