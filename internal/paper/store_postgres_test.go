package paper_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/studylab/paperextract/internal/paper"
)

const testSchema = `
CREATE TABLE subjects (
	id    UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	name  TEXT NOT NULL,
	grade INT  NOT NULL
);

CREATE TABLE exam_papers (
	id                UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	user_id           UUID NOT NULL DEFAULT gen_random_uuid(),
	subject           TEXT NOT NULL,
	grade             INT  NOT NULL,
	year              INT  NOT NULL,
	term              TEXT NOT NULL,
	status            TEXT NOT NULL DEFAULT 'pending',
	paper_file_id     TEXT,
	memo_file_id      TEXT,
	images            JSONB,
	question_numbers  JSONB,
	question_progress JSONB,
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE questions (
	id                UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	question          TEXT NOT NULL,
	type              TEXT NOT NULL,
	context           TEXT,
	answer            TEXT NOT NULL,
	options           JSONB NOT NULL,
	year              INT  NOT NULL,
	term              TEXT NOT NULL,
	subject_id        UUID NOT NULL REFERENCES subjects(id),
	curriculum_tag    TEXT,
	status            TEXT NOT NULL,
	active            BOOLEAN NOT NULL,
	capturer_id       TEXT,
	reviewer_id       TEXT,
	image_path        TEXT,
	answer_image_path TEXT
);
`

func newPostgresStore(t *testing.T) (*paper.PostgresStore, *pgxpool.Pool) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container-backed store test in short mode")
	}

	ctx := context.Background()
	ctr, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("paperextract"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		tcpostgres.BasicWaitStrategies(),
	)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(ctr); err != nil {
			t.Logf("terminate container: %v", err)
		}
	})

	connStr, err := ctr.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("connection string: %v", err)
	}
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)

	if _, err := pool.Exec(ctx, testSchema); err != nil {
		t.Fatalf("create schema: %v", err)
	}

	store, err := paper.NewPostgresStore(pool)
	if err != nil {
		t.Fatal(err)
	}
	return store, pool
}

func seedPaper(t *testing.T, pool *pgxpool.Pool, subject string, status paper.PaperStatus) string {
	t.Helper()
	var id string
	err := pool.QueryRow(context.Background(),
		`INSERT INTO exam_papers (subject, grade, year, term, status, paper_file_id, memo_file_id, question_numbers)
		 VALUES ($1, 12, 2023, '1', $2, 'file-paper', 'file-memo', '["1","1.1"]'::jsonb)
		 RETURNING id::text`,
		subject,
		string(status),
	).Scan(&id)
	if err != nil {
		t.Fatalf("seed paper: %v", err)
	}
	return id
}

func TestPostgresStore_PaperLifecycle(t *testing.T) {
	store, pool := newPostgresStore(t)
	ctx := context.Background()

	id := seedPaper(t, pool, "Mathematics", paper.StatusPending)
	seedPaper(t, pool, "Physical Sciences", paper.StatusPending)

	papers, err := store.ListPending(ctx, "mathematics")
	if err != nil {
		t.Fatalf("ListPending() error = %v", err)
	}
	if len(papers) != 1 || papers[0].ID != id {
		t.Fatalf("ListPending() = %v, want the mathematics paper only", papers)
	}
	p := papers[0]
	if !p.Ready() {
		t.Errorf("seeded paper not ready: %+v", p)
	}
	if len(p.QuestionNumbers) != 2 {
		t.Errorf("question numbers = %v, want 2 entries", p.QuestionNumbers)
	}

	if err := store.SetPaperStatus(ctx, id, paper.StatusInProgress); err != nil {
		t.Fatalf("SetPaperStatus() error = %v", err)
	}
	n, err := store.CountInProgress(ctx)
	if err != nil {
		t.Fatalf("CountInProgress() error = %v", err)
	}
	if n != 1 {
		t.Errorf("CountInProgress() = %d, want 1", n)
	}

	rec := paper.ProgressRecord{
		Status:     paper.ProgressRetrying,
		Reason:     "model unavailable",
		RetryCount: 1,
		UpdatedAt:  time.Now().UTC(),
	}
	if err := store.SaveProgress(ctx, id, "1.1", rec); err != nil {
		t.Fatalf("SaveProgress() error = %v", err)
	}
	rec.Status = paper.ProgressDone
	rec.Reason = ""
	if err := store.SaveProgress(ctx, id, "1.1", rec); err != nil {
		t.Fatalf("SaveProgress() overwrite error = %v", err)
	}

	got, err := store.GetPaper(ctx, id)
	if err != nil {
		t.Fatalf("GetPaper() error = %v", err)
	}
	ledger := got.QuestionProgress["1.1"]
	if ledger.Status != paper.ProgressDone {
		t.Errorf("ledger status = %q, want Done after overwrite", ledger.Status)
	}
	if ledger.RetryCount != 1 {
		t.Errorf("ledger retry count = %d, want 1", ledger.RetryCount)
	}
}

func TestPostgresStore_SubjectsAndQuestions(t *testing.T) {
	store, pool := newPostgresStore(t)
	ctx := context.Background()

	var subjectID string
	err := pool.QueryRow(ctx,
		`INSERT INTO subjects (name, grade) VALUES ('Mathematics', 12) RETURNING id::text`,
	).Scan(&subjectID)
	if err != nil {
		t.Fatalf("seed subject: %v", err)
	}

	sub, err := store.FindSubject(ctx, "mathematics", 12)
	if err != nil {
		t.Fatalf("FindSubject() error = %v", err)
	}
	if sub.ID != subjectID {
		t.Errorf("FindSubject() id = %q, want %q", sub.ID, subjectID)
	}
	if _, err := store.FindSubject(ctx, "mathematics", 11); !errors.Is(err, paper.ErrNotFound) {
		t.Errorf("FindSubject() wrong grade error = %v, want ErrNotFound", err)
	}

	q := &paper.Question{
		Text:      "What is 2+2?",
		Type:      paper.QuestionMultipleChoice,
		Answer:    "4",
		Options:   map[string]string{"option1": "3", "option2": "5", "option3": "6", "option4": "4"},
		Year:      2023,
		Term:      "1",
		SubjectID: subjectID,
		Status:    "new",
		Active:    true,
	}
	if err := store.InsertQuestion(ctx, q); err != nil {
		t.Fatalf("InsertQuestion() error = %v", err)
	}
	if q.ID == "" {
		t.Error("InsertQuestion() did not populate the id")
	}

	exists, err := store.QuestionExists(ctx, subjectID, "What is 2+2?", 2023, "1")
	if err != nil {
		t.Fatalf("QuestionExists() error = %v", err)
	}
	if !exists {
		t.Error("QuestionExists() = false for an inserted question")
	}
	exists, err = store.QuestionExists(ctx, subjectID, "What is 2+2?", 2024, "1")
	if err != nil {
		t.Fatalf("QuestionExists() error = %v", err)
	}
	if exists {
		t.Error("QuestionExists() = true for a different year")
	}
}

func TestPostgresStore_NotFound(t *testing.T) {
	store, _ := newPostgresStore(t)
	ctx := context.Background()

	const missing = "00000000-0000-0000-0000-000000000000"
	if _, err := store.GetPaper(ctx, missing); !errors.Is(err, paper.ErrNotFound) {
		t.Errorf("GetPaper() error = %v, want ErrNotFound", err)
	}
	if err := store.SetPaperStatus(ctx, missing, paper.StatusDone); !errors.Is(err, paper.ErrNotFound) {
		t.Errorf("SetPaperStatus() error = %v, want ErrNotFound", err)
	}
	if err := store.SaveProgress(ctx, missing, "1.1", paper.ProgressRecord{Status: paper.ProgressDone}); !errors.Is(err, paper.ErrNotFound) {
		t.Errorf("SaveProgress() error = %v, want ErrNotFound", err)
	}
}
