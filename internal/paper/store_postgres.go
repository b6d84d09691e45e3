package paper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const dbTimeout = 5 * time.Second

// PostgresStore is a PostgreSQL-backed Store implementation. Every ledger
// write and question insert is flushed on its own statement; the ledger is
// the only resumability mechanism, so durability beats throughput here.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	return &PostgresStore{pool: pool}, nil
}

const paperColumns = `id::text, user_id::text, subject, grade, year, term, status,
	 paper_file_id, memo_file_id, images, question_numbers, question_progress`

func (s *PostgresStore) CountInProgress(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM exam_papers WHERE status = $1`,
		string(StatusInProgress),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count in-progress papers: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) ListPending(ctx context.Context, subjectFilter string) ([]*ExamPaper, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT `+paperColumns+`
		 FROM exam_papers
		 WHERE status = $1
		   AND subject ILIKE '%' || $2 || '%'`,
		string(StatusPending),
		subjectFilter,
	)
	if err != nil {
		return nil, fmt.Errorf("query pending papers: %w", err)
	}
	defer rows.Close()

	var papers []*ExamPaper
	for rows.Next() {
		p, err := scanPaper(rows)
		if err != nil {
			return nil, err
		}
		papers = append(papers, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending papers: %w", err)
	}
	return papers, nil
}

func (s *PostgresStore) GetPaper(ctx context.Context, id string) (*ExamPaper, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT `+paperColumns+`
		 FROM exam_papers
		 WHERE id = $1::uuid
		 LIMIT 1`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("query paper: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("query paper: %w", err)
		}
		return nil, fmt.Errorf("paper %s: %w", id, ErrNotFound)
	}
	return scanPaper(rows)
}

func scanPaper(rows pgx.Rows) (*ExamPaper, error) {
	p := &ExamPaper{}
	var status string
	var paperFileID, memoFileID *string
	var imagesBytes, numbersBytes, progressBytes []byte

	if err := rows.Scan(
		&p.ID,
		&p.UserID,
		&p.Subject,
		&p.Grade,
		&p.Year,
		&p.Term,
		&status,
		&paperFileID,
		&memoFileID,
		&imagesBytes,
		&numbersBytes,
		&progressBytes,
	); err != nil {
		return nil, fmt.Errorf("scan paper: %w", err)
	}

	p.Status = PaperStatus(status)
	if paperFileID != nil {
		p.PaperFileID = *paperFileID
	}
	if memoFileID != nil {
		p.MemoFileID = *memoFileID
	}

	p.Images = map[string]string{}
	if len(imagesBytes) > 0 {
		if err := json.Unmarshal(imagesBytes, &p.Images); err != nil {
			return nil, fmt.Errorf("decode paper images: %w", err)
		}
	}
	if len(numbersBytes) > 0 {
		if err := json.Unmarshal(numbersBytes, &p.QuestionNumbers); err != nil {
			return nil, fmt.Errorf("decode question numbers: %w", err)
		}
	}
	p.QuestionProgress = map[string]ProgressRecord{}
	if len(progressBytes) > 0 {
		if err := json.Unmarshal(progressBytes, &p.QuestionProgress); err != nil {
			return nil, fmt.Errorf("decode question progress: %w", err)
		}
	}
	return p, nil
}

func (s *PostgresStore) SetPaperStatus(ctx context.Context, paperID string, status PaperStatus) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	cmd, err := s.pool.Exec(ctx,
		`UPDATE exam_papers SET status = $2, updated_at = NOW() WHERE id = $1::uuid`,
		paperID,
		string(status),
	)
	if err != nil {
		return fmt.Errorf("set paper status: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("paper %s: %w", paperID, ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) SaveProgress(ctx context.Context, paperID, number string, rec ProgressRecord) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now()
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal progress record: %w", err)
	}

	cmd, err := s.pool.Exec(ctx,
		`UPDATE exam_papers
		 SET question_progress = jsonb_set(
		   COALESCE(question_progress, '{}'::jsonb),
		   ARRAY[$2],
		   $3::jsonb,
		   true
		 ),
		 updated_at = NOW()
		 WHERE id = $1::uuid`,
		paperID,
		number,
		string(data),
	)
	if err != nil {
		return fmt.Errorf("save progress: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("paper %s: %w", paperID, ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) FindSubject(ctx context.Context, name string, grade int) (*Subject, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	sub := &Subject{}
	err := s.pool.QueryRow(ctx,
		`SELECT id::text, name, grade
		 FROM subjects
		 WHERE LOWER(name) = LOWER($1) AND grade = $2
		 LIMIT 1`,
		name,
		grade,
	).Scan(&sub.ID, &sub.Name, &sub.Grade)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("subject %q grade %d: %w", name, grade, ErrNotFound)
		}
		return nil, fmt.Errorf("find subject: %w", err)
	}
	return sub, nil
}

func (s *PostgresStore) QuestionExists(ctx context.Context, subjectID, text string, year int, term string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM questions
		   WHERE subject_id = $1::uuid AND question = $2 AND year = $3 AND term = $4
		 )`,
		subjectID,
		text,
		year,
		term,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check duplicate question: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) InsertQuestion(ctx context.Context, q *Question) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	options, err := json.Marshal(q.Options)
	if err != nil {
		return fmt.Errorf("marshal options: %w", err)
	}

	err = s.pool.QueryRow(ctx,
		`INSERT INTO questions (
		   question, type, context, answer, options, year, term, subject_id,
		   curriculum_tag, status, active, capturer_id, reviewer_id,
		   image_path, answer_image_path
		 )
		 VALUES ($1, $2, $3, $4, $5::jsonb, $6, $7, $8::uuid, $9, $10, $11,
		         $12, $13, $14, $15)
		 RETURNING id::text`,
		q.Text,
		string(q.Type),
		nullIfEmpty(q.Context),
		q.Answer,
		string(options),
		q.Year,
		q.Term,
		q.SubjectID,
		nullIfEmpty(q.CurriculumTag),
		q.Status,
		q.Active,
		nullIfEmpty(q.CapturerID),
		nullIfEmpty(q.ReviewerID),
		nullIfEmpty(q.ImagePath),
		nullIfEmpty(q.AnswerImagePath),
	).Scan(&q.ID)
	if err != nil {
		return fmt.Errorf("insert question: %w", err)
	}
	return nil
}

func nullIfEmpty(v string) any {
	if v == "" {
		return nil
	}
	return v
}
