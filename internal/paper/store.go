package paper

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/cases"
)

// ErrNotFound is returned by lookups that match nothing.
var ErrNotFound = errors.New("not found")

// Store persists papers, the progress ledger, and generated questions.
type Store interface {
	// CountInProgress returns how many papers are currently claimed. The
	// processor refuses to start while any paper is in progress.
	CountInProgress(ctx context.Context) (int, error)
	// ListPending returns pending papers whose subject matches the
	// case-insensitive substring filter; an empty filter matches all.
	ListPending(ctx context.Context, subjectFilter string) ([]*ExamPaper, error)
	// GetPaper fetches one paper by id.
	GetPaper(ctx context.Context, id string) (*ExamPaper, error)
	// SetPaperStatus transitions a paper and persists immediately.
	SetPaperStatus(ctx context.Context, paperID string, status PaperStatus) error
	// SaveProgress overwrites one ledger entry and persists immediately.
	SaveProgress(ctx context.Context, paperID, number string, rec ProgressRecord) error
	// FindSubject resolves a subject by (name, grade); ErrNotFound if absent.
	FindSubject(ctx context.Context, name string, grade int) (*Subject, error)
	// QuestionExists reports whether an identical question is already stored.
	QuestionExists(ctx context.Context, subjectID, text string, year int, term string) (bool, error)
	// InsertQuestion persists a new question.
	InsertQuestion(ctx context.Context, q *Question) error
}

var foldCaser = cases.Fold()

// subjectMatches mirrors the ILIKE substring semantics of the Postgres store
// using Unicode case folding.
func subjectMatches(subject, filter string) bool {
	if filter == "" {
		return true
	}
	return strings.Contains(foldCaser.String(subject), foldCaser.String(filter))
}

// MemoryStore is an in-memory Store implementation for tests and local runs.
type MemoryStore struct {
	mu        sync.RWMutex
	papers    map[string]*ExamPaper
	order     []string
	subjects  []Subject
	questions []*Question
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{papers: make(map[string]*ExamPaper)}
}

// AddPaper registers a paper. Papers list back in insertion order.
func (s *MemoryStore) AddPaper(p *ExamPaper) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.QuestionProgress == nil {
		p.QuestionProgress = make(map[string]ProgressRecord)
	}
	s.papers[p.ID] = p
	s.order = append(s.order, p.ID)
}

// AddSubject registers a subject for FindSubject lookups.
func (s *MemoryStore) AddSubject(sub Subject) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subjects = append(s.subjects, sub)
}

// Questions returns a copy of every inserted question.
func (s *MemoryStore) Questions() []*Question {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*Question{}, s.questions...)
}

func (s *MemoryStore) CountInProgress(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, p := range s.papers {
		if p.Status == StatusInProgress {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) ListPending(_ context.Context, subjectFilter string) ([]*ExamPaper, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*ExamPaper
	for _, id := range s.order {
		p := s.papers[id]
		if p.Status == StatusPending && subjectMatches(p.Subject, subjectFilter) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *MemoryStore) GetPaper(_ context.Context, id string) (*ExamPaper, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.papers[id]
	if !ok {
		return nil, fmt.Errorf("paper %s: %w", id, ErrNotFound)
	}
	return p, nil
}

func (s *MemoryStore) SetPaperStatus(_ context.Context, paperID string, status PaperStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.papers[paperID]
	if !ok {
		return fmt.Errorf("paper %s: %w", paperID, ErrNotFound)
	}
	p.Status = status
	return nil
}

func (s *MemoryStore) SaveProgress(_ context.Context, paperID, number string, rec ProgressRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.papers[paperID]
	if !ok {
		return fmt.Errorf("paper %s: %w", paperID, ErrNotFound)
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now()
	}
	if p.QuestionProgress == nil {
		p.QuestionProgress = make(map[string]ProgressRecord)
	}
	p.QuestionProgress[number] = rec
	return nil
}

func (s *MemoryStore) FindSubject(_ context.Context, name string, grade int) (*Subject, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	folded := foldCaser.String(name)
	for i := range s.subjects {
		if foldCaser.String(s.subjects[i].Name) == folded && s.subjects[i].Grade == grade {
			sub := s.subjects[i]
			return &sub, nil
		}
	}
	return nil, fmt.Errorf("subject %q grade %d: %w", name, grade, ErrNotFound)
}

func (s *MemoryStore) QuestionExists(_ context.Context, subjectID, text string, year int, term string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, q := range s.questions {
		if q.SubjectID == subjectID && q.Text == text && q.Year == year && q.Term == term {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) InsertQuestion(_ context.Context, q *Question) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.questions = append(s.questions, q)
	return nil
}
