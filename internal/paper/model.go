// Package paper implements the exam-paper question-extraction pipeline: the
// paper and question model, the per-question progress ledger, the store
// ports, and the processor that drives the LLM extraction sequence.
package paper

import "time"

// PaperStatus is the lifecycle state of an uploaded paper.
type PaperStatus string

const (
	StatusPending    PaperStatus = "pending"
	StatusInProgress PaperStatus = "in_progress"
	StatusDone       PaperStatus = "done"
)

// ProgressStatus is the per-question outcome recorded in the ledger.
type ProgressStatus string

const (
	ProgressDone     ProgressStatus = "Done"
	ProgressSkipped  ProgressStatus = "Skipped"
	ProgressRetrying ProgressStatus = "Retrying"
	ProgressFailed   ProgressStatus = "Failed"
)

// Terminal reports whether the status ends processing for a question.
func (s ProgressStatus) Terminal() bool {
	return s == ProgressDone || s == ProgressSkipped || s == ProgressFailed
}

// ProgressRecord is one ledger entry, keyed by question-number string on the
// paper. It is overwritten in place on every attempt and never removed; the
// ledger is the sole resumability mechanism across process restarts.
type ProgressRecord struct {
	Status     ProgressStatus `json:"status"`
	Reason     string         `json:"reason,omitempty"`
	RetryCount int            `json:"retry_count"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// ExamPaper is one uploaded paper+memo pair. PaperFileID and MemoFileID
// reference documents already uploaded to the completion provider;
// QuestionNumbers is populated by an upstream extraction step.
type ExamPaper struct {
	ID               string
	UserID           string
	Subject          string
	Grade            int
	Year             int
	Term             string
	Status           PaperStatus
	PaperFileID      string
	MemoFileID       string
	Images           map[string]string
	QuestionNumbers  []string
	QuestionProgress map[string]ProgressRecord
}

// Ready reports whether the upstream step has populated everything the
// pipeline needs. Papers that are not ready are skipped silently.
func (p *ExamPaper) Ready() bool {
	return p.PaperFileID != "" && p.MemoFileID != "" && len(p.QuestionNumbers) > 0
}

// Subject is the persisted subject a question belongs to.
type Subject struct {
	ID    string
	Name  string
	Grade int
}

// QuestionType distinguishes generated item kinds.
type QuestionType string

const (
	QuestionMultipleChoice QuestionType = "multiple_choice"
	QuestionTrueFalse      QuestionType = "true_false"
)

// trueFalseOptions is the fixed four-way set used for true/false items.
var trueFalseOptions = map[string]string{
	"option1": "True",
	"option2": "False",
	"option3": "Cannot be determined",
	"option4": "Not given",
}

// Question is one generated multiple-choice or true/false item. For
// multiple-choice items exactly one option equals Answer; the mapping from
// parsed distractors to option slots is positional, option4 being correct.
type Question struct {
	ID              string
	Text            string
	Type            QuestionType
	Context         string
	Answer          string
	Options         map[string]string
	Year            int
	Term            string
	SubjectID       string
	CurriculumTag   string
	Status          string
	Active          bool
	CapturerID      string
	ReviewerID      string
	ImagePath       string
	AnswerImagePath string
}
