package paper

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/studylab/paperextract/internal/ai"
	"github.com/studylab/paperextract/internal/distractor"
	"github.com/studylab/paperextract/internal/latex"
	"github.com/studylab/paperextract/internal/numbering"
	"github.com/studylab/paperextract/internal/prompts"
)

// RetryPolicy controls the per-leaf retry loop. MaxAttempts counts total
// attempts, so MaxAttempts=2 means one retry after the first failure. With
// Enabled false every leaf gets exactly one attempt.
type RetryPolicy struct {
	Enabled     bool
	MaxAttempts int
}

// ProcessorConfig wires the processor's collaborators. Store, Provider,
// Normalizer, Distractors and Prompts are required; the rest default.
type ProcessorConfig struct {
	Store       Store
	Provider    ai.Provider
	Normalizer  *latex.Normalizer
	Distractors *distractor.Parser
	Prompts     *prompts.Pack
	Events      EventSink

	// SubjectFilter restricts pending selection to papers whose subject
	// contains the substring, case-insensitively. Empty matches all.
	SubjectFilter string
	// NumberFilter, when set, restricts processing to one question number.
	NumberFilter string

	Retry RetryPolicy

	// Sleep and Now are injectable for tests.
	Sleep func(time.Duration)
	Now   func() time.Time
}

// Processor drives the extraction pipeline over pending papers. It is
// single-threaded by design: one paper at a time, one leaf at a time, every
// ledger write flushed before the next LLM call.
type Processor struct {
	cfg ProcessorConfig
}

// NewProcessor validates the config and applies defaults.
func NewProcessor(cfg ProcessorConfig) (*Processor, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.Provider == nil {
		return nil, fmt.Errorf("provider is required")
	}
	if cfg.Normalizer == nil {
		return nil, fmt.Errorf("normalizer is required")
	}
	if cfg.Distractors == nil {
		return nil, fmt.Errorf("distractor parser is required")
	}
	if cfg.Prompts == nil {
		return nil, fmt.Errorf("prompt pack is required")
	}
	if cfg.Events == nil {
		cfg.Events = NopSink{}
	}
	if cfg.Retry.Enabled && cfg.Retry.MaxAttempts < 2 {
		cfg.Retry.MaxAttempts = 2
	}
	if cfg.Sleep == nil {
		cfg.Sleep = time.Sleep
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Processor{cfg: cfg}, nil
}

// Run executes one pass: admission check, pending selection, then each ready
// paper end to end. Leaf-level failures become ledger state; only store and
// claim errors propagate.
func (p *Processor) Run(ctx context.Context) error {
	inProgress, err := p.cfg.Store.CountInProgress(ctx)
	if err != nil {
		return fmt.Errorf("admission check: %w", err)
	}
	if inProgress > 0 {
		slog.Info("a paper is already in progress, skipping this pass",
			"in_progress", inProgress)
		return nil
	}

	papers, err := p.cfg.Store.ListPending(ctx, p.cfg.SubjectFilter)
	if err != nil {
		return fmt.Errorf("list pending papers: %w", err)
	}

	for _, paper := range papers {
		if !paper.Ready() {
			slog.Debug("paper not ready, skipping",
				"paper_id", paper.ID,
				"subject", paper.Subject)
			continue
		}
		if err := p.processPaper(ctx, paper); err != nil {
			return err
		}
	}
	return nil
}

func (p *Processor) processPaper(ctx context.Context, paper *ExamPaper) error {
	if err := p.cfg.Store.SetPaperStatus(ctx, paper.ID, StatusInProgress); err != nil {
		return fmt.Errorf("claim paper %s: %w", paper.ID, err)
	}
	p.publish(Event{PaperID: paper.ID, EventType: "paper_claimed"})
	slog.Info("processing paper",
		"paper_id", paper.ID,
		"subject", paper.Subject,
		"grade", paper.Grade,
		"questions", len(paper.QuestionNumbers))

	for _, number := range paper.QuestionNumbers {
		if !numbering.IsLeaf(number, paper.QuestionNumbers) {
			continue
		}
		if numbering.HasLetteredChild(number, paper.QuestionNumbers) {
			continue
		}
		if p.cfg.NumberFilter != "" && number != p.cfg.NumberFilter {
			continue
		}
		rec, attempted := paper.QuestionProgress[number]
		if attempted && rec.Status.Terminal() {
			continue
		}
		if err := p.processLeaf(ctx, paper, number, rec.RetryCount); err != nil {
			return err
		}
	}

	if err := p.cfg.Store.SetPaperStatus(ctx, paper.ID, StatusDone); err != nil {
		return fmt.Errorf("finish paper %s: %w", paper.ID, err)
	}
	p.publish(Event{PaperID: paper.ID, EventType: "paper_done"})
	slog.Info("paper done", "paper_id", paper.ID)
	return nil
}

// processLeaf runs the attempt loop for one leaf. Attempt errors never
// propagate; they become Retrying or Failed ledger entries. Only ledger-write
// failures return an error.
func (p *Processor) processLeaf(ctx context.Context, paper *ExamPaper, number string, startCount int) error {
	maxAttempts := 1
	if p.cfg.Retry.Enabled {
		maxAttempts = p.cfg.Retry.MaxAttempts
	}

	for attempt := startCount; ; attempt++ {
		err := p.attemptExtraction(ctx, paper, number, attempt)
		if err == nil {
			return nil
		}
		slog.Warn("extraction attempt failed",
			"paper_id", paper.ID,
			"number", number,
			"attempt", attempt+1,
			"error", err)

		if attempt < maxAttempts-1 {
			rec := ProgressRecord{
				Status:     ProgressRetrying,
				Reason:     err.Error(),
				RetryCount: attempt + 1,
			}
			if werr := p.writeProgress(ctx, paper, number, rec); werr != nil {
				return werr
			}
			p.cfg.Sleep(time.Duration(1<<attempt) * time.Second)
			continue
		}

		reason := err.Error()
		if p.cfg.Retry.Enabled {
			reason = "Max retries reached: " + reason
		}
		rec := ProgressRecord{
			Status:     ProgressFailed,
			Reason:     reason,
			RetryCount: attempt,
		}
		return p.writeProgress(ctx, paper, number, rec)
	}
}

// Artifacts of source exam formatting stripped from extracted text: trailing
// bracketed mark counts and spelled-out sub-question counts.
var (
	trailingMarks  = regexp.MustCompile(`\s*\(\d+\)\s*$`)
	bannedNumerals = regexp.MustCompile(`\b(TWO|THREE|FOUR|FIVE|SIX)\b`)
)

func cleanExtracted(s string) string {
	s = trailingMarks.ReplaceAllString(s, "")
	s = bannedNumerals.ReplaceAllString(s, "")
	return strings.Join(strings.Fields(s), " ")
}

// attemptExtraction is one full attempt for one leaf: question extraction,
// memo answer extraction, distractor generation, duplicate check, insert.
func (p *Processor) attemptExtraction(ctx context.Context, paper *ExamPaper, number string, attempt int) error {
	parent := numbering.ParentOf(number)
	grandparent := numbering.GrandparentOf(number)

	payload, err := p.extractQuestion(ctx, paper, number, parent, grandparent)
	if err != nil {
		return err
	}

	questionText := cleanExtracted(payload[number])
	if questionText == "" {
		return fmt.Errorf("question %s missing from extraction response", number)
	}
	var contextParts []string
	if grandparent != "" && payload[grandparent] != "" {
		contextParts = append(contextParts, cleanExtracted(payload[grandparent]))
	}
	if parent != number {
		parentText := cleanExtracted(payload[parent])
		if parentText == "" {
			return fmt.Errorf("parent %s missing from extraction response", parent)
		}
		contextParts = append(contextParts, parentText)
	}

	questionText, err = p.cfg.Normalizer.Normalize(ctx, questionText)
	if err != nil {
		return fmt.Errorf("normalize question: %w", err)
	}
	contextText := strings.Join(contextParts, " ")
	if contextText != "" {
		contextText, err = p.cfg.Normalizer.Normalize(ctx, contextText)
		if err != nil {
			return fmt.Errorf("normalize context: %w", err)
		}
	}

	answer, err := p.extractAnswer(ctx, paper, number)
	if err != nil {
		return err
	}
	normAnswer, err := p.cfg.Normalizer.Normalize(ctx, answer)
	if err != nil {
		return fmt.Errorf("normalize answer: %w", err)
	}

	qType, options, answerText, err := p.buildOptions(ctx, questionText, answer, normAnswer)
	if err != nil {
		return err
	}

	subject, err := p.cfg.Store.FindSubject(ctx, paper.Subject, paper.Grade)
	if err != nil {
		return fmt.Errorf("resolve subject: %w", err)
	}

	exists, err := p.cfg.Store.QuestionExists(ctx, subject.ID, questionText, paper.Year, paper.Term)
	if err != nil {
		return fmt.Errorf("duplicate check: %w", err)
	}
	if exists {
		return p.writeProgress(ctx, paper, number, ProgressRecord{
			Status:     ProgressSkipped,
			Reason:     "Duplicate question found",
			RetryCount: attempt,
		})
	}

	q := &Question{
		Text:            questionText,
		Type:            qType,
		Context:         contextText,
		Answer:          answerText,
		Options:         options,
		Year:            paper.Year,
		Term:            paper.Term,
		SubjectID:       subject.ID,
		Status:          "new",
		Active:          true,
		CapturerID:      paper.UserID,
		ReviewerID:      paper.UserID,
		ImagePath:       paper.Images[number],
		AnswerImagePath: paper.Images[number+" answer"],
	}
	if err := p.cfg.Store.InsertQuestion(ctx, q); err != nil {
		return fmt.Errorf("insert question: %w", err)
	}

	return p.writeProgress(ctx, paper, number, ProgressRecord{
		Status:     ProgressDone,
		RetryCount: attempt,
	})
}

func (p *Processor) extractQuestion(ctx context.Context, paper *ExamPaper, number, parent, grandparent string) (map[string]string, error) {
	grandparentClause := ""
	if grandparent != "" {
		grandparentClause = " and of its grandparent question " + grandparent
	}
	tmpl := p.cfg.Prompts.ExtractQuestion
	resp, err := p.cfg.Provider.Complete(ctx, ai.CompletionRequest{
		Messages: []ai.Message{
			{Role: "system", Content: tmpl.System},
			{Role: "user", Content: tmpl.Render(map[string]string{
				"number":             number,
				"parent":             parent,
				"grandparent_clause": grandparentClause,
			}), FileID: paper.PaperFileID},
		},
		Task:      ai.TaskExtractQuestion,
		MaxTokens: 2048,
	})
	if err != nil {
		return nil, fmt.Errorf("extract question %s: %w", number, err)
	}

	raw := stripFences(resp.Content)
	if err := prompts.ValidateQuestionPayload(raw); err != nil {
		return nil, fmt.Errorf("question %s response: %w", number, err)
	}
	var payload map[string]string
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, fmt.Errorf("decode question %s response: %w", number, err)
	}
	return payload, nil
}

// extractAnswer returns the memo answer for a question. The calculations
// field is schema-required so a truncated response fails the attempt, but
// only the answer is stored.
func (p *Processor) extractAnswer(ctx context.Context, paper *ExamPaper, number string) (string, error) {
	tmpl := p.cfg.Prompts.ExtractAnswer
	resp, err := p.cfg.Provider.Complete(ctx, ai.CompletionRequest{
		Messages: []ai.Message{
			{Role: "system", Content: tmpl.System},
			{Role: "user", Content: tmpl.Render(map[string]string{
				"number": number,
			}), FileID: paper.MemoFileID},
		},
		Task:      ai.TaskExtractAnswer,
		MaxTokens: 2048,
	})
	if err != nil {
		return "", fmt.Errorf("extract answer %s: %w", number, err)
	}

	raw := stripFences(resp.Content)
	if err := prompts.ValidateAnswerPayload(raw); err != nil {
		return "", fmt.Errorf("answer %s response: %w", number, err)
	}
	var payload struct {
		Answer string `json:"answer"`
	}
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return "", fmt.Errorf("decode answer %s response: %w", number, err)
	}
	if payload.Answer == "" {
		return "", fmt.Errorf("answer %s missing from memo response", number)
	}
	return payload.Answer, nil
}

// buildOptions produces the option1..option4 map and the answer to store.
// True/false answers use the fixed option set with no distractor call;
// everything else gets three generated distractors, with the correct answer
// always in option4. The returned answer is the same cleaned value that
// lands in the options, so exactly one option equals it.
func (p *Processor) buildOptions(ctx context.Context, question, rawAnswer, normAnswer string) (QuestionType, map[string]string, string, error) {
	switch strings.ToLower(strings.TrimSpace(rawAnswer)) {
	case "true", "false":
		options := make(map[string]string, len(trueFalseOptions))
		for k, v := range trueFalseOptions {
			options[k] = v
		}
		answer := trueFalseOptions["option1"]
		if strings.EqualFold(strings.TrimSpace(rawAnswer), "false") {
			answer = trueFalseOptions["option2"]
		}
		return QuestionTrueFalse, options, answer, nil
	}

	styleClause := "plain text, no LaTeX delimiters"
	if normAnswer != rawAnswer || latex.ContainsLaTeX(rawAnswer) {
		styleClause = "LaTeX wrapped in a single pair of $ delimiters"
	}

	tmpl := p.cfg.Prompts.Distractors
	resp, err := p.cfg.Provider.Complete(ctx, ai.CompletionRequest{
		Messages: []ai.Message{
			{Role: "system", Content: tmpl.System},
			{Role: "user", Content: tmpl.Render(map[string]string{
				"question":     question,
				"answer":       normAnswer,
				"style_clause": styleClause,
			})},
		},
		Task:      ai.TaskDistractors,
		MaxTokens: 1024,
	})
	if err != nil {
		return "", nil, "", fmt.Errorf("generate distractors: %w", err)
	}

	parsed, err := p.cfg.Distractors.Parse(ctx, resp.Content, normAnswer)
	if err != nil {
		return "", nil, "", fmt.Errorf("parse distractors: %w", err)
	}
	if len(parsed) != 4 {
		return "", nil, "", fmt.Errorf("parsed %d distractor options, want 4", len(parsed))
	}
	return QuestionMultipleChoice, map[string]string{
		"option1": parsed[0],
		"option2": parsed[1],
		"option3": parsed[2],
		"option4": parsed[3],
	}, parsed[3], nil
}

// writeProgress flushes one ledger entry and mirrors it to the event sink,
// keeping the in-memory paper in sync for later skip checks.
func (p *Processor) writeProgress(ctx context.Context, paper *ExamPaper, number string, rec ProgressRecord) error {
	rec.UpdatedAt = p.cfg.Now()
	if err := p.cfg.Store.SaveProgress(ctx, paper.ID, number, rec); err != nil {
		return fmt.Errorf("save progress for %s: %w", number, err)
	}
	if paper.QuestionProgress == nil {
		paper.QuestionProgress = make(map[string]ProgressRecord)
	}
	paper.QuestionProgress[number] = rec

	p.publish(Event{
		PaperID:   paper.ID,
		Number:    number,
		EventType: "question_progress",
		Data: map[string]any{
			"status":      string(rec.Status),
			"reason":      rec.Reason,
			"retry_count": rec.RetryCount,
		},
	})
	return nil
}

func (p *Processor) publish(event Event) {
	event.CreatedAt = p.cfg.Now()
	if err := p.cfg.Events.Publish(event); err != nil {
		slog.Warn("publish event failed",
			"event_type", event.EventType,
			"error", err)
	}
}

var fencedBlock = regexp.MustCompile("(?s)^```(?:json)?\\s*(.*?)\\s*```$")

// stripFences unwraps a markdown code fence some models insist on adding
// around JSON output.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if m := fencedBlock.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	return s
}
