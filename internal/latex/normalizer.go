package latex

import (
	"context"
	"fmt"
	"strings"

	"github.com/studylab/paperextract/internal/ai"
	"github.com/studylab/paperextract/internal/prompts"
)

// maxUnbrokenLen is the longest $-wrapped expression that renders on a phone
// screen without \newline breaks.
const maxUnbrokenLen = 40

// Normalizer turns LLM output into a single well-formed LaTeX-or-plain
// string. Plain prose passes through untouched; LaTeX gets the mechanical
// fixup pass, with escalation to the completion provider when heuristics
// detect mixed human text or an over-long unbroken expression. Escalation
// failures propagate so the caller's retry policy applies.
type Normalizer struct {
	provider ai.Provider
	pack     *prompts.Pack
}

// NewNormalizer creates a normalizer using the given provider for
// escalation calls.
func NewNormalizer(provider ai.Provider, pack *prompts.Pack) *Normalizer {
	return &Normalizer{provider: provider, pack: pack}
}

// Normalize runs detection, optional LLM reformatting, the mechanical fixup
// pass, and optional mobile line-break insertion.
func (n *Normalizer) Normalize(ctx context.Context, text string) (string, error) {
	if !ContainsLaTeX(text) {
		return text, nil
	}

	s := text
	if Classify(text) == StageEscalate {
		reformatted, err := n.complete(ctx, n.pack.ReformatMixed, text)
		if err != nil {
			return "", fmt.Errorf("reformat mixed text: %w", err)
		}
		s = reformatted
	}

	s = Fixup(s)
	return n.BreakForMobile(ctx, s)
}

// BreakForMobile asks the provider to insert \newline breaks when a wrapped
// expression is long and unbroken, then re-applies the delimiter fixups to
// its output.
func (n *Normalizer) BreakForMobile(ctx context.Context, s string) (string, error) {
	if !needsLineBreaks(s) {
		return s, nil
	}

	broken, err := n.complete(ctx, n.pack.MobileBreaks, s)
	if err != nil {
		return "", fmt.Errorf("insert line breaks: %w", err)
	}
	return Fixup(broken), nil
}

func needsLineBreaks(s string) bool {
	return strings.HasPrefix(s, "$") &&
		!strings.Contains(s, `\newline`) &&
		len(s) > maxUnbrokenLen
}

func (n *Normalizer) complete(ctx context.Context, tmpl prompts.Template, text string) (string, error) {
	resp, err := n.provider.Complete(ctx, ai.CompletionRequest{
		Messages: []ai.Message{
			{Role: "system", Content: tmpl.System},
			{Role: "user", Content: tmpl.Render(map[string]string{"text": text})},
		},
		Task:      ai.TaskNormalize,
		MaxTokens: 1024,
	})
	if err != nil {
		return "", err
	}
	if resp.Content == "" {
		// An unexpected response shape falls back to the input unmodified.
		return text, nil
	}
	return resp.Content, nil
}
