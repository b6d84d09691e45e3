// Package distractor parses the three labeled wrong answers an LLM returns
// for a multiple-choice question.
package distractor

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/studylab/paperextract/internal/latex"
)

var optionKeys = []string{"first_option", "second_option", "third_option"}

// primaryPatterns tolerate an optional leading/trailing $ or quote around
// each value; fallbackPatterns are looser and used only when the primary
// pass yields nothing at all.
var (
	primaryPatterns  = compilePatterns(true)
	fallbackPatterns = compilePatterns(false)
)

func compilePatterns(dollarAware bool) []*regexp.Regexp {
	guard := ""
	if dollarAware {
		guard = `["$]?`
	}
	patterns := make([]*regexp.Regexp, len(optionKeys))
	for i, key := range optionKeys {
		terminator := `$`
		if i+1 < len(optionKeys) {
			terminator = `(?:` + strings.Join(optionKeys[i+1:], "|") + `|$)`
		}
		patterns[i] = regexp.MustCompile(
			key + `\s*[:\-]*\s*` + guard + `(.+?)` + guard + `\s*` + terminator,
		)
	}
	return patterns
}

var (
	strayChars     = strings.NewReplacer("$", "", `"`, "")
	brokenTextCmd  = regexp.MustCompile(`\\ +text\{`)
	trailingBreaks = regexp.MustCompile(`\\newline.*$`)
	escapedPercent = regexp.MustCompile(`([0-9a-zA-Z])\\%`)
	decimalComma   = regexp.MustCompile(`(\d),(\d)`)
	whitespaceRun  = regexp.MustCompile(`\s+`)
)

// Parser turns a raw distractor response into cleaned option strings.
type Parser struct {
	norm *latex.Normalizer
}

// NewParser creates a parser using norm for the mobile line-break pass on
// wrapped options.
func NewParser(norm *latex.Normalizer) *Parser {
	return &Parser{norm: norm}
}

// Parse extracts up to three wrong answers from raw and appends the correct
// answer last. All values get the same cleanup, and all are $-wrapped only
// when the correct answer itself was wrapped. Fewer than three parsed
// distractors yield a shorter list; no placeholders are injected.
func (p *Parser) Parse(ctx context.Context, raw, correct string) ([]string, error) {
	wrapped := strings.HasPrefix(correct, "$") && strings.Count(correct, "$") >= 2

	flat := flatten(raw)
	values := extractValues(flat)

	options := make([]string, 0, len(values)+1)
	for _, v := range values {
		options = append(options, clean(v))
	}
	options = append(options, clean(correct))

	if !wrapped {
		return options, nil
	}

	for i, opt := range options {
		s, err := p.norm.BreakForMobile(ctx, "$"+opt+"$")
		if err != nil {
			return nil, fmt.Errorf("line-break option %d: %w", i+1, err)
		}
		options[i] = s
	}
	return options, nil
}

// flatten replaces literal \newline tokens with real newlines, then re-joins
// every line with single spaces.
func flatten(raw string) string {
	s := strings.ReplaceAll(raw, `\newline`, "\n")
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	return whitespaceRun.ReplaceAllString(strings.Join(lines, " "), " ")
}

func extractValues(flat string) []string {
	var values []string
	for _, re := range primaryPatterns {
		if m := re.FindStringSubmatch(flat); m != nil {
			values = append(values, m[1])
		}
	}
	if len(values) > 0 {
		return values
	}
	for _, re := range fallbackPatterns {
		if m := re.FindStringSubmatch(flat); m != nil {
			values = append(values, m[1])
		}
	}
	return values
}

// clean applies the per-value cleanup shared by distractors and the correct
// answer: stray $ and quote removal, \text spacing, trailing \newline
// remainders, escaped percent signs, and decimal commas.
func clean(v string) string {
	s := strayChars.Replace(v)
	s = brokenTextCmd.ReplaceAllString(s, `\text{`)
	s = trailingBreaks.ReplaceAllString(s, "")
	s = escapedPercent.ReplaceAllString(s, "$1%")
	s = decimalComma.ReplaceAllString(s, "$1.$2")
	return strings.TrimSpace(s)
}
