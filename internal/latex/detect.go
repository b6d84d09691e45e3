// Package latex shapes LLM-returned prose and LaTeX into canonical,
// $-delimited, mobile-readable strings.
package latex

import (
	"regexp"
	"strings"
)

// latexIndicators mark a string as containing LaTeX. The list is fixed;
// plain prose hits none of them and passes through untouched.
var latexIndicators = []string{
	`\frac`, `\sum`, `\int`, `\sqrt`, `\begin`, `\end`,
	"^", "_", "{", "}", `\`, `\left`, `\right`,
}

// commandWords are LaTeX command names excluded from human-word detection.
var commandWords = map[string]bool{
	"frac":  true,
	"sqrt":  true,
	"sum":   true,
	"begin": true,
	"left":  true,
	"right": true,
}

var (
	commandPattern   = regexp.MustCompile(`\\[a-zA-Z]+`)
	nonLetterPattern = regexp.MustCompile(`[^a-zA-Z\s]`)
)

// ContainsLaTeX reports whether text carries any LaTeX indicator.
func ContainsLaTeX(text string) bool {
	for _, ind := range latexIndicators {
		if strings.Contains(text, ind) {
			return true
		}
	}
	return false
}

// HasHumanWords reports whether text mixes prose with mathematics. After
// stripping commands and non-letter characters, one word of 5+ letters or
// two words of 4+ letters classifies the text as mixed.
func HasHumanWords(text string) bool {
	stripped := commandPattern.ReplaceAllString(text, " ")
	stripped = nonLetterPattern.ReplaceAllString(stripped, " ")

	long, medium := 0, 0
	for _, word := range strings.Fields(stripped) {
		if commandWords[strings.ToLower(word)] {
			continue
		}
		if len(word) >= 5 {
			long++
		}
		if len(word) >= 4 {
			medium++
		}
	}
	return long >= 1 || medium >= 2
}

// StageResult tags the outcome of a detection stage.
type StageResult int

const (
	// StageOK means the mechanical fixup pass is enough.
	StageOK StageResult = iota
	// StageEscalate means the text needs an LLM reformatting pass first.
	StageEscalate
)

// Classify decides whether text can be normalized mechanically or mixes
// human words into the mathematics and needs an LLM reformatting pass.
func Classify(text string) StageResult {
	if !ContainsLaTeX(text) {
		return StageOK
	}
	if HasHumanWords(text) {
		return StageEscalate
	}
	return StageOK
}
