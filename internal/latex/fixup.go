package latex

import (
	"regexp"
	"strings"
)

var (
	doubleBackslash = regexp.MustCompile(`\\\\`)
	bareEq          = regexp.MustCompile(`(^|[^\\a-zA-Z])eq([^a-zA-Z]|$)`)
	nestedText      = regexp.MustCompile(`\\text\{\\text\{([^{}]*)\}\}`)
	strayOr         = regexp.MustCompile(`([^{ ]) or ([^} ])`)
	whitespaceRun   = regexp.MustCompile(`\s+`)

	delimiters = strings.NewReplacer(`\(`, "$", `\)`, "$", `\[`, "$", `\]`, "$")
)

// Fixup applies the mechanical normalization pass: explicit \newline markers,
// common broken-sequence repair, delimiter conversion, whitespace collapsing,
// and a single $...$ wrap. It is idempotent.
func Fixup(text string) string {
	s := strings.TrimSpace(text)
	if s == "" {
		return s
	}

	// Literal \\ line breaks become explicit \newline markers.
	s = doubleBackslash.ReplaceAllString(s, `\newline `)

	// Common LLM damage: a dropped backslash on \neq, doubly wrapped
	// \text{}, and a bare connective " or " inside math.
	s = bareEq.ReplaceAllString(s, `${1}\neq${2}`)
	for nestedText.MatchString(s) {
		s = nestedText.ReplaceAllString(s, `\text{$1}`)
	}
	s = strayOr.ReplaceAllString(s, `${1}\text{ or }${2}`)

	// \( \) \[ \] delimiter styles all become single $.
	s = delimiters.Replace(s)

	s = whitespaceRun.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)

	return wrapDollars(s)
}

// wrapDollars ensures the string sits inside exactly one pair of $
// delimiters. A string that already starts with $ and holds two or more $
// signals pre-wrapped content and is left alone.
func wrapDollars(s string) string {
	if strings.HasPrefix(s, "$") && strings.Count(s, "$") >= 2 {
		return s
	}
	s = strings.Trim(s, "$")
	return "$" + s + "$"
}
