// Package numbering provides pure helpers over the hierarchical question
// numbers found in exam papers, such as "1.2.3" and "4 (a)".
package numbering

import (
	"regexp"
	"strings"
)

var letteredSuffix = regexp.MustCompile(`(?i)\s*\([a-z]\)$`)

// IsLeaf reports whether number has no sub-question in all. A number is a
// parent when some other number in the set extends it with "." and a suffix.
func IsLeaf(number string, all []string) bool {
	prefix := number + "."
	for _, other := range all {
		if other == number {
			continue
		}
		if strings.HasPrefix(other, prefix) {
			return false
		}
	}
	return true
}

// HasLetteredChild reports whether the literal "<number> (a)" appears in all.
// Papers that letter their sub-questions slip past the dotted-prefix check,
// so the processor also skips numbers this flags.
func HasLetteredChild(number string, all []string) bool {
	child := number + " (a)"
	for _, other := range all {
		if other == child {
			return true
		}
	}
	return false
}

// ParentOf derives the parent of a question number: "4 (a)" becomes "4" and
// "1.2.3" becomes "1.2". A number with no structure is its own parent.
func ParentOf(number string) string {
	if letteredSuffix.MatchString(number) {
		return strings.TrimSpace(letteredSuffix.ReplaceAllString(number, ""))
	}
	if i := strings.LastIndex(number, "."); i >= 0 {
		return number[:i]
	}
	return number
}

// GrandparentOf derives the grandparent of a question number, or "" when the
// parent has no dotted structure left to climb.
func GrandparentOf(number string) string {
	parent := ParentOf(number)
	if !strings.Contains(parent, ".") {
		return ""
	}
	return ParentOf(parent)
}

// Leaves returns, in input order, the numbers from all that are leaves and
// have no lettered child.
func Leaves(all []string) []string {
	var leaves []string
	for _, n := range all {
		if IsLeaf(n, all) && !HasLetteredChild(n, all) {
			leaves = append(leaves, n)
		}
	}
	return leaves
}
