// Package prompts holds the per-stage prompt templates used by the
// extraction pipeline and the JSON schemas its responses must satisfy.
// Packs can be overridden from YAML files on disk; compiled-in defaults
// cover the "standard" and "strict" styles.
package prompts

import "strings"

// Template is a system/user prompt pair. User prompts carry {{name}}
// placeholders filled by Render.
type Template struct {
	System string `yaml:"system"`
	User   string `yaml:"user"`
}

// Render substitutes {{key}} placeholders in the user prompt.
func (t Template) Render(vars map[string]string) string {
	out := t.User
	for k, v := range vars {
		out = strings.ReplaceAll(out, "{{"+k+"}}", v)
	}
	return out
}

// Pack bundles the templates for one prompt style.
type Pack struct {
	Style           string   `yaml:"style"`
	ExtractQuestion Template `yaml:"extract_question"`
	ExtractAnswer   Template `yaml:"extract_answer"`
	Distractors     Template `yaml:"distractors"`
	ReformatMixed   Template `yaml:"reformat_mixed"`
	MobileBreaks    Template `yaml:"mobile_breaks"`
}
