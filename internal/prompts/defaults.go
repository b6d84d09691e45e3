package prompts

import "fmt"

// StyleStandard and StyleStrict select the built-in prompt packs. The strict
// pack spells out the output contract in more detail and is paired with the
// retrying pipeline configuration.
const (
	StyleStandard = "standard"
	StyleStrict   = "strict"
)

// Default returns the compiled-in pack for a style.
func Default(style string) (*Pack, error) {
	switch style {
	case StyleStandard:
		return standardPack(), nil
	case StyleStrict:
		return strictPack(), nil
	default:
		return nil, fmt.Errorf("unknown prompt style %q", style)
	}
}

func standardPack() *Pack {
	return &Pack{
		Style: StyleStandard,
		ExtractQuestion: Template{
			System: "You extract questions from scanned exam papers. Respond with a single JSON object mapping question numbers to their exact text. Do not add commentary.",
			User: `From the attached exam paper, extract the exact text of question {{number}}.
Also extract the introductory text of its parent question {{parent}}{{grandparent_clause}}.
Return JSON of the form {"{{number}}": "...", "{{parent}}": "..."} with one key per requested number. Preserve all mathematics as LaTeX.`,
		},
		ExtractAnswer: Template{
			System: "You extract model answers from exam marking memoranda. Respond with a single JSON object and no commentary.",
			User: `From the attached marking memorandum, find the answer to question {{number}}.
Return JSON of the form {"answer": "...", "calculations": "..."} where answer is the final result and calculations shows the working. Preserve all mathematics as LaTeX.`,
		},
		Distractors: Template{
			System: "You write plausible wrong answers for multiple-choice questions.",
			User: `The question is: {{question}}
The correct answer is: {{answer}}
Write three plausible but incorrect answers a learner might give. Match the formatting of the correct answer exactly: {{style_clause}}. Keep each wrong answer roughly the same length as the correct answer.
Label them first_option, second_option and third_option.`,
		},
		ReformatMixed: Template{
			System: "You reformat mathematical text for mobile rendering.",
			User: `Reformat the following so that human words are wrapped in \text{} and mathematics is left as LaTeX, all inside a single pair of $ delimiters:
{{text}}`,
		},
		MobileBreaks: Template{
			System: "You reformat LaTeX for narrow mobile screens.",
			User: `Insert \newline breaks into the following LaTeX at operator or logical-group boundaries so no line is too long for a phone screen. Keep the mathematics unchanged and keep the single $ delimiters:
{{text}}`,
		},
	}
}

func strictPack() *Pack {
	p := standardPack()
	p.Style = StyleStrict
	p.ExtractQuestion.System = "You extract questions from scanned exam papers. Respond with a single JSON object mapping question numbers to their exact text. Every requested number MUST appear as a key. Output raw JSON only: no markdown fences, no commentary, no trailing text."
	p.ExtractAnswer.System = "You extract model answers from exam marking memoranda. Respond with a single JSON object containing exactly the keys answer and calculations, both strings. Output raw JSON only: no markdown fences, no commentary."
	p.Distractors.System = "You write plausible wrong answers for multiple-choice questions. Output exactly three lines labelled first_option, second_option and third_option and nothing else."
	return p
}
