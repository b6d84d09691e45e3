package prompts

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// The pipeline treats any schema violation in an LLM payload as a retryable
// extraction error, so validation happens before decoding.

const questionPayloadSchema = `{
	"type": "object",
	"minProperties": 1,
	"additionalProperties": {"type": "string"}
}`

const answerPayloadSchema = `{
	"type": "object",
	"required": ["answer", "calculations"],
	"properties": {
		"answer": {"type": "string"},
		"calculations": {"type": "string"}
	}
}`

// ValidateQuestionPayload checks a question-extraction response: a JSON
// object mapping question-number strings to text.
func ValidateQuestionPayload(raw string) error {
	return validate(raw, questionPayloadSchema)
}

// ValidateAnswerPayload checks a memo-extraction response: a JSON object
// with string answer and calculations fields.
func ValidateAnswerPayload(raw string) error {
	return validate(raw, answerPayloadSchema)
}

func validate(raw, schema string) error {
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(schema),
		gojsonschema.NewStringLoader(raw),
	)
	if err != nil {
		return fmt.Errorf("parse payload: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("payload failed validation: %s", strings.Join(msgs, "; "))
	}
	return nil
}
