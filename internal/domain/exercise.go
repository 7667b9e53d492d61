package domain

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
)

// ExerciseKind selects the shape of a generated exercise.
type ExerciseKind string

const (
	KindMultipleChoice ExerciseKind = "multiple_choice"
	KindFillInBlank    ExerciseKind = "fill_in_blank"
	KindShortAnswer    ExerciseKind = "short_answer"
)

// Difficulty levels accepted in an ExerciseSpec.
const (
	DifficultyEasy   = "easy"
	DifficultyMedium = "medium"
	DifficultyHard   = "hard"
)

// BlankMarker marks the gap in a fill-in-the-blank question.
const BlankMarker = "___"

// ExerciseSpec is the input for generating one exercise.
type ExerciseSpec struct {
	Topic      string       `json:"topic" validate:"required"`
	Kind       ExerciseKind `json:"kind" validate:"required,oneof=multiple_choice fill_in_blank short_answer"`
	Difficulty string       `json:"difficulty,omitempty" validate:"omitempty,oneof=easy medium hard"`
	Language   string       `json:"language,omitempty"`

	// Context is optional source material the exercise must be grounded in
	Context string `json:"context,omitempty"`
}

// Validate checks the ExerciseSpec tags.
func (s ExerciseSpec) Validate() error {
	return validateStruct(s)
}

var exercisePrompt = template.Must(template.New("exercise").Parse(
	`Write one {{.Kind}} exercise about "{{.Topic}}" at {{.Difficulty}} difficulty{{if .Language}} in {{.Language}}{{end}}.
{{- if eq .Kind "multiple_choice"}}
Give between 3 and 5 options; "answer" must repeat the correct option exactly.
{{- else if eq .Kind "fill_in_blank"}}
Mark the gap in "question" with ___ and put the missing text in "answer".
{{- else}}
"answer" is a model answer of one or two sentences.
{{- end}}
Explain why the answer is correct in "explanation".
{{- if .Context}}

Base the exercise only on this material:
{{.Context}}
{{- end}}`))

// Prompt renders the user message for the exercise.
func (s ExerciseSpec) Prompt() (string, error) {
	data := s
	if data.Difficulty == "" {
		data.Difficulty = DifficultyMedium
	}
	var buf bytes.Buffer
	if err := exercisePrompt.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render exercise prompt: %w", err)
	}
	return buf.String(), nil
}

// Exercise is the structured result the model returns for an ExerciseSpec.
type Exercise struct {
	Kind        ExerciseKind `json:"kind" validate:"required,oneof=multiple_choice fill_in_blank short_answer"`
	Question    string       `json:"question" validate:"required"`
	Options     []string     `json:"options,omitempty" validate:"omitempty,min=2,max=6,dive,required"`
	Answer      string       `json:"answer" validate:"required"`
	Explanation string       `json:"explanation,omitempty"`
}

// Validate applies the rules that depend on Kind. It is picked up by
// generation.InvokeStructured, so a violating completion is retried.
func (e Exercise) Validate() error {
	if err := validateStruct(e); err != nil {
		return err
	}

	switch e.Kind {
	case KindMultipleChoice:
		if len(e.Options) < 2 {
			return fmt.Errorf("%w: multiple choice needs at least 2 options", ErrValidation)
		}
		seen := make(map[string]bool, len(e.Options))
		found := false
		for _, o := range e.Options {
			key := strings.TrimSpace(o)
			if seen[key] {
				return fmt.Errorf("%w: duplicate option %q", ErrValidation, o)
			}
			seen[key] = true
			if key == strings.TrimSpace(e.Answer) {
				found = true
			}
		}
		if !found {
			return fmt.Errorf("%w: answer is not one of the options", ErrValidation)
		}
	case KindFillInBlank:
		if !strings.Contains(e.Question, BlankMarker) {
			return fmt.Errorf("%w: question has no %s gap", ErrValidation, BlankMarker)
		}
	}
	return nil
}

// Matches reports whether the result has the kind that was requested.
func (e Exercise) Matches(spec ExerciseSpec) bool {
	return e.Kind == spec.Kind
}
