package domain

import (
	"fmt"
	"strings"
)

// TranscriptRequest asks for a spoken-style transcript of roughly TargetWords.
type TranscriptRequest struct {
	Topic       string `json:"topic" validate:"required"`
	TargetWords int    `json:"target_words" validate:"required,min=50,max=20000"`

	// Draft is an optional starting text to expand
	Draft string `json:"draft,omitempty"`

	// Style describes tone or audience, e.g. "conversational, beginner"
	Style string `json:"style,omitempty"`

	// MaxAttempts overrides the service default when positive
	MaxAttempts int `json:"max_attempts,omitempty" validate:"omitempty,min=1,max=10"`
}

// Validate checks the request's tags.
func (r TranscriptRequest) Validate() error {
	return validateStruct(r)
}

// Prompt renders the base prompt of the expansion loop.
func (r TranscriptRequest) Prompt() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Write a transcript about %q of about %d words.", r.Topic, r.TargetWords)
	if r.Style != "" {
		fmt.Fprintf(&b, " Style: %s.", r.Style)
	}
	b.WriteString(" Return only the transcript text.")
	if strings.TrimSpace(r.Draft) != "" {
		b.WriteString("\n\nStart from this draft and keep its structure:\n")
		b.WriteString(r.Draft)
	}
	return b.String()
}

// Transcript is the outcome of a length-expansion run.
type Transcript struct {
	Topic       string `json:"topic"`
	Text        string `json:"text"`
	Words       int    `json:"words"`
	TargetWords int    `json:"target_words"`
	Attempts    int    `json:"attempts"`

	// BestAttempt is the 1-based attempt that produced Text
	BestAttempt int `json:"best_attempt"`

	// Degraded is set when Text is the best effort rather than within tolerance
	Degraded          bool   `json:"degraded"`
	DegradationReason string `json:"degradation_reason,omitempty"`
}
