package refine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"text/template"
)

// DefaultLengthTolerance accepts a transcript within 10% of its target length.
const DefaultLengthTolerance = 0.10

// LengthEvaluation measures a transcript against its target word count.
type LengthEvaluation struct {
	Words  int     `json:"words"`
	Target int     `json:"target"`
	Ratio  float64 `json:"ratio"`
}

// Deviation is the relative distance from target.
func (e LengthEvaluation) Deviation() float64 {
	return math.Abs(1 - e.Ratio)
}

// WordCount counts whitespace-separated words.
func WordCount(text string) int {
	return len(strings.Fields(text))
}

// EvaluateLength builds a LengthEvaluation for text.
func EvaluateLength(text string, target int) LengthEvaluation {
	words := WordCount(text)
	ratio := 0.0
	if target > 0 {
		ratio = float64(words) / float64(target)
	}
	return LengthEvaluation{Words: words, Target: target, Ratio: ratio}
}

// LengthPolicy is the pluggable "good enough" threshold for length expansion.
type LengthPolicy struct {
	// Tolerance is the accepted relative deviation from target, e.g. 0.1
	Tolerance float64
}

func (p LengthPolicy) tolerance() float64 {
	if p.Tolerance > 0 {
		return p.Tolerance
	}
	return DefaultLengthTolerance
}

// Score ranks how close an evaluation is to target; 1 is exact.
func (p LengthPolicy) Score(e LengthEvaluation) float64 {
	return 1 - e.Deviation()
}

// ShouldRetry stops once the transcript is within tolerance.
func (p LengthPolicy) ShouldRetry(e LengthEvaluation, attempt int) Decision {
	if e.Deviation() <= p.tolerance() {
		return Decision{}
	}
	return Decision{
		Retry: true,
		Reason: fmt.Sprintf("transcript has %d words, %.0f%% of the %d word target after %d attempts",
			e.Words, e.Ratio*100, e.Target, attempt),
	}
}

var retryPromptTemplate = template.Must(template.New("expansion_retry").Parse(
	`{{.Prompt}}

The previous draft had {{.Words}} words but the target is {{.Target}} words.
{{if .TooShort}}Expand it by roughly {{.Delta}} words with additional detail and examples; do not pad with repetition.{{else}}Tighten it by roughly {{.Delta}} words while keeping every key point.{{end}}`))

type retryPromptData struct {
	Prompt   string
	Words    int
	Target   int
	Delta    int
	TooShort bool
}

// BuildLengthRetryPrompt appends word-count feedback to the base prompt. The
// previous feedback is not accumulated; each retry restates the latest gap.
func BuildLengthRetryPrompt(base string) func(current string, e LengthEvaluation, attempt int) string {
	return func(_ string, e LengthEvaluation, _ int) string {
		delta := e.Target - e.Words
		data := retryPromptData{
			Prompt:   base,
			Words:    e.Words,
			Target:   e.Target,
			Delta:    int(math.Abs(float64(delta))),
			TooShort: delta > 0,
		}
		var buf bytes.Buffer
		if err := retryPromptTemplate.Execute(&buf, data); err != nil {
			return base
		}
		return buf.String()
	}
}

// ExpansionConfig describes one transcript expansion run.
type ExpansionConfig struct {
	Prompt      string
	TargetWords int
	MaxAttempts int
	Policy      LengthPolicy
}

// ExpandTranscript drives the refinement loop toward TargetWords using
// generate to produce drafts. An empty draft counts as an attempt that
// yielded nothing.
func ExpandTranscript(
	ctx context.Context,
	cfg ExpansionConfig,
	generate func(ctx context.Context, prompt string, attempt int) (string, error),
) (*Result[string, LengthEvaluation], error) {
	if cfg.TargetWords <= 0 {
		return nil, fmt.Errorf("%w: target words must be positive", ErrInvalidOptions)
	}
	if strings.TrimSpace(cfg.Prompt) == "" {
		return nil, fmt.Errorf("%w: prompt is empty", ErrInvalidOptions)
	}
	if generate == nil {
		return nil, fmt.Errorf("%w: generate is required", ErrInvalidOptions)
	}

	return Execute(ctx, Options[string, LengthEvaluation]{
		BasePrompt:  cfg.Prompt,
		MaxAttempts: cfg.MaxAttempts,
		Generate: func(ctx context.Context, prompt string, attempt int) (string, error) {
			text, err := generate(ctx, prompt, attempt)
			if err != nil {
				return "", err
			}
			if strings.TrimSpace(text) == "" {
				return "", errors.New("empty transcript")
			}
			return text, nil
		},
		Evaluate: func(text string, _ int) LengthEvaluation {
			return EvaluateLength(text, cfg.TargetWords)
		},
		Score:            cfg.Policy.Score,
		ShouldRetry:      cfg.Policy.ShouldRetry,
		BuildRetryPrompt: BuildLengthRetryPrompt(cfg.Prompt),
	})
}
