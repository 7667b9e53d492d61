package generation

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/phrazzld/scry-gen/internal/events"
)

// Role tags a message in the conversation sent upstream.
type Role string

// Message roles understood by every backend.
const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one role-tagged entry of the prompt.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Request describes one logical structured completion.
type Request struct {
	// Label names the operation in logs and telemetry
	Label string

	// Messages is the ordered prompt
	Messages []Message

	// Model overrides the configured default model
	Model string

	// SchemaName and Schema form the response format sent upstream
	SchemaName string
	Schema     json.RawMessage

	// Temperature and MaxTokens are optional sampling controls
	Temperature *float64
	MaxTokens   int

	// Timeout bounds each attempt; zero uses the transport timeout
	Timeout time.Duration

	// Decode, when set, parses the completion content. A failure counts as a
	// retryable schema validation error.
	Decode func(content string) error
}

// Validate checks the request before any network call is made.
func (r Request) Validate() error {
	if len(r.Messages) == 0 {
		return fmt.Errorf("%w: no messages", ErrInvalidRequest)
	}
	for i, m := range r.Messages {
		if m.Content == "" {
			return fmt.Errorf("%w: message %d is empty", ErrInvalidRequest, i)
		}
	}
	if len(r.Schema) > 0 && !json.Valid(r.Schema) {
		return fmt.Errorf("%w: schema is not valid JSON", ErrInvalidRequest)
	}
	return nil
}

// Completion is the raw result of one successful upstream call.
type Completion struct {
	Content      string
	Model        string
	FinishReason string
	Usage        *events.Usage
}

// Completer performs a single upstream call through the supplied client. It
// must not retry; the Executor owns retries and transport selection.
type Completer interface {
	Complete(ctx context.Context, client *http.Client, req Request) (*Completion, error)
}

// CompleterFunc adapts a function to the Completer interface.
type CompleterFunc func(ctx context.Context, client *http.Client, req Request) (*Completion, error)

// Complete implements Completer.
func (f CompleterFunc) Complete(ctx context.Context, client *http.Client, req Request) (*Completion, error) {
	return f(ctx, client, req)
}
