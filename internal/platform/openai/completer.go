package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/phrazzld/scry-gen/internal/events"
	"github.com/phrazzld/scry-gen/internal/generation"
)

// DefaultEndpointPath is appended to the base URL.
const DefaultEndpointPath = "/chat/completions"

// maxErrorBody bounds how much of an error response is read.
const maxErrorBody = 4 << 10

// Config holds the static settings of the completer.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string

	// Temperature is used when a request does not set its own
	Temperature *float64

	// Strict requests strict schema adherence; every property must then be required
	Strict bool

	// EndpointPath overrides DefaultEndpointPath; it may be a full URL
	EndpointPath string

	// ExtraHeaders are set on every request, e.g. for compatible gateways
	ExtraHeaders map[string]string
}

// Completer calls the chat completions endpoint once per Complete.
type Completer struct {
	url     string
	apiKey  string
	model   string
	temp    *float64
	strict  bool
	headers map[string]string
}

// New validates cfg and builds a Completer.
func New(cfg Config) (*Completer, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("%w: api key is required", generation.ErrInvalidRequest)
	}
	if strings.TrimSpace(cfg.BaseURL) == "" && !isAbsolute(cfg.EndpointPath) {
		return nil, fmt.Errorf("%w: base url is required", generation.ErrInvalidRequest)
	}

	path := cfg.EndpointPath
	if path == "" {
		path = DefaultEndpointPath
	}
	url := path
	if !isAbsolute(path) {
		url = strings.TrimRight(cfg.BaseURL, "/") + "/" + strings.TrimLeft(path, "/")
	}

	return &Completer{
		url:     url,
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		temp:    cfg.Temperature,
		strict:  cfg.Strict,
		headers: cfg.ExtraHeaders,
	}, nil
}

func isAbsolute(path string) bool {
	return strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://")
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type jsonSchemaFormat struct {
	Name   string          `json:"name"`
	Schema json.RawMessage `json:"schema"`
	Strict bool            `json:"strict,omitempty"`
}

type responseFormat struct {
	Type       string            `json:"type"`
	JSONSchema *jsonSchemaFormat `json:"json_schema,omitempty"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    *float64        `json:"temperature,omitempty"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
			Refusal string `json:"refusal"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Completer) encode(req generation.Request) ([]byte, error) {
	body := chatRequest{
		Model:       req.Model,
		Messages:    make([]chatMessage, 0, len(req.Messages)),
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	if body.Model == "" {
		body.Model = c.model
	}
	if body.Temperature == nil {
		body.Temperature = c.temp
	}
	for _, m := range req.Messages {
		body.Messages = append(body.Messages, chatMessage{Role: string(m.Role), Content: m.Content})
	}

	if len(req.Schema) > 0 {
		name := req.SchemaName
		if name == "" {
			name = "result"
		}
		body.ResponseFormat = &responseFormat{
			Type:       "json_schema",
			JSONSchema: &jsonSchemaFormat{Name: name, Schema: req.Schema, Strict: c.strict},
		}
	}
	return json.Marshal(&body)
}

// Complete implements generation.Completer.
func (c *Completer) Complete(ctx context.Context, hc *http.Client, req generation.Request) (*generation.Completion, error) {
	payload, err := c.encode(req)
	if err != nil {
		return nil, fmt.Errorf("%w: encode request: %v", generation.ErrInvalidRequest, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", generation.ErrInvalidRequest, err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	for k, v := range c.headers {
		if k != "" {
			httpReq.Header.Set(k, v)
		}
	}

	resp, err := hc.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("chat completion: %w", ctx.Err())
		}
		return nil, fmt.Errorf("%w: %v", generation.ErrTransientTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return nil, upstreamError(resp)
	}

	var decoded chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || ctx.Err() != nil {
			return nil, fmt.Errorf("%w: response body truncated: %v", generation.ErrTransientTransport, err)
		}
		return nil, fmt.Errorf("decode chat completion: %w", err)
	}
	if len(decoded.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices in response", generation.ErrSchemaValidation)
	}

	choice := decoded.Choices[0]
	if choice.FinishReason == "content_filter" || choice.Message.Refusal != "" {
		return nil, fmt.Errorf("%w: %s", generation.ErrContentBlocked, choice.Message.Refusal)
	}
	if strings.TrimSpace(choice.Message.Content) == "" {
		return nil, fmt.Errorf("%w: empty message content", generation.ErrSchemaValidation)
	}

	completion := &generation.Completion{
		Content:      choice.Message.Content,
		Model:        decoded.Model,
		FinishReason: choice.FinishReason,
	}
	if decoded.Usage != nil {
		completion.Usage = &events.Usage{
			PromptTokens:     decoded.Usage.PromptTokens,
			CompletionTokens: decoded.Usage.CompletionTokens,
			TotalTokens:      decoded.Usage.TotalTokens,
		}
	}
	return completion, nil
}

func upstreamError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	msg := strings.TrimSpace(string(body))
	var decoded errorResponse
	if json.Unmarshal(body, &decoded) == nil && decoded.Error.Message != "" {
		msg = decoded.Error.Message
	}
	return &generation.UpstreamError{StatusCode: resp.StatusCode, Message: msg}
}

var _ generation.Completer = (*Completer)(nil)
