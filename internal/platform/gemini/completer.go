package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/phrazzld/scry-gen/internal/events"
	"github.com/phrazzld/scry-gen/internal/generation"
	"google.golang.org/genai"
)

// DefaultAPIVersion is used when the base URL carries no version segment.
const DefaultAPIVersion = "v1beta"

// Config holds the static settings of the completer.
type Config struct {
	APIKey string
	Model  string

	// BaseURL optionally overrides the public endpoint. A trailing version
	// segment such as /v1beta is split off into the API version.
	BaseURL string

	// Temperature is used when a request does not set its own
	Temperature *float64
}

// Completer issues one GenerateContent call per Complete.
type Completer struct {
	apiKey     string
	model      string
	baseURL    string
	apiVersion string
	temp       *float64

	mu      sync.Mutex
	clients []cachedClient // most recently used first
}

// maxCachedClients bounds the genai client cache. Only the direct and
// proxied handles are live at once; older entries belong to handles the
// selector has since replaced.
const maxCachedClients = 4

type cachedClient struct {
	http  *http.Client
	genai *genai.Client
}

// New validates cfg and builds a Completer.
func New(cfg Config) (*Completer, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("%w: api key is required", generation.ErrInvalidRequest)
	}
	base, version := splitVersion(cfg.BaseURL)
	return &Completer{
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		baseURL:    base,
		apiVersion: version,
		temp:       cfg.Temperature,
	}, nil
}

// splitVersion separates "https://host/v1beta" into "https://host/" and "v1beta".
func splitVersion(raw string) (string, string) {
	raw = strings.TrimRight(strings.TrimSpace(raw), "/")
	if raw == "" {
		return "", DefaultAPIVersion
	}
	idx := strings.LastIndex(raw, "/")
	if idx > len("https://") {
		last := raw[idx+1:]
		if strings.HasPrefix(last, "v1") {
			return raw[:idx+1], last
		}
	}
	return raw + "/", DefaultAPIVersion
}

func (c *Completer) client(ctx context.Context, hc *http.Client) (*genai.Client, error) {
	if client, ok := c.cached(hc); ok {
		return client, nil
	}

	cc := &genai.ClientConfig{
		APIKey:     c.apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: wrapClient(hc),
		HTTPOptions: genai.HTTPOptions{
			BaseURL:    c.baseURL,
			APIVersion: c.apiVersion,
		},
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("%w: create genai client: %v", generation.ErrInvalidRequest, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.lookup(hc); ok {
		return existing, nil
	}
	c.clients = append([]cachedClient{{http: hc, genai: client}}, c.clients...)
	if len(c.clients) > maxCachedClients {
		c.clients = c.clients[:maxCachedClients]
	}
	return client, nil
}

func (c *Completer) cached(hc *http.Client) (*genai.Client, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lookup(hc)
}

// lookup finds hc and moves it to the front. Callers hold c.mu.
func (c *Completer) lookup(hc *http.Client) (*genai.Client, bool) {
	for i, entry := range c.clients {
		if entry.http == hc {
			copy(c.clients[1:i+1], c.clients[:i])
			c.clients[0] = entry
			return entry.genai, true
		}
	}
	return nil, false
}

// Complete implements generation.Completer.
func (c *Completer) Complete(ctx context.Context, hc *http.Client, req generation.Request) (*generation.Completion, error) {
	client, err := c.client(ctx, hc)
	if err != nil {
		return nil, err
	}

	model := req.Model
	if model == "" {
		model = c.model
	}
	contents, system := buildContents(req.Messages)
	gc, err := c.buildConfig(req, system)
	if err != nil {
		return nil, err
	}

	rec := &callRecord{}
	resp, err := client.Models.GenerateContent(withRecord(ctx, rec), model, contents, gc)
	if err != nil {
		return nil, classifyCallError(ctx, rec, err)
	}

	return parseResponse(resp, model)
}

func (c *Completer) buildConfig(req generation.Request, system *genai.Content) (*genai.GenerateContentConfig, error) {
	gc := &genai.GenerateContentConfig{SystemInstruction: system}

	temp := req.Temperature
	if temp == nil {
		temp = c.temp
	}
	if temp != nil {
		t := float32(*temp)
		gc.Temperature = &t
	}

	if len(req.Schema) > 0 {
		schema, err := ConvertSchema(req.Schema)
		if err != nil {
			return nil, err
		}
		gc.ResponseMIMEType = "application/json"
		gc.ResponseSchema = schema
	}
	return gc, nil
}

// buildContents maps chat messages onto genai contents. System messages are
// joined into a single system instruction.
func buildContents(messages []generation.Message) ([]*genai.Content, *genai.Content) {
	var (
		contents []*genai.Content
		system   []string
	)
	for _, m := range messages {
		switch m.Role {
		case generation.RoleSystem:
			system = append(system, m.Content)
		case generation.RoleAssistant:
			contents = append(contents, &genai.Content{Role: "model", Parts: []*genai.Part{{Text: m.Content}}})
		default:
			contents = append(contents, &genai.Content{Role: "user", Parts: []*genai.Part{{Text: m.Content}}})
		}
	}
	if len(system) == 0 {
		return contents, nil
	}
	return contents, &genai.Content{Parts: []*genai.Part{{Text: strings.Join(system, "\n\n")}}}
}

// classifyCallError maps a failed GenerateContent call onto generation errors
// using what the recording transport observed.
func classifyCallError(ctx context.Context, rec *callRecord, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("generate content: %w", ctxErr)
	}
	status, transportErr := rec.snapshot()
	switch {
	case transportErr != nil:
		return fmt.Errorf("%w: %v", generation.ErrTransientTransport, transportErr)
	case status >= http.StatusBadRequest:
		return &generation.UpstreamError{StatusCode: status, Message: err.Error()}
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("generate content: %w", err)
	default:
		return fmt.Errorf("%w: generate content: %v", generation.ErrSchemaValidation, err)
	}
}

func parseResponse(resp *genai.GenerateContentResponse, model string) (*generation.Completion, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("%w: no candidates in response", generation.ErrSchemaValidation)
	}
	cand := resp.Candidates[0]
	if cand.FinishReason == genai.FinishReasonSafety {
		return nil, fmt.Errorf("%w: blocked by safety filters", generation.ErrContentBlocked)
	}
	if cand.Content == nil {
		return nil, fmt.Errorf("%w: empty candidate content", generation.ErrSchemaValidation)
	}

	var b strings.Builder
	for _, part := range cand.Content.Parts {
		if part != nil {
			b.WriteString(part.Text)
		}
	}
	text := b.String()
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: empty response text", generation.ErrSchemaValidation)
	}

	return &generation.Completion{
		Content:      text,
		Model:        model,
		FinishReason: string(cand.FinishReason),
		Usage:        usage(resp.UsageMetadata),
	}, nil
}

func usage(meta *genai.GenerateContentResponseUsageMetadata) *events.Usage {
	if meta == nil {
		return nil
	}
	return &events.Usage{
		PromptTokens:     int(meta.PromptTokenCount),
		CompletionTokens: int(meta.CandidatesTokenCount),
		TotalTokens:      int(meta.TotalTokenCount),
	}
}
