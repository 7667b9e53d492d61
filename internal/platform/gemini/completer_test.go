package gemini

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/phrazzld/scry-gen/internal/events"
	"github.com/phrazzld/scry-gen/internal/generation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

func TestNew(t *testing.T) {
	t.Parallel()

	_, err := New(Config{Model: "gemini-2.0-flash"})
	assert.ErrorIs(t, err, generation.ErrInvalidRequest)

	c, err := New(Config{APIKey: "k", BaseURL: "https://generativelanguage.googleapis.com/v1beta"})
	require.NoError(t, err)
	assert.Equal(t, "https://generativelanguage.googleapis.com/", c.baseURL)
	assert.Equal(t, "v1beta", c.apiVersion)
}

func TestSplitVersion(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		base    string
		version string
	}{
		{"", "", DefaultAPIVersion},
		{"https://gemini.example.com", "https://gemini.example.com/", DefaultAPIVersion},
		{"https://gemini.example.com/v1/", "https://gemini.example.com/", "v1"},
		{"http://127.0.0.1:8080/v1alpha", "http://127.0.0.1:8080/", "v1alpha"},
		{"https://gateway.example.com/google", "https://gateway.example.com/google/", DefaultAPIVersion},
	}
	for _, tt := range tests {
		base, version := splitVersion(tt.in)
		assert.Equal(t, tt.base, base, tt.in)
		assert.Equal(t, tt.version, version, tt.in)
	}
}

func TestBuildContents(t *testing.T) {
	t.Parallel()

	contents, system := buildContents([]generation.Message{
		{Role: generation.RoleSystem, Content: "be brief"},
		{Role: generation.RoleUser, Content: "hello"},
		{Role: generation.RoleAssistant, Content: "hi"},
		{Role: generation.RoleSystem, Content: "answer in JSON"},
	})

	require.NotNil(t, system)
	require.Len(t, system.Parts, 1)
	assert.Equal(t, "be brief\n\nanswer in JSON", system.Parts[0].Text)

	require.Len(t, contents, 2)
	assert.Equal(t, "user", contents[0].Role)
	assert.Equal(t, "hello", contents[0].Parts[0].Text)
	assert.Equal(t, "model", contents[1].Role)

	_, system = buildContents([]generation.Message{{Role: generation.RoleUser, Content: "x"}})
	assert.Nil(t, system)
}

func TestParseResponse(t *testing.T) {
	t.Parallel()

	t.Run("joins text parts", func(t *testing.T) {
		resp := &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
			Content:      &genai.Content{Parts: []*genai.Part{{Text: `{"a":`}, {Text: `1}`}}},
			FinishReason: genai.FinishReasonStop,
		}}}
		got, err := parseResponse(resp, "gemini-2.0-flash")
		require.NoError(t, err)
		assert.Equal(t, `{"a":1}`, got.Content)
		assert.Equal(t, "gemini-2.0-flash", got.Model)
		assert.Equal(t, string(genai.FinishReasonStop), got.FinishReason)
		assert.Nil(t, got.Usage)
	})

	t.Run("maps usage metadata", func(t *testing.T) {
		resp := &genai.GenerateContentResponse{
			Candidates: []*genai.Candidate{{
				Content: &genai.Content{Parts: []*genai.Part{{Text: `{}`}}},
			}},
			UsageMetadata: &genai.GenerateContentResponseUsageMetadata{
				PromptTokenCount:     12,
				CandidatesTokenCount: 30,
				TotalTokenCount:      42,
			},
		}
		got, err := parseResponse(resp, "m")
		require.NoError(t, err)
		assert.Equal(t, &events.Usage{PromptTokens: 12, CompletionTokens: 30, TotalTokens: 42}, got.Usage)
	})

	t.Run("safety block", func(t *testing.T) {
		resp := &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{FinishReason: genai.FinishReasonSafety}}}
		_, err := parseResponse(resp, "m")
		assert.ErrorIs(t, err, generation.ErrContentBlocked)
	})

	t.Run("no candidates", func(t *testing.T) {
		_, err := parseResponse(&genai.GenerateContentResponse{}, "m")
		assert.ErrorIs(t, err, generation.ErrSchemaValidation)
		_, err = parseResponse(nil, "m")
		assert.ErrorIs(t, err, generation.ErrSchemaValidation)
	})

	t.Run("blank text", func(t *testing.T) {
		resp := &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{{Text: "  "}}},
		}}}
		_, err := parseResponse(resp, "m")
		assert.ErrorIs(t, err, generation.ErrSchemaValidation)
	})
}

func TestClassifyCallError(t *testing.T) {
	t.Parallel()

	callErr := errors.New("Error 429, Message: quota exceeded")

	t.Run("upstream status", func(t *testing.T) {
		rec := &callRecord{}
		rec.observe(http.StatusTooManyRequests, nil)
		err := classifyCallError(context.Background(), rec, callErr)

		var upstream *generation.UpstreamError
		require.ErrorAs(t, err, &upstream)
		assert.Equal(t, http.StatusTooManyRequests, upstream.StatusCode)
		assert.True(t, upstream.Retryable())
	})

	t.Run("transport failure", func(t *testing.T) {
		rec := &callRecord{}
		rec.observe(0, errors.New("dial tcp: connection refused"))
		err := classifyCallError(context.Background(), rec, callErr)
		assert.ErrorIs(t, err, generation.ErrTransientTransport)
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := classifyCallError(ctx, &callRecord{}, callErr)
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("malformed success body", func(t *testing.T) {
		rec := &callRecord{}
		rec.observe(http.StatusOK, nil)
		err := classifyCallError(context.Background(), rec, errors.New("unexpected end of JSON input"))
		assert.ErrorIs(t, err, generation.ErrSchemaValidation)
	})
}

func TestRecordingTransport(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	hc := wrapClient(srv.Client())
	rec := &callRecord{}
	req, err := http.NewRequestWithContext(withRecord(context.Background(), rec), http.MethodGet, srv.URL, nil)
	require.NoError(t, err)

	resp, err := hc.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()

	status, transportErr := rec.snapshot()
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.NoError(t, transportErr)
}

func TestCompleteAgainstServer(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, ":generateContent") {
			http.NotFound(w, r)
			return
		}
		if strings.Contains(r.URL.Path, "overloaded") {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":{"code":503,"message":"overloaded","status":"UNAVAILABLE"}}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"{\"ok\":true}"}]},"finishReason":"STOP"}],"usageMetadata":{"promptTokenCount":4,"candidatesTokenCount":3,"totalTokenCount":7}}`))
	}))
	defer srv.Close()

	c, err := New(Config{APIKey: "test-key", Model: "gemini-test", BaseURL: srv.URL + "/v1beta"})
	require.NoError(t, err)

	req := generation.Request{
		Messages: []generation.Message{{Role: generation.RoleUser, Content: "hi"}},
		Schema:   []byte(`{"type":"object","properties":{"ok":{"type":"boolean"}}}`),
	}

	got, err := c.Complete(context.Background(), srv.Client(), req)
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, got.Content)
	assert.Equal(t, "gemini-test", got.Model)
	assert.Equal(t, &events.Usage{PromptTokens: 4, CompletionTokens: 3, TotalTokens: 7}, got.Usage)

	req.Model = "overloaded"
	_, err = c.Complete(context.Background(), srv.Client(), req)
	var upstream *generation.UpstreamError
	require.ErrorAs(t, err, &upstream)
	assert.Equal(t, http.StatusServiceUnavailable, upstream.StatusCode)
}

func TestClientCachedPerHandle(t *testing.T) {
	t.Parallel()

	c, err := New(Config{APIKey: "k"})
	require.NoError(t, err)

	a := &http.Client{}
	b := &http.Client{}

	first, err := c.client(context.Background(), a)
	require.NoError(t, err)
	again, err := c.client(context.Background(), a)
	require.NoError(t, err)
	other, err := c.client(context.Background(), b)
	require.NoError(t, err)

	assert.Same(t, first, again)
	assert.NotSame(t, first, other)
}

func TestClientCacheEvictsReplacedHandles(t *testing.T) {
	t.Parallel()

	c, err := New(Config{APIKey: "k"})
	require.NoError(t, err)

	live := &http.Client{}
	first, err := c.client(context.Background(), live)
	require.NoError(t, err)

	stale := &http.Client{}
	_, err = c.client(context.Background(), stale)
	require.NoError(t, err)

	for range maxCachedClients {
		_, err := c.client(context.Background(), &http.Client{})
		require.NoError(t, err)
		// The live handle keeps being used between rebuilds.
		again, err := c.client(context.Background(), live)
		require.NoError(t, err)
		assert.Same(t, first, again)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	assert.Len(t, c.clients, maxCachedClients)
	for _, entry := range c.clients {
		assert.NotSame(t, stale, entry.http)
	}
}
