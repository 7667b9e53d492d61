package generation

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultClassifier(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorClass
	}{
		{"typed transport", fmt.Errorf("%w: reset", ErrTransientTransport), ClassTransport},
		{"schema validation", fmt.Errorf("%w: missing field", ErrSchemaValidation), ClassRetryable},
		{"invalid request", fmt.Errorf("%w: no messages", ErrInvalidRequest), ClassFatal},
		{"content blocked", ErrContentBlocked, ClassFatal},
		{"caller cancelled", context.Canceled, ClassFatal},
		{"rate limited", &UpstreamError{StatusCode: http.StatusTooManyRequests}, ClassRetryable},
		{"server error", &UpstreamError{StatusCode: http.StatusInternalServerError}, ClassRetryable},
		{"proxy auth required", &UpstreamError{StatusCode: http.StatusProxyAuthRequired, Message: "Proxy Authentication Required"}, ClassTransport},
		{"request timeout status", &UpstreamError{StatusCode: http.StatusRequestTimeout}, ClassTransport},
		{"bad gateway", &UpstreamError{StatusCode: http.StatusBadGateway}, ClassTransport},
		{"gateway timeout", &UpstreamError{StatusCode: http.StatusGatewayTimeout, Message: "upstream timed out"}, ClassTransport},
		{"server error mentioning proxy", &UpstreamError{StatusCode: http.StatusServiceUnavailable, Message: "proxy overloaded"}, ClassTransport},
		{"server error mentioning timeout", &UpstreamError{StatusCode: http.StatusInternalServerError, Message: "backend timeout"}, ClassTransport},
		{"rate limited mentioning connection", &UpstreamError{StatusCode: http.StatusTooManyRequests, Message: "too many connections"}, ClassTransport},
		{"wrapped proxy auth", fmt.Errorf("call: %w", &UpstreamError{StatusCode: http.StatusProxyAuthRequired}), ClassTransport},
		{"unauthorized", &UpstreamError{StatusCode: http.StatusUnauthorized}, ClassFatal},
		{"bad request", &UpstreamError{StatusCode: http.StatusBadRequest, Message: "connection field invalid"}, ClassFatal},
		{"net error", &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("refused")}, ClassTransport},
		{"url error", &url.Error{Op: "Post", URL: "https://x", Err: &net.DNSError{Err: "no such host", Name: "x"}}, ClassTransport},
		{"message proxy", errors.New("Proxy handshake failed"), ClassTransport},
		{"message econnrefused", errors.New("connect ECONNREFUSED 127.0.0.1:443"), ClassTransport},
		{"message enotfound", errors.New("getaddrinfo ENOTFOUND api"), ClassTransport},
		{"message timeout", errors.New("request timeout"), ClassTransport},
		{"message network", errors.New("network is unreachable"), ClassTransport},
		{"message connection", errors.New("connection reset by peer"), ClassTransport},
		{"plain message", errors.New("model returned garbage"), ClassRetryable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DefaultClassifier{}.Classify(tt.err))
		})
	}
}

func TestErrorClassString(t *testing.T) {
	assert.Equal(t, "transport", ClassTransport.String())
	assert.Equal(t, "retryable", ClassRetryable.String())
	assert.Equal(t, "fatal", ClassFatal.String())
}

func TestExhaustedRetriesError(t *testing.T) {
	cause := &UpstreamError{StatusCode: 500, Message: "boom"}
	err := error(&ExhaustedRetriesError{Label: "exercise", Attempts: 4, Err: cause})

	assert.ErrorIs(t, err, ErrExhaustedRetries)
	assert.ErrorIs(t, err, ErrUpstream)
	assert.Equal(t, "exercise failed after 4 attempts: upstream status 500: boom", err.Error())
}
