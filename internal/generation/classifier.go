package generation

import (
	"context"
	"errors"
	"net"
	"strings"
)

// ErrorClass is the retry decision for a failed attempt.
type ErrorClass int

const (
	// ClassRetryable consumes retry budget and backs off
	ClassRetryable ErrorClass = iota

	// ClassTransport is eligible for the free transport switch
	ClassTransport

	// ClassFatal stops the request immediately
	ClassFatal
)

func (c ErrorClass) String() string {
	switch c {
	case ClassTransport:
		return "transport"
	case ClassFatal:
		return "fatal"
	default:
		return "retryable"
	}
}

// Classifier maps an attempt error to an ErrorClass.
type Classifier interface {
	Classify(err error) ErrorClass
}

// ClassifierFunc adapts a function to the Classifier interface.
type ClassifierFunc func(err error) ErrorClass

// Classify implements Classifier.
func (f ClassifierFunc) Classify(err error) ErrorClass {
	return f(err)
}

// DefaultClassifier prefers typed errors and falls back to inspecting the
// message for transport-indicative text. Upstream responses with a
// path-related status are transport failures; other client errors are fatal,
// and retryable statuses still go through the message check.
type DefaultClassifier struct{}

// Classify implements Classifier.
func (DefaultClassifier) Classify(err error) ErrorClass {
	if err == nil {
		return ClassRetryable
	}

	switch {
	case errors.Is(err, ErrInvalidRequest), errors.Is(err, ErrContentBlocked), errors.Is(err, context.Canceled):
		return ClassFatal
	case errors.Is(err, ErrTransientTransport):
		return ClassTransport
	case errors.Is(err, ErrSchemaValidation):
		return ClassRetryable
	}

	var upstream *UpstreamError
	if errors.As(err, &upstream) {
		switch {
		case upstream.TransportRelated():
			return ClassTransport
		case !upstream.Retryable():
			return ClassFatal
		}
		return classifyMessage(upstream.Error())
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return ClassTransport
	}

	return classifyMessage(err.Error())
}

var transportHints = []string{
	"proxy",
	"econnrefused",
	"enotfound",
	"timeout",
	"network",
	"connection",
}

// classifyMessage is the only place that inspects error text.
func classifyMessage(msg string) ErrorClass {
	lower := strings.ToLower(msg)
	for _, hint := range transportHints {
		if strings.Contains(lower, hint) {
			return ClassTransport
		}
	}
	return ClassRetryable
}
