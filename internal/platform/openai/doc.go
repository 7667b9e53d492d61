// Package openai implements generation.Completer against OpenAI-compatible
// chat completion endpoints using json_schema response formats.
package openai
