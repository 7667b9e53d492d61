// Package gemini implements generation.Completer on top of Google's genai
// client.
//
// One genai client is built per transport handle so that proxied and direct
// calls keep their own connection pools. Upstream status codes are recovered
// from the wire by a recording round tripper, which keeps error
// classification independent of the client library's error types.
package gemini
