package gemini

import (
	"context"
	"net/http"
	"sync"
)

// callRecord captures what the wire saw during one Complete call.
type callRecord struct {
	mu         sync.Mutex
	statusCode int
	transport  error
}

func (r *callRecord) observe(status int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statusCode = status
	r.transport = err
}

func (r *callRecord) snapshot() (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.statusCode, r.transport
}

type recordKey struct{}

func withRecord(ctx context.Context, rec *callRecord) context.Context {
	return context.WithValue(ctx, recordKey{}, rec)
}

// recordingTransport copies the status code or transport error of every
// round trip into the callRecord carried by the request context.
type recordingTransport struct {
	base http.RoundTripper
}

func (t recordingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	resp, err := base.RoundTrip(req)
	if rec, ok := req.Context().Value(recordKey{}).(*callRecord); ok {
		if err != nil {
			rec.observe(0, err)
		} else {
			rec.observe(resp.StatusCode, nil)
		}
	}
	return resp, err
}

// wrapClient returns a client sharing hc's transport and timeout with a
// recordingTransport in front.
func wrapClient(hc *http.Client) *http.Client {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &http.Client{
		Transport:     recordingTransport{base: hc.Transport},
		CheckRedirect: hc.CheckRedirect,
		Jar:           hc.Jar,
		Timeout:       hc.Timeout,
	}
}
