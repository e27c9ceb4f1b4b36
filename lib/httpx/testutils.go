package httpx

import (
	"bytes"
	"io"
	"net/http"
	"sync"
)

// RecordingDelegate replies to every request with Res (or Err) and keeps the
// requests it saw, with their bodies, for later assertions.
type RecordingDelegate struct {
	mu     sync.Mutex
	reqs   []*http.Request
	bodies [][]byte

	Status int
	Body   string
	Err    error
}

func (n *RecordingDelegate) Do(req *http.Request) (*http.Response, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	var body []byte
	if req.Body != nil {
		body, _ = io.ReadAll(req.Body)
	}
	n.reqs = append(n.reqs, req)
	n.bodies = append(n.bodies, body)
	if n.Err != nil {
		return nil, n.Err
	}
	status := n.Status
	if status == 0 {
		status = http.StatusOK
	}
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{},
		Body:       io.NopCloser(bytes.NewBufferString(n.Body)),
		Request:    req,
	}, nil
}

func (n *RecordingDelegate) Requests() []*http.Request {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]*http.Request(nil), n.reqs...)
}

func (n *RecordingDelegate) RequestBody(i int) []byte {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.bodies[i]
}
