// Package distributor provides an httptest-based fake distributor that answers with queued responses
// and records every request it receives.
package distributor

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Response is a queued answer.
type Response struct {
	Status int
	Header map[string]string
	Body   string
}

// RecordedRequest is a request the server received.
type RecordedRequest struct {
	Method string
	Path   string
	Query  map[string][]string
	Header http.Header
	Body   string
}

// Server answers requests with queued responses in FIFO order.
// When the queue is empty it answers 500 so tests fail loudly on unexpected calls.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	queue    []Response
	requests []RecordedRequest
}

// NewServer starts a server that is closed when the test ends.
func NewServer(t testing.TB) *Server {
	t.Helper()

	server := &Server{}
	server.Server = httptest.NewServer(http.HandlerFunc(server.handle))
	t.Cleanup(server.Close)

	return server
}

// Queue appends a response. headers are key/value pairs.
func (s *Server) Queue(status int, body string, headers ...string) {
	header := make(map[string]string, len(headers)/2)
	for i := 0; i+1 < len(headers); i += 2 {
		header[headers[i]] = headers[i+1]
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = append(s.queue, Response{Status: status, Header: header, Body: body})
}

// QueueJSON appends a response with v encoded as JSON.
func (s *Server) QueueJSON(t testing.TB, status int, contentType string, v any) {
	t.Helper()

	body, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("encoding queued response: %v", err)
	}

	s.Queue(status, string(body), "Content-Type", contentType)
}

// Requests returns a copy of the recorded requests.
func (s *Server) Requests() []RecordedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()

	requests := make([]RecordedRequest, len(s.requests))
	copy(requests, s.requests)

	return requests
}

// Pending returns the number of responses not served yet.
func (s *Server) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.queue)
}

// Link returns an absolute URL on this server.
func (s *Server) Link(path string) string {
	return s.URL + path
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	s.mu.Lock()
	s.requests = append(s.requests, RecordedRequest{
		Method: r.Method,
		Path:   r.URL.Path,
		Query:  r.URL.Query(),
		Header: r.Header.Clone(),
		Body:   string(body),
	})

	if len(s.queue) == 0 {
		s.mu.Unlock()
		http.Error(w, "no response queued", http.StatusInternalServerError)
		return
	}

	response := s.queue[0]
	s.queue = s.queue[1:]
	s.mu.Unlock()

	for key, value := range response.Header {
		w.Header().Set(key, value)
	}

	w.WriteHeader(response.Status)
	_, _ = w.Write([]byte(response.Body))
}
