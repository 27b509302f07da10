// Package testutil provides a mock Microsoft Graph server for tests.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

// MockGraphResponse defines the behavior for a fixed mock endpoint response.
type MockGraphResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockGraph is a configurable mock Graph server. Collections registered with
// SetCollection are served with $top paging, $filter evaluation and
// absolute @odata.nextLink continuations.
type MockGraph struct {
	server      *httptest.Server
	mu          sync.RWMutex
	handlers    map[string]func(w http.ResponseWriter, r *http.Request)
	collections map[string][]map[string]any

	// Throttling injection
	throttleNext int
	retryAfter   string

	// Tracking
	RequestCount      int
	ThrottledCount    int
	PathCounts        map[string]int
	Filters           []string
	LastRequestHeader http.Header
	inFlight          int
	MaxInFlight       int

	// Token, when set, is the only bearer token accepted.
	Token string

	// DefaultTop is the page size used when $top is absent.
	DefaultTop int

	// Latency is added to every collection page.
	Latency time.Duration
}

// NewMockGraph creates a new mock Graph server.
func NewMockGraph() *MockGraph {
	mock := &MockGraph{
		handlers:    make(map[string]func(w http.ResponseWriter, r *http.Request)),
		collections: make(map[string][]map[string]any),
		PathCounts:  make(map[string]int),
		DefaultTop:  100,
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		mock.PathCounts[r.URL.Path]++
		mock.LastRequestHeader = r.Header.Clone()
		mock.inFlight++
		if mock.inFlight > mock.MaxInFlight {
			mock.MaxInFlight = mock.inFlight
		}
		throttle := mock.throttleNext > 0
		if throttle {
			mock.throttleNext--
			mock.ThrottledCount++
		}
		retryAfter := mock.retryAfter
		token := mock.Token
		mock.mu.Unlock()

		defer func() {
			mock.mu.Lock()
			mock.inFlight--
			mock.mu.Unlock()
		}()

		if token != "" && r.Header.Get("Authorization") != "Bearer "+token {
			writeError(w, http.StatusUnauthorized, "InvalidAuthenticationToken")
			return
		}

		if throttle {
			if retryAfter != "" {
				w.Header().Set("Retry-After", retryAfter)
			}
			writeError(w, http.StatusTooManyRequests, "TooManyRequests")
			return
		}

		mock.mu.RLock()
		handler, exists := mock.handlers[r.URL.Path]
		items, isCollection := mock.collections[r.URL.Path]
		mock.mu.RUnlock()

		if exists {
			handler(w, r)
			return
		}
		if isCollection {
			mock.serveCollection(w, r, items)
			return
		}

		writeError(w, http.StatusNotFound, "Request_ResourceNotFound")
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockGraph) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockGraph) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockGraph) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.ThrottledCount = 0
	m.PathCounts = make(map[string]int)
	m.Filters = nil
	m.LastRequestHeader = nil
	m.MaxInFlight = 0
}

// SetHandler sets a custom handler for a specific path.
func (m *MockGraph) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a fixed response for a path.
func (m *MockGraph) SetResponse(path string, resp MockGraphResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}

		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}

		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// SetCollection registers items to be served at path (e.g. "/beta/users").
func (m *MockGraph) SetCollection(path string, items []map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.collections[path] = items
}

// ThrottleNext makes the next n requests fail with 429. An empty retryAfter
// omits the Retry-After header.
func (m *MockGraph) ThrottleNext(n int, retryAfter string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.throttleNext = n
	m.retryAfter = retryAfter
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockGraph) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// GetThrottledCount returns the number of 429 responses served.
func (m *MockGraph) GetThrottledCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ThrottledCount
}

// GetFilters returns the $filter values of first-page requests.
func (m *MockGraph) GetFilters() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.Filters...)
}

// GetMaxInFlight returns the highest number of concurrent requests seen.
func (m *MockGraph) GetMaxInFlight() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.MaxInFlight
}

func (m *MockGraph) serveCollection(w http.ResponseWriter, r *http.Request, items []map[string]any) {
	if m.Latency > 0 {
		time.Sleep(m.Latency)
	}

	q := r.URL.Query()

	top := m.DefaultTop
	if v := q.Get("$top"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 999 {
			writeError(w, http.StatusBadRequest, "Invalid page size specified")
			return
		}
		top = n
	}

	filter := q.Get("$filter")
	clauses, err := ParseFilter(filter)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	// Graph only supports eq, ne, ge and le on string properties.
	for _, c := range clauses {
		if c.Quoted && (c.Op == "lt" || c.Op == "gt") {
			writeError(w, http.StatusBadRequest, "Request_UnsupportedQuery")
			return
		}
	}

	offset := 0
	if v := q.Get("$skiptoken"); v != "" {
		offset, err = strconv.Atoi(v)
		if err != nil || offset < 0 {
			writeError(w, http.StatusBadRequest, "Invalid skip token")
			return
		}
	} else if filter != "" {
		m.mu.Lock()
		m.Filters = append(m.Filters, filter)
		m.mu.Unlock()
	}

	matched := make([]map[string]any, 0, len(items))
	for _, item := range items {
		if MatchesAll(clauses, item) {
			matched = append(matched, item)
		}
	}

	end := offset + top
	if end > len(matched) {
		end = len(matched)
	}
	if offset > end {
		offset = end
	}

	page := map[string]any{"value": matched[offset:end]}
	if end < len(matched) {
		next := url.Values{}
		for k, v := range q {
			next[k] = v
		}
		next.Set("$skiptoken", strconv.Itoa(end))
		page["@odata.nextLink"] = m.server.URL + r.URL.Path + "?" +
			strings.ReplaceAll(next.Encode(), "+", "%20")
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(page)
}

func writeError(w http.ResponseWriter, status int, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	fmt.Fprintf(w, `{"error":{"code":%q,"message":%q}}`, code, http.StatusText(status))
}

// Clause is one "field op literal" comparison of an OData filter.
type Clause struct {
	Field   string
	Op      string
	Literal string
	Quoted  bool
}

// ParseFilter parses a conjunction of comparisons ("a ge 'x' and a le 'y'").
// Only the operators eq, ne, lt, le, gt and ge are understood.
func ParseFilter(filter string) ([]Clause, error) {
	filter = strings.TrimSpace(filter)
	if filter == "" {
		return nil, nil
	}

	var clauses []Clause
	for _, part := range splitAnd(filter) {
		fields := strings.SplitN(strings.TrimSpace(part), " ", 3)
		if len(fields) != 3 {
			return nil, fmt.Errorf("invalid filter clause %q", part)
		}
		switch fields[1] {
		case "eq", "ne", "lt", "le", "gt", "ge":
		default:
			return nil, fmt.Errorf("unsupported operator %q", fields[1])
		}
		lit := fields[2]
		quoted := strings.HasPrefix(lit, "'")
		if quoted {
			if len(lit) < 2 || !strings.HasSuffix(lit, "'") {
				return nil, fmt.Errorf("unterminated literal %q", lit)
			}
			lit = strings.ReplaceAll(lit[1:len(lit)-1], "''", "'")
		}
		clauses = append(clauses, Clause{Field: fields[0], Op: fields[1], Literal: lit, Quoted: quoted})
	}
	return clauses, nil
}

// splitAnd splits on " and " outside quoted literals.
func splitAnd(s string) []string {
	var parts []string
	inQuote := false
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\'' {
			inQuote = !inQuote
			continue
		}
		if !inQuote && strings.HasPrefix(s[i:], " and ") {
			parts = append(parts, s[start:i])
			i += len(" and ") - 1
			start = i + 1
		}
	}
	return append(parts, s[start:])
}

// MatchesAll reports whether item satisfies every clause, comparing string
// forms lexically.
func MatchesAll(clauses []Clause, item map[string]any) bool {
	for _, c := range clauses {
		v, ok := item[c.Field]
		if !ok || v == nil {
			return false
		}
		s := fmt.Sprint(v)

		var match bool
		switch c.Op {
		case "eq":
			match = s == c.Literal
		case "ne":
			match = s != c.Literal
		case "lt":
			match = s < c.Literal
		case "le":
			match = s <= c.Literal
		case "gt":
			match = s > c.Literal
		case "ge":
			match = s >= c.Literal
		}
		if !match {
			return false
		}
	}
	return true
}

// Users builds n user objects with distinct userPrincipalNames spread over
// the alphabet.
func Users(n int) []map[string]any {
	users := make([]map[string]any, n)
	for i := range users {
		letter := string(rune('a' + i%26))
		users[i] = map[string]any{
			"id":                fmt.Sprintf("u-%04d", i),
			"displayName":       fmt.Sprintf("User %d", i),
			"userPrincipalName": fmt.Sprintf("%s%04d@contoso.example", letter, i),
		}
	}
	return users
}

// SignIns builds n sign-in records spread one per hour backwards from now.
func SignIns(n int, now time.Time) []map[string]any {
	records := make([]map[string]any, n)
	for i := range records {
		at := now.Add(-time.Duration(i) * time.Hour).UTC()
		records[i] = map[string]any{
			"id":              fmt.Sprintf("s-%05d", i),
			"createdDateTime": at.Format(time.RFC3339),
			"userId":          fmt.Sprintf("u-%04d", i%50),
		}
	}
	return records
}
