// Package testutil holds helpers shared by package tests.
package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
)

// HostMux is an http.RoundTripper that serves requests from in-process
// handlers keyed by URL host, so tests can fake several sites at once.
type HostMux struct {
	mu     sync.Mutex
	routes map[string]http.Handler
	hits   map[string]int
}

// NewHostMux returns an empty router.
func NewHostMux() *HostMux {
	return &HostMux{routes: map[string]http.Handler{}, hits: map[string]int{}}
}

// Handle registers h for host.
func (m *HostMux) Handle(host string, h http.HandlerFunc) *HostMux {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.routes[host] = h
	return m
}

// Hits returns how many requests host has received.
func (m *HostMux) Hits(host string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hits[host]
}

// Client returns an http.Client that routes through the mux.
func (m *HostMux) Client() *http.Client {
	return &http.Client{Transport: m}
}

// RoundTrip implements http.RoundTripper.
func (m *HostMux) RoundTrip(r *http.Request) (*http.Response, error) {
	m.mu.Lock()
	h, ok := m.routes[r.URL.Host]
	m.hits[r.URL.Host]++
	m.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("no route to host %s", r.URL.Host)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	resp := rec.Result()
	resp.Request = r
	return resp, nil
}

// HTML writes body as a 200 text/html response.
func HTML(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(body))
	}
}
