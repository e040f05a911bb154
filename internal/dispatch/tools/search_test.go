package tools

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestWebSearchName(t *testing.T) {
	s := NewWebSearch("test-key")
	if s.Name() != "web_search" {
		t.Errorf("expected 'web_search', got %q", s.Name())
	}
}

func TestWebSearchExecute(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Subscription-Token") != "test-key" {
			t.Error("missing API key header")
		}
		if r.URL.Query().Get("q") != "banana nutrition" {
			t.Errorf("unexpected query: %s", r.URL.Query().Get("q"))
		}
		json.NewEncoder(w).Encode(searchResponse{
			Web: searchWeb{
				Results: []searchResult{
					{Title: "Banana Facts", URL: "https://example.com/banana", Description: "Nutrition of bananas"},
					{Title: "Fruit Guide", URL: "https://example.com/fruit", Description: "All about fruit"},
				},
			},
		})
	}))
	defer server.Close()

	s := NewWebSearch("test-key")
	s.baseURL = server.URL

	args, _ := json.Marshal(map[string]any{"query": "banana nutrition", "count": 2})
	result, err := s.Execute(context.Background(), args)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(result, "Banana Facts") {
		t.Errorf("expected title in result, got %q", result)
	}
	if !strings.Contains(result, "https://example.com/banana") {
		t.Errorf("expected URL in result, got %q", result)
	}
}

func TestWebSearchNoResults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(searchResponse{})
	}))
	defer server.Close()

	s := NewWebSearch("test-key")
	s.baseURL = server.URL

	args, _ := json.Marshal(map[string]string{"query": "xyznonexistent"})
	result, err := s.Execute(context.Background(), args)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(result, "No results") {
		t.Errorf("expected 'No results', got %q", result)
	}
}

func TestWebSearchMissingQuery(t *testing.T) {
	s := NewWebSearch("test-key")
	args, _ := json.Marshal(map[string]string{})
	if _, err := s.Execute(context.Background(), args); err == nil {
		t.Fatal("expected error for missing query")
	}
}
