package search

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestQueryFlattensResults(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"results":[
			{"title":"Go","snippet":"An open source language","url":"https://go.dev"},
			{"title":"Gin","snippet":"HTTP framework","url":"https://gin-gonic.com"}
		]}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second, 5)
	text, err := c.Query(context.Background(), "golang web framework")
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if gotQuery != "golang web framework" {
		t.Errorf("q param = %q", gotQuery)
	}
	for _, want := range []string{"1. Go", "An open source language", "https://go.dev", "2. Gin"} {
		if !strings.Contains(text, want) {
			t.Errorf("result text missing %q:\n%s", want, text)
		}
	}
}

func TestQueryCapsResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"results":[
			{"title":"a"},{"title":"b"},{"title":"c"},{"title":"d"}
		]}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second, 2)
	text, err := c.Query(context.Background(), "x")
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if !strings.Contains(text, "2. b") || strings.Contains(text, "3. c") {
		t.Fatalf("results not capped at 2:\n%s", text)
	}
}

func TestQueryUnconfiguredOrEmpty(t *testing.T) {
	c := NewClient("", 0, 0)
	if text, err := c.Query(context.Background(), "anything"); err != nil || text != "" {
		t.Fatalf("unconfigured client: got (%q, %v), want empty", text, err)
	}

	c = NewClient("https://search.example.com", 0, 0)
	if text, err := c.Query(context.Background(), "   "); err != nil || text != "" {
		t.Fatalf("blank query: got (%q, %v), want empty", text, err)
	}
}

func TestQueryErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second, 5)
	if _, err := c.Query(context.Background(), "x"); err == nil {
		t.Fatal("expected error on 502")
	}
}

func TestQueryNoResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"results":[]}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second, 5)
	text, err := c.Query(context.Background(), "x")
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if text != "" {
		t.Fatalf("empty result set should yield empty text, got %q", text)
	}
}
