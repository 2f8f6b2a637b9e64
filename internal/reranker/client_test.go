package reranker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{
			name:    "empty endpoint",
			config:  Config{Endpoint: "", Model: "rerank-model"},
			wantErr: true,
		},
		{
			name:    "empty model",
			config:  Config{Endpoint: "http://localhost:8080", Model: ""},
			wantErr: true,
		},
		{
			name:    "valid config",
			config:  Config{Endpoint: "http://localhost:8080", Model: "rerank-model"},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.config)
			if (err != nil) != tt.wantErr {
				t.Errorf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestClient_Rerank(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rerank" {
			t.Errorf("path = %q, want /rerank", r.URL.Path)
		}
		var req rerankRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if req.Query != "how to install" {
			t.Errorf("query = %q", req.Query)
		}
		// Scores deliberately out of input order.
		json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]any{
				{"index": 1, "relevance_score": 0.9},
				{"index": 0, "relevance_score": 0.2},
				{"index": 2, "relevance_score": 0.7},
			},
		})
	}))
	defer server.Close()

	client, err := New(Config{Endpoint: server.URL, Model: "rerank-model"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	scores, err := client.Rerank(context.Background(), "how to install", []string{"doc a", "doc b", "doc c"})
	if err != nil {
		t.Fatalf("Rerank() error = %v", err)
	}

	want := []float64{0.2, 0.9, 0.7}
	if len(scores) != len(want) {
		t.Fatalf("got %d scores, want %d", len(scores), len(want))
	}
	for i := range want {
		if scores[i] != want[i] {
			t.Errorf("scores[%d] = %v, want %v (must align with input order)", i, scores[i], want[i])
		}
	}
}

func TestClient_Rerank_EmptyDocuments(t *testing.T) {
	client, _ := New(Config{Endpoint: "http://localhost:1", Model: "m"})

	scores, err := client.Rerank(context.Background(), "q", nil)
	if err != nil {
		t.Fatalf("Rerank() error = %v", err)
	}
	if scores != nil {
		t.Errorf("Rerank(empty) = %v, want nil", scores)
	}
}

func TestClient_Rerank_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model overloaded", http.StatusTooManyRequests)
	}))
	defer server.Close()

	client, _ := New(Config{Endpoint: server.URL, Model: "m"})

	_, err := client.Rerank(context.Background(), "q", []string{"doc"})
	if err == nil {
		t.Fatal("Rerank() should surface provider errors")
	}
}
