package scorer_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"fieldcapture/internal/config"
	"fieldcapture/internal/faults"
	"fieldcapture/internal/scorer"
)

func TestDisabledWithoutURL(t *testing.T) {
	client := scorer.New(config.Scorer{})
	if client.Enabled() {
		t.Fatal("client without URL must be disabled")
	}
	if err := client.Score(context.Background(), "stop-1"); err != nil {
		t.Fatalf("disabled client must no-op, got %v", err)
	}
}

func TestScorePostsVisitStop(t *testing.T) {
	var got map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode failed: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := scorer.New(config.Scorer{URL: server.URL, RequestTimeout: 5})
	if err := client.Score(context.Background(), "stop-42"); err != nil {
		t.Fatalf("Score failed: %v", err)
	}
	if got["visit_stop_id"] != "stop-42" {
		t.Fatalf("unexpected payload %v", got)
	}
}

func TestScoreSurfacesServerErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := scorer.New(config.Scorer{URL: server.URL, RequestTimeout: 5})
	err := client.Score(context.Background(), "stop-1")
	if !errors.Is(err, faults.ErrTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}
}
