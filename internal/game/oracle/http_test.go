package oracle

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dungeontalk/dungeontalk/internal/platform/errors"
)

func TestGenerateSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ai-response" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.RoomID != "room-1" || req.TurnNumber != 3 {
			t.Errorf("unexpected request %+v", req)
		}
		_ = json.NewEncoder(w).Encode(Response{
			Content:   "The goblin flees.",
			LatencyMs: 900,
			Sources:   []string{"bestiary"},
		})
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, 5*time.Second)
	resp, err := client.Generate(context.Background(), Request{
		GameID:         "game-1",
		RoomID:         "room-1",
		CurrentUser:    "user-1",
		CurrentMessage: "attack the goblin",
		TurnNumber:     3,
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if resp.Content != "The goblin flees." {
		t.Fatalf("unexpected content %q", resp.Content)
	}
	if resp.LatencyMs != 900 {
		t.Fatalf("unexpected latency %d", resp.LatencyMs)
	}
}

func TestGenerateNonSuccessStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, 5*time.Second)
	_, err := client.Generate(context.Background(), Request{RoomID: "room-1"})
	if !stderrors.Is(err, errors.New(errors.CodeOracleFailure, "")) {
		t.Fatalf("expected ORACLE_FAILURE, got %v", err)
	}
}

func TestGenerateTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, 20*time.Millisecond)
	_, err := client.Generate(context.Background(), Request{RoomID: "room-1"})
	if !stderrors.Is(err, errors.New(errors.CodeOracleFailure, "")) {
		t.Fatalf("expected ORACLE_FAILURE on timeout, got %v", err)
	}
}

func TestHealth(t *testing.T) {
	healthy := true
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		status := "healthy"
		if !healthy {
			status = "degraded"
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"status": status})
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, 5*time.Second)
	if !client.Health(context.Background()) {
		t.Fatal("expected healthy")
	}
	healthy = false
	if client.Health(context.Background()) {
		t.Fatal("expected unhealthy")
	}
}
