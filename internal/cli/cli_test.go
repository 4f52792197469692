package cli

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

// --- Client Tests ---

func TestClient_SubmitBatch(t *testing.T) {
	var gotAuth, gotDomain string
	var gotBody map[string]json.RawMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v1/batches" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		gotDomain = r.Header.Get("X-Wiki-Domain")
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"data":{"id":7,"domain":"en.wikipedia.org","status":"OPEN"}}`))
	}))
	defer srv.Close()

	client := NewClient(ClientConfig{BaseURL: srv.URL, Token: "tok", Domain: "en.wikipedia.org"})
	batch, err := client.SubmitBatch(SubmitBatchRequest{Title: "t", Commands: json.RawMessage(`[]`)})
	if err != nil {
		t.Fatalf("SubmitBatch: %v", err)
	}
	if batch.ID != 7 || batch.Status != "OPEN" {
		t.Errorf("batch = %+v", batch)
	}
	if gotAuth != "Bearer tok" || gotDomain != "en.wikipedia.org" {
		t.Errorf("headers = %q, %q", gotAuth, gotDomain)
	}
	if string(gotBody["title"]) != `"t"` || string(gotBody["commands"]) != `[]` {
		t.Errorf("body = %v", gotBody)
	}
}

func TestClient_ListCommands(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/batches/3/commands" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("offset"); got != "2" {
			t.Errorf("offset = %q", got)
		}
		w.Write([]byte(`{"data":[{"id":12,"line":"A|+X","status":"EDIT","outcome":{"base_revision":1,"revision":2}}],"total":1}`))
	}))
	defer srv.Close()

	commands, err := NewClient(ClientConfig{BaseURL: srv.URL}).ListCommands(3, 2, 5)
	if err != nil {
		t.Fatalf("ListCommands: %v", err)
	}
	want := []CommandResponse{{ID: 12, Line: "A|+X", Status: "EDIT", Outcome: json.RawMessage(`{"base_revision":1,"revision":2}`)}}
	if diff := cmp.Diff(want, commands); diff != "" {
		t.Errorf("commands (-want +got):\n%s", diff)
	}
}

func TestClient_SuspendBackground(t *testing.T) {
	var body suspendRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/batches/3/background/suspend" {
			t.Errorf("path = %s", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&body)
		w.Write([]byte(`{"data":{"id":3}}`))
	}))
	defer srv.Close()

	if _, err := NewClient(ClientConfig{BaseURL: srv.URL}).SuspendBackground(3, 90*time.Second); err != nil {
		t.Fatalf("SuspendBackground: %v", err)
	}
	if body.Seconds != 90 {
		t.Errorf("seconds = %d, want 90", body.Seconds)
	}
}

func TestClient_Error(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"code":"VALIDATION_FAILED","message":"batch is invalid","fields":[{"index":1,"field":"actions","message":"command has no actions"}]}}`))
	}))
	defer srv.Close()

	_, err := NewClient(ClientConfig{BaseURL: srv.URL}).SubmitBatch(SubmitBatchRequest{Commands: json.RawMessage(`[]`)})
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"VALIDATION_FAILED", "command 1: actions: command has no actions"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not contain %q", err, want)
		}
	}
}

// --- Helper Tests ---

func TestParseSubmit(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		title    string
		commands string
		wantErr  bool
	}{
		{"list", `[{"page":{"title":"A"}}]`, "", `[{"page":{"title":"A"}}]`, false},
		{"object", `{"title":"t","commands":[{"page":{"title":"A"}}]}`, "t", `[{"page":{"title":"A"}}]`, false},
		{"object without commands", `{"title":"t"}`, "", "", true},
		{"garbage", `nope`, "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := parseSubmit([]byte(tt.input))
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if req.Title != tt.title || string(req.Commands) != tt.commands {
				t.Errorf("req = %q, %s", req.Title, req.Commands)
			}
		})
	}
}

func TestBackgroundDescription(t *testing.T) {
	if got := background(nil); got != "stopped" {
		t.Errorf("background(nil) = %q", got)
	}
	until := time.Now().Add(time.Hour)
	run := &BackgroundRunResponse{StartedAt: time.Now(), StartedBy: User{UserName: "Owner"}, SuspendedUntil: &until}
	if got := background(run); !strings.HasPrefix(got, "suspended until ") {
		t.Errorf("background(suspended) = %q", got)
	}
	run.SuspendedUntil = nil
	if got := background(run); !strings.HasSuffix(got, "by Owner") {
		t.Errorf("background(running) = %q", got)
	}
}

func TestParseID(t *testing.T) {
	if id, err := parseID("42"); err != nil || id != 42 {
		t.Errorf("parseID(42) = %d, %v", id, err)
	}
	for _, s := range []string{"", "0", "-1", "x"} {
		if _, err := parseID(s); err == nil {
			t.Errorf("parseID(%q): expected error", s)
		}
	}
}
