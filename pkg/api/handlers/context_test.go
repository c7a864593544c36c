package handlers

import (
	"net/http"
	"strings"
	"testing"
)

func TestContextHandler_InjectsRetrievedMemories(t *testing.T) {
	env := newTestEnv(t)
	mh := NewMemoryHandler(env.service, testLogger(), nil)
	h := NewContextHandler(env.service, env.detector, env.injector, env.provider, testLogger())

	saved := postJSON(t, mh.Save, "/api/v1/memories", map[string]any{
		"text":     "the payments service deploy checklist for the team",
		"owner_id": "alice",
		"type":     "private",
	})
	if saved.Code != http.StatusCreated {
		t.Fatalf("save status = %d: %s", saved.Code, saved.Body.String())
	}

	w := postJSON(t, h.Inject, "/api/v1/context", map[string]any{
		"prompt":   "the payments service deploy checklist for the team",
		"owner_id": "alice",
		"kind":     "code",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}

	resp := decodeJSON[contextResponse](t, w)
	if resp.MemoriesUsed == 0 {
		t.Fatal("expected retrieved memories in the context")
	}
	if !strings.Contains(resp.Context, "payments service deploy checklist") {
		t.Errorf("context missing memory text: %q", resp.Context)
	}
	if !strings.HasSuffix(strings.TrimSpace(resp.Context), "the payments service deploy checklist for the team") {
		t.Errorf("expected prompt appended last: %q", resp.Context)
	}
	if resp.Degraded {
		t.Error("expected non-degraded retrieval")
	}
}

func TestContextHandler_PassThroughWithoutMemories(t *testing.T) {
	env := newTestEnv(t)
	h := NewContextHandler(env.service, env.detector, env.injector, env.provider, testLogger())

	prompt := "summarize the incident report from yesterday"
	w := postJSON(t, h.Inject, "/api/v1/context", map[string]any{
		"prompt":   prompt,
		"owner_id": "nobody",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}

	resp := decodeJSON[contextResponse](t, w)
	if resp.MemoriesUsed != 0 {
		t.Fatalf("memories_used = %d, want 0", resp.MemoriesUsed)
	}
	if resp.Context != prompt {
		t.Errorf("context = %q, want unchanged prompt", resp.Context)
	}
}

func TestContextHandler_RequiresOwner(t *testing.T) {
	env := newTestEnv(t)
	h := NewContextHandler(env.service, env.detector, env.injector, env.provider, testLogger())

	w := postJSON(t, h.Inject, "/api/v1/context", map[string]any{
		"prompt": "anything at all",
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}
