package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alienxp03/thinktank/internal/core"
	"github.com/alienxp03/thinktank/internal/memory"
	"github.com/alienxp03/thinktank/internal/persist"
)

func seedRun(t *testing.T, base string) string {
	t.Helper()
	out, err := persist.NewRunDir(base, "Grid Storage", time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("NewRunDir failed: %v", err)
	}
	debate := &core.Debate{
		ID:        "d1",
		SpecTitle: "Grid Storage",
		Status:    core.StatusCompleted,
		StartedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Rounds: []core.Round{
			{Number: 1, Moves: []core.Move{
				{ID: "M001", ExpertID: "ana", Round: 1, Position: 0, Type: core.MoveArgument, Content: "Opening."},
			}},
		},
	}
	if err := out.WriteState(debate); err != nil {
		t.Fatalf("WriteState failed: %v", err)
	}
	return filepath.Base(out.Path)
}

func newTestServer(t *testing.T) (*httptest.Server, string, *memory.Store) {
	t.Helper()
	runsDir := t.TempDir()

	store, err := memory.Open(filepath.Join(t.TempDir(), "memory.db"))
	if err != nil {
		t.Fatalf("memory.Open failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	server := httptest.NewServer(New(runsDir, store).Router())
	t.Cleanup(server.Close)
	return server, runsDir, store
}

func getJSON(t *testing.T, url string, v any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s failed: %v", url, err)
	}
	defer resp.Body.Close()
	if v != nil {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func TestRunEndpoints(t *testing.T) {
	server, runsDir, _ := newTestServer(t)
	name := seedRun(t, runsDir)

	t.Run("list runs", func(t *testing.T) {
		var runs []runSummary
		if code := getJSON(t, server.URL+"/api/runs", &runs); code != http.StatusOK {
			t.Fatalf("status = %d", code)
		}
		if len(runs) != 1 || runs[0].Name != name || runs[0].Status != core.StatusCompleted {
			t.Errorf("runs = %+v", runs)
		}
	})

	t.Run("get run", func(t *testing.T) {
		var debate core.Debate
		if code := getJSON(t, server.URL+"/api/runs/"+name, &debate); code != http.StatusOK {
			t.Fatalf("status = %d", code)
		}
		if debate.ID != "d1" {
			t.Errorf("debate = %+v", debate)
		}
	})

	t.Run("verify run", func(t *testing.T) {
		var result map[string]any
		if code := getJSON(t, server.URL+"/api/runs/"+name+"/verify", &result); code != http.StatusOK {
			t.Fatalf("status = %d", code)
		}
		if result["ok"] != true {
			t.Errorf("verify = %v", result)
		}
	})

	t.Run("export run markdown", func(t *testing.T) {
		resp, err := http.Get(server.URL + "/api/runs/" + name + "/export/markdown")
		if err != nil {
			t.Fatalf("GET failed: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("status = %d", resp.StatusCode)
		}
		if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "markdown") {
			t.Errorf("content type = %q", ct)
		}
	})

	t.Run("unknown run is 404", func(t *testing.T) {
		if code := getJSON(t, server.URL+"/api/runs/absent", nil); code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", code)
		}
	})
}

func TestForecastEndpoints(t *testing.T) {
	server, _, store := newTestServer(t)

	batch := &memory.Batch{Forecasts: []core.Forecast{{
		ID: "f1", Text: "Capacity doubles by 2030", Probability: 0.7,
		Deadline: "2030-12-31", State: core.ForecastPending,
		ExpertID: "ana", SourceDebate: "d1", SourceClaimID: "M001_C1",
		CreatedAt: time.Now().UTC(),
	}}}
	if err := store.CommitBatch(batch); err != nil {
		t.Fatalf("CommitBatch failed: %v", err)
	}

	t.Run("list forecasts", func(t *testing.T) {
		var forecasts []core.Forecast
		if code := getJSON(t, server.URL+"/api/forecasts", &forecasts); code != http.StatusOK {
			t.Fatalf("status = %d", code)
		}
		if len(forecasts) != 1 || forecasts[0].ID != "f1" {
			t.Errorf("forecasts = %+v", forecasts)
		}
	})

	resolve := func(body string) int {
		resp, err := http.Post(server.URL+"/api/forecasts/f1/resolve", "application/json", strings.NewReader(body))
		if err != nil {
			t.Fatalf("POST failed: %v", err)
		}
		defer resp.Body.Close()
		return resp.StatusCode
	}

	t.Run("resolve requires explicit outcome", func(t *testing.T) {
		if code := resolve(`{}`); code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", code)
		}
	})

	t.Run("resolve once succeeds", func(t *testing.T) {
		if code := resolve(`{"outcome": true}`); code != http.StatusOK {
			t.Errorf("status = %d, want 200", code)
		}
	})

	t.Run("double resolution conflicts", func(t *testing.T) {
		if code := resolve(`{"outcome": false}`); code != http.StatusConflict {
			t.Errorf("status = %d, want 409", code)
		}
	})

	t.Run("unknown forecast is 404", func(t *testing.T) {
		resp, err := http.Post(server.URL+"/api/forecasts/absent/resolve", "application/json", strings.NewReader(`{"outcome": true}`))
		if err != nil {
			t.Fatalf("POST failed: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("status = %d, want 404", resp.StatusCode)
		}
	})
}

func TestMemoryEndpointsWithoutStore(t *testing.T) {
	server := httptest.NewServer(New(t.TempDir(), nil).Router())
	defer server.Close()

	for _, path := range []string{"/api/lessons", "/api/forecasts", "/api/performance", "/api/brier"} {
		if code := getJSON(t, server.URL+path, nil); code != http.StatusServiceUnavailable {
			t.Errorf("%s status = %d, want 503", path, code)
		}
	}
}
