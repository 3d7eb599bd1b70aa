package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"papercast/internal/catalog"
	"papercast/internal/config"
	"papercast/internal/logging"
	"papercast/internal/podcast"
	"papercast/internal/storage"
)

type staticHealth struct{ err error }

func (h staticHealth) CheckHealth(context.Context) error { return h.err }

func seedEpisode(t *testing.T, store *storage.MemoryStore, id string) {
	t.Helper()
	episode := &podcast.Episode{
		ID:        id,
		Title:     "Daily Papers " + id,
		CreatedAt: time.Now().UTC(),
		Status:    podcast.StatusCompleted,
		AudioURL:  "https://storage.googleapis.com/bucket/" + storage.AudioPath(id),
		AudioSize: 2048,
	}
	for i := 0; i < 3; i++ {
		paper, err := podcast.NewPaper(
			fmt.Sprintf("%s-%d", id, i),
			fmt.Sprintf("Paper %d", i),
			[]string{"Author"},
			"https://huggingface.co/papers/x",
		)
		if err != nil {
			t.Fatalf("NewPaper: %v", err)
		}
		if err := paper.SetSummary("A summary."); err != nil {
			t.Fatalf("SetSummary: %v", err)
		}
		episode.Papers = append(episode.Papers, paper)
	}
	if err := store.PutJSON(context.Background(), storage.CatalogPath(id), episode); err != nil {
		t.Fatalf("PutJSON: %v", err)
	}
}

func newTestServer(t *testing.T, store *storage.MemoryStore, health HealthChecker) *Server {
	t.Helper()
	cfg := config.Default()
	cfg.Storage.Bucket = "test"
	repo, err := catalog.NewRepository(store, &cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("NewRepository: %v", err)
	}
	srv, err := New(&cfg, repo, health, logging.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return srv
}

func TestListEpisodes(t *testing.T) {
	store := storage.NewMemoryStore()
	seedEpisode(t, store, "2025-01-25")
	seedEpisode(t, store, "2025-01-26")
	seedEpisode(t, store, "2025-01-27")
	srv := newTestServer(t, store, nil)

	recorder := httptest.NewRecorder()
	srv.Handler().ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/api/episodes?limit=2", nil))

	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", recorder.Code, recorder.Body)
	}
	var response episodesResponse
	if err := json.Unmarshal(recorder.Body.Bytes(), &response); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if response.Total != 3 || len(response.Episodes) != 2 {
		t.Fatalf("response = %+v", response)
	}
	if response.Episodes[0].ID != "2025-01-27" {
		t.Fatalf("first episode = %s", response.Episodes[0].ID)
	}
}

func TestGetEpisodeByDate(t *testing.T) {
	store := storage.NewMemoryStore()
	seedEpisode(t, store, "2025-01-27")
	srv := newTestServer(t, store, nil)

	recorder := httptest.NewRecorder()
	srv.Handler().ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/api/episodes/2025-01-27", nil))
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d", recorder.Code)
	}
	var episode podcast.Episode
	if err := json.Unmarshal(recorder.Body.Bytes(), &episode); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if episode.ID != "2025-01-27" || len(episode.Papers) != 3 {
		t.Fatalf("episode = %+v", episode)
	}
}

func TestGetEpisodeNotFound(t *testing.T) {
	srv := newTestServer(t, storage.NewMemoryStore(), nil)
	recorder := httptest.NewRecorder()
	srv.Handler().ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/api/episodes/2099-01-01", nil))
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("status = %d", recorder.Code)
	}
}

func TestGetEpisodeBadDate(t *testing.T) {
	srv := newTestServer(t, storage.NewMemoryStore(), nil)
	recorder := httptest.NewRecorder()
	srv.Handler().ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/api/episodes/not-a-date", nil))
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", recorder.Code)
	}
}

func TestLatestEpisode(t *testing.T) {
	store := storage.NewMemoryStore()
	seedEpisode(t, store, "2025-01-25")
	seedEpisode(t, store, "2025-01-27")
	srv := newTestServer(t, store, nil)

	recorder := httptest.NewRecorder()
	srv.Handler().ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/api/episodes/latest", nil))
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d", recorder.Code)
	}
	var episode podcast.Episode
	if err := json.Unmarshal(recorder.Body.Bytes(), &episode); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if episode.ID != "2025-01-27" {
		t.Fatalf("latest = %s", episode.ID)
	}
}

func TestStorageOutageReturns503(t *testing.T) {
	store := storage.NewMemoryStore()
	store.Err = errors.New("connection refused")
	srv := newTestServer(t, store, nil)

	recorder := httptest.NewRecorder()
	srv.Handler().ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/api/episodes", nil))
	if recorder.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", recorder.Code)
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t, storage.NewMemoryStore(), staticHealth{})
	recorder := httptest.NewRecorder()
	srv.Handler().ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d", recorder.Code)
	}

	degraded := newTestServer(t, storage.NewMemoryStore(), staticHealth{err: errors.New("ledger unreachable")})
	recorder = httptest.NewRecorder()
	degraded.Handler().ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if recorder.Code != http.StatusServiceUnavailable {
		t.Fatalf("degraded status = %d", recorder.Code)
	}
}
