package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"papercast/internal/config"
	"papercast/internal/ledger"
	"papercast/internal/logging"
	"papercast/internal/podcast"
	"papercast/internal/services"
	"papercast/internal/storage"
	"papercast/internal/testsupport"
	"papercast/internal/tts"
)

type fakeSource struct {
	papers []podcast.Paper
	errs   []error
	calls  int
}

func (f *fakeSource) FetchTop(_ context.Context, count int, _ string) ([]podcast.Paper, error) {
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	if len(f.papers) < count {
		return nil, services.Wrap(services.ErrValidation, "collect", "fetch", "not enough papers", nil)
	}
	return append([]podcast.Paper(nil), f.papers[:count]...), nil
}

type fakeSummarizer struct {
	mu          sync.Mutex
	summarized  []string
	calls       map[string]int
	scriptErr   error
	summaryErrs map[string][]error
}

func (f *fakeSummarizer) Summarize(_ context.Context, paper podcast.Paper) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = map[string]int{}
	}
	f.calls[paper.ID]++
	if queue := f.summaryErrs[paper.ID]; len(queue) > 0 {
		err := queue[0]
		f.summaryErrs[paper.ID] = queue[1:]
		if err != nil {
			return "", err
		}
	}
	f.summarized = append(f.summarized, paper.ID)
	return "Summary for " + paper.Title, nil
}

func (f *fakeSummarizer) ComposeScript(_ context.Context, papers []podcast.Paper, date string) (string, error) {
	if f.scriptErr != nil {
		return "", f.scriptErr
	}
	var builder strings.Builder
	fmt.Fprintf(&builder, "Episode for %s. ", date)
	for _, paper := range papers {
		builder.WriteString(paper.Summary)
		builder.WriteString(" ")
	}
	return builder.String(), nil
}

type fakeSynthesizer struct {
	errs  []error
	calls int
}

func (f *fakeSynthesizer) Synthesize(_ context.Context, script string) (*tts.Audio, error) {
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	data := []byte("MP3:" + script[:8])
	return &tts.Audio{Data: data, Size: int64(len(data)), Duration: 90}, nil
}

type memoryLedger struct {
	mu      sync.Mutex
	entries []*ledger.Entry
}

func (l *memoryLedger) Append(_ context.Context, entry *ledger.Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
	return nil
}

func (l *memoryLedger) Update(context.Context, *ledger.Entry) error { return nil }

func testPapers(t *testing.T, n int) []podcast.Paper {
	t.Helper()
	papers := make([]podcast.Paper, 0, n)
	for i := 0; i < n; i++ {
		paper, err := podcast.NewPaper(
			fmt.Sprintf("2501.%05d", i+1),
			fmt.Sprintf("Paper Number %d", i+1),
			[]string{"Author"},
			fmt.Sprintf("https://huggingface.co/papers/2501.%05d", i+1),
		)
		if err != nil {
			t.Fatalf("NewPaper: %v", err)
		}
		paper.Abstract = "An abstract."
		papers = append(papers, paper)
	}
	return papers
}

func newOrchestrator(t *testing.T, cfg *config.Config, source *fakeSource, store storage.ObjectStore, led Ledger) *Orchestrator {
	t.Helper()
	orch, err := New(Deps{
		Config:      cfg,
		Logger:      logging.NewNop(),
		Source:      source,
		Summarizer:  &fakeSummarizer{},
		Synthesizer: &fakeSynthesizer{},
		Store:       store,
		Ledger:      led,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return orch
}

func TestRunPublishesCompletedEpisode(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := storage.NewMemoryStore()
	led := &memoryLedger{}
	source := &fakeSource{papers: testPapers(t, 5)}

	result, err := newOrchestrator(t, cfg, source, store, led).Run(context.Background(), "2025-01-27")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	episode := result.Episode
	if episode.Status != podcast.StatusCompleted {
		t.Fatalf("status = %q", episode.Status)
	}
	if len(episode.Papers) != cfg.Pipeline.PapersPerEpisode {
		t.Fatalf("papers = %d", len(episode.Papers))
	}
	for i, paper := range episode.Papers {
		if paper.Summary == "" {
			t.Fatalf("paper %d has no summary", i)
		}
	}
	if episode.AudioURL == "" || episode.AudioSize <= 0 {
		t.Fatalf("audio fields = %q %d", episode.AudioURL, episode.AudioSize)
	}

	var published podcast.Episode
	if err := store.GetJSON(context.Background(), storage.CatalogPath("2025-01-27"), &published); err != nil {
		t.Fatalf("catalog record missing: %v", err)
	}
	if !published.IsVisible() {
		t.Fatalf("published record = %+v", published)
	}
	if _, _, exists := store.RawObject(storage.AudioPath("2025-01-27")); !exists {
		t.Fatal("audio artifact missing")
	}
	if _, _, exists := store.RawObject(storage.MetadataPath("2025-01-27")); !exists {
		t.Fatal("metadata record missing")
	}

	wantStages := ledger.PipelineStages()
	if len(result.Entries) != len(wantStages) {
		t.Fatalf("entries = %d, want %d", len(result.Entries), len(wantStages))
	}
	for i, entry := range result.Entries {
		if entry.Stage != wantStages[i] {
			t.Fatalf("entry %d stage = %q, want %q", i, entry.Stage, wantStages[i])
		}
		if entry.Status != ledger.StatusCompleted {
			t.Fatalf("stage %q status = %q", entry.Stage, entry.Status)
		}
	}
}

func TestRunRetriesTransientCollectFailure(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	source := &fakeSource{
		papers: testPapers(t, 3),
		errs: []error{
			services.Wrap(services.ErrTransient, "collect", "fetch", "rate limited", nil),
			services.Wrap(services.ErrTransient, "collect", "fetch", "rate limited", nil),
		},
	}

	result, err := newOrchestrator(t, cfg, source, storage.NewMemoryStore(), &memoryLedger{}).Run(context.Background(), "2025-01-27")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if source.calls != 3 {
		t.Fatalf("collect calls = %d", source.calls)
	}
	if result.Entries[0].RetryCount != 2 {
		t.Fatalf("collect retry count = %d", result.Entries[0].RetryCount)
	}
	if result.Entries[0].Status != ledger.StatusCompleted {
		t.Fatalf("collect status = %q", result.Entries[0].Status)
	}
}

func TestRunPermanentCollectFailureNotRetried(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	source := &fakeSource{papers: testPapers(t, 1)}

	result, err := newOrchestrator(t, cfg, source, storage.NewMemoryStore(), &memoryLedger{}).Run(context.Background(), "2025-01-27")
	if err == nil {
		t.Fatal("expected failure")
	}
	if source.calls != 1 {
		t.Fatalf("permanent failure retried: calls = %d", source.calls)
	}
	if result.Episode.Status != podcast.StatusFailed {
		t.Fatalf("episode status = %q", result.Episode.Status)
	}
	if result.Episode.ErrorMessage == "" {
		t.Fatal("failed episode has no error message")
	}
	if result.Entries[0].Status != ledger.StatusFailed {
		t.Fatalf("collect entry status = %q", result.Entries[0].Status)
	}
}

func TestRunRefusesWhenEpisodeAlreadyPublished(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := storage.NewMemoryStore()
	led := &memoryLedger{}
	source := &fakeSource{papers: testPapers(t, 3)}
	orch := newOrchestrator(t, cfg, source, store, led)

	if _, err := orch.Run(context.Background(), "2025-01-27"); err != nil {
		t.Fatalf("first run: %v", err)
	}

	_, err := orch.Run(context.Background(), "2025-01-27")
	if !errors.Is(err, ErrAlreadyCompleted) {
		t.Fatalf("expected ErrAlreadyCompleted, got %v", err)
	}
	if !errors.Is(err, services.ErrConflict) {
		t.Fatalf("duplicate run must classify as conflict, got %v", err)
	}
}

func TestRunAfterFailureIsAllowed(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := storage.NewMemoryStore()
	source := &fakeSource{papers: testPapers(t, 1)}
	orch := newOrchestrator(t, cfg, source, store, &memoryLedger{})

	if _, err := orch.Run(context.Background(), "2025-01-27"); err == nil {
		t.Fatal("expected first run to fail")
	}

	source.papers = testPapers(t, 3)
	result, err := orch.Run(context.Background(), "2025-01-27")
	if err != nil {
		t.Fatalf("rerun after failure: %v", err)
	}
	if result.Episode.Status != podcast.StatusCompleted {
		t.Fatalf("rerun status = %q", result.Episode.Status)
	}
}

func TestRunRetriesSummarizeFailureForOnePaper(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := storage.NewMemoryStore()
	led := &memoryLedger{}
	source := &fakeSource{papers: testPapers(t, 3)}

	summarizer := &fakeSummarizer{summaryErrs: map[string][]error{
		"2501.00002": {
			services.Wrap(services.ErrTransient, "summarize", "generate", "model overloaded", nil),
			services.Wrap(services.ErrTransient, "summarize", "generate", "model overloaded", nil),
		},
	}}
	orch, err := New(Deps{
		Config:      cfg,
		Logger:      logging.NewNop(),
		Source:      source,
		Summarizer:  summarizer,
		Synthesizer: &fakeSynthesizer{},
		Store:       store,
		Ledger:      led,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	result, err := orch.Run(context.Background(), "2025-01-27")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Episode.Status != podcast.StatusCompleted {
		t.Fatalf("episode status = %q", result.Episode.Status)
	}

	entry := result.Entries[1]
	if entry.Stage != ledger.StageSummarize {
		t.Fatalf("entry stage = %q", entry.Stage)
	}
	if entry.RetryCount != 2 {
		t.Fatalf("summarize retry count = %d, want 2", entry.RetryCount)
	}
	if entry.Status != ledger.StatusCompleted {
		t.Fatalf("summarize status = %q", entry.Status)
	}

	// Only the failing paper retries; already-succeeded papers are not
	// re-summarized.
	want := map[string]int{"2501.00001": 1, "2501.00002": 3, "2501.00003": 1}
	summarizer.mu.Lock()
	defer summarizer.mu.Unlock()
	for id, count := range want {
		if summarizer.calls[id] != count {
			t.Fatalf("summarize calls = %v, want %v", summarizer.calls, want)
		}
	}
}

func TestRunPermanentSummarizeFailureNotRetried(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	source := &fakeSource{papers: testPapers(t, 3)}
	led := &memoryLedger{}

	summarizer := &fakeSummarizer{summaryErrs: map[string][]error{
		"2501.00002": {
			services.Wrap(services.ErrValidation, "summarize", "generate", "summary too long", nil),
		},
	}}
	orch, err := New(Deps{
		Config:      cfg,
		Logger:      logging.NewNop(),
		Source:      source,
		Summarizer:  summarizer,
		Synthesizer: &fakeSynthesizer{},
		Store:       storage.NewMemoryStore(),
		Ledger:      led,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	result, err := orch.Run(context.Background(), "2025-01-27")
	if err == nil {
		t.Fatal("expected run failure")
	}
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation classification, got %v", err)
	}
	if result.Episode.Status != podcast.StatusFailed {
		t.Fatalf("episode status = %q", result.Episode.Status)
	}

	entry := result.Entries[1]
	if entry.RetryCount != 0 {
		t.Fatalf("permanent failure retried %d times", entry.RetryCount)
	}
	if entry.Status != ledger.StatusFailed {
		t.Fatalf("summarize status = %q", entry.Status)
	}
}

func TestRunAudioWrittenBeforeCatalog(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := storage.NewMemoryStore()
	source := &fakeSource{papers: testPapers(t, 3)}
	led := &memoryLedger{}

	synthesizer := &fakeSynthesizer{errs: []error{
		services.Wrap(services.ErrTransient, "synthesize", "synthesize", "flaky", nil),
		services.Wrap(services.ErrTransient, "synthesize", "synthesize", "flaky", nil),
		services.Wrap(services.ErrTransient, "synthesize", "synthesize", "flaky", nil),
	}}
	orch, err := New(Deps{
		Config:      cfg,
		Logger:      logging.NewNop(),
		Source:      source,
		Summarizer:  &fakeSummarizer{},
		Synthesizer: synthesizer,
		Store:       store,
		Ledger:      led,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := orch.Run(context.Background(), "2025-01-27"); err == nil {
		t.Fatal("expected synthesis exhaustion")
	}
	if synthesizer.calls != cfg.Pipeline.MaxRetries {
		t.Fatalf("synthesize calls = %d", synthesizer.calls)
	}
	if exists, _ := store.Exists(context.Background(), storage.CatalogPath("2025-01-27")); exists {
		t.Fatal("catalog entry written despite missing audio")
	}
	if exists, _ := store.Exists(context.Background(), storage.AudioPath("2025-01-27")); exists {
		t.Fatal("audio written despite synthesis failure")
	}
}

func TestRunPersistsLedgerEntries(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	led := testsupport.MustOpenLedger(t, cfg)
	source := &fakeSource{papers: testPapers(t, 3)}

	if _, err := newOrchestrator(t, cfg, source, storage.NewMemoryStore(), led).Run(context.Background(), "2025-01-27"); err != nil {
		t.Fatalf("Run: %v", err)
	}

	entries, err := led.ForEpisode(context.Background(), "2025-01-27")
	if err != nil {
		t.Fatalf("ForEpisode: %v", err)
	}
	if len(entries) != 5 {
		t.Fatalf("persisted entries = %d, want 5", len(entries))
	}
	for _, entry := range entries {
		if entry.Status != ledger.StatusCompleted {
			t.Fatalf("stage %q persisted status = %q", entry.Stage, entry.Status)
		}
	}
}

func TestRunRejectsMalformedDate(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	source := &fakeSource{papers: testPapers(t, 3)}
	_, err := newOrchestrator(t, cfg, source, storage.NewMemoryStore(), &memoryLedger{}).Run(context.Background(), "01/27/2025")
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestEpisodeTitleUsesPrefix(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Pipeline.EpisodeTitle = "daily ai papers"
	source := &fakeSource{papers: testPapers(t, 3)}

	result, err := newOrchestrator(t, cfg, source, storage.NewMemoryStore(), &memoryLedger{}).Run(context.Background(), "2025-01-27")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Episode.Title != "Daily Ai Papers 2025-01-27" {
		t.Fatalf("title = %q", result.Episode.Title)
	}
}
