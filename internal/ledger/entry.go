package ledger

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"papercast/internal/services"
)

// Stage names one pipeline step recorded in the ledger.
type Stage string

const (
	StageCollect    Stage = "collect"
	StageSummarize  Stage = "summarize"
	StageSynthesize Stage = "synthesize"
	StageUpload     Stage = "upload"
	StagePublish    Stage = "publish"
	// StageGenerateSite is reserved for downstream artifact generation.
	StageGenerateSite Stage = "generate_site"
)

var knownStages = map[Stage]struct{}{
	StageCollect:      {},
	StageSummarize:    {},
	StageSynthesize:   {},
	StageUpload:       {},
	StagePublish:      {},
	StageGenerateSite: {},
}

// PipelineStages returns the stages the orchestrator executes, in order.
func PipelineStages() []Stage {
	return []Stage{StageCollect, StageSummarize, StageSynthesize, StageUpload, StagePublish}
}

// Status is the lifecycle of one stage attempt record.
type Status string

const (
	StatusStarted   Status = "started"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusRetrying  Status = "retrying"
)

const maxErrorMessageLength = 1000

// Entry is one audit record: a single (run, stage) attempt trail. Retries
// mutate the same logical entry instead of appending duplicates.
type Entry struct {
	ID           string
	EpisodeID    string
	Stage        Stage
	Status       Status
	StartedAt    time.Time
	CompletedAt  *time.Time
	RetryCount   int
	ErrorMessage string
	Metadata     map[string]string
}

// NewEntry opens a started ledger entry for a stage attempt.
func NewEntry(episodeID string, stage Stage) (*Entry, error) {
	episodeID = strings.TrimSpace(episodeID)
	if episodeID == "" {
		return nil, services.Wrap(services.ErrValidation, "ledger", "new entry", "episode id required", nil)
	}
	if _, ok := knownStages[stage]; !ok {
		return nil, services.Wrap(services.ErrValidation, "ledger", "new entry", fmt.Sprintf("unknown stage %q", stage), nil)
	}
	return &Entry{
		ID:        uuid.NewString(),
		EpisodeID: episodeID,
		Stage:     stage,
		Status:    StatusStarted,
		StartedAt: time.Now().UTC(),
		Metadata:  map[string]string{},
	}, nil
}

// MarkRetrying records one more retry on the same logical entry.
func (e *Entry) MarkRetrying(cause error) {
	e.Status = StatusRetrying
	e.RetryCount++
	if cause != nil {
		e.ErrorMessage = truncate(cause.Error())
	}
}

// MarkCompleted resolves the entry successfully.
func (e *Entry) MarkCompleted() {
	now := time.Now().UTC()
	e.Status = StatusCompleted
	e.CompletedAt = &now
	e.ErrorMessage = ""
}

// MarkFailed resolves the entry with the final error.
func (e *Entry) MarkFailed(cause error) {
	now := time.Now().UTC()
	e.Status = StatusFailed
	e.CompletedAt = &now
	if cause != nil {
		e.ErrorMessage = truncate(cause.Error())
	}
}

// Duration reports elapsed stage time; zero while the entry is unresolved.
func (e *Entry) Duration() time.Duration {
	if e.CompletedAt == nil {
		return 0
	}
	return e.CompletedAt.Sub(e.StartedAt)
}

func truncate(message string) string {
	message = strings.TrimSpace(message)
	if len(message) <= maxErrorMessageLength {
		return message
	}
	cut := maxErrorMessageLength
	// Back up to a rune boundary so truncation never leaves invalid UTF-8.
	for cut > 0 && !utf8.RuneStart(message[cut]) {
		cut--
	}
	return message[:cut]
}
