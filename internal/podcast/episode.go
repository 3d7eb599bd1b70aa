package podcast

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	// MaxErrorMessageLength bounds the user-visible failure summary.
	MaxErrorMessageLength = 500

	dateLayout = "2006-01-02"
)

// Episode is one published run's output: a dated catalog entry owning its
// papers and pointing at the durable audio artifact.
type Episode struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Description   string    `json:"description,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	Papers        []Paper   `json:"papers"`
	AudioURL      string    `json:"audio_file_path"`
	AudioDuration int       `json:"audio_duration,omitempty"`
	AudioSize     int64     `json:"audio_size,omitempty"`
	Status        Status    `json:"status"`
	ErrorMessage  string    `json:"error_message,omitempty"`
	Script        string    `json:"script,omitempty"`
}

// ParseDate validates a calendar-date episode identifier.
func ParseDate(id string) (time.Time, error) {
	parsed, err := time.Parse(dateLayout, strings.TrimSpace(id))
	if err != nil {
		return time.Time{}, invalidField("episode id", fmt.Sprintf("%q is not a YYYY-MM-DD date", id))
	}
	return parsed, nil
}

// DateID formats a time as an episode identifier.
func DateID(t time.Time) string {
	return t.UTC().Format(dateLayout)
}

// NewEpisode constructs a pending episode for a target date.
func NewEpisode(id, title string) (*Episode, error) {
	if _, err := ParseDate(id); err != nil {
		return nil, err
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, invalidField("episode title", "must not be empty")
	}
	return &Episode{
		ID:        id,
		Title:     title,
		CreatedAt: time.Now().UTC(),
		Status:    StatusPending,
	}, nil
}

// StartProcessing transitions a pending episode once collection succeeded.
func (e *Episode) StartProcessing(papers []Paper) error {
	if e.Status != StatusPending {
		return invalidField("episode status", fmt.Sprintf("cannot start processing from %q", e.Status))
	}
	e.Papers = append([]Paper(nil), papers...)
	e.Status = StatusProcessing
	return nil
}

// Complete validates every invariant and transitions to completed. This is
// the only path to a completed episode, so completion and validity are the
// same guarantee.
func (e *Episode) Complete(papersPerEpisode int, audioURL string, audioDuration int, audioSize int64) error {
	if e.Status != StatusProcessing {
		return invalidField("episode status", fmt.Sprintf("cannot complete from %q", e.Status))
	}
	if len(e.Papers) != papersPerEpisode {
		return invalidField("episode papers", fmt.Sprintf("have %d, need exactly %d", len(e.Papers), papersPerEpisode))
	}
	for i, paper := range e.Papers {
		if err := paper.Validate(); err != nil {
			return fmt.Errorf("paper %d: %w", i+1, err)
		}
		if strings.TrimSpace(paper.Summary) == "" {
			return invalidField("episode papers", fmt.Sprintf("paper %d has no summary", i+1))
		}
	}
	audioURL = strings.TrimSpace(audioURL)
	if err := validateURL(audioURL); err != nil {
		return invalidField("episode audio url", err.Error())
	}
	if audioDuration < 0 {
		return invalidField("episode audio duration", "must not be negative")
	}
	if audioSize <= 0 {
		return invalidField("episode audio size", "must be positive")
	}

	e.AudioURL = audioURL
	e.AudioDuration = audioDuration
	e.AudioSize = audioSize
	e.ErrorMessage = ""
	e.Status = StatusCompleted
	return nil
}

// Fail marks the episode failed with a truncated error summary.
func (e *Episode) Fail(message string) {
	message = strings.TrimSpace(message)
	if len(message) > MaxErrorMessageLength {
		cut := MaxErrorMessageLength
		// Back up to a rune boundary so truncation never leaves invalid UTF-8.
		for cut > 0 && !utf8.RuneStart(message[cut]) {
			cut--
		}
		message = message[:cut]
	}
	e.Status = StatusFailed
	e.ErrorMessage = message
}

// Validate re-checks invariants on an episode loaded from storage. Only
// completed episodes are required to carry the full artifact fields.
func (e *Episode) Validate() error {
	if _, err := ParseDate(e.ID); err != nil {
		return err
	}
	if strings.TrimSpace(e.Title) == "" {
		return invalidField("episode title", "must not be empty")
	}
	if e.Status == StatusCompleted {
		if len(e.Papers) == 0 {
			return invalidField("episode papers", "completed episode has no papers")
		}
		for i, paper := range e.Papers {
			if err := paper.Validate(); err != nil {
				return fmt.Errorf("paper %d: %w", i+1, err)
			}
		}
		if err := validateURL(e.AudioURL); err != nil {
			return invalidField("episode audio url", err.Error())
		}
	}
	if _, ok := statusSet[e.Status]; !ok {
		return invalidField("episode status", fmt.Sprintf("unknown status %q", e.Status))
	}
	return nil
}

// IsVisible reports whether the episode may be served by the read path.
func (e *Episode) IsVisible() bool {
	return e != nil && e.Status == StatusCompleted
}
