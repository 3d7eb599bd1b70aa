package podcast

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"papercast/internal/services"
)

const (
	// MaxTitleLength bounds paper titles in the catalog.
	MaxTitleLength = 500
	// MaxSummaryLength bounds generated summaries in the catalog.
	MaxSummaryLength = 2000
)

// Paper is one source document selected for an episode. A Paper is owned
// exclusively by the episode it belongs to.
type Paper struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Authors       []string  `json:"authors"`
	Abstract      string    `json:"abstract,omitempty"`
	Summary       string    `json:"summary,omitempty"`
	URL           string    `json:"url"`
	ArxivID       string    `json:"arxiv_id,omitempty"`
	Categories    []string  `json:"categories,omitempty"`
	Upvotes       int       `json:"upvotes"`
	ThumbnailURL  string    `json:"thumbnail_url,omitempty"`
	PublishedDate string    `json:"published_date,omitempty"`
	CollectedAt   time.Time `json:"collected_at"`
}

// NewPaper validates and constructs a Paper. Construction is the only path
// to a Paper value, so invalid papers cannot exist in memory.
func NewPaper(id, title string, authors []string, paperURL string) (Paper, error) {
	id = strings.TrimSpace(id)
	title = strings.TrimSpace(title)
	paperURL = strings.TrimSpace(paperURL)

	if id == "" {
		return Paper{}, invalidField("paper id", "must not be empty")
	}
	if title == "" {
		return Paper{}, invalidField("paper title", "must not be empty")
	}
	if len(title) > MaxTitleLength {
		return Paper{}, invalidField("paper title", fmt.Sprintf("exceeds %d characters", MaxTitleLength))
	}
	cleaned := make([]string, 0, len(authors))
	for _, author := range authors {
		if author = strings.TrimSpace(author); author != "" {
			cleaned = append(cleaned, author)
		}
	}
	if len(cleaned) == 0 {
		return Paper{}, invalidField("paper authors", "at least one author required")
	}
	if err := validateURL(paperURL); err != nil {
		return Paper{}, invalidField("paper url", err.Error())
	}

	return Paper{
		ID:          id,
		Title:       title,
		Authors:     cleaned,
		URL:         paperURL,
		CollectedAt: time.Now().UTC(),
	}, nil
}

// SetSummary attaches a generated summary, enforcing the length bound.
func (p *Paper) SetSummary(summary string) error {
	summary = strings.TrimSpace(summary)
	if summary == "" {
		return invalidField("paper summary", "must not be empty")
	}
	if len(summary) > MaxSummaryLength {
		return invalidField("paper summary", fmt.Sprintf("exceeds %d characters", MaxSummaryLength))
	}
	p.Summary = summary
	return nil
}

// Validate re-checks the invariants on a paper loaded from storage.
func (p Paper) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return invalidField("paper id", "must not be empty")
	}
	if strings.TrimSpace(p.Title) == "" || len(p.Title) > MaxTitleLength {
		return invalidField("paper title", fmt.Sprintf("must be 1..%d characters", MaxTitleLength))
	}
	if len(p.Authors) == 0 {
		return invalidField("paper authors", "at least one author required")
	}
	if len(p.Summary) > MaxSummaryLength {
		return invalidField("paper summary", fmt.Sprintf("exceeds %d characters", MaxSummaryLength))
	}
	if err := validateURL(p.URL); err != nil {
		return invalidField("paper url", err.Error())
	}
	return nil
}

func validateURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("malformed: %v", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return fmt.Errorf("missing host")
	}
	return nil
}

func invalidField(field, reason string) error {
	return services.Wrap(services.ErrValidation, "", field, reason, nil)
}
