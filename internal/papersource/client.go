package papersource

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"papercast/internal/config"
	"papercast/internal/logging"
	"papercast/internal/podcast"
	"papercast/internal/services"
)

// entry models one item of the daily papers feed. The feed wraps the paper
// document in an envelope that carries engagement counters.
type entry struct {
	Title       string `json:"title"`
	Summary     string `json:"summary"`
	PublishedAt string `json:"publishedAt"`
	NumComments int    `json:"numComments"`
	Thumbnail   string `json:"thumbnail"`
	Paper       struct {
		ID       string `json:"id"`
		Title    string `json:"title"`
		Abstract string `json:"summary"`
		Upvotes  int    `json:"upvotes"`
		Authors  []struct {
			Name string `json:"name"`
		} `json:"authors"`
	} `json:"paper"`
}

// Source fetches candidate papers for an episode.
type Source interface {
	FetchTop(ctx context.Context, count int, date string) ([]podcast.Paper, error)
}

// Client reads the Hugging Face daily papers feed.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

var _ Source = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// New creates a daily papers client from configuration.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Client, error) {
	baseURL := strings.TrimSpace(cfg.HuggingFace.BaseURL)
	if baseURL == "" {
		return nil, services.Wrap(services.ErrValidation, "collect", "configure", "papers feed base url required", nil)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	timeout := time.Duration(cfg.HuggingFace.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	client := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// FetchTop returns the top count papers from the feed, most engaged first.
// Entries that cannot be turned into a valid paper are skipped with a
// warning; an empty or too-small result is a validation failure because a
// retry will see the same feed.
func (c *Client) FetchTop(ctx context.Context, count int, date string) ([]podcast.Paper, error) {
	if count <= 0 {
		return nil, services.Wrap(services.ErrValidation, "collect", "fetch", "paper count must be positive", nil)
	}

	endpoint, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "collect", "fetch", "parse feed url", err)
	}
	if date != "" {
		params := url.Values{}
		params.Set("date", date)
		endpoint.RawQuery = params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "collect", "fetch", "build request", err)
	}
	req.Header.Set("Accept", "application/json")

	requestStart := time.Now()
	resp, err := c.httpClient.Do(req)
	latency := time.Since(requestStart)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "collect", "fetch", fmt.Sprintf("execute request (latency=%v)", latency), err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, services.Wrap(services.ErrTransient, "collect", "fetch", "feed rate limit exceeded", nil)
	case resp.StatusCode >= 500:
		return nil, services.Wrap(services.ErrTransient, "collect", "fetch", fmt.Sprintf("feed returned %d (latency=%v)", resp.StatusCode, latency), nil)
	case resp.StatusCode != http.StatusOK:
		return nil, services.Wrap(services.ErrValidation, "collect", "fetch", fmt.Sprintf("feed returned %d", resp.StatusCode), nil)
	}

	var entries []entry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, services.Wrap(services.ErrTransient, "collect", "fetch", "decode feed response", err)
	}
	if len(entries) == 0 {
		return nil, services.Wrap(services.ErrValidation, "collect", "fetch", "no papers in feed", nil)
	}

	papers := make([]podcast.Paper, 0, count)
	for _, item := range entries {
		if len(papers) == count {
			break
		}
		paper, err := c.parseEntry(item)
		if err != nil {
			c.logger.Warn("skipping malformed feed entry",
				logging.String("paper_id", item.Paper.ID),
				logging.Error(err))
			continue
		}
		papers = append(papers, paper)
	}

	if len(papers) < count {
		return nil, services.Wrap(services.ErrValidation, "collect", "fetch",
			fmt.Sprintf("feed yielded %d usable papers, need %d", len(papers), count), nil)
	}
	return papers, nil
}

func (c *Client) parseEntry(item entry) (podcast.Paper, error) {
	title := item.Title
	if title == "" {
		title = item.Paper.Title
	}
	authors := make([]string, 0, len(item.Paper.Authors))
	for _, author := range item.Paper.Authors {
		authors = append(authors, author.Name)
	}

	paperURL := fmt.Sprintf("https://huggingface.co/papers/%s", item.Paper.ID)
	paper, err := podcast.NewPaper(item.Paper.ID, title, authors, paperURL)
	if err != nil {
		return podcast.Paper{}, err
	}

	paper.Abstract = strings.TrimSpace(firstNonEmpty(item.Summary, item.Paper.Abstract))
	paper.ArxivID = item.Paper.ID
	paper.Upvotes = item.Paper.Upvotes
	paper.ThumbnailURL = item.Thumbnail
	if item.PublishedAt != "" {
		if published, err := time.Parse(time.RFC3339, item.PublishedAt); err == nil {
			paper.PublishedDate = published.UTC().Format("2006-01-02")
		}
	}
	return paper, nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
