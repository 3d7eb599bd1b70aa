package summarize

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"papercast/internal/config"
	"papercast/internal/logging"
	"papercast/internal/podcast"
	"papercast/internal/services"
)

// Summarizer produces per-paper summaries and the assembled episode script.
type Summarizer interface {
	Summarize(ctx context.Context, paper podcast.Paper) (string, error)
	ComposeScript(ctx context.Context, papers []podcast.Paper, date string) (string, error)
}

// Client talks to the Gemini generateContent endpoint.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	language   string
	httpClient *http.Client
	logger     *slog.Logger
}

var _ Summarizer = (*Client)(nil)

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

// New creates a summarization client from configuration.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.Gemini.APIKey)
	if apiKey == "" {
		return nil, services.Wrap(services.ErrValidation, "summarize", "configure", "gemini api key required", nil)
	}
	baseURL := strings.TrimSpace(cfg.Gemini.BaseURL)
	if baseURL == "" {
		return nil, services.Wrap(services.ErrValidation, "summarize", "configure", "gemini base url required", nil)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	timeout := time.Duration(cfg.Gemini.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	client := &Client{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      cfg.Gemini.Model,
		language:   cfg.Pipeline.SummaryLanguage,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

type generateRequest struct {
	Contents         []content         `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
	TopP            float64 `json:"topP"`
	TopK            int     `json:"topK"`
}

type generateResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Summarize produces a summary for one paper, bounded for the catalog.
// When the model returns unusable output the abstract-based fallback is
// used instead so a single bad generation does not sink the episode.
func (c *Client) Summarize(ctx context.Context, paper podcast.Paper) (string, error) {
	text, err := c.generate(ctx, summaryPrompt(paper, c.language))
	if err != nil {
		if services.IsTransient(err) {
			return "", err
		}
		c.logger.Warn("summary generation failed, using fallback",
			logging.String("paper_id", paper.ID),
			logging.Error(err))
		text = fallbackSummary(paper)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		text = fallbackSummary(paper)
	}
	return clamp(text, podcast.MaxSummaryLength), nil
}

// ComposeScript turns the summarized papers into one narrated episode script.
func (c *Client) ComposeScript(ctx context.Context, papers []podcast.Paper, date string) (string, error) {
	if len(papers) == 0 {
		return "", services.Wrap(services.ErrValidation, "summarize", "compose", "no papers to narrate", nil)
	}
	text, err := c.generate(ctx, scriptPrompt(papers, date, c.language))
	if err != nil {
		if services.IsTransient(err) {
			return "", err
		}
		c.logger.Warn("script generation failed, using fallback", logging.Error(err))
		text = fallbackScript(papers, date)
	}

	text = strings.TrimSpace(text)
	if len(text) < 100 {
		c.logger.Warn("generated script too short, using fallback", logging.Int("length", len(text)))
		text = fallbackScript(papers, date)
	}
	return text, nil
}

func (c *Client) generate(ctx context.Context, prompt string) (string, error) {
	payload := generateRequest{
		Contents: []content{{Parts: []part{{Text: prompt}}}},
		GenerationConfig: &generationConfig{
			Temperature:     0.7,
			MaxOutputTokens: 10000,
			TopP:            0.8,
			TopK:            40,
		},
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", services.Wrap(services.ErrValidation, "summarize", "generate", "marshal request", err)
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", c.baseURL, c.model, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(encoded))
	if err != nil {
		return "", services.Wrap(services.ErrValidation, "summarize", "generate", "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	requestStart := time.Now()
	resp, err := c.httpClient.Do(req)
	latency := time.Since(requestStart)
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "summarize", "generate", fmt.Sprintf("execute request (latency=%v)", latency), err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return "", services.Wrap(services.ErrTransient, "summarize", "generate", fmt.Sprintf("model endpoint returned %d (latency=%v)", resp.StatusCode, latency), nil)
	case resp.StatusCode != http.StatusOK:
		return "", services.Wrap(services.ErrValidation, "summarize", "generate", fmt.Sprintf("model endpoint returned %d", resp.StatusCode), nil)
	}

	var decoded generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", services.Wrap(services.ErrTransient, "summarize", "generate", "decode model response", err)
	}
	if decoded.Error != nil {
		return "", services.Wrap(services.ErrValidation, "summarize", "generate", decoded.Error.Message, nil)
	}
	if len(decoded.Candidates) == 0 {
		return "", services.Wrap(services.ErrValidation, "summarize", "generate", "no candidates in model response", nil)
	}

	candidate := decoded.Candidates[0]
	if candidate.FinishReason != "" && candidate.FinishReason != "STOP" {
		c.logger.Warn("model finished abnormally", logging.String("finish_reason", candidate.FinishReason))
	}
	var builder strings.Builder
	for _, p := range candidate.Content.Parts {
		builder.WriteString(p.Text)
	}
	return builder.String(), nil
}

func clamp(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	cut := text[:limit]
	if idx := strings.LastIndexByte(cut, '.'); idx > limit/2 {
		return cut[:idx+1]
	}
	return cut
}
