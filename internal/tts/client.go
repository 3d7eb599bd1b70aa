package tts

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"papercast/internal/config"
	"papercast/internal/logging"
	"papercast/internal/services"
)

// Requests above this byte count are split into chunks; the synthesis API
// rejects inputs over 5000 bytes and the margin absorbs encoding overhead.
const maxChunkBytes = 4500

// Audio is one synthesized episode recording.
type Audio struct {
	Data     []byte
	Size     int64
	Duration int // seconds, estimated from encoded size
}

// Synthesizer converts an episode script into audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, script string) (*Audio, error)
}

// Client talks to the Cloud Text-to-Speech REST endpoint.
type Client struct {
	apiKey       string
	baseURL      string
	voice        string
	languageCode string
	speakingRate float64
	httpClient   *http.Client
	logger       *slog.Logger
}

var _ Synthesizer = (*Client)(nil)

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

// New creates a synthesis client from configuration.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.TTS.APIKey)
	if apiKey == "" {
		return nil, services.Wrap(services.ErrValidation, "synthesize", "configure", "tts api key required", nil)
	}
	baseURL := strings.TrimSpace(cfg.TTS.BaseURL)
	if baseURL == "" {
		return nil, services.Wrap(services.ErrValidation, "synthesize", "configure", "tts base url required", nil)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	timeout := time.Duration(cfg.TTS.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	rate := cfg.TTS.SpeakingRate
	if rate <= 0 {
		rate = 1.0
	}
	client := &Client{
		apiKey:       apiKey,
		baseURL:      strings.TrimRight(baseURL, "/"),
		voice:        cfg.TTS.Voice,
		languageCode: cfg.TTS.LanguageCode,
		speakingRate: rate,
		httpClient:   &http.Client{Timeout: timeout},
		logger:       logger,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

type synthesizeRequest struct {
	Input struct {
		Text string `json:"text"`
	} `json:"input"`
	Voice struct {
		LanguageCode string `json:"languageCode"`
		Name         string `json:"name"`
	} `json:"voice"`
	AudioConfig struct {
		AudioEncoding   string  `json:"audioEncoding"`
		SpeakingRate    float64 `json:"speakingRate"`
		SampleRateHertz int     `json:"sampleRateHertz"`
	} `json:"audioConfig"`
}

type synthesizeResponse struct {
	AudioContent string `json:"audioContent"`
	Error        *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Synthesize converts the script into a single MP3. Long scripts are split
// into byte-safe chunks and the encoded segments concatenated; MP3 frames
// concatenate cleanly for playback.
func (c *Client) Synthesize(ctx context.Context, script string) (*Audio, error) {
	script = strings.TrimSpace(script)
	if script == "" {
		return nil, services.Wrap(services.ErrValidation, "synthesize", "synthesize", "script must not be empty", nil)
	}

	chunks := splitByBytes(script, maxChunkBytes)
	if len(chunks) > 1 {
		c.logger.Info("splitting script for synthesis",
			logging.Int("chunks", len(chunks)),
			logging.Int("script_bytes", len(script)))
	}

	var audio bytes.Buffer
	for i, chunk := range chunks {
		segment, err := c.synthesizeChunk(ctx, chunk)
		if err != nil {
			// synthesizeChunk already classified the failure; re-wrapping
			// would turn bad credentials into a retryable error.
			return nil, fmt.Errorf("chunk %d/%d: %w", i+1, len(chunks), err)
		}
		audio.Write(segment)
	}

	data := audio.Bytes()
	if len(data) == 0 {
		return nil, services.Wrap(services.ErrValidation, "synthesize", "synthesize", "synthesis produced no audio", nil)
	}
	return &Audio{
		Data:     data,
		Size:     int64(len(data)),
		Duration: estimateDuration(int64(len(data))),
	}, nil
}

func (c *Client) synthesizeChunk(ctx context.Context, text string) ([]byte, error) {
	var payload synthesizeRequest
	payload.Input.Text = text
	payload.Voice.LanguageCode = c.languageCode
	payload.Voice.Name = c.voice
	payload.AudioConfig.AudioEncoding = "MP3"
	payload.AudioConfig.SpeakingRate = c.speakingRate
	payload.AudioConfig.SampleRateHertz = 24000

	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "synthesize", "synthesize", "marshal request", err)
	}

	endpoint := fmt.Sprintf("%s/v1/text:synthesize?key=%s", c.baseURL, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(encoded))
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "synthesize", "synthesize", "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	requestStart := time.Now()
	resp, err := c.httpClient.Do(req)
	latency := time.Since(requestStart)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "synthesize", "synthesize",
			fmt.Sprintf("execute request (latency=%v)", latency), err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, services.Wrap(services.ErrTransient, "synthesize", "synthesize", "synthesis rate limit exceeded", nil)
	case resp.StatusCode >= 500:
		return nil, services.Wrap(services.ErrTransient, "synthesize", "synthesize",
			fmt.Sprintf("synthesis endpoint returned %d (latency=%v)", resp.StatusCode, latency), nil)
	case resp.StatusCode != http.StatusOK:
		return nil, services.Wrap(services.ErrValidation, "synthesize", "synthesize",
			fmt.Sprintf("synthesis endpoint returned %d", resp.StatusCode), nil)
	}

	var decoded synthesizeResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, services.Wrap(services.ErrTransient, "synthesize", "synthesize", "decode synthesis response", err)
	}
	if decoded.Error != nil {
		marker := services.ErrValidation
		if decoded.Error.Code == http.StatusTooManyRequests || decoded.Error.Code >= 500 {
			marker = services.ErrTransient
		}
		return nil, services.Wrap(marker, "synthesize", "synthesize",
			fmt.Sprintf("synthesis error %d: %s", decoded.Error.Code, decoded.Error.Message), nil)
	}
	audio, err := base64.StdEncoding.DecodeString(decoded.AudioContent)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "synthesize", "synthesize", "decode audio content", err)
	}
	return audio, nil
}

// splitByBytes splits text on sentence boundaries so no chunk exceeds
// maxBytes. A single oversized sentence falls back to a rune split.
func splitByBytes(text string, maxBytes int) []string {
	if len(text) <= maxBytes {
		return []string{text}
	}

	var chunks []string
	var current strings.Builder
	for _, sentence := range strings.SplitAfter(text, ". ") {
		if sentence == "" {
			continue
		}
		if current.Len()+len(sentence) > maxBytes && current.Len() > 0 {
			chunks = append(chunks, strings.TrimSpace(current.String()))
			current.Reset()
		}
		if len(sentence) > maxBytes {
			chunks = append(chunks, splitRunes(sentence, maxBytes)...)
			continue
		}
		current.WriteString(sentence)
	}
	if trimmed := strings.TrimSpace(current.String()); trimmed != "" {
		chunks = append(chunks, trimmed)
	}
	return chunks
}

func splitRunes(text string, maxBytes int) []string {
	var chunks []string
	var current strings.Builder
	for _, r := range text {
		if current.Len()+len(string(r)) > maxBytes {
			chunks = append(chunks, current.String())
			current.Reset()
		}
		current.WriteRune(r)
	}
	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}
	return chunks
}

// estimateDuration approximates playback seconds from encoded size, about
// 16 KB per second at 128 kbps.
func estimateDuration(size int64) int {
	duration := int(size / (16 * 1024))
	if duration < 1 {
		duration = 1
	}
	return duration
}
