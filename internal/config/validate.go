package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate verifies required fields and value bounds after normalization.
func (c *Config) Validate() error {
	var problems []string

	if strings.TrimSpace(c.Paths.DataDir) == "" {
		problems = append(problems, "paths.data_dir is required")
	}
	if strings.TrimSpace(c.Storage.Bucket) == "" {
		problems = append(problems, "storage.bucket is required")
	}
	if c.Pipeline.PapersPerEpisode < 1 {
		problems = append(problems, "pipeline.papers_per_episode must be at least 1")
	}
	if c.Pipeline.MaxRetries < 1 {
		problems = append(problems, "pipeline.max_retries must be at least 1")
	}
	if c.Pipeline.SummarizeParallel > c.Pipeline.PapersPerEpisode {
		problems = append(problems, "pipeline.summarize_parallelism cannot exceed papers_per_episode")
	}
	if c.TTS.SpeakingRate <= 0 {
		problems = append(problems, "tts.speaking_rate must be positive")
	}
	switch strings.ToLower(strings.TrimSpace(c.Logging.Format)) {
	case "", "console", "json":
	default:
		problems = append(problems, fmt.Sprintf("logging.format: unsupported value %q", c.Logging.Format))
	}

	if len(problems) > 0 {
		return errors.New("invalid configuration: " + strings.Join(problems, "; "))
	}
	return nil
}
