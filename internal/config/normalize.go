package config

import "strings"

func (c *Config) normalize() error {
	var err error
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return err
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return err
	}
	if c.Storage.CredentialsFile, err = expandPath(c.Storage.CredentialsFile); err != nil {
		return err
	}

	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	c.Storage.Bucket = strings.TrimSpace(c.Storage.Bucket)
	c.Storage.PublicBaseURL = strings.TrimRight(strings.TrimSpace(c.Storage.PublicBaseURL), "/")
	c.Gemini.APIKey = strings.TrimSpace(c.Gemini.APIKey)
	c.TTS.APIKey = strings.TrimSpace(c.TTS.APIKey)
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)

	if c.Pipeline.PapersPerEpisode <= 0 {
		c.Pipeline.PapersPerEpisode = defaultPapersPerEpisode
	}
	if c.Pipeline.MaxRetries <= 0 {
		c.Pipeline.MaxRetries = defaultMaxRetries
	}
	if c.Pipeline.RetryBaseDelayMS <= 0 {
		c.Pipeline.RetryBaseDelayMS = defaultRetryBaseDelayMS
	}
	if c.Pipeline.StageTimeout <= 0 {
		c.Pipeline.StageTimeout = defaultStageTimeoutSeconds
	}
	if c.Pipeline.SummarizeParallel <= 0 {
		c.Pipeline.SummarizeParallel = c.Pipeline.PapersPerEpisode
	}
	if c.Repository.CacheTTLSeconds <= 0 {
		c.Repository.CacheTTLSeconds = defaultCacheTTLSeconds
	}
	return nil
}
