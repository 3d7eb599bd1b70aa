package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"papercast/internal/config"
	"papercast/internal/ledger"
	"papercast/internal/logging"
	"papercast/internal/notifications"
	"papercast/internal/papersource"
	"papercast/internal/podcast"
	"papercast/internal/retry"
	"papercast/internal/services"
	"papercast/internal/storage"
	"papercast/internal/summarize"
	"papercast/internal/tts"
)

// ErrAlreadyCompleted reports that a completed episode is already published
// for the target date and the run was refused.
var ErrAlreadyCompleted = errors.New("episode already published for date")

// Ledger records the per-stage audit trail of a run.
type Ledger interface {
	Append(ctx context.Context, entry *ledger.Entry) error
	Update(ctx context.Context, entry *ledger.Entry) error
}

// Deps lists the collaborators a run needs.
type Deps struct {
	Config      *config.Config
	Logger      *slog.Logger
	Source      papersource.Source
	Summarizer  summarize.Summarizer
	Synthesizer tts.Synthesizer
	Store       storage.ObjectStore
	Ledger      Ledger
	Notifier    notifications.Service
}

// Orchestrator drives one episode through collect, summarize, synthesize,
// upload, and publish.
type Orchestrator struct {
	cfg         *config.Config
	logger      *slog.Logger
	source      papersource.Source
	summarizer  summarize.Summarizer
	synthesizer tts.Synthesizer
	store       storage.ObjectStore
	ledger      Ledger
	notifier    notifications.Service
}

// RunResult is the outcome of one pipeline run.
type RunResult struct {
	Episode  *podcast.Episode
	Entries  []*ledger.Entry
	Duration time.Duration
}

// New validates the dependency set and builds an orchestrator.
func New(deps Deps) (*Orchestrator, error) {
	if deps.Config == nil {
		return nil, errors.New("pipeline requires config")
	}
	if deps.Source == nil || deps.Summarizer == nil || deps.Synthesizer == nil {
		return nil, errors.New("pipeline requires source, summarizer, and synthesizer")
	}
	if deps.Store == nil || deps.Ledger == nil {
		return nil, errors.New("pipeline requires object store and ledger")
	}
	if deps.Logger == nil {
		deps.Logger = logging.NewNop()
	}
	if deps.Notifier == nil {
		deps.Notifier = notifications.NewService(deps.Config)
	}
	return &Orchestrator{
		cfg:         deps.Config,
		logger:      deps.Logger,
		source:      deps.Source,
		summarizer:  deps.Summarizer,
		synthesizer: deps.Synthesizer,
		store:       deps.Store,
		ledger:      deps.Ledger,
		notifier:    deps.Notifier,
	}, nil
}

// Run produces and publishes the episode for targetDate (YYYY-MM-DD, empty
// means today UTC). The audio artifact is durably written before the catalog
// entry; readers never observe an episode whose audio is missing.
func (o *Orchestrator) Run(ctx context.Context, targetDate string) (*RunResult, error) {
	episodeID, err := resolveDate(targetDate)
	if err != nil {
		return nil, err
	}
	ctx = services.WithEpisodeID(ctx, episodeID)
	logger := o.logger.With(logging.String(logging.FieldEpisodeID, episodeID))
	runStart := time.Now()

	unlock, err := o.acquireRunLock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	if err := o.refuseIfPublished(ctx, episodeID); err != nil {
		return nil, err
	}

	episode, err := podcast.NewEpisode(episodeID, o.episodeTitle(episodeID))
	if err != nil {
		return nil, err
	}
	result := &RunResult{Episode: episode}

	logger.Info("pipeline run starting", logging.Int("papers_per_episode", o.cfg.Pipeline.PapersPerEpisode))
	if err := o.notifier.NotifyRunStarted(ctx, episodeID, o.cfg.Pipeline.PapersPerEpisode); err != nil {
		logger.Warn("run start notification failed", logging.Error(err))
	}

	runErr := o.execute(ctx, logger, episode, result)
	result.Duration = time.Since(runStart)

	if runErr != nil {
		episode.Fail(services.Message(runErr))
		logger.Error("pipeline run failed",
			logging.Error(runErr),
			logging.Duration("elapsed", result.Duration))
		if err := o.notifier.NotifyRunFailed(ctx, episodeID, runErr); err != nil {
			logger.Warn("run failure notification failed", logging.Error(err))
		}
		return result, runErr
	}

	logger.Info("pipeline run completed",
		logging.String("audio_url", episode.AudioURL),
		logging.Duration("elapsed", result.Duration))
	if err := o.notifier.NotifyRunCompleted(ctx, episodeID, episode.AudioURL, result.Duration); err != nil {
		logger.Warn("run completion notification failed", logging.Error(err))
	}
	return result, nil
}

func (o *Orchestrator) execute(ctx context.Context, logger *slog.Logger, episode *podcast.Episode, result *RunResult) error {
	var papers []podcast.Paper
	err := o.runStage(ctx, logger, result, episode.ID, ledger.StageCollect, func(ctx context.Context, policy retry.Policy) error {
		return retry.Do(ctx, policy, func(ctx context.Context) error {
			fetched, err := o.source.FetchTop(ctx, o.cfg.Pipeline.PapersPerEpisode, episode.ID)
			if err != nil {
				return err
			}
			papers = fetched
			return nil
		})
	}, func(entry *ledger.Entry) {
		entry.Metadata["papers_count"] = strconv.Itoa(len(papers))
	})
	if err != nil {
		return err
	}
	if err := episode.StartProcessing(papers); err != nil {
		return err
	}

	var script string
	err = o.runStage(ctx, logger, result, episode.ID, ledger.StageSummarize, func(ctx context.Context, policy retry.Policy) error {
		if err := o.summarizePapers(ctx, policy, episode); err != nil {
			return err
		}
		composed, err := retry.DoValue(ctx, policy, func(ctx context.Context) (string, error) {
			return o.summarizer.ComposeScript(ctx, episode.Papers, episode.ID)
		})
		if err != nil {
			return err
		}
		script = composed
		episode.Script = script
		return nil
	}, func(entry *ledger.Entry) {
		entry.Metadata["script_chars"] = strconv.Itoa(len(script))
	})
	if err != nil {
		return err
	}

	var audio *tts.Audio
	err = o.runStage(ctx, logger, result, episode.ID, ledger.StageSynthesize, func(ctx context.Context, policy retry.Policy) error {
		synthesized, err := retry.DoValue(ctx, policy, func(ctx context.Context) (*tts.Audio, error) {
			return o.synthesizer.Synthesize(ctx, script)
		})
		if err != nil {
			return err
		}
		audio = synthesized
		return nil
	}, func(entry *ledger.Entry) {
		if audio != nil {
			entry.Metadata["audio_bytes"] = strconv.FormatInt(audio.Size, 10)
		}
	})
	if err != nil {
		return err
	}

	audioPath := storage.AudioPath(episode.ID)
	err = o.runStage(ctx, logger, result, episode.ID, ledger.StageUpload, func(ctx context.Context, policy retry.Policy) error {
		return retry.Do(ctx, policy, func(ctx context.Context) error {
			return o.store.PutBlob(ctx, audioPath, audio.Data, storage.ContentTypeMP3)
		})
	}, nil)
	if err != nil {
		return err
	}

	if err := episode.Complete(o.cfg.Pipeline.PapersPerEpisode, o.store.PublicURL(audioPath), audio.Duration, audio.Size); err != nil {
		return err
	}

	return o.runStage(ctx, logger, result, episode.ID, ledger.StagePublish, func(ctx context.Context, policy retry.Policy) error {
		return retry.Do(ctx, policy, func(ctx context.Context) error {
			if err := o.store.PutJSONIfAbsent(ctx, storage.CatalogPath(episode.ID), episode); err != nil {
				return err
			}
			metadata := episodeMetadata(episode)
			if err := o.store.PutJSON(ctx, storage.MetadataPath(episode.ID), metadata); err != nil {
				// The catalog entry is already durable; the supplemental
				// record is best effort.
				logger.Warn("metadata write failed", logging.Error(err))
			}
			return nil
		})
	}, nil)
}

// summarizePapers fans summary generation out across a bounded worker group.
// Each paper retries independently under the stage policy; a paper that
// exhausts its attempts cancels the remaining in-flight summaries. Summaries
// land at the paper's original index so episode ordering is stable.
func (o *Orchestrator) summarizePapers(ctx context.Context, policy retry.Policy, episode *podcast.Episode) error {
	group, groupCtx := errgroup.WithContext(ctx)
	parallel := o.cfg.Pipeline.SummarizeParallel
	if parallel <= 0 {
		parallel = 1
	}
	group.SetLimit(parallel)

	for i := range episode.Papers {
		group.Go(func() error {
			paper := episode.Papers[i]
			summary, err := retry.DoValue(groupCtx, policy, func(ctx context.Context) (string, error) {
				return o.summarizer.Summarize(ctx, paper)
			})
			if err != nil {
				return fmt.Errorf("paper %s: %w", paper.ID, err)
			}
			if err := episode.Papers[i].SetSummary(summary); err != nil {
				return fmt.Errorf("paper %s: %w", paper.ID, err)
			}
			return nil
		})
	}
	return group.Wait()
}

// runStage opens a ledger entry for one pipeline stage and resolves it from
// fn's outcome. fn receives the stage retry policy and decides its scope:
// most stages wrap their single external call, summarize retries each paper
// independently. The entry aggregates retry counts across all attempts.
func (o *Orchestrator) runStage(ctx context.Context, logger *slog.Logger, result *RunResult, episodeID string, stage ledger.Stage, fn func(context.Context, retry.Policy) error, annotate func(*ledger.Entry)) error {
	ctx = services.WithStage(ctx, string(stage))
	stageLogger := logger.With(logging.String(logging.FieldStage, string(stage)))

	entry, err := ledger.NewEntry(episodeID, stage)
	if err != nil {
		return err
	}
	if err := o.ledger.Append(ctx, entry); err != nil {
		return fmt.Errorf("record stage start: %w", err)
	}
	result.Entries = append(result.Entries, entry)

	// Summarize workers retry concurrently against the same entry.
	var entryMu sync.Mutex
	policy := retry.Policy{
		MaxAttempts:    o.cfg.Pipeline.MaxRetries,
		BaseDelay:      time.Duration(o.cfg.Pipeline.RetryBaseDelayMS) * time.Millisecond,
		AttemptTimeout: time.Duration(o.cfg.Pipeline.StageTimeout) * time.Second,
		OnRetry: func(attempt int, cause error, delay time.Duration) {
			entryMu.Lock()
			entry.MarkRetrying(cause)
			if err := o.ledger.Update(ctx, entry); err != nil {
				stageLogger.Warn("ledger retry update failed", logging.Error(err))
			}
			entryMu.Unlock()
			stageLogger.Warn("stage attempt failed, retrying",
				logging.Int("attempt", attempt),
				logging.Duration("delay", delay),
				logging.Error(cause))
		},
	}

	stageStart := time.Now()
	stageLogger.Info("stage started")
	stageErr := fn(ctx, policy)

	if annotate != nil {
		annotate(entry)
	}
	if stageErr != nil {
		entry.MarkFailed(stageErr)
		if err := o.ledger.Update(ctx, entry); err != nil {
			stageLogger.Warn("ledger failure update failed", logging.Error(err))
		}
		return fmt.Errorf("stage %s: %w", stage, stageErr)
	}

	entry.MarkCompleted()
	if err := o.ledger.Update(ctx, entry); err != nil {
		stageLogger.Warn("ledger completion update failed", logging.Error(err))
	}
	stageLogger.Info("stage completed",
		logging.Duration("elapsed", time.Since(stageStart)),
		logging.Int("retries", entry.RetryCount))
	return nil
}

// refuseIfPublished enforces one completed episode per date. Failed or
// missing records do not block a rerun.
func (o *Orchestrator) refuseIfPublished(ctx context.Context, episodeID string) error {
	var existing podcast.Episode
	err := o.store.GetJSON(ctx, storage.CatalogPath(episodeID), &existing)
	switch {
	case err == nil:
		if existing.IsVisible() {
			return services.Wrap(services.ErrConflict, "pipeline", "run",
				fmt.Sprintf("episode %s", episodeID), ErrAlreadyCompleted)
		}
		return nil
	case errors.Is(err, services.ErrNotFound):
		return nil
	default:
		return fmt.Errorf("check existing episode: %w", err)
	}
}

// acquireRunLock takes the cross-process run lock so two generators cannot
// race on the same bucket.
func (o *Orchestrator) acquireRunLock() (func(), error) {
	if err := o.cfg.EnsureDirectories(); err != nil {
		return nil, err
	}
	lock := flock.New(filepath.Join(o.cfg.Paths.DataDir, "papercast.lock"))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire run lock: %w", err)
	}
	if !ok {
		return nil, services.Wrap(services.ErrConflict, "pipeline", "run", "another run is already in progress", nil)
	}
	return func() {
		if err := lock.Unlock(); err != nil {
			o.logger.Warn("failed to release run lock", logging.Error(err))
		}
	}, nil
}

func (o *Orchestrator) episodeTitle(episodeID string) string {
	prefix := strings.TrimSpace(o.cfg.Pipeline.EpisodeTitle)
	if prefix == "" {
		prefix = "daily papers"
	}
	title := cases.Title(language.English).String(prefix)
	return fmt.Sprintf("%s %s", title, episodeID)
}

func resolveDate(targetDate string) (string, error) {
	targetDate = strings.TrimSpace(targetDate)
	if targetDate == "" {
		return podcast.DateID(time.Now()), nil
	}
	parsed, err := podcast.ParseDate(targetDate)
	if err != nil {
		return "", err
	}
	return podcast.DateID(parsed), nil
}

func episodeMetadata(episode *podcast.Episode) map[string]any {
	paperTitles := make([]string, 0, len(episode.Papers))
	for _, paper := range episode.Papers {
		paperTitles = append(paperTitles, paper.Title)
	}
	return map[string]any{
		"episode_id":     episode.ID,
		"title":          episode.Title,
		"generated_at":   time.Now().UTC().Format(time.RFC3339),
		"paper_titles":   paperTitles,
		"audio_duration": episode.AudioDuration,
		"audio_size":     episode.AudioSize,
	}
}
