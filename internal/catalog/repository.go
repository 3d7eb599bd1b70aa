package catalog

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"papercast/internal/config"
	"papercast/internal/logging"
	"papercast/internal/podcast"
	"papercast/internal/services"
	"papercast/internal/storage"
)

// Repository serves completed episodes from the object store through a
// time-bounded cache. Failed and in-flight runs are invisible to readers.
type Repository struct {
	store  storage.ObjectStore
	logger *slog.Logger
	ttl    time.Duration
	clock  func() time.Time

	mu        sync.Mutex
	cached    []*podcast.Episode
	fetchedAt time.Time
}

// Page is one bounded slice of the catalog.
type Page struct {
	Episodes []*podcast.Episode
	Total    int
	Offset   int
	Limit    int
}

// NewRepository builds a read-side repository over the object store.
func NewRepository(store storage.ObjectStore, cfg *config.Config, logger *slog.Logger) (*Repository, error) {
	if store == nil {
		return nil, errors.New("repository requires an object store")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	ttl := time.Duration(cfg.Repository.CacheTTLSeconds) * time.Second
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Repository{
		store:  store,
		logger: logger,
		ttl:    ttl,
		clock:  time.Now,
	}, nil
}

// FindAll returns every visible episode, newest first.
func (r *Repository) FindAll(ctx context.Context) ([]*podcast.Episode, error) {
	episodes, err := r.load(ctx)
	if err != nil {
		return nil, err
	}
	return append([]*podcast.Episode(nil), episodes...), nil
}

// FindByID returns the visible episode for a date, or not-found.
func (r *Repository) FindByID(ctx context.Context, episodeID string) (*podcast.Episode, error) {
	if _, err := podcast.ParseDate(episodeID); err != nil {
		return nil, err
	}
	episodes, err := r.load(ctx)
	if err != nil {
		return nil, err
	}
	for _, episode := range episodes {
		if episode.ID == episodeID {
			return episode, nil
		}
	}
	return nil, services.Wrap(services.ErrNotFound, "catalog", "find", "episode "+episodeID, nil)
}

// FindLatest returns the most recent visible episode.
func (r *Repository) FindLatest(ctx context.Context) (*podcast.Episode, error) {
	episodes, err := r.load(ctx)
	if err != nil {
		return nil, err
	}
	if len(episodes) == 0 {
		return nil, services.Wrap(services.ErrNotFound, "catalog", "find", "no episodes published", nil)
	}
	return episodes[0], nil
}

// FindPage returns a bounded window of the catalog, newest first.
func (r *Repository) FindPage(ctx context.Context, offset, limit int) (*Page, error) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = 20
	}
	episodes, err := r.load(ctx)
	if err != nil {
		return nil, err
	}
	page := &Page{Total: len(episodes), Offset: offset, Limit: limit}
	if offset >= len(episodes) {
		page.Episodes = []*podcast.Episode{}
		return page, nil
	}
	end := offset + limit
	if end > len(episodes) {
		end = len(episodes)
	}
	page.Episodes = append([]*podcast.Episode(nil), episodes[offset:end]...)
	return page, nil
}

// Invalidate drops the cache so the next read hits storage.
func (r *Repository) Invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cached = nil
	r.fetchedAt = time.Time{}
}

// load returns the cached episode list, refreshing from storage when the
// cache is stale. A storage outage surfaces as unavailability rather than
// an empty catalog.
func (r *Repository) load(ctx context.Context) ([]*podcast.Episode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cached != nil && r.clock().Sub(r.fetchedAt) < r.ttl {
		return r.cached, nil
	}

	episodes, err := r.fetch(ctx)
	if err != nil {
		return nil, err
	}
	r.cached = episodes
	r.fetchedAt = r.clock()
	return episodes, nil
}

func (r *Repository) fetch(ctx context.Context) ([]*podcast.Episode, error) {
	paths, err := r.store.List(ctx, storage.CatalogPrefix)
	if err != nil {
		if services.IsPermanent(err) {
			return nil, err
		}
		return nil, services.Wrap(services.ErrUnavailable, "catalog", "list", "episode storage unreachable", err)
	}

	episodes := make([]*podcast.Episode, 0, len(paths))
	for _, path := range paths {
		if !strings.HasSuffix(path, ".json") {
			continue
		}
		var episode podcast.Episode
		if err := r.store.GetJSON(ctx, path, &episode); err != nil {
			if errors.Is(err, services.ErrValidation) || errors.Is(err, services.ErrNotFound) {
				r.logger.Warn("skipping malformed episode record",
					logging.String("path", path),
					logging.Error(err))
				continue
			}
			return nil, services.Wrap(services.ErrUnavailable, "catalog", "load", path, err)
		}
		if err := episode.Validate(); err != nil {
			r.logger.Warn("skipping invalid episode record",
				logging.String("path", path),
				logging.Error(err))
			continue
		}
		if !episode.IsVisible() {
			continue
		}
		episodes = append(episodes, &episode)
	}

	sort.Slice(episodes, func(i, j int) bool {
		return episodes[i].ID > episodes[j].ID
	})
	return episodes, nil
}
