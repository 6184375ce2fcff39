// Package intake pulls content from the configured feed sources, deduplicates
// it by external URL, runs the rule decision on every new item and escalates
// items that trip the breaking-news keyword list.
package intake

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/reddot-watch/feedfetcher"
	"github.com/rs/zerolog/log"

	"newsdesk/pressroom/internal/lifecycle"
	"newsdesk/pressroom/internal/models"
	"newsdesk/pressroom/internal/rules"
	"newsdesk/pressroom/internal/store"
)

const (
	maxSourceFailures = 10
	fetchTimeout      = 2 * time.Minute

	// detectionPriority is assigned to keyword-detected escalations; editors
	// can raise it when confirming.
	detectionPriority = 5
)

// Stats summarizes one intake pass.
type Stats struct {
	Sources    int
	Processed  int64
	Duplicates int64
	Escalated  int64
	Failed     int64
}

// Intake fetches sources and turns feed items into decided content items.
type Intake struct {
	store            *store.Store
	lifecycle        *lifecycle.Manager
	fetcher          *feedfetcher.FeedFetcher
	workerCount      int
	breakingKeywords []string

	processed  atomic.Int64
	duplicates atomic.Int64
	escalated  atomic.Int64
	failed     atomic.Int64
}

// New creates an intake runner.
func New(s *store.Store, lc *lifecycle.Manager, workerCount int, breakingKeywords []string) *Intake {
	if workerCount <= 0 {
		workerCount = 4
	}

	fetcher := feedfetcher.NewFeedFetcher(feedfetcher.Config{
		UserAgent:            "Pressroom/1.0",
		RequestTimeout:       15 * time.Second,
		MaxItems:             100,
		MaxHeadingLength:     200,
		MaxAge:               48 * time.Hour,
		FutureDriftTolerance: 12 * time.Hour,
	})

	return &Intake{
		store:            s,
		lifecycle:        lc,
		fetcher:          fetcher,
		workerCount:      workerCount,
		breakingKeywords: breakingKeywords,
	}
}

// Run performs intake passes on a fixed interval until the context is
// cancelled.
func (in *Intake) Run(ctx context.Context, interval time.Duration) {
	log.Info().Dur("interval", interval).Msg("Starting intake loop")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		stats, err := in.RunOnce(ctx)
		if err != nil {
			log.Error().Err(err).Msg("Intake pass failed")
		} else {
			log.Info().
				Int("sources", stats.Sources).
				Int64("processed", stats.Processed).
				Int64("duplicates", stats.Duplicates).
				Int64("escalated", stats.Escalated).
				Int64("failed_sources", stats.Failed).
				Msg("Intake pass finished")
		}

		select {
		case <-ctx.Done():
			log.Info().Msg("Stopping intake loop")
			return
		case <-ticker.C:
		}
	}
}

// RunOnce fetches every active source with a bounded worker pool.
func (in *Intake) RunOnce(ctx context.Context) (Stats, error) {
	in.processed.Store(0)
	in.duplicates.Store(0)
	in.escalated.Store(0)
	in.failed.Store(0)

	sources, err := in.store.ListActiveSources(ctx)
	if err != nil {
		return Stats{}, err
	}

	queue := make(chan models.Source, len(sources))
	for _, src := range sources {
		queue <- src
	}
	close(queue)

	var wg sync.WaitGroup
	for i := 0; i < in.workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for src := range queue {
				if ctx.Err() != nil {
					return
				}
				in.fetchSource(ctx, &src)
			}
		}()
	}
	wg.Wait()

	return Stats{
		Sources:    len(sources),
		Processed:  in.processed.Load(),
		Duplicates: in.duplicates.Load(),
		Escalated:  in.escalated.Load(),
		Failed:     in.failed.Load(),
	}, ctx.Err()
}

func (in *Intake) fetchSource(ctx context.Context, src *models.Source) {
	fetchCtx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	items, fetchErr := in.fetcher.FetchAndProcess(fetchCtx, src.FeedURL)

	now := time.Now().UTC()
	if fetchErr != nil {
		in.failed.Add(1)
		src.FailuresCount++
		src.LastError = sql.NullString{String: fetchErr.Error(), Valid: true}
		if src.FailuresCount > maxSourceFailures {
			src.Status = "failed"
		}
		if err := in.store.UpdateSourceFetchResult(ctx, src, now); err != nil {
			log.Error().Err(err).Int64("source_id", src.ID).Msg("Failed to record fetch failure")
		}
		log.Warn().
			Err(fetchErr).
			Int64("source_id", src.ID).
			Str("url", src.FeedURL).
			Msg("Source fetch failed")
		return
	}

	src.FailuresCount = 0
	src.LastError = sql.NullString{}
	src.Status = "active"
	if err := in.store.UpdateSourceFetchResult(ctx, src, now); err != nil {
		log.Error().Err(err).Int64("source_id", src.ID).Msg("Failed to record fetch result")
	}

	for _, item := range items {
		if item.URL == "" {
			continue
		}
		in.ingestItem(ctx, src, item.URL, item.Headline, item.Content)
	}
}

// ingestItem stores one feed item, decides it and escalates on breaking
// keywords. Duplicates are counted and dropped.
func (in *Intake) ingestItem(ctx context.Context, src *models.Source, url, headline, content string) {
	item := models.NewContentItem()
	item.SourceID = src.ID
	item.ExternalURL = sql.NullString{String: url, Valid: true}
	item.Title = headline
	item.Body = content
	item.TrustLevelSnapshot = src.TrustLevel

	id, err := in.store.InsertContentItem(ctx, item)
	if errors.Is(err, store.ErrDuplicateContent) {
		in.duplicates.Add(1)
		return
	}
	if err != nil {
		log.Error().Err(err).Str("url", url).Msg("Failed to insert content item")
		return
	}
	item.ID = id
	in.processed.Add(1)

	if _, err := in.lifecycle.Decide(ctx, id); err != nil && !errors.Is(err, lifecycle.ErrAlreadyDecided) {
		log.Error().Err(err).Int64("content_item_id", id).Msg("Failed to decide content item")
		return
	}

	matched := rules.MatchedKeywords(item, in.breakingKeywords)
	if len(matched) == 0 {
		return
	}

	_, err = in.lifecycle.MarkBreaking(ctx, id, lifecycle.Escalation{
		Priority: detectionPriority,
		Reason:   "keyword detection: " + strings.Join(matched, ", "),
		Keywords: matched,
	})
	if err != nil {
		var tErr *lifecycle.InvalidTransitionError
		if errors.As(err, &tErr) {
			return
		}
		log.Error().Err(err).Int64("content_item_id", id).Msg("Failed to escalate content item")
		return
	}
	in.escalated.Add(1)
}
