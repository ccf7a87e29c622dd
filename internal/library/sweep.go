package library

import (
	"context"

	"github.com/vrsandeep/mango-tracker/internal/events"
	"github.com/vrsandeep/mango-tracker/internal/models"
	"go.uber.org/zap"
)

// SweepResult summarizes one sweep or re-sync.
type SweepResult struct {
	Candidates int  `json:"candidates"`
	Processed  int  `json:"processed"`
	Enriched   int  `json:"enriched"`
	NotFound   int  `json:"notFound"`
	Cancelled  bool `json:"cancelled"`
}

// SweepProgress is the payload of sweep.progress events.
type SweepProgress struct {
	Processed int    `json:"processed"`
	Total     int    `json:"total"`
	Title     string `json:"title,omitempty"`
	Done      bool   `json:"done"`
}

// Sweep enriches every entry that NeedsEnrichment selects.
func (e *Engine) Sweep(ctx context.Context) (SweepResult, error) {
	return e.runSweep(ctx, false)
}

// Resync enriches every entry regardless of when it was last checked.
func (e *Engine) Resync(ctx context.Context) (SweepResult, error) {
	return e.runSweep(ctx, true)
}

// CancelSweep asks a running sweep to stop before its next entry.
func (e *Engine) CancelSweep() {
	e.cancelSweep.Store(true)
}

// SweepRunning reports whether a sweep or re-sync is in flight.
func (e *Engine) SweepRunning() bool {
	return e.sweeping.Load()
}

// runSweep processes candidates one at a time. Results are written back
// every batch by re-reading the library and merging metadata fields only,
// so reading progress recorded meanwhile is never overwritten.
func (e *Engine) runSweep(ctx context.Context, force bool) (SweepResult, error) {
	if !e.sweeping.CompareAndSwap(false, true) {
		return SweepResult{}, ErrSweepRunning
	}
	defer e.sweeping.Store(false)
	e.cancelSweep.Store(false)

	e.mu.Lock()
	entries, err := e.store.Entries(ctx)
	e.mu.Unlock()
	if err != nil {
		return SweepResult{}, err
	}

	now := e.Now()
	var candidates []models.LibraryEntry
	for _, entry := range entries {
		if force || NeedsEnrichment(entry, now, e.cfg.RetryWindow, e.cfg.NotFoundCooldown) {
			candidates = append(candidates, entry)
		}
	}

	res := SweepResult{Candidates: len(candidates)}
	e.log.Info("sweep started", zap.Int("candidates", len(candidates)), zap.Bool("force", force))

	var batch []enrichment
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		err := e.applyEnrichment(ctx, batch)
		batch = nil
		return err
	}

	for i, entry := range candidates {
		if ctx.Err() != nil || e.cancelSweep.Load() {
			res.Cancelled = true
			break
		}
		if i > 0 && e.cfg.SweepDelay > 0 {
			if err := e.Sleep(ctx, e.cfg.SweepDelay); err != nil {
				res.Cancelled = true
				break
			}
		}

		result, err := e.enrich(ctx, entry)
		if err != nil {
			// An interrupted lookup says nothing about the title.
			e.log.Info("sweep interrupted", zap.String("title", entry.Title), zap.Error(err))
			res.Cancelled = true
			break
		}
		batch = append(batch, result)
		res.Processed++
		if result.found {
			res.Enriched++
		} else if result.meta.IsNotFound() {
			res.NotFound++
		}
		e.publish(ctx, events.TopicSweepProgress, SweepProgress{Processed: res.Processed, Total: len(candidates), Title: entry.Title})

		if len(batch) >= e.cfg.SweepBatchSize {
			if err := flush(); err != nil {
				e.log.Error("batch persist failed", zap.Error(err))
			}
		}
	}

	// The final write must land even when ctx was cancelled mid-run.
	if err := flush(); err != nil {
		e.log.Error("final persist failed", zap.Error(err))
		return res, err
	}
	e.publish(ctx, events.TopicSweepProgress, SweepProgress{Processed: res.Processed, Total: len(candidates), Done: true})
	e.log.Info("sweep finished",
		zap.Int("processed", res.Processed),
		zap.Int("enriched", res.Enriched),
		zap.Int("not_found", res.NotFound),
		zap.Bool("cancelled", res.Cancelled))
	return res, nil
}

// applyEnrichment merges a batch of results into the current library.
func (e *Engine) applyEnrichment(ctx context.Context, batch []enrichment) error {
	ctx = context.WithoutCancel(ctx)

	e.mu.Lock()
	defer e.mu.Unlock()

	entries, err := e.store.Entries(ctx)
	if err != nil {
		return err
	}
	for _, r := range batch {
		i := indexForResult(entries, r)
		if i < 0 {
			// Deleted while it was being looked up.
			continue
		}
		if r.meta.IsNotFound() && entries[i].HasMetadata() {
			// Real metadata arrived through another flow meanwhile.
			continue
		}
		entries[i].AnilistData = r.meta
		entries[i].LastChecked = r.lastChecked
		entries[i].MangadexChecked = r.mangadexChecked
	}
	entries = Dedupe(entries)
	if err := e.store.SaveEntries(ctx, entries); err != nil {
		return err
	}
	e.publish(ctx, events.TopicLibraryUpdated, LibraryUpdate{Action: "enriched", Count: len(batch)})
	return nil
}

func indexForResult(entries []models.LibraryEntry, r enrichment) int {
	for i := range entries {
		if entries[i].Title == r.title {
			return i
		}
	}
	for i := range entries {
		if r.identity != "" && identityKey(&entries[i]) == r.identity {
			return i
		}
	}
	return -1
}
