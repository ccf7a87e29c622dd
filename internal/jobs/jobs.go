package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/pkg/errors"
	"github.com/vrsandeep/mango-tracker/internal/library"
	"github.com/vrsandeep/mango-tracker/internal/scraper"
	"go.uber.org/zap"
)

// Job ids.
const (
	JobSweep           = "library-sweep"
	JobResync          = "library-resync"
	JobDedupe          = "library-dedupe"
	JobReconcile       = "bookmark-reconcile"
	JobScrapeBookmarks = "bookmark-scrape"
	JobBackupSync      = "backup-sync"
	JobBackupUpload    = "backup-upload"
)

// RegisterDefaultJobs registers every job the tracker knows.
func RegisterDefaultJobs(jm *JobManager) {
	jm.Register(JobSweep, "Enrich library", RunSweep)
	jm.Register(JobResync, "Re-sync all metadata", RunResync)
	jm.Register(JobDedupe, "Remove duplicate entries", RunDedupe)
	jm.Register(JobReconcile, "Reconcile bookmarks", RunReconcile)
	jm.Register(JobScrapeBookmarks, "Import bookmarks from sites", RunScrapeBookmarks)
	jm.Register(JobBackupSync, "Sync cloud backup", RunBackupSync)
	jm.Register(JobBackupUpload, "Upload cloud backup", RunBackupUpload)
}

// StartScheduler starts the background job scheduler. Scheduled runs go
// through the manager so they never overlap a manually triggered job.
func StartScheduler(app JobContext, jm *JobManager) *gocron.Scheduler {
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	log := app.Logger().Named("scheduler")

	schedule(s, app, jm, log, JobSweep, app.Config().Library.SweepInterval)
	if app.Syncer() != nil {
		schedule(s, app, jm, log, JobBackupSync, app.Config().Backup.Interval)
	}

	log.Info("starting background job scheduler")
	s.StartAsync()
	return s
}

func schedule(s *gocron.Scheduler, app JobContext, jm *JobManager, log *zap.Logger, jobID string, minutes int) {
	if minutes <= 0 {
		log.Info("scheduled run disabled", zap.String("job", jobID))
		return
	}
	log.Info("scheduling job", zap.String("job", jobID), zap.Int("every_minutes", minutes))
	_, err := s.Every(minutes).Minutes().WaitForSchedule().Do(func() {
		if err := jm.RunJob(jobID, app); err != nil {
			log.Warn("scheduled job could not start", zap.String("job", jobID), zap.Error(err))
		}
	})
	if err != nil {
		log.Error("error scheduling job", zap.String("job", jobID), zap.Error(err))
	}
}

func RunSweep(ctx context.Context, app JobContext) (string, error) {
	res, err := app.Engine().Sweep(ctx)
	if err != nil {
		return "", err
	}
	return sweepMessage(res), nil
}

func RunResync(ctx context.Context, app JobContext) (string, error) {
	res, err := app.Engine().Resync(ctx)
	if err != nil {
		return "", err
	}
	return sweepMessage(res), nil
}

func sweepMessage(res library.SweepResult) string {
	msg := fmt.Sprintf("Processed %d of %d entries: %d enriched, %d not found.",
		res.Processed, res.Candidates, res.Enriched, res.NotFound)
	if res.Cancelled {
		msg += " Cancelled."
	}
	return msg
}

func RunDedupe(ctx context.Context, app JobContext) (string, error) {
	removed, err := app.Engine().Deduplicate(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Removed %d duplicate entries.", removed), nil
}

func RunReconcile(ctx context.Context, app JobContext) (string, error) {
	res, err := app.Engine().ReconcileBookmarks(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Added %d and updated %d entries.", res.Added, res.Updated), nil
}

// RunScrapeBookmarks walks every configured bookmark page source. A failing
// source does not stop the others.
func RunScrapeBookmarks(ctx context.Context, app JobContext) (string, error) {
	cfg := app.Config().Scraper
	if len(cfg.Sources) == 0 {
		return "No bookmark sources configured.", nil
	}
	var total library.BookmarkResult
	var failed int
	for _, sc := range cfg.Sources {
		src, err := scraper.NewHTMLSource(sc)
		if err != nil {
			app.Logger().Warn("invalid bookmark source", zap.String("source", sc.Name), zap.Error(err))
			failed++
			continue
		}
		res, err := app.Engine().ImportFromSource(ctx, src, cfg.MaxPages)
		total.Added += res.Added
		total.Updated += res.Updated
		if err != nil {
			app.Logger().Warn("bookmark source failed", zap.String("source", sc.Name), zap.Error(err))
			failed++
		}
	}
	msg := fmt.Sprintf("Added %d and updated %d entries from %d sources.", total.Added, total.Updated, len(cfg.Sources))
	if failed == len(cfg.Sources) {
		return "", errors.New("every bookmark source failed")
	}
	if failed > 0 {
		msg += fmt.Sprintf(" %d failed.", failed)
	}
	return msg, nil
}

func RunBackupSync(ctx context.Context, app JobContext) (string, error) {
	syncer := app.Syncer()
	if syncer == nil {
		return "", errors.New("no backup target configured")
	}
	res, err := syncer.Sync(ctx)
	if err != nil {
		return "", err
	}
	if !res.RemoteFound {
		return fmt.Sprintf("Uploaded first backup (%d bytes).", res.Bytes), nil
	}
	return fmt.Sprintf("Merged remote backup (%d entries) and uploaded %d bytes.", res.Import.Entries, res.Bytes), nil
}

func RunBackupUpload(ctx context.Context, app JobContext) (string, error) {
	syncer := app.Syncer()
	if syncer == nil {
		return "", errors.New("no backup target configured")
	}
	n, err := syncer.Upload(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Uploaded %d bytes.", n), nil
}
