package jobs_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vrsandeep/mango-tracker/internal/backup"
	"github.com/vrsandeep/mango-tracker/internal/config"
	"github.com/vrsandeep/mango-tracker/internal/events"
	"github.com/vrsandeep/mango-tracker/internal/jobs"
	"github.com/vrsandeep/mango-tracker/internal/kv"
	"github.com/vrsandeep/mango-tracker/internal/library"
	"github.com/vrsandeep/mango-tracker/internal/store"
	"github.com/vrsandeep/mango-tracker/internal/transfer"
	"go.uber.org/zap"
)

type fakeJobContext struct {
	cfg    *config.Config
	engine *library.Engine
	svc    *transfer.Service
	syncer *backup.Syncer
	events *events.Recorder
}

func (f *fakeJobContext) Config() *config.Config      { return f.cfg }
func (f *fakeJobContext) Engine() *library.Engine     { return f.engine }
func (f *fakeJobContext) Transfer() *transfer.Service { return f.svc }
func (f *fakeJobContext) Syncer() *backup.Syncer      { return f.syncer }
func (f *fakeJobContext) Publisher() events.Publisher { return f.events }
func (f *fakeJobContext) Logger() *zap.Logger         { return zap.NewNop() }

func newJobContext(t *testing.T) *fakeJobContext {
	t.Helper()
	rec := events.NewRecorder()
	st := store.New(kv.NewMemory(), false)
	engine := library.New(st, nil, nil, rec, config.LibraryConfig{}, zap.NewNop())
	engine.Sleep = func(context.Context, time.Duration) error { return nil }
	return &fakeJobContext{
		cfg:    &config.Config{},
		engine: engine,
		svc:    transfer.NewService(engine, rec, zap.NewNop()),
		events: rec,
	}
}

func TestManager_RegisterAndGetStatus(t *testing.T) {
	mgr := jobs.NewManager(zap.NewNop())
	assert.Empty(t, mgr.GetStatus())

	mgr.Register("jobB", "Job B", func(context.Context, jobs.JobContext) (string, error) { return "", nil })
	mgr.Register("jobA", "Job A", func(context.Context, jobs.JobContext) (string, error) { return "", nil })

	statuses := mgr.GetStatus()
	require.Len(t, statuses, 2)
	assert.Equal(t, "jobA", statuses[0].ID)
	assert.Equal(t, "Job A", statuses[0].Name)
	assert.Equal(t, "idle", statuses[1].Status)
}

func TestManager_RunJob_SuccessAndStatus(t *testing.T) {
	app := newJobContext(t)
	mgr := jobs.NewManager(zap.NewNop())
	mgr.Register("jobX", "Job X", func(context.Context, jobs.JobContext) (string, error) { return "did it", nil })

	require.NoError(t, mgr.RunJob("jobX", app))
	mgr.Wait()

	statuses := mgr.GetStatus()
	assert.Equal(t, "success", statuses[0].Status)
	assert.Equal(t, "did it", statuses[0].Message)
	assert.False(t, statuses[0].EndTime.IsZero())

	var final jobs.ProgressUpdate
	for _, e := range app.events.Events() {
		if e.Topic == events.TopicJobProgress {
			final = e.Payload.(jobs.ProgressUpdate)
		}
	}
	assert.True(t, final.Done)
	assert.Equal(t, "jobX", final.JobID)
}

func TestManager_RunJob_AlreadyRunning(t *testing.T) {
	app := newJobContext(t)
	mgr := jobs.NewManager(zap.NewNop())
	block := make(chan struct{})
	mgr.Register("jobY", "Job Y", func(context.Context, jobs.JobContext) (string, error) {
		<-block
		return "", nil
	})
	require.NoError(t, mgr.RunJob("jobY", app))
	assert.ErrorIs(t, mgr.RunJob("jobY", app), jobs.ErrJobRunning)
	close(block)
	mgr.Wait()
}

func TestManager_RunJob_NotFound(t *testing.T) {
	mgr := jobs.NewManager(zap.NewNop())
	assert.ErrorIs(t, mgr.RunJob("nojob", newJobContext(t)), jobs.ErrJobNotFound)
}

func TestManager_RunJob_FailureAndPanic(t *testing.T) {
	app := newJobContext(t)
	mgr := jobs.NewManager(zap.NewNop())
	mgr.Register("failJob", "Fail Job", func(context.Context, jobs.JobContext) (string, error) {
		return "", errors.New("boom")
	})
	mgr.Register("panicJob", "Panic Job", func(context.Context, jobs.JobContext) (string, error) { panic("fail") })

	require.NoError(t, mgr.RunJob("failJob", app))
	mgr.Wait()
	require.NoError(t, mgr.RunJob("panicJob", app))
	mgr.Wait()

	statuses := mgr.GetStatus()
	assert.Equal(t, "failed", statuses[0].Status)
	assert.Equal(t, "boom", statuses[0].Message)
	assert.Equal(t, "failed", statuses[1].Status)
	assert.Contains(t, statuses[1].Message, "panicked")
}

func TestManager_Concurrency(t *testing.T) {
	app := newJobContext(t)
	mgr := jobs.NewManager(zap.NewNop())
	var mu sync.Mutex
	var count int
	release := make(chan struct{})
	mgr.Register("jobC", "Job C", func(context.Context, jobs.JobContext) (string, error) {
		mu.Lock()
		count++
		mu.Unlock()
		<-release
		return "", nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = mgr.RunJob("jobC", app)
		}()
	}
	wg.Wait()
	close(release)
	mgr.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, count, "job should only run once concurrently")
}
