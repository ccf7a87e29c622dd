package jobs

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/vrsandeep/mango-tracker/internal/backup"
	"github.com/vrsandeep/mango-tracker/internal/config"
	"github.com/vrsandeep/mango-tracker/internal/events"
	"github.com/vrsandeep/mango-tracker/internal/library"
	"github.com/vrsandeep/mango-tracker/internal/transfer"
	"go.uber.org/zap"
)

var (
	ErrJobRunning  = errors.New("jobs: a job is already running")
	ErrJobNotFound = errors.New("jobs: job not found")
)

// JobContext provides the dependencies a job needs. core.App implements it.
type JobContext interface {
	Config() *config.Config
	Engine() *library.Engine
	Transfer() *transfer.Service
	Syncer() *backup.Syncer // nil when no backup target is configured
	Publisher() events.Publisher
	Logger() *zap.Logger
}

// Task is the body of a job. The returned message ends up in the status.
type Task func(ctx context.Context, app JobContext) (string, error)

type JobStatus struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Status    string    `json:"status"` // "idle", "running", "success", "failed"
	Message   string    `json:"message"`
	StartTime time.Time `json:"start_time,omitempty"`
	EndTime   time.Time `json:"end_time,omitempty"`
}

// ProgressUpdate is the payload of jobs.progress events.
type ProgressUpdate struct {
	JobID   string `json:"jobId"`
	Status  string `json:"status"`
	Message string `json:"message"`
	Done    bool   `json:"done"`
}

// JobManager runs registered jobs one at a time.
type JobManager struct {
	mu      sync.Mutex
	jobs    map[string]Task
	status  map[string]*JobStatus
	running bool
	wg      sync.WaitGroup
	log     *zap.Logger
}

func NewManager(log *zap.Logger) *JobManager {
	return &JobManager{
		jobs:   make(map[string]Task),
		status: make(map[string]*JobStatus),
		log:    log.Named("jobs"),
	}
}

func (jm *JobManager) Register(id, name string, task Task) {
	jm.mu.Lock()
	defer jm.mu.Unlock()
	jm.jobs[id] = task
	jm.status[id] = &JobStatus{ID: id, Name: name, Status: "idle"}
}

// RunJob starts a job in the background. Only one job runs at a time.
func (jm *JobManager) RunJob(id string, app JobContext) error {
	jm.mu.Lock()
	if jm.running {
		jm.mu.Unlock()
		return ErrJobRunning
	}
	task, ok := jm.jobs[id]
	if !ok {
		jm.mu.Unlock()
		return errors.Wrapf(ErrJobNotFound, "%q", id)
	}

	jm.running = true
	status := jm.status[id]
	status.Status = "running"
	status.StartTime = time.Now()
	status.EndTime = time.Time{}
	status.Message = "Job started..."
	jm.wg.Add(1)
	jm.mu.Unlock()

	jm.log.Info("starting job", zap.String("job", id))
	publish(app, ProgressUpdate{JobID: id, Status: "running", Message: "Job started..."})

	go func() {
		defer jm.wg.Done()
		var (
			msg string
			err error
		)
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("job panicked: %v", r)
			}

			jm.mu.Lock()
			status.EndTime = time.Now()
			if err != nil {
				status.Status = "failed"
				status.Message = err.Error()
			} else {
				status.Status = "success"
				status.Message = msg
				if msg == "" {
					status.Message = "Job completed successfully."
				}
			}
			update := ProgressUpdate{JobID: id, Status: status.Status, Message: status.Message, Done: true}
			jm.running = false
			jm.mu.Unlock()

			if err != nil {
				jm.log.Error("job failed", zap.String("job", id), zap.Error(err))
			} else {
				jm.log.Info("finished job", zap.String("job", id))
			}
			publish(app, update)
		}()

		msg, err = task(context.Background(), app)
	}()
	return nil
}

// Wait blocks until no job is running.
func (jm *JobManager) Wait() {
	jm.wg.Wait()
}

// GetStatus returns a copy of every job's status, ordered by id.
func (jm *JobManager) GetStatus() []JobStatus {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	statuses := make([]JobStatus, 0, len(jm.status))
	for _, s := range jm.status {
		statuses = append(statuses, *s)
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].ID < statuses[j].ID })
	return statuses
}

func publish(app JobContext, update ProgressUpdate) {
	if err := app.Publisher().Publish(context.Background(), events.TopicJobProgress, update); err != nil {
		app.Logger().Debug("job progress publish failed", zap.Error(err))
	}
}
