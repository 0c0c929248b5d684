package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/martincass/UCAMtracker/internal/export"
	"github.com/martincass/UCAMtracker/internal/logger"
	"github.com/martincass/UCAMtracker/internal/metrics"
	"github.com/martincass/UCAMtracker/internal/models"
	"github.com/martincass/UCAMtracker/internal/sheets"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	jobTimeout           = 2 * time.Minute
	errJobServiceStopped = "job service stopped"
)

// JobRequest represents a queued job
type JobRequest struct {
	JobID  string
	Type   string
	Filter SubmissionFilter
}

// AppenderFactory builds the spreadsheet client for one export run.
type AppenderFactory func(ctx context.Context) (sheets.Appender, error)

type JobService struct {
	db          *gorm.DB
	submissions *SubmissionService
	appender    AppenderFactory
	jobQueue    chan JobRequest
	workerCount int
	stopChan    chan struct{}
	mu          sync.Mutex
	stopped     bool
	wg          sync.WaitGroup
}

// NewJobService creates a new job service and starts its workers
func NewJobService(db *gorm.DB, submissions *SubmissionService, appender AppenderFactory, workers int) *JobService {
	if workers <= 0 {
		workers = 1
	}
	js := &JobService{
		db:          db,
		submissions: submissions,
		appender:    appender,
		jobQueue:    make(chan JobRequest, 100),
		workerCount: workers,
		stopChan:    make(chan struct{}),
	}

	for i := 0; i < js.workerCount; i++ {
		js.wg.Add(1)
		go js.worker(i)
	}

	return js
}

// worker processes jobs from the queue
func (js *JobService) worker(id int) {
	defer js.wg.Done()

	for {
		// a stop request wins over queued work
		select {
		case <-js.stopChan:
			logger.Info("Worker stopping", map[string]interface{}{"workerID": id})
			return
		default:
		}

		select {
		case req := <-js.jobQueue:
			logger.WithJob(req.JobID, req.Type).WithField("workerID", id).Info("Worker processing job")

			switch req.Type {
			case models.JobTypeSheetsExport:
				js.processSheetsExport(req)
			default:
				js.updateJobStatus(req.JobID, models.JobStatusFailed, "unknown job type "+req.Type, nil)
			}

		case <-js.stopChan:
			logger.Info("Worker stopping", map[string]interface{}{"workerID": id})
			return
		}
	}
}

// Stop signals the workers, waits for in-flight jobs to finish and marks the
// jobs still queued as failed.
func (js *JobService) Stop() {
	js.mu.Lock()
	if js.stopped {
		js.mu.Unlock()
		return
	}
	js.stopped = true
	close(js.stopChan)
	js.mu.Unlock()

	js.wg.Wait()

	for {
		select {
		case req := <-js.jobQueue:
			logger.WithJob(req.JobID, req.Type).Warn("Job abandoned at shutdown")
			js.updateJobStatus(req.JobID, models.JobStatusFailed, errJobServiceStopped, nil)
		default:
			return
		}
	}
}

// EnqueueSheetsExport records a pending export job and queues it.
func (js *JobService) EnqueueSheetsExport(ctx context.Context, admin *Principal, filter SubmissionFilter) (*models.Job, error) {
	job := &models.Job{
		Type:        models.JobTypeSheetsExport,
		Status:      models.JobStatusPending,
		RequestedBy: admin.UserID(),
	}
	err := js.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(job).Error; err != nil {
			return fmt.Errorf("failed to create job: %w", err)
		}
		return recordAudit(tx, admin.UserID(), models.AuditSheetsExportEnqueued, "", datatypes.JSONMap{"job_id": job.ID})
	})
	if err != nil {
		return nil, err
	}

	js.mu.Lock()
	defer js.mu.Unlock()
	if js.stopped {
		js.updateJobStatus(job.ID, models.JobStatusFailed, errJobServiceStopped, nil)
		job.Status, job.Error = models.JobStatusFailed, errJobServiceStopped
		return job, nil
	}
	select {
	case js.jobQueue <- JobRequest{JobID: job.ID, Type: job.Type, Filter: filter}:
	default:
		js.updateJobStatus(job.ID, models.JobStatusFailed, "job queue is full", nil)
		job.Status, job.Error = models.JobStatusFailed, "job queue is full"
	}
	return job, nil
}

func (js *JobService) processSheetsExport(req JobRequest) {
	log := logger.WithJob(req.JobID, req.Type)
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	now := timeNow()
	if err := js.db.Model(&models.Job{}).Where("id = ?", req.JobID).Updates(map[string]interface{}{
		"status":     models.JobStatusRunning,
		"started_at": &now,
	}).Error; err != nil {
		log.WithError(err).Error("Failed to update job status to running")
		return
	}

	fail := func(msg string) {
		log.WithField("reason", msg).Warn("Sheets export failed")
		metrics.Jobs.WithLabelValues(req.Type, "failed").Inc()
		js.updateJobStatus(req.JobID, models.JobStatusFailed, msg, nil)
	}

	appender, err := js.appender(ctx)
	if err != nil {
		if errors.Is(err, sheets.ErrNotConfigured) {
			fail(sheets.ErrNotConfigured.Error())
			return
		}
		fail(fmt.Sprintf("sheets client: %v", err))
		return
	}

	subs, err := js.submissions.ListAll(ctx, req.Filter)
	if err != nil {
		fail(fmt.Sprintf("load submissions: %v", err))
		return
	}

	appended := 0
	if len(subs) > 0 {
		rows := make([][]interface{}, 0, len(subs))
		for i := range subs {
			rows = append(rows, export.SheetRow(&subs[i]))
		}
		appended, err = appender.Append(ctx, rows)
		if err != nil {
			fail(err.Error())
			return
		}
	}

	metrics.Jobs.WithLabelValues(req.Type, "completed").Inc()
	js.updateJobStatus(req.JobID, models.JobStatusCompleted, "", datatypes.JSONMap{
		"ok":       true,
		"appended": appended,
	})
	log.WithField("appended", appended).Info("Sheets export completed")
}

func (js *JobService) updateJobStatus(jobID string, status models.JobStatus, errorMsg string, result datatypes.JSONMap) {
	updates := map[string]interface{}{
		"status": status,
	}

	if errorMsg != "" {
		updates["error"] = errorMsg
	}

	if result != nil {
		updates["result"] = result
	}

	if status == models.JobStatusFailed || status == models.JobStatusCompleted {
		now := timeNow()
		updates["completed_at"] = &now
	}

	if err := js.db.Model(&models.Job{}).Where("id = ?", jobID).Updates(updates).Error; err != nil {
		logger.Error("Failed to update job status", map[string]interface{}{"jobID": jobID, "error": err})
	}
}

// GetJob returns the current status of a job
func (js *JobService) GetJob(ctx context.Context, jobID string) (*models.Job, error) {
	var job models.Job
	err := js.db.WithContext(ctx).First(&job, "id = ?", jobID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}
