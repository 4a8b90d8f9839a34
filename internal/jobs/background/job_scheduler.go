package background

import (
	"context"
	"log"
	"sync"
	"time"

	"clearbill/internal/jobs"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
)

// JobScheduler manages recurring background jobs
type JobScheduler struct {
	scheduler gocron.Scheduler
	enqueuer  *jobs.Enqueuer
	alerts    *jobs.OverdueAlertService
	adminID   uuid.UUID
	jobJobs   map[string]gocron.Job
	mu        sync.RWMutex
}

// NewJobScheduler creates a new job scheduler
func NewJobScheduler(enqueuer *jobs.Enqueuer, alerts *jobs.OverdueAlertService, adminID uuid.UUID) *JobScheduler {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		log.Fatalf("Failed to create scheduler: %v", err)
	}

	js := &JobScheduler{
		scheduler: scheduler,
		enqueuer:  enqueuer,
		alerts:    alerts,
		adminID:   adminID,
		jobJobs:   make(map[string]gocron.Job),
	}

	js.registerJobs()

	return js
}

// Start starts the job scheduler
func (js *JobScheduler) Start() error {
	log.Printf("Starting background job scheduler")
	js.scheduler.Start()
	return nil
}

// Stop stops the job scheduler
func (js *JobScheduler) Stop() error {
	log.Printf("Stopping background job scheduler")
	return js.scheduler.Shutdown()
}

// registerJobs registers all background jobs
func (js *JobScheduler) registerJobs() {
	// Overdue sweep - every hour, queued so exactly one worker runs it
	sweepJob, err := js.scheduler.NewJob(
		gocron.DurationJob(1*time.Hour),
		gocron.NewTask(js.enqueueOverdueSweep, context.Background()),
		gocron.WithName("overdue-sweep"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		log.Printf("Failed to create overdue sweep job: %v", err)
	} else {
		js.jobJobs["overdue-sweep"] = sweepJob
	}

	// Due date alerts - every 6 hours
	alertsJob, err := js.scheduler.NewJob(
		gocron.DurationJob(6*time.Hour),
		gocron.NewTask(js.alerts.ScheduledDueCheck, context.Background()),
		gocron.WithName("due-date-alerts"),
	)
	if err != nil {
		log.Printf("Failed to create due date alerts job: %v", err)
	} else {
		js.jobJobs["due-date-alerts"] = alertsJob
	}

	log.Printf("Registered %d background jobs", len(js.jobJobs))
}

// enqueueOverdueSweep queues a sweep run on behalf of the admin identity
func (js *JobScheduler) enqueueOverdueSweep(ctx context.Context) error {
	if err := js.enqueuer.EnqueueOverdueSweep(ctx, js.adminID); err != nil {
		log.Printf("Failed to enqueue overdue sweep: %v", err)
		return err
	}
	return nil
}

// AddJob adds a custom job to the scheduler
func (js *JobScheduler) AddJob(name string, interval time.Duration, taskFn interface{}, params ...interface{}) error {
	js.mu.Lock()
	defer js.mu.Unlock()

	job, err := js.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(taskFn, params...),
		gocron.WithName(name),
	)
	if err != nil {
		return err
	}

	js.jobJobs[name] = job
	log.Printf("Added custom job: %s", name)
	return nil
}

// RemoveJob removes a job from the scheduler
func (js *JobScheduler) RemoveJob(name string) error {
	js.mu.Lock()
	defer js.mu.Unlock()

	if job, exists := js.jobJobs[name]; exists {
		err := js.scheduler.RemoveJob(job.ID())
		delete(js.jobJobs, name)
		return err
	}

	return nil
}

// GetJobStatus returns information about scheduled jobs
func (js *JobScheduler) GetJobStatus() map[string]interface{} {
	js.mu.RLock()
	defer js.mu.RUnlock()

	status := make(map[string]interface{})
	status["total_jobs"] = len(js.jobJobs)
	jobNames := make([]string, 0, len(js.jobJobs))

	for name := range js.jobJobs {
		jobNames = append(jobNames, name)
	}

	status["jobs"] = jobNames

	return status
}
