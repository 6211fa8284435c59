package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"dpdp/internal/platform/querier"
)

const JobDPASweep = "dpa_sweep"

const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

type RunFunc func(context.Context) (any, error)

// Runs persists one row per job execution.
type Runs interface {
	Begin(ctx context.Context, jobType string) (string, error)
	Finish(ctx context.Context, runID, status string, details []byte) error
}

type Recorder interface {
	JobFinished(job, status string)
}

type Service struct {
	runs      Runs
	recorder  Recorder
	queue     chan job
	schedules []schedule
}

type job struct {
	Type string
	Run  RunFunc
}

type schedule struct {
	job
	interval time.Duration
}

func New(runs Runs, recorder Recorder) *Service {
	return &Service{
		runs:     runs,
		recorder: recorder,
		queue:    make(chan job, 128),
	}
}

// Schedule registers a periodic job. A non-positive interval disables it.
// Call before Start.
func (s *Service) Schedule(jobType string, interval time.Duration, run RunFunc) {
	if interval <= 0 {
		return
	}
	s.schedules = append(s.schedules, schedule{job: job{Type: jobType, Run: run}, interval: interval})
}

func (s *Service) Start(ctx context.Context) {
	go s.worker(ctx)
	for _, sch := range s.schedules {
		go s.tick(ctx, sch)
	}
}

func (s *Service) Enqueue(jobType string, run RunFunc) bool {
	select {
	case s.queue <- job{Type: jobType, Run: run}:
		return true
	default:
		slog.Warn("job queue full", "jobType", jobType)
		return false
	}
}

func (s *Service) RunNow(ctx context.Context, jobType string, run RunFunc) (any, error) {
	return s.runJob(ctx, job{Type: jobType, Run: run})
}

func (s *Service) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-s.queue:
			if _, err := s.runJob(ctx, j); err != nil {
				slog.Warn("job run failed", "jobType", j.Type, "err", err)
			}
		}
	}
}

func (s *Service) tick(ctx context.Context, sch schedule) {
	ticker := time.NewTicker(sch.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Enqueue(sch.Type, sch.Run)
		}
	}
}

func (s *Service) runJob(ctx context.Context, j job) (any, error) {
	runID := ""
	if s.runs != nil {
		id, err := s.runs.Begin(ctx, j.Type)
		if err != nil {
			slog.Warn("job run insert failed", "jobType", j.Type, "err", err)
		}
		runID = id
	}

	details, err := j.Run(ctx)
	status := StatusCompleted
	if err != nil {
		status = StatusFailed
		details = map[string]any{"error": err.Error(), "partial": details}
	}
	detailsJSON, marshalErr := json.Marshal(details)
	if marshalErr != nil {
		slog.Warn("job details marshal failed", "err", marshalErr)
		detailsJSON = []byte("{}")
	}
	if runID != "" {
		if updErr := s.runs.Finish(ctx, runID, status, detailsJSON); updErr != nil {
			slog.Warn("job run update failed", "jobType", j.Type, "err", updErr)
		}
	}
	if s.recorder != nil {
		s.recorder.JobFinished(j.Type, status)
	}
	return details, err
}

// PGRuns stores runs in the job_runs table.
type PGRuns struct {
	DB querier.Querier
}

func (p PGRuns) Begin(ctx context.Context, jobType string) (string, error) {
	var id string
	err := p.DB.QueryRow(ctx, `
    INSERT INTO job_runs (job_type, status)
    VALUES ($1,$2)
    RETURNING id::text
  `, jobType, StatusRunning).Scan(&id)
	return id, err
}

func (p PGRuns) Finish(ctx context.Context, runID, status string, details []byte) error {
	_, err := p.DB.Exec(ctx, `
    UPDATE job_runs
    SET status = $1, details_json = $2, completed_at = now()
    WHERE id = $3::uuid
  `, status, details, runID)
	return err
}
