package core

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/policyingest/internal/logging"
)

// DefaultRetention is how long a finished job stays available for polling.
const DefaultRetention = 5 * time.Minute

// ServiceConfig configures a Service.
type ServiceConfig struct {
	StoreTarget   string        // connection string handed to the opener for every job
	MaxConcurrent int           // concurrent jobs; <= 0 uses DefaultMaxConcurrentJobs
	MaxWait       time.Duration // how long Submit waits for a slot
	Retention     time.Duration // how long results are kept after a job ends
}

// Service runs import jobs in isolated workers and tracks their progress.
type Service struct {
	open      StoreOpener
	target    string
	limiter   *JobLimiter
	retention time.Duration

	// jobCtx is handed to every worker. Cancelling it stops batches between rows.
	jobCtx    context.Context
	cancelJob context.CancelFunc

	mu   sync.RWMutex
	jobs map[string]*activeJob
}

type activeJob struct {
	ID       string
	FileName string
	Started  time.Time

	mu        sync.Mutex
	progress  []string
	result    *Response
	listeners []chan Message
	done      chan struct{}
}

// JobStatus is a point-in-time view of a job.
type JobStatus struct {
	ID       string    `json:"jobId"`
	FileName string    `json:"fileName"`
	Started  time.Time `json:"started"`
	Done     bool      `json:"done"`
	Progress []string  `json:"progress"`
	Result   *Response `json:"result,omitempty"`
}

// NewService returns a Service opening job connections with open.
func NewService(open StoreOpener, cfg ServiceConfig) *Service {
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultRetention
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		open:      open,
		target:    cfg.StoreTarget,
		limiter:   NewJobLimiter(cfg.MaxConcurrent, cfg.MaxWait),
		retention: cfg.Retention,
		jobCtx:    ctx,
		cancelJob: cancel,
		jobs:      make(map[string]*activeJob),
	}
}

// Submit starts a job for the file at path and returns its ID without
// waiting for it. fileName is the name the user uploaded, for logs.
//
// Returns ErrTooManyUploads if no job slot frees up within the wait time.
// The file is removed in that case too.
func (s *Service) Submit(ctx context.Context, path, fileName string) (string, error) {
	if err := s.limiter.Acquire(ctx); err != nil {
		removeSource(path, logging.FromContext(ctx))
		return "", err
	}

	if fileName == "" {
		fileName = filepath.Base(path)
	}
	job := &activeJob{
		ID:       uuid.NewString(),
		FileName: fileName,
		Started:  time.Now(),
		done:     make(chan struct{}),
	}

	s.mu.Lock()
	s.jobs[job.ID] = job
	s.mu.Unlock()

	logging.WithFields(ctx,
		"job_id", job.ID,
		"file", fileName,
		"ip", IPAddressFromContext(ctx),
		"user_agent", UserAgentFromContext(ctx),
	).Info("import job submitted")

	ch := Spawn(logging.WithJobID(s.jobCtx, job.ID), Job{ID: job.ID, FilePath: path, StoreTarget: s.target}, s.open)

	go func() {
		defer s.limiter.Release()
		resp := s.relay(job, ch)
		job.finish(resp)
		s.cleanup(job.ID, s.retention)
	}()

	return job.ID, nil
}

// Run submits a job and waits for its response.
func (s *Service) Run(ctx context.Context, path, fileName string) (Response, string, error) {
	id, err := s.Submit(ctx, path, fileName)
	if err != nil {
		return Response{}, "", err
	}
	resp, err := s.Result(ctx, id)
	return resp, id, err
}

// relay forwards worker messages to listeners and builds the final response.
func (s *Service) relay(job *activeJob, ch <-chan Message) Response {
	fan := make(chan Message, cap(ch))
	done := make(chan Response, 1)
	go func() { done <- Await(context.Background(), fan) }()

	for m := range ch {
		job.publish(m)
		fan <- m
	}
	close(fan)
	return <-done
}

// Subscribe returns a channel of the job's messages. Progress already
// reported is replayed first. The channel is closed after the terminal
// message. Slow subscribers may miss progress messages but always get the
// terminal one.
func (s *Service) Subscribe(jobID string) (<-chan Message, error) {
	job, err := s.job(jobID)
	if err != nil {
		return nil, err
	}

	job.mu.Lock()
	defer job.mu.Unlock()

	ch := make(chan Message, len(job.progress)+16)
	for _, p := range job.progress {
		ch <- progressMessage(p)
	}
	if job.result != nil {
		ch <- job.result.terminalMessage()
		close(ch)
		return ch, nil
	}
	job.listeners = append(job.listeners, ch)
	return ch, nil
}

// Result waits for the job to finish and returns its response.
func (s *Service) Result(ctx context.Context, jobID string) (Response, error) {
	job, err := s.job(jobID)
	if err != nil {
		return Response{}, err
	}
	select {
	case <-job.done:
	case <-ctx.Done():
		return Response{}, ctx.Err()
	}
	job.mu.Lock()
	defer job.mu.Unlock()
	return *job.result, nil
}

// Status returns the job's progress so far without blocking.
func (s *Service) Status(jobID string) (JobStatus, error) {
	job, err := s.job(jobID)
	if err != nil {
		return JobStatus{}, err
	}
	job.mu.Lock()
	defer job.mu.Unlock()
	return JobStatus{
		ID:       job.ID,
		FileName: job.FileName,
		Started:  job.Started,
		Done:     job.result != nil,
		Progress: append([]string(nil), job.progress...),
		Result:   job.result,
	}, nil
}

// LimiterStatus reports job slot usage.
func (s *Service) LimiterStatus() JobLimiterStatus {
	return s.limiter.Status()
}

// WaitForJobs blocks until running jobs finish or ctx ends. When ctx ends
// first, running batches are told to stop at their next cancellation check.
func (s *Service) WaitForJobs(ctx context.Context) error {
	err := s.limiter.WaitForDrain(ctx)
	if err != nil {
		s.cancelJob()
	}
	return err
}

// Close stops accepting work in running batches.
func (s *Service) Close() {
	s.cancelJob()
}

func (s *Service) job(jobID string) (*activeJob, error) {
	s.mu.RLock()
	job, ok := s.jobs[jobID]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	return job, nil
}

// cleanup removes a finished job after delay.
func (s *Service) cleanup(jobID string, delay time.Duration) {
	time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.jobs, jobID)
		s.mu.Unlock()
	})
}

// publish records progress and fans m out to listeners under one lock, so a
// concurrent Subscribe sees each message either in its replay or live, never both.
func (j *activeJob) publish(m Message) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if m.Type == MessageProgress {
		j.progress = append(j.progress, m.Message)
	}
	for _, ch := range j.listeners {
		deliver(ch, m)
	}
}

// deliver never blocks. A full listener loses progress messages, but room is
// made for the terminal message by dropping the oldest queued one.
func deliver(ch chan Message, m Message) {
	select {
	case ch <- m:
		return
	default:
	}
	if !m.Terminal() {
		return
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- m:
	default:
	}
}

// finish stores the response, closes listeners and releases Result waiters.
func (j *activeJob) finish(resp Response) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.result = &resp
	for _, ch := range j.listeners {
		close(ch)
	}
	j.listeners = nil
	close(j.done)
}

// terminalMessage rebuilds the worker's final message from a response.
func (r Response) terminalMessage() Message {
	if !r.Success {
		return Message{Type: MessageError, Error: r.Error}
	}
	return Message{Type: MessageComplete, Processed: r.Processed, Total: r.Total, Errors: r.Errors}
}
