package listimport

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/contact-import/internal/domain"
	"github.com/ignite/contact-import/internal/listsource"
	"github.com/ignite/contact-import/internal/pkg/distlock"
	"github.com/ignite/contact-import/internal/pkg/logger"
	"github.com/ignite/contact-import/internal/service/contactimport"
)

const (
	defaultFetchTimeout = 5 * time.Minute
	defaultLockTTL      = 2 * time.Hour
	defaultRetention    = time.Hour
	mirrorEvery         = 50
	lockKeyPrefix       = "import:list:"
)

// Options configures the list import service.
type Options struct {
	BaseURL      string
	FetchTimeout time.Duration
	LockTTL      time.Duration
	Retention    time.Duration
	Defaults     domain.ImportConfig
	Suggest      contactimport.FieldSuggester
}

type job struct {
	id   string
	ref  listsource.Reference
	cfg  domain.ImportConfig
	lock distlock.DistLock
	snap atomic.Pointer[domain.ProgressSnapshot]
	done chan struct{}
}

func (j *job) snapshot() *domain.ProgressSnapshot {
	c := j.snap.Load().Clone()
	return &c
}

// update publishes a new snapshot derived from the current one. Terminal
// snapshots are never replaced.
func (j *job) update(now time.Time, fn func(s *domain.ProgressSnapshot)) *domain.ProgressSnapshot {
	cur := j.snap.Load()
	if cur.Status.Terminal() {
		return cur
	}
	next := cur.Clone()
	fn(&next)
	next.UpdatedAt = now
	next.RecomputePercent()
	j.snap.Store(&next)
	return &next
}

// Service starts and tracks external list imports.
type Service struct {
	fetcher  Fetcher
	applier  Applier
	progress ProgressStore
	locks    contactimport.LockFactory
	opts     Options

	mu     sync.Mutex
	active map[string]*job // reference key -> running job
	jobs   map[string]*job // job id -> job

	wg  sync.WaitGroup
	now func() time.Time
}

// NewService creates a list import service. progress may be nil for a
// single-instance deployment.
func NewService(fetcher Fetcher, applier Applier, progress ProgressStore, locks contactimport.LockFactory, opts Options) *Service {
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = defaultFetchTimeout
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = defaultLockTTL
	}
	if opts.Retention <= 0 {
		opts.Retention = defaultRetention
	}
	if opts.Defaults.Policy == "" {
		opts.Defaults = domain.DefaultImportConfig()
	}
	if opts.Suggest == nil {
		opts.Suggest = contactimport.SuggestField
	}
	return &Service{
		fetcher:  fetcher,
		applier:  applier,
		progress: progress,
		locks:    locks,
		opts:     opts,
		active:   make(map[string]*job),
		jobs:     make(map[string]*job),
		now:      time.Now,
	}
}

// StartExternalImport validates the reference and launches a background
// job. At most one job per reference runs at a time; a second start returns
// ErrJobAlreadyRunning carrying the running job's id.
func (s *Service) StartExternalImport(ctx context.Context, rawRef string, cfg *domain.ImportConfig) (*domain.ProgressSnapshot, error) {
	ref, err := listsource.ParseReference(rawRef, s.opts.BaseURL)
	if err != nil {
		return nil, err
	}
	base := s.opts.Defaults
	if cfg != nil {
		base = *cfg
	}
	conf, err := contactimport.NormalizeConfig(base, s.opts.Defaults)
	if err != nil {
		return nil, err
	}

	now := s.now()
	j := &job{
		id:   uuid.New().String(),
		ref:  ref,
		cfg:  conf,
		done: make(chan struct{}),
	}
	j.snap.Store(&domain.ProgressSnapshot{
		JobID:         j.id,
		ListReference: ref.Raw,
		Status:        domain.JobStarting,
		Phase:         "queued",
		StartedAt:     now,
		UpdatedAt:     now,
	})

	s.mu.Lock()
	s.pruneLocked(now)
	if running, ok := s.active[ref.Key()]; ok {
		s.mu.Unlock()
		return nil, ErrJobAlreadyRunning.WithRef(running.id)
	}
	s.active[ref.Key()] = j
	s.jobs[j.id] = j
	s.mu.Unlock()

	if s.locks != nil {
		lock := s.locks.New(lockKeyPrefix+ref.Key(), s.opts.LockTTL)
		acquired, err := lock.Acquire(ctx)
		if err != nil {
			s.forget(j)
			logger.Warn("[ListImport] lock acquire failed", "list", ref.Key(), "error", err)
			return nil, fmt.Errorf("acquire list lock: %w", err)
		}
		if !acquired {
			s.forget(j)
			return nil, ErrJobAlreadyRunning
		}
		j.lock = lock
	}

	first := j.snapshot()
	s.mirror(ctx, first)
	logger.Info("[ListImport] job started", "job_id", j.id, "list", ref.Key())

	s.wg.Add(1)
	go s.run(j)
	return first, nil
}

// GetProgress returns the latest snapshot for a job.
func (s *Service) GetProgress(ctx context.Context, jobID string) (*domain.ProgressSnapshot, error) {
	s.mu.Lock()
	j, ok := s.jobs[jobID]
	s.mu.Unlock()
	if ok {
		return j.snapshot(), nil
	}
	if s.progress == nil {
		return nil, ErrUnknownJob
	}
	snap, err := s.progress.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// ListJobs returns known jobs, newest first.
func (s *Service) ListJobs(ctx context.Context) ([]domain.ProgressSnapshot, error) {
	byID := make(map[string]domain.ProgressSnapshot)
	if s.progress != nil {
		stored, err := s.progress.List(ctx)
		if err != nil {
			return nil, err
		}
		for _, snap := range stored {
			byID[snap.JobID] = snap
		}
	}
	s.mu.Lock()
	for id, j := range s.jobs {
		byID[id] = *j.snapshot()
	}
	s.mu.Unlock()

	out := make([]domain.ProgressSnapshot, 0, len(byID))
	for _, snap := range byID {
		out = append(out, snap)
	}
	sort.Slice(out, func(a, b int) bool {
		return out[a].StartedAt.After(out[b].StartedAt)
	})
	return out, nil
}

// Wait blocks until the job finishes or ctx is done.
func (s *Service) Wait(ctx context.Context, jobID string) (*domain.ProgressSnapshot, error) {
	s.mu.Lock()
	j, ok := s.jobs[jobID]
	s.mu.Unlock()
	if !ok {
		return nil, ErrUnknownJob
	}
	select {
	case <-j.done:
		return j.snapshot(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Shutdown waits for running jobs to finish or ctx to expire.
func (s *Service) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) run(j *job) {
	defer s.wg.Done()
	ctx := context.Background()
	defer func() {
		if j.lock != nil {
			if err := j.lock.Release(ctx); err != nil {
				logger.Warn("[ListImport] lock release failed", "job_id", j.id, "error", err)
			}
		}
		s.mu.Lock()
		if s.active[j.ref.Key()] == j {
			delete(s.active, j.ref.Key())
		}
		s.mu.Unlock()
		close(j.done)
	}()
	defer func() {
		if r := recover(); r != nil {
			logger.Error("[ListImport] job panicked", "job_id", j.id, "panic", r)
			s.finish(ctx, j, domain.JobError, "internal error")
		}
	}()

	s.mirror(ctx, j.update(s.now(), func(p *domain.ProgressSnapshot) {
		p.Status = domain.JobFetching
		p.Phase = "fetching list"
	}))

	fetchCtx, cancel := context.WithTimeout(ctx, s.opts.FetchTimeout)
	records, err := s.fetcher.Fetch(fetchCtx, j.ref, func(fetched, total int) {
		if total < 0 {
			return
		}
		j.update(s.now(), func(p *domain.ProgressSnapshot) {
			t := total
			p.Total = &t
		})
	})
	cancel()
	if err != nil {
		logger.Error("[ListImport] fetch failed", "job_id", j.id, "list", j.ref.Key(), "error", err)
		s.finish(ctx, j, domain.JobError, err.Error())
		return
	}

	total := len(records)
	s.mirror(ctx, j.update(s.now(), func(p *domain.ProgressSnapshot) {
		p.Status = domain.JobImporting
		p.Phase = "importing contacts"
		p.Total = &total
	}))

	for i, rec := range records {
		draft, supplied, _ := contactimport.TransformRecord(rec.WithSeparator(j.cfg.DefaultSeparator), j.cfg, s.opts.Suggest)
		action, _, err := s.applier.Apply(ctx, draft, supplied, j.cfg)
		snap := j.update(s.now(), func(p *domain.ProgressSnapshot) {
			p.Processed = i + 1
			if err != nil {
				p.Errors++
				return
			}
			switch action {
			case domain.ActionCreate:
				p.Created++
			case domain.ActionUpdate:
				p.Updated++
			default:
				p.Skipped++
			}
		})
		if err != nil {
			logger.Warn("[ListImport] record failed", "job_id", j.id, "record", i+1, "error", err)
		}
		if (i+1)%mirrorEvery == 0 {
			s.mirror(ctx, snap)
			s.renewLease(ctx, j)
		}
	}

	s.finish(ctx, j, domain.JobComplete, "")
	final := j.snapshot()
	logger.Info("[ListImport] job complete", "job_id", j.id,
		"created", final.Created, "updated", final.Updated,
		"skipped", final.Skipped, "errors", final.Errors)
}

func (s *Service) finish(ctx context.Context, j *job, status domain.JobStatus, msg string) {
	now := s.now()
	s.mirror(ctx, j.update(now, func(p *domain.ProgressSnapshot) {
		p.Status = status
		p.Phase = string(status)
		p.Error = msg
		p.CompletedAt = &now
	}))
}

// renewLease pushes the list lock's expiry out while a long import runs.
func (s *Service) renewLease(ctx context.Context, j *job) {
	ext, ok := j.lock.(distlock.Extender)
	if !ok {
		return
	}
	if err := ext.Extend(ctx, s.opts.LockTTL); err != nil {
		logger.Warn("[ListImport] lock renewal failed", "job_id", j.id, "error", err)
	}
}

func (s *Service) mirror(ctx context.Context, snap *domain.ProgressSnapshot) {
	if s.progress == nil || snap == nil {
		return
	}
	if err := s.progress.Save(ctx, *snap); err != nil {
		logger.Warn("[ListImport] progress mirror failed", "job_id", snap.JobID, "error", err)
	}
}

func (s *Service) forget(j *job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active[j.ref.Key()] == j {
		delete(s.active, j.ref.Key())
	}
	delete(s.jobs, j.id)
}

// pruneLocked drops finished jobs past retention. Callers hold s.mu.
func (s *Service) pruneLocked(now time.Time) {
	for id, j := range s.jobs {
		snap := j.snap.Load()
		if snap.CompletedAt != nil && now.Sub(*snap.CompletedAt) > s.opts.Retention {
			delete(s.jobs, id)
		}
	}
}
