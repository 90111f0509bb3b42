// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package scheduler runs the periodic jobs of the TextPress server.
package scheduler

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
)

var (
	// ErrUnknownJob is returned by Trigger for a name that was never registered.
	ErrUnknownJob = errors.New("unknown job")
	// ErrJobRunning is returned by Trigger while the job is running.
	ErrJobRunning = errors.New("job is already running")
)

// registeredJob holds metadata about a registered cron job.
type registeredJob struct {
	name        string
	description string
	schedule    string
	entryID     cron.EntryID
	run         func()
	running     atomic.Bool
}

// start marks the job running. It reports false when a run is in progress.
func (j *registeredJob) start() bool {
	return j.running.CompareAndSwap(false, true)
}

// JobInfo is the public view of a registered job.
type JobInfo struct {
	Name        string
	Description string
	Schedule    string
	LastRun     time.Time
	NextRun     time.Time
	Running     bool
}

// Scheduler runs registered jobs on cron schedules or on demand. A job
// whose previous run is still going is skipped; a panicking job is logged
// and recovered.
type Scheduler struct {
	cron   *cron.Cron
	logger *slog.Logger

	mu   sync.RWMutex
	jobs map[string]*registeredJob

	// triggered tracks runs started by Trigger.
	triggered sync.WaitGroup
}

// New creates a new scheduler instance.
func New(logger *slog.Logger) *Scheduler {
	cl := cronLogger{logger: logger}
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl)),
		),
		logger: logger,
		jobs:   make(map[string]*registeredJob),
	}
}

// Register adds fn under name with a standard five field cron schedule.
func (s *Scheduler) Register(name, description, schedule string, fn func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("job %q already registered", name)
	}

	job := &registeredJob{
		name:        name,
		description: description,
		schedule:    schedule,
		run:         fn,
	}
	id, err := s.cron.AddFunc(schedule, func() {
		if !job.start() {
			s.logger.Info("skipping scheduled run, job still running", "job", name)
			return
		}
		defer job.running.Store(false)
		job.run()
	})
	if err != nil {
		return fmt.Errorf("scheduling job %q: %w", name, err)
	}
	job.entryID = id
	s.jobs[name] = job
	s.logger.Info("registered scheduled job", "job", name, "schedule", schedule)
	return nil
}

// Jobs returns all registered jobs sorted by name.
func (s *Scheduler) Jobs() []JobInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]JobInfo, 0, len(s.jobs))
	for _, job := range s.jobs {
		entry := s.cron.Entry(job.entryID)
		result = append(result, JobInfo{
			Name:        job.name,
			Description: job.description,
			Schedule:    job.schedule,
			LastRun:     entry.Prev,
			NextRun:     entry.Next,
			Running:     job.running.Load(),
		})
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Name < result[j].Name
	})
	return result
}

// Trigger starts a registered job now in its own goroutine. It fails with
// ErrJobRunning while a scheduled or triggered run of the job is going.
func (s *Scheduler) Trigger(name string) error {
	s.mu.RLock()
	job, ok := s.jobs[name]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	if !job.start() {
		return fmt.Errorf("%w: %s", ErrJobRunning, name)
	}

	s.logger.Info("triggering job", "job", name)
	s.triggered.Add(1)
	go func() {
		defer s.triggered.Done()
		defer job.running.Store(false)
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("triggered job panicked", "job", name, "panic", r)
			}
		}()
		job.run()
	}()
	return nil
}

// Start begins running the registered jobs.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started", "jobs", len(s.cron.Entries()))
}

// Stop gracefully stops the scheduler, waiting for running jobs.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.triggered.Wait()
	s.logger.Info("scheduler stopped")
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
