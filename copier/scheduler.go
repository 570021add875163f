/*
 * Copyright 2026 Amazon.com, Inc. or its affiliates. All Rights Reserved.
 *
 * Licensed under the Apache License, Version 2.0 (the "License"). You
 * may not use this file except in compliance with the License. A copy of
 * the License is located at
 *
 * 	http://aws.amazon.com/apache2.0/
 *
 * or in the "license" file accompanying this file. This file is
 * distributed on an "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF
 * ANY KIND, either express or implied. See the License for the specific
 * language governing permissions and limitations under the License.
 */

package copier

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/containerd/log"
	"golang.org/x/sync/errgroup"
)

// Scheduler runs batches of CopyJobs with bounded parallelism.
type Scheduler struct {
	Credentials CredentialResolver
	Registry    Registry
	Backend     TransferBackend
	// OnTransition, when set, is called after every state change. It is
	// called from the goroutines running jobs and must be safe for
	// concurrent use.
	OnTransition func(job *CopyJob, from, to State)
}

// run is the state of one Scheduler.Run call.
type run struct {
	s       *Scheduler
	cfg     RunConfig
	ctx     context.Context
	cancel  context.CancelCauseFunc
	queue   chan *CopyJob
	pending sync.WaitGroup
}

// Run drives every job to a terminal state and returns their outcomes in
// the order of jobs. Only an invalid configuration returns an error; it does
// so before any job starts. Failures of single jobs are reported in the
// result.
func (s *Scheduler) Run(ctx context.Context, jobs []*CopyJob, cfg RunConfig) (*BatchResult, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if s.Credentials == nil || s.Registry == nil || s.Backend == nil {
		return nil, Errorf(ConfigError, "scheduler needs a credential resolver, a registry and a transfer backend")
	}
	seen := make(map[*CopyJob]struct{}, len(jobs))
	for i, job := range jobs {
		if job == nil {
			return nil, Errorf(ConfigError, "job %d is nil", i)
		}
		if job.State != Pending || job.Attempt != 0 {
			return nil, Errorf(ConfigError, "job %s for %s has already run", job.ID, job.Image)
		}
		// A job is owned by one worker at a time.
		if _, ok := seen[job]; ok {
			return nil, Errorf(ConfigError, "job %s for %s is listed more than once", job.ID, job.Image)
		}
		seen[job] = struct{}{}
	}
	if len(jobs) == 0 {
		return newBatchResult(jobs), nil
	}

	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	r := &run{
		s:      s,
		cfg:    cfg,
		ctx:    runCtx,
		cancel: cancel,
		// Every job is queued at most once at a time, so sends never block.
		queue: make(chan *CopyJob, len(jobs)),
	}

	log.G(ctx).
		WithField("jobs", len(jobs)).
		WithField("concurrency", cfg.Concurrency).
		WithField("backend", s.Backend.Name()).
		Debug("copier.scheduler: run")

	r.pending.Add(len(jobs))
	for _, job := range jobs {
		r.queue <- job
	}

	var workers sync.WaitGroup
	for i := 0; i < min(cfg.Concurrency, len(jobs)); i++ {
		workers.Add(1)
		go func() {
			defer workers.Done()
			for job := range r.queue {
				r.dispatch(job)
			}
		}()
	}
	r.pending.Wait()
	close(r.queue)
	workers.Wait()

	return newBatchResult(jobs), nil
}

// dispatch runs one attempt of job and decides what happens next.
func (r *run) dispatch(job *CopyJob) {
	if r.ctx.Err() != nil {
		r.finish(job, Cancelled, nil)
		return
	}
	job.Attempt++
	if job.started.IsZero() {
		job.started = time.Now()
	}

	err := r.attempt(job)
	if err == nil {
		r.finish(job, Succeeded, nil)
		return
	}
	job.LastError = err

	ctx := r.jobContext(r.ctx, job)
	switch {
	case r.ctx.Err() != nil:
		r.finish(job, Cancelled, err)
	case !IsRetryable(err):
		log.G(ctx).WithError(err).Debug("copier.scheduler: attempt failed, not retryable")
		r.fail(job, err)
	case job.Attempt > r.cfg.RetryLimit:
		log.G(ctx).WithError(err).Debug("copier.scheduler: attempt failed, no retries left")
		r.fail(job, err)
	default:
		log.G(ctx).WithError(err).Debug("copier.scheduler: attempt failed, retrying")
		r.retry(job)
	}
}

// attempt runs the stages of one attempt under the per-job timeout.
func (r *run) attempt(job *CopyJob) error {
	ctx, cancel := r.ctx, context.CancelFunc(func() {})
	if r.cfg.PerJobTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, r.cfg.PerJobTimeout)
	}
	defer cancel()
	ctx = r.jobContext(ctx, job)
	job.resetDigests()

	err := r.stages(ctx, job)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) && r.ctx.Err() == nil {
		return Errorf(TimeoutError, "attempt %d exceeded %s: %w", job.Attempt, r.cfg.PerJobTimeout, err)
	}
	return err
}

func (r *run) stages(ctx context.Context, job *CopyJob) error {
	if err := r.move(ctx, job, Authenticating); err != nil {
		return err
	}
	source, target, err := r.authenticate(ctx, job)
	if err != nil {
		return ensureKind(err, AuthError)
	}

	if err := r.move(ctx, job, Validating); err != nil {
		return err
	}
	if err := r.s.Registry.CheckSource(ctx, source, job.Image); err != nil {
		return ensureKind(err, ValidationError)
	}
	if err := r.s.Registry.CheckTarget(ctx, target, job.Image.Repository, r.cfg.CreateRepository); err != nil {
		return ensureKind(err, ValidationError)
	}

	if err := r.move(ctx, job, Transferring); err != nil {
		return err
	}
	digests, err := r.s.Backend.Copy(ctx, job.Image, source, target)
	if err != nil {
		return ensureKind(err, TransferError)
	}
	if !r.cfg.Verify {
		return nil
	}

	if err := r.move(ctx, job, Verifying); err != nil {
		return err
	}
	job.digests = digests
	return Verify(digests.Source, digests.Target)
}

// authenticate resolves the source and target tokens in parallel.
func (r *run) authenticate(ctx context.Context, job *CopyJob) (source, target Credential, err error) {
	g, gctx := errgroup.WithContext(ctx)
	resolve := func(spec EndpointSpec, cred *Credential) func() error {
		return func() error {
			token, err := r.s.Credentials.Resolve(gctx, spec)
			if err != nil {
				return err
			}
			*cred = Credential{Auth: spec.Auth, Region: spec.Region, Token: token}
			return nil
		}
	}
	g.Go(resolve(job.Source, &source))
	g.Go(resolve(job.Target, &target))
	err = g.Wait()
	return source, target, err
}

func (r *run) retry(job *CopyJob) {
	if err := r.move(r.ctx, job, Pending); err != nil {
		r.fail(job, err)
		return
	}
	delay := r.cfg.RetryDelay * time.Duration(job.Attempt)
	go func() {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
			r.queue <- job
		case <-r.ctx.Done():
			r.finish(job, Cancelled, nil)
		}
	}()
}

func (r *run) fail(job *CopyJob, err error) {
	r.finish(job, Failed, err)
	if r.cfg.FailFast {
		r.cancel(fmt.Errorf("fail-fast after %s failed", job.Image))
	}
}

// finish moves job to a terminal state and releases it.
func (r *run) finish(job *CopyJob, to State, err error) {
	if to == Cancelled {
		err = r.cancellation(err)
	}
	if err != nil {
		job.LastError = err
	}
	ctx := r.jobContext(r.ctx, job)
	if moveErr := r.move(ctx, job, to); moveErr != nil {
		log.G(ctx).WithError(moveErr).Error("copier.scheduler: forcing terminal state")
		job.State = to
	}
	job.finished = time.Now()

	entry := log.G(ctx).WithField("state", to)
	if job.LastError != nil && to != Succeeded {
		entry = entry.WithError(job.LastError)
	}
	entry.Debug("copier.scheduler: job finished")
	r.pending.Done()
}

func (r *run) cancellation(err error) error {
	if err == nil {
		return Errorf(CancelledError, "batch cancelled: %w", context.Cause(r.ctx))
	}
	if KindOf(err) == CancelledError {
		return err
	}
	return NewError(CancelledError, err)
}

func (r *run) move(ctx context.Context, job *CopyJob, to State) error {
	from := job.State
	if err := job.transition(to); err != nil {
		return err
	}
	log.G(ctx).WithField("from", from).WithField("to", to).Trace("copier.scheduler: transition")
	if r.s.OnTransition != nil {
		r.s.OnTransition(job, from, to)
	}
	return nil
}

func (r *run) jobContext(ctx context.Context, job *CopyJob) context.Context {
	return log.WithLogger(ctx, log.G(ctx).WithFields(log.Fields{
		"image":   job.Image.String(),
		"job":     job.ID,
		"attempt": job.Attempt,
	}))
}
