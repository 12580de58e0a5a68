// Package coordinator distributes replay download-and-decode jobs to
// remote workers and reconciles their results.
package coordinator

import (
	"context"
	"sync"
	"time"

	"csgo-tracker/internal/constants"
	"csgo-tracker/internal/demo"

	"github.com/rs/zerolog"
)

// JobState tracks a sharing code through its lifecycle.
type JobState int

const (
	// Queued jobs wait for an idle worker.
	Queued JobState = iota
	// Dispatched jobs are owned by a worker.
	Dispatched
	// Done jobs produced a persisted match.
	Done
	// Lost jobs could not be completed; the replay is assumed gone
	// upstream and the job is never retried.
	Lost
)

func (s JobState) String() string {
	switch s {
	case Queued:
		return "queued"
	case Dispatched:
		return "dispatched"
	case Done:
		return "done"
	case Lost:
		return "lost"
	}
	return "unknown"
}

// WorkerAPI is the coordinator's view of a remote worker.
type WorkerAPI interface {
	Health(ctx context.Context, address string) error
	SubmitJob(ctx context.Context, address, code string) error
}

// MatchSink receives successfully decoded matches.
type MatchSink interface {
	SaveMatch(ctx context.Context, payload *demo.MatchPayload) error
}

// CodeMarker flips a sharing code's downloaded flag once a worker owns
// the job.
type CodeMarker interface {
	MarkDownloaded(ctx context.Context, code string) error
}

type worker struct {
	address string
	working bool
}

type job struct {
	code         string
	state        JobState
	worker       string
	dispatchedAt time.Time
}

// WorkerInfo is a snapshot of one registered worker.
type WorkerInfo struct {
	Address string
	Working bool
}

// JobInfo is a snapshot of one job.
type JobInfo struct {
	Code   string
	State  JobState
	Worker string
}

// Coordinator owns the worker registry and the FIFO job queue. All
// mutable state lives behind one mutex; network calls to workers run
// on their own goroutines so a slow worker never blocks dispatch for
// the others.
type Coordinator struct {
	client WorkerAPI
	sink   MatchSink
	codes  CodeMarker
	logger zerolog.Logger

	mu      sync.Mutex
	workers []*worker
	queue   []*job          // pending jobs in dispatch order
	jobs    map[string]*job // every job ever submitted, by code

	stuckAfter time.Duration
}

func New(client WorkerAPI, sink MatchSink, codes CodeMarker, logger zerolog.Logger) *Coordinator {
	return &Coordinator{
		client:     client,
		sink:       sink,
		codes:      codes,
		logger:     logger,
		jobs:       make(map[string]*job),
		stuckAfter: constants.JobStuckTimeout,
	}
}

// Register adds a worker and immediately tries to dispatch. Workers
// are ephemeral; the registry is rebuilt from re-registrations after a
// coordinator restart.
func (c *Coordinator) Register(address string) {
	c.mu.Lock()
	for _, w := range c.workers {
		if w.address == address {
			w.working = false
			c.mu.Unlock()
			c.logger.Info().Str("worker", address).Msg("worker re-registered")
			c.dispatch()
			return
		}
	}
	c.workers = append(c.workers, &worker{address: address})
	c.mu.Unlock()

	c.logger.Info().Str("worker", address).Msg("worker registered")
	c.dispatch()
}

// Submit queues a sharing code and tries to dispatch. Codes already
// known to the coordinator are ignored.
func (c *Coordinator) Submit(code string) {
	c.mu.Lock()
	if _, ok := c.jobs[code]; ok {
		c.mu.Unlock()
		return
	}
	j := &job{code: code, state: Queued}
	c.jobs[code] = j
	c.queue = append(c.queue, j)
	c.mu.Unlock()

	c.logger.Debug().Str("code", code).Msg("job queued")
	c.dispatch()
}

// Complete is the worker's completion callback. A nil payload means
// the worker could not retrieve or decode the replay; the job is
// marked lost and not requeued, since the upstream resource is assumed
// gone and a decode failure is deterministic.
func (c *Coordinator) Complete(ctx context.Context, address string, payload *demo.MatchPayload) error {
	c.mu.Lock()
	var finished *job
	for _, j := range c.jobs {
		if j.state == Dispatched && j.worker == address {
			finished = j
			break
		}
	}
	if finished != nil {
		if payload != nil {
			finished.state = Done
		} else {
			finished.state = Lost
		}
	}
	for _, w := range c.workers {
		if w.address == address {
			w.working = false
			break
		}
	}
	c.mu.Unlock()

	var err error
	if payload != nil {
		err = c.sink.SaveMatch(ctx, payload)
		if err != nil {
			c.logger.Error().Err(err).Str("worker", address).Str("map", payload.Map).Msg("failed to save match")
		}
	} else if finished != nil {
		c.logger.Warn().Str("worker", address).Str("code", finished.code).Msg("worker could not process job, dropping")
	}

	c.dispatch()
	return err
}

// dispatch pairs idle workers with queued jobs. Pairing happens under
// the lock; the health probe and job POST run on a goroutine per
// assignment.
func (c *Coordinator) dispatch() {
	for {
		c.mu.Lock()
		w := c.firstIdle()
		if w == nil || len(c.queue) == 0 {
			c.mu.Unlock()
			return
		}
		j := c.queue[0]
		c.queue = c.queue[1:]
		w.working = true
		j.state = Dispatched
		j.worker = w.address
		j.dispatchedAt = time.Now()
		c.mu.Unlock()

		go c.runAssignment(w.address, j)
	}
}

// firstIdle picks the idle worker registered earliest. Callers hold
// the lock.
func (c *Coordinator) firstIdle() *worker {
	for _, w := range c.workers {
		if !w.working {
			return w
		}
	}
	return nil
}

func (c *Coordinator) runAssignment(address string, j *job) {
	probeCtx, cancel := context.WithTimeout(context.Background(), constants.HealthProbeTimeout)
	err := c.client.Health(probeCtx, address)
	cancel()
	if err != nil {
		c.logger.Warn().Err(err).Str("worker", address).Str("code", j.code).Msg("health probe failed, dropping worker")
		c.failAssignment(address, j)
		return
	}

	submitCtx, cancel := context.WithTimeout(context.Background(), constants.ExternalAPITimeout)
	err = c.client.SubmitJob(submitCtx, address, j.code)
	cancel()
	if err != nil {
		c.logger.Warn().Err(err).Str("worker", address).Str("code", j.code).Msg("job submission failed, dropping worker")
		c.failAssignment(address, j)
		return
	}

	c.logger.Info().Str("worker", address).Str("code", j.code).Msg("job dispatched")

	// The worker owns the outcome now.
	markCtx, cancel := context.WithTimeout(context.Background(), constants.DatabaseTimeout)
	defer cancel()
	if err := c.codes.MarkDownloaded(markCtx, j.code); err != nil {
		c.logger.Error().Err(err).Str("code", j.code).Msg("failed to mark code downloaded")
	}
}

// failAssignment drops an unreachable worker and requeues its job at
// the front of the queue so submission order is preserved.
func (c *Coordinator) failAssignment(address string, j *job) {
	c.mu.Lock()
	c.removeWorker(address)
	j.state = Queued
	j.worker = ""
	c.queue = append([]*job{j}, c.queue...)
	c.mu.Unlock()

	c.dispatch()
}

// removeWorker deletes a worker from the registry. Callers hold the
// lock.
func (c *Coordinator) removeWorker(address string) {
	for i, w := range c.workers {
		if w.address == address {
			c.workers = append(c.workers[:i], c.workers[i+1:]...)
			return
		}
	}
}

// RunJanitor requeues jobs stuck in Dispatched past the stuck timeout,
// covering workers that crashed mid-job. It blocks until ctx is done.
func (c *Coordinator) RunJanitor(ctx context.Context) {
	ticker := time.NewTicker(constants.JanitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.RequeueStuck(time.Now())
		}
	}
}

// RequeueStuck is the janitor's single pass, split out so it can run
// against an arbitrary clock.
func (c *Coordinator) RequeueStuck(now time.Time) {
	c.mu.Lock()
	requeued := 0
	for _, j := range c.jobs {
		if j.state != Dispatched || now.Sub(j.dispatchedAt) < c.stuckAfter {
			continue
		}
		// The assigned worker is presumed crashed; it has to
		// re-register before it gets work again.
		c.removeWorker(j.worker)
		c.logger.Warn().Str("code", j.code).Str("worker", j.worker).Msg("requeueing stuck job")
		j.state = Queued
		j.worker = ""
		c.queue = append([]*job{j}, c.queue...)
		requeued++
	}
	c.mu.Unlock()

	if requeued > 0 {
		c.dispatch()
	}
}

// Workers returns a snapshot of the registry.
func (c *Coordinator) Workers() []WorkerInfo {
	c.mu.Lock()
	defer c.mu.Unlock()

	infos := make([]WorkerInfo, len(c.workers))
	for i, w := range c.workers {
		infos[i] = WorkerInfo{Address: w.address, Working: w.working}
	}
	return infos
}

// Jobs returns a snapshot of every job the coordinator has seen.
func (c *Coordinator) Jobs() []JobInfo {
	c.mu.Lock()
	defer c.mu.Unlock()

	infos := make([]JobInfo, 0, len(c.jobs))
	for _, j := range c.jobs {
		infos = append(infos, JobInfo{Code: j.code, State: j.state, Worker: j.worker})
	}
	return infos
}
