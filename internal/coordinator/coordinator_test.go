package coordinator_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"csgo-tracker/internal/constants"
	"csgo-tracker/internal/coordinator"
	"csgo-tracker/internal/demo"

	"github.com/rs/zerolog"
)

type fakeWorkers struct {
	mu        sync.Mutex
	unhealthy map[string]bool
	submitted map[string][]string // address -> codes in order
}

func newFakeWorkers() *fakeWorkers {
	return &fakeWorkers{
		unhealthy: make(map[string]bool),
		submitted: make(map[string][]string),
	}
}

func (f *fakeWorkers) Health(_ context.Context, address string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.unhealthy[address] {
		return errors.New("connection refused")
	}
	return nil
}

func (f *fakeWorkers) SubmitJob(_ context.Context, address, code string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted[address] = append(f.submitted[address], code)
	return nil
}

func (f *fakeWorkers) codes(address string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.submitted[address]...)
}

type fakeSink struct {
	mu    sync.Mutex
	saved []*demo.MatchPayload
}

func (f *fakeSink) SaveMatch(_ context.Context, payload *demo.MatchPayload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, payload)
	return nil
}

type fakeMarker struct {
	mu     sync.Mutex
	marked []string
}

func (f *fakeMarker) MarkDownloaded(_ context.Context, code string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.marked = append(f.marked, code)
	return nil
}

func (f *fakeMarker) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.marked)
}

func newCoordinator(api coordinator.WorkerAPI) (*coordinator.Coordinator, *fakeSink, *fakeMarker) {
	sink := &fakeSink{}
	marker := &fakeMarker{}
	return coordinator.New(api, sink, marker, zerolog.Nop()), sink, marker
}

// waitFor polls cond until it holds or the deadline passes. Dispatch
// finishes on background goroutines, so tests observe state through
// snapshots rather than synchronization hooks.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached before deadline")
}

func stateOf(c *coordinator.Coordinator, code string) (coordinator.JobState, string) {
	for _, j := range c.Jobs() {
		if j.Code == code {
			return j.State, j.Worker
		}
	}
	return 0, ""
}

func countByState(c *coordinator.Coordinator, state coordinator.JobState) int {
	n := 0
	for _, j := range c.Jobs() {
		if j.State == state {
			n++
		}
	}
	return n
}

func TestDispatchFairness(t *testing.T) {
	api := newFakeWorkers()
	c, _, marker := newCoordinator(api)

	c.Register("http://w1:3000")
	c.Register("http://w2:3000")
	c.Submit("CODE-1")
	c.Submit("CODE-2")
	c.Submit("CODE-3")

	waitFor(t, func() bool {
		return countByState(c, coordinator.Dispatched) == 2
	})

	if got := countByState(c, coordinator.Queued); got != 1 {
		t.Fatalf("queued jobs = %d, want 1", got)
	}
	if got := len(api.codes("http://w1:3000")); got != 1 {
		t.Errorf("w1 received %d jobs, want 1", got)
	}
	if got := len(api.codes("http://w2:3000")); got != 1 {
		t.Errorf("w2 received %d jobs, want 1", got)
	}

	waitFor(t, func() bool { return marker.count() == 2 })

	for _, w := range c.Workers() {
		if !w.Working {
			t.Errorf("worker %s should be busy", w.Address)
		}
	}
}

func TestUnhealthyWorkerDroppedAndJobRequeuedFirst(t *testing.T) {
	api := newFakeWorkers()
	api.unhealthy["http://bad:3000"] = true
	c, _, _ := newCoordinator(api)

	// Only the bad worker is available, so J1 gets assigned to it,
	// fails the probe, and must end up back at the head of the queue.
	c.Register("http://bad:3000")
	c.Submit("J1")
	c.Submit("J2")

	waitFor(t, func() bool { return len(c.Workers()) == 0 })

	c.Register("http://good:3000")

	waitFor(t, func() bool {
		state, worker := stateOf(c, "J1")
		return state == coordinator.Dispatched && worker == "http://good:3000"
	})

	got := api.codes("http://good:3000")
	if len(got) != 1 || got[0] != "J1" {
		t.Fatalf("good worker received %v, want [J1] first", got)
	}
	if state, _ := stateOf(c, "J2"); state != coordinator.Queued {
		t.Errorf("J2 state = %v, want queued", state)
	}
}

func TestCompleteSavesMatchAndFreesWorker(t *testing.T) {
	api := newFakeWorkers()
	c, sink, _ := newCoordinator(api)

	c.Register("http://w1:3000")
	c.Submit("CODE-1")
	c.Submit("CODE-2")

	waitFor(t, func() bool {
		state, _ := stateOf(c, "CODE-1")
		return state == coordinator.Dispatched
	})

	payload := &demo.MatchPayload{Map: "Dust II", Duration: 1800}
	if err := c.Complete(context.Background(), "http://w1:3000", payload); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	if state, _ := stateOf(c, "CODE-1"); state != coordinator.Done {
		t.Errorf("CODE-1 state = %v, want done", state)
	}
	if len(sink.saved) != 1 || sink.saved[0].Map != "Dust II" {
		t.Errorf("sink received %v, want the completed payload", sink.saved)
	}

	// Freeing the worker must pull the next queued job.
	waitFor(t, func() bool {
		state, _ := stateOf(c, "CODE-2")
		return state == coordinator.Dispatched
	})
}

func TestCompleteWithoutPayloadMarksJobLost(t *testing.T) {
	api := newFakeWorkers()
	c, sink, _ := newCoordinator(api)

	c.Register("http://w1:3000")
	c.Submit("CODE-1")

	waitFor(t, func() bool {
		state, _ := stateOf(c, "CODE-1")
		return state == coordinator.Dispatched
	})

	if err := c.Complete(context.Background(), "http://w1:3000", nil); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	if state, _ := stateOf(c, "CODE-1"); state != coordinator.Lost {
		t.Errorf("CODE-1 state = %v, want lost", state)
	}
	if len(sink.saved) != 0 {
		t.Errorf("sink received %d payloads, want 0", len(sink.saved))
	}
	if w := c.Workers()[0]; w.Working {
		t.Error("worker should be idle after completion")
	}
}

func TestStuckJobRequeuedAndWorkerDropped(t *testing.T) {
	api := newFakeWorkers()
	c, _, _ := newCoordinator(api)

	c.Register("http://w1:3000")
	c.Submit("CODE-1")

	waitFor(t, func() bool {
		state, _ := stateOf(c, "CODE-1")
		return state == coordinator.Dispatched
	})

	// A sweep well past the stuck timeout presumes the worker crashed.
	c.RequeueStuck(time.Now().Add(constants.JobStuckTimeout + time.Minute))

	if state, _ := stateOf(c, "CODE-1"); state != coordinator.Queued {
		t.Errorf("CODE-1 state = %v, want queued", state)
	}
	if got := len(c.Workers()); got != 0 {
		t.Errorf("workers = %d, want 0", got)
	}

	// A fresh registration picks the requeued job up again.
	c.Register("http://w2:3000")
	waitFor(t, func() bool {
		state, worker := stateOf(c, "CODE-1")
		return state == coordinator.Dispatched && worker == "http://w2:3000"
	})
}

func TestRecentJobsSurviveJanitorSweep(t *testing.T) {
	api := newFakeWorkers()
	c, _, _ := newCoordinator(api)

	c.Register("http://w1:3000")
	c.Submit("CODE-1")

	waitFor(t, func() bool {
		state, _ := stateOf(c, "CODE-1")
		return state == coordinator.Dispatched
	})

	c.RequeueStuck(time.Now())

	if state, _ := stateOf(c, "CODE-1"); state != coordinator.Dispatched {
		t.Errorf("CODE-1 state = %v, want dispatched", state)
	}
	if got := len(c.Workers()); got != 1 {
		t.Errorf("workers = %d, want 1", got)
	}
}

func TestSubmitIgnoresKnownCodes(t *testing.T) {
	api := newFakeWorkers()
	c, _, _ := newCoordinator(api)

	c.Submit("CODE-1")
	c.Submit("CODE-1")

	if got := len(c.Jobs()); got != 1 {
		t.Fatalf("jobs = %d, want 1", got)
	}
}
