package dispatch

import (
	"sync"
	"time"

	"rosterbot/internal/transport"
)

// finalizedTTL bounds how long a finalized document id is remembered so
// late completions can be told apart from completions for ids that
// never existed.
const finalizedTTL = 10 * time.Minute

type docProgress struct {
	expected  int
	completed int
	failed    int
	owner     transport.UserRef
	results   []Outcome
}

// store holds both FIFO queues and the progress map. The mutex covers
// enqueue/dequeue and progress mutation only; job execution never runs
// under it.
type store struct {
	mu sync.Mutex

	jobs  []Job
	notes []transport.Notification

	progress  map[string]*docProgress
	cancelled map[string]struct{}
	finalized map[string]time.Time

	draining bool

	totalCompleted uint64
	totalFailed    uint64
}

func newStore() *store {
	return &store{
		progress:  map[string]*docProgress{},
		cancelled: map[string]struct{}{},
		finalized: map[string]time.Time{},
	}
}

// initDocument creates a fresh progress record. Calling it twice for
// the same id overwrites (last writer wins).
func (q *store) initDocument(docID string, expected int, owner transport.UserRef) {
	q.mu.Lock()
	q.progress[docID] = &docProgress{
		expected: expected,
		owner:    owner,
		results:  make([]Outcome, 0, expected),
	}
	delete(q.cancelled, docID)
	delete(q.finalized, docID)
	q.mu.Unlock()
}

func (q *store) enqueueJob(j Job) {
	q.mu.Lock()
	q.jobs = append(q.jobs, j)
	q.mu.Unlock()
}

func (q *store) dequeueJob() (Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.jobs) == 0 {
		return Job{}, false
	}
	j := q.jobs[0]
	q.jobs = q.jobs[1:]
	return j, true
}

func (q *store) enqueueNotification(n transport.Notification) {
	q.mu.Lock()
	q.notes = append(q.notes, n)
	q.mu.Unlock()
}

func (q *store) dequeueNotification() (transport.Notification, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.notes) == 0 {
		return transport.Notification{}, false
	}
	n := q.notes[0]
	q.notes = q.notes[1:]
	return n, true
}

func (q *store) depths() (jobs, notes int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs), len(q.notes)
}

func (q *store) setDraining(v bool) {
	q.mu.Lock()
	q.draining = v
	q.mu.Unlock()
}

func (q *store) isDraining() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.draining
}

func (q *store) cancelDocument(docID string) {
	q.mu.Lock()
	q.cancelled[docID] = struct{}{}
	q.mu.Unlock()
}

func (q *store) isCancelled(docID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.cancelled[docID]
	return ok
}

// markFinalized remembers the id briefly and prunes expired entries so
// the map stays bounded.
func (q *store) markFinalized(docID string, now time.Time) {
	q.finalized[docID] = now
	for id, at := range q.finalized {
		if now.Sub(at) > finalizedTTL {
			delete(q.finalized, id)
		}
	}
	delete(q.cancelled, docID)
}
