// internal/conversion/registry.go
package conversion

import "sync"

// Registry is the in-memory job table. It is owned by the orchestrator
// instance and injected at construction, so the jobs-vanish-on-restart
// behavior is a property of the registry's lifetime rather than hidden
// process-global state.
type Registry struct {
	mu   sync.RWMutex
	jobs map[string]Job
	ids  []string
}

func NewRegistry() *Registry {
	return &Registry{jobs: make(map[string]Job)}
}

func (r *Registry) Add(job Job) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.jobs[job.ID]; !exists {
		r.ids = append(r.ids, job.ID)
	}
	r.jobs[job.ID] = job
}

func (r *Registry) Get(id string) (Job, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[id]
	return job, ok
}

// Update applies fn to the stored job under the lock.
func (r *Registry) Update(id string, fn func(*Job)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return
	}
	fn(&job)
	r.jobs[id] = job
}

// All returns jobs in insertion order.
func (r *Registry) All() []Job {
	r.mu.RLock()
	defer r.mu.RUnlock()
	jobs := make([]Job, 0, len(r.ids))
	for _, id := range r.ids {
		jobs = append(jobs, r.jobs[id])
	}
	return jobs
}

func (r *Registry) ForBook(bookID string) []Job {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var jobs []Job
	for _, id := range r.ids {
		if job := r.jobs[id]; job.BookID == bookID {
			jobs = append(jobs, job)
		}
	}
	return jobs
}

// ClearCompleted drops every job in a terminal state and returns the count.
// Callers polling for a final result must read it before this runs.
func (r *Registry) ClearCompleted() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.ids[:0]
	removed := 0
	for _, id := range r.ids {
		if r.jobs[id].Status.Terminal() {
			delete(r.jobs, id)
			removed++
			continue
		}
		kept = append(kept, id)
	}
	r.ids = kept
	return removed
}
