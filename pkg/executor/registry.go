package executor

import (
	"sync"

	"github.com/devicelab-dev/rpa-runner/pkg/core"
)

// taskEntry is the mutable state behind one task. Every mutation holds mu.
type taskEntry struct {
	mu       sync.Mutex
	task     core.BatchTask
	request  BatchRequest
	cancel   bool          // Cancellation requested
	finished bool          // Completion has run
	done     chan struct{} // Closed on completion
}

// Registry is the in-memory task table. Lookups are by immutable task ID;
// nothing is persisted.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*taskEntry
	order   []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*taskEntry)}
}

func (r *Registry) add(e *taskEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[e.task.TaskID] = e
	r.order = append(r.order, e.task.TaskID)
}

func (r *Registry) lookup(taskID string) (*taskEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[taskID]
	return e, ok
}

// Get returns a snapshot of the task.
func (r *Registry) Get(taskID string) (core.BatchTask, bool) {
	e, ok := r.lookup(taskID)
	if !ok {
		return core.BatchTask{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.task.Clone(), true
}

// List returns snapshots of all tasks in submission order.
func (r *Registry) List() []core.BatchTask {
	r.mu.RLock()
	entries := make([]*taskEntry, 0, len(r.order))
	for _, id := range r.order {
		entries = append(entries, r.entries[id])
	}
	r.mu.RUnlock()

	tasks := make([]core.BatchTask, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		tasks = append(tasks, e.task.Clone())
		e.mu.Unlock()
	}
	return tasks
}

// ClearFinished removes tasks in a terminal state and returns how many were
// removed. Queued and Running tasks are kept.
func (r *Registry) ClearFinished() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.order[:0]
	removed := 0
	for _, id := range r.order {
		e := r.entries[id]
		e.mu.Lock()
		terminal := e.task.Status.IsTerminal()
		e.mu.Unlock()
		if terminal {
			delete(r.entries, id)
			removed++
			continue
		}
		kept = append(kept, id)
	}
	r.order = kept
	return removed
}
