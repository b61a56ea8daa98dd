package spool

import (
	"slices"
	"sync"
)

// Registry maps task names to registered tasks. It is populated during
// start-up and read by every dispatch.
type Registry struct {
	mu    sync.RWMutex
	tasks map[string]*Task
}

func NewRegistry() *Registry {
	return &Registry{tasks: make(map[string]*Task)}
}

// put stores t, replacing and reporting any previous task with the same name.
func (r *Registry) put(t *Task) (replaced bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, replaced = r.tasks[t.Name()]
	r.tasks[t.Name()] = t
	return replaced
}

// Get returns the task registered under name.
func (r *Registry) Get(name string) (*Task, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tasks[name]
	return t, ok
}

// Names returns the registered task names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.tasks))
	for name := range r.tasks {
		names = append(names, name)
	}
	r.mu.RUnlock()

	slices.Sort(names)
	return names
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tasks)
}
