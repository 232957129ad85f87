package sync

import (
	"log/slog"
	gosync "sync"

	"github.com/mgost/mgost/logging"
)

// ChangeQueue is a thread-safe, deduplicating FIFO of project-relative
// paths that changed on disk. The watcher pushes, the daemon pops;
// a path queued twice before being popped is handled once.
type ChangeQueue struct {
	mu     gosync.Mutex
	set    map[string]struct{}
	order  []string
	notify chan struct{}
}

// NewChangeQueue creates an empty queue.
func NewChangeQueue() *ChangeQueue {
	return &ChangeQueue{
		set:    make(map[string]struct{}),
		notify: make(chan struct{}, 1),
	}
}

// Push adds a path. Already queued paths are dropped silently.
func (q *ChangeQueue) Push(path string) {
	q.mu.Lock()
	if _, exists := q.set[path]; exists {
		q.mu.Unlock()
		return
	}
	q.set[path] = struct{}{}
	q.order = append(q.order, path)
	newLen := len(q.order)
	q.mu.Unlock()

	if logging.Enabled(slog.LevelDebug) {
		logging.Sub("queue").Debug("push", "path", path, "queueLen", newLen)
	}

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// PushMany adds a batch of paths, deduplicating against the queue and
// within the batch.
func (q *ChangeQueue) PushMany(paths []string) {
	q.mu.Lock()
	added := 0
	for _, path := range paths {
		if _, exists := q.set[path]; exists {
			continue
		}
		q.set[path] = struct{}{}
		q.order = append(q.order, path)
		added++
	}
	q.mu.Unlock()

	if added == 0 {
		return
	}
	if logging.Enabled(slog.LevelDebug) {
		logging.Sub("queue").Debug("pushMany", "requested", len(paths), "added", added)
	}
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Pop removes and returns the oldest path, blocking until one is
// available or done closes. Returns ("", false) when done.
func (q *ChangeQueue) Pop(done <-chan struct{}) (string, bool) {
	for {
		q.mu.Lock()
		if len(q.order) > 0 {
			path := q.order[0]
			q.order = q.order[1:]
			delete(q.set, path)
			q.mu.Unlock()
			return path, true
		}
		q.mu.Unlock()

		select {
		case <-done:
			return "", false
		case <-q.notify:
		}
	}
}

// Has reports whether the path is currently queued.
func (q *ChangeQueue) Has(path string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, exists := q.set[path]
	return exists
}

// Len returns the number of queued paths.
func (q *ChangeQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.order)
}

// Drain removes and returns everything queued.
func (q *ChangeQueue) Drain() []string {
	q.mu.Lock()
	result := q.order
	q.order = nil
	q.set = make(map[string]struct{})
	q.mu.Unlock()
	return result
}
