// Package post queues callbacks to run later on the routine which owns the queue.
package post

import (
	"sync"

	"github.com/xiaonanln/entitysync/engine/gwutils"
)

// PostCallback is the type of functions to be posted
type PostCallback func()

// Queue is a queue of callbacks. Post may be called from any goroutine, Tick from the owner only.
type Queue struct {
	lock      sync.Mutex
	callbacks []PostCallback
}

// Post a callback which will be executed by the routine that calls Tick
func (q *Queue) Post(f PostCallback) {
	q.lock.Lock()
	q.callbacks = append(q.callbacks, f)
	q.lock.Unlock()
}

// Pending returns the number of callbacks waiting for Tick
func (q *Queue) Pending() int {
	q.lock.Lock()
	n := len(q.callbacks)
	q.lock.Unlock()
	return n
}

// Tick runs all posted functions, including those posted while running. Panics are logged and skipped.
func (q *Queue) Tick() {
	for {
		q.lock.Lock()
		if len(q.callbacks) == 0 {
			q.lock.Unlock()
			break
		}
		callbacks := q.callbacks
		q.callbacks = make([]PostCallback, 0, len(callbacks))
		q.lock.Unlock()

		for _, f := range callbacks {
			gwutils.RunPanicless(f)
		}
	}
}
