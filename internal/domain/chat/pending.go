package chat

import "sync"

// PendingSubmission is a message captured while no thread was ready to
// receive it.
type PendingSubmission struct {
	Text    string
	Uploads []Upload
}

// PendingQueue is the single-slot holding area for submissions that raced
// thread creation. Last write wins: a newer pending submission silently
// replaces an unconsumed older one.
type PendingQueue struct {
	mu      sync.Mutex
	pending *PendingSubmission
}

// NewPendingQueue returns an empty queue.
func NewPendingQueue() *PendingQueue {
	return &PendingQueue{}
}

// Set stores a submission, replacing any previous occupant.
func (q *PendingQueue) Set(text string, uploads []Upload) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = &PendingSubmission{Text: text, Uploads: uploads}
}

// Take removes and returns the held submission. The second return is false
// when the slot is empty.
func (q *PendingQueue) Take() (PendingSubmission, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.pending == nil {
		return PendingSubmission{}, false
	}
	p := *q.pending
	q.pending = nil
	return p, true
}

// Peek reports whether a submission is waiting without consuming it.
func (q *PendingQueue) Peek() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pending != nil
}
