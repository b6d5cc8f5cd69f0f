// Package queue provides the bounded in-memory priority queue feeding the
// indexing worker pool. Higher priority dequeues first; equal priorities
// dequeue in arrival order.
package queue

import (
	"container/heap"
	"sort"
	"sync"
	"time"
)

// Priorities used by the syncer and facade. Anything in between is legal.
const (
	PriorityRetry   = 1
	PriorityUpdated = 2
	PriorityNew     = 3
	PriorityForce   = 10
)

// Item is one unit of indexing work.
type Item struct {
	VideoID    string    `json:"video_id"`
	Priority   int       `json:"priority"`
	QueuedAt   time.Time `json:"queued_at"`
	RetryCount int       `json:"retry_count"`
	LastError  string    `json:"last_error,omitempty"`

	// seq breaks priority ties so equal-priority items stay FIFO even when
	// QueuedAt timestamps collide.
	seq uint64
}

// Queue is a bounded priority queue. Enqueue refuses duplicates and rejects
// when full; Dequeue blocks up to a timeout. Safe for concurrent use.
type Queue struct {
	mu       sync.Mutex
	items    itemHeap
	present  map[string]struct{}
	capacity int
	nextSeq  uint64

	// notify wakes one blocked Dequeue per Enqueue. Capacity 1: a pending
	// wake-up is never lost, extras are dropped.
	notify chan struct{}
}

// New creates a queue with the given capacity.
func New(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue{
		present:  make(map[string]struct{}),
		capacity: capacity,
		notify:   make(chan struct{}, 1),
	}
}

// Enqueue adds an item. Returns false without queuing when the video is
// already queued or the queue is full.
func (q *Queue) Enqueue(item Item) bool {
	q.mu.Lock()

	if _, dup := q.present[item.VideoID]; dup {
		q.mu.Unlock()
		return false
	}
	if q.items.Len() >= q.capacity {
		q.mu.Unlock()
		return false
	}

	if item.QueuedAt.IsZero() {
		item.QueuedAt = time.Now().UTC()
	}
	item.seq = q.nextSeq
	q.nextSeq++

	heap.Push(&q.items, item)
	q.present[item.VideoID] = struct{}{}
	q.mu.Unlock()

	q.wake()
	return true
}

// Contains reports whether the video is currently queued.
func (q *Queue) Contains(videoID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.present[videoID]
	return ok
}

// Dequeue removes the highest-priority item, blocking up to the timeout when
// the queue is empty. Returns false on timeout.
func (q *Queue) Dequeue(timeout time.Duration) (Item, bool) {
	deadline := time.After(timeout)

	for {
		q.mu.Lock()
		if q.items.Len() > 0 {
			item := heap.Pop(&q.items).(Item)
			delete(q.present, item.VideoID)
			remaining := q.items.Len() > 0
			q.mu.Unlock()
			if remaining {
				// Re-arm so a waiter whose wake-up this pop consumed does
				// not sleep while work is queued.
				q.wake()
			}
			return item, true
		}
		q.mu.Unlock()

		select {
		case <-q.notify:
			// Another waiter may have taken the item; loop and recheck.
		case <-deadline:
			return Item{}, false
		}
	}
}

// wake deposits the single wake-up token if absent.
func (q *Queue) wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// TryDequeue removes the highest-priority item without blocking.
func (q *Queue) TryDequeue() (Item, bool) {
	q.mu.Lock()

	if q.items.Len() == 0 {
		q.mu.Unlock()
		return Item{}, false
	}
	item := heap.Pop(&q.items).(Item)
	delete(q.present, item.VideoID)
	remaining := q.items.Len() > 0
	q.mu.Unlock()

	if remaining {
		q.wake()
	}
	return item, true
}

// Size returns the number of queued items.
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len()
}

// Capacity returns the maximum queue size.
func (q *Queue) Capacity() int {
	return q.capacity
}

// Snapshot returns a copy of the queued items in dequeue order.
func (q *Queue) Snapshot() []Item {
	q.mu.Lock()
	items := make([]Item, len(q.items))
	copy(items, q.items)
	q.mu.Unlock()

	sort.Slice(items, func(i, j int) bool {
		return items[i].less(items[j])
	})
	return items
}

// less orders by priority descending, then arrival order ascending.
func (a Item) less(b Item) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	return a.seq < b.seq
}

// itemHeap implements heap.Interface.
type itemHeap []Item

func (h itemHeap) Len() int           { return len(h) }
func (h itemHeap) Less(i, j int) bool { return h[i].less(h[j]) }
func (h itemHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *itemHeap) Push(x any)        { *h = append(*h, x.(Item)) }
func (h *itemHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
