package matrix

import (
	"context"
	"sync"

	"maunium.net/go/mautrix/id"
)

const roomQueueSize = 32

// roomQueues runs submitted work on one goroutine per room, so events of a
// room are handled in order while rooms never wait on each other.
type roomQueues struct {
	closeMu sync.RWMutex
	closed  bool

	mu     sync.Mutex
	queues map[id.RoomID]chan func()
	wg     sync.WaitGroup
}

func newRoomQueues() *roomQueues {
	return &roomQueues{queues: make(map[id.RoomID]chan func())}
}

// Submit queues fn behind earlier work of the same room. It blocks while
// that room's queue is full and reports false once the queues are closed.
func (q *roomQueues) Submit(room id.RoomID, fn func()) bool {
	q.closeMu.RLock()
	defer q.closeMu.RUnlock()
	if q.closed {
		return false
	}

	q.queue(room) <- fn
	return true
}

func (q *roomQueues) queue(room id.RoomID) chan func() {
	q.mu.Lock()
	defer q.mu.Unlock()

	ch, ok := q.queues[room]
	if !ok {
		ch = make(chan func(), roomQueueSize)
		q.queues[room] = ch
		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			for fn := range ch {
				fn()
			}
		}()
	}
	return ch
}

// Close stops accepting work and waits for queued work to finish or ctx to end.
func (q *roomQueues) Close(ctx context.Context) error {
	q.closeMu.Lock()
	if !q.closed {
		q.closed = true
		q.mu.Lock()
		for _, ch := range q.queues {
			close(ch)
		}
		q.mu.Unlock()
	}
	q.closeMu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
