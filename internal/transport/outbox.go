package transport

import "sync"

// Outbox is the unbounded outbound queue of one connection.
//
// Producers Push from any goroutine without blocking; a single writer
// goroutine waits on Ready and writes everything Drain returns. Close
// stops new pushes but lets the writer flush what is already queued,
// which gives Terminate its flush-then-close behaviour.
type Outbox struct {
	mu      sync.Mutex
	queue   [][]byte
	closing bool
	ready   chan struct{}
}

// NewOutbox returns an empty Outbox.
func NewOutbox() *Outbox {
	return &Outbox{ready: make(chan struct{}, 1)}
}

// Push queues data. It returns false once the outbox is closing.
func (o *Outbox) Push(data []byte) bool {
	o.mu.Lock()
	if o.closing {
		o.mu.Unlock()
		return false
	}
	o.queue = append(o.queue, data)
	o.mu.Unlock()
	o.signal()
	return true
}

// Close marks the outbox closing. Already queued data is still drained.
func (o *Outbox) Close() {
	o.mu.Lock()
	already := o.closing
	o.closing = true
	o.mu.Unlock()
	if !already {
		o.signal()
	}
}

// Ready fires when data was pushed or the outbox was closed.
func (o *Outbox) Ready() <-chan struct{} {
	return o.ready
}

// Drain takes everything queued. closing reports that the writer must
// close the connection after writing msgs.
func (o *Outbox) Drain() (msgs [][]byte, closing bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	msgs = o.queue
	o.queue = nil
	return msgs, o.closing
}

// Len returns the number of queued messages.
func (o *Outbox) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.queue)
}

func (o *Outbox) signal() {
	select {
	case o.ready <- struct{}{}:
	default:
	}
}
