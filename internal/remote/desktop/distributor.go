package desktop

import "sync"

// subscriberQueueSize bounds each subscriber's frame backlog. When a
// subscriber falls behind, the oldest queued frame is dropped so the viewer
// skips forward rather than accumulating latency.
const subscriberQueueSize = 10

// Subscriber receives frames from the distributor. Frames delivers published
// frames in order; Done is closed when the subscriber is removed.
type Subscriber struct {
	id     string
	frames chan *Frame
	done   chan struct{}
}

// Frames is the subscriber's ordered frame queue.
func (s *Subscriber) Frames() <-chan *Frame { return s.frames }

// Done is closed when the subscriber has been unsubscribed.
func (s *Subscriber) Done() <-chan struct{} { return s.done }

// Distributor fans captured frames out to any number of subscribers. A slow
// subscriber never blocks the capture loop or its peers: each subscriber has
// its own bounded queue with drop-oldest overflow.
type Distributor struct {
	mu   sync.Mutex
	subs map[string]*Subscriber
}

func NewDistributor() *Distributor {
	return &Distributor{subs: make(map[string]*Subscriber)}
}

// Subscribe registers a new subscriber under the given id, replacing any
// existing subscriber with the same id.
func (d *Distributor) Subscribe(id string) *Subscriber {
	sub := &Subscriber{
		id:     id,
		frames: make(chan *Frame, subscriberQueueSize),
		done:   make(chan struct{}),
	}
	d.mu.Lock()
	if old, ok := d.subs[id]; ok {
		close(old.done)
	}
	d.subs[id] = sub
	d.mu.Unlock()
	return sub
}

// Unsubscribe removes a subscriber and closes its Done channel. The frames
// channel is never closed; consumers exit via Done instead, so a concurrent
// Publish can never panic on a closed channel.
func (d *Distributor) Unsubscribe(id string) {
	d.mu.Lock()
	sub, ok := d.subs[id]
	if ok {
		delete(d.subs, id)
	}
	d.mu.Unlock()
	if ok {
		close(sub.done)
	}
}

// Publish delivers a frame to every subscriber. If a subscriber's queue is
// full, the oldest frame is discarded to make room.
func (d *Distributor) Publish(f *Frame) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, sub := range d.subs {
		for {
			select {
			case sub.frames <- f:
			default:
				// Queue full: drop the oldest frame and retry.
				select {
				case <-sub.frames:
				default:
				}
				continue
			}
			break
		}
	}
}

// Count returns the number of current subscribers.
func (d *Distributor) Count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.subs)
}

// Reset removes all subscribers.
func (d *Distributor) Reset() {
	d.mu.Lock()
	subs := d.subs
	d.subs = make(map[string]*Subscriber)
	d.mu.Unlock()
	for _, sub := range subs {
		close(sub.done)
	}
}
