package session

import "github.com/slopoverlord/slopoverlord/internal/metrics"

const subscriberQueueCapacity = 256

// StreamUpdateKind tags a chunk delivered by a stream subscription.
type StreamUpdateKind string

const (
	StreamKindSessionReady StreamUpdateKind = "session_ready"
	StreamKindEvent        StreamUpdateKind = "event"
	StreamKindLagging      StreamUpdateKind = "lagging"
	StreamKindEndOfStream  StreamUpdateKind = "end_of_stream"
)

// StreamUpdate is one chunk of an AgentSessionStreamUpdate sequence.
type StreamUpdate struct {
	Kind  StreamUpdateKind `json:"kind"`
	Event *Event           `json:"event,omitempty"`
}

// Subscription is a single subscriber's view of a session's stream.
// Grounded on leapmux's agentmgr.Watcher/Manager broadcast pattern,
// generalized from a fixed agent-event proto to StreamUpdate chunks and
// widened from per-agent to per-session fan-out.
type Subscription struct {
	ch     chan StreamUpdate
	closed chan struct{}
}

// C returns the channel of stream chunks. Closed once a lagging or
// end_of_stream chunk has been delivered.
func (s *Subscription) C() <-chan StreamUpdate {
	return s.ch
}

type broadcaster struct {
	subs map[*Subscription]struct{}
}

func newBroadcaster() *broadcaster {
	return &broadcaster{subs: make(map[*Subscription]struct{})}
}

func (b *broadcaster) subscribe() *Subscription {
	// One slot beyond the queue capacity is kept free for the terminal
	// lagging or end_of_stream chunk.
	sub := &Subscription{
		ch:     make(chan StreamUpdate, subscriberQueueCapacity+1),
		closed: make(chan struct{}),
	}
	b.subs[sub] = struct{}{}
	return sub
}

// send delivers update to every subscriber. A subscriber whose buffer
// is full is dropped after being sent a terminal "lagging" chunk
// instead of the original update, matching the spec's backpressure
// rule (bounded per-subscriber queue, drop-on-overflow).
func (b *broadcaster) send(update StreamUpdate) {
	for sub := range b.subs {
		if len(sub.ch) < subscriberQueueCapacity {
			sub.ch <- update
		} else {
			sub.ch <- StreamUpdate{Kind: StreamKindLagging}
			delete(b.subs, sub)
			close(sub.ch)
			metrics.StreamSubscribersDroppedTotal.Inc()
		}
	}
}

// closeAll sends a terminal end_of_stream chunk to every subscriber and
// closes their channels, used when a session is deleted.
func (b *broadcaster) closeAll() {
	for sub := range b.subs {
		select {
		case sub.ch <- StreamUpdate{Kind: StreamKindEndOfStream}:
		default:
		}
		delete(b.subs, sub)
		close(sub.ch)
	}
}

func (b *broadcaster) unsubscribe(sub *Subscription) {
	if _, ok := b.subs[sub]; ok {
		delete(b.subs, sub)
		close(sub.ch)
	}
}
