package eventbus

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/ewolf/brain/core/messages"
)

// maxDrainPasses bounds how often one poll re-reads the destinations while
// the gateway keeps filling them.
const maxDrainPasses = 4

type pending struct {
	env     Envelope
	arrival uint64
}

// binding is one subscription as seen by the endpoint. Every binding owns
// its destination channel: Latest bindings hold a single slot, FIFO
// bindings hold the endpoint capacity.
type binding struct {
	mode Mode
	dest chan Envelope
}

// Subscriber is a polling endpoint. It may hold subscriptions to several
// kinds, each with its own delivery mode and its own buffered channel.
type Subscriber struct {
	id       string
	gw       *Gateway
	capacity int

	mu     sync.Mutex
	subs   map[messages.Key]*binding
	fifo   []pending
	latest map[messages.Key]pending
	closed bool
}

// SubscriberOption configures a Subscriber.
type SubscriberOption func(*Subscriber)

// WithCapacity sets the buffer size of FIFO subscriptions, overriding the
// gateway default.
func WithCapacity(n int) SubscriberOption {
	return func(s *Subscriber) {
		if n > 0 {
			s.capacity = n
		}
	}
}

// NewSubscriber creates an endpoint. An empty id is replaced by a random one.
func NewSubscriber(gw *Gateway, id string, opts ...SubscriberOption) *Subscriber {
	if id == "" {
		id = uuid.NewString()
	}
	s := &Subscriber{
		id:       id,
		gw:       gw,
		capacity: gw.destCap,
		subs:     make(map[messages.Key]*binding),
		latest:   make(map[messages.Key]pending),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// ID returns the subscriber identifier.
func (s *Subscriber) ID() string { return s.id }

// Subscribe requests delivery of key with the given mode. Subscribing again
// to the same kind with another mode replaces the previous subscription and
// discards what it had buffered.
func (s *Subscriber) Subscribe(key messages.Key, mode Mode) error {
	if _, err := s.gw.reg.LookupKey(key); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	if mode != FIFO && mode != Latest {
		return fmt.Errorf("subscribe %s: invalid mode %s", key, mode)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return messages.ErrEndpointClosed
	}
	if b, ok := s.subs[key]; ok {
		if b.mode == mode {
			return s.gw.submit(ControlRequest{Action: ActionSubscribe, Key: key, SubscriberID: s.id, Mode: mode, Destination: b.dest})
		}
		if err := s.dropLocked(key); err != nil {
			return err
		}
	}
	size := s.capacity
	if mode == Latest {
		size = 1
	}
	b := &binding{mode: mode, dest: make(chan Envelope, size)}
	s.subs[key] = b
	return s.gw.submit(ControlRequest{Action: ActionSubscribe, Key: key, SubscriberID: s.id, Mode: mode, Destination: b.dest})
}

// Unsubscribe stops delivery of key and discards its buffered values.
func (s *Subscriber) Unsubscribe(key messages.Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return messages.ErrEndpointClosed
	}
	if _, ok := s.subs[key]; !ok {
		s.forgetLocked(key)
		return nil
	}
	return s.dropLocked(key)
}

// dropLocked forgets the binding of key and asks the gateway to remove it.
func (s *Subscriber) dropLocked(key messages.Key) error {
	b := s.subs[key]
	delete(s.subs, key)
	s.forgetLocked(key)
	return s.gw.submit(ControlRequest{Action: ActionUnsubscribe, Key: key, SubscriberID: s.id, Destination: b.dest})
}

// Receive returns the next value without blocking. FIFO kinds yield every
// value in emission order; Latest kinds yield only the newest value, once.
// Across kinds values come out in the order the gateway routed them.
func (s *Subscriber) Receive() (any, bool, error) {
	env, ok, err := s.ReceiveEnvelope()
	return env.Value, ok, err
}

// ReceiveEnvelope is Receive returning the whole envelope.
func (s *Subscriber) ReceiveEnvelope() (Envelope, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Envelope{}, false, messages.ErrEndpointClosed
	}
	s.drainLocked()

	var (
		best    pending
		found   bool
		fromKey messages.Key
		isFIFO  bool
	)
	if len(s.fifo) > 0 {
		best, found, isFIFO = s.fifo[0], true, true
	}
	for k, p := range s.latest {
		if !found || p.arrival < best.arrival {
			best, found, isFIFO, fromKey = p, true, false, k
		}
	}
	if !found {
		return Envelope{}, false, nil
	}
	if isFIFO {
		s.fifo = s.fifo[1:]
	} else {
		delete(s.latest, fromKey)
	}
	return best.env, true, nil
}

// Get returns and clears the most recent buffered value of key. It lets one
// endpoint interleave reads across kinds without one starving another.
func (s *Subscriber) Get(key messages.Key) (any, bool, error) {
	env, ok, err := s.GetEnvelope(key)
	return env.Value, ok, err
}

// GetEnvelope is Get returning the whole envelope.
func (s *Subscriber) GetEnvelope(key messages.Key) (Envelope, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Envelope{}, false, messages.ErrEndpointClosed
	}
	s.drainLocked()

	var (
		best  pending
		found bool
	)
	if p, ok := s.latest[key]; ok {
		best, found = p, true
	}
	for _, p := range s.fifo {
		if p.env.Key() == key && (!found || p.arrival > best.arrival) {
			best, found = p, true
		}
	}
	if !found {
		return Envelope{}, false, nil
	}
	s.forgetLocked(key)
	return best.env, true, nil
}

// HasPending reports whether a value is ready without consuming it.
func (s *Subscriber) HasPending() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, messages.ErrEndpointClosed
	}
	s.drainLocked()
	return len(s.fifo) > 0 || len(s.latest) > 0, nil
}

// Close tears the endpoint down. The gateway drops every subscription of
// the endpoint and closes their channels.
func (s *Subscriber) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	dests := make([]chan Envelope, 0, len(s.subs))
	for _, b := range s.subs {
		dests = append(dests, b.dest)
	}
	s.closed = true
	s.subs = nil
	s.fifo = nil
	s.latest = nil
	err := s.gw.submit(ControlRequest{Action: ActionRelease, SubscriberID: s.id, Destinations: dests})
	if errors.Is(err, ErrGatewayStopped) {
		return nil
	}
	return err
}

// drainLocked moves everything routed so far into the local buffers. A pass
// that finds every destination empty proves no older envelope is still in
// flight, so buffered arrival order matches routing order.
func (s *Subscriber) drainLocked() {
	for pass := 0; pass < maxDrainPasses; pass++ {
		var batch []pending
		for _, b := range s.subs {
			batch = drainInto(batch, b.dest)
		}
		if len(batch) == 0 {
			return
		}
		sort.Slice(batch, func(i, j int) bool { return batch[i].arrival < batch[j].arrival })
		for _, p := range batch {
			s.bufferLocked(p)
		}
	}
}

func drainInto(batch []pending, dest chan Envelope) []pending {
	for {
		select {
		case env, ok := <-dest:
			if !ok {
				return batch
			}
			batch = append(batch, pending{env: env, arrival: env.arrival})
		default:
			return batch
		}
	}
}

func (s *Subscriber) bufferLocked(p pending) {
	key := p.env.Key()
	b, ok := s.subs[key]
	if !ok {
		return
	}
	if b.mode == Latest {
		s.latest[key] = p
		return
	}
	s.fifo = append(s.fifo, p)
}

func (s *Subscriber) forgetLocked(key messages.Key) {
	delete(s.latest, key)
	kept := s.fifo[:0]
	for _, p := range s.fifo {
		if p.env.Key() != key {
			kept = append(kept, p)
		}
	}
	s.fifo = kept
}
