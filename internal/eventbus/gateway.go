package eventbus

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ewolf/brain/core/messages"
	coremetrics "github.com/ewolf/brain/core/metrics"
	"github.com/ewolf/brain/core/monitoring"
	"github.com/ewolf/brain/infra/logger"
)

const (
	defaultLineCapacity = 1024
	defaultDestCapacity = 256
)

type subscription struct {
	id   string
	key  messages.Key
	mode Mode
	dest chan Envelope
}

// Stats is a snapshot of the gateway counters.
type Stats struct {
	Subscriptions int
	Delivered     uint64
	Dropped       uint64
	DeadLetters   uint64
}

// Gateway is the central broker. Only the goroutine running Run touches the
// routing table.
type Gateway struct {
	reg   *messages.Registry
	lines [messages.ClassLog + 1]chan Envelope
	log   logger.Logger
	rec   coremetrics.BusRecorder

	statsEvery time.Duration
	destCap    int

	runOnce  sync.Once
	stopOnce sync.Once
	done     chan struct{}

	routes  map[messages.Key]map[chan Envelope]*subscription
	arrival uint64

	subs        atomic.Int64
	delivered   atomic.Uint64
	dropped     atomic.Uint64
	deadLetters atomic.Uint64
}

// GatewayOption configures a Gateway.
type GatewayOption func(*Gateway)

// WithLogger sets the gateway logger.
func WithLogger(l logger.Logger) GatewayOption {
	return func(g *Gateway) {
		if l != nil {
			g.log = l
		}
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r coremetrics.BusRecorder) GatewayOption {
	return func(g *Gateway) {
		if r != nil {
			g.rec = r
		}
	}
}

// WithLineCapacity sets the buffer size of every ingress line.
func WithLineCapacity(n int) GatewayOption {
	return func(g *Gateway) {
		if n > 0 {
			for i := range g.lines {
				g.lines[i] = make(chan Envelope, n)
			}
		}
	}
}

// WithEndpointCapacity sets the default destination buffer of subscribers
// created on the gateway.
func WithEndpointCapacity(n int) GatewayOption {
	return func(g *Gateway) {
		if n > 0 {
			g.destCap = n
		}
	}
}

// WithStatsInterval makes the gateway publish BusStats at the given period.
func WithStatsInterval(d time.Duration) GatewayOption {
	return func(g *Gateway) { g.statsEvery = d }
}

// NewGateway creates a gateway routing the kinds of reg.
func NewGateway(reg *messages.Registry, opts ...GatewayOption) *Gateway {
	g := &Gateway{
		reg:     reg,
		log:     logger.New("gateway"),
		rec:     coremetrics.NopSink{},
		destCap: defaultDestCapacity,
		done:    make(chan struct{}),
		routes:  make(map[messages.Key]map[chan Envelope]*subscription),
	}
	for i := range g.lines {
		g.lines[i] = make(chan Envelope, defaultLineCapacity)
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Registry returns the kind registry the gateway routes.
func (g *Gateway) Registry() *messages.Registry { return g.reg }

// Done is closed once the gateway has stopped.
func (g *Gateway) Done() <-chan struct{} { return g.done }

// Stats returns a snapshot of the gateway counters.
func (g *Gateway) Stats() Stats {
	return Stats{
		Subscriptions: int(g.subs.Load()),
		Delivered:     g.delivered.Load(),
		Dropped:       g.dropped.Load(),
		DeadLetters:   g.deadLetters.Load(),
	}
}

// Run routes envelopes until ctx is cancelled. It must be called once.
// A panic while routing is reported and re-raised: the bus cannot continue
// without its gateway.
func (g *Gateway) Run(ctx context.Context) error {
	started := false
	g.runOnce.Do(func() { started = true })
	if !started {
		return nil
	}
	defer g.stop()
	defer monitoring.Recover()

	var statsC <-chan time.Time
	if g.statsEvery > 0 {
		t := time.NewTicker(g.statsEvery)
		defer t.Stop()
		statsC = t.C
	}
	g.log.Infof("gateway started")
	for {
		if ctx.Err() != nil {
			g.log.Infof("gateway stopped")
			return nil
		}
		g.drainConfig()
		if env, ok := g.nextPayload(); ok {
			g.drainConfig()
			g.route(env)
			continue
		}
		select {
		case <-ctx.Done():
			g.log.Infof("gateway stopped")
			return nil
		case env := <-g.lines[messages.ClassConfig]:
			g.handleConfig(env)
		case env := <-g.lines[messages.ClassCritical]:
			g.drainConfig()
			g.route(env)
		case env := <-g.lines[messages.ClassWarning]:
			g.drainConfig()
			g.route(env)
		case env := <-g.lines[messages.ClassGeneral]:
			g.drainConfig()
			g.route(env)
		case env := <-g.lines[messages.ClassLog]:
			g.drainConfig()
			g.route(env)
		case <-statsC:
			g.publishStats()
		}
	}
}

func (g *Gateway) stop() {
	g.stopOnce.Do(func() { close(g.done) })
}

// enqueue places env on the ingress line of class. It blocks only while the
// line is full.
func (g *Gateway) enqueue(class messages.Class, env Envelope) error {
	select {
	case <-g.done:
		return ErrGatewayStopped
	default:
	}
	select {
	case g.lines[class] <- env:
		return nil
	case <-g.done:
		return ErrGatewayStopped
	}
}

func (g *Gateway) submit(req ControlRequest) error {
	seq, err := g.reg.NextSeq(messages.Subscription)
	if err != nil {
		return err
	}
	return g.enqueue(messages.ClassConfig, Envelope{
		Owner: messages.Subscription.Owner,
		Kind:  messages.Subscription.ID,
		Value: req,
		Seq:   seq,
	})
}

func (g *Gateway) drainConfig() {
	for {
		select {
		case env := <-g.lines[messages.ClassConfig]:
			g.handleConfig(env)
		default:
			return
		}
	}
}

func (g *Gateway) nextPayload() (Envelope, bool) {
	for _, c := range messages.PayloadClasses {
		select {
		case env := <-g.lines[c]:
			return env, true
		default:
		}
	}
	return Envelope{}, false
}

func (g *Gateway) handleConfig(env Envelope) {
	if env.Key() != messages.Subscription {
		g.route(env)
		return
	}
	req, ok := env.Value.(ControlRequest)
	if !ok {
		g.log.Warnf("ignoring control request of type %T", env.Value)
		return
	}
	g.apply(req)
}

// apply mutates the routing table. Requests that match nothing are no-ops.
// A destination leaving the table is closed; the gateway is its only writer.
func (g *Gateway) apply(req ControlRequest) {
	switch req.Action {
	case ActionSubscribe:
		if req.Destination == nil {
			g.log.Warnf("subscribe %s from %s without destination", req.Key, req.SubscriberID)
			return
		}
		subs, ok := g.routes[req.Key]
		if !ok {
			subs = make(map[chan Envelope]*subscription)
			g.routes[req.Key] = subs
		}
		if _, exists := subs[req.Destination]; !exists {
			g.subs.Add(1)
		}
		subs[req.Destination] = &subscription{id: req.SubscriberID, key: req.Key, mode: req.Mode, dest: req.Destination}
		g.log.Debugf("subscribe %s to %s (%s)", req.SubscriberID, req.Key, req.Mode)
	case ActionUnsubscribe:
		if g.remove(req.Key, req.Destination) {
			close(req.Destination)
		}
		g.log.Debugf("unsubscribe %s from %s", req.SubscriberID, req.Key)
	case ActionRelease:
		for _, dest := range req.Destinations {
			for key := range g.routes {
				if g.remove(key, dest) {
					close(dest)
					break
				}
			}
		}
		g.log.Debugf("released %s", req.SubscriberID)
	default:
		g.log.Warnf("unknown control action %q from %s", req.Action, req.SubscriberID)
	}
}

func (g *Gateway) remove(key messages.Key, dest chan Envelope) bool {
	subs, ok := g.routes[key]
	if !ok {
		return false
	}
	if _, ok := subs[dest]; !ok {
		return false
	}
	delete(subs, dest)
	g.subs.Add(-1)
	if len(subs) == 0 {
		delete(g.routes, key)
	}
	return true
}

func (g *Gateway) route(env Envelope) {
	key := env.Key()
	subs := g.routes[key]
	if len(subs) == 0 {
		g.deadLetters.Add(1)
		if err := g.rec.RecordDeadLetter(key); err != nil {
			g.log.Debugf("record dead letter: %v", err)
		}
		return
	}
	g.arrival++
	env.arrival = g.arrival
	for _, s := range subs {
		g.deliver(s, env)
	}
	kind, _ := g.reg.LookupKey(key)
	if err := g.rec.RecordDelivery(coremetrics.DeliveryEvent{Key: key, Class: kind.Class, Subscribers: len(subs)}); err != nil {
		g.log.Debugf("record delivery: %v", err)
	}
}

// deliver never blocks. A full Latest destination gives up its previous
// value; a full FIFO destination loses the new one. Each destination carries
// a single subscription, so an eviction never touches another kind.
func (g *Gateway) deliver(s *subscription, env Envelope) {
	select {
	case s.dest <- env:
		g.delivered.Add(1)
		return
	default:
	}
	if s.mode == Latest {
		select {
		case <-s.dest:
			g.recordDrop(s, env.Key(), coremetrics.DropEvicted)
		default:
		}
		select {
		case s.dest <- env:
			g.delivered.Add(1)
			return
		default:
		}
	}
	g.recordDrop(s, env.Key(), coremetrics.DropBufferFull)
}

func (g *Gateway) recordDrop(s *subscription, key messages.Key, reason string) {
	g.dropped.Add(1)
	g.log.Debugf("drop %s for %s: %s", key, s.id, reason)
	if err := g.rec.RecordDrop(coremetrics.DropEvent{Key: key, SubscriberID: s.id, Mode: s.mode.String(), Reason: reason}); err != nil {
		g.log.Debugf("record drop: %v", err)
	}
}

func (g *Gateway) publishStats() {
	seq, err := g.reg.NextSeq(messages.BusStatsKind)
	if err != nil {
		g.log.Errorf("bus stats: %v", err)
		return
	}
	st := g.Stats()
	g.route(Envelope{
		Owner: messages.BusStatsKind.Owner,
		Kind:  messages.BusStatsKind.ID,
		Seq:   seq,
		Value: messages.BusStats{
			Subscriptions: st.Subscriptions,
			Delivered:     st.Delivered,
			Dropped:       st.Dropped,
			DeadLetters:   st.DeadLetters,
			Time:          time.Now(),
		},
	})
}
