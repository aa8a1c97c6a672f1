// Package eventbus implements the in-process message bus of the vehicle.
//
// A single Gateway owns the routing table. Producers publish through a
// Sender onto class-tagged ingress lines. The Gateway fans every envelope
// out to the channel of each matching subscription, and every subscription
// buffers on its own. Consumers poll their Subscriber without blocking.
// Subscribe and unsubscribe requests travel on the Config line like any
// other envelope.
package eventbus

import (
	"errors"
	"fmt"

	"github.com/ewolf/brain/core/messages"
)

// ErrGatewayStopped is returned when publishing after the gateway has exited.
var ErrGatewayStopped = errors.New("gateway stopped")

// Envelope is a single routed message.
type Envelope struct {
	Owner messages.Owner
	Kind  messages.KindID
	Value any
	// Seq is the per-kind emission counter assigned at publish time.
	Seq uint64

	// arrival orders envelopes across kinds; the gateway stamps it when
	// routing.
	arrival uint64
}

// Key returns the routing key of the envelope.
func (e Envelope) Key() messages.Key { return messages.Key{Owner: e.Owner, ID: e.Kind} }

// Mode is the delivery mode of a subscription.
type Mode int

const (
	// FIFO keeps the full history, delivered one at a time in order.
	FIFO Mode = iota
	// Latest coalesces to the newest value.
	Latest
)

func (m Mode) String() string {
	switch m {
	case FIFO:
		return "fifo"
	case Latest:
		return "latest"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode parses "fifo" or "latest". Matching is exact.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "fifo":
		return FIFO, nil
	case "latest":
		return Latest, nil
	}
	return 0, fmt.Errorf("unknown delivery mode %q", s)
}

// Action is a control-plane verb addressed to the gateway.
type Action string

const (
	ActionSubscribe   Action = "subscribe"
	ActionUnsubscribe Action = "unsubscribe"
	// ActionRelease drops every subscription of an endpoint and closes
	// their channels.
	ActionRelease Action = "release"
)

// ControlRequest is the payload of the Gateway/Subscription kind.
type ControlRequest struct {
	Action       Action
	Key          messages.Key
	SubscriberID string
	Mode         Mode
	Destination  chan Envelope
	// Destinations lists every channel of the endpoint for ActionRelease.
	Destinations []chan Envelope
}
