package eventbus

import (
	"fmt"

	"github.com/ewolf/brain/core/messages"
)

// Sender publishes the kinds owned by one component.
type Sender struct {
	gw    *Gateway
	owner messages.Owner
}

// NewSender returns a Sender publishing on behalf of owner.
func NewSender(gw *Gateway, owner messages.Owner) *Sender {
	return &Sender{gw: gw, owner: owner}
}

// Owner returns the component the sender publishes for.
func (s *Sender) Owner() messages.Owner { return s.owner }

// Publish enqueues value as the next envelope of key. Delivery is fire and
// forget: no acknowledgement is returned.
func (s *Sender) Publish(key messages.Key, value any) error {
	kind, err := s.gw.reg.LookupKey(key)
	if err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	if kind.Owner != s.owner {
		return fmt.Errorf("publish %s as %s: %w", key, s.owner, messages.ErrOwnershipViolation)
	}
	seq, err := s.gw.reg.NextSeq(key)
	if err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return s.gw.enqueue(kind.Class, Envelope{Owner: kind.Owner, Kind: kind.ID, Value: value, Seq: seq})
}
