package messages

import "fmt"

// Owner identifies the component allowed to publish a message kind.
type Owner string

const (
	OwnerGateway       Owner = "Gateway"
	OwnerStateMachine  Owner = "StateMachine"
	OwnerDashboard     Owner = "Dashboard"
	OwnerPerception    Owner = "Perception"
	OwnerControl       Owner = "Control"
	OwnerSerialHandler Owner = "SerialHandler"
)

// KindID distinguishes message kinds within an owner.
type KindID string

// Key is the globally unique (owner, kind) pair.
type Key struct {
	Owner Owner
	ID    KindID
}

func (k Key) String() string { return fmt.Sprintf("%s/%s", k.Owner, k.ID) }

// Class is the priority class of the ingress line a kind travels on.
type Class int

const (
	ClassCritical Class = iota
	ClassWarning
	ClassGeneral
	ClassConfig
	ClassLog
)

// PayloadClasses lists the payload lines in draining order. Config is
// handled separately by the gateway.
var PayloadClasses = []Class{ClassCritical, ClassWarning, ClassGeneral, ClassLog}

func (c Class) String() string {
	switch c {
	case ClassCritical:
		return "Critical"
	case ClassWarning:
		return "Warning"
	case ClassGeneral:
		return "General"
	case ClassConfig:
		return "Config"
	case ClassLog:
		return "Log"
	default:
		return fmt.Sprintf("Class(%d)", int(c))
	}
}

// Kind is the static descriptor of a message kind. Payload documents the
// expected value shape; the bus does not enforce it.
type Kind struct {
	Owner   Owner
	ID      KindID
	Class   Class
	Payload string
}

// Key returns the routing key of the kind.
func (k Kind) Key() Key { return Key{Owner: k.Owner, ID: k.ID} }

// Well-known kinds of the vehicle platform.
var (
	Subscription          = Key{OwnerGateway, "Subscription"}
	BusStatsKind          = Key{OwnerGateway, "BusStats"}
	ModeRequest           = Key{OwnerDashboard, "ModeRequest"}
	StateChange           = Key{OwnerStateMachine, "StateChange"}
	StanleyControl        = Key{OwnerPerception, "StanleyControl"}
	SpeedMotor            = Key{OwnerControl, "SpeedMotor"}
	SteerMotor            = Key{OwnerControl, "SteerMotor"}
	ControlStatusKind     = Key{OwnerControl, "ControlStatus"}
	SerialConnectionState = Key{OwnerSerialHandler, "SerialConnectionState"}
)

var catalogue = []Kind{
	{Owner: OwnerGateway, ID: "Subscription", Class: ClassConfig, Payload: "eventbus.ControlRequest"},
	{Owner: OwnerGateway, ID: "BusStats", Class: ClassLog, Payload: "messages.BusStats"},
	{Owner: OwnerDashboard, ID: "ModeRequest", Class: ClassConfig, Payload: "string: mode name"},
	{Owner: OwnerStateMachine, ID: "StateChange", Class: ClassCritical, Payload: "string: mode name"},
	{Owner: OwnerPerception, ID: "StanleyControl", Class: ClassGeneral, Payload: "messages.PerceptionError{e_y, theta_e, speed}"},
	{Owner: OwnerControl, ID: "SpeedMotor", Class: ClassGeneral, Payload: "messages.ActuatorCommand: native speed units"},
	{Owner: OwnerControl, ID: "SteerMotor", Class: ClassGeneral, Payload: "messages.ActuatorCommand: degrees"},
	{Owner: OwnerControl, ID: "ControlStatus", Class: ClassLog, Payload: "messages.ControlStatus"},
	{Owner: OwnerSerialHandler, ID: "SerialConnectionState", Class: ClassWarning, Payload: "bool"},
}

// Catalogue builds the frozen registry holding every kind of the platform.
func Catalogue() (*Registry, error) {
	r := NewRegistry()
	for _, k := range catalogue {
		if err := r.Register(k); err != nil {
			return nil, err
		}
	}
	r.Freeze()
	return r, nil
}
