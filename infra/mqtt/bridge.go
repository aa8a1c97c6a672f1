package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/ewolf/brain/core/logger"
	"github.com/ewolf/brain/core/messages"
	"github.com/ewolf/brain/core/monitoring"
	infralog "github.com/ewolf/brain/infra/logger"
	"github.com/ewolf/brain/internal/eventbus"
)

// SubscriberID is the bus endpoint name of the bridge.
const SubscriberID = "mqtt-bridge"

// Command is the JSON body of an actuator command.
type Command struct {
	Value     float64 `json:"value"`
	Seq       uint64  `json:"seq"`
	Timestamp int64   `json:"timestamp"`
}

// State is the JSON body of a driving mode broadcast.
type State struct {
	Mode      string `json:"mode"`
	Timestamp int64  `json:"timestamp"`
}

// Bridge moves collaborator traffic between MQTT and the bus. Perception
// and mode requests flow in; actuator commands and the driving mode flow
// out.
type Bridge struct {
	cfg        Config
	cli        pahoClient
	log        logger.Logger
	perception *eventbus.Sender
	dashboard  *eventbus.Sender
	sub        *eventbus.Subscriber
	backoff    time.Duration
}

// NewBridge subscribes to the outbound kinds and connects to the broker.
func NewBridge(gw *eventbus.Gateway, cfg Config) (*Bridge, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	b := &Bridge{
		cfg:        cfg,
		log:        infralog.New("mqtt_bridge"),
		perception: eventbus.NewSender(gw, messages.OwnerPerception),
		dashboard:  eventbus.NewSender(gw, messages.OwnerDashboard),
		sub:        eventbus.NewSubscriber(gw, SubscriberID),
		backoff:    time.Duration(cfg.BackoffMS) * time.Millisecond,
	}
	subs := []struct {
		key  messages.Key
		mode eventbus.Mode
	}{
		{messages.SpeedMotor, eventbus.FIFO},
		{messages.SteerMotor, eventbus.FIFO},
		{messages.StateChange, eventbus.Latest},
	}
	for _, s := range subs {
		if err := b.sub.Subscribe(s.key, s.mode); err != nil {
			return nil, fmt.Errorf("mqtt bridge: %w", err)
		}
	}

	cli, err := connect(cfg, b.onConnect, func(_ paho.Client, err error) {
		b.log.Errorf("connection lost: %v", err)
	})
	if err != nil {
		_ = b.sub.Close()
		return nil, err
	}
	b.cli = cli
	return b, nil
}

// onConnect (re)subscribes the inbound topics.
func (b *Bridge) onConnect(c paho.Client) {
	b.log.Infof("MQTT connected")
	inbound := map[string]paho.MessageHandler{
		b.cfg.PerceptionTopic: b.onPerception,
		b.cfg.ModeTopic:       b.onMode,
	}
	for topic, h := range inbound {
		qos := b.cfg.qos("perception")
		if topic == b.cfg.ModeTopic {
			qos = b.cfg.qos("mode")
		}
		if token := c.Subscribe(topic, qos, h); token.Wait() && token.Error() != nil {
			b.log.Errorf("subscribe %s: %v", topic, token.Error())
		}
	}
}

func (b *Bridge) onPerception(_ paho.Client, msg paho.Message) {
	var payload map[string]any
	if err := json.Unmarshal(msg.Payload(), &payload); err != nil {
		b.log.Warnf("drop perception message: %v", err)
		return
	}
	if err := b.perception.Publish(messages.StanleyControl, payload); err != nil {
		b.log.Errorf("forward perception: %v", err)
	}
}

func (b *Bridge) onMode(_ paho.Client, msg paho.Message) {
	name := strings.TrimSpace(string(msg.Payload()))
	if name == "" {
		b.log.Warnf("drop empty mode request")
		return
	}
	if err := b.dashboard.Publish(messages.ModeRequest, name); err != nil {
		b.log.Errorf("forward mode request: %v", err)
	}
}

// Run forwards outbound envelopes to MQTT until ctx is cancelled, then
// closes the endpoint and disconnects.
func (b *Bridge) Run(ctx context.Context) error {
	defer b.Disconnect()
	defer func() {
		if err := b.sub.Close(); err != nil {
			b.log.Warnf("close endpoint: %v", err)
		}
	}()
	idle := time.Duration(b.cfg.PollMS) * time.Millisecond
	timer := time.NewTimer(idle)
	defer timer.Stop()
	for {
		if ctx.Err() != nil {
			return nil
		}
		env, ok, err := b.sub.ReceiveEnvelope()
		if err != nil {
			return err
		}
		if ok {
			b.forward(env)
			continue
		}
		timer.Reset(idle)
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}
	}
}

func (b *Bridge) forward(env eventbus.Envelope) {
	var (
		topic    string
		qos      byte
		retained bool
		body     any
	)
	now := time.Now().UnixMilli()
	switch env.Key() {
	case messages.SpeedMotor, messages.SteerMotor:
		cmd, ok := env.Value.(messages.ActuatorCommand)
		if !ok {
			b.log.Warnf("unexpected %s payload %T", env.Key(), env.Value)
			return
		}
		suffix := "speed"
		if env.Key() == messages.SteerMotor {
			suffix = "steer"
		}
		topic = b.cfg.CommandPrefix + "/" + suffix
		qos = b.cfg.qos("command")
		body = Command{Value: cmd.Value, Seq: env.Seq, Timestamp: now}
	case messages.StateChange:
		mode, ok := env.Value.(string)
		if !ok {
			b.log.Warnf("unexpected %s payload %T", env.Key(), env.Value)
			return
		}
		topic, qos, retained = b.cfg.StateTopic, b.cfg.qos("state"), true
		body = State{Mode: mode, Timestamp: now}
	default:
		return
	}
	payload, err := json.Marshal(body)
	if err != nil {
		b.log.Errorf("encode %s: %v", env.Key(), err)
		return
	}
	if err := b.publish(topic, qos, retained, payload); err != nil {
		monitoring.CaptureException(err, map[string]string{"module": "mqtt", "topic": topic})
	}
}

// publish retries with exponential backoff.
func (b *Bridge) publish(topic string, qos byte, retained bool, payload []byte) error {
	var publishErr error
	for attempt := 0; attempt <= b.cfg.MaxRetries; attempt++ {
		token := b.cli.Publish(topic, qos, retained, payload)
		token.Wait()
		publishErr = token.Error()
		if publishErr == nil {
			return nil
		}
		b.log.Errorf("publish %s attempt %d failed: %v", topic, attempt+1, publishErr)
		if attempt < b.cfg.MaxRetries {
			time.Sleep(b.backoff * time.Duration(1<<attempt))
		}
	}
	return fmt.Errorf("publish %s: %w", topic, publishErr)
}

// Disconnect gracefully closes the MQTT connection.
func (b *Bridge) Disconnect() {
	if b.cli != nil && b.cli.IsConnected() {
		b.cli.Disconnect(250)
	}
}
