package transport

import (
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"opsdash/event"
	"opsdash/internal/ratelimit"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// maxPayloadBytes caps a single broker message. Event frames are small;
// anything larger is junk and is dropped before decoding.
const maxPayloadBytes = 64 * 1024

// MQTTOptions configure an MQTTSource.
type MQTTOptions struct {
	Broker   string
	Port     int
	Topic    string
	ClientID string

	Logf    func(format string, args ...interface{})
	OnEvent func(event.Event)
}

// MQTTSource subscribes to a broker topic carrying dashboard event frames.
// Unlike the websocket client it does not run its own retry machinery:
// reconnects are delegated to the paho client with a 1-minute max interval,
// and the subscription is re-established in the onConnect handler.
type MQTTSource struct {
	opts    MQTTOptions
	client  mqtt.Client
	logf    func(format string, args ...interface{})
	dropLog ratelimit.Counter

	stopOnce sync.Once

	received  atomic.Uint64
	lastEvent atomic.Int64 // unix nanos of the last decoded message
}

// NewMQTTSource creates a source for the given broker and topic.
func NewMQTTSource(opts MQTTOptions) *MQTTSource {
	if opts.ClientID == "" {
		opts.ClientID = fmt.Sprintf("opsdash-%d", time.Now().Unix())
	}
	logf := opts.Logf
	if logf == nil {
		logf = log.Printf
	}
	return &MQTTSource{
		opts:    opts,
		logf:    logf,
		dropLog: ratelimit.NewCounter(30 * time.Second),
	}
}

// Connect establishes the broker session and subscribes to the event topic.
func (s *MQTTSource) Connect() error {
	opts := mqtt.NewClientOptions()
	brokerURL := fmt.Sprintf("tcp://%s:%d", s.opts.Broker, s.opts.Port)
	opts.AddBroker(brokerURL)
	opts.SetClientID(s.opts.ClientID)

	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetConnectTimeout(10 * time.Second)

	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(1 * time.Minute)

	opts.SetOnConnectHandler(s.onConnect)
	opts.SetConnectionLostHandler(s.onConnectionLost)

	s.client = mqtt.NewClient(opts)

	s.logf("MQTT: connecting to broker at %s", brokerURL)
	token := s.client.Connect()
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("mqtt connect %s: %w", brokerURL, token.Error())
	}
	return nil
}

// onConnect runs on every (re)connect, so the subscription survives broker restarts.
func (s *MQTTSource) onConnect(client mqtt.Client) {
	s.logf("MQTT: connected, subscribing to %s", s.opts.Topic)
	token := client.Subscribe(s.opts.Topic, 0, s.messageHandler)
	if token.Wait() && token.Error() != nil {
		s.logf("MQTT: subscribe failed: %v", token.Error())
	}
}

func (s *MQTTSource) onConnectionLost(client mqtt.Client, err error) {
	s.logf("MQTT: connection lost: %v", err)
}

// messageHandler decodes one broker message into an event. Paho delivers
// handler calls for a subscription in order, so events reach OnEvent in
// publish order.
func (s *MQTTSource) messageHandler(client mqtt.Client, msg mqtt.Message) {
	payload := msg.Payload()
	if len(payload) > maxPayloadBytes {
		s.discard("oversize message (%d bytes)", len(payload))
		return
	}

	now := time.Now()
	ev, err := event.Decode(payload, event.SourcePush, now)
	if err != nil {
		s.discard("message: %v", err)
		return
	}

	s.received.Add(1)
	s.lastEvent.Store(now.UnixNano())
	if s.opts.OnEvent != nil {
		s.opts.OnEvent(ev)
	}
}

func (s *MQTTSource) discard(format string, args ...interface{}) {
	if total, ok := s.dropLog.Inc(); ok {
		s.logf("MQTT: discarded "+format+" (%d discarded total)", append(args, total)...)
	}
}

// Connected reports whether the broker session is up.
func (s *MQTTSource) Connected() bool {
	return s.client != nil && s.client.IsConnected()
}

// Counts returns how many messages were decoded and how many were dropped.
func (s *MQTTSource) Counts() (received, discarded uint64) {
	return s.received.Load(), s.dropLog.Total()
}

// LastEventAt returns when the last message was decoded, or the zero time.
func (s *MQTTSource) LastEventAt() time.Time {
	nanos := s.lastEvent.Load()
	if nanos == 0 {
		return time.Time{}
	}
	return time.Unix(0, nanos)
}

// Stop unsubscribes and tears down the broker session.
func (s *MQTTSource) Stop() {
	s.stopOnce.Do(func() {
		if s.client != nil && s.client.IsConnected() {
			s.client.Unsubscribe(s.opts.Topic)
			s.client.Disconnect(250)
		}
		s.logf("MQTT: source stopped")
	})
}
