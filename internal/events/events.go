// Package events publishes applied volume changes to external subscribers.
package events

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/rbright/volmixer/internal/config"
)

const (
	connectTimeout = 5 * time.Second
	publishTimeout = 5 * time.Second
)

// VolumeEvent describes one successful per-process volume change.
type VolumeEvent struct {
	Pin         string  `json:"pin"`
	Application string  `json:"application"`
	PID         int     `json:"pid"`
	Volume      float32 `json:"volume"`
}

// Publisher delivers events without blocking the caller.
type Publisher interface {
	Publish(VolumeEvent)
	Close()
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(VolumeEvent) {}
func (Nop) Close()              {}

// mqttClient is the subset of paho.Client used for publishing.
type mqttClient interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Disconnect(quiesce uint)
}

// MQTTPublisher sends events as JSON at QoS 0, not retained.
type MQTTPublisher struct {
	client mqttClient
	topic  string
	logger *slog.Logger

	mu       sync.Mutex
	closed   bool
	inflight sync.WaitGroup
}

// DialMQTT connects to cfg.Broker and returns a publisher for cfg.Topic.
func DialMQTT(cfg config.MQTTConfig, logger *slog.Logger) (*MQTTPublisher, error) {
	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetKeepAlive(30 * time.Second).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectTimeout(connectTimeout)

	client := paho.NewClient(opts)
	tok := client.Connect()
	if !tok.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("mqtt connect to %s: timeout after %s", cfg.Broker, connectTimeout)
	}
	if err := tok.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect to %s: %w", cfg.Broker, err)
	}
	return NewMQTTPublisher(client, cfg.Topic, logger), nil
}

// NewMQTTPublisher wraps an already-connected client.
func NewMQTTPublisher(client mqttClient, topic string, logger *slog.Logger) *MQTTPublisher {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &MQTTPublisher{client: client, topic: topic, logger: logger}
}

// Publish hands the event to the client and returns immediately. Failures are
// logged only.
func (p *MQTTPublisher) Publish(event VolumeEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		p.logger.Warn("encode volume event failed", "error", err)
		return
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.logger.Debug("mqtt publisher closed; dropping event", "pin", event.Pin)
		return
	}
	p.inflight.Add(1)
	p.mu.Unlock()

	tok := p.client.Publish(p.topic, 0, false, payload)
	go func() {
		defer p.inflight.Done()
		if !tok.WaitTimeout(publishTimeout) {
			p.logger.Warn("mqtt publish timed out", "topic", p.topic, "pin", event.Pin)
			return
		}
		if err := tok.Error(); err != nil {
			p.logger.Warn("mqtt publish failed", "topic", p.topic, "pin", event.Pin, "error", err)
		}
	}()
}

// Close waits for pending publishes and disconnects. Later publishes are
// dropped.
func (p *MQTTPublisher) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	p.inflight.Wait()
	p.client.Disconnect(250)
}
