// Package mqttsink republishes analyzer status/SourceInfo snapshots
// onto an MQTT broker, for embedders that want a fire-and-forget
// status feed alongside their primary client protocol.
//
// Grounded on mqtt_publisher.go's MQTTPublisher: paho.mqtt.golang
// client with auto-reconnect, a background ticker publishing a JSON
// payload, and a client ID randomized with crypto/rand so multiple
// instances never collide on a shared broker.
package mqttsink

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/cwsl/sdrcore/message"
)

var log_ = log.New(os.Stderr, "mqttsink: ", log.LstdFlags)

// Config configures a Sink's connection and publish cadence.
type Config struct {
	Broker          string
	ClientID        string // empty generates a random one
	Username        string
	Password        string
	Topic           string
	PublishInterval time.Duration
}

// StatusPayload is the JSON document published to Topic on each tick.
type StatusPayload struct {
	Timestamp           int64    `json:"timestamp"`
	Frequency           float64  `json:"frequency_hz"`
	EffectiveSampleRate float64  `json:"effective_sample_rate"`
	MeasuredSampleRate  float64  `json:"measured_sample_rate"`
	Bandwidth           float64  `json:"bandwidth_hz"`
	Antenna             string   `json:"antenna"`
	Antennas            []string `json:"antennas,omitempty"`
}

// Sink owns an MQTT client and a background publisher goroutine that
// publishes the latest SourceInfo snapshot handed to it through Update.
type Sink struct {
	client mqtt.Client
	cfg    Config

	mu     sync.Mutex
	latest message.SourceInfo

	stopOnce sync.Once
	done     chan struct{}
}

func generateClientID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return "sdrcore_" + hex.EncodeToString(b)
}

func (cfg Config) withDefaults() Config {
	if cfg.ClientID == "" {
		cfg.ClientID = generateClientID()
	}
	if cfg.PublishInterval <= 0 {
		cfg.PublishInterval = 30 * time.Second
	}
	return cfg
}

// Connect dials the broker and returns a ready-to-publish Sink.
func Connect(cfg Config) (*Sink, error) {
	cfg = cfg.withDefaults()

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(10 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		log_.Printf("connected to broker %s", cfg.Broker)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log_.Printf("connection lost: %v", err)
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqttsink: connect: %w", token.Error())
	}

	s := &Sink{client: client, cfg: cfg, done: make(chan struct{})}
	go s.publishLoop()
	return s, nil
}

// Update records the latest SourceInfo snapshot to publish on the next
// tick. Callers typically call this from the loop draining the
// analyzer's outbox whenever a TagSourceInfo envelope arrives.
func (s *Sink) Update(info message.SourceInfo) {
	s.mu.Lock()
	s.latest = info
	s.mu.Unlock()
}

func (s *Sink) publishLoop() {
	ticker := time.NewTicker(s.cfg.PublishInterval)
	defer ticker.Stop()

	s.publishOnce()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.publishOnce()
		}
	}
}

func (s *Sink) publishOnce() {
	s.mu.Lock()
	info := s.latest
	s.mu.Unlock()

	payload := StatusPayload{
		Timestamp:           time.Now().Unix(),
		Frequency:           info.Frequency,
		EffectiveSampleRate: info.EffectiveSampleRate,
		MeasuredSampleRate:  info.MeasuredSampleRate,
		Bandwidth:           info.Bandwidth,
		Antenna:             info.Antenna,
		Antennas:            info.Antennas,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		log_.Printf("marshal status payload: %v", err)
		return
	}
	token := s.client.Publish(s.cfg.Topic, 0, false, data)
	if !token.WaitTimeout(5*time.Second) || token.Error() != nil {
		log_.Printf("publish to %s failed: %v", s.cfg.Topic, token.Error())
	}
}

// Close stops the publisher loop and disconnects from the broker.
func (s *Sink) Close() {
	s.stopOnce.Do(func() {
		close(s.done)
		s.client.Disconnect(250)
	})
}
