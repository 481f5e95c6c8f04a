// Package mqtt receives recording uploads from field devices over MQTT and
// hands them to the ingestion queue.
package mqtt

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/okian/motionscore/internal/adapters/mq/queue"
	"github.com/okian/motionscore/internal/domain/ingest"
	"github.com/okian/motionscore/internal/domain/model"
	"github.com/okian/motionscore/pkg/logger"
	"github.com/okian/motionscore/pkg/metrics"
)

const (
	connectTimeout    = 10 * time.Second
	disconnectQuiesce = 250 // milliseconds
)

// Payload is the JSON body of a recording message.
type Payload struct {
	MotionName    string        `json:"motionName"`
	ScoreCategory string        `json:"scoreCategory"`
	SensorData    []model.Frame `json:"sensorData"`
	RecordingKey  string        `json:"recordingKey,omitempty"`
}

// Enqueuer accepts jobs without blocking.
type Enqueuer interface {
	Enqueue(ctx context.Context, j queue.Job) bool
}

// Subscriber consumes one topic filter.
type Subscriber struct {
	client paho.Client
	topic  string
	qos    byte
	queue  Enqueuer
	log    logger.Logger

	mu  sync.RWMutex
	ctx context.Context
}

// New creates a subscriber. It does not connect until Start.
func New(q Enqueuer, opts ...Option) (*Subscriber, error) {
	cfg := settings{
		clientID: "motionscore",
		topic:    "motionscore/recordings/#",
		qos:      1,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.broker == "" {
		return nil, ErrNoBroker
	}

	s := &Subscriber{
		topic: cfg.topic,
		qos:   cfg.qos,
		queue: q,
		log:   cfg.log,
		ctx:   context.Background(),
	}
	if s.log == nil {
		s.log = logger.Named("mqtt")
	}

	clientOpts := paho.NewClientOptions().
		AddBroker(cfg.broker).
		SetClientID(cfg.clientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectTimeout(connectTimeout).
		SetOnConnectHandler(s.onConnect).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			s.log.Warn(s.context(), "mqtt connection lost", logger.Error(err))
		})
	if cfg.username != "" {
		clientOpts.SetUsername(cfg.username).SetPassword(cfg.password)
	}
	s.client = paho.NewClient(clientOpts)
	return s, nil
}

// Start connects to the broker. The subscription is (re)established on every
// connect.
func (s *Subscriber) Start(ctx context.Context) error {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	token := s.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return fmt.Errorf("%w: timed out after %s", ErrConnect, connectTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrConnect, err)
	}
	return nil
}

// Stop unsubscribes and disconnects.
func (s *Subscriber) Stop() {
	if !s.client.IsConnected() {
		return
	}
	if t := s.client.Unsubscribe(s.topic); t.WaitTimeout(time.Second) && t.Error() != nil {
		s.log.Warn(s.context(), "mqtt unsubscribe failed", logger.Error(t.Error()))
	}
	s.client.Disconnect(disconnectQuiesce)
}

func (s *Subscriber) onConnect(c paho.Client) {
	ctx := s.context()
	token := c.Subscribe(s.topic, s.qos, s.HandleMessage)
	token.Wait()
	if err := token.Error(); err != nil {
		s.log.Error(ctx, "mqtt subscribe failed", logger.String("topic", s.topic), logger.Error(fmt.Errorf("%w: %w", ErrSubscribe, err)))
		return
	}
	s.log.Info(ctx, "mqtt subscribed", logger.String("topic", s.topic), logger.Int("qos", int(s.qos)))
}

func (s *Subscriber) context() context.Context {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ctx
}

// HandleMessage decodes one message and queues it for ingestion. Every
// delivery is queued, redeliveries included: the ingestion gateway owns the
// only RecordingKey window and forgets a key whose ingest fails, so a
// message rejected for an unknown motion type is stored once that type
// exists and it is sent again.
func (s *Subscriber) HandleMessage(_ paho.Client, msg paho.Message) {
	ctx := s.context()
	metrics.RecordMQTTMessage("received")

	var p Payload
	if err := json.Unmarshal(msg.Payload(), &p); err != nil {
		metrics.RecordMQTTMessage("malformed")
		s.log.Warn(ctx, "mqtt payload rejected", logger.String("topic", msg.Topic()), logger.Error(err))
		return
	}
	if p.MotionName == "" {
		p.MotionName = motionFromTopic(msg.Topic())
	}

	key := p.RecordingKey
	if key == "" {
		key = contentKey(msg.Payload())
	}
	job := queue.Job{
		MessageID: fmt.Sprintf("%s#%d", msg.Topic(), msg.MessageID()),
		Request: ingest.Request{
			MotionName:   p.MotionName,
			Category:     p.ScoreCategory,
			Frames:       p.SensorData,
			RecordingKey: key,
		},
	}
	if !s.queue.Enqueue(ctx, job) {
		metrics.RecordMQTTMessage("dropped")
		s.log.Warn(ctx, "ingest queue full, message dropped",
			logger.String("topic", msg.Topic()),
			logger.String("key", key),
			logger.Bool("dup_flag", msg.Duplicate()),
		)
		return
	}
	metrics.RecordMQTTMessage("queued")
}

// motionFromTopic returns the last topic level, e.g. "squat" for
// "motionscore/recordings/squat".
func motionFromTopic(topic string) string {
	if i := strings.LastIndexByte(topic, '/'); i >= 0 {
		return topic[i+1:]
	}
	return topic
}

func contentKey(payload []byte) string {
	sum := sha256.Sum256(payload)
	return "sha256:" + hex.EncodeToString(sum[:])
}
