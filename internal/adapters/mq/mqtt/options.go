package mqtt

import "github.com/okian/motionscore/pkg/logger"

type settings struct {
	broker   string
	clientID string
	topic    string
	qos      byte
	username string
	password string
	log      logger.Logger
}

// Option configures a Subscriber.
type Option func(*settings)

// WithBroker sets the broker URL, e.g. tcp://localhost:1883.
func WithBroker(url string) Option {
	return func(s *settings) { s.broker = url }
}

// WithClientID sets the MQTT client identifier.
func WithClientID(id string) Option {
	return func(s *settings) {
		if id != "" {
			s.clientID = id
		}
	}
}

// WithTopic sets the topic filter.
func WithTopic(topic string) Option {
	return func(s *settings) {
		if topic != "" {
			s.topic = topic
		}
	}
}

// WithQoS sets the subscription QoS (0-2).
func WithQoS(qos int) Option {
	return func(s *settings) {
		if qos >= 0 && qos <= 2 {
			s.qos = byte(qos)
		}
	}
}

// WithCredentials sets username and password.
func WithCredentials(username, password string) Option {
	return func(s *settings) {
		s.username = username
		s.password = password
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(s *settings) { s.log = l }
}
