package repository

import (
	"time"

	"github.com/google/uuid"
)

type settings struct {
	now   func() time.Time
	newID func() string
}

func defaultSettings() settings {
	return settings{
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
	}
}

// Option applies a configuration option to a store.
type Option func(*settings)

// WithClock sets the time source used to stamp new rows.
func WithClock(now func() time.Time) Option {
	return func(s *settings) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator sets the generator for ids of new rows.
func WithIDGenerator(gen func() string) Option {
	return func(s *settings) {
		if gen != nil {
			s.newID = gen
		}
	}
}
