package mqtt

import "errors"

// Sentinel errors.
var (
	ErrNoBroker  = errors.New("mqtt broker not configured")
	ErrConnect   = errors.New("mqtt connect failed")
	ErrSubscribe = errors.New("mqtt subscribe failed")
)
