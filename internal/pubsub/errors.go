package pubsub

import "errors"

// ErrClosed is returned when operating on a closed PubSub
var ErrClosed = errors.New("pubsub: closed")
