// Package pubsub provides an interface-driven pub/sub system for realtime messaging.
// The default in-memory implementation matches the single-owner process model;
// the interface allows a Redis backend for multi-instance deployments.
package pubsub

import (
	"context"
	"encoding/json"
)

// Message represents a pub/sub message with typed payload
type Message struct {
	Topic   string          `json:"topic"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Handler is a callback for processing messages
type Handler func(ctx context.Context, msg *Message)

// Subscription represents an active subscription that can be closed
type Subscription interface {
	// Unsubscribe removes the subscription
	Unsubscribe() error
}

// PubSub defines the interface for publish/subscribe operations.
// All implementations must be safe for concurrent use.
type PubSub interface {
	// Publish sends a message to all subscribers of the given topic.
	// Returns error if the message could not be published.
	Publish(ctx context.Context, topic string, msg *Message) error

	// Subscribe registers a handler for messages on the given topic.
	// The handler is called for each message published to the topic.
	// Returns a Subscription that can be used to unsubscribe.
	Subscribe(ctx context.Context, topic string, handler Handler) (Subscription, error)

	// Close shuts down the pub/sub system and releases resources.
	Close() error
}

// TopicBuilder helps construct consistent topic names
type TopicBuilder struct{}

// Room returns the topic for room-wide events
func (t TopicBuilder) Room(roomID string) string {
	return "room:" + roomID
}

// RoomUser returns the topic for one participant's server-pushed messages.
// Participant identity is the (roomId, userId) pair; a userId alone is not
// unique across rooms.
func (t TopicBuilder) RoomUser(roomID, userID string) string {
	return "room:" + roomID + ":user:" + userID
}

// Topics is a helper for building topic names
var Topics = TopicBuilder{}
