package pubsub

import (
	"context"
	"encoding/json"
)

// Topics published by the engine layers.
const (
	// TopicSyncStatus carries engine state transitions and sync progress.
	TopicSyncStatus = "sync_status"
	// TopicGraph carries graph summary updates after each completed sync.
	TopicGraph = "graph"
)

// Event represents a pub/sub event
type Event struct {
	Topic   string          `json:"topic"`   // Subscription topic (e.g., "sync_status", "graph")
	Type    string          `json:"type"`    // Event type (e.g., "started", "finished", "updated")
	Data    json.RawMessage `json:"data"`    // Event payload
	Version int             `json:"version"` // Version number for ordering
}

// Subscription represents a client subscription to a topic
type Subscription interface {
	// Topic returns the subscription topic
	Topic() string

	// Events returns a channel for receiving events
	Events() <-chan Event

	// Close closes the subscription
	Close() error
}

// Publisher manages pub/sub subscriptions and event publishing
type Publisher interface {
	// Subscribe creates a new subscription to a topic
	// Context cancellation will close the subscription
	Subscribe(ctx context.Context, topic string) (Subscription, error)

	// Publish sends an event to all subscribers of a topic
	Publish(topic string, eventType string, data interface{}) error

	// Close shuts down the publisher and all subscriptions
	Close() error
}

// SyncStatus is the payload on TopicSyncStatus.
type SyncStatus struct {
	State   string `json:"state"`   // idle, scanning, diffing, committing
	RunID   string `json:"runId"`   // Current or last sync run
	Message string `json:"message"` // Human-readable status message
}

// GraphSummary is the payload on TopicGraph after a sync changes the graph.
type GraphSummary struct {
	Files    int  `json:"files"`
	Added    int  `json:"added"`
	Modified int  `json:"modified"`
	Removed  int  `json:"removed"`
	Failed   int  `json:"failed"`
	Changed  bool `json:"changed"`
}
