// Package events publishes what happened in a conversation to interested consumers.
package events

import (
	"context"
	"time"
)

const TypeTurnCompleted = "turn.completed"

// TurnCompleted is emitted once per handled user turn.
type TurnCompleted struct {
	SessionID  string        `json:"session_id"`
	Turn       uint64        `json:"turn"`
	Decision   string        `json:"decision"`
	Capability string        `json:"capability,omitempty"`
	Phase      string        `json:"phase"`
	Failure    string        `json:"failure,omitempty"` // error class that shaped the reply
	Stale      bool          `json:"stale,omitempty"`
	Duration   time.Duration `json:"duration_ns"`
	At         time.Time     `json:"at"`
}

type Publisher interface {
	PublishTurn(ctx context.Context, event TurnCompleted) error
	Close() error
}

// Nop drops every event.
type Nop struct{}

func (Nop) PublishTurn(context.Context, TurnCompleted) error { return nil }
func (Nop) Close() error                                    { return nil }
