// Package bus moves UI updates and session events between a generation
// session and whatever frontend renders its chat tab. The in-memory bus
// serves single-process use; the NATS bus lets a separate UI process listen.
package bus

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrClosed is returned when operating on a closed bus or subscription.
var ErrClosed = errors.New("bus or subscription closed")

// MessageBus carries tab-scoped messages. Implementations must be safe for
// concurrent use.
type MessageBus interface {
	// Publish sends data to every subscriber of subject. It does not wait
	// for delivery.
	Publish(ctx context.Context, subject string, data []byte) error

	// Subscribe registers handler for subject. "*" matches one token and
	// ">" matches the rest of the subject.
	Subscribe(ctx context.Context, subject string, handler MessageHandler) (Subscription, error)

	// Close shuts down the bus and all subscriptions.
	Close() error
}

// MessageHandler processes one delivered message.
type MessageHandler func(msg *Message)

// Message is one delivery.
type Message struct {
	Subject string
	Data    []byte
}

// Subscription represents an active subscription that can be cancelled.
type Subscription interface {
	Unsubscribe() error
	Subject() string
}

// Config holds configuration for creating a MessageBus.
type Config struct {
	// URL is the NATS server URL. Ignored by the in-memory bus.
	URL string

	// Name is a client identifier for monitoring.
	Name string

	// Timeout bounds connection setup.
	Timeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		URL:     "nats://localhost:4222",
		Name:    "gensession",
		Timeout: 10 * time.Second,
	}
}

// Subject joins tokens into a dotted subject, dropping empty tokens and
// replacing characters NATS reserves.
func Subject(tokens ...string) string {
	parts := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		tok = strings.Map(func(r rune) rune {
			switch r {
			case '.', '*', '>', ' ', '\t', '\n':
				return '_'
			}
			return r
		}, tok)
		if tok != "" {
			parts = append(parts, tok)
		}
	}
	return strings.Join(parts, ".")
}

// matchSubject checks if a subject matches a pattern with wildcards.
// Supports "*" for single token and ">" for multiple tokens.
func matchSubject(pattern, subject string) bool {
	if pattern == subject {
		return true
	}

	patternParts := strings.Split(pattern, ".")
	subjectParts := strings.Split(subject, ".")

	pi, si := 0, 0
	for pi < len(patternParts) && si < len(subjectParts) {
		switch patternParts[pi] {
		case "*":
			pi++
			si++
		case ">":
			return true
		default:
			if patternParts[pi] != subjectParts[si] {
				return false
			}
			pi++
			si++
		}
	}

	return pi == len(patternParts) && si == len(subjectParts)
}
