// Package messenger notifies the chat UI about a session: proposed file sets,
// answers and progress placeholders. Notifications are one-way.
package messenger

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/odvcencio/gensession/pkg/bus"
	"github.com/odvcencio/gensession/pkg/logging"
	"github.com/odvcencio/gensession/pkg/telemetry"
)

// Messenger is the UI notification sink used by a session.
type Messenger interface {
	UpdateFileComponent(ctx context.Context, tabID string, files []FileEntry, deleted []DeletedEntry, messageID string, disableActions bool) error
	SendAnswer(ctx context.Context, tabID string, answer Answer) error
	SendUpdatePlaceholder(ctx context.Context, tabID string, text string) error
}

// Kind is the notification type, also the last subject token.
type Kind string

const (
	KindFiles       Kind = "files"
	KindAnswer      Kind = "answer"
	KindPlaceholder Kind = "placeholder"
	KindEvent       Kind = "event"
)

// FileEntry is one proposed file as rendered in the file tree.
type FileEntry struct {
	RelativePath    string `json:"relativePath"`
	WorkspaceFolder string `json:"workspaceFolder"`
	Rejected        bool   `json:"rejected"`
	ChangeApplied   bool   `json:"changeApplied"`
}

// DeletedEntry is one proposed deletion.
type DeletedEntry struct {
	RelativePath    string `json:"relativePath"`
	WorkspaceFolder string `json:"workspaceFolder"`
	Rejected        bool   `json:"rejected"`
}

// AnswerType classifies a chat answer.
type AnswerType string

const (
	AnswerText   AnswerType = "answer"
	AnswerSystem AnswerType = "system-prompt"
	AnswerError  AnswerType = "error"
)

// Answer is a chat message shown in the tab.
type Answer struct {
	Type      AnswerType `json:"type"`
	Message   string     `json:"message"`
	MessageID string     `json:"messageId,omitempty"`
	CanRetry  bool       `json:"canRetry,omitempty"`
}

// FileUpdate is the payload of a KindFiles notification.
type FileUpdate struct {
	Files          []FileEntry    `json:"filePaths"`
	Deleted        []DeletedEntry `json:"deletedFiles"`
	DisableActions bool           `json:"disableFileActions"`
}

// Notification is the JSON document published on the bus.
type Notification struct {
	ID        string          `json:"id"`
	Kind      Kind            `json:"kind"`
	TabID     string          `json:"tabId"`
	MessageID string          `json:"messageId,omitempty"`
	SentAt    time.Time       `json:"sentAt"`
	Payload   json.RawMessage `json:"payload"`
}

// Decode unmarshals the payload into v.
func (n Notification) Decode(v any) error {
	return json.Unmarshal(n.Payload, v)
}

// Subject returns the bus subject for a tab's notifications of one kind.
func Subject(prefix, tabID string, kind Kind) string {
	return bus.Subject(prefix, tabID, string(kind))
}

// BusMessenger publishes notifications as JSON on a message bus.
type BusMessenger struct {
	bus    bus.MessageBus
	prefix string
	logger *logging.Logger
	now    func() time.Time
}

var _ Messenger = (*BusMessenger)(nil)

// NewBusMessenger publishes under prefix.<tab>.<kind>.
func NewBusMessenger(b bus.MessageBus, prefix string, logger *logging.Logger) *BusMessenger {
	if prefix == "" {
		prefix = "gensession"
	}
	return &BusMessenger{bus: b, prefix: prefix, logger: logger, now: time.Now}
}

func (m *BusMessenger) UpdateFileComponent(ctx context.Context, tabID string, files []FileEntry, deleted []DeletedEntry, messageID string, disableActions bool) error {
	if files == nil {
		files = []FileEntry{}
	}
	if deleted == nil {
		deleted = []DeletedEntry{}
	}
	return m.publish(ctx, tabID, KindFiles, messageID, FileUpdate{
		Files:          files,
		Deleted:        deleted,
		DisableActions: disableActions,
	})
}

func (m *BusMessenger) SendAnswer(ctx context.Context, tabID string, answer Answer) error {
	return m.publish(ctx, tabID, KindAnswer, answer.MessageID, answer)
}

func (m *BusMessenger) SendUpdatePlaceholder(ctx context.Context, tabID string, text string) error {
	return m.publish(ctx, tabID, KindPlaceholder, "", map[string]string{"text": text})
}

// ForwardEvents republishes hub events for tabID until ctx is done or the hub
// closes.
func (m *BusMessenger) ForwardEvents(ctx context.Context, hub *telemetry.Hub, tabID string) {
	if hub == nil {
		return
	}
	events, unsubscribe := hub.Subscribe()
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.TabID != "" && ev.TabID != tabID {
				continue
			}
			if err := m.publish(ctx, tabID, KindEvent, "", ev); err != nil {
				m.logger.Warn(logging.CategorySession, "forward_failed", "failed to forward session event", map[string]any{
					"event": string(ev.Type),
					"error": err.Error(),
				})
			}
		}
	}
}

func (m *BusMessenger) publish(ctx context.Context, tabID string, kind Kind, messageID string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", kind, err)
	}
	data, err := json.Marshal(Notification{
		ID:        uuid.NewString(),
		Kind:      kind,
		TabID:     tabID,
		MessageID: messageID,
		SentAt:    m.now(),
		Payload:   raw,
	})
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	if err := m.bus.Publish(ctx, Subject(m.prefix, tabID, kind), data); err != nil {
		return fmt.Errorf("publish %s: %w", kind, err)
	}
	return nil
}

// Listen subscribes to every notification for tabID and decodes it for fn.
// Messages that fail to decode are skipped.
func Listen(ctx context.Context, b bus.MessageBus, prefix, tabID string, fn func(Notification)) (bus.Subscription, error) {
	if prefix == "" {
		prefix = "gensession"
	}
	return b.Subscribe(ctx, bus.Subject(prefix, tabID)+".>", func(msg *bus.Message) {
		var n Notification
		if err := json.Unmarshal(msg.Data, &n); err != nil {
			return
		}
		fn(n)
	})
}
