// Package session drives one conversational documentation-generation
// session: it owns the conversation identity and the current state, turns
// user messages into interactions, and reconciles generated files with the
// user's workspace.
package session

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/odvcencio/gensession/pkg/backend"
	gserrors "github.com/odvcencio/gensession/pkg/errors"
	"github.com/odvcencio/gensession/pkg/logging"
	"github.com/odvcencio/gensession/pkg/messenger"
	"github.com/odvcencio/gensession/pkg/reference"
	"github.com/odvcencio/gensession/pkg/storage"
	"github.com/odvcencio/gensession/pkg/telemetry"
	"github.com/odvcencio/gensession/pkg/workspace"
)

const (
	defaultMaxRetries      = 3
	defaultPollInterval    = 2 * time.Second
	defaultMaxPollAttempts = 300
)

// Config wires a Session to its collaborators. Client, Workspace, Staging
// and Collector are required.
type Config struct {
	TabID string

	Client        backend.Client
	Workspace     workspace.FileSystem
	Staging       workspace.FileSystem
	Collector     Collector
	Folder        workspace.Folder
	Collect       workspace.CollectOptions
	Messenger     messenger.Messenger
	References    reference.Log
	Reporter      *telemetry.Reporter
	Hub           *telemetry.Hub
	Logger        *logging.Logger
	Uploads       UploadRecorder
	Conversations ConversationRecorder

	// MaxRetries is the code-generation retry budget. Zero means the default
	// unless NoRetries is set.
	MaxRetries      int
	NoRetries       bool
	PollInterval    time.Duration
	MaxPollAttempts int

	Now   func() time.Time
	NewID func() string
}

// Session is the controller for one chat tab.
type Session struct {
	cfg  Config
	deps stateDeps

	busy atomic.Bool

	mu                 sync.Mutex
	lifecycle          Lifecycle
	conversationID     string
	task               string
	latestMessage      string
	state              State
	retries            int
	uploadHistory      UploadHistory
	reportedDocChanges map[string]string
	accumulator        *telemetry.Accumulator
	authenticating     bool
}

// New builds a session in the NotStarted state.
func New(cfg Config) (*Session, error) {
	switch {
	case cfg.Client == nil:
		return nil, gserrors.New(gserrors.ErrCodeInvalidInput, "session requires a backend client")
	case cfg.Workspace == nil:
		return nil, gserrors.New(gserrors.ErrCodeInvalidInput, "session requires a workspace filesystem")
	case cfg.Staging == nil:
		return nil, gserrors.New(gserrors.ErrCodeInvalidInput, "session requires a staging filesystem")
	case cfg.Collector == nil:
		return nil, gserrors.New(gserrors.ErrCodeInvalidInput, "session requires a workspace collector")
	}

	if cfg.TabID == "" {
		cfg.TabID = GenerateTabID(cfg.Folder.Name)
	}
	if cfg.MaxRetries <= 0 && !cfg.NoRetries {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.NoRetries {
		cfg.MaxRetries = 0
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.MaxPollAttempts <= 0 {
		cfg.MaxPollAttempts = defaultMaxPollAttempts
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewID == nil {
		cfg.NewID = uuid.NewString
	}

	s := &Session{
		cfg: cfg,
		deps: stateDeps{
			tabID:           cfg.TabID,
			client:          cfg.Client,
			collector:       cfg.Collector,
			collectOptions:  cfg.Collect,
			staging:         cfg.Staging,
			folder:          cfg.Folder,
			pollInterval:    cfg.PollInterval,
			maxPollAttempts: cfg.MaxPollAttempts,
			logger:          cfg.Logger,
			hub:             cfg.Hub,
			now:             cfg.Now,
			newID:           cfg.NewID,
		},
		retries:            cfg.MaxRetries,
		uploadHistory:      make(UploadHistory),
		reportedDocChanges: make(map[string]string),
		accumulator:        telemetry.NewAccumulator(cfg.Now()),
	}
	s.state = newNotStartedState(&s.deps)
	cfg.Logger.SetTabID(cfg.TabID)
	return s, nil
}

// TabID identifies the chat tab this session belongs to.
func (s *Session) TabID() string { return s.cfg.TabID }

// Preloader establishes the conversation on first use. Later calls are
// no-ops, and a failed setup is attempted again on the next call.
func (s *Session) Preloader(ctx context.Context, message string) error {
	s.mu.Lock()
	switch s.lifecycle {
	case LifecycleReady:
		s.mu.Unlock()
		return nil
	case LifecycleInitializing:
		s.mu.Unlock()
		return ErrSessionBusy
	}
	s.lifecycle = LifecycleInitializing
	s.mu.Unlock()

	err := s.setupConversation(ctx, message)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.lifecycle = LifecycleFailed
		return err
	}
	s.lifecycle = LifecycleReady
	return nil
}

func (s *Session) setupConversation(ctx context.Context, message string) error {
	s.mu.Lock()
	conversationID := s.conversationID
	s.mu.Unlock()

	if conversationID == "" {
		id, err := s.cfg.Client.CreateConversation(ctx)
		if err != nil {
			s.cfg.Hub.Publish(telemetry.Event{Type: telemetry.EventConversationFailed, TabID: s.cfg.TabID, Data: map[string]any{"error": err.Error()}})
			s.cfg.Logger.Error(logging.CategorySession, "conversation_failed", "failed to create conversation", map[string]any{"error": err.Error()})
			if gserrors.IsCode(err, gserrors.ErrCodeCancelled) {
				return err
			}
			return gserrors.Wrap(err, gserrors.ErrCodeConversationSetup, "create conversation").
				WithRetryable(gserrors.IsRetryable(err)).
				WithUserMessage(gserrors.UserMessage(err, "I couldn't start a conversation with the generation service. Please try again."))
		}
		conversationID = id
	}

	s.mu.Lock()
	if s.conversationID == "" {
		s.conversationID = conversationID
	}
	s.deps.conversationID = s.conversationID
	old := s.state
	s.state = newPrepareCodeGenState(stateBase{deps: &s.deps, tokenSource: NewCancellationSource()})
	s.mu.Unlock()

	if src := old.TokenSource(); !src.IsCancelled() {
		src.Cancel()
	}

	s.cfg.Logger.SetSessionID(conversationID)
	s.cfg.Logger.Info(logging.CategorySession, "conversation_created", "conversation established", map[string]any{"conversation_id": conversationID})
	s.cfg.Hub.Publish(telemetry.Event{Type: telemetry.EventConversationCreated, TabID: s.cfg.TabID, SessionID: conversationID})
	telemetry.RecordTransition(string(PhasePrepareCodeGen))

	if s.cfg.Conversations != nil {
		rec := storage.ConversationRecord{
			TabID:          s.cfg.TabID,
			ConversationID: conversationID,
			Task:           strings.TrimSpace(message),
			CreatedAt:      s.cfg.Now(),
		}
		if err := s.cfg.Conversations.SaveConversation(ctx, rec); err != nil {
			s.cfg.Logger.Warn(logging.CategorySession, "persist_failed", "failed to record conversation", map[string]any{"error": err.Error()})
		}
	}
	return nil
}

// Send processes one user message. The first non-empty message becomes the
// task; every message becomes the latest message so it can be resent after
// a failure.
func (s *Session) Send(ctx context.Context, message string, mode Mode, folderPath string) (Interaction, error) {
	if !s.busy.CompareAndSwap(false, true) {
		return Interaction{}, ErrSessionBusy
	}
	defer s.busy.Store(false)

	s.mu.Lock()
	if s.task == "" && strings.TrimSpace(message) != "" {
		s.task = message
	}
	s.latestMessage = message
	s.mu.Unlock()

	s.cfg.Logger.Info(logging.CategorySession, "send", "message received", map[string]any{
		"mode":   string(mode),
		"folder": folderPath,
		"chars":  len(message),
	})

	if err := s.Preloader(ctx, message); err != nil {
		return Interaction{}, err
	}
	return s.nextInteraction(ctx, message, mode, folderPath)
}

func (s *Session) nextInteraction(ctx context.Context, message string, mode Mode, folderPath string) (Interaction, error) {
	s.mu.Lock()
	if s.state.TokenSource().IsCancelled() {
		s.state = rebind(s.state, NewCancellationSource())
	}
	state := s.state
	src := state.TokenSource()
	action := Action{
		Task:          s.task,
		Message:       message,
		Mode:          mode,
		FolderPath:    folderPath,
		FS:            s.cfg.Workspace,
		Messenger:     s.cfg.Messenger,
		Telemetry:     s.accumulator,
		TokenSource:   src,
		UploadHistory: s.uploadHistory.clone(),
		Retries:       s.retries,
	}
	s.mu.Unlock()

	workCtx, stop := bind(ctx, src)
	defer stop()

	res, err := state.Interact(workCtx, action)
	if err != nil {
		s.cfg.Logger.Warn(logging.CategoryState, "interact_error", "state interaction returned an error", map[string]any{
			"phase": string(state.Phase()),
			"error": err.Error(),
		})
		return Interaction{}, err
	}

	s.mu.Lock()
	if src.IsCancelled() || s.state != state {
		s.mu.Unlock()
		return Interaction{}, cancelled(context.Canceled)
	}
	if res.Upload != nil {
		s.uploadHistory[res.Upload.UploadID] = *res.Upload
	}
	var from, to Phase
	if res.NextState != nil {
		if !src.IsCancelled() {
			src.Cancel()
		}
		from, to = state.Phase(), res.NextState.Phase()
		s.state = res.NextState
	}
	if res.Interaction.Failed {
		if s.retries > 0 {
			s.retries--
		}
		if s.retries == 0 {
			res.Interaction.CanRetry = false
		}
	}
	s.mu.Unlock()

	for _, fn := range res.effects {
		fn(ctx)
	}
	if to != "" {
		telemetry.RecordTransition(string(to))
		s.cfg.Hub.Publish(telemetry.Event{
			Type:      telemetry.EventStateTransition,
			TabID:     s.cfg.TabID,
			SessionID: s.currentConversationID(),
			Data:      map[string]any{"from": string(from), "to": string(to)},
		})
		s.cfg.Logger.Info(logging.CategoryState, "transition", "state transition", map[string]any{"from": string(from), "to": string(to)})
	}
	if res.Upload != nil && s.cfg.Uploads != nil {
		if err := s.cfg.Uploads.SaveUpload(ctx, *res.Upload); err != nil {
			s.cfg.Logger.Warn(logging.CategorySession, "persist_failed", "failed to record upload", map[string]any{"error": err.Error()})
		}
	}
	return res.Interaction, nil
}

func (s *Session) currentConversationID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversationID
}

// Cancel stops the current state's outstanding work. The next Send gives the
// state a fresh source, so the session remains usable.
func (s *Session) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == nil {
		return
	}
	if s.state.TokenSource().Cancel() {
		s.cfg.Logger.Info(logging.CategorySession, "cancelled", "session work cancelled", map[string]any{"phase": string(s.state.Phase())})
	}
}

// UpdateFilesPaths forwards a file set to the UI.
func (s *Session) UpdateFilesPaths(ctx context.Context, tabID string, filePaths []NewFileInfo, deletedFiles []DeletedFileInfo, messageID string, disableActions bool) error {
	if s.cfg.Messenger == nil {
		return nil
	}
	return s.cfg.Messenger.UpdateFileComponent(ctx, tabID, fileEntries(filePaths), deletedEntries(deletedFiles), messageID, disableActions)
}

// ConversationID fails with ErrConversationNotFound until setup succeeds.
func (s *Session) ConversationID() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conversationID == "" {
		return "", ErrConversationNotFound
	}
	return s.conversationID, nil
}

// UploadID is the current state's upload id.
func (s *Session) UploadID() (string, error) {
	state, err := s.State()
	if err != nil {
		return "", err
	}
	return state.UploadID()
}

// currentArtifacts copies the current state's artifacts.
func (s *Session) currentArtifacts() (Artifacts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == nil {
		return Artifacts{}, ErrStateUninitialized
	}
	return s.state.Artifacts(), nil
}

// State returns the current state.
func (s *Session) State() (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == nil {
		return nil, ErrStateUninitialized
	}
	return s.state, nil
}

// Task is the first non-empty message sent.
func (s *Session) Task() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.task
}

// LatestMessage is the most recent message sent.
func (s *Session) LatestMessage() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latestMessage
}

// Lifecycle reports conversation setup progress.
func (s *Session) Lifecycle() Lifecycle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lifecycle
}

// Retries is the remaining code-generation retry budget.
func (s *Session) Retries() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.retries
}

// DecreaseRetries spends one retry. The budget never goes below zero.
func (s *Session) DecreaseRetries() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.retries > 0 {
		s.retries--
	}
}

// UploadHistory returns a copy of every upload made by this session.
func (s *Session) UploadHistory() UploadHistory {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.uploadHistory.clone()
}

// Telemetry exposes the per-session generation statistics.
func (s *Session) Telemetry() *telemetry.Accumulator {
	return s.accumulator
}

// IsAuthenticating reports whether the UI is waiting on credentials.
func (s *Session) IsAuthenticating() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authenticating
}

// SetAuthenticating records that the UI is waiting on credentials.
func (s *Session) SetAuthenticating(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.authenticating = v
}
