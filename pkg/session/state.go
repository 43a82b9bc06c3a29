package session

import (
	"context"
	"time"

	"github.com/odvcencio/gensession/pkg/backend"
	"github.com/odvcencio/gensession/pkg/logging"
	"github.com/odvcencio/gensession/pkg/telemetry"
	"github.com/odvcencio/gensession/pkg/workspace"
)

// Phase names a state variant.
type Phase string

const (
	PhaseNotStarted     Phase = "NotStarted"
	PhasePrepareCodeGen Phase = "PrepareCodeGen"
	PhaseCodeGen        Phase = "CodeGen"
	PhaseCompleted      Phase = "Completed"
	PhaseError          Phase = "Error"
)

// State is one phase of the session. The set of implementations is closed.
type State interface {
	Phase() Phase
	Interact(ctx context.Context, action Action) (Result, error)

	// Artifacts returns a copy of the accumulated files and references.
	Artifacts() Artifacts
	// UploadID fails with ErrUploadIDUninitialized until an upload exists.
	UploadID() (string, error)
	CodeGenerationID() string
	Iterations() Iterations
	TokenSource() *CancellationSource

	base() *stateBase
}

// stateDeps are the collaborators every state shares.
type stateDeps struct {
	tabID           string
	conversationID  string
	client          backend.Client
	collector       Collector
	collectOptions  workspace.CollectOptions
	staging         workspace.FileSystem
	folder          workspace.Folder
	pollInterval    time.Duration
	maxPollAttempts int
	logger          *logging.Logger
	hub             *telemetry.Hub
	now             func() time.Time
	newID           func() string
}

// stateBase holds what every variant carries forward.
type stateBase struct {
	deps             *stateDeps
	artifacts        Artifacts
	uploadID         string
	codeGenerationID string
	iterations       Iterations
	tokenSource      *CancellationSource
}

func (b *stateBase) base() *stateBase { return b }

func (b *stateBase) Artifacts() Artifacts { return b.artifacts.clone() }

func (b *stateBase) UploadID() (string, error) {
	if b.uploadID == "" {
		return "", ErrUploadIDUninitialized
	}
	return b.uploadID, nil
}

func (b *stateBase) CodeGenerationID() string { return b.codeGenerationID }

func (b *stateBase) Iterations() Iterations { return b.iterations }

func (b *stateBase) TokenSource() *CancellationSource { return b.tokenSource }

// carry copies b into a new base that uses src.
func (b *stateBase) carry(src *CancellationSource) stateBase {
	return stateBase{
		deps:             b.deps,
		artifacts:        b.artifacts.clone(),
		uploadID:         b.uploadID,
		codeGenerationID: b.codeGenerationID,
		iterations:       b.iterations,
		tokenSource:      src,
	}
}

// rebind returns a copy of st that uses src. The installed state is
// replaced with the copy, never changed in place.
func rebind(st State, src *CancellationSource) State {
	b := st.base().carry(src)
	switch v := st.(type) {
	case *NotStartedState:
		return &NotStartedState{b}
	case *PrepareCodeGenState:
		return &PrepareCodeGenState{b}
	case *CodeGenState:
		return &CodeGenState{stateBase: b, folder: v.folder}
	case *CompletedState:
		return &CompletedState{b}
	case *ErrorState:
		return &ErrorState{stateBase: b, cause: v.cause}
	default:
		return st
	}
}

// source is the cancellation source of the running interaction. Delegated
// states share it.
func (b *stateBase) source(action Action) *CancellationSource {
	if action.TokenSource != nil {
		return action.TokenSource
	}
	return b.tokenSource
}

func (b *stateBase) publish(typ telemetry.EventType, data map[string]any) {
	b.deps.hub.Publish(telemetry.Event{
		Type:      typ,
		TabID:     b.deps.tabID,
		SessionID: b.deps.conversationID,
		Data:      data,
	})
}

func (b *stateBase) folderFor(action Action) workspace.Folder {
	if action.FolderPath != "" {
		return workspace.NewFolder(action.FolderPath)
	}
	return b.deps.folder
}
