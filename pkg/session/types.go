package session

import (
	"context"

	"github.com/odvcencio/gensession/pkg/messenger"
	"github.com/odvcencio/gensession/pkg/reference"
	"github.com/odvcencio/gensession/pkg/storage"
	"github.com/odvcencio/gensession/pkg/telemetry"
	"github.com/odvcencio/gensession/pkg/workspace"
)

// Mode is the kind of document change the user asked for.
type Mode string

const (
	ModeNone   Mode = ""
	ModeCreate Mode = "CREATE"
	ModeUpdate Mode = "UPDATE"
	ModeEdit   Mode = "EDIT"
)

// InteractionType maps a mode onto the telemetry interaction type.
func (m Mode) InteractionType() telemetry.InteractionType {
	switch m {
	case ModeCreate:
		return telemetry.InteractionGenerateReadme
	case ModeUpdate:
		return telemetry.InteractionUpdateReadme
	case ModeEdit:
		return telemetry.InteractionEditReadme
	default:
		return ""
	}
}

// Lifecycle tracks one-time conversation setup.
type Lifecycle int

const (
	LifecycleUninitialized Lifecycle = iota
	LifecycleInitializing
	LifecycleReady
	LifecycleFailed
)

func (l Lifecycle) String() string {
	switch l {
	case LifecycleUninitialized:
		return "uninitialized"
	case LifecycleInitializing:
		return "initializing"
	case LifecycleReady:
		return "ready"
	case LifecycleFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Interaction is what one message produced for the user.
type Interaction struct {
	Content   string
	Responded bool
	// Failed marks a per-interaction failure. The same message can be sent
	// again while CanRetry is true.
	Failed   bool
	CanRetry bool
	Err      error
}

// NewFileInfo is one generated file. Content is also staged at VirtualPath.
type NewFileInfo struct {
	RelativePath    string
	WorkspaceFolder workspace.Folder
	VirtualPath     string
	Content         string
	Rejected        bool
	ChangeApplied   bool
}

// DeletedFileInfo is one file the generator proposes to delete.
type DeletedFileInfo struct {
	RelativePath    string
	WorkspaceFolder workspace.Folder
	Rejected        bool
}

// UploadHistory maps upload ids to what was uploaded.
type UploadHistory map[string]storage.UploadRecord

func (h UploadHistory) clone() UploadHistory {
	out := make(UploadHistory, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}

// ContentCount is the telemetry tally for a file set.
type ContentCount struct {
	TotalAddedChars int
	TotalAddedLines int
	TotalAddedFiles int
}

// Collector produces the archive uploaded for a folder.
type Collector interface {
	Collect(ctx context.Context, folder workspace.Folder, opts workspace.CollectOptions) (*workspace.Archive, error)
}

// UploadRecorder persists upload history.
type UploadRecorder interface {
	SaveUpload(ctx context.Context, rec storage.UploadRecord) error
}

// ConversationRecorder persists the tab to conversation binding.
type ConversationRecorder interface {
	SaveConversation(ctx context.Context, rec storage.ConversationRecord) error
}

// Action is everything a state needs to process one message.
type Action struct {
	Task          string
	Message       string
	Mode          Mode
	FolderPath    string
	FS            workspace.FileSystem
	Messenger     messenger.Messenger
	Telemetry     *telemetry.Accumulator
	TokenSource   *CancellationSource
	UploadHistory UploadHistory
	Retries       int
}

// Result is a state's answer. A nil NextState keeps the current state.
type Result struct {
	Interaction Interaction
	NextState   State
	// Upload is set when the interaction uploaded the workspace.
	Upload *storage.UploadRecord

	// effects run only once the controller has committed the result.
	effects []func(context.Context)
}

// onCommit defers fn until the result is committed.
func (r *Result) onCommit(fn func(context.Context)) {
	r.effects = append(r.effects, fn)
}

// Artifacts is what a state accumulated across iterations.
type Artifacts struct {
	FilePaths    []NewFileInfo
	DeletedFiles []DeletedFileInfo
	References   []reference.Reference
}

func (a Artifacts) clone() Artifacts {
	return Artifacts{
		FilePaths:    append([]NewFileInfo(nil), a.FilePaths...),
		DeletedFiles: append([]DeletedFileInfo(nil), a.DeletedFiles...),
		References:   append([]reference.Reference(nil), a.References...),
	}
}

// Iterations are the backend's iteration counters for the conversation.
type Iterations struct {
	Current   int
	Remaining *int
	Total     *int
}
