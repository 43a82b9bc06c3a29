package session

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

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
	msgUploading       = "Uploading your workspace..."
	msgGenerating      = "Generating documentation. This may take a few minutes..."
	msgGenerated       = "I've prepared the changes below. Review them and accept or reject each file."
	msgNoChanges       = "Generation finished but produced no changes."
	msgUploadFailed    = "I couldn't upload your workspace. Please try again."
	msgGenerationError = "Something went wrong while generating documentation. Please try again."
	msgNeedInstruction = "Tell me what you would like to change."
	msgNoRetries       = "I've run out of retries for this conversation. Start a new session to continue."
)

// NotStartedState is installed until the conversation exists.
type NotStartedState struct {
	stateBase
}

func newNotStartedState(deps *stateDeps) *NotStartedState {
	return &NotStartedState{stateBase{deps: deps, tokenSource: NewCancellationSource()}}
}

func (s *NotStartedState) Phase() Phase { return PhaseNotStarted }

func (s *NotStartedState) Interact(context.Context, Action) (Result, error) {
	return Result{}, ErrStateUninitialized
}

// PrepareCodeGenState uploads the workspace and then hands off to
// CodeGenState, sharing its cancellation source.
type PrepareCodeGenState struct {
	stateBase
}

func newPrepareCodeGenState(b stateBase) *PrepareCodeGenState {
	return &PrepareCodeGenState{b}
}

func (s *PrepareCodeGenState) Phase() Phase { return PhasePrepareCodeGen }

func (s *PrepareCodeGenState) Interact(ctx context.Context, action Action) (Result, error) {
	deps := s.deps
	folder := s.folderFor(action)
	notifyPlaceholder(ctx, deps, action.Messenger, msgUploading)

	archive, err := deps.collector.Collect(ctx, folder, deps.collectOptions)
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		return s.fail(ctx, err, msgUploadFailed, "collect")
	}

	target, err := deps.client.CreateUploadURL(ctx, backend.CreateUploadURLRequest{
		ConversationID: deps.conversationID,
		Checksum:       archive.Checksum,
		ContentLength:  int64(len(archive.Data)),
		UploadID:       s.uploadID,
	})
	if err != nil {
		return s.fail(ctx, err, msgUploadFailed, "create_upload_url")
	}
	if err := deps.client.UploadArchive(ctx, target, archive.Checksum, archive.Data); err != nil {
		return s.fail(ctx, err, msgUploadFailed, "upload")
	}
	if err := ctx.Err(); err != nil {
		return Result{}, cancelled(err)
	}

	upload := storage.UploadRecord{
		UploadID:       target.UploadID,
		TabID:          deps.tabID,
		ConversationID: deps.conversationID,
		FilePaths:      archive.Files,
		UploadedAt:     deps.now(),
	}

	next := s.carry(s.source(action))
	next.uploadID = target.UploadID
	codegen := newCodeGenState(next, folder)
	res, err := codegen.Interact(ctx, action)
	if err != nil {
		return Result{}, err
	}
	res.Upload = &upload
	res.onCommit(func(context.Context) {
		s.publish(telemetry.EventUploadCompleted, map[string]any{
			"upload_id": upload.UploadID,
			"files":     len(archive.Files),
			"bytes":     archive.Size,
		})
		deps.logger.Info(logging.CategoryState, "upload_completed", "workspace uploaded", map[string]any{
			"upload_id": upload.UploadID,
			"files":     len(archive.Files),
		})
	})
	return res, nil
}

// fail turns a per-interaction error into an ErrorState. A cancelled context
// wins over the error so nothing is committed.
func (s *PrepareCodeGenState) fail(ctx context.Context, err error, fallback, step string) (Result, error) {
	if ctx.Err() != nil {
		return Result{}, cancelled(ctx.Err())
	}
	return failure(&s.stateBase, err, fallback, step)
}

// CodeGenState starts one generation run, polls it to completion and stages
// the result.
type CodeGenState struct {
	stateBase
	folder workspace.Folder
}

func newCodeGenState(b stateBase, folder workspace.Folder) *CodeGenState {
	return &CodeGenState{stateBase: b, folder: folder}
}

func (s *CodeGenState) Phase() Phase { return PhaseCodeGen }

func (s *CodeGenState) Interact(ctx context.Context, action Action) (Result, error) {
	deps := s.deps
	start := deps.now()
	codeGenID := deps.newID()
	s.codeGenerationID = codeGenID

	notifyPlaceholder(ctx, deps, action.Messenger, msgGenerating)
	s.publish(telemetry.EventCodeGenStarted, map[string]any{"code_generation_id": codeGenID, "mode": string(action.Mode)})

	message := action.Message
	if strings.TrimSpace(message) == "" {
		message = action.Task
	}
	if _, err := deps.client.StartCodeGeneration(ctx, backend.StartCodeGenerationRequest{
		ConversationID:   deps.conversationID,
		UploadID:         s.uploadID,
		CodeGenerationID: codeGenID,
		Message:          message,
		Mode:             string(action.Mode),
		FolderPath:       action.FolderPath,
	}); err != nil {
		return s.fail(ctx, action, err, msgGenerationError, "start", start)
	}

	status, err := s.poll(ctx, codeGenID)
	if err != nil {
		return s.fail(ctx, action, err, msgGenerationError, "poll", start)
	}
	s.iterations.Current++
	s.iterations.Remaining = status.RemainingIterations
	s.iterations.Total = status.TotalIterations

	if status.Status == backend.StatusFailed {
		cause := gserrors.New(gserrors.ErrCodeCodeGenFailed, "code generation failed").
			WithContext("reason", status.FailureReason).
			WithRetryable(true)
		return s.fail(ctx, action, cause, msgGenerationError, "status", start)
	}

	archive, err := deps.client.ExportResultArchive(ctx, deps.conversationID)
	if err != nil {
		return s.fail(ctx, action, err, msgGenerationError, "export", start)
	}

	files, err := s.stage(ctx, archive)
	if err != nil {
		return s.fail(ctx, action, err, msgGenerationError, "stage", start)
	}
	if err := ctx.Err(); err != nil {
		s.publish(telemetry.EventCodeGenCancelled, map[string]any{"code_generation_id": codeGenID})
		return Result{}, cancelled(err)
	}

	next := s.carry(NewCancellationSource())
	next.artifacts = mergeArtifacts(s.artifacts, files, s.deletedFiles(archive), archive.References)

	content := msgGenerated
	if len(files) == 0 && len(archive.DeletedFiles) == 0 {
		content = msgNoChanges
	}
	res := Result{
		Interaction: Interaction{Content: content, Responded: true},
		NextState:   &CompletedState{stateBase: next},
	}

	latency := deps.now().Sub(start)
	messageID := deps.newID()
	res.onCommit(func(ctx context.Context) {
		if action.Messenger != nil {
			if err := action.Messenger.UpdateFileComponent(ctx, deps.tabID,
				fileEntries(next.artifacts.FilePaths),
				deletedEntries(next.artifacts.DeletedFiles),
				messageID, false); err != nil {
				deps.logger.Warn(logging.CategoryState, "notify_failed", "failed to update file component", map[string]any{"error": err.Error()})
			}
		}
		action.Telemetry.RecordGeneration(codeGenID, latency, false)
		s.publish(telemetry.EventCodeGenCompleted, map[string]any{
			"code_generation_id": codeGenID,
			"files":              len(files),
			"latency_ms":         latency.Milliseconds(),
		})
		deps.logger.Info(logging.CategoryState, "codegen_completed", "code generation completed", map[string]any{
			"code_generation_id": codeGenID,
			"files":              len(files),
			"deleted":            len(archive.DeletedFiles),
		})
	})
	return res, nil
}

func (s *CodeGenState) poll(ctx context.Context, codeGenID string) (*backend.CodeGeneration, error) {
	deps := s.deps
	for attempt := 0; attempt < deps.maxPollAttempts; attempt++ {
		status, err := deps.client.GetCodeGeneration(ctx, deps.conversationID, codeGenID)
		if err != nil {
			return nil, err
		}
		switch status.Status {
		case backend.StatusComplete, backend.StatusFailed:
			return status, nil
		}

		timer := time.NewTimer(deps.pollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	return nil, gserrors.New(gserrors.ErrCodeBackendTimeout, "code generation did not finish").
		WithContext("attempts", deps.maxPollAttempts).
		WithRetryable(true).
		WithUserMessage("Generation is taking longer than expected. Please try again.")
}

// stage writes every generated file into the virtual staging area. It stops
// at the first cancelled check so nothing is staged after cancellation.
func (s *CodeGenState) stage(ctx context.Context, archive *backend.ResultArchive) ([]NewFileInfo, error) {
	deps := s.deps
	files := make([]NewFileInfo, 0, len(archive.NewFiles))
	for _, nf := range archive.NewFiles {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rel := cleanRelative(nf.ZipFilePath)
		if rel == "" {
			continue
		}
		virtual := workspace.StagingPath(deps.tabID, s.uploadID, rel)
		if err := deps.staging.MkdirAll(path.Dir(virtual)); err != nil {
			return nil, gserrors.Wrap(err, gserrors.ErrCodeWorkspaceWrite, "stage generated file").WithContext("path", rel)
		}
		if err := deps.staging.WriteFile(virtual, []byte(nf.Content)); err != nil {
			return nil, gserrors.Wrap(err, gserrors.ErrCodeWorkspaceWrite, "stage generated file").WithContext("path", rel)
		}
		files = append(files, NewFileInfo{
			RelativePath:    rel,
			WorkspaceFolder: s.folder,
			VirtualPath:     virtual,
			Content:         nf.Content,
		})
	}
	return files, nil
}

func (s *CodeGenState) deletedFiles(archive *backend.ResultArchive) []DeletedFileInfo {
	out := make([]DeletedFileInfo, 0, len(archive.DeletedFiles))
	for _, p := range archive.DeletedFiles {
		rel := cleanRelative(p)
		if rel == "" {
			continue
		}
		out = append(out, DeletedFileInfo{RelativePath: rel, WorkspaceFolder: s.folder})
	}
	return out
}

func (s *CodeGenState) fail(ctx context.Context, action Action, err error, fallback, step string, start time.Time) (Result, error) {
	if ctx.Err() != nil {
		s.publish(telemetry.EventCodeGenCancelled, map[string]any{"code_generation_id": s.codeGenerationID})
		return Result{}, cancelled(ctx.Err())
	}
	res, _ := failure(&s.stateBase, err, fallback, step)
	codeGenID, latency := s.codeGenerationID, s.deps.now().Sub(start)
	res.onCommit(func(context.Context) {
		action.Telemetry.RecordGeneration(codeGenID, latency, true)
		s.publish(telemetry.EventCodeGenFailed, map[string]any{
			"code_generation_id": codeGenID,
			"step":               step,
			"error":              err.Error(),
		})
	})
	return res, nil
}

// CompletedState holds a finished generation. Another message starts the
// next iteration on the same conversation.
type CompletedState struct {
	stateBase
}

func (s *CompletedState) Phase() Phase { return PhaseCompleted }

func (s *CompletedState) Interact(ctx context.Context, action Action) (Result, error) {
	if strings.TrimSpace(action.Message) == "" {
		return Result{Interaction: Interaction{Content: msgNeedInstruction, Responded: true}}, nil
	}
	return newPrepareCodeGenState(s.carry(s.source(action))).Interact(ctx, action)
}

// ErrorState is the fallback after a failed interaction. It keeps every
// artifact so the same message can be retried.
type ErrorState struct {
	stateBase
	cause error
}

func (s *ErrorState) Phase() Phase { return PhaseError }

// Cause is the error that put the session here.
func (s *ErrorState) Cause() error { return s.cause }

func (s *ErrorState) Interact(ctx context.Context, action Action) (Result, error) {
	if action.Retries <= 0 {
		return Result{Interaction: Interaction{Content: msgNoRetries, Responded: true, Failed: true, Err: s.cause}}, nil
	}
	return newPrepareCodeGenState(s.carry(s.source(action))).Interact(ctx, action)
}

func failure(b *stateBase, err error, fallback, step string) (Result, error) {
	b.deps.logger.Error(logging.CategoryState, "interaction_failed", "interaction failed", map[string]any{
		"step":  step,
		"code":  string(gserrors.GetCode(err)),
		"error": err.Error(),
	})
	next := b.carry(NewCancellationSource())
	return Result{
		Interaction: Interaction{
			Content:   gserrors.UserMessage(err, fallback),
			Responded: true,
			Failed:    true,
			CanRetry:  true,
			Err:       err,
		},
		NextState: &ErrorState{stateBase: next, cause: err},
	}, nil
}

func cancelled(err error) error {
	return gserrors.Wrap(err, gserrors.ErrCodeCancelled, errInteractionCancelled.Message)
}

func notifyPlaceholder(ctx context.Context, deps *stateDeps, m messenger.Messenger, text string) {
	if m == nil {
		return
	}
	if err := m.SendUpdatePlaceholder(ctx, deps.tabID, text); err != nil {
		deps.logger.Warn(logging.CategoryState, "notify_failed", "failed to update placeholder", map[string]any{"error": err.Error()})
	}
}

// mergeArtifacts folds a new generation into what earlier iterations
// produced. A regenerated path replaces the earlier entry and clears its
// review flags.
func mergeArtifacts(prev Artifacts, files []NewFileInfo, deleted []DeletedFileInfo, refs []reference.Reference) Artifacts {
	out := Artifacts{}

	replaced := make(map[string]bool, len(files)+len(deleted))
	for _, f := range files {
		replaced[f.RelativePath] = true
	}
	for _, d := range deleted {
		replaced[d.RelativePath] = true
	}
	for _, f := range prev.FilePaths {
		if !replaced[f.RelativePath] {
			out.FilePaths = append(out.FilePaths, f)
		}
	}
	out.FilePaths = append(out.FilePaths, files...)
	for _, d := range prev.DeletedFiles {
		if !replaced[d.RelativePath] {
			out.DeletedFiles = append(out.DeletedFiles, d)
		}
	}
	out.DeletedFiles = append(out.DeletedFiles, deleted...)

	seen := make(map[reference.Reference]bool)
	for _, r := range append(append([]reference.Reference(nil), prev.References...), refs...) {
		key := r
		key.Span = nil
		if r.Span != nil {
			key.URL = fmt.Sprintf("%s#%d-%d", r.URL, r.Span.Start, r.Span.End)
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		out.References = append(out.References, r)
	}
	return out
}

// cleanRelative normalizes a backend path and rejects anything escaping the
// folder.
func cleanRelative(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	p = path.Clean("/" + p)
	p = strings.TrimPrefix(p, "/")
	if p == "." || p == "" {
		return ""
	}
	return p
}

func fileEntries(files []NewFileInfo) []messenger.FileEntry {
	out := make([]messenger.FileEntry, 0, len(files))
	for _, f := range files {
		out = append(out, messenger.FileEntry{
			RelativePath:    f.RelativePath,
			WorkspaceFolder: f.WorkspaceFolder.Path,
			Rejected:        f.Rejected,
			ChangeApplied:   f.ChangeApplied,
		})
	}
	return out
}

func deletedEntries(files []DeletedFileInfo) []messenger.DeletedEntry {
	out := make([]messenger.DeletedEntry, 0, len(files))
	for _, f := range files {
		out = append(out, messenger.DeletedEntry{
			RelativePath:    f.RelativePath,
			WorkspaceFolder: f.WorkspaceFolder.Path,
			Rejected:        f.Rejected,
		})
	}
	return out
}
