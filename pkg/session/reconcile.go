package session

import (
	"context"
	"path/filepath"

	gserrors "github.com/odvcencio/gensession/pkg/errors"
	"github.com/odvcencio/gensession/pkg/logging"
	"github.com/odvcencio/gensession/pkg/reference"
	"github.com/odvcencio/gensession/pkg/telemetry"
)

// InsertChanges applies the current state's accepted files to the workspace:
// writes first, then deletions, then reference log entries. It is not
// atomic; files written before a failure stay on disk.
func (s *Session) InsertChanges(ctx context.Context) error {
	art, err := s.currentArtifacts()
	if err != nil {
		return err
	}
	fs := s.cfg.Workspace

	written := 0
	for _, f := range art.FilePaths {
		if f.Rejected {
			continue
		}
		content, err := s.stagedContent(f)
		if err != nil {
			return err
		}
		dest := f.WorkspaceFolder.Join(f.RelativePath)
		if err := fs.MkdirAll(filepath.Dir(dest)); err != nil {
			return gserrors.Wrap(err, gserrors.ErrCodeWorkspaceWrite, "create directory").WithContext("path", dest)
		}
		if err := fs.WriteFile(dest, content); err != nil {
			return gserrors.Wrap(err, gserrors.ErrCodeWorkspaceWrite, "write file").WithContext("path", dest)
		}
		written++
	}

	deleted := 0
	for _, d := range art.DeletedFiles {
		if d.Rejected {
			continue
		}
		dest := d.WorkspaceFolder.Join(d.RelativePath)
		if err := fs.Remove(dest); err != nil {
			return gserrors.Wrap(err, gserrors.ErrCodeWorkspaceWrite, "delete file").WithContext("path", dest)
		}
		deleted++
	}

	for _, ref := range art.References {
		if s.cfg.References == nil {
			break
		}
		if err := s.cfg.References.Append(ctx, reference.NewEntry(s.cfg.TabID, ref, s.cfg.Now())); err != nil {
			return gserrors.Wrap(err, gserrors.ErrCodeStorageWrite, "append reference log")
		}
	}

	s.cfg.Logger.Info(logging.CategoryReconcile, "changes_inserted", "applied generated changes", map[string]any{
		"written":    written,
		"deleted":    deleted,
		"references": len(art.References),
	})
	s.cfg.Hub.Publish(telemetry.Event{
		Type:      telemetry.EventChangesInserted,
		TabID:     s.cfg.TabID,
		SessionID: s.currentConversationID(),
		Data:      map[string]any{"written": written, "deleted": deleted, "references": len(art.References)},
	})
	return nil
}

// stagedContent reads a generated file from the staging area.
func (s *Session) stagedContent(f NewFileInfo) ([]byte, error) {
	if f.VirtualPath == "" {
		return []byte(f.Content), nil
	}
	content, err := s.cfg.Staging.ReadFile(f.VirtualPath)
	if err != nil {
		return nil, gserrors.Wrap(err, gserrors.ErrCodeWorkspaceRead, "read staged file").WithContext("path", f.VirtualPath)
	}
	return content, nil
}

// SetFileRejected flags a generated file for the next InsertChanges.
func (s *Session) SetFileRejected(relativePath string, rejected bool) bool {
	return s.updateArtifacts(func(a *Artifacts) bool {
		for i := range a.FilePaths {
			if a.FilePaths[i].RelativePath == relativePath {
				a.FilePaths[i].Rejected = rejected
				return true
			}
		}
		return false
	})
}

// SetDeletedFileRejected flags a proposed deletion for the next InsertChanges.
func (s *Session) SetDeletedFileRejected(relativePath string, rejected bool) bool {
	return s.updateArtifacts(func(a *Artifacts) bool {
		for i := range a.DeletedFiles {
			if a.DeletedFiles[i].RelativePath == relativePath {
				a.DeletedFiles[i].Rejected = rejected
				return true
			}
		}
		return false
	})
}

// MarkChangesApplied flags every accepted file as applied.
func (s *Session) MarkChangesApplied() {
	s.updateArtifacts(func(a *Artifacts) bool {
		for i := range a.FilePaths {
			if !a.FilePaths[i].Rejected {
				a.FilePaths[i].ChangeApplied = true
			}
		}
		return true
	})
}

// updateArtifacts installs a copy of the current state with fn applied.
func (s *Session) updateArtifacts(fn func(*Artifacts) bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == nil {
		return false
	}
	next := rebind(s.state, s.state.TokenSource())
	if !fn(&next.base().artifacts) {
		return false
	}
	s.state = next
	return true
}
