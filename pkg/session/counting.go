package session

import (
	"os"

	"github.com/odvcencio/gensession/pkg/diffstat"
	gserrors "github.com/odvcencio/gensession/pkg/errors"
	"github.com/odvcencio/gensession/pkg/telemetry"
)

// CountGeneratedContent tallies every generated file against what was last
// reported for it, then records the current content as reported. A
// GENERATE_README count with nothing reported yet uses raw content size.
// Calls must not overlap.
func (s *Session) CountGeneratedContent(kind telemetry.InteractionType) (ContentCount, error) {
	art, err := s.currentArtifacts()
	if err != nil {
		return ContentCount{}, err
	}

	var count ContentCount
	for _, f := range art.FilePaths {
		s.mu.Lock()
		reported, ok := s.reportedDocChanges[f.RelativePath]
		s.mu.Unlock()

		var chars, lines int
		if kind == telemetry.InteractionGenerateReadme && !ok {
			chars, lines = diffstat.Raw(f.Content)
		} else {
			var snapshot *string
			if ok {
				snapshot = &reported
			}
			stats, err := s.ComputeFilePathDiff(f, snapshot)
			if err != nil {
				return ContentCount{}, err
			}
			chars, lines = stats.CharsAdded, stats.LinesAdded
		}
		count.TotalAddedChars += chars
		count.TotalAddedLines += lines
		count.TotalAddedFiles++

		s.mu.Lock()
		s.reportedDocChanges[f.RelativePath] = f.Content
		s.mu.Unlock()
	}
	return count, nil
}

// CountAddedContent tallies what accepting would add: only files that are
// neither rejected nor already applied. It leaves the reported snapshots
// alone.
func (s *Session) CountAddedContent(kind telemetry.InteractionType) (ContentCount, error) {
	art, err := s.currentArtifacts()
	if err != nil {
		return ContentCount{}, err
	}

	var count ContentCount
	for _, f := range art.FilePaths {
		if f.Rejected || f.ChangeApplied {
			continue
		}
		var chars, lines int
		if kind == telemetry.InteractionGenerateReadme {
			chars, lines = diffstat.Raw(f.Content)
		} else {
			stats, err := s.ComputeFilePathDiff(f, nil)
			if err != nil {
				return ContentCount{}, err
			}
			chars, lines = stats.CharsAdded, stats.LinesAdded
		}
		count.TotalAddedChars += chars
		count.TotalAddedLines += lines
		count.TotalAddedFiles++
	}
	return count, nil
}

// ComputeFilePathDiff compares a generated file's staged content with the
// workspace copy, or with snapshot when one is given. A missing workspace
// file diffs as empty; unreadable staging falls back to f.Content.
func (s *Session) ComputeFilePathDiff(f NewFileInfo, snapshot *string) (diffstat.Stats, error) {
	var before string
	if snapshot != nil {
		before = *snapshot
	} else {
		data, err := s.cfg.Workspace.ReadFile(f.WorkspaceFolder.Join(f.RelativePath))
		switch {
		case err == nil:
			before = string(data)
		case os.IsNotExist(err):
		default:
			return diffstat.Stats{}, gserrors.Wrap(err, gserrors.ErrCodeWorkspaceRead, "read workspace file").WithContext("path", f.RelativePath)
		}
	}

	after := f.Content
	if f.VirtualPath != "" {
		if data, err := s.cfg.Staging.ReadFile(f.VirtualPath); err == nil {
			after = string(data)
		}
	}
	return diffstat.Compute(before, after), nil
}
