package workspace

import (
	"errors"
	"path/filepath"

	"github.com/go-git/go-git/v5"
)

// DetectRoot returns the folder a session should work on for dir: the
// enclosing git worktree when there is one, otherwise dir itself.
func DetectRoot(dir string) (Folder, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return Folder{}, err
	}

	repo, err := git.PlainOpenWithOptions(abs, &git.PlainOpenOptions{DetectDotGit: true})
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return NewFolder(abs), nil
	}
	if err != nil {
		return Folder{}, err
	}

	wt, err := repo.Worktree()
	if errors.Is(err, git.ErrIsBareRepository) {
		return NewFolder(abs), nil
	}
	if err != nil {
		return Folder{}, err
	}
	return NewFolder(wt.Filesystem.Root()), nil
}
