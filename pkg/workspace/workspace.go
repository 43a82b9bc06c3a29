// Package workspace is the filesystem boundary of a session: the user's
// workspace folders, the virtual staging area holding generated content, and
// the archive uploaded to the backend.
package workspace

import (
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
)

// FileSystem is the handle used to read staged content and apply accepted
// changes. Implementations must tolerate MkdirAll on an existing directory.
type FileSystem interface {
	ReadFile(name string) ([]byte, error)
	MkdirAll(dir string) error
	WriteFile(name string, data []byte) error
	Remove(name string) error
}

// Folder is one root folder of the user's workspace.
type Folder struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// NewFolder builds a folder named after the last element of p.
func NewFolder(p string) Folder {
	clean := filepath.Clean(p)
	return Folder{Name: filepath.Base(clean), Path: clean}
}

// Join resolves a slash-separated relative path inside the folder.
func (f Folder) Join(rel string) string {
	return filepath.Join(f.Path, filepath.FromSlash(rel))
}

// BillyFS adapts a billy.Filesystem to FileSystem.
type BillyFS struct {
	fs billy.Filesystem
}

// New wraps fs.
func New(fs billy.Filesystem) *BillyFS {
	return &BillyFS{fs: fs}
}

// NewOS returns a FileSystem over the real disk, addressed by absolute path.
func NewOS() *BillyFS {
	return New(osfs.New("/"))
}

// NewMemory returns an empty in-memory FileSystem.
func NewMemory() *BillyFS {
	return New(memfs.New())
}

// Billy exposes the underlying filesystem.
func (b *BillyFS) Billy() billy.Filesystem {
	return b.fs
}

func (b *BillyFS) ReadFile(name string) ([]byte, error) {
	return util.ReadFile(b.fs, name)
}

func (b *BillyFS) MkdirAll(dir string) error {
	return b.fs.MkdirAll(dir, 0o755)
}

func (b *BillyFS) WriteFile(name string, data []byte) error {
	return util.WriteFile(b.fs, name, data, 0o644)
}

// Remove deletes name. Removing a file that is already gone is not an error.
func (b *BillyFS) Remove(name string) error {
	if err := b.fs.Remove(name); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// StagingPath is where generated content for one upload lives in the
// virtual staging filesystem.
func StagingPath(tabID, uploadID, rel string) string {
	rel = strings.TrimPrefix(filepath.ToSlash(rel), "/")
	return path.Join("/", tabID, uploadID, rel)
}
