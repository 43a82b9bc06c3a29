package workspace

import (
	"archive/zip"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/go-git/go-billy/v5/util"
	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
	"golang.org/x/sync/errgroup"

	gserrors "github.com/odvcencio/gensession/pkg/errors"
)

const (
	// DefaultMaxUploadBytes caps the uncompressed size of a workspace upload.
	DefaultMaxUploadBytes  int64 = 200 << 20
	defaultReadConcurrency       = 8
)

// DefaultExcludes are skipped regardless of .gitignore.
var DefaultExcludes = []string{".git/", "node_modules/", ".gensession/"}

// CollectOptions tunes archive collection.
type CollectOptions struct {
	MaxBytes    int64
	Exclude     []string
	Concurrency int
}

// Archive is a zipped snapshot of one workspace folder.
type Archive struct {
	Data     []byte
	Checksum string // base64 SHA-256 of Data
	Size     int64  // uncompressed bytes
	Files    []string
}

type collectedFile struct {
	rel  string
	data []byte
}

// Collect zips every non-ignored file under folder. Files are read
// concurrently but written to the archive in sorted order, so identical
// trees produce identical archives.
func (b *BillyFS) Collect(ctx context.Context, folder Folder, opts CollectOptions) (*Archive, error) {
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = DefaultMaxUploadBytes
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultReadConcurrency
	}

	root, err := b.fs.Chroot(folder.Path)
	if err != nil {
		return nil, gserrors.Wrap(err, gserrors.ErrCodeWorkspaceRead, "open workspace folder").
			WithContext("folder", folder.Path)
	}

	patterns, err := gitignore.ReadPatterns(root, nil)
	if err != nil {
		return nil, gserrors.Wrap(err, gserrors.ErrCodeWorkspaceRead, "read .gitignore").
			WithContext("folder", folder.Path)
	}
	for _, raw := range append(append([]string{}, DefaultExcludes...), opts.Exclude...) {
		patterns = append(patterns, gitignore.ParsePattern(raw, nil))
	}
	matcher := gitignore.NewMatcher(patterns)

	var rels []string
	var total int64
	walkErr := util.Walk(root, "/", func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if p == "/" {
			return nil
		}
		rel := strings.TrimPrefix(filepath.ToSlash(p), "/")
		if matcher.Match(strings.Split(rel, "/"), info.IsDir()) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if info.IsDir() || !info.Mode().IsRegular() {
			return nil
		}
		total += info.Size()
		if total > opts.MaxBytes {
			return gserrors.New(gserrors.ErrCodeUpload, "workspace exceeds upload limit").
				WithContext("limit_bytes", opts.MaxBytes).
				WithUserMessage("The selected folder is too large to upload. Choose a smaller folder.")
		}
		rels = append(rels, rel)
		return nil
	})
	if walkErr != nil {
		if gserrors.IsCode(walkErr, gserrors.ErrCodeUpload) {
			return nil, walkErr
		}
		return nil, gserrors.Wrap(walkErr, gserrors.ErrCodeWorkspaceRead, "walk workspace folder").
			WithContext("folder", folder.Path)
	}
	sort.Strings(rels)

	files := make([]collectedFile, len(rels))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)
	for i, rel := range rels {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			data, err := util.ReadFile(root, path.Join("/", rel))
			if err != nil {
				return gserrors.Wrap(err, gserrors.ErrCodeWorkspaceRead, "read workspace file").
					WithContext("path", rel)
			}
			files[i] = collectedFile{rel: rel, data: data}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, f := range files {
		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:     f.rel,
			Method:   zip.Deflate,
			Modified: time.Unix(0, 0).UTC(),
		})
		if err != nil {
			return nil, fmt.Errorf("zip header %s: %w", f.rel, err)
		}
		if _, err := w.Write(f.data); err != nil {
			return nil, fmt.Errorf("zip write %s: %w", f.rel, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("zip close: %w", err)
	}

	sum := sha256.Sum256(buf.Bytes())
	return &Archive{
		Data:     buf.Bytes(),
		Checksum: base64.StdEncoding.EncodeToString(sum[:]),
		Size:     total,
		Files:    rels,
	}, nil
}
