package blob

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Dir is a Store backed by a local directory. Keys are slash-separated paths
// relative to the root, so a bucket layout like "village-history.md" next to
// "originals/village-history.pdf" maps directly onto the filesystem.
//
// ETags are content hashes, so a re-upload with identical bytes keeps its
// ETag stable.
type Dir struct {
	root string
}

// NewDir creates a Dir store rooted at path. The directory must exist.
func NewDir(path string) (*Dir, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving blob dir: %w", err)
	}

	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("stat blob dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("blob path %q is not a directory", abs)
	}

	return &Dir{root: abs}, nil
}

// List walks the directory and returns every regular file as an Object.
func (d *Dir) List(ctx context.Context) ([]Object, error) {
	var objects []Object

	err := filepath.WalkDir(d.root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if entry.IsDir() {
			// Hidden directories are not part of the bucket.
			if entry.Name() != "." && strings.HasPrefix(entry.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(entry.Name(), ".") {
			return nil
		}

		info, err := entry.Info()
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(d.root, path)
		if err != nil {
			return err
		}

		etag, err := hashFile(path)
		if err != nil {
			return err
		}

		objects = append(objects, Object{
			Key:          filepath.ToSlash(rel),
			Size:         info.Size(),
			ETag:         etag,
			LastModified: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing blob dir: %w", err)
	}

	return objects, nil
}

// Get reads the object content. Missing or out-of-root keys return
// ErrNotFound.
func (d *Dir) Get(ctx context.Context, key string) (string, error) {
	if ctx.Err() != nil {
		return "", ctx.Err()
	}

	path, err := d.keyPath(key)
	if err != nil {
		return "", err
	}

	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return "", fmt.Errorf("reading object %q: %w", key, err)
	}
	return string(content), nil
}

// keyPath maps a key onto the filesystem, rejecting traversal outside the
// root.
func (d *Dir) keyPath(key string) (string, error) {
	path := filepath.Join(d.root, filepath.FromSlash(key))
	if path != d.root && !strings.HasPrefix(path, d.root+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return path, nil
}

// KeyPath exposes the absolute path for a key. Used by the watcher to map
// filesystem events back to keys.
func (d *Dir) KeyPath(key string) (string, error) {
	return d.keyPath(key)
}

// Root returns the absolute root directory of the bucket.
func (d *Dir) Root() string {
	return d.root
}

func hashFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:16]), nil
}
