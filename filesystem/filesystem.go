package filesystem

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
)

// Error constants for better error handling
var (
	ErrFileNotFound = fmt.Errorf("filesystem: file not found")
	ErrInvalidPath  = fmt.Errorf("filesystem: invalid path")
	ErrIsDirectory  = fmt.Errorf("filesystem: path is a directory")
)

// Filesystem is a read-only view of one directory tree. Paths are
// slash-separated and relative to that directory; "" names the directory
// itself. No path, symlinks included, resolves outside of it.
type Filesystem interface {
	ReadFile(path string) ([]byte, error)

	IsFile(path string) (bool, error)
	IsDirectory(path string) (bool, error)

	// GetAbsolutePath returns the host path of path, for handing to other
	// processes.
	GetAbsolutePath(path string) (string, error)

	Close() error
}

type rootedFileSystem struct {
	dir  string
	root *os.Root
}

// NewRootedFileSystem opens dir as the root of a Filesystem.
func NewRootedFileSystem(dir string) (Filesystem, error) {
	absolute, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}

	root, err := os.OpenRoot(absolute)
	if err != nil {
		return nil, fmt.Errorf("filesystem: open root %s: %w", absolute, err)
	}

	return &rootedFileSystem{dir: absolute, root: root}, nil
}

func (filesystem *rootedFileSystem) name(path string) (string, error) {
	if path == "" {
		return ".", nil
	}
	name := filepath.FromSlash(path)
	if filepath.IsAbs(name) || !filepath.IsLocal(name) {
		return "", fmt.Errorf("%w: %s", ErrInvalidPath, path)
	}
	return name, nil
}

func (filesystem *rootedFileSystem) stat(path string) (os.FileInfo, error) {
	name, err := filesystem.name(path)
	if err != nil {
		return nil, err
	}
	return filesystem.root.Stat(name)
}

func (filesystem *rootedFileSystem) ReadFile(path string) ([]byte, error) {
	name, err := filesystem.name(path)
	if err != nil {
		return nil, err
	}

	file, err := filesystem.root.Open(name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return nil, err
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil {
			slog.Error("closing file error", "error", closeErr)
		}
	}()

	info, err := file.Stat()
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrIsDirectory, path)
	}

	return io.ReadAll(file)
}

// IsFile implements Filesystem.
func (filesystem *rootedFileSystem) IsFile(path string) (bool, error) {
	info, err := filesystem.stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return !info.IsDir(), nil
}

// IsDirectory implements Filesystem.
func (filesystem *rootedFileSystem) IsDirectory(path string) (bool, error) {
	info, err := filesystem.stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return info.IsDir(), nil
}

// GetAbsolutePath implements Filesystem.
func (filesystem *rootedFileSystem) GetAbsolutePath(path string) (string, error) {
	name, err := filesystem.name(path)
	if err != nil {
		return "", err
	}
	return filepath.Join(filesystem.dir, name), nil
}

func (filesystem *rootedFileSystem) Close() error {
	return filesystem.root.Close()
}
