// Package fsbridge exposes file operations that a sufficiently capable
// provider may serve remotely, with a local fallback that defines the error
// contract. Callers hold a Service and never learn which side answered.
package fsbridge

import (
	"context"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
)

// Service is the operation surface shared by the local implementation and
// the capability-gated adapter. Errors follow os conventions: a missing
// file is an fs.ErrNotExist wrapped in *fs.PathError carrying the path.
type Service interface {
	ReadTextFile(ctx context.Context, path string) (string, error)
	WriteTextFile(ctx context.Context, path, content string) error
	FindFiles(ctx context.Context, dir, pattern string) ([]string, error)
}

// Local serves every operation from the host filesystem.
type Local struct{}

func NewLocal() *Local {
	return &Local{}
}

func (l *Local) ReadTextFile(_ context.Context, name string) (string, error) {
	data, err := os.ReadFile(name)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (l *Local) WriteTextFile(_ context.Context, name, content string) error {
	return os.WriteFile(name, []byte(content), 0o644)
}

// FindFiles walks dir and returns the paths whose base name matches the
// glob pattern, sorted. Walk errors on unreadable subtrees abort the search;
// the caller decides whether a partial answer would have been acceptable.
func (l *Local) FindFiles(ctx context.Context, dir, pattern string) ([]string, error) {
	var matches []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			return nil
		}
		ok, matchErr := path.Match(pattern, d.Name())
		if matchErr != nil {
			return matchErr
		}
		if ok {
			matches = append(matches, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	return matches, nil
}

var _ Service = (*Local)(nil)
