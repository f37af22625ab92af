// Package source fetches the compose manifest to rewrite, either from a local
// file or from a path inside a git repository.
package source

import (
	"context"
	"errors"
	"fmt"
	"os"
)

var ErrNotFound = errors.New("compose file not found")

type Source interface {
	Fetch(ctx context.Context) ([]byte, error)
	String() string
}

// File reads a compose file from disk. "-" reads stdin.
type File struct {
	Path string
}

func (f File) Fetch(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.Path == "-" {
		return readAll(os.Stdin)
	}
	b, err := os.ReadFile(f.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, f.Path)
	}
	return b, err
}

func (f File) String() string { return f.Path }
