package swarm

import (
	"context"
	"errors"
	"fmt"

	"github.com/cmmoran/composeiso/internal/manifest"
)

var ErrUnknownDriver = errors.New("unknown driver")

// Client reports which names are already taken on the deployment target.
type Client interface {
	// Existing returns the names of every object of kind on the target.
	Existing(ctx context.Context, kind manifest.Kind) (map[string]struct{}, error)
	// Containers returns the names of every container, running or not.
	Containers(ctx context.Context) (map[string]struct{}, error)
	Close() error
}

type NoopClient struct{}

func NewNoopClient() *NoopClient { return &NoopClient{} }

func (c *NoopClient) Existing(ctx context.Context, kind manifest.Kind) (map[string]struct{}, error) {
	_ = ctx
	_ = kind
	return map[string]struct{}{}, nil
}

func (c *NoopClient) Containers(ctx context.Context) (map[string]struct{}, error) {
	_ = ctx
	return map[string]struct{}{}, nil
}

func (c *NoopClient) Close() error { return nil }

// NewClient returns the client registered for driver ("docker" or "noop").
func NewClient(driver string) (Client, error) {
	switch driver {
	case "", "noop":
		return NewNoopClient(), nil
	case "docker":
		cli, err := NewDockerClient()
		if err != nil {
			return nil, err
		}
		return cli, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
}
