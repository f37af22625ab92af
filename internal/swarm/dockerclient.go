package swarm

import (
	"context"
	"fmt"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/api/types/swarm"
	"github.com/docker/docker/api/types/volume"
	dclient "github.com/docker/docker/client"

	"github.com/cmmoran/composeiso/internal/manifest"
)

// DockerClient implements Client using the official Docker SDK.
type DockerClient struct {
	c *dclient.Client
}

func NewDockerClient() (*DockerClient, error) {
	cli, err := dclient.NewClientWithOpts(dclient.FromEnv, dclient.WithAPIVersionNegotiation())
	if err != nil {
		return nil, err
	}
	return &DockerClient{c: cli}, nil
}

func (d *DockerClient) Close() error { return d.c.Close() }

// Existing lists objects of kind. Services come from the swarm when this node
// is a manager, otherwise from the compose labels of local containers.
func (d *DockerClient) Existing(ctx context.Context, kind manifest.Kind) (map[string]struct{}, error) {
	out := map[string]struct{}{}
	switch kind {
	case manifest.KindService:
		manager, err := d.isManager(ctx)
		if err != nil {
			return nil, err
		}
		if !manager {
			return d.composeServices(ctx)
		}
		svcs, err := d.c.ServiceList(ctx, swarm.ServiceListOptions{})
		if err != nil {
			return nil, fmt.Errorf("list services: %w", err)
		}
		for _, s := range svcs {
			out[s.Spec.Annotations.Name] = struct{}{}
		}
	case manifest.KindNetwork:
		nws, err := d.c.NetworkList(ctx, network.ListOptions{})
		if err != nil {
			return nil, fmt.Errorf("list networks: %w", err)
		}
		for _, n := range nws {
			out[n.Name] = struct{}{}
		}
	case manifest.KindVolume:
		vols, err := d.c.VolumeList(ctx, volume.ListOptions{})
		if err != nil {
			return nil, fmt.Errorf("list volumes: %w", err)
		}
		for _, v := range vols.Volumes {
			out[v.Name] = struct{}{}
		}
	case manifest.KindConfig, manifest.KindSecret:
		manager, err := d.isManager(ctx)
		if err != nil || !manager {
			// configs and secrets only exist in swarm mode
			return out, err
		}
		if kind == manifest.KindConfig {
			cfgs, err := d.c.ConfigList(ctx, swarm.ConfigListOptions{})
			if err != nil {
				return nil, fmt.Errorf("list configs: %w", err)
			}
			for _, c := range cfgs {
				out[c.Spec.Name] = struct{}{}
			}
			return out, nil
		}
		secs, err := d.c.SecretList(ctx, swarm.SecretListOptions{})
		if err != nil {
			return nil, fmt.Errorf("list secrets: %w", err)
		}
		for _, s := range secs {
			out[s.Spec.Name] = struct{}{}
		}
	default:
		return nil, fmt.Errorf("%w: %q", manifest.ErrUnknownKind, kind)
	}
	return out, nil
}

func (d *DockerClient) Containers(ctx context.Context) (map[string]struct{}, error) {
	cs, err := d.c.ContainerList(ctx, container.ListOptions{All: true})
	if err != nil {
		return nil, fmt.Errorf("list containers: %w", err)
	}
	out := map[string]struct{}{}
	for _, c := range cs {
		for _, n := range c.Names {
			out[strings.TrimPrefix(n, "/")] = struct{}{}
		}
	}
	return out, nil
}

func (d *DockerClient) composeServices(ctx context.Context) (map[string]struct{}, error) {
	cs, err := d.c.ContainerList(ctx, container.ListOptions{All: true})
	if err != nil {
		return nil, fmt.Errorf("list containers: %w", err)
	}
	out := map[string]struct{}{}
	for _, c := range cs {
		if svc, ok := serviceOf(c.Labels); ok {
			out[svc] = struct{}{}
		}
	}
	return out, nil
}

func (d *DockerClient) isManager(ctx context.Context) (bool, error) {
	info, err := d.c.Info(ctx)
	if err != nil {
		return false, fmt.Errorf("docker info: %w", err)
	}
	return info.Swarm.ControlAvailable, nil
}
