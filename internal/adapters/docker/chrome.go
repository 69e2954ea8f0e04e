package docker

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/manthysbr/firewerk/internal/core/domain"
	"github.com/manthysbr/firewerk/internal/core/ports"
)

const (
	devtoolsPort   = nat.Port("9222/tcp")
	labelManaged   = "firewerk.managed"
	labelJobID     = "firewerk.job_id"
	containerShm   = 1 << 29
	readinessLimit = 30 * time.Second
)

// dockerAPI is the subset of the engine API the provisioner needs.
type dockerAPI interface {
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerInspect(ctx context.Context, containerID string) (container.InspectResponse, error)
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
	ContainerList(ctx context.Context, options container.ListOptions) ([]container.Summary, error)
	ImagePull(ctx context.Context, refStr string, options image.PullOptions) (io.ReadCloser, error)
}

// ChromeProvisioner runs one headless Chrome container per job and exposes
// its DevTools port on the loopback interface.
type ChromeProvisioner struct {
	cli    dockerAPI
	image  string
	logger *slog.Logger
	probe  func(ctx context.Context, endpoint string) error
}

// NewChromeProvisioner connects to the Docker daemon from the environment.
func NewChromeProvisioner(logger *slog.Logger, image string) (*ChromeProvisioner, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return newChromeProvisioner(logger, cli, image), nil
}

func newChromeProvisioner(logger *slog.Logger, cli dockerAPI, image string) *ChromeProvisioner {
	if image == "" {
		image = "chromedp/headless-shell:latest"
	}
	return &ChromeProvisioner{cli: cli, image: image, logger: logger, probe: probeDevTools}
}

var _ ports.BrowserProvisioner = (*ChromeProvisioner)(nil)

func containerName(jobID domain.JobID) string {
	return "firewerk-chrome-" + string(jobID)
}

func (p *ChromeProvisioner) Provision(ctx context.Context, jobID domain.JobID) (ports.Endpoint, error) {
	cfg := &container.Config{
		Image:        p.image,
		ExposedPorts: nat.PortSet{devtoolsPort: struct{}{}},
		Labels: map[string]string{
			labelManaged: "true",
			labelJobID:   string(jobID),
		},
	}
	hostCfg := &container.HostConfig{
		PortBindings: nat.PortMap{
			devtoolsPort: []nat.PortBinding{{HostIP: "127.0.0.1", HostPort: ""}},
		},
		ShmSize: containerShm,
	}
	name := containerName(jobID)

	resp, err := p.cli.ContainerCreate(ctx, cfg, hostCfg, &network.NetworkingConfig{}, nil, name)
	if client.IsErrNotFound(err) {
		p.logger.Info("pulling browser image", "image", p.image)
		reader, pullErr := p.cli.ImagePull(ctx, p.image, image.PullOptions{})
		if pullErr != nil {
			return ports.Endpoint{}, fmt.Errorf("failed to pull image %s: %w", p.image, pullErr)
		}
		_, _ = io.Copy(io.Discard, reader)
		reader.Close()
		resp, err = p.cli.ContainerCreate(ctx, cfg, hostCfg, &network.NetworkingConfig{}, nil, name)
	}
	if err != nil {
		return ports.Endpoint{}, fmt.Errorf("failed to create container: %w", err)
	}

	if err := p.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		p.remove(resp.ID)
		return ports.Endpoint{}, fmt.Errorf("failed to start container: %w", err)
	}

	inspect, err := p.cli.ContainerInspect(ctx, resp.ID)
	if err != nil {
		p.remove(resp.ID)
		return ports.Endpoint{}, fmt.Errorf("failed to inspect container: %w", err)
	}
	var hostPort string
	if inspect.NetworkSettings != nil {
		if bindings := inspect.NetworkSettings.Ports[devtoolsPort]; len(bindings) > 0 {
			hostPort = bindings[0].HostPort
		}
	}
	if hostPort == "" {
		p.remove(resp.ID)
		return ports.Endpoint{}, fmt.Errorf("container %s exposes no devtools port", resp.ID)
	}

	endpoint := ports.Endpoint{ID: resp.ID, CDPURL: "ws://127.0.0.1:" + hostPort}
	if err := p.waitReady(ctx, endpoint.CDPURL); err != nil {
		p.remove(resp.ID)
		return ports.Endpoint{}, fmt.Errorf("browser in %s never became ready: %w", resp.ID, err)
	}
	p.logger.Info("browser container ready", "job_id", jobID, "container_id", resp.ID, "endpoint", endpoint.CDPURL)
	return endpoint, nil
}

func (p *ChromeProvisioner) waitReady(ctx context.Context, endpoint string) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxInterval = time.Second
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, p.probe(ctx, endpoint)
	}, backoff.WithBackOff(b), backoff.WithMaxElapsedTime(readinessLimit))
	return err
}

func probeDevTools(ctx context.Context, endpoint string) error {
	url := "http" + endpoint[len("ws"):] + "/json/version"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return backoff.Permanent(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("devtools answered %s", resp.Status)
	}
	return nil
}

// Release force-removes the container. A container that is already gone is
// not an error.
func (p *ChromeProvisioner) Release(ctx context.Context, id string) error {
	err := p.cli.ContainerRemove(ctx, id, container.RemoveOptions{Force: true})
	if err != nil && !client.IsErrNotFound(err) {
		return fmt.Errorf("failed to remove container: %w", err)
	}
	return nil
}

func (p *ChromeProvisioner) remove(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := p.Release(ctx, id); err != nil {
		p.logger.Warn("failed to clean up browser container", "container_id", id, "error", err)
	}
}

// Reap removes browser containers left behind by an earlier process.
func (p *ChromeProvisioner) Reap(ctx context.Context) (int, error) {
	args := filters.NewArgs()
	args.Add("label", labelManaged+"=true")
	containers, err := p.cli.ContainerList(ctx, container.ListOptions{All: true, Filters: args})
	if err != nil {
		return 0, err
	}
	n := 0
	for _, c := range containers {
		if err := p.Release(ctx, c.ID); err != nil {
			p.logger.Warn("failed to reap browser container", "container_id", c.ID, "job_id", c.Labels[labelJobID], "error", err)
			continue
		}
		n++
	}
	return n, nil
}
