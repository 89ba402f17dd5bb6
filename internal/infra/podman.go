package infra

import (
	"context"
	"fmt"
	"strings"

	"github.com/containers/podman/v5/pkg/bindings"
	"github.com/containers/podman/v5/pkg/bindings/containers"
	"go.uber.org/zap"
)

type PodmanRunner struct {
	conn context.Context
}

func NewPodmanRunner(socket string) (*PodmanRunner, error) {
	conn, err := bindings.NewConnection(context.Background(), socket)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to podman: %w", err)
	}
	return &PodmanRunner{conn: conn}, nil
}

func (p *PodmanRunner) StartContainer(cfg *ContainerConfig) (string, error) {
	createResponse, err := containers.CreateWithSpec(p.conn, cfg.spec(), nil)
	if err != nil {
		return "", fmt.Errorf("failed to create container: %w", err)
	}

	if err := containers.Start(p.conn, createResponse.ID, nil); err != nil {
		return "", fmt.Errorf("failed to start container: %w", err)
	}

	zap.S().Debugw("container started", "name", cfg.name, "id", createResponse.ID, "image", cfg.image)
	return createResponse.ID, nil
}

func (p *PodmanRunner) StopContainer(id string) error {
	if err := containers.Stop(p.conn, id, nil); err != nil {
		return fmt.Errorf("failed to stop container: %w", err)
	}
	return nil
}

func (p *PodmanRunner) RestartContainer(id string) error {
	if err := containers.Restart(p.conn, id, nil); err != nil {
		return fmt.Errorf("failed to restart container: %w", err)
	}
	return nil
}

func (p *PodmanRunner) RemoveContainer(id string) error {
	_, err := containers.Remove(p.conn, id, new(containers.RemoveOptions).WithForce(true))
	if err != nil {
		return fmt.Errorf("failed to remove container: %w", err)
	}
	return nil
}

// State returns the lifecycle status of the container (created, running, exited...).
func (p *PodmanRunner) State(id string) (string, error) {
	data, err := containers.Inspect(p.conn, id, nil)
	if err != nil {
		return "", fmt.Errorf("failed to inspect container: %w", err)
	}
	return data.State.Status, nil
}

// Logs returns every line the container wrote so far, stdout and stderr
// interleaved in arrival order.
func (p *PodmanRunner) Logs(id string) ([]string, error) {
	stdout := make(chan string)
	stderr := make(chan string)
	done := make(chan struct{})
	collected := make(chan []string)

	go func() {
		var lines []string
		for {
			select {
			case l := <-stdout:
				lines = append(lines, splitLines(l)...)
			case l := <-stderr:
				lines = append(lines, splitLines(l)...)
			case <-done:
				collected <- lines
				return
			}
		}
	}()

	opts := new(containers.LogOptions).WithStdout(true).WithStderr(true)
	err := containers.Logs(p.conn, id, opts, stdout, stderr)
	close(done)
	lines := <-collected
	if err != nil {
		return nil, fmt.Errorf("failed to get logs: %w", err)
	}
	return lines, nil
}

func splitLines(chunk string) []string {
	chunk = strings.TrimRight(chunk, "\r\n")
	if chunk == "" {
		return nil
	}
	return strings.Split(chunk, "\n")
}
