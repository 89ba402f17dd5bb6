package infra

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"github.com/orb-community/orb-acceptance/internal/config"
	"github.com/orb-community/orb-acceptance/pkg/payload"
)

// Container lifecycle states as reported by podman.
const (
	StateCreated = "created"
	StateRunning = "running"
	StateExited  = "exited"
	StateStopped = "stopped"
)

const agentContainerPrefix = "orb-acceptance-agent-"

// Runner is the subset of PodmanRunner the agent stack needs.
type Runner interface {
	StartContainer(cfg *ContainerConfig) (string, error)
	StopContainer(id string) error
	RestartContainer(id string) error
	RemoveContainer(id string) error
	State(id string) (string, error)
	Logs(id string) ([]string, error)
}

// AgentCredentials are the values the control plane returns when an agent is created.
type AgentCredentials struct {
	ID        string
	ChannelID string
	Key       string
}

// AgentStack starts Orb agent containers and keeps track of them for removal.
type AgentStack struct {
	runner Runner
	cfg    config.Configuration

	mu      sync.Mutex
	started []string
}

func NewAgentStack(runner Runner, cfg config.Configuration) *AgentStack {
	return &AgentStack{runner: runner, cfg: cfg}
}

// StartWithCredentials runs an agent provisioned through the API, passing its
// credentials as environment variables.
func (s *AgentStack) StartWithCredentials(creds AgentCredentials) (string, error) {
	host, err := cloudAddress(s.cfg.Orb.URL)
	if err != nil {
		return "", err
	}

	env := map[string]string{
		"ORB_CLOUD_ADDRESS":           host,
		"ORB_CLOUD_MQTT_ID":           creds.ID,
		"ORB_CLOUD_MQTT_CHANNEL_ID":   creds.ChannelID,
		"ORB_CLOUD_MQTT_KEY":          creds.Key,
		"PKTVISOR_PCAP_IFACE_DEFAULT": s.cfg.Agent.Interface,
	}
	if !s.cfg.Orb.VerifyTLS {
		env["ORB_TLS_VERIFY"] = "false"
	}

	return s.start(NewContainerConfig(agentContainerPrefix+payload.RandomString(8), s.cfg.Agent.Image).
		WithHostNetwork().
		WithEnvVars(env))
}

// StartWithConfigFile writes the agent configuration under the config
// directory and runs an agent reading it through a bind mount.
func (s *AgentStack) StartWithConfigFile(file *payload.AgentConfigFile) (string, error) {
	data, err := file.Marshal()
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(s.cfg.Agent.ConfigDir, 0o755); err != nil {
		return "", fmt.Errorf("creating agent config directory: %w", err)
	}
	hostPath := filepath.Join(s.cfg.Agent.ConfigDir, filepath.Base(file.Path()))
	if err := os.WriteFile(hostPath, data, 0o644); err != nil {
		return "", fmt.Errorf("writing agent config file: %w", err)
	}
	zap.S().Debugw("agent config file written", "path", hostPath)

	return s.start(NewContainerConfig(agentContainerPrefix+payload.RandomString(8), s.cfg.Agent.Image).
		WithHostNetwork().
		WithBindMount(hostPath, file.Path()).
		WithCmd("run", "-c", file.Path()))
}

func (s *AgentStack) start(cfg *ContainerConfig) (string, error) {
	id, err := s.runner.StartContainer(cfg)
	if err != nil {
		return "", fmt.Errorf("starting agent container %s: %w", cfg.Name(), err)
	}

	s.mu.Lock()
	s.started = append(s.started, id)
	s.mu.Unlock()

	zap.S().Infow("agent container started", "name", cfg.Name(), "id", id)
	return id, nil
}

func (s *AgentStack) Stop(id string) error {
	return s.runner.StopContainer(id)
}

func (s *AgentStack) Restart(id string) error {
	return s.runner.RestartContainer(id)
}

func (s *AgentStack) State(id string) (string, error) {
	return s.runner.State(id)
}

func (s *AgentStack) Logs(id string) ([]string, error) {
	return s.runner.Logs(id)
}

// Started returns the ids of the containers still tracked by the stack.
func (s *AgentStack) Started() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.started...)
}

// RemoveAll force-removes every container the stack started and returns
// the joined errors of the removals that failed.
func (s *AgentStack) RemoveAll() error {
	s.mu.Lock()
	ids := s.started
	s.started = nil
	s.mu.Unlock()

	var errs []error
	for _, id := range ids {
		if err := s.runner.RemoveContainer(id); err != nil {
			errs = append(errs, fmt.Errorf("removing container %s: %w", id, err))
			continue
		}
		zap.S().Debugw("agent container removed", "id", id)
	}
	return errors.Join(errs...)
}

// cloudAddress returns the host agents connect to for the given API url.
func cloudAddress(apiURL string) (string, error) {
	u, err := url.Parse(apiURL)
	if err != nil {
		return "", fmt.Errorf("parsing orb url: %w", err)
	}
	if u.Hostname() == "" {
		return "", fmt.Errorf("orb url %q has no host", apiURL)
	}
	return u.Hostname(), nil
}

// FreePort asks the kernel for a TCP port nobody listens on.
func FreePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, fmt.Errorf("finding a free port: %w", err)
	}
	defer l.Close()

	_, port, err := net.SplitHostPort(l.Addr().String())
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(port)
}
