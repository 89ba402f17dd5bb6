package steps

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/orb-community/orb-acceptance/internal/config"
	"github.com/orb-community/orb-acceptance/internal/diag"
	"github.com/orb-community/orb-acceptance/internal/infra"
	"github.com/orb-community/orb-acceptance/internal/orb"
	"github.com/orb-community/orb-acceptance/pkg/payload"
	"github.com/orb-community/orb-acceptance/pkg/poll"
	"github.com/orb-community/orb-acceptance/pkg/probe"
)

// AgentRunner starts agent containers and reads their logs and state.
type AgentRunner interface {
	probe.LogSource
	probe.LifecycleInspector
	StartWithCredentials(creds infra.AgentCredentials) (string, error)
	StartWithConfigFile(file *payload.AgentConfigFile) (string, error)
	RemoveAll() error
}

// FleetReader reads agent state straight from the fleet database.
type FleetReader interface {
	AgentStateFetcher(agentID string) probe.Fetcher[string]
	AgentGroupsFetcher(agentID string) probe.Fetcher[[]string]
}

// World is the state shared by the steps of one scenario.
type World struct {
	cfg      config.Configuration
	client   *orb.Client
	runner   AgentRunner
	fleet    FleetReader
	observer *diag.Observer

	Agent       *orb.Agent
	ContainerID string
	Groups      []*orb.Group
	Policies    []*orb.Policy
	Datasets    []*orb.Dataset
	Sinks       []*orb.Sink

	// DatasetAppliedAt is when the last dataset was created.
	DatasetAppliedAt time.Time
	// ConsideredSince is when the last policy removal was requested.
	ConsideredSince time.Time
	// ResetAt is when the last remote reset was requested.
	ResetAt time.Time
}

type Option func(*World)

// WithFleetDB enables the waiters reading the fleet database.
func WithFleetDB(r FleetReader) Option {
	return func(w *World) {
		w.fleet = r
	}
}

// WithObserver adds the recent API exchanges to failure diagnostics.
func WithObserver(o *diag.Observer) Option {
	return func(w *World) {
		w.observer = o
	}
}

func NewWorld(cfg config.Configuration, client *orb.Client, runner AgentRunner, opts ...Option) *World {
	w := &World{cfg: cfg, client: client, runner: runner}
	for _, o := range opts {
		o(w)
	}
	return w
}

func (w *World) Client() *orb.Client {
	return w.client
}

func (w *World) pollOptions() []poll.Option {
	return []poll.Option{
		poll.WithInterval(w.cfg.Timeouts.Interval),
		poll.WithProbeTimeout(w.cfg.Timeouts.Request),
	}
}

// CreateAgent registers an agent in the control plane and makes it the current one.
func (w *World) CreateAgent(ctx context.Context, tags map[string]string) (*orb.Agent, error) {
	a, err := w.client.CreateAgent(ctx, payload.AgentRequest{Name: payload.RandomName(payload.AgentPrefix), OrbTags: tags})
	if err != nil {
		return nil, err
	}
	w.Agent = a
	zap.S().Infow("agent created", "id", a.ID, "name", a.Name)
	return a, nil
}

// StartAgent runs a container for the current agent using its credentials.
func (w *World) StartAgent() (string, error) {
	if w.Agent == nil {
		return "", fmt.Errorf("no agent created")
	}
	id, err := w.runner.StartWithCredentials(infra.AgentCredentials{
		ID:        w.Agent.ID,
		ChannelID: w.Agent.ChannelID,
		Key:       w.Agent.Key,
	})
	if err != nil {
		return "", err
	}
	w.ContainerID = id
	return id, nil
}

// ProvisionAgent creates an agent, runs it and waits until it is online.
func (w *World) ProvisionAgent(ctx context.Context, tags map[string]string) (*orb.Agent, error) {
	if _, err := w.CreateAgent(ctx, tags); err != nil {
		return nil, err
	}
	if _, err := w.StartAgent(); err != nil {
		return nil, err
	}
	if err := w.EnsureAgentStatus(w.Agent.ID, orb.AgentOnline); err != nil {
		return nil, err
	}
	return w.Agent, nil
}

// SelfProvisionAgent runs an agent from a config file with an auto provision
// token and waits until the control plane reports it with the given status.
func (w *World) SelfProvisionAgent(ctx context.Context, tags map[string]string, apiPort int, status string) (*orb.Agent, error) {
	token, err := w.client.Token(ctx)
	if err != nil {
		return nil, err
	}

	name := payload.RandomName(payload.AgentPrefix)
	file := payload.NewAgentConfigFile(name, w.cfg.Orb.URL, w.cfg.Orb.MQTTURL, w.cfg.Orb.VerifyTLS).
		Pktvisor(apiPort).
		AutoProvision(token).
		Tags(tags).
		Tap("default_pcap", payload.InputPcap, map[string]any{"iface": w.cfg.Agent.Interface}, nil)

	id, err := w.runner.StartWithConfigFile(file)
	if err != nil {
		return nil, err
	}
	w.ContainerID = id

	a, err := w.EnsureAgentByName(name)
	if err != nil {
		return nil, err
	}
	w.Agent = a
	if err := w.EnsureAgentStatus(a.ID, status); err != nil {
		return nil, err
	}
	return a, nil
}

// ResetAgent asks the current agent to restart its backends.
func (w *World) ResetAgent(ctx context.Context) error {
	w.ResetAt = time.Now()
	return w.client.ResetAgent(ctx, w.Agent.ID)
}

func (w *World) CreateGroup(ctx context.Context, tags map[string]string) (*orb.Group, error) {
	g, err := w.client.CreateGroup(ctx, payload.GroupRequest{Name: payload.RandomName(payload.GroupPrefix), Tags: tags})
	if err != nil {
		return nil, err
	}
	w.Groups = append(w.Groups, g)
	return g, nil
}

func (w *World) CreatePolicy(ctx context.Context, req payload.PolicyRequest) (*orb.Policy, error) {
	p, err := w.client.CreatePolicy(ctx, req)
	if err != nil {
		return nil, err
	}
	w.Policies = append(w.Policies, p)
	return p, nil
}

func (w *World) CreateSink(ctx context.Context, remoteHost, username, password string) (*orb.Sink, error) {
	s, err := w.client.CreateSink(ctx, payload.NewPrometheusSink(payload.RandomName(payload.SinkPrefix), remoteHost, username, password))
	if err != nil {
		return nil, err
	}
	w.Sinks = append(w.Sinks, s)
	return s, nil
}

// CreateDataset links a policy to a group and records when it happened.
func (w *World) CreateDataset(ctx context.Context, group *orb.Group, policy *orb.Policy, sinks ...*orb.Sink) (*orb.Dataset, error) {
	ids := make([]string, 0, len(sinks))
	for _, s := range sinks {
		ids = append(ids, s.ID)
	}
	d, err := w.client.CreateDataset(ctx, payload.DatasetRequest{
		Name:          payload.RandomName(payload.DatasetPrefix),
		AgentGroupID:  group.ID,
		AgentPolicyID: policy.ID,
		SinkIDs:       ids,
	})
	if err != nil {
		return nil, err
	}
	w.Datasets = append(w.Datasets, d)
	w.DatasetAppliedAt = time.Now()
	return d, nil
}

// RemovePolicy deletes a policy and starts considering logs from now on.
func (w *World) RemovePolicy(ctx context.Context, policy *orb.Policy) error {
	w.ConsideredSince = time.Now()
	if err := w.client.DeletePolicy(ctx, policy.ID); err != nil {
		return err
	}
	for i, p := range w.Policies {
		if p.ID == policy.ID {
			w.Policies = append(w.Policies[:i], w.Policies[i+1:]...)
			break
		}
	}
	return nil
}

// PolicyIDs returns the ids of the policies created in this world.
func (w *World) PolicyIDs() []string {
	ids := make([]string, 0, len(w.Policies))
	for _, p := range w.Policies {
		ids = append(ids, p.ID)
	}
	return ids
}

// GroupIDs returns the ids of the groups created in this world.
func (w *World) GroupIDs() []string {
	ids := make([]string, 0, len(w.Groups))
	for _, g := range w.Groups {
		ids = append(ids, g.ID)
	}
	return ids
}

// Cleanup removes the containers and then every prefixed resource.
func (w *World) Cleanup(ctx context.Context) error {
	var errs []error
	if err := w.runner.RemoveAll(); err != nil {
		errs = append(errs, err)
	}
	if _, err := NewJanitor(w.client, w.cfg.Cleanup.Workers).Clean(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
