package orb

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/orb-community/orb-acceptance/pkg/payload"
)

const (
	agentsPath   = "/api/v1/agents"
	groupsPath   = "/api/v1/agent_groups"
	policiesPath = "/api/v1/policies/agent"
	datasetsPath = "/api/v1/policies/dataset"
	sinksPath    = "/api/v1/sinks"
)

func (c *Client) CreateAgent(ctx context.Context, req payload.AgentRequest) (*Agent, error) {
	var a Agent
	if err := c.do(ctx, http.MethodPost, agentsPath, nil, req, &a, http.StatusCreated); err != nil {
		return nil, fmt.Errorf("creating agent %s: %w", req.Name, err)
	}
	return &a, nil
}

func (c *Client) GetAgent(ctx context.Context, id string) (*Agent, error) {
	var a Agent
	if err := c.get(ctx, "agent", agentsPath, id, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

func (c *Client) ListAgents(ctx context.Context) ([]Agent, error) {
	return listAll[Agent](ctx, c, agentsPath, "agents")
}

func (c *Client) EditAgent(ctx context.Context, id string, req payload.AgentRequest) (*Agent, error) {
	var a Agent
	if err := c.do(ctx, http.MethodPut, agentsPath+"/"+id, nil, req, &a, http.StatusOK); err != nil {
		return nil, fmt.Errorf("editing agent %s: %w", id, err)
	}
	return &a, nil
}

func (c *Client) DeleteAgent(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, agentsPath+"/"+id, nil, nil, nil, http.StatusNoContent)
}

// ResetAgent asks the agent to restart its backends.
func (c *Client) ResetAgent(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, agentsPath+"/"+id+"/rpc/reset", nil, nil, nil, http.StatusOK)
}

func (c *Client) CreateGroup(ctx context.Context, req payload.GroupRequest) (*Group, error) {
	var g Group
	if err := c.do(ctx, http.MethodPost, groupsPath, nil, req, &g, http.StatusCreated); err != nil {
		return nil, fmt.Errorf("creating agent group %s: %w", req.Name, err)
	}
	return &g, nil
}

func (c *Client) GetGroup(ctx context.Context, id string) (*Group, error) {
	var g Group
	if err := c.get(ctx, "agent group", groupsPath, id, &g); err != nil {
		return nil, err
	}
	return &g, nil
}

func (c *Client) ListGroups(ctx context.Context) ([]Group, error) {
	return listAll[Group](ctx, c, groupsPath, "agentGroups")
}

func (c *Client) EditGroup(ctx context.Context, id string, req payload.GroupRequest) (*Group, error) {
	var g Group
	if err := c.do(ctx, http.MethodPut, groupsPath+"/"+id, nil, req, &g, http.StatusOK); err != nil {
		return nil, fmt.Errorf("editing agent group %s: %w", id, err)
	}
	return &g, nil
}

func (c *Client) DeleteGroup(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, groupsPath+"/"+id, nil, nil, nil, http.StatusNoContent)
}

func (c *Client) CreatePolicy(ctx context.Context, req payload.PolicyRequest) (*Policy, error) {
	var p Policy
	if err := c.do(ctx, http.MethodPost, policiesPath, nil, req, &p, http.StatusCreated); err != nil {
		return nil, fmt.Errorf("creating policy %s: %w", req.Name, err)
	}
	return &p, nil
}

func (c *Client) GetPolicy(ctx context.Context, id string) (*Policy, error) {
	var p Policy
	if err := c.get(ctx, "policy", policiesPath, id, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) ListPolicies(ctx context.Context) ([]Policy, error) {
	return listAll[Policy](ctx, c, policiesPath, "data")
}

func (c *Client) EditPolicy(ctx context.Context, id string, req payload.PolicyRequest) (*Policy, error) {
	var p Policy
	if err := c.do(ctx, http.MethodPut, policiesPath+"/"+id, nil, req, &p, http.StatusOK); err != nil {
		return nil, fmt.Errorf("editing policy %s: %w", id, err)
	}
	return &p, nil
}

func (c *Client) DeletePolicy(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, policiesPath+"/"+id, nil, nil, nil, http.StatusNoContent)
}

// DuplicatePolicy copies a policy. An empty name lets the control plane pick one.
func (c *Client) DuplicatePolicy(ctx context.Context, id, name string) (*Policy, error) {
	var body any
	if name != "" {
		body = map[string]string{"name": name}
	}
	var p Policy
	if err := c.do(ctx, http.MethodPost, policiesPath+"/"+id+"/duplicate", nil, body, &p, http.StatusCreated); err != nil {
		return nil, fmt.Errorf("duplicating policy %s: %w", id, err)
	}
	return &p, nil
}

func (c *Client) CreateDataset(ctx context.Context, req payload.DatasetRequest) (*Dataset, error) {
	var d Dataset
	if err := c.do(ctx, http.MethodPost, datasetsPath, nil, req, &d, http.StatusCreated); err != nil {
		return nil, fmt.Errorf("creating dataset %s: %w", req.Name, err)
	}
	return &d, nil
}

func (c *Client) GetDataset(ctx context.Context, id string) (*Dataset, error) {
	var d Dataset
	if err := c.get(ctx, "dataset", datasetsPath, id, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func (c *Client) ListDatasets(ctx context.Context) ([]Dataset, error) {
	return listAll[Dataset](ctx, c, datasetsPath, "data")
}

func (c *Client) DeleteDataset(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, datasetsPath+"/"+id, nil, nil, nil, http.StatusNoContent)
}

func (c *Client) CreateSink(ctx context.Context, req payload.SinkRequest) (*Sink, error) {
	var s Sink
	if err := c.do(ctx, http.MethodPost, sinksPath, nil, req, &s, http.StatusCreated); err != nil {
		return nil, fmt.Errorf("creating sink %s: %w", req.Name, err)
	}
	return &s, nil
}

func (c *Client) GetSink(ctx context.Context, id string) (*Sink, error) {
	var s Sink
	if err := c.get(ctx, "sink", sinksPath, id, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *Client) ListSinks(ctx context.Context) ([]Sink, error) {
	return listAll[Sink](ctx, c, sinksPath, "sinks")
}

func (c *Client) DeleteSink(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, sinksPath+"/"+id, nil, nil, nil, http.StatusNoContent)
}

// Backend routes exposed under /api/v1/agents.
var backendRoutes = map[string]string{
	"backends": "backends",
	"taps":     "backends/pktvisor/taps",
	"inputs":   "backends/pktvisor/inputs",
	"handlers": "backends/pktvisor/handlers",
}

// BackendRoute fetches one of the agent backend routes as raw JSON.
func (c *Client) BackendRoute(ctx context.Context, route string) (json.RawMessage, error) {
	p, ok := backendRoutes[route]
	if !ok {
		return nil, fmt.Errorf("unknown backend route %q", route)
	}
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, agentsPath+"/"+p, nil, nil, &raw, http.StatusOK); err != nil {
		return nil, err
	}
	return raw, nil
}
