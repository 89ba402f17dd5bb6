package orb

import (
	"encoding/json"
	"time"
)

// Agent states reported by the control plane.
const (
	AgentNew     = "new"
	AgentOnline  = "online"
	AgentOffline = "offline"
	AgentStale   = "stale"
	AgentRemoved = "removed"
)

// Policy states reported in agent heartbeats.
const (
	PolicyRunning = "running"
	PolicyFailed  = "failed_to_apply"
	PolicyStopped = "stopped"
)

type Agent struct {
	ID            string            `json:"id"`
	Name          string            `json:"name"`
	ChannelID     string            `json:"channel_id"`
	Key           string            `json:"key,omitempty"`
	State         string            `json:"state"`
	OrbTags       map[string]string `json:"orb_tags"`
	AgentTags     map[string]string `json:"agent_tags"`
	AgentMetadata map[string]any    `json:"agent_metadata"`
	LastHBData    Heartbeat         `json:"last_hb_data"`
	TsCreated     time.Time         `json:"ts_created"`
	TsLastHB      time.Time         `json:"ts_last_hb"`
}

// Version returns the agent version from its metadata, or "".
func (a Agent) Version() string {
	meta, ok := a.AgentMetadata["orb_agent"].(map[string]any)
	if !ok {
		return ""
	}
	v, _ := meta["version"].(string)
	return v
}

// PolicyIDs returns the ids of the policies reported in the last heartbeat.
func (a Agent) PolicyIDs() []string {
	ids := make([]string, 0, len(a.LastHBData.PolicyState))
	for id := range a.LastHBData.PolicyState {
		ids = append(ids, id)
	}
	return ids
}

// GroupIDs returns the ids of the groups reported in the last heartbeat.
func (a Agent) GroupIDs() []string {
	ids := make([]string, 0, len(a.LastHBData.GroupState))
	for id := range a.LastHBData.GroupState {
		ids = append(ids, id)
	}
	return ids
}

type Heartbeat struct {
	PolicyState  map[string]PolicyState  `json:"policy_state,omitempty"`
	GroupState   map[string]GroupState   `json:"group_state,omitempty"`
	BackendState map[string]BackendState `json:"backend_state,omitempty"`
}

type PolicyState struct {
	Name     string   `json:"name"`
	State    string   `json:"state"`
	Backend  string   `json:"backend,omitempty"`
	Datasets []string `json:"datasets,omitempty"`
	Error    string   `json:"error,omitempty"`
	Version  int      `json:"version,omitempty"`
}

type GroupState struct {
	Name      string `json:"name"`
	ChannelID string `json:"channel_id"`
}

type BackendState struct {
	State string `json:"state"`
	Error string `json:"error,omitempty"`
}

type Group struct {
	ID             string            `json:"id"`
	Name           string            `json:"name"`
	Description    string            `json:"description,omitempty"`
	Tags           map[string]string `json:"tags"`
	MatchingAgents MatchingAgents    `json:"matching_agents"`
}

type MatchingAgents struct {
	Total  int `json:"total"`
	Online int `json:"online"`
}

type Policy struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Backend     string            `json:"backend"`
	Version     int               `json:"version"`
	Tags        map[string]string `json:"tags,omitempty"`
	Format      string            `json:"format,omitempty"`
	PolicyData  string            `json:"policy_data,omitempty"`
	Policy      json.RawMessage   `json:"policy,omitempty"`
}

type Dataset struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	AgentGroupID  string   `json:"agent_group_id"`
	AgentPolicyID string   `json:"agent_policy_id"`
	SinkIDs       []string `json:"sink_ids"`
	Valid         bool     `json:"valid"`
}

type Sink struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Backend     string            `json:"backend"`
	State       string            `json:"state"`
	Error       string            `json:"error,omitempty"`
	Tags        map[string]string `json:"tags,omitempty"`
}
