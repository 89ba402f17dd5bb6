package payload

// AgentRequest is the body of POST /api/v1/agents.
type AgentRequest struct {
	Name    string            `json:"name"`
	OrbTags map[string]string `json:"orb_tags,omitempty"`
}

// GroupRequest is the body of POST /api/v1/agent_groups.
type GroupRequest struct {
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Tags        map[string]string `json:"tags"`
}

// DatasetRequest links a group, a policy and its sinks.
type DatasetRequest struct {
	Name          string   `json:"name"`
	AgentGroupID  string   `json:"agent_group_id"`
	AgentPolicyID string   `json:"agent_policy_id"`
	SinkIDs       []string `json:"sink_ids"`
}

const BackendPrometheus = "prometheus"

// SinkRequest is the body of POST /api/v1/sinks.
type SinkRequest struct {
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Backend     string            `json:"backend"`
	Tags        map[string]string `json:"tags,omitempty"`
	Config      SinkConfig        `json:"config"`
}

type SinkConfig struct {
	RemoteHost string `json:"remote_host"`
	Username   string `json:"username,omitempty"`
	Password   string `json:"password,omitempty"`
}

func NewPrometheusSink(name, remoteHost, username, password string) SinkRequest {
	return SinkRequest{
		Name:    name,
		Backend: BackendPrometheus,
		Config: SinkConfig{
			RemoteHost: remoteHost,
			Username:   username,
			Password:   password,
		},
	}
}
