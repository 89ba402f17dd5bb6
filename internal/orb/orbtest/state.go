package orbtest

import (
	"encoding/json"
	"maps"

	"github.com/orb-community/orb-acceptance/internal/orb"
)

func jsonRaw(v any) (json.RawMessage, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(data), nil
}

func matches(agentTags, groupTags map[string]string) bool {
	if len(groupTags) == 0 {
		return false
	}
	for k, v := range groupTags {
		if agentTags[k] != v {
			return false
		}
	}
	return true
}

func (s *Server) match(g *orb.Group) {
	g.MatchingAgents = orb.MatchingAgents{}
	for _, a := range s.agents {
		if !matches(a.OrbTags, g.Tags) {
			continue
		}
		g.MatchingAgents.Total++
		if a.State == orb.AgentOnline {
			g.MatchingAgents.Online++
		}
	}
}

// heartbeat derives what an online agent would report: the groups it matches
// and the policies reached through valid datasets of those groups.
func (s *Server) heartbeat(a *orb.Agent) {
	if s.frozen[a.ID] || a.State != orb.AgentOnline {
		return
	}

	hb := orb.Heartbeat{
		GroupState:   map[string]orb.GroupState{},
		PolicyState:  map[string]orb.PolicyState{},
		BackendState: map[string]orb.BackendState{"pktvisor": {State: "running"}},
	}
	for _, g := range s.groups {
		if matches(a.OrbTags, g.Tags) {
			hb.GroupState[g.ID] = orb.GroupState{Name: g.Name, ChannelID: g.ID}
		}
	}
	for _, d := range s.datasets {
		if _, ok := hb.GroupState[d.AgentGroupID]; !ok || !d.Valid {
			continue
		}
		p, ok := s.policies[d.AgentPolicyID]
		if !ok {
			continue
		}
		ps := hb.PolicyState[p.ID]
		ps.Name, ps.State, ps.Backend, ps.Version = p.Name, orb.PolicyRunning, p.Backend, p.Version
		ps.Datasets = append(ps.Datasets, d.ID)
		hb.PolicyState[p.ID] = ps
	}
	a.LastHBData = hb
}

// SetAgentState changes the lifecycle state of an agent.
func (s *Server) SetAgentState(id, state string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.agents[id]; ok {
		a.State = state
	}
}

// SetAgentVersion sets the version reported in the agent metadata.
func (s *Server) SetAgentVersion(id, version string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.agents[id]; ok {
		a.AgentMetadata = map[string]any{"orb_agent": map[string]any{"version": version}}
	}
}

// SetHeartbeat replaces the heartbeat of an agent and stops deriving it.
func (s *Server) SetHeartbeat(id string, hb orb.Heartbeat) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.agents[id]; ok {
		s.frozen[id] = true
		a.LastHBData = hb
	}
}

// SetPolicyState overrides one policy entry of the heartbeat, keeping the rest.
func (s *Server) SetPolicyState(agentID, policyID string, state orb.PolicyState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.agents[agentID]
	if !ok {
		return
	}
	s.heartbeat(a)
	s.frozen[agentID] = true
	ps := maps.Clone(a.LastHBData.PolicyState)
	if ps == nil {
		ps = map[string]orb.PolicyState{}
	}
	ps[policyID] = state
	a.LastHBData.PolicyState = ps
}

// ResumeHeartbeat goes back to deriving the heartbeat of an agent.
func (s *Server) ResumeHeartbeat(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.frozen, id)
}

// OnAgentRead runs fn under the server lock on every GET of the agent, with
// the number of reads so far. It lets tests script state transitions.
func (s *Server) OnAgentRead(id string, fn func(a *orb.Agent, reads int)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onRead[id] = fn
}

func (s *Server) Reads(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads[id]
}

func (s *Server) Logins() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logins
}

// Counts returns the number of stored resources per kind.
func (s *Server) Counts() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return map[string]int{
		"agents":   len(s.agents),
		"groups":   len(s.groups),
		"policies": len(s.policies),
		"datasets": len(s.datasets),
		"sinks":    len(s.sinks),
	}
}
