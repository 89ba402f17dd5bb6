package steps

import (
	"context"
	"fmt"
	"time"

	"github.com/orb-community/orb-acceptance/internal/orb"
	"github.com/orb-community/orb-acceptance/pkg/logscan"
	"github.com/orb-community/orb-acceptance/pkg/poll"
	"github.com/orb-community/orb-acceptance/pkg/probe"
)

// Waiters return the outcome of the last probe invocation. A timeout is not an
// error; only a failing fetch is.

func (w *World) agentFetcher(agentID string) probe.Fetcher[*orb.Agent] {
	return func(ctx context.Context) (*orb.Agent, error) {
		return w.client.GetAgent(ctx, agentID)
	}
}

// WaitForAgentStatus waits until the agent reports status.
func (w *World) WaitForAgentStatus(agentID, status string) (probe.Observation[*orb.Agent], error) {
	return poll.Until(w.cfg.Timeouts.Agent, probe.Satisfy(w.agentFetcher(agentID), func(a *orb.Agent) bool {
		return a.State == status
	}), w.pollOptions()...)
}

// WaitForFleetAgentState waits until the fleet database stores state for the agent.
func (w *World) WaitForFleetAgentState(agentID, state string) (probe.Observation[string], error) {
	if w.fleet == nil {
		return probe.Observation[string]{}, fmt.Errorf("fleet database is not configured")
	}
	return poll.Until(w.cfg.Timeouts.Agent, probe.Equal(w.fleet.AgentStateFetcher(agentID), state), w.pollOptions()...)
}

// WaitForAgentByName waits until an agent named name is listed.
func (w *World) WaitForAgentByName(name string) (probe.Observation[*orb.Agent], error) {
	fetch := func(ctx context.Context) (*orb.Agent, error) {
		agents, err := w.client.ListAgents(ctx)
		if err != nil {
			return nil, err
		}
		for i := range agents {
			if agents[i].Name == name {
				return &agents[i], nil
			}
		}
		return nil, nil
	}
	return poll.Until(w.cfg.Timeouts.Agent, probe.Satisfy(fetch, func(a *orb.Agent) bool {
		return a != nil
	}), w.pollOptions()...)
}

// WaitForPoliciesApplied waits until the agent heartbeat lists amount policies.
func (w *World) WaitForPoliciesApplied(agentID string, amount int) (probe.Observation[*orb.Agent], error) {
	return poll.Until(w.cfg.Timeouts.Policy, probe.Satisfy(w.agentFetcher(agentID), func(a *orb.Agent) bool {
		return len(a.LastHBData.PolicyState) == amount
	}), w.pollOptions()...)
}

// WaitForPoliciesRunning waits until the agent heartbeat lists at least
// policyIDs. Other policies may be reported too.
func (w *World) WaitForPoliciesRunning(agentID string, policyIDs ...string) (probe.Convergence, error) {
	fetch := func(ctx context.Context) ([]string, error) {
		a, err := w.client.GetAgent(ctx, agentID)
		if err != nil {
			return nil, err
		}
		return a.PolicyIDs(), nil
	}
	return poll.Until(w.cfg.Timeouts.Policy, probe.Cover(fetch, policyIDs...), w.pollOptions()...)
}

// WaitForGroupsMatching waits until the groups in the agent heartbeat are
// exactly groupIDs.
func (w *World) WaitForGroupsMatching(agentID string, groupIDs ...string) (probe.Convergence, error) {
	fetch := func(ctx context.Context) ([]string, error) {
		a, err := w.client.GetAgent(ctx, agentID)
		if err != nil {
			return nil, err
		}
		return a.GroupIDs(), nil
	}
	return poll.Until(w.cfg.Timeouts.Group, probe.Converge(fetch, groupIDs...), w.pollOptions()...)
}

// WaitForFleetGroups waits until the fleet database membership view lists
// exactly groupIDs for the agent.
func (w *World) WaitForFleetGroups(agentID string, groupIDs ...string) (probe.Convergence, error) {
	if w.fleet == nil {
		return probe.Convergence{}, fmt.Errorf("fleet database is not configured")
	}
	return poll.Until(w.cfg.Timeouts.Group, probe.Converge(w.fleet.AgentGroupsFetcher(agentID), groupIDs...), w.pollOptions()...)
}

// WaitForDatasets waits until every policy in policyIDs carries amount datasets
// in the agent heartbeat.
func (w *World) WaitForDatasets(agentID string, policyIDs []string, amount int) (probe.Observation[*orb.Agent], error) {
	return poll.Until(w.cfg.Timeouts.Dataset, probe.Satisfy(w.agentFetcher(agentID), func(a *orb.Agent) bool {
		return len(policiesWithDatasets(a, policyIDs, amount)) == len(policyIDs)
	}), w.pollOptions()...)
}

// policiesWithDatasets returns the policies of ids carrying amount datasets.
func policiesWithDatasets(a *orb.Agent, ids []string, amount int) []string {
	var ok []string
	for _, id := range ids {
		if ps, found := a.LastHBData.PolicyState[id]; found && len(ps.Datasets) == amount {
			ok = append(ok, id)
		}
	}
	return ok
}

// WaitForLogMessage waits for a log line whose msg is exactly text.
func (w *World) WaitForLogMessage(containerID, text string, since time.Time) (probe.LogMatch, error) {
	return w.waitForLogs(containerID, logscan.Criteria{Text: text, Exact: true, Since: since})
}

// WaitForPolicyLogs waits until text is logged for every policy in policyIDs.
func (w *World) WaitForPolicyLogs(containerID, text string, policyIDs []string, since time.Time) (probe.LogMatch, error) {
	return w.waitForLogs(containerID, logscan.Criteria{Text: text, IDKey: "policy_id", IDs: policyIDs, Since: since})
}

// WaitForGroupSubscription waits until text is logged for every group name.
func (w *World) WaitForGroupSubscription(containerID, text string, groupNames []string) (probe.LogMatch, error) {
	return w.waitForLogs(containerID, logscan.Criteria{Text: text, Exact: true, IDKey: "group_name", IDs: groupNames})
}

// WaitForPolicyStoppedAndRemoved waits for the backend lines confirming that
// the policy was stopped and deleted after since.
func (w *World) WaitForPolicyStoppedAndRemoved(containerID, policyName string, since time.Time) (probe.LogMatch, error) {
	return w.waitForLogs(containerID,
		logscan.Criteria{Text: fmt.Sprintf("policy [%s]: stopping", policyName), TextKey: logscan.LogKey, Since: since},
		logscan.Criteria{Text: fmt.Sprintf("DELETE /api/v1/policies/%s 200", policyName), TextKey: logscan.LogKey, Since: since},
	)
}

func (w *World) waitForLogs(containerID string, criteria ...logscan.Criteria) (probe.LogMatch, error) {
	return poll.Until(w.cfg.Timeouts.Logs, probe.LogScan(w.runner, containerID, criteria...), w.pollOptions()...)
}

// WaitForContainerState waits until the container reaches state.
func (w *World) WaitForContainerState(containerID, state string) (probe.Observation[string], error) {
	return poll.Until(w.cfg.Timeouts.Container, probe.State(w.runner, containerID, state), w.pollOptions()...)
}
