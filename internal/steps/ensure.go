package steps

import (
	"fmt"
	"strings"
	"time"

	"github.com/blang/semver"
	"go.uber.org/zap"
	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/orb-community/orb-acceptance/internal/diag"
	"github.com/orb-community/orb-acceptance/internal/orb"
	orbErrors "github.com/orb-community/orb-acceptance/pkg/errors"
	"github.com/orb-community/orb-acceptance/pkg/logscan"
	"github.com/orb-community/orb-acceptance/pkg/poll"
	"github.com/orb-community/orb-acceptance/pkg/probe"
)

// notMet builds the failure of a condition with a diagnostic report of the
// resource, the container logs and the recent API traffic.
func (w *World) notMet(condition string, expected, observed, resource any, containerID string) error {
	r := diag.Report{
		Condition: condition,
		Expected:  expected,
		Observed:  observed,
		Resource:  resource,
	}
	if containerID != "" {
		if lines, err := w.runner.Logs(containerID); err == nil {
			r.Logs = lines
		} else {
			zap.S().Debugw("failed to read container logs for diagnostics", "container", containerID, "error", err)
		}
	}
	if w.observer != nil {
		r.Exchanges = w.observer.Last(10)
	}
	return orbErrors.NewConditionNotMetError(condition, expected, observed).WithDiagnostics(r.String())
}

func (w *World) EnsureAgentStatus(agentID, status string) error {
	out, err := w.WaitForAgentStatus(agentID, status)
	if err != nil {
		return err
	}
	if !out.Matched {
		return w.notMet(fmt.Sprintf("agent %s status", agentID), status, out.Value.State, out.Value, w.ContainerID)
	}
	return nil
}

func (w *World) EnsureFleetAgentState(agentID, state string) error {
	out, err := w.WaitForFleetAgentState(agentID, state)
	if err != nil {
		return err
	}
	if !out.Matched {
		return w.notMet(fmt.Sprintf("agent %s state in the fleet database", agentID), state, out.Value, nil, w.ContainerID)
	}
	return nil
}

func (w *World) EnsureAgentByName(name string) (*orb.Agent, error) {
	out, err := w.WaitForAgentByName(name)
	if err != nil {
		return nil, err
	}
	if !out.Matched {
		return nil, w.notMet("agent listed by name", name, "no agent", nil, w.ContainerID)
	}
	return out.Value, nil
}

// EnsurePoliciesApplied returns the ids of the policies in the agent heartbeat.
func (w *World) EnsurePoliciesApplied(agentID string, amount int) ([]string, error) {
	out, err := w.WaitForPoliciesApplied(agentID, amount)
	if err != nil {
		return nil, err
	}
	ids := out.Value.PolicyIDs()
	if !out.Matched {
		return ids, w.notMet(fmt.Sprintf("policies applied to agent %s", agentID), amount, len(ids), out.Value, w.ContainerID)
	}
	return ids, nil
}

func (w *World) EnsurePoliciesRunning(agentID string, policyIDs ...string) error {
	out, err := w.WaitForPoliciesRunning(agentID, policyIDs...)
	if err != nil {
		return err
	}
	if !out.Matched {
		return w.notMet(fmt.Sprintf("policies running on agent %s", agentID), sets.List(out.Expected), convergenceSummary(out), nil, w.ContainerID)
	}
	return nil
}

func (w *World) EnsureGroupsMatching(agentID string, groupIDs ...string) error {
	out, err := w.WaitForGroupsMatching(agentID, groupIDs...)
	if err != nil {
		return err
	}
	if !out.Matched {
		return w.notMet(fmt.Sprintf("groups matching agent %s", agentID), sets.List(out.Expected), convergenceSummary(out), nil, w.ContainerID)
	}
	return nil
}

func (w *World) EnsureFleetGroups(agentID string, groupIDs ...string) error {
	out, err := w.WaitForFleetGroups(agentID, groupIDs...)
	if err != nil {
		return err
	}
	if !out.Matched {
		return w.notMet(fmt.Sprintf("fleet group membership of agent %s", agentID), sets.List(out.Expected), convergenceSummary(out), nil, "")
	}
	return nil
}

func (w *World) EnsureDatasets(agentID string, policyIDs []string, amount int) error {
	out, err := w.WaitForDatasets(agentID, policyIDs, amount)
	if err != nil {
		return err
	}
	if !out.Matched {
		ok := policiesWithDatasets(out.Value, policyIDs, amount)
		return w.notMet(fmt.Sprintf("policies with %d datasets on agent %s", amount, agentID), policyIDs, ok, out.Value, w.ContainerID)
	}
	return nil
}

func (w *World) EnsureLogMessage(containerID, text string, since time.Time) error {
	out, err := w.WaitForLogMessage(containerID, text, since)
	if err != nil {
		return err
	}
	if !out.Matched {
		return w.notMet("agent log message", text, "not logged", nil, containerID)
	}
	return nil
}

func (w *World) EnsurePolicyLogs(containerID, text string, policyIDs []string, since time.Time) error {
	out, err := w.WaitForPolicyLogs(containerID, text, policyIDs, since)
	if err != nil {
		return err
	}
	if !out.Matched {
		return w.notMet(fmt.Sprintf("log %q for every policy", text), policyIDs, logSummary(out), nil, containerID)
	}
	return nil
}

// EnsureNoPolicyLogs fails when text is logged after since for any of policyIDs.
// It reads the logs once.
func (w *World) EnsureNoPolicyLogs(containerID, text string, policyIDs []string, since time.Time) error {
	criteria := logscan.Criteria{Text: text, IDKey: "policy_id", IDs: policyIDs, Since: since}
	out, err := poll.Until(0, probe.LogScan(w.runner, containerID, criteria), w.pollOptions()...)
	if err != nil {
		return err
	}
	if found := out.Found(); len(found) > 0 {
		return w.notMet(fmt.Sprintf("no log %q for removed policies", text), "none", found, nil, containerID)
	}
	return nil
}

func (w *World) EnsureGroupSubscription(containerID, text string, groupNames []string) error {
	out, err := w.WaitForGroupSubscription(containerID, text, groupNames)
	if err != nil {
		return err
	}
	if !out.Matched {
		return w.notMet("agent subscribed to every matching group", groupNames, logSummary(out), nil, containerID)
	}
	return nil
}

func (w *World) EnsurePolicyStoppedAndRemoved(containerID, policyName string, since time.Time) error {
	out, err := w.WaitForPolicyStoppedAndRemoved(containerID, policyName, since)
	if err != nil {
		return err
	}
	if !out.Matched {
		return w.notMet(fmt.Sprintf("policy %s stopped and removed", policyName), "stop and delete lines", logSummary(out), nil, containerID)
	}
	return nil
}

func (w *World) EnsureContainerState(containerID, state string) error {
	out, err := w.WaitForContainerState(containerID, state)
	if err != nil {
		return err
	}
	if !out.Matched {
		return w.notMet(fmt.Sprintf("container %s state", containerID), state, out.Value, nil, containerID)
	}
	return nil
}

// EnsureAgentVersion fails when the agent reports a version below minVersion. A
// leading "v" is accepted on both sides.
func (w *World) EnsureAgentVersion(agentID, minVersion string) error {
	want, err := semver.Parse(strings.TrimPrefix(minVersion, "v"))
	if err != nil {
		return fmt.Errorf("invalid minimum agent version %q: %w", minVersion, err)
	}

	out, err := w.WaitForAgentStatus(agentID, orb.AgentOnline)
	if err != nil {
		return err
	}
	raw := out.Value.Version()
	got, err := semver.Parse(strings.TrimPrefix(raw, "v"))
	if err != nil {
		return w.notMet(fmt.Sprintf("agent %s version", agentID), ">="+want.String(), fmt.Sprintf("unparseable %q", raw), out.Value, w.ContainerID)
	}
	if got.LT(want) {
		return w.notMet(fmt.Sprintf("agent %s version", agentID), ">="+want.String(), got.String(), out.Value, w.ContainerID)
	}
	return nil
}

func convergenceSummary(c probe.Convergence) string {
	return fmt.Sprintf("observed %v, missing %v, unexpected %v", sets.List(c.Observed), c.Missing(), c.Unexpected())
}

func logSummary(m probe.LogMatch) string {
	return fmt.Sprintf("found %v, missing %v in %d lines", m.Found(), m.Missing(), len(m.Lines))
}
