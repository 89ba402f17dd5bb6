package probe

import (
	"context"

	"github.com/orb-community/orb-acceptance/pkg/logscan"
	"github.com/orb-community/orb-acceptance/pkg/poll"
)

// LogSource returns every log line currently buffered for a container.
type LogSource interface {
	Logs(id string) ([]string, error)
}

// LifecycleInspector returns the lifecycle state of a container (running, exited...).
type LifecycleInspector interface {
	State(id string) (string, error)
}

// LogMatch is the outcome of a log-scan probe.
type LogMatch struct {
	Matched bool
	Results []logscan.Result
	Lines   []string
}

// Found merges the ids matched by every criterion.
func (m LogMatch) Found() []string {
	var ids []string
	for _, r := range m.Results {
		ids = append(ids, r.Found.UnsortedList()...)
	}
	return ids
}

// Missing merges the ids still missing for every criterion.
func (m LogMatch) Missing() []string {
	var ids []string
	for _, r := range m.Results {
		ids = append(ids, r.Missing()...)
	}
	return ids
}

// LogScan reads the whole log buffer of a container on every invocation and
// succeeds once every criterion is complete.
func LogScan(source LogSource, containerID string, criteria ...logscan.Criteria) poll.Probe[LogMatch] {
	return func(ctx context.Context, done *poll.Flag) (LogMatch, error) {
		lines, err := source.Logs(containerID)
		if err != nil {
			return LogMatch{}, err
		}

		out := LogMatch{Lines: lines, Results: logscan.ScanAll(lines, criteria...)}
		complete := true
		for _, r := range out.Results {
			complete = complete && r.Complete()
		}
		if complete {
			done.Set()
		}
		out.Matched = done.IsSet()
		return out, nil
	}
}

// State succeeds when the container reaches the expected lifecycle state.
func State(inspector LifecycleInspector, containerID, expected string) poll.Probe[Observation[string]] {
	return Equal(func(ctx context.Context) (string, error) {
		return inspector.State(containerID)
	}, expected)
}
