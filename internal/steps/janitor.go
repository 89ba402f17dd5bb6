package steps

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/orb-community/orb-acceptance/internal/orb"
	orbErrors "github.com/orb-community/orb-acceptance/pkg/errors"
	"github.com/orb-community/orb-acceptance/pkg/payload"
	"github.com/orb-community/orb-acceptance/pkg/scheduler"
)

// Janitor deletes every resource whose name carries a harness prefix.
type Janitor struct {
	client  *orb.Client
	workers int
}

func NewJanitor(client *orb.Client, workers int) *Janitor {
	return &Janitor{client: client, workers: max(workers, 1)}
}

type stage struct {
	kind   string
	list   func(ctx context.Context) (map[string]string, error)
	delete func(ctx context.Context, id string) error
}

// stages run in order so that no resource is deleted while another one still
// refers to it.
func (j *Janitor) stages() []stage {
	return []stage{
		{"dataset", func(ctx context.Context) (map[string]string, error) {
			items, err := j.client.ListDatasets(ctx)
			return named(items, err, func(d orb.Dataset) (string, string) { return d.ID, d.Name })
		}, j.client.DeleteDataset},
		{"policy", func(ctx context.Context) (map[string]string, error) {
			items, err := j.client.ListPolicies(ctx)
			return named(items, err, func(p orb.Policy) (string, string) { return p.ID, p.Name })
		}, j.client.DeletePolicy},
		{"agent group", func(ctx context.Context) (map[string]string, error) {
			items, err := j.client.ListGroups(ctx)
			return named(items, err, func(g orb.Group) (string, string) { return g.ID, g.Name })
		}, j.client.DeleteGroup},
		{"sink", func(ctx context.Context) (map[string]string, error) {
			items, err := j.client.ListSinks(ctx)
			return named(items, err, func(s orb.Sink) (string, string) { return s.ID, s.Name })
		}, j.client.DeleteSink},
		{"agent", func(ctx context.Context) (map[string]string, error) {
			items, err := j.client.ListAgents(ctx)
			return named(items, err, func(a orb.Agent) (string, string) { return a.ID, a.Name })
		}, j.client.DeleteAgent},
	}
}

// named keeps the prefixed items, by id.
func named[T any](items []T, err error, key func(T) (string, string)) (map[string]string, error) {
	if err != nil {
		return nil, err
	}
	out := map[string]string{}
	for _, it := range items {
		if id, name := key(it); payload.HasPrefix(name) {
			out[id] = name
		}
	}
	return out, nil
}

// Clean runs the deletions of each stage concurrently and returns the number
// of deleted resources. Failures are joined; a failed stage does not stop the
// following ones.
func (j *Janitor) Clean(ctx context.Context) (int, error) {
	sched := scheduler.NewScheduler[string](j.workers)
	defer sched.Close()

	var (
		deleted int
		errs    []error
	)
	for _, st := range j.stages() {
		items, err := st.list(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("listing %s resources: %w", st.kind, err))
			continue
		}

		futures := make([]*scheduler.Future[string], 0, len(items))
		for id, name := range items {
			futures = append(futures, sched.AddWork(func(ctx context.Context) (string, error) {
				if err := st.delete(ctx, id); err != nil && !orbErrors.IsResourceNotFoundError(err) {
					return name, fmt.Errorf("deleting %s %s: %w", st.kind, name, err)
				}
				return name, nil
			}))
		}

		for _, f := range futures {
			r := f.Wait(ctx)
			if r.Err != nil {
				errs = append(errs, r.Err)
				continue
			}
			deleted++
			zap.S().Debugw("resource deleted", "kind", st.kind, "name", r.Data)
		}
	}

	zap.S().Infow("cleanup finished", "deleted", deleted, "failed", len(errs))
	return deleted, errors.Join(errs...)
}
