package probe

import (
	"context"

	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/orb-community/orb-acceptance/pkg/poll"
)

// Fetcher reads the current representation of something from an external system.
type Fetcher[T any] func(ctx context.Context) (T, error)

// Observation is the outcome of an equality or predicate probe.
type Observation[T any] struct {
	Matched bool
	Value   T
}

// Equal succeeds when the fetched value equals expected.
func Equal[T comparable](fetch Fetcher[T], expected T) poll.Probe[Observation[T]] {
	return Satisfy(fetch, func(v T) bool { return v == expected })
}

// Satisfy succeeds when pred holds for the fetched value.
func Satisfy[T any](fetch Fetcher[T], pred func(T) bool) poll.Probe[Observation[T]] {
	return func(ctx context.Context, done *poll.Flag) (Observation[T], error) {
		v, err := fetch(ctx)
		if err != nil {
			return Observation[T]{Value: v}, err
		}
		if pred(v) {
			done.Set()
		}
		return Observation[T]{Matched: done.IsSet(), Value: v}, nil
	}
}

// Convergence is the outcome of a set probe. Observed is filled on failure too.
type Convergence struct {
	Matched  bool
	Expected sets.Set[string]
	Observed sets.Set[string]
}

// Missing returns the expected ids not observed yet, sorted.
func (c Convergence) Missing() []string {
	return sets.List(c.Expected.Difference(c.Observed))
}

// Unexpected returns the observed ids that were not expected, sorted.
func (c Convergence) Unexpected() []string {
	return sets.List(c.Observed.Difference(c.Expected))
}

// Converge succeeds when the fetched ids are exactly the expected set.
func Converge(fetch Fetcher[[]string], expected ...string) poll.Probe[Convergence] {
	return setProbe(fetch, expected, func(observed, want sets.Set[string]) bool {
		return observed.Equal(want)
	})
}

// Cover succeeds when the fetched ids include the whole expected set.
func Cover(fetch Fetcher[[]string], expected ...string) poll.Probe[Convergence] {
	return setProbe(fetch, expected, func(observed, want sets.Set[string]) bool {
		return observed.IsSuperset(want)
	})
}

func setProbe(fetch Fetcher[[]string], expected []string, done func(observed, want sets.Set[string]) bool) poll.Probe[Convergence] {
	want := sets.New(expected...)
	return func(ctx context.Context, flag *poll.Flag) (Convergence, error) {
		ids, err := fetch(ctx)
		out := Convergence{Expected: want, Observed: sets.New(ids...)}
		if err != nil {
			return out, err
		}
		if done(out.Observed, want) {
			flag.Set()
		}
		out.Matched = flag.IsSet()
		return out, nil
	}
}
