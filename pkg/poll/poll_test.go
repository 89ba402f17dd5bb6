package poll_test

import (
	"context"
	"errors"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/orb-community/orb-acceptance/pkg/poll"
)

func TestPoll(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Poll Suite")
}

type outcome struct {
	ok      bool
	payload int
}

// scripted returns a probe replaying outcomes in order, repeating the last one.
func scripted(calls *int, outcomes ...outcome) poll.Probe[outcome] {
	return func(ctx context.Context, done *poll.Flag) (outcome, error) {
		idx := *calls
		if idx >= len(outcomes) {
			idx = len(outcomes) - 1
		}
		*calls++
		out := outcomes[idx]
		if out.ok {
			done.Set()
		}
		return out, nil
	}
}

var _ = Describe("Until", func() {
	var (
		calls  int
		slept  []time.Duration
		sleeps poll.Option
	)

	BeforeEach(func() {
		calls = 0
		slept = nil
		sleeps = poll.WithSleep(func(d time.Duration) {
			slept = append(slept, d)
		})
	})

	Context("probe succeeds", func() {
		// Given a probe that succeeds on the first attempt
		// When we poll
		// Then the probe is invoked once and no sleep happens
		It("should return after one invocation", func() {
			// Act
			out, err := poll.Until(5*time.Second, scripted(&calls, outcome{true, 7}), sleeps)

			// Assert
			Expect(err).ToNot(HaveOccurred())
			Expect(out).To(Equal(outcome{true, 7}))
			Expect(calls).To(Equal(1))
			Expect(slept).To(BeEmpty())
		})

		// Given a probe that succeeds on attempt K
		// When we poll with a large timeout
		// Then exactly K invocations happen and the K-th outcome is returned
		It("should invoke exactly K times", func() {
			// Arrange
			probe := scripted(&calls,
				outcome{false, 0},
				outcome{false, 1},
				outcome{false, 2},
				outcome{true, 3},
				outcome{true, 4},
			)

			// Act
			out, err := poll.Until(time.Minute, probe, sleeps)

			// Assert
			Expect(err).ToNot(HaveOccurred())
			Expect(out).To(Equal(outcome{true, 3}))
			Expect(calls).To(Equal(4))
			Expect(slept).To(HaveLen(3))
		})

		// Given a probe returning (false,0), (false,1), (true,2)
		// When we poll with a 0.5s interval and a 5s timeout
		// Then (true,2) is returned after about one second and three invocations
		It("should return the successful outcome after about one second", func() {
			// Arrange
			probe := scripted(&calls, outcome{false, 0}, outcome{false, 1}, outcome{true, 2})
			start := time.Now()

			// Act
			out, err := poll.Until(5*time.Second, probe, poll.WithInterval(500*time.Millisecond))

			// Assert
			Expect(err).ToNot(HaveOccurred())
			Expect(out).To(Equal(outcome{true, 2}))
			Expect(calls).To(Equal(3))
			Expect(time.Since(start)).To(BeNumerically("~", time.Second, 300*time.Millisecond))
		})
	})

	Context("probe never succeeds", func() {
		// Given a probe that always reports a partial result
		// When we poll with a 1s timeout and a 0.5s interval
		// Then two invocations happen and the last partial result is returned without error
		It("should stop at the deadline and return the last outcome", func() {
			// Arrange
			probe := scripted(&calls, outcome{false, 1}, outcome{false, 2})
			start := time.Now()

			// Act
			out, err := poll.Until(time.Second, probe, poll.WithInterval(500*time.Millisecond))

			// Assert
			Expect(err).ToNot(HaveOccurred())
			Expect(out).To(Equal(outcome{false, 2}))
			Expect(calls).To(Equal(2))
			Expect(time.Since(start)).To(BeNumerically(">=", time.Second))
			Expect(time.Since(start)).To(BeNumerically("<", 1700*time.Millisecond))
		})

		// Given a timeout that is not a multiple of the interval
		// When the probe never succeeds
		// Then the number of invocations is ceil(timeout/interval)
		It("should invoke ceil(timeout/interval) times", func() {
			// Act
			_, err := poll.Until(2100*time.Millisecond, scripted(&calls, outcome{false, 0}), sleeps)

			// Assert
			Expect(err).ToNot(HaveOccurred())
			Expect(calls).To(Equal(5))
			Expect(slept).To(HaveLen(5))
			Expect(slept).To(HaveEach(poll.DefaultInterval))
		})

		// Given a zero timeout
		// When we poll
		// Then the probe runs once and nothing sleeps
		It("should invoke once when timeout is zero", func() {
			// Act
			out, err := poll.Until(0, scripted(&calls, outcome{false, 9}), sleeps)

			// Assert
			Expect(err).ToNot(HaveOccurred())
			Expect(out).To(Equal(outcome{false, 9}))
			Expect(calls).To(Equal(1))
			Expect(slept).To(BeEmpty())
		})
	})

	Context("probe fails", func() {
		// Given a probe that fails on the second attempt
		// When we poll
		// Then the error is returned at once and not retried
		It("should propagate the error without retrying", func() {
			// Arrange
			boom := errors.New("connection refused")
			probe := func(ctx context.Context, done *poll.Flag) (int, error) {
				calls++
				if calls == 2 {
					return calls, boom
				}
				return calls, nil
			}

			// Act
			out, err := poll.Until(time.Minute, probe, sleeps)

			// Assert
			Expect(err).To(MatchError(boom))
			Expect(out).To(Equal(2))
			Expect(calls).To(Equal(2))
		})
	})

	Context("options", func() {
		// Given a custom interval
		// When the probe never succeeds
		// Then every sleep uses that interval
		It("should sleep for the configured interval", func() {
			// Act
			_, _ = poll.Until(time.Second, scripted(&calls, outcome{false, 0}), sleeps, poll.WithInterval(250*time.Millisecond))

			// Assert
			Expect(calls).To(Equal(4))
			Expect(slept).To(HaveEach(250 * time.Millisecond))
		})

		// Given a probe timeout
		// When the probe blocks on its context
		// Then the invocation is cut short with a deadline error
		It("should bound each invocation with the probe timeout", func() {
			// Arrange
			probe := func(ctx context.Context, done *poll.Flag) (string, error) {
				calls++
				<-ctx.Done()
				return "hung", ctx.Err()
			}

			// Act
			out, err := poll.Until(time.Minute, probe, sleeps, poll.WithProbeTimeout(50*time.Millisecond))

			// Assert
			Expect(err).To(MatchError(context.DeadlineExceeded))
			Expect(out).To(Equal("hung"))
			Expect(calls).To(Equal(1))
		})

		// Given no probe timeout
		// When the probe inspects its context
		// Then the context has no deadline
		It("should not set a deadline by default", func() {
			// Arrange
			var hasDeadline bool
			probe := func(ctx context.Context, done *poll.Flag) (bool, error) {
				_, hasDeadline = ctx.Deadline()
				done.Set()
				return true, nil
			}

			// Act
			_, err := poll.Until(time.Second, probe)

			// Assert
			Expect(err).ToNot(HaveOccurred())
			Expect(hasDeadline).To(BeFalse())
		})
	})
})

var _ = Describe("Flag", func() {
	It("should start unset and stay set once set", func() {
		var f poll.Flag
		Expect(f.IsSet()).To(BeFalse())
		f.Set()
		Expect(f.IsSet()).To(BeTrue())
		f.Set()
		Expect(f.IsSet()).To(BeTrue())
	})
})
