// Package poll turns a one-shot check against an eventually consistent system
// into a bounded wait.
//
// # Contract
//
// Until invokes a Probe immediately, then once per interval, until the probe sets
// the shared Flag or the timeout has elapsed:
//
//	attempt 1 ──▶ done? ──no──▶ sleep(interval) ──▶ elapsed >= timeout? ──no──▶ attempt 2 ...
//	                │                                        │
//	               yes                                      yes
//	                ▼                                        ▼
//	        return outcome                        return last outcome
//
// Timeout is a soft failure: Until returns the last outcome with a nil error and
// the caller decides whether this fails the scenario. Only the probe writes the
// Flag, so the outcome returned always agrees with the signal that ended the loop.
//
// A probe error is returned immediately. Until never retries on error; only
// "condition not met yet" is retried.
//
// # Timing
//
// Elapsed time is accumulated from nominal sleep intervals rather than read from
// the clock. A probe that never succeeds is invoked exactly ceil(timeout/interval)
// times, and the call returns after roughly timeout plus the time spent inside the
// probes. Use WithProbeTimeout to bound a probe that may hang.
//
// # Usage
//
//	status, err := poll.Until(30*time.Second, func(ctx context.Context, done *poll.Flag) (string, error) {
//	    agent, err := client.GetAgent(ctx, id)
//	    if err != nil {
//	        return "", err
//	    }
//	    if agent.State == "online" {
//	        done.Set()
//	    }
//	    return agent.State, nil
//	})
package poll
