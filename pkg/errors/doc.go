// Package errors provides custom error types for the Orb acceptance harness.
//
// Each error type includes a constructor, Error() method, and a type-checking
// helper using errors.As for proper error unwrapping.
//
// # Error Types Overview
//
//	┌──────────────────────────┬─────────────────────────────────────────────────┐
//	│ Error Type               │ Raised when                                     │
//	├──────────────────────────┼─────────────────────────────────────────────────┤
//	│ UnexpectedStatusError    │ Control plane answered with another status code │
//	│ ResourceNotFoundError    │ Agent, group, policy... does not exist          │
//	│ InvalidOptionError       │ Payload builder got an unknown or invalid option│
//	│ ConditionNotMetError     │ A bounded wait ended without the condition      │
//	└──────────────────────────┴─────────────────────────────────────────────────┘
//
// # UnexpectedStatusError
//
// Carries method, path, expected codes, the received code and a body excerpt.
// StatusCode(err) extracts the received code from a wrapped error.
//
// Usage:
//
//	if _, err := client.GetAgent(ctx, id); errors.StatusCode(err) == http.StatusNotFound {
//	    // agent is gone
//	}
//
// # InvalidOptionError
//
// Builders record the first invalid option and return it from Build, so a wrong
// configuration path is reported as a value instead of a panic:
//
//	req, err := payload.NewPolicy(name, "pktvisor").Tap("default_pcap", "pcap").OnlyRcode(2).Build()
//	if errors.IsInvalidOptionError(err) {
//	    ...
//	}
//
// # ConditionNotMetError
//
// Built by the steps after poll.Until returned an outcome that does not satisfy
// the condition. Expected and observed values are rendered with fmt, diagnostics
// (logs, resource JSON, recorded API calls) are appended verbatim.
//
// Usage:
//
//	out, err := poll.Until(timeout, probe.Equal(fetch, "online"))
//	if err != nil {
//	    return err
//	}
//	if !out.Matched {
//	    return errors.NewConditionNotMetError("agent status", "online", out.Value).WithDiagnostics(report)
//	}
package errors
