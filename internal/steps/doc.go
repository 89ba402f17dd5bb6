// Package steps holds the scenario building blocks: a World carrying the state
// of one scenario, waiters that poll the control plane, the agent containers
// or the fleet database, Ensure helpers turning a missed condition into an
// error with diagnostics, and the Janitor removing what the harness created.
package steps
