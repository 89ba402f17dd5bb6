// Package probe provides the probe shapes used with poll.Until.
//
//	┌──────────────┬─────────────────────────────────────┬──────────────────────────────┐
//	│ Shape        │ Success rule                        │ Payload on failure           │
//	├──────────────┼─────────────────────────────────────┼──────────────────────────────┤
//	│ Equal        │ fetched value == expected           │ last observed value          │
//	│ Satisfy      │ pred(fetched value)                 │ last observed value          │
//	│ Converge     │ observed id set == expected set     │ observed set, missing, extra │
//	│ Cover        │ observed id set ⊇ expected set      │ observed set, missing        │
//	│ LogScan      │ every criterion matched in the logs │ ids matched so far, lines    │
//	│ State        │ container state == expected         │ last observed state          │
//	└──────────────┴─────────────────────────────────────┴──────────────────────────────┘
//
// A fetch error is returned as is; poll.Until does not retry it.
package probe
