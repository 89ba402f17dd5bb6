// Package acceptance holds the scenarios run against a live Orb deployment.
//
// The suite is not run by go test. The run command parses the configuration
// and calls Run, which hands the scenarios to ginkgo.
//
// Every scenario builds its own steps.World on top of shared infrastructure
// created once per run:
//
//	┌──────────┐      ┌──────────┐      ┌──────────────┐
//	│  World   │─────▶│ Recorder │─────▶│ Orb (HTTP)   │
//	└────┬─────┘      └────┬─────┘      └──────────────┘
//	     │                 │
//	     │                 ▼
//	     │            ┌──────────┐
//	     │            │ Observer │
//	     │            └──────────┘
//	     ▼
//	┌──────────┐      ┌──────────────┐
//	│  Stack   │─────▶│ Podman agent │
//	└──────────┘      └──────────────┘
//
// The fleet database checks only run when a DSN is configured. Resources are
// created with the harness name prefixes and removed after every scenario
// unless cleanup is disabled.
package acceptance
