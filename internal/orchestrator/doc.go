// Package orchestrator runs the dual-engine insight generation flow:
// it renders the prompt, invokes both configured engines concurrently,
// and merges their parsed outputs into a single consensus result. When
// exactly one engine fails the survivor's output is returned as a
// failover result; when both fail the attempt fails with an
// OrchestrationError carrying both causes.
package orchestrator
