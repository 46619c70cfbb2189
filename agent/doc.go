// Package agent contains the Agent type: a named, independently invokable
// unit wrapping a model configuration, an ordered tool list, optional
// sub-agents and optional durable memory.
//
// Lifecycle:
//   - New captures configuration; nothing is resolved yet.
//   - Build resolves the model and compiles the reasoning loop (flow.Runner).
//     Invoke and Stream build lazily when needed; orchestrators call Build
//     or Rebuild explicitly during wiring so concurrent first use never races.
//   - SetTool mutates the tool list and invalidates the built runner; the next
//     Invoke, Stream or explicit Rebuild compiles a fresh one.
//
// Agents hold no per-request state. The envelope and core.RunConfig passed to
// Invoke/Stream scope a request; memory is keyed by (thread id, agent name).
package agent
