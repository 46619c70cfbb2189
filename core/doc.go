// Package core provides the foundational domain types, interfaces and execution
// contexts used by meshgate. It defines the core abstractions for:
//
//   - Envelopes (ordered human/ai turns exchanged with agents)
//   - Invokers (anything that turns an envelope into a reply)
//   - Content parts (text, function calls, function responses)
//   - RunContext / ToolContext (scoped execution & tool sandboxing)
//   - Pluggable memory stores keyed by thread id
//
// The package keeps implementation concerns (persistence, model providers,
// concrete agents) out of scope, exposing small interfaces to enable custom
// backends and test doubles.
package core
