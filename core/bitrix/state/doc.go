// Package state provides the per-conversation FSM context and an in-memory
// store keyed by conversation id. It is domain-agnostic so it can be reused
// across bots.
package state
