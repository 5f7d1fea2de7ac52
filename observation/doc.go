// Package observation fans committed relational changes out to UI-facing
// subscribers.
//
// A Pipeline is registered with the relational store as a commit observer.
// Each commit advances the pipeline's latest snapshot (under one lock, so the
// pointer only moves forward) and is then delivered to every interested
// subscription on the UI dispatch context. Subscribers never run on the
// writer's goroutine; they receive the snapshot number and the touched ids
// and read the data themselves through a UI read.
//
// Subscriptions are scoped to a domain: one thread's conversation, the
// conversation list, the full-text index, or everything.
package observation
