// Package scheduler hosts the payload components on a single rate group.
//
// The rate group ticks every registered component in registration order once
// per cycle and executes queued commands between cycles. Components are only
// ever touched from the rate-group goroutine.
package scheduler
