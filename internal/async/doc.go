// Package async provides the cooperative primitives background work runs
// under: a progress Indicator carrying cancellation and suspension, and an
// observable boolean Flag for signals such as "executor running" or
// "scanning in progress".
package async
