// Package notify implements the DataObjectId -> set[TaskId] interest
// relation a worker uses to wake tasks when the DataObjects they wait
// on finish, plus a small pub/sub broker (grounded in the same
// broadcast-to-buffered-subscribers pattern) for observing task-status
// transitions from outside the worker's own goroutine.
package notify
