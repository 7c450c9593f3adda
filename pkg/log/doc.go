// Package log provides structured logging via zerolog: a global Logger
// configured once with log.Init, and With* helpers that attach the
// worker_id/session_id/task_id/dataobject_id/subworker_id fields the
// server, worker, and subworker packages tag their log lines with.
package log
