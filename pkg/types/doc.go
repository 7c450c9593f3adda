// Package types defines the worker-graph domain model shared by the
// server, worker, subworker, and rpc packages: ids, DataObject and Task
// state machines, and the WorkerId network-endpoint identity.
package types
