/*
Package metrics exposes Prometheus collectors for the taskgrid server and
worker processes, plus small health/readiness/liveness HTTP handlers in
the same JSON shape regardless of which binary registers them.

# Collectors

Worker-side (graph size, as seen by the owning worker process):

  - taskgrid_tasks_total{status} — gauge, one per Task.status value
  - taskgrid_dataobjects_total{state} — gauge, one per DataObject.state value
  - taskgrid_subworkers_total — gauge

Server-side (bootstrap gate and registry):

  - taskgrid_server_workers_registered — gauge
  - taskgrid_server_clients_registered — gauge
  - taskgrid_bootstrap_registrations_total{role,outcome} — counter

RPC (both sides, any outbound capability call):

  - taskgrid_rpc_calls_total{method,outcome} — counter
  - taskgrid_rpc_call_duration_seconds{method} — histogram

Graph admission (worker side, directly tied to the ready-set invariants):

  - taskgrid_tasks_admitted_total — counter, incremented by every add_task
  - taskgrid_tasks_ready_total — counter, incremented each time a Waiting task enters the ready set
  - taskgrid_plan_scheduling_invocations_total — counter

# Health

RegisterComponent/UpdateComponent track named subsystems ("rpc", "graph",
...); GetHealth/GetReadiness and their HTTP handler counterparts report
aggregate status the same way across both binaries.
*/
package metrics
