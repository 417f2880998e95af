// Package server is the HTTP API of aafd.
//
// Routes:
//
//	GET    /health                               liveness and workflow count
//	GET    /workflows                            registered workflows
//	GET    /workflows/{name}                     graph shape of one workflow
//	POST   /workflows/{name}/runs                run a workflow to completion
//	POST   /workflows/{name}/runs/{id}/resume    continue a checkpointed run
//	GET    /runs/{id}                            stored final state of a run
//	GET    /runs/{id}/checkpoints                checkpoints saved for a run
//	DELETE /runs/{id}                            drop stored state of a run
//	POST   /chat                                 sample chat workflow
//	GET    /metrics                              Prometheus metrics
//
// Responses use a common envelope: {"success", "data", "error", "timestamp"}.
package server
