// Package api holds the wire types of the conceptrag HTTP API.
//
// # Endpoints
//
//	POST /v1/generate   run one question through the workflow
//	GET  /health        liveness
//	GET  /healthz       liveness (Kubernetes)
//	GET  /ready         readiness, probes vector store, graph and cache
//	GET  /version       build information
//	GET  /metrics       Prometheus metrics
//
// Workflow failures (LLM, vector store, graph) are reported inside the
// response body as status ERROR with HTTP 200; malformed requests get 4xx
// with the common error envelope.
package api
