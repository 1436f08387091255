// Package api provides the RESTful HTTP API for controlling and inspecting
// the mediator.
//
// The API server exposes endpoints for:
//   - Path and port policy management
//   - Per-hook mediation statistics and event channel counters
//   - Recent audit events and cached process lineage
//   - Health checks, status and the effective configuration
//   - Prometheus metrics
//
// # Example Usage
//
//	server, err := api.NewAPIServer(api.DefaultConfig(), api.Deps{
//	    Policies: manager,
//	    Mediator: med,
//	    Channel:  channel,
//	    Audit:    consumer,
//	    Lineage:  lineageCache,
//	    Metrics:  registry,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	if err := server.Start(); err != nil {
//	    log.Fatal(err)
//	}
//	defer server.Stop()
//
// # Endpoints
//
// Health check:
//   - GET /api/v1/health  - Simple health check
//   - GET /api/v1/status  - Substrate, policy counts and hook totals
//   - GET /api/v1/config  - Effective runtime configuration
//
// Policies:
//   - GET    /api/v1/policies/paths         - List path policies
//   - POST   /api/v1/policies/paths         - Set a path policy {"key", "action"}
//   - DELETE /api/v1/policies/paths?key=K   - Delete a path policy
//   - GET    /api/v1/policies/ports         - List port policies
//   - POST   /api/v1/policies/ports         - Set a port policy {"port", "action"}
//   - GET    /api/v1/policies/ports/:port   - Get a port policy
//   - DELETE /api/v1/policies/ports/:port   - Delete a port policy
//
// Statistics:
//   - GET /api/v1/stats               - All hooks, channel and audit counters
//   - GET /api/v1/stats/hooks/:hook   - One hook (exec, file_open, connect)
//   - GET /api/v1/stats/channel       - Event channel counters
//
// Inspection:
//   - GET /api/v1/events?limit=N  - Recent audit entries, newest first
//   - GET /api/v1/lineage/:pid    - Cached ancestors of a process
//   - GET /metrics                - Prometheus exposition
//
// # Error Handling
//
// Errors are returned as models.ErrorResponse. Invalid keys and actions map
// to 400, unknown entries to 404, a full policy store to 507.
package api
