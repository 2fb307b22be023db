// Package api implements the relay agent's HTTP status API.
//
// Endpoints:
//   - GET /api/v1/health      200 while listening, 503 otherwise
//   - GET /api/v1/status      agent snapshot (state, relay level, counters)
//   - GET /api/v1/actuations  recent journal entries, newest first (?limit=)
//   - GET /metrics            Prometheus exposition
//
// The server is read-only. Commands reach the relay through the broker only.
//
//	srv, err := api.New(deps)
//	if err != nil {
//	    return err
//	}
//	return srv.Run(ctx) // serves until ctx is done
package api
